/*
 * Copyright 2022 Google LLC.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mlp implements a small multi-layer perceptron with categorical embeddings, trained
// with minibatch Adam. It is shared by the neural network models.
package mlp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Task is the type of the output layer.
type Task int

// Known tasks.
const (
	// Classification uses a softmax output and the cross-entropy loss.
	Classification Task = iota
	// Regression uses a linear output and the squared error on the standardized target.
	Regression
)

// Config are the training parameters.
type Config struct {
	// Hidden are the sizes of the hidden layers. No hidden layer gives a linear model.
	Hidden       []int
	LearningRate float64
	Epochs       int
	BatchSize    int
	// WeightDecay is a decoupled L2 penalty on the weights (not the biases).
	WeightDecay float64
	// EmbeddingDim is the dimension of the categorical embeddings. 0 means automatic.
	EmbeddingDim int
	// Patience is the number of epochs without validation improvement before stopping.
	Patience int
	Seed     int64
}

// Input is a set of examples: dense features and categorical indices (one per embedding).
type Input struct {
	Dense [][]float64
	Cats  [][]int32
}

// NumRows is the number of examples.
func (in Input) NumRows() int {
	if in.Dense != nil {
		return len(in.Dense)
	}
	return len(in.Cats)
}

// Target contains the labels (classification) or values (regression) of the examples.
type Target struct {
	Labels []int
	Values []float64
}

// Layer is a dense layer.
type Layer struct {
	In  int `msgpack:"in"`
	Out int `msgpack:"out"`
	// W is the Out x In row-major weight matrix.
	W []float64 `msgpack:"w"`
	B []float64 `msgpack:"b"`
}

// Embedding is a categorical embedding table.
type Embedding struct {
	NumValues int       `msgpack:"num_values"`
	Dim       int       `msgpack:"dim"`
	Table     []float64 `msgpack:"table"`
}

// Network is a trained multi-layer perceptron.
type Network struct {
	Task       Task        `msgpack:"task"`
	DenseWidth int         `msgpack:"dense_width"`
	Embeddings []Embedding `msgpack:"embeddings"`
	Layers     []Layer     `msgpack:"layers"`
	TargetMean float64     `msgpack:"target_mean"`
	TargetStd  float64     `msgpack:"target_std"`
	// Epochs is the number of epochs of the retained weights.
	Epochs int `msgpack:"epochs"`
}

func embeddingDim(cfg Config, numValues int) int {
	if cfg.EmbeddingDim > 0 {
		return cfg.EmbeddingDim
	}
	// Rule of thumb of fast.ai, capped.
	dim := int(math.Round(1.6 * math.Pow(float64(numValues), 0.56)))
	if dim > 32 {
		dim = 32
	}
	if dim < 2 {
		dim = 2
	}
	return dim
}

func newNetwork(cfg Config, task Task, denseWidth int, embeddingSizes []int, numOutputs int, rng *rand.Rand) *Network {
	n := &Network{Task: task, DenseWidth: denseWidth, TargetStd: 1}
	inputWidth := denseWidth
	for _, numValues := range embeddingSizes {
		dim := embeddingDim(cfg, numValues)
		e := Embedding{NumValues: numValues, Dim: dim, Table: make([]float64, numValues*dim)}
		for i := range e.Table {
			e.Table[i] = 0.1 * rng.NormFloat64()
		}
		n.Embeddings = append(n.Embeddings, e)
		inputWidth += dim
	}
	sizes := append(append([]int{inputWidth}, cfg.Hidden...), numOutputs)
	for l := 0; l+1 < len(sizes); l++ {
		layer := Layer{In: sizes[l], Out: sizes[l+1], W: make([]float64, sizes[l]*sizes[l+1]), B: make([]float64, sizes[l+1])}
		scale := math.Sqrt(2 / float64(max(1, layer.In)))
		if l+2 == len(sizes) {
			scale = math.Sqrt(1 / float64(max(1, layer.In)))
		}
		for i := range layer.W {
			layer.W[i] = scale * rng.NormFloat64()
		}
		n.Layers = append(n.Layers, layer)
	}
	return n
}

// NumOutputs is the dimension of the output layer.
func (n *Network) NumOutputs() int {
	return n.Layers[len(n.Layers)-1].Out
}

func (n *Network) inputWidth() int {
	return n.Layers[0].In
}

// workspace holds the per-example buffers of the forward and backward passes.
type workspace struct {
	acts   [][]float64
	deltas [][]float64
}

func (n *Network) newWorkspace() *workspace {
	w := &workspace{acts: make([][]float64, len(n.Layers)+1), deltas: make([][]float64, len(n.Layers)+1)}
	w.acts[0] = make([]float64, n.inputWidth())
	w.deltas[0] = make([]float64, n.inputWidth())
	for l, layer := range n.Layers {
		w.acts[l+1] = make([]float64, layer.Out)
		w.deltas[l+1] = make([]float64, layer.Out)
	}
	return w
}

// forward computes the output logits of an example into ws.acts[last].
func (n *Network) forward(in Input, row int, ws *workspace) []float64 {
	x := ws.acts[0]
	offset := 0
	if in.Dense != nil {
		copy(x, in.Dense[row][:n.DenseWidth])
		offset = n.DenseWidth
	}
	for e, emb := range n.Embeddings {
		v := int(in.Cats[row][e])
		if v < 0 || v >= emb.NumValues {
			v = 0
		}
		copy(x[offset:offset+emb.Dim], emb.Table[v*emb.Dim:(v+1)*emb.Dim])
		offset += emb.Dim
	}
	for l, layer := range n.Layers {
		src, dst := ws.acts[l], ws.acts[l+1]
		last := l+1 == len(n.Layers)
		for o := 0; o < layer.Out; o++ {
			sum := layer.B[o]
			w := layer.W[o*layer.In : (o+1)*layer.In]
			for i, a := range src {
				sum += w[i] * a
			}
			if !last && sum < 0 {
				sum = 0
			}
			dst[o] = sum
		}
	}
	return ws.acts[len(n.Layers)]
}

func softmax(logits []float64, dst []float64) {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}
	sum := 0.0
	for i, v := range logits {
		dst[i] = math.Exp(v - maxLogit)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// Predict computes the predictions of the network: class probabilities for classification,
// and the target value for regression.
func (n *Network) Predict(in Input) [][]float64 {
	ws := n.newWorkspace()
	numRows := in.NumRows()
	preds := make([][]float64, numRows)
	for r := 0; r < numRows; r++ {
		out := n.forward(in, r, ws)
		pred := make([]float64, len(out))
		if n.Task == Classification {
			softmax(out, pred)
		} else {
			pred[0] = out[0]*n.TargetStd + n.TargetMean
		}
		preds[r] = pred
	}
	return preds
}

// loss is the mean loss of the network on a dataset, in the training scale.
func (n *Network) loss(in Input, target Target) float64 {
	ws := n.newWorkspace()
	numRows := in.NumRows()
	probs := make([]float64, n.NumOutputs())
	total := 0.0
	for r := 0; r < numRows; r++ {
		out := n.forward(in, r, ws)
		if n.Task == Classification {
			softmax(out, probs)
			total -= math.Log(math.Max(probs[target.Labels[r]], 1e-15))
		} else {
			diff := out[0] - (target.Values[r]-n.TargetMean)/n.TargetStd
			total += diff * diff
		}
	}
	return total / float64(max(1, numRows))
}

// param is a trainable tensor with its gradient and Adam moments.
type param struct {
	value, grad, m, v []float64
	decay             bool
}

func newParam(value []float64, decay bool) *param {
	return &param{value: value, grad: make([]float64, len(value)), m: make([]float64, len(value)), v: make([]float64, len(value)), decay: decay}
}

func (n *Network) params() (layerW, layerB, tables []*param) {
	for l := range n.Layers {
		layerW = append(layerW, newParam(n.Layers[l].W, true))
		layerB = append(layerB, newParam(n.Layers[l].B, false))
	}
	for e := range n.Embeddings {
		tables = append(tables, newParam(n.Embeddings[e].Table, false))
	}
	return
}

// backward accumulates the gradients of one example, given the output error in
// ws.deltas[last].
func (n *Network) backward(in Input, row int, ws *workspace, gW, gB, gTables []*param) {
	for l := len(n.Layers) - 1; l >= 0; l-- {
		layer := &n.Layers[l]
		delta := ws.deltas[l+1]
		src := ws.acts[l]
		gw, gb := gW[l].grad, gB[l].grad
		prev := ws.deltas[l]
		for i := range prev {
			prev[i] = 0
		}
		for o := 0; o < layer.Out; o++ {
			d := delta[o]
			if d == 0 {
				continue
			}
			gb[o] += d
			w := layer.W[o*layer.In : (o+1)*layer.In]
			g := gw[o*layer.In : (o+1)*layer.In]
			for i, a := range src {
				g[i] += d * a
				prev[i] += d * w[i]
			}
		}
		if l > 0 {
			for i, a := range src {
				if a <= 0 {
					prev[i] = 0
				}
			}
		}
	}
	offset := n.DenseWidth
	inputDelta := ws.deltas[0]
	for e, emb := range n.Embeddings {
		v := int(in.Cats[row][e])
		if v < 0 || v >= emb.NumValues {
			v = 0
		}
		g := gTables[e].grad[v*emb.Dim : (v+1)*emb.Dim]
		for k := range g {
			g[k] += inputDelta[offset+k]
		}
		offset += emb.Dim
	}
}

type snapshot struct {
	layers [][]float64
	tables [][]float64
}

func (n *Network) snapshot() snapshot {
	var s snapshot
	for _, l := range n.Layers {
		s.layers = append(s.layers, append(append([]float64{}, l.W...), l.B...))
	}
	for _, e := range n.Embeddings {
		s.tables = append(s.tables, append([]float64{}, e.Table...))
	}
	return s
}

func (n *Network) restore(s snapshot) {
	for l := range n.Layers {
		copy(n.Layers[l].W, s.layers[l][:len(n.Layers[l].W)])
		copy(n.Layers[l].B, s.layers[l][len(n.Layers[l].W):])
	}
	for e := range n.Embeddings {
		copy(n.Embeddings[e].Table, s.tables[e])
	}
}

// minStepsPerEpoch is the number of minibatches per epoch below which the batch size is
// reduced on small training sets.
const minStepsPerEpoch = 8

// batchSize is the minibatch size used on "numRows" training rows. Defaults to 128, and is
// reduced (down to 16) so small datasets get several optimizer steps per epoch.
func batchSize(requested, numRows int) int {
	if requested <= 0 {
		requested = 128
	}
	return min(requested, max(16, numRows/minStepsPerEpoch))
}

// Train trains a network. "embeddingSizes" is the dictionary size of each column of
// Input.Cats. For classification, "numOutputs" is the number of classes.
//
// The weights of the epoch with the best validation loss are kept. If the context expires
// after at least one epoch, the training stops early and returns the best network so far.
func Train(ctx context.Context, cfg Config, task Task, numOutputs int, embeddingSizes []int,
	train Input, trainTarget Target, valid *Input, validTarget Target) (*Network, error) {

	numRows := train.NumRows()
	if numRows == 0 {
		return nil, fmt.Errorf("mlp: empty training set")
	}
	cfg.BatchSize = batchSize(cfg.BatchSize, numRows)
	if cfg.Epochs <= 0 {
		cfg.Epochs = 100
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	if cfg.Patience <= 0 {
		cfg.Patience = 10
	}
	denseWidth := 0
	if train.Dense != nil {
		denseWidth = len(train.Dense[0])
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := newNetwork(cfg, task, denseWidth, embeddingSizes, numOutputs, rng)
	if task == Regression {
		mean, std := meanStd(trainTarget.Values)
		n.TargetMean, n.TargetStd = mean, std
	}

	gW, gB, gTables := n.params()
	all := append(append(append([]*param{}, gW...), gB...), gTables...)
	ws := n.newWorkspace()
	probs := make([]float64, numOutputs)

	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	step := 0
	bestLoss := math.Inf(1)
	var best snapshot
	bestEpoch := 0
	order := rng.Perm(numRows)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			if epoch == 1 {
				return nil, err
			}
			break
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for begin := 0; begin < numRows; begin += cfg.BatchSize {
			end := min(begin+cfg.BatchSize, numRows)
			for _, p := range all {
				for i := range p.grad {
					p.grad[i] = 0
				}
			}
			for _, row := range order[begin:end] {
				out := n.forward(train, row, ws)
				delta := ws.deltas[len(n.Layers)]
				if task == Classification {
					softmax(out, probs)
					copy(delta, probs)
					delta[trainTarget.Labels[row]] -= 1
				} else {
					delta[0] = out[0] - (trainTarget.Values[row]-n.TargetMean)/n.TargetStd
				}
				n.backward(train, row, ws, gW, gB, gTables)
			}

			step++
			batch := float64(end - begin)
			correction := math.Sqrt(1-math.Pow(beta2, float64(step))) / (1 - math.Pow(beta1, float64(step)))
			for _, p := range all {
				for i, g := range p.grad {
					g /= batch
					p.m[i] = beta1*p.m[i] + (1-beta1)*g
					p.v[i] = beta2*p.v[i] + (1-beta2)*g*g
					update := cfg.LearningRate * correction * p.m[i] / (math.Sqrt(p.v[i]) + eps)
					if p.decay {
						update += cfg.LearningRate * cfg.WeightDecay * p.value[i]
					}
					p.value[i] -= update
				}
			}
		}

		var loss float64
		if valid != nil && valid.NumRows() > 0 {
			loss = n.loss(*valid, validTarget)
		} else {
			loss = n.loss(train, trainTarget)
		}
		if math.IsNaN(loss) {
			return nil, errors.New("mlp: the training diverged")
		}
		if loss < bestLoss {
			bestLoss = loss
			best = n.snapshot()
			bestEpoch = epoch
		} else if epoch-bestEpoch >= cfg.Patience {
			break
		}
	}
	if bestEpoch == 0 {
		return nil, errors.New("mlp: no epoch completed")
	}
	n.restore(best)
	n.Epochs = bestEpoch
	return n, nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	sum, sumSq := 0.0, 0.0
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(len(values))
	variance := sumSq/float64(len(values)) - mean*mean
	if variance <= 1e-12 {
		return mean, 1
	}
	return mean, math.Sqrt(variance)
}
