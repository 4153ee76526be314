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

// Package gradientboostedtrees defines the gradient boosted trees model.
package gradientboostedtrees

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "GBM"

// Filename containing the GBT header.
const headerFilename = "gradient_boosted_trees_header.msgpack"

// Loss is the loss optimized by the boosting.
type Loss string

// Supported losses.
const (
	BinomialLogLikelihood    Loss = "BINOMIAL_LOG_LIKELIHOOD"
	MultinomialLogLikelihood Loss = "MULTINOMIAL_LOG_LIKELIHOOD"
	SquaredError             Loss = "SQUARED_ERROR"
)

// Spec describes the leaf-wise gradient boosted trees model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "LightGBM",
	Priority: 90,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree},
	Defaults: model.Hyperparameters{
		"num_boost_round":       200,
		"learning_rate":         0.1,
		"num_leaves":            31,
		"max_depth":             0,
		"min_data_in_leaf":      10,
		"lambda_l2":             1.0,
		"min_gain_to_split":     0.0,
		"feature_fraction":      1.0,
		"bagging_fraction":      1.0,
		"early_stopping_rounds": 20,
	},
	Builder: Create,
}

// Params are the training parameters of the boosting.
type Params struct {
	NumTrees            int
	Shrinkage           float64
	MaxLeaves           int
	MaxDepth            int
	MinExamples         float64
	MinHessian          float64
	Lambda              float64
	MinGain             float64
	FeatureFraction     float64
	Subsample           float64
	EarlyStoppingRounds int
}

// ParamsParser reads the boosting parameters from the hyperparameters.
type ParamsParser func(hp model.Hyperparameters) Params

// LightGBMParams reads parameters named as in LightGBM.
func LightGBMParams(hp model.Hyperparameters) Params {
	return Params{
		NumTrees:            hp.Int("num_boost_round", 200),
		Shrinkage:           hp.Float("learning_rate", 0.1),
		MaxLeaves:           hp.Int("num_leaves", 31),
		MaxDepth:            hp.Int("max_depth", 0),
		MinExamples:         hp.Float("min_data_in_leaf", 10),
		MinHessian:          hp.Float("min_sum_hessian_in_leaf", 1e-3),
		Lambda:              hp.Float("lambda_l2", 1),
		MinGain:             hp.Float("min_gain_to_split", 0),
		FeatureFraction:     hp.Float("feature_fraction", 1),
		Subsample:           hp.Float("bagging_fraction", 1),
		EarlyStoppingRounds: hp.Int("early_stopping_rounds", 20),
	}
}

// Header is the gradient boosted trees specific meta-data.
type Header struct {
	NumTrees      int    `msgpack:"num_trees"`
	NodeFormat    string `msgpack:"node_format"`
	NumNodeShards int    `msgpack:"num_node_shards"`
	Loss          Loss   `msgpack:"loss"`
	// NumTreesPerIter is the number of trees trained at each iteration. Tree "i" contributes to
	// the output "i % NumTreesPerIter".
	NumTreesPerIter    int       `msgpack:"num_trees_per_iter"`
	InitialPredictions []float64 `msgpack:"initial_predictions"`
	// ValidationLoss is the loss of the retained iteration on the validation dataset.
	ValidationLoss float64 `msgpack:"validation_loss"`
}

// Model is a Gradient Boosted Trees model. The leaf values already include the shrinkage.
type Model struct {
	model.Base
	GbtHeader *Header
	Forest    *dt.Forest
	params    ParamsParser
}

func init() {
	// Register the constructor (loader) for GBTs.
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a GBT model with LightGBM style hyperparameters.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return New(header, dataspec, LightGBMParams)
}

// New creates a GBT model whose hyperparameters are read by "params".
func New(header *model.Header, dataspec *dataset.DataSpec, params ParamsParser) *Model {
	return &Model{Base: model.NewBase(header, dataspec), params: params}
}

// LossFor is the loss used for a problem type.
func LossFor(problem dataset.ProblemType) Loss {
	switch problem {
	case dataset.Binary:
		return BinomialLogLikelihood
	case dataset.Multiclass:
		return MultinomialLogLikelihood
	}
	return SquaredError
}

// LossFunction holds the labels of a dataset and computes the gradients of a loss.
type LossFunction struct {
	loss       Loss
	numOutputs int
	labels     []int
	targets    []float64
}

// NewLossFunction creates the loss function of the labels of a dataset.
func NewLossFunction(loss Loss, ds *dataset.Dataset) *LossFunction {
	s := &LossFunction{loss: loss, labels: ds.Labels(), targets: ds.Targets(), numOutputs: 1}
	if loss == MultinomialLogLikelihood {
		s.numOutputs = ds.Spec.NumClasses()
	}
	return s
}

// NumOutputs is the dimension of the raw predictions.
func (s *LossFunction) NumOutputs() int {
	return s.numOutputs
}

// InitialPredictions are the raw predictions minimizing the loss with a constant.
func (s *LossFunction) InitialPredictions() []float64 {
	numClasses := s.numOutputs
	switch s.loss {
	case SquaredError:
		sum := 0.0
		for _, v := range s.targets {
			sum += v
		}
		return []float64{sum / float64(len(s.targets))}
	case BinomialLogLikelihood:
		pos := 0.0
		for _, l := range s.labels {
			if l == 1 {
				pos++
			}
		}
		p := clamp((pos+0.5)/(float64(len(s.labels))+1), 1e-6, 1-1e-6)
		return []float64{math.Log(p / (1 - p))}
	}
	counts := make([]float64, numClasses)
	for _, l := range s.labels {
		counts[l]++
	}
	init := make([]float64, numClasses)
	for c := range init {
		init[c] = math.Log((counts[c] + 0.5) / (float64(len(s.labels)) + 0.5*float64(numClasses)))
	}
	return init
}

// Gradients computes the gradients and hessians of output "k" for all the rows.
func (s *LossFunction) Gradients(f [][]float64, k int, g, h []float64) {
	probs := make([]float64, s.numOutputs)
	for row := range f {
		switch s.loss {
		case SquaredError:
			g[row] = f[row][0] - s.targets[row]
			h[row] = 1
		case BinomialLogLikelihood:
			p := sigmoid(f[row][0])
			y := 0.0
			if s.labels[row] == 1 {
				y = 1
			}
			g[row] = p - y
			h[row] = math.Max(p*(1-p), 1e-16)
		default:
			softmax(f[row], probs)
			y := 0.0
			if s.labels[row] == k {
				y = 1
			}
			g[row] = probs[k] - y
			h[row] = math.Max(probs[k]*(1-probs[k]), 1e-16)
		}
	}
}

// Value is the mean loss of raw predictions.
func (s *LossFunction) Value(f [][]float64) float64 {
	total := 0.0
	probs := make([]float64, s.numOutputs)
	for row := range f {
		switch s.loss {
		case SquaredError:
			d := f[row][0] - s.targets[row]
			total += d * d
		case BinomialLogLikelihood:
			p := sigmoid(f[row][0])
			if s.labels[row] != 1 {
				p = 1 - p
			}
			total -= math.Log(math.Max(p, 1e-15))
		default:
			softmax(f[row], probs)
			total -= math.Log(math.Max(probs[s.labels[row]], 1e-15))
		}
	}
	return total / float64(max(1, len(f)))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
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

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func newRaw(numRows int, init []float64) [][]float64 {
	f := make([][]float64, numRows)
	for i := range f {
		f[i] = append([]float64(nil), init...)
	}
	return f
}

// Fit trains the model. With a validation dataset, the number of trees is selected by early
// stopping. If the context expires, the model keeps the iterations trained so far.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	in = in.Labeled()
	parse := me.params
	if parse == nil {
		parse = LightGBMParams
	}
	p := parse(me.Hyperparameters())
	if p.NumTrees <= 0 || p.Shrinkage <= 0 {
		return fmt.Errorf("%s: the number of trees and the learning rate should be positive", me.Name())
	}
	features := dt.NewFeatures(in.Train, me.Header().InputFeatures)
	if features == nil {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}

	loss := LossFor(me.Header().Problem)
	train := NewLossFunction(loss, in.Train)
	numOutputs := train.numOutputs
	init := train.InitialPredictions()
	trainRaw := newRaw(in.Train.NumRows(), init)

	var valid *LossFunction
	var validRaw [][]float64
	if in.Validation != nil && in.Validation.NumRows() > 0 {
		valid = NewLossFunction(loss, in.Validation)
		validRaw = newRaw(in.Validation.NumRows(), init)
	}

	numCandidates := 0
	if p.FeatureFraction > 0 && p.FeatureFraction < 1 {
		numCandidates = max(1, int(math.Round(p.FeatureFraction*float64(features.NumFeatures()))))
	}
	cfg := dt.Config{
		MaxDepth:             p.MaxDepth,
		MaxLeaves:            p.MaxLeaves,
		MinExamples:          p.MinExamples,
		MinHessian:           p.MinHessian,
		MinGain:              p.MinGain,
		NumCandidateFeatures: numCandidates,
	}

	rng := rand.New(rand.NewSource(in.Seed))
	numRows := in.Train.NumRows()
	allRows := make([]int, numRows)
	for i := range allRows {
		allRows[i] = i
	}
	g := make([][]float64, numOutputs)
	h := make([][]float64, numOutputs)
	for k := range g {
		g[k] = make([]float64, numRows)
		h[k] = make([]float64, numRows)
	}

	forest := &dt.Forest{}
	bestIter, bestLoss := 0, math.Inf(1)
	for iter := 1; iter <= p.NumTrees; iter++ {
		if err := ctx.Err(); err != nil {
			if iter == 1 || !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			break
		}
		rows := allRows
		if p.Subsample > 0 && p.Subsample < 1 {
			rows = nil
			for _, row := range allRows {
				if rng.Float64() < p.Subsample {
					rows = append(rows, row)
				}
			}
			if len(rows) == 0 {
				rows = allRows
			}
		}

		for k := 0; k < numOutputs; k++ {
			train.Gradients(trainRaw, k, g[k], h[k])
		}
		for k := 0; k < numOutputs; k++ {
			target := &dt.GradientTarget{Gradients: g[k], Hessians: h[k], Lambda: p.Lambda}
			tree := dt.Grow(features, target, rows, cfg, rng)
			tree.Root.Walk(func(n *dt.Node, _ int) {
				n.RawNode.Value[0] *= p.Shrinkage
			})
			forest.Trees = append(forest.Trees, tree)
			for row := range trainRaw {
				trainRaw[row][k] += tree.Leaf(in.Train, row).RawNode.Value[0]
			}
			for row := range validRaw {
				validRaw[row][k] += tree.Leaf(in.Validation, row).RawNode.Value[0]
			}
		}

		if valid == nil {
			bestIter = iter
			continue
		}
		if l := valid.Value(validRaw); l < bestLoss {
			bestLoss, bestIter = l, iter
		} else if p.EarlyStoppingRounds > 0 && iter-bestIter >= p.EarlyStoppingRounds {
			break
		}
	}
	if bestIter == 0 {
		bestIter = 1
	}
	forest.Trees = forest.Trees[:bestIter*numOutputs]

	me.Forest = forest
	me.GbtHeader = &Header{
		NumTrees:           len(forest.Trees),
		NodeFormat:         dt.DefaultNodeFormat,
		NumNodeShards:      1,
		Loss:               loss,
		NumTreesPerIter:    numOutputs,
		InitialPredictions: init,
		ValidationLoss:     bestLoss,
	}
	return nil
}

// RawPredictions computes the sum of the initial predictions and of the tree outputs (e.g.
// the logits for classification).
func (me *Model) RawPredictions(ds *dataset.Dataset) [][]float64 {
	raw := newRaw(ds.NumRows(), me.GbtHeader.InitialPredictions)
	for t, tree := range me.Forest.Trees {
		k := t % me.GbtHeader.NumTreesPerIter
		for row := range raw {
			raw[row][k] += tree.Leaf(ds, row).RawNode.Value[0]
		}
	}
	return raw
}

// Activation converts raw predictions into probabilities (classification) or values.
func Activation(loss Loss, raw []float64) []float64 {
	switch loss {
	case BinomialLogLikelihood:
		p := sigmoid(raw[0])
		return []float64{1 - p, p}
	case MultinomialLogLikelihood:
		probs := make([]float64, len(raw))
		softmax(raw, probs)
		return probs
	}
	return []float64{raw[0]}
}

// PredictProba computes the predictions of the model.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Forest == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	raw := me.RawPredictions(ds)
	preds := make([][]float64, len(raw))
	for i, r := range raw {
		preds[i] = Activation(me.GbtHeader.Loss, r)
	}
	return preds, nil
}

// SaveSpecific saves the GBT header and the forest.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Forest == nil {
		return model.ErrNotFitted
	}
	if err := model.SaveBody(modelPath, prefix, headerFilename, me.GbtHeader); err != nil {
		return err
	}
	return dt.SaveForest(filepath.Join(modelPath, prefix+dt.DefaultNodeFilename), me.GbtHeader.NodeFormat, me.Forest)
}

// LoadSpecific loads a model from disk.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {

	// Load the GBT specialized header.
	me.GbtHeader = &Header{}
	if err := model.LoadBody(modelPath, prefix, headerFilename, me.GbtHeader); err != nil {
		return err
	}

	// Load the forest structure.
	var err error
	me.Forest, err = dt.LoadForest(
		filepath.Join(modelPath, prefix+dt.DefaultNodeFilename),
		me.GbtHeader.NumNodeShards,
		me.GbtHeader.NodeFormat,
		me.GbtHeader.NumTrees)
	if err != nil {
		return err
	}

	if len(me.Forest.Trees) != me.GbtHeader.NumTrees {
		return fmt.Errorf("Wrong number of trees in the model")
	}
	if me.GbtHeader.NumTreesPerIter <= 0 {
		return fmt.Errorf("Invalid number of trees per iteration %d", me.GbtHeader.NumTreesPerIter)
	}
	return nil
}
