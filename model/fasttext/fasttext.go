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

// Package fasttext defines a fastText style classifier over the columns of a dataset.
//
// Each row becomes a bag of "column=value" tokens: categorical values, numerical deciles and
// the words (and word bigrams) of the text columns. The tokens are hashed into a fixed number
// of buckets, the row is represented by the average embedding of its tokens, and a linear
// softmax layer predicts the class.
package fasttext

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "FASTTEXT"

const bodyFilename = "fasttext.msgpack"

const numQuantiles = 10

// Spec describes the FastText model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "FastText",
	Priority: 0,
	Problems: model.ClassificationProblems,
	Tags:     []string{model.TagText},
	Defaults: model.Hyperparameters{
		"lr":          0.5,
		"dim":         16,
		"epoch":       20,
		"word_ngrams": 2,
		"bucket":      8192,
	},
	Builder: Create,
}

// Column is a tokenized column.
type Column struct {
	Col  int                `msgpack:"col"`
	Type dataset.ColumnType `msgpack:"type"`
	// Borders of the deciles of a numerical column.
	Borders []float64 `msgpack:"borders,omitempty"`
}

// Body is the model specific data.
type Body struct {
	Columns    []Column `msgpack:"columns"`
	Buckets    int      `msgpack:"buckets"`
	Dim        int      `msgpack:"dim"`
	WordNgrams int      `msgpack:"word_ngrams"`
	// Embeddings is a Buckets x Dim row major matrix.
	Embeddings []float64 `msgpack:"embeddings"`
	// Output is a NumClasses x Dim row major matrix.
	Output []float64 `msgpack:"output"`
	Bias   []float64 `msgpack:"bias"`
}

// Model is a FastText model.
type Model struct {
	model.Base
	Body *Body
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a FastText model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

func deciles(values []float64) []float64 {
	var sorted []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)
	var borders []float64
	for q := 1; q < numQuantiles; q++ {
		b := sorted[q*(len(sorted)-1)/numQuantiles]
		if len(borders) == 0 || b > borders[len(borders)-1] {
			borders = append(borders, b)
		}
	}
	return borders
}

// Tokens returns the tokens of a row.
func (b *Body) Tokens(spec *dataset.DataSpec, ds *dataset.Dataset, row int) []string {
	var tokens []string
	for _, c := range b.Columns {
		name := spec.Columns[c.Col].Name
		switch c.Type {
		case dataset.Numerical:
			v := ds.Numerical(c.Col)[row]
			if math.IsNaN(v) {
				tokens = append(tokens, name+"=NA")
				continue
			}
			bin := sort.SearchFloat64s(c.Borders, v)
			tokens = append(tokens, name+"=q"+strconv.Itoa(bin))
		case dataset.Categorical:
			v := ds.Categorical(c.Col)[row]
			if v == dataset.OutOfVocabulary {
				tokens = append(tokens, name+"=NA")
				continue
			}
			tokens = append(tokens, name+"="+spec.Columns[c.Col].Categorical.Items[v])
		case dataset.Text:
			words := encoding.Tokenize(ds.Strings(c.Col)[row])
			for i, w := range words {
				tokens = append(tokens, name+":"+w)
				if b.WordNgrams >= 2 && i > 0 {
					tokens = append(tokens, name+":"+words[i-1]+"_"+w)
				}
			}
		}
	}
	return tokens
}

func (b *Body) ids(spec *dataset.DataSpec, ds *dataset.Dataset) [][]int {
	ids := make([][]int, ds.NumRows())
	for r := range ids {
		tokens := b.Tokens(spec, ds, r)
		row := make([]int, len(tokens))
		for i, t := range tokens {
			row[i] = encoding.Hash(t, b.Buckets)
		}
		ids[r] = row
	}
	return ids
}

// hidden computes the average embedding of the tokens.
func (b *Body) hidden(ids []int, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		e := b.Embeddings[id*b.Dim : (id+1)*b.Dim]
		for i, v := range e {
			dst[i] += v
		}
	}
	scale := 1 / float64(len(ids))
	for i := range dst {
		dst[i] *= scale
	}
}

// output computes the class probabilities from the hidden representation.
func (b *Body) output(h []float64, dst []float64) {
	maxLogit := math.Inf(-1)
	for c := range dst {
		logit := b.Bias[c]
		w := b.Output[c*b.Dim : (c+1)*b.Dim]
		for i, v := range h {
			logit += w[i] * v
		}
		dst[c] = logit
		maxLogit = math.Max(maxLogit, logit)
	}
	sum := 0.0
	for c := range dst {
		dst[c] = math.Exp(dst[c] - maxLogit)
		sum += dst[c]
	}
	for c := range dst {
		dst[c] /= sum
	}
}

// Fit trains the embeddings and the output layer with stochastic gradient descent and a
// linearly decaying learning rate.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	if err := me.CheckProblem(model.ClassificationProblems...); err != nil {
		return err
	}
	hp := me.Hyperparameters()
	spec := me.Dataspec()
	body := &Body{
		Buckets:    hp.Int("bucket", 8192),
		Dim:        hp.Int("dim", 16),
		WordNgrams: hp.Int("word_ngrams", 2),
	}
	if body.Buckets <= 0 || body.Dim <= 0 {
		return fmt.Errorf("%s: bucket and dim should be positive", me.Name())
	}
	for _, col := range me.Header().InputFeatures {
		c := Column{Col: col, Type: spec.Columns[col].Type}
		switch c.Type {
		case dataset.Numerical:
			c.Borders = deciles(in.Train.Numerical(col))
		case dataset.Image:
			continue
		}
		body.Columns = append(body.Columns, c)
	}
	if len(body.Columns) == 0 {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}

	train := in.Train.DropMissingLabels()
	numClasses := me.Header().NumOutputs()
	rng := rand.New(rand.NewSource(in.Seed))
	body.Embeddings = make([]float64, body.Buckets*body.Dim)
	for i := range body.Embeddings {
		body.Embeddings[i] = (rng.Float64()*2 - 1) / float64(body.Dim)
	}
	body.Output = make([]float64, numClasses*body.Dim)
	body.Bias = make([]float64, numClasses)

	ids := body.ids(spec, train)
	labels := train.Labels()
	epochs := hp.Int("epoch", 20)
	lr := hp.Float("lr", 0.5)
	h := make([]float64, body.Dim)
	gradH := make([]float64, body.Dim)
	probs := make([]float64, numClasses)
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	totalSteps := float64(epochs * len(ids))
	step := 0
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			if epoch == 0 {
				return err
			}
			break
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, r := range order {
			rate := lr * (1 - float64(step)/totalSteps)
			step++
			if len(ids[r]) == 0 {
				continue
			}
			body.hidden(ids[r], h)
			body.output(h, probs)
			for i := range gradH {
				gradH[i] = 0
			}
			for c := range probs {
				g := probs[c]
				if c == labels[r] {
					g--
				}
				w := body.Output[c*body.Dim : (c+1)*body.Dim]
				for i := range w {
					gradH[i] += g * w[i]
					w[i] -= rate * g * h[i]
				}
				body.Bias[c] -= rate * g
			}
			scale := rate / float64(len(ids[r]))
			for _, id := range ids[r] {
				e := body.Embeddings[id*body.Dim : (id+1)*body.Dim]
				for i := range e {
					e[i] -= scale * gradH[i]
				}
			}
		}
	}
	me.Body = body
	return nil
}

// PredictProba computes the class probabilities.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	ids := me.Body.ids(me.Dataspec(), ds)
	h := make([]float64, me.Body.Dim)
	preds := make([][]float64, len(ids))
	for r := range preds {
		me.Body.hidden(ids[r], h)
		preds[r] = make([]float64, len(me.Body.Bias))
		me.Body.output(h, preds[r])
	}
	return preds, nil
}

// SaveSpecific saves the embeddings and the output layer.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the embeddings and the output layer.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
