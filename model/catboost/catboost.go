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

// Package catboost defines a gradient boosting model of oblivious trees. Numerical features are
// quantized on borders, and categorical features are converted into numerical features with
// ordered target statistics.
package catboost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "CAT"

const bodyFilename = "catboost.msgpack"

// Spec describes the CatBoost style model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "CatBoost",
	Priority: 70,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree},
	Defaults: model.Hyperparameters{
		"iterations":            200,
		"learning_rate":         0.1,
		"depth":                 6,
		"l2_leaf_reg":           3.0,
		"border_count":          32,
		"early_stopping_rounds": 20,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// FloatFeature is an input of the trees: either a numerical column, or the target statistic
// of a categorical column for a class.
type FloatFeature struct {
	Col int `msgpack:"col"`
	// CtrIndex is the index in Body.Ctrs of the target statistic, or -1 for numerical columns.
	CtrIndex int `msgpack:"ctr_index"`
	// Class is the class of the target statistic (classification only).
	Class   int       `msgpack:"class"`
	Borders []float64 `msgpack:"borders"`
}

// Ctr contains the target statistics of the values of a categorical column.
type Ctr struct {
	Col int `msgpack:"col"`
	// Counts[v] is the number of training examples with the value v.
	Counts []float64 `msgpack:"counts"`
	// Sums[v][k] is the number of examples of class k (classification) or the sum of the labels
	// (regression, k=0) for the value v.
	Sums [][]float64 `msgpack:"sums"`
	// Priors[k] is the prior of the class k, or the mean label.
	Priors []float64 `msgpack:"priors"`
}

// Split is a level of an oblivious tree: examples with Feature >= Border go to the right.
type Split struct {
	Feature int     `msgpack:"feature"`
	Border  float64 `msgpack:"border"`
}

// ObliviousTree is a tree where all the nodes of a level share the same split. The leaf of an
// example is the binary number made of the split evaluations, the first split being the most
// significant bit.
type ObliviousTree struct {
	Splits []Split     `msgpack:"splits"`
	Leaves [][]float64 `msgpack:"leaves"`
}

// Body is the model specific data.
type Body struct {
	Loss               gbt.Loss        `msgpack:"loss"`
	NumOutputs         int             `msgpack:"num_outputs"`
	InitialPredictions []float64       `msgpack:"initial_predictions"`
	Features           []FloatFeature  `msgpack:"features"`
	Ctrs               []Ctr           `msgpack:"ctrs"`
	Trees              []ObliviousTree `msgpack:"trees"`
}

// Model is a CatBoost style model.
type Model struct {
	model.Base
	Body *Body
}

// Create creates a CatBoost model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

// ctrClasses is the list of classes for which target statistics are computed.
func ctrClasses(spec *dataset.DataSpec) []int {
	switch spec.Problem {
	case dataset.Binary:
		return []int{1}
	case dataset.Multiclass:
		classes := make([]int, spec.NumClasses())
		for i := range classes {
			classes[i] = i
		}
		return classes
	}
	return []int{0}
}

// buildFeatures defines the float features, computes the full target statistics, and returns
// the training values of the float features, with ordered target statistics.
func (b *Body) buildFeatures(ds *dataset.Dataset, columns []int, borderCount int, rng *rand.Rand) [][]float64 {
	numRows := ds.NumRows()
	classes := ctrClasses(ds.Spec)
	var labels []int
	var targets []float64
	if ds.Spec.Problem.IsClassification() {
		labels = ds.Labels()
	} else {
		targets = ds.Targets()
	}
	value := func(row, k int) float64 {
		if labels != nil {
			if labels[row] == k {
				return 1
			}
			return 0
		}
		return targets[row]
	}

	var values [][]float64
	for _, col := range columns {
		column := &ds.Spec.Columns[col]
		switch column.Type {
		case dataset.Numerical:
			v := make([]float64, numRows)
			copy(v, ds.Numerical(col))
			b.Features = append(b.Features, FloatFeature{Col: col, CtrIndex: -1})
			values = append(values, v)
		case dataset.Categorical:
			numValues := column.Categorical.NumValues()
			if numValues <= 1 {
				continue
			}
			ctr := Ctr{Col: col, Counts: make([]float64, numValues), Sums: make([][]float64, numValues), Priors: make([]float64, len(classes))}
			for v := range ctr.Sums {
				ctr.Sums[v] = make([]float64, len(classes))
			}
			for i, k := range classes {
				sum := 0.0
				for row := 0; row < numRows; row++ {
					sum += value(row, k)
				}
				ctr.Priors[i] = sum / float64(numRows)
			}

			// Ordered statistics: each example only sees the examples before it in a random
			// permutation.
			cats := ds.Categorical(col)
			ordered := make([][]float64, len(classes))
			for i := range ordered {
				ordered[i] = make([]float64, numRows)
			}
			for _, row := range rng.Perm(numRows) {
				v := cats[row]
				for i, k := range classes {
					ordered[i][row] = (ctr.Sums[v][i] + ctr.Priors[i]) / (ctr.Counts[v] + 1)
					ctr.Sums[v][i] += value(row, k)
				}
				ctr.Counts[v]++
			}
			ctrIndex := len(b.Ctrs)
			b.Ctrs = append(b.Ctrs, ctr)
			for i := range classes {
				b.Features = append(b.Features, FloatFeature{Col: col, CtrIndex: ctrIndex, Class: i})
				values = append(values, ordered[i])
			}
		}
	}
	for f := range b.Features {
		b.Features[f].Borders = quantileBorders(values[f], borderCount)
	}
	return values
}

// featureValues computes the float features of a dataset with the full target statistics.
func (b *Body) featureValues(ds *dataset.Dataset) [][]float64 {
	numRows := ds.NumRows()
	values := make([][]float64, len(b.Features))
	for f, feature := range b.Features {
		v := make([]float64, numRows)
		if feature.CtrIndex < 0 {
			copy(v, ds.Numerical(feature.Col))
		} else {
			ctr := &b.Ctrs[feature.CtrIndex]
			for row, cat := range ds.Categorical(feature.Col) {
				if int(cat) >= len(ctr.Counts) {
					cat = 0
				}
				v[row] = (ctr.Sums[cat][feature.Class] + ctr.Priors[feature.Class]) / (ctr.Counts[cat] + 1)
			}
		}
		values[f] = v
	}
	return values
}

// quantileBorders selects at most "count" borders splitting the values in groups of similar
// sizes. Missing values are ignored.
func quantileBorders(values []float64, count int) []float64 {
	sorted := make([]float64, 0, len(values))
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
	for i := 1; i <= count; i++ {
		idx := i * len(sorted) / (count + 1)
		if idx == 0 || idx >= len(sorted) {
			continue
		}
		lo, hi := sorted[idx-1], sorted[idx]
		if lo == hi {
			continue
		}
		border := lo + (hi-lo)/2
		if len(borders) == 0 || border > borders[len(borders)-1] {
			borders = append(borders, border)
		}
	}
	return borders
}

// binarize computes the bin of each value: the number of borders lower or equal to the
// value. Missing values are in the first bin.
func binarize(values []float64, borders []float64) []uint8 {
	bins := make([]uint8, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		bins[i] = uint8(sort.Search(len(borders), func(j int) bool { return borders[j] > v }))
	}
	return bins
}

func (t *ObliviousTree) leaf(values [][]float64, row int) int {
	leaf := 0
	for _, s := range t.Splits {
		leaf <<= 1
		if v := values[s.Feature][row]; !math.IsNaN(v) && v >= s.Border {
			leaf |= 1
		}
	}
	return leaf
}

// Fit trains the model.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	in = in.Labeled()
	hp := me.Hyperparameters()
	numIters := hp.Int("iterations", 200)
	shrinkage := hp.Float("learning_rate", 0.1)
	depth := hp.Int("depth", 6)
	lambda := hp.Float("l2_leaf_reg", 3)
	borderCount := min(254, hp.Int("border_count", 32))
	earlyStopping := hp.Int("early_stopping_rounds", 20)
	if numIters <= 0 || depth <= 0 || depth > 16 || borderCount <= 0 {
		return fmt.Errorf("%s: invalid hyperparameters", me.Name())
	}

	rng := rand.New(rand.NewSource(in.Seed))
	body := &Body{Loss: gbt.LossFor(me.Header().Problem), NumOutputs: 1}
	if body.Loss == gbt.MultinomialLogLikelihood {
		body.NumOutputs = in.Train.Spec.NumClasses()
	}
	trainValues := body.buildFeatures(in.Train, me.Header().InputFeatures, borderCount, rng)
	if len(body.Features) == 0 {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	bins := make([][]uint8, len(body.Features))
	for f := range bins {
		bins[f] = binarize(trainValues[f], body.Features[f].Borders)
	}

	loss := gbt.NewLossFunction(body.Loss, in.Train)
	body.InitialPredictions = loss.InitialPredictions()
	numRows := in.Train.NumRows()
	raw := make([][]float64, numRows)
	for i := range raw {
		raw[i] = append([]float64(nil), body.InitialPredictions...)
	}

	var validLoss *gbt.LossFunction
	var validValues, validRaw [][]float64
	if in.Validation != nil && in.Validation.NumRows() > 0 {
		validLoss = gbt.NewLossFunction(body.Loss, in.Validation)
		validValues = body.featureValues(in.Validation)
		validRaw = make([][]float64, in.Validation.NumRows())
		for i := range validRaw {
			validRaw[i] = append([]float64(nil), body.InitialPredictions...)
		}
	}

	K := body.NumOutputs
	g := make([][]float64, K)
	h := make([][]float64, K)
	for k := range g {
		g[k] = make([]float64, numRows)
		h[k] = make([]float64, numRows)
	}
	leafIdx := make([]int, numRows)

	bestIter, bestLoss := 0, math.Inf(1)
	for iter := 1; iter <= numIters; iter++ {
		if err := ctx.Err(); err != nil {
			if iter == 1 || !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			break
		}
		for k := 0; k < K; k++ {
			loss.Gradients(raw, k, g[k], h[k])
		}
		tree := growOblivious(bins, body.Features, g, h, lambda, depth, leafIdx)
		for leaf := range tree.Leaves {
			for k := range tree.Leaves[leaf] {
				tree.Leaves[leaf][k] *= shrinkage
			}
		}
		body.Trees = append(body.Trees, tree)
		for row := range raw {
			for k, v := range tree.Leaves[leafIdx[row]] {
				raw[row][k] += v
			}
		}
		if validLoss == nil {
			bestIter = iter
			continue
		}
		for row := range validRaw {
			for k, v := range tree.Leaves[tree.leaf(validValues, row)] {
				validRaw[row][k] += v
			}
		}
		if l := validLoss.Value(validRaw); l < bestLoss {
			bestLoss, bestIter = l, iter
		} else if earlyStopping > 0 && iter-bestIter >= earlyStopping {
			break
		}
	}
	body.Trees = body.Trees[:max(1, bestIter)]
	me.Body = body
	return nil
}

// growOblivious trains an oblivious tree on the gradients. On return, leafIdx contains the
// leaf of each training example.
func growOblivious(bins [][]uint8, features []FloatFeature, g, h [][]float64, lambda float64, depth int, leafIdx []int) ObliviousTree {
	K := len(g)
	for i := range leafIdx {
		leafIdx[i] = 0
	}
	tree := ObliviousTree{}
	numLeaves := 1
	for level := 0; level < depth; level++ {
		bestScore := math.Inf(-1)
		bestFeature, bestBin := -1, 0
		for f, featureBins := range bins {
			numBins := len(features[f].Borders) + 1
			if numBins < 2 {
				continue
			}
			// Histogram of the gradients per (leaf, bin, output).
			sumG := make([]float64, numLeaves*numBins*K)
			sumH := make([]float64, numLeaves*numBins*K)
			for row, bin := range featureBins {
				base := (leafIdx[row]*numBins + int(bin)) * K
				for k := 0; k < K; k++ {
					sumG[base+k] += g[k][row]
					sumH[base+k] += h[k][row]
				}
			}
			for b := 0; b+1 < numBins; b++ {
				score := 0.0
				for leaf := 0; leaf < numLeaves; leaf++ {
					for k := 0; k < K; k++ {
						var gl, hl, gr, hr float64
						for bin := 0; bin < numBins; bin++ {
							idx := (leaf*numBins+bin)*K + k
							if bin <= b {
								gl += sumG[idx]
								hl += sumH[idx]
							} else {
								gr += sumG[idx]
								hr += sumH[idx]
							}
						}
						score += gl*gl/(hl+lambda) + gr*gr/(hr+lambda)
					}
				}
				if score > bestScore {
					bestScore, bestFeature, bestBin = score, f, b
				}
			}
		}
		if bestFeature < 0 {
			break
		}
		tree.Splits = append(tree.Splits, Split{Feature: bestFeature, Border: features[bestFeature].Borders[bestBin]})
		for row, bin := range bins[bestFeature] {
			leafIdx[row] <<= 1
			if int(bin) > bestBin {
				leafIdx[row] |= 1
			}
		}
		numLeaves *= 2
	}

	sumG := make([]float64, numLeaves*K)
	sumH := make([]float64, numLeaves*K)
	for row, leaf := range leafIdx {
		for k := 0; k < K; k++ {
			sumG[leaf*K+k] += g[k][row]
			sumH[leaf*K+k] += h[k][row]
		}
	}
	tree.Leaves = make([][]float64, numLeaves)
	for leaf := range tree.Leaves {
		tree.Leaves[leaf] = make([]float64, K)
		for k := 0; k < K; k++ {
			tree.Leaves[leaf][k] = -sumG[leaf*K+k] / (sumH[leaf*K+k] + lambda)
		}
	}
	return tree
}

// PredictProba computes the predictions of the model.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	values := me.Body.featureValues(ds)
	preds := make([][]float64, ds.NumRows())
	for row := range preds {
		raw := append([]float64(nil), me.Body.InitialPredictions...)
		for t := range me.Body.Trees {
			tree := &me.Body.Trees[t]
			for k, v := range tree.Leaves[tree.leaf(values, row)] {
				raw[k] += v
			}
		}
		preds[row] = gbt.Activation(me.Body.Loss, raw)
	}
	return preds, nil
}

// SaveSpecific saves the model body.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the model body.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
