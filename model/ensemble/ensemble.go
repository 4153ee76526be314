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

// Package ensemble defines the models combining the predictions of already trained models:
// the greedy weighted ensemble (ENS_WEIGHTED) and the simple weighted ensemble
// (SIMPLE_ENS_WEIGHTED).
//
// The base models are given in model.FitInput.BaseModels. When none are given, a dummy and a
// linear model are trained on the fly. The base models are saved in the "base_<i>"
// sub-directories of the ensemble.
package ensemble

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/metric"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/dummy"
	modelio "github.com/autotabular/tabular/model/io"
	"github.com/autotabular/tabular/model/linear"
)

// Keys of the ensemble models.
const (
	WeightedModelKey       = "ENS_WEIGHTED"
	SimpleWeightedModelKey = "SIMPLE_ENS_WEIGHTED"
)

const bodyFilename = "ensemble.msgpack"

// WeightedSpec describes the greedy weighted ensemble.
var WeightedSpec = model.Spec{
	Key:      WeightedModelKey,
	Name:     "WeightedEnsemble",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagEnsemble},
	Defaults: model.Hyperparameters{
		"ensemble_size": 25,
	},
	Builder: CreateWeighted,
}

// SimpleWeightedSpec describes the simple weighted ensemble.
var SimpleWeightedSpec = model.Spec{
	Key:      SimpleWeightedModelKey,
	Name:     "SimpleWeightedEnsemble",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagEnsemble},
	Builder:  CreateSimpleWeighted,
}

// DefaultBases are the models trained as base models when an ensemble is fitted alone.
var DefaultBases = []model.Spec{dummy.Spec, linear.Spec}

// Body is the model specific data.
type Body struct {
	// BaseKeys are the keys of the base models, in order.
	BaseKeys []string  `msgpack:"base_keys"`
	Weights  []float64 `msgpack:"weights"`
	// Metric optimized by the greedy selection.
	Metric string `msgpack:"metric,omitempty"`
}

// Model is an ensemble model.
type Model struct {
	model.Base
	Body  *Body
	Bases []model.Model
	// greedy is set for ENS_WEIGHTED.
	greedy bool
}

func init() {
	model.RegisteredBuilders[WeightedModelKey] = CreateWeighted
	model.RegisteredBuilders[SimpleWeightedModelKey] = CreateSimpleWeighted
}

// CreateWeighted creates a greedy weighted ensemble.
func CreateWeighted(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec), greedy: true}
}

// CreateSimpleWeighted creates a simple weighted ensemble.
func CreateSimpleWeighted(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

func (me *Model) fitDefaultBases(ctx context.Context, in *model.FitInput) ([]model.Model, error) {
	var bases []model.Model
	for _, spec := range DefaultBases {
		if !spec.Supports(me.Header().Problem) {
			continue
		}
		base := spec.New(in.Train, nil)
		if err := base.Fit(ctx, in); err != nil {
			if model.IsSkip(err) {
				continue
			}
			return nil, fmt.Errorf("%s: base model %s: %w", me.Name(), spec.Key, err)
		}
		bases = append(bases, base)
	}
	return bases, nil
}

// predict computes the predictions of a model on a dataset, re-encoding the dataset if the
// model uses another dataspec.
func predict(ctx context.Context, m model.Model, ds *dataset.Dataset) ([][]float64, error) {
	encoded, err := ds.Reencode(m.Dataspec())
	if err != nil {
		return nil, err
	}
	return m.PredictProba(ctx, encoded)
}

// Fit computes the weights of the base models.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	bases := in.BaseModels
	if len(bases) == 0 {
		var err error
		if bases, err = me.fitDefaultBases(ctx, in); err != nil {
			return err
		}
		if len(bases) == 0 {
			return fmt.Errorf("%s: no base model: %w", me.Name(), model.ErrNoValidFeatures)
		}
	}
	for _, base := range bases {
		if base.Header().Problem != me.Header().Problem || base.Header().NumOutputs() != me.Header().NumOutputs() {
			return fmt.Errorf("%s: base model %s does not solve the same problem", me.Name(), base.Name())
		}
	}

	body := &Body{}
	for _, base := range bases {
		body.BaseKeys = append(body.BaseKeys, base.Name())
	}
	hp := me.Hyperparameters()
	if me.greedy {
		ds := in.Validation
		if ds == nil || ds.NumRows() == 0 {
			ds = in.Train
		}
		preds := make([][][]float64, len(bases))
		for i, base := range bases {
			var err error
			if preds[i], err = predict(ctx, base, ds); err != nil {
				return fmt.Errorf("%s: base model %s: %w", me.Name(), base.Name(), err)
			}
		}
		m, err := selectionMetric(me.Header().Problem, hp.Str("metric", ""))
		if err != nil {
			return fmt.Errorf("%s: %w", me.Name(), err)
		}
		body.Metric = m.Name
		body.Weights = GreedySelection(m, metric.TruthOf(ds), preds, hp.Int("ensemble_size", 25))
	} else {
		weights := hp.Floats("weights", nil)
		if weights == nil {
			weights = make([]float64, len(bases))
			for i := range weights {
				weights[i] = 1
			}
		}
		if len(weights) != len(bases) {
			return fmt.Errorf("%s: got %d weights for %d base models", me.Name(), len(weights), len(bases))
		}
		normalized, err := normalize(weights)
		if err != nil {
			return fmt.Errorf("%s: %w", me.Name(), err)
		}
		body.Weights = normalized
	}
	me.Body = body
	me.Bases = bases
	return nil
}

// selectionMetric is the metric optimized by the greedy selection. Defaults to the log loss
// for classification, which is smoother than the accuracy.
func selectionMetric(problem dataset.ProblemType, name string) (metric.Metric, error) {
	if name == "" {
		if problem.IsClassification() {
			name = metric.LogLoss
		} else {
			name = metric.RMSE
		}
	}
	m, err := metric.Get(name)
	if err != nil {
		return metric.Metric{}, err
	}
	if !m.Supports(problem) {
		return metric.Metric{}, fmt.Errorf("metric %q does not apply to %s problems", name, problem)
	}
	return m, nil
}

func normalize(weights []float64) ([]float64, error) {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %v", w)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("the weights sum to zero")
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out, nil
}

// GreedySelection is the ensemble selection of Caruana et al.: the ensemble starts empty and,
// "size" times, the model whose addition (with replacement) gives the best score is added.
// Returns the fraction of times each model was selected. When several additions give the same
// score, the model already selected the most times is added.
func GreedySelection(m metric.Metric, truth metric.Truth, preds [][][]float64, size int) []float64 {
	size = max(1, size)
	numRows := len(preds[0])
	numOutputs := len(preds[0][0])
	counts := make([]int, len(preds))
	sum := make([][]float64, numRows)
	for r := range sum {
		sum[r] = make([]float64, numOutputs)
	}
	candidate := make([][]float64, numRows)
	for r := range candidate {
		candidate[r] = make([]float64, numOutputs)
	}

	for step := 1; step <= size; step++ {
		best, bestScore := -1, 0.0
		for i, p := range preds {
			for r := range candidate {
				for o := range candidate[r] {
					candidate[r][o] = (sum[r][o] + p[r][o]) / float64(step)
				}
			}
			score := m.ScoreTruth(truth, candidate)
			// Ties go to the model selected the most so far.
			if best < 0 || score > bestScore || (score == bestScore && counts[i] > counts[best]) {
				best, bestScore = i, score
			}
		}
		counts[best]++
		for r := range sum {
			for o := range sum[r] {
				sum[r][o] += preds[best][r][o]
			}
		}
	}
	weights := make([]float64, len(preds))
	for i, c := range counts {
		weights[i] = float64(c) / float64(size)
	}
	return weights
}

// PredictProba computes the weighted average of the base model predictions.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil || len(me.Bases) != len(me.Body.Weights) {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	numOutputs := me.Header().NumOutputs()
	out := make([][]float64, ds.NumRows())
	for r := range out {
		out[r] = make([]float64, numOutputs)
	}
	for i, base := range me.Bases {
		w := me.Body.Weights[i]
		if w == 0 {
			continue
		}
		preds, err := predict(ctx, base, ds)
		if err != nil {
			return nil, fmt.Errorf("%s: base model %s: %w", me.Name(), base.Name(), err)
		}
		for r, pred := range preds {
			for o, v := range pred {
				out[r][o] += w * v
			}
		}
	}
	if me.Header().Problem.IsClassification() {
		for _, pred := range out {
			model.NormalizeDistribution(pred)
		}
	}
	return out, nil
}

func baseDir(modelPath, prefix string, i int) string {
	return filepath.Join(modelPath, prefix+"base_"+strconv.Itoa(i))
}

// SaveSpecific saves the weights and the base models.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	for i, base := range me.Bases {
		impl, ok := base.(model.Implementation)
		if !ok {
			return fmt.Errorf("%s: base model %s cannot be saved", me.Name(), base.Name())
		}
		if err := modelio.SaveModel(baseDir(modelPath, prefix, i), impl); err != nil {
			return fmt.Errorf("%s: base model %s: %w", me.Name(), base.Name(), err)
		}
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the weights and the base models.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	if err := model.LoadBody(modelPath, prefix, bodyFilename, me.Body); err != nil {
		return err
	}
	if len(me.Body.BaseKeys) != len(me.Body.Weights) {
		return fmt.Errorf("%s: %d base models for %d weights", me.Name(), len(me.Body.BaseKeys), len(me.Body.Weights))
	}
	me.Bases = make([]model.Model, len(me.Body.BaseKeys))
	for i, key := range me.Body.BaseKeys {
		base, err := modelio.LoadModel(baseDir(modelPath, prefix, i))
		if err != nil {
			return fmt.Errorf("%s: base model %s: %w", me.Name(), key, err)
		}
		if base.Name() != key {
			return fmt.Errorf("%s: base model %d is a %s, expecting %s", me.Name(), i, base.Name(), key)
		}
		me.Bases[i] = base
	}
	return nil
}
