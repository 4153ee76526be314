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

// Package knn defines the k nearest neighbors model.
//
// The features are standardized (numerical) and one-hot encoded (categorical), and the
// distance is the euclidean distance in this space. The training examples are stored in the
// model.
package knn

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"

	// External dependencies, pls keep in this position in file.
	"golang.org/x/sync/errgroup"
	// End of external dependencies.//
	//
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "KNN"

const bodyFilename = "knn.msgpack"

// Weighting schemes of the neighbors.
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// Spec describes the k nearest neighbors model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "KNeighbors",
	Priority: 100,
	Problems: model.AllProblems,
	Defaults: model.Hyperparameters{
		"n_neighbors": 10,
		"weights":     WeightsUniform,
		"max_one_hot": 32,
	},
	Builder: Create,
}

// Body is the model specific data.
type Body struct {
	Encoder *encoding.Encoder `msgpack:"encoder"`
	K       int               `msgpack:"k"`
	Weights string            `msgpack:"weights"`
	// Examples are the encoded training examples.
	Examples [][]float64 `msgpack:"examples"`
	// Labels (classification) or Targets (regression) of the examples.
	Labels  []int     `msgpack:"labels,omitempty"`
	Targets []float64 `msgpack:"targets,omitempty"`
}

// Model is a k nearest neighbors model.
type Model struct {
	model.Base
	Body *Body
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a KNN model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

// Fit indexes the training examples with a known label.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	hp := me.Hyperparameters()
	encoder := encoding.New(me.Dataspec(), me.Header().InputFeatures, encoding.Options{
		Numerical: true, OneHot: true, MaxOneHot: hp.Int("max_one_hot", 32),
	})
	if encoder.Width == 0 {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	weights := hp.Str("weights", WeightsUniform)
	if weights != WeightsUniform && weights != WeightsDistance {
		return fmt.Errorf("%s: unknown weights %q", me.Name(), weights)
	}
	k := hp.Int("n_neighbors", 10)
	if k <= 0 {
		return fmt.Errorf("%s: n_neighbors should be positive", me.Name())
	}

	train := in.Train.DropMissingLabels()
	examples, err := encoder.Dense(train)
	if err != nil {
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	body := &Body{Encoder: encoder, K: min(k, len(examples)), Weights: weights, Examples: examples}
	if me.Header().Problem.IsClassification() {
		body.Labels = train.Labels()
	} else {
		body.Targets = train.Targets()
	}
	me.Body = body
	return ctx.Err()
}

type neighbor struct {
	index    int
	distance float64
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i, v := range a {
		d := v - b[i]
		sum += d * d
	}
	return sum
}

// neighbors returns the k nearest examples of "x", closest first. Ties are broken by
// training order.
func (me *Model) neighbors(x []float64) []neighbor {
	all := make([]neighbor, len(me.Body.Examples))
	for i, e := range me.Body.Examples {
		all[i] = neighbor{index: i, distance: squaredDistance(x, e)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	nn := all[:me.Body.K]
	for i := range nn {
		nn[i].distance = math.Sqrt(nn[i].distance)
	}
	return nn
}

func (me *Model) predictRow(x []float64, numOutputs int) []float64 {
	nn := me.neighbors(x)
	weights := make([]float64, len(nn))
	exact := false
	for _, n := range nn {
		if n.distance == 0 {
			exact = true
		}
	}
	for i, n := range nn {
		switch {
		case me.Body.Weights != WeightsDistance:
			weights[i] = 1
		case exact:
			// Exact matches take all the weight.
			if n.distance == 0 {
				weights[i] = 1
			}
		default:
			weights[i] = 1 / n.distance
		}
	}

	pred := make([]float64, numOutputs)
	sum := 0.0
	for i, n := range nn {
		if me.Body.Labels != nil {
			pred[me.Body.Labels[n.index]] += weights[i]
		} else {
			pred[0] += weights[i] * me.Body.Targets[n.index]
		}
		sum += weights[i]
	}
	if me.Body.Labels != nil {
		model.NormalizeDistribution(pred)
		return pred
	}
	pred[0] /= sum
	return pred
}

// PredictProba computes the weighted class distribution or mean target of the neighbors.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	xs, err := me.Body.Encoder.Dense(ds)
	if err != nil {
		return nil, err
	}
	numOutputs := me.Header().NumOutputs()
	preds := make([][]float64, len(xs))
	const blockSize = 256
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for begin := 0; begin < len(xs); begin += blockSize {
		end := min(begin+blockSize, len(xs))
		g.Go(model.Worker(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := begin; i < end; i++ {
				preds[i] = me.predictRow(xs[i], numOutputs)
			}
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preds, nil
}

// SaveSpecific saves the encoder and the training examples.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the encoder and the training examples.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
