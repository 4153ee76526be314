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

// Package model defines the "Model" interface and the registration mechanism of the model
// types.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/autotabular/tabular/dataset"
)

// Model is a generic trained model.
//
// Examples:
//
// // Load an existing model.
// model, err := io.LoadModel("/path/to/model")
// fmt.Println("My model is a %v.", model.Name())
// >> My model is a GBM.
type Model interface {

	// Registered key of the model type.
	Name() string

	// Header of the model.
	Header() *Header

	// Dataspec of the model.
	Dataspec() *dataset.DataSpec

	// PredictProba computes the predictions of the model on a dataset encoded with the model
	// dataspec. For classification, each row contains one probability per class. For
	// regression, each row contains a single value.
	PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error)
}

// Implementation interface needs to be implemented by Models (mostly internal).
// Not needed by those only using a model.
type Implementation interface {
	Model

	// Fit trains the model. The hyperparameters are read from the header.
	Fit(ctx context.Context, in *FitInput) error

	// SaveSpecific saves the model implementation specific data in a directory.
	SaveSpecific(modelPath string, prefix string) error

	// LoadSpecific loads the model implementation specific data from a directory.
	// Users are not expected to call this method directly. Instead, models
	// should be loaded with "model, err := io.LoadModel(path)".
	LoadSpecific(modelPath string, prefix string) error
}

// Builder creates an untrained model object.
type Builder func(header *Header, dataspec *dataset.DataSpec) Implementation

// RegisteredBuilders is the list of model builders, keyed by a unique `ModelKey` string per model type.
// Only register (change) this during the runtime initialization, in `init()` function.
// End users probably want to use `io.LoadModel()` to load models instead.
var RegisteredBuilders = make(map[string]Builder)

// Header contains the meta-data common to all the models.
type Header struct {
	// Key of the model type e.g. "GBM".
	Key string
	// Name of the model type e.g. "LightGBM".
	Name            string
	Problem         dataset.ProblemType
	Label           string
	InputFeatures   []int
	Classes         []string
	Hyperparameters Hyperparameters
	Metadata        Metadata
}

// Metadata is information about the training of a model.
type Metadata struct {
	ID         string
	Framework  string
	CreatedAt  time.Time
	FitSeconds float64
	// ValScore is the score of the model on the validation dataset, with ValMetric.
	ValScore  float64
	ValMetric string
}

// NumOutputs is the number of prediction columns.
func (h *Header) NumOutputs() int {
	if h.Problem.IsClassification() {
		return len(h.Classes)
	}
	return 1
}

// FitInput contains the data and resources given to a model for training.
type FitInput struct {
	Train *dataset.Dataset
	// Validation dataset used for early stopping. May be nil.
	Validation *dataset.Dataset
	Seed       int64
	// NumWorkers is the number of goroutines a model can use.
	NumWorkers int
	// BaseModels are the already trained models an ensemble is built upon.
	BaseModels []Model
	// External is the configuration of the external model backend.
	External ExternalBackend
}

// Labeled returns a copy of the input without the rows having a missing label.
func (in *FitInput) Labeled() *FitInput {
	out := *in
	out.Train = in.Train.DropMissingLabels()
	if in.Validation != nil {
		out.Validation = in.Validation.DropMissingLabels()
	}
	return &out
}

// ExternalBackend is the configuration of the service running the models that cannot run in
// process.
type ExternalBackend struct {
	Endpoint string
	Timeout  time.Duration
}

// Errors reported by the models. A model returning one of the "skip" errors is not a failure:
// it does not apply to the data or the environment.
var (
	// ErrNoValidFeatures is returned when none of the input features can be used by the model.
	ErrNoValidFeatures = errors.New("no valid features to train the model")
	// ErrNotSupported is returned when the model does not support the problem type.
	ErrNotSupported = errors.New("problem type not supported by the model")
	// ErrDependencyUnavailable is returned when a resource required by the model is missing.
	ErrDependencyUnavailable = errors.New("model dependency unavailable")
	// ErrNotFitted is returned when predicting with a model that was not trained.
	ErrNotFitted = errors.New("model not fitted")
	// ErrWorkerPanic is returned when a training or inference worker panicked.
	ErrWorkerPanic = errors.New("worker panic")
)

// Worker wraps a function run in a background goroutine (e.g. by an errgroup) so that a panic
// is returned as an error wrapping ErrWorkerPanic instead of crashing the process.
func Worker(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		return fn()
	}
}

// IsSkip tests if an error means that the model does not apply, instead of a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNoValidFeatures) || errors.Is(err, ErrNotSupported) ||
		errors.Is(err, ErrDependencyUnavailable)
}

// NormalizeDistribution clamps the values of a class distribution to [0, 1] and rescales them
// to sum to one, in place. A distribution without mass becomes uniform.
func NormalizeDistribution(values []float64) {
	sum := 0.
	for i, v := range values {
		if math.IsNaN(v) || v < 0 {
			v = 0
		}
		values[i] = min(v, 1)
		sum += values[i]
	}
	for i := range values {
		if sum == 0 {
			values[i] = 1 / float64(len(values))
		} else {
			values[i] /= sum
		}
	}
}
