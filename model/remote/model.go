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

package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
)

// Limits are the data sizes supported by a remote model. Zero means unlimited.
type Limits struct {
	// MaxRows is the maximum number of training rows. Larger datasets are subsampled.
	MaxRows int
	// MaxFeatures is the maximum number of input features.
	MaxFeatures int
	// MaxClasses is the maximum number of classes.
	MaxClasses int
}

// Body is the model specific data.
type Body struct {
	ModelID  string        `msgpack:"model_id"`
	Endpoint string        `msgpack:"endpoint"`
	Timeout  time.Duration `msgpack:"timeout"`
}

// Model is a model living on the model service. Only its identifier is stored locally.
type Model struct {
	model.Base
	Body   *Body
	limits Limits
}

// New creates a remote model.
func New(header *model.Header, dataspec *dataset.DataSpec, limits Limits) *Model {
	return &Model{Base: model.NewBase(header, dataspec), limits: limits}
}

// CheckLimits returns model.ErrNotSupported if the data is too large for the model.
func (me *Model) CheckLimits() error {
	if n := len(me.Header().InputFeatures); me.limits.MaxFeatures > 0 && n > me.limits.MaxFeatures {
		return fmt.Errorf("%s supports at most %d features, got %d: %w", me.Name(), me.limits.MaxFeatures, n, model.ErrNotSupported)
	}
	if n := len(me.Header().Classes); me.limits.MaxClasses > 0 && n > me.limits.MaxClasses {
		return fmt.Errorf("%s supports at most %d classes, got %d: %w", me.Name(), me.limits.MaxClasses, n, model.ErrNotSupported)
	}
	return nil
}

// Fit sends the training data to the model service.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	if err := me.CheckLimits(); err != nil {
		return err
	}
	client, err := NewClient(in.External)
	if err != nil {
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	train := in.Train.DropMissingLabels()
	if me.limits.MaxRows > 0 {
		train = train.Subsample(me.limits.MaxRows, in.Seed)
	}
	features := me.Header().InputFeatures
	resp, err := client.Fit(ctx, &FitRequest{
		ModelKey:        me.Name(),
		ProblemType:     me.Header().Problem,
		Hyperparameters: me.Hyperparameters(),
		Columns:         Columns(me.Dataspec(), features),
		Rows:            Rows(train, features),
		Labels:          Labels(train),
		NumClasses:      len(me.Header().Classes),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	me.Body = &Body{ModelID: resp.ModelID, Endpoint: in.External.Endpoint, Timeout: in.External.Timeout}
	return nil
}

// PredictProba queries the model service.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	client, err := NewClient(model.ExternalBackend{Endpoint: me.Body.Endpoint, Timeout: me.Body.Timeout})
	if err != nil {
		return nil, err
	}
	resp, err := client.Predict(ctx, &PredictRequest{
		ModelID: me.Body.ModelID,
		Rows:    Rows(ds, me.Header().InputFeatures),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", me.Name(), err)
	}
	if len(resp.Probabilities) != ds.NumRows() {
		return nil, fmt.Errorf("%s: got %d predictions for %d rows", me.Name(), len(resp.Probabilities), ds.NumRows())
	}
	numOutputs := me.Header().NumOutputs()
	for i, pred := range resp.Probabilities {
		if len(pred) != numOutputs {
			return nil, fmt.Errorf("%s: prediction %d has %d values, expecting %d", me.Name(), i, len(pred), numOutputs)
		}
		for _, v := range pred {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%s: prediction %d is not finite", me.Name(), i)
			}
		}
	}
	return resp.Probabilities, nil
}

// SaveSpecific saves the identifier of the remote model.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the identifier of the remote model.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
