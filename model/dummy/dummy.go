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

// Package dummy defines a baseline model ignoring the input features: it predicts the class
// prior for classification and the mean label for regression.
package dummy

import (
	"context"
	"fmt"
	"math"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "DUMMY"

const bodyFilename = "dummy.msgpack"

// Spec describes the dummy model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "Dummy",
	Priority: 0,
	Problems: model.AllProblems,
	Builder:  Create,
}

// Body is the model specific data.
type Body struct {
	Prediction []float64 `msgpack:"prediction"`
}

// Model is a dummy model.
type Model struct {
	model.Base
	Body *Body
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a dummy model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

// Fit computes the label prior.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	prediction := make([]float64, me.Header().NumOutputs())
	total := 0.0
	if me.Header().Problem.IsClassification() {
		for _, l := range in.Train.Labels() {
			if l >= 0 {
				prediction[l]++
				total++
			}
		}
	} else {
		for _, v := range in.Train.Targets() {
			if !math.IsNaN(v) {
				prediction[0] += v
				total++
			}
		}
	}
	if total == 0 {
		return fmt.Errorf("%s: no labeled training example", me.Name())
	}
	for i := range prediction {
		prediction[i] /= total
	}
	me.Body = &Body{Prediction: prediction}
	return nil
}

// PredictProba returns the label prior for every row.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	preds := make([][]float64, ds.NumRows())
	for i := range preds {
		preds[i] = append([]float64(nil), me.Body.Prediction...)
	}
	return preds, nil
}

// SaveSpecific saves the prior.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the prior.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
