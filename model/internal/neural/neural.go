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

// Package neural implements the models made of an input encoder and a multi-layer perceptron.
// The model packages only define how the hyperparameters configure the encoder and the
// network.
package neural

import (
	"context"
	"fmt"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
)

const bodyFilename = "neural_network.msgpack"

// Options configure a neural model.
type Options struct {
	Encoding func(hp model.Hyperparameters) encoding.Options
	Network  func(hp model.Hyperparameters) mlp.Config
}

// Body is the model specific data.
type Body struct {
	Encoder *encoding.Encoder `msgpack:"encoder"`
	Network *mlp.Network      `msgpack:"network"`
}

// Model is a neural network model.
type Model struct {
	model.Base
	Body    *Body
	options Options
}

// New creates a neural model.
func New(header *model.Header, dataspec *dataset.DataSpec, options Options) *Model {
	return &Model{Base: model.NewBase(header, dataspec), options: options}
}

// NetworkConfig reads the common network hyperparameters.
func NetworkConfig(hp model.Hyperparameters, defaultHidden []int) mlp.Config {
	return mlp.Config{
		Hidden:       hp.Ints("hidden_size", defaultHidden),
		LearningRate: hp.Float("learning_rate", 3e-3),
		Epochs:       hp.Int("num_epochs", 50),
		BatchSize:    hp.Int("batch_size", 128),
		WeightDecay:  hp.Float("weight_decay", 1e-4),
		EmbeddingDim: hp.Int("embedding_size", 0),
		Patience:     hp.Int("epochs_wo_improve", 10),
	}
}

func (me *Model) encode(ds *dataset.Dataset) (mlp.Input, error) {
	dense, err := me.Body.Encoder.Dense(ds)
	if err != nil {
		return mlp.Input{}, err
	}
	in := mlp.Input{Dense: dense}
	if len(me.Body.Encoder.Embedded) > 0 {
		in.Cats = me.Body.Encoder.Categories(ds)
	}
	return in, nil
}

func target(ds *dataset.Dataset) mlp.Target {
	if ds.Spec.Problem.IsClassification() {
		return mlp.Target{Labels: ds.Labels()}
	}
	return mlp.Target{Values: ds.Targets()}
}

// Fit trains the network.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	in = in.Labeled()
	hp := me.Hyperparameters()
	encoder := encoding.New(me.Dataspec(), me.Header().InputFeatures, me.options.Encoding(hp))
	if encoder.Empty() {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	if err := encoder.FitImages(in.Train); err != nil {
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	me.Body = &Body{Encoder: encoder}
	train, err := me.encode(in.Train)
	if err != nil {
		me.Body = nil
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	var valid *mlp.Input
	var validTarget mlp.Target
	if in.Validation != nil && in.Validation.NumRows() > 0 {
		v, err := me.encode(in.Validation)
		if err != nil {
			me.Body = nil
			return fmt.Errorf("%s: %w", me.Name(), err)
		}
		valid, validTarget = &v, target(in.Validation)
	}

	cfg := me.options.Network(hp)
	cfg.Seed = in.Seed
	task := mlp.Regression
	if me.Header().Problem.IsClassification() {
		task = mlp.Classification
	}
	network, err := mlp.Train(ctx, cfg, task, me.Header().NumOutputs(), encoder.EmbeddingSizes(),
		train, target(in.Train), valid, validTarget)
	if err != nil {
		me.Body = nil
		return fmt.Errorf("%s: %w", me.Name(), err)
	}
	me.Body.Network = network
	return nil
}

// PredictProba computes the predictions of the network.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil || me.Body.Network == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	in, err := me.encode(ds)
	if err != nil {
		return nil, err
	}
	return me.Body.Network.Predict(in), nil
}

// SaveSpecific saves the encoder and the network.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the encoder and the network.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
