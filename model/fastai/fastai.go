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

// Package fastai defines the multi-layer perceptron with learned embeddings of the
// categorical features.
package fastai

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "FASTAI"

// Spec describes the embedding network model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "NeuralNetFastAI",
	Priority: 50,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural},
	Defaults: model.Hyperparameters{
		"layers":            []int{200, 100},
		"learning_rate":     1e-2,
		"num_epochs":        30,
		"batch_size":        256,
		"weight_decay":      1e-2,
		"epochs_wo_improve": 8,
	},
	Builder: Create,
}

var options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{Numerical: true, Embedding: true}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		cfg := neural.NetworkConfig(hp, nil)
		cfg.Hidden = hp.Ints("layers", []int{200, 100})
		return cfg
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates an embedding network model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, options)
}
