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

// Package tabularnn defines the multi-layer perceptron model on standardized numerical and
// one-hot categorical features.
package tabularnn

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "NN_TORCH"

// Spec describes the tabular neural network model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "NeuralNetTorch",
	Priority: 25,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural},
	Defaults: model.Hyperparameters{
		"hidden_size":       []int{128, 128},
		"learning_rate":     3e-3,
		"num_epochs":        50,
		"batch_size":        128,
		"weight_decay":      1e-4,
		"epochs_wo_improve": 10,
		"max_one_hot":       64,
	},
	Builder: Create,
}

var options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{Numerical: true, OneHot: true, MaxOneHot: hp.Int("max_one_hot", 64)}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		return neural.NetworkConfig(hp, []int{128, 128})
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a tabular neural network model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, options)
}
