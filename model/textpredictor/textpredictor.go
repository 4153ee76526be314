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

// Package textpredictor defines a neural network on the text columns. Texts are encoded as
// hashed bags of words and bigrams. The model does not apply to datasets without text.
package textpredictor

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "AG_TEXT_NN"

// Spec describes the text model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "TextPredictor",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural, model.TagText},
	Defaults: model.Hyperparameters{
		"num_buckets":   2048,
		"bigrams":       true,
		"hidden_size":   []int{64},
		"learning_rate": 3e-3,
		"num_epochs":    30,
	},
	Builder: Create,
}

var options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{TextBuckets: hp.Int("num_buckets", 2048), TextBigrams: hp.Bool("bigrams", true)}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		return neural.NetworkConfig(hp, []int{64})
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a text model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, options)
}
