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

// Package multimodal defines a neural network fusing all the column types: numerical features,
// categorical embeddings, hashed texts and image thumbnails.
package multimodal

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "AG_AUTOMM"

// Spec describes the multimodal model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "MultiModalPredictor",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural, model.TagText, model.TagImage},
	Defaults: model.Hyperparameters{
		"num_buckets":   1024,
		"image_size":    16,
		"hidden_size":   []int{128, 64},
		"learning_rate": 3e-3,
		"num_epochs":    40,
	},
	Builder: Create,
}

var options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{
			Numerical:   true,
			Embedding:   true,
			TextBuckets: hp.Int("num_buckets", 1024),
			TextBigrams: true,
			ImageSize:   hp.Int("image_size", 16),
		}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		return neural.NetworkConfig(hp, []int{128, 64})
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a multimodal model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, options)
}
