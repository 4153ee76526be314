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

// Package imagepredictor defines a neural network on the image columns. Images are read from
// the paths in the column and downsampled to small grayscale thumbnails. The model does not
// apply to datasets without image.
package imagepredictor

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "AG_IMAGE_NN"

// Spec describes the image model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "ImagePredictor",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural, model.TagImage},
	Defaults: model.Hyperparameters{
		"image_size":    16,
		"hidden_size":   []int{128},
		"learning_rate": 1e-3,
		"num_epochs":    30,
	},
	Builder: Create,
}

var options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{ImageSize: hp.Int("image_size", 16)}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		return neural.NetworkConfig(hp, []int{128})
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates an image model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, options)
}
