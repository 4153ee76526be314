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

// Package fttransformer defines the FT-Transformer model. The model is trained by the external
// model service.
package fttransformer

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/remote"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "FT_TRANSFORMER"

// Spec describes the FT-Transformer model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "FTTransformer",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural, model.TagExternal},
	Defaults: model.Hyperparameters{
		"d_token":      192,
		"n_blocks":     3,
		"num_epochs":   100,
		"lr":           1e-4,
		"weight_decay": 1e-5,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a FT-Transformer model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return remote.New(header, dataspec, remote.Limits{})
}
