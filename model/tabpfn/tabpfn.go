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

// Package tabpfn defines the TabPFN model: a pretrained transformer doing in-context learning
// on small classification datasets. The model runs on the external model service.
package tabpfn

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/remote"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "TABPFN"

// Limits of the pretrained network. Larger training sets are subsampled to MaxRows rows.
var Limits = remote.Limits{MaxRows: 1000, MaxFeatures: 100, MaxClasses: 10}

// Spec describes the TabPFN model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "TabPFN",
	Priority: 110,
	Problems: model.ClassificationProblems,
	Tags:     []string{model.TagNeural, model.TagExternal},
	Defaults: model.Hyperparameters{
		"N_ensemble_configurations": 8,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a TabPFN model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{remote.New(header, dataspec, Limits)}
}
