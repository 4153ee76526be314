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

// Package tabpfnmix defines the TabPFNMix model, a TabPFN variant pretrained on a mixture of
// synthetic priors and fine-tuned on the training data. The model runs on the external model
// service.
package tabpfnmix

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/remote"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "TABPFNMIX"

// Limits of the pretrained network.
var Limits = remote.Limits{MaxClasses: 10}

// Spec describes the TabPFNMix model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "TabPFNMix",
	Priority: 45,
	Problems: model.AllProblems,
	Tags:     []string{model.TagNeural, model.TagExternal},
	Defaults: model.Hyperparameters{
		"n_ensembles":         1,
		"max_epochs":          0,
		"max_samples_query":   1024,
		"max_samples_support": 8196,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a TabPFNMix model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return remote.New(header, dataspec, Limits)
}
