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

// Package extratrees defines the extremely randomized trees model. It shares the training
// and the format of the random forest, with random thresholds and without bootstrapping.
package extratrees

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/randomforest"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "XT"

// Spec describes the extra trees model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "ExtraTrees",
	Priority: 60,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree},
	Defaults: model.Hyperparameters{
		"n_estimators":      100,
		"max_depth":         0,
		"min_samples_leaf":  1,
		"max_features":      "sqrt",
		"bootstrap":         false,
		"random_thresholds": true,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates an extra trees model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return randomforest.Create(header, dataspec)
}
