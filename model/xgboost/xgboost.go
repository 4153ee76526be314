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

// Package xgboost defines the depth-wise gradient boosted trees model, configured with the
// XGBoost hyperparameter names. It shares the format of the gradientboostedtrees package.
package xgboost

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "XGB"

// Spec describes the XGBoost style model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "XGBoost",
	Priority: 40,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree},
	Defaults: model.Hyperparameters{
		"n_estimators":          200,
		"learning_rate":         0.1,
		"max_depth":             6,
		"min_child_weight":      1.0,
		"reg_lambda":            1.0,
		"gamma":                 0.0,
		"subsample":             1.0,
		"colsample_bytree":      1.0,
		"early_stopping_rounds": 20,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Params reads parameters named as in XGBoost. Trees are grown depth-wise, without leaf limit.
func Params(hp model.Hyperparameters) gbt.Params {
	return gbt.Params{
		NumTrees:            hp.Int("n_estimators", 200),
		Shrinkage:           hp.Float("learning_rate", 0.1),
		MaxDepth:            hp.Int("max_depth", 6),
		MinExamples:         1,
		MinHessian:          hp.Float("min_child_weight", 1),
		Lambda:              hp.Float("reg_lambda", 1),
		MinGain:             hp.Float("gamma", 0),
		FeatureFraction:     hp.Float("colsample_bytree", 1),
		Subsample:           hp.Float("subsample", 1),
		EarlyStoppingRounds: hp.Int("early_stopping_rounds", 20),
	}
}

// Create creates a XGBoost style model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return gbt.New(header, dataspec, Params)
}
