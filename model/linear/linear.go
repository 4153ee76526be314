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

// Package linear defines the L2 regularized linear model: multinomial logistic regression for
// classification and ridge regression for regression.
package linear

import (
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/encoding"
	"github.com/autotabular/tabular/model/internal/mlp"
	"github.com/autotabular/tabular/model/internal/neural"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "LR"

// Spec describes the linear model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "LinearModel",
	Priority: 30,
	Problems: model.AllProblems,
	Tags:     []string{model.TagLinear, model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"C":           1.0,
		"num_epochs":  100,
		"max_one_hot": 128,
	},
	Builder: Create,
}

// Options of the linear models. A network without hidden layer is a generalized linear model.
var Options = neural.Options{
	Encoding: func(hp model.Hyperparameters) encoding.Options {
		return encoding.Options{Numerical: true, OneHot: true, MaxOneHot: hp.Int("max_one_hot", 128)}
	},
	Network: func(hp model.Hyperparameters) mlp.Config {
		c := hp.Float("C", 1)
		if c <= 0 {
			c = 1
		}
		return mlp.Config{
			LearningRate: hp.Float("learning_rate", 1e-2),
			Epochs:       hp.Int("num_epochs", 100),
			BatchSize:    hp.Int("batch_size", 64),
			WeightDecay:  1e-2 / c,
			Patience:     hp.Int("epochs_wo_improve", 10),
		}
	},
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a linear model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return neural.New(header, dataspec, Options)
}
