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

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/autotabular/tabular/dataset"
)

// Spec describes a model type: its identifiers, the problems it supports, its default
// hyperparameters and how to build it.
type Spec struct {
	// Key is the unique identifier of the model type e.g. "GBM".
	Key string
	// Name is the display name e.g. "LightGBM".
	Name string
	// Priority orders the training of the models. Higher priority models are trained first.
	Priority int
	Problems []dataset.ProblemType
	Tags     []string
	Defaults Hyperparameters
	Builder  Builder
}

// Tags used by the canonical models.
const (
	TagTree          = "tree"
	TagNeural        = "neural"
	TagLinear        = "linear"
	TagExternal      = "external"
	TagEnsemble      = "ensemble"
	TagInterpretable = "interpretable"
	TagText          = "text"
	TagImage         = "image"
)

// AllProblems lists all the problem types.
var AllProblems = []dataset.ProblemType{dataset.Binary, dataset.Multiclass, dataset.Regression}

// ClassificationProblems lists the classification problem types.
var ClassificationProblems = []dataset.ProblemType{dataset.Binary, dataset.Multiclass}

// Supports tests if the model type supports a problem type.
func (s Spec) Supports(p dataset.ProblemType) bool {
	for _, q := range s.Problems {
		if p == q {
			return true
		}
	}
	return false
}

// HasTag tests if the model type has a tag.
func (s Spec) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NewHeader creates the header of a new model of this type for a training dataset.
func (s Spec) NewHeader(train *dataset.Dataset, hp Hyperparameters) *Header {
	spec := train.Spec
	return &Header{
		Key:             s.Key,
		Name:            s.Name,
		Problem:         spec.Problem,
		Label:           spec.LabelColumn().Name,
		InputFeatures:   spec.Features(),
		Classes:         spec.Classes(),
		Hyperparameters: Merge(s.Defaults, hp),
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Framework: "tabular",
			CreatedAt: time.Now().UTC(),
		},
	}
}

// New creates an untrained model of this type.
func (s Spec) New(train *dataset.Dataset, hp Hyperparameters) Implementation {
	return s.Builder(s.NewHeader(train, hp), train.Spec)
}
