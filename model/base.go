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
	"fmt"

	"github.com/autotabular/tabular/dataset"
)

// Base implements the accessors shared by all the models. Model implementations embed it.
type Base struct {
	header   *Header
	dataspec *dataset.DataSpec
}

// NewBase creates a Base.
func NewBase(header *Header, dataspec *dataset.DataSpec) Base {
	return Base{header: header, dataspec: dataspec}
}

// Name of the model.
func (me *Base) Name() string {
	return me.header.Key
}

// Header of the model.
func (me *Base) Header() *Header {
	return me.header
}

// Dataspec of the model.
func (me *Base) Dataspec() *dataset.DataSpec {
	return me.dataspec
}

// Hyperparameters of the model.
func (me *Base) Hyperparameters() Hyperparameters {
	return me.header.Hyperparameters
}

// CheckProblem returns ErrNotSupported if the problem type of the model is not in "supported".
func (me *Base) CheckProblem(supported ...dataset.ProblemType) error {
	for _, p := range supported {
		if p == me.header.Problem {
			return nil
		}
	}
	return fmt.Errorf("%s on %s: %w", me.header.Key, me.header.Problem, ErrNotSupported)
}

// CheckInput validates the datasets given to a model.
func (me *Base) CheckInput(in *FitInput) error {
	if in.Train == nil || in.Train.NumRows() == 0 {
		return fmt.Errorf("%s: empty training dataset", me.header.Key)
	}
	if in.Train.Spec != me.dataspec {
		return fmt.Errorf("%s: the training dataset is not encoded with the model dataspec", me.header.Key)
	}
	if in.Validation != nil && in.Validation.Spec != me.dataspec {
		return fmt.Errorf("%s: the validation dataset is not encoded with the model dataspec", me.header.Key)
	}
	return nil
}

// CheckPredict validates a dataset given for predictions.
func (me *Base) CheckPredict(ds *dataset.Dataset) error {
	if ds.Spec != me.dataspec {
		return fmt.Errorf("%s: the dataset is not encoded with the model dataspec", me.header.Key)
	}
	return nil
}
