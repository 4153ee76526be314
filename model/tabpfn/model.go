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

package tabpfn

import (
	"context"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/remote"
)

// Model is a TabPFN model. Only classification is supported.
type Model struct {
	*remote.Model
}

// Fit checks the problem type and trains the remote model.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckProblem(model.ClassificationProblems...); err != nil {
		return err
	}
	return me.Model.Fit(ctx, in)
}
