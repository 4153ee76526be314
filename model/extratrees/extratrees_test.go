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

package extratrees_test

import (
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/extratrees"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/randomforest"
	"github.com/autotabular/tabular/utils/test"
)

func TestFit(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 600)
	m := modeltest.Fit(t, extratrees.Spec, model.Hyperparameters{"n_estimators": 15}, train, valid)

	test.CheckEq(t, m.Name(), "XT", "")
	test.CheckEq(t, m.(*randomforest.Model).RfHeader.RandomThresholds, true, "")
	modeltest.Predict(t, m, testDs)
	loaded := modeltest.CheckSaveLoad(t, m, testDs)
	test.CheckEq(t, loaded.Header().Name, "ExtraTrees", "")
}
