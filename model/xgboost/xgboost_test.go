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

package xgboost_test

import (
	"testing"

	"github.com/autotabular/tabular/model"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/xgboost"
	"github.com/autotabular/tabular/utils/test"
)

func TestFit(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 600)
	m := modeltest.Fit(t, xgboost.Spec, model.Hyperparameters{"n_estimators": 30, "max_depth": 3}, train, valid)

	test.CheckEq(t, m.Name(), "XGB", "")
	for _, tree := range m.(*gbt.Model).Forest.Trees {
		if d := tree.Root.Depth(); d > 3 {
			t.Fatalf("tree of depth %d", d)
		}
	}
	modeltest.Predict(t, m, testDs)
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestParams(t *testing.T) {
	p := xgboost.Params(model.Merge(xgboost.Spec.Defaults, model.Hyperparameters{"gamma": 0.5}))
	test.CheckEq(t, p.MinGain, 0.5, "gamma")
	test.CheckEq(t, p.MaxDepth, 6, "depth")
	test.CheckEq(t, p.MaxLeaves, 0, "depth-wise")
}
