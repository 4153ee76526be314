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

package linear_test

import (
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/internal/neural"
	"github.com/autotabular/tabular/model/linear"
	"github.com/autotabular/tabular/utils/test"
)

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 600)
	m := modeltest.Fit(t, linear.Spec, nil, train, valid)

	network := m.(*neural.Model).Body.Network
	test.CheckEq(t, len(network.Layers), 1, "a linear model has a single layer")
	test.CheckEq(t, network.Layers[0].Out, 2, "outputs")

	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.03 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitRegression(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 500)
	m := modeltest.Fit(t, linear.Spec, model.Hyperparameters{"C": 100.0}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if rmse := modeltest.RMSE(preds, testDs); rmse > 0.3*modeltest.Std(testDs) {
		t.Errorf("rmse %v is too large for a linear problem", rmse)
	}
}
