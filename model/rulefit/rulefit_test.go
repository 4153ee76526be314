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

package rulefit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/rulefit"
	"github.com/autotabular/tabular/utils/test"
)

func TestLasso(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 50; i++ {
		v := float64(i%10) / 10
		x = append(x, []float64{v, 1 - v})
		y = append(y, 2*v+1)
	}
	w, intercept := rulefit.Lasso(x, y, 0, 5000, false)
	// The two columns are colinear: only the prediction is identified.
	test.CheckNear(t, w[0]*0.3+w[1]*0.7+intercept, 1.6, 1e-2, "prediction at 0.3")
	test.CheckNear(t, w[0]*0.9+w[1]*0.1+intercept, 2.8, 1e-2, "prediction at 0.9")

	w, intercept = rulefit.Lasso(x, y, 100, 500, false)
	test.CheckEq(t, w, []float64{0, 0}, "")
	test.CheckNear(t, intercept, 1.9, 1e-6, "intercept")
}

func TestLogisticLasso(t *testing.T) {
	x := [][]float64{{0}, {0}, {1}, {1}}
	y := []float64{0, 0, 1, 1}
	w, intercept := rulefit.Lasso(x, y, 0.01, 2000, true)
	require.Greater(t, w[0], 1.0)
	require.Less(t, intercept, 0.0)
}

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 1000)
	m := modeltest.Fit(t, rulefit.Spec, model.Hyperparameters{"max_rules": 10}, train, valid)
	rules := m.(*rulefit.Model).Rules()
	require.NotEmpty(t, rules)
	numRules := 0
	for _, r := range rules {
		if !strings.HasPrefix(r, "linear: ") {
			numRules++
		}
	}
	require.LessOrEqual(t, numRules, 10)

	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.02 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	loaded := modeltest.CheckSaveLoad(t, m, testDs)
	test.CheckEq(t, loaded.(*rulefit.Model).Rules(), rules, "")
}

func TestFitMulticlass(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "covertype_small", 800)
	m := modeltest.Fit(t, rulefit.Spec, nil, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc <= modeltest.MajorityRate(testDs) {
		t.Errorf("accuracy %v is not above the majority rate", acc)
	}
}

func TestFitRegression(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 600)
	m := modeltest.Fit(t, rulefit.Spec, model.Hyperparameters{"alpha": 0.0005, "num_iterations": 1000}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if rmse := modeltest.RMSE(preds, testDs); rmse > 0.6*modeltest.Std(testDs) {
		t.Errorf("rmse %v is too large", rmse)
	}
}
