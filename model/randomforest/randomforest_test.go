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

package randomforest_test

import (
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/randomforest"
	"github.com/autotabular/tabular/utils/test"
)

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 800)
	m := modeltest.Fit(t, randomforest.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)

	rfModel := m.(*randomforest.Model)
	test.CheckEq(t, rfModel.Name(), "RF", "")
	test.CheckEq(t, rfModel.RfHeader.NumTrees, 20, "")
	test.CheckEq(t, len(rfModel.Forest.Trees), 20, "")

	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.03 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitMulticlass(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "covertype_small", 800)
	m := modeltest.Fit(t, randomforest.Spec, model.Hyperparameters{"n_estimators": 10, "max_depth": 8}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	test.CheckEq(t, len(preds[0]), 7, "classes")
}

func TestFitRegression(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 600)
	m := modeltest.Fit(t, randomforest.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if rmse := modeltest.RMSE(preds, testDs); rmse > modeltest.Std(testDs) {
		t.Errorf("rmse %v is larger than the label deviation", rmse)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestNumCandidateFeatures(t *testing.T) {
	test.CheckEq(t, randomforest.NumCandidateFeatures(model.Hyperparameters{"max_features": "sqrt"}, 14), 4, "sqrt")
	test.CheckEq(t, randomforest.NumCandidateFeatures(model.Hyperparameters{"max_features": 0.5}, 14), 7, "fraction")
	test.CheckEq(t, randomforest.NumCandidateFeatures(model.Hyperparameters{"max_features": 3}, 14), 3, "count")
	test.CheckEq(t, randomforest.NumCandidateFeatures(model.Hyperparameters{}, 14), 0, "all")
}

func TestPredictionsAreDistributions(t *testing.T) {
	// Averaging many trees accumulates rounding errors.
	for _, name := range []string{"adult", "covertype_small"} {
		train, valid, testDs := modeltest.Data(t, name, 500)
		for _, numTrees := range []int{3, 7, 49} {
			m := modeltest.Fit(t, randomforest.Spec, model.Hyperparameters{"n_estimators": numTrees}, train, valid)
			modeltest.Predict(t, m, testDs)
		}
	}
}
