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

package knn_test

import (
	"context"
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/knn"
	"github.com/autotabular/tabular/utils/test"

	"github.com/stretchr/testify/require"
)

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 500)
	m := modeltest.Fit(t, knn.Spec, nil, train, valid)
	test.CheckEq(t, m.(*knn.Model).Body.K, 10, "k")

	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.05 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitMulticlassDistance(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "covertype_small", 500)
	m := modeltest.Fit(t, knn.Spec, model.Hyperparameters{"weights": knn.WeightsDistance, "n_neighbors": 5}, train, valid)
	modeltest.Predict(t, m, testDs)
}

func TestExactNeighbor(t *testing.T) {
	header := []string{"x", "y"}
	rows := [][]string{{"0", "a"}, {"1", "a"}, {"10", "b"}, {"11", "b"}}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)

	m := knn.Spec.New(ds, model.Hyperparameters{"n_neighbors": 3, "weights": knn.WeightsDistance})
	require.NoError(t, m.Fit(context.Background(), &model.FitInput{Train: ds}))
	preds, err := m.PredictProba(context.Background(), ds)
	require.NoError(t, err)
	// Each training example is its own exact neighbor.
	for i, l := range ds.Labels() {
		test.CheckNear(t, preds[i][l], 1, 1e-9, "probability of the label")
	}
}

func TestFitRegression(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 600)
	m := modeltest.Fit(t, knn.Spec, model.Hyperparameters{"n_neighbors": 5}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if rmse := modeltest.RMSE(preds, testDs); rmse > 0.6*modeltest.Std(testDs) {
		t.Errorf("rmse %v is too large", rmse)
	}
}
