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

package metric

import (
	"math"
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/utils/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryTruth = Truth{Labels: []int{0, 0, 1, 1, -1}}

var binaryPreds = [][]float64{
	{0.9, 0.1},
	{0.4, 0.6},
	{0.35, 0.65},
	{0.2, 0.8},
	{0.5, 0.5},
}

func score(t *testing.T, name string, truth Truth, preds [][]float64) float64 {
	t.Helper()
	m, err := Get(name)
	require.NoError(t, err)
	return m.ScoreTruth(truth, preds)
}

func TestClassification(t *testing.T) {
	test.CheckNear(t, score(t, Accuracy, binaryTruth, binaryPreds), 0.75, 1e-9, "accuracy")
	test.CheckNear(t, score(t, BalancedAccuracy, binaryTruth, binaryPreds), 0.75, 1e-9, "balanced accuracy")
	// Both positive examples score above both negative examples.
	test.CheckNear(t, score(t, RocAuc, binaryTruth, binaryPreds), 1, 1e-9, "auc")
	test.CheckNear(t, score(t, F1, binaryTruth, binaryPreds), 0.8, 1e-9, "f1")

	want := (math.Log(0.9) + math.Log(0.4) + math.Log(0.65) + math.Log(0.8)) / 4
	test.CheckNear(t, score(t, LogLoss, binaryTruth, binaryPreds), want, 1e-9, "log loss")
}

func TestRocAucTies(t *testing.T) {
	truth := Truth{Labels: []int{0, 1, 0, 1}}
	preds := [][]float64{{0.5, 0.5}, {0.5, 0.5}, {0.8, 0.2}, {0.1, 0.9}}
	// Pairs: (pos 0.5, neg 0.5) tie = 0.5, (pos 0.5, neg 0.2) = 1, (pos 0.9, *) = 2.
	test.CheckNear(t, score(t, RocAuc, truth, preds), 0.875, 1e-9, "auc")
}

func TestRegression(t *testing.T) {
	truth := Truth{Targets: []float64{1, 2, 3, math.NaN()}}
	preds := [][]float64{{1}, {3}, {1}, {100}}
	test.CheckNear(t, score(t, RMSE, truth, preds), -math.Sqrt(5.0/3), 1e-9, "rmse")
	test.CheckNear(t, score(t, MAE, truth, preds), -1, 1e-9, "mae")
	test.CheckNear(t, score(t, R2, truth, preds), 1-5.0/2, 1e-9, "r2")
}

func TestNoLabel(t *testing.T) {
	assert.True(t, math.IsNaN(score(t, Accuracy, Truth{Labels: []int{-1}}, [][]float64{{1, 0}})))
}

func TestGet(t *testing.T) {
	_, err := Get("precision")
	assert.ErrorContains(t, err, "unknown metric")
	assert.Equal(t, Accuracy, Default(dataset.Multiclass).Name)
	assert.Equal(t, RMSE, Default(dataset.Regression).Name)
	assert.False(t, metrics[RocAuc].Supports(dataset.Multiclass))
}

func TestEvaluate(t *testing.T) {
	header := []string{"x", "y"}
	rows := [][]string{{"1", "a"}, {"2", "b"}, {"3", "a"}}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	scores, err := Evaluate(ds, [][]float64{{1, 0}, {0, 1}, {0.4, 0.6}})
	require.NoError(t, err)
	assert.Len(t, scores, 5)
	test.CheckNear(t, scores[Accuracy], 2.0/3, 1e-9, "accuracy")

	_, err = metrics[RMSE].Score(ds, nil)
	assert.Error(t, err)
}
