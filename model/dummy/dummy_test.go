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

package dummy_test

import (
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model/dummy"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/utils/test"

	"github.com/stretchr/testify/require"
)

func TestPrior(t *testing.T) {
	header := []string{"x", "y"}
	rows := [][]string{{"1", "a"}, {"2", "b"}, {"3", "a"}, {"4", "a"}, {"5", ""}}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	m := modeltest.Fit(t, dummy.Spec, nil, ds, nil)
	preds := modeltest.Predict(t, m, ds)
	test.CheckEq(t, preds[4], []float64{0.75, 0.25}, "prior")
}

func TestMean(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 200)
	m := modeltest.Fit(t, dummy.Spec, nil, train, valid)
	preds := modeltest.Predict(t, m, testDs)

	mean := 0.0
	for _, v := range train.Targets() {
		mean += v
	}
	mean /= float64(train.NumRows())
	test.CheckNear(t, preds[0][0], mean, 1e-9, "mean")
}

func TestMulticlass(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "covertype_small", 300)
	m := modeltest.Fit(t, dummy.Spec, nil, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	test.CheckNear(t, modeltest.Accuracy(preds, testDs), modeltest.MajorityRate(testDs), 0.2, "accuracy")
	modeltest.CheckSaveLoad(t, m, testDs)
}
