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

package boostedrules_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/boostedrules"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/utils/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeparable(t *testing.T) {
	header := []string{"x", "y"}
	var rows [][]string
	for i := 0; i < 20; i++ {
		label := "low"
		if i >= 10 {
			label = "high"
		}
		rows = append(rows, []string{fmt.Sprint(i), label})
	}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)

	m := modeltest.Fit(t, boostedrules.Spec, nil, ds, nil)
	br := m.(*boostedrules.Model)
	// The first stump has no training error: boosting stops.
	test.CheckEq(t, br.BrHeader.NumTrees, 1, "number of stumps")
	test.CheckEq(t, br.Rules(), []string{"if x >= 9.5 then high else low (alpha=10)"}, "rules")

	preds := modeltest.Predict(t, m, ds)
	test.CheckEq(t, modeltest.Accuracy(preds, ds), 1.0, "accuracy")
}

func TestFit(t *testing.T) {
	for _, name := range []string{"adult", "covertype_small"} {
		t.Run(name, func(t *testing.T) {
			train, valid, testDs := modeltest.Data(t, name, 600)
			m := modeltest.Fit(t, boostedrules.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)
			for _, rule := range m.(*boostedrules.Model).Rules() {
				assert.True(t, strings.HasPrefix(rule, "if ") || strings.HasPrefix(rule, "always "), rule)
			}
			preds := modeltest.Predict(t, m, testDs)
			if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.05 {
				t.Errorf("accuracy %v is below the majority rate", acc)
			}
			modeltest.CheckSaveLoad(t, m, testDs)
		})
	}
}

func TestRegressionNotSupported(t *testing.T) {
	train, _, _ := modeltest.Regression(t, 100)
	err := boostedrules.Spec.New(train, nil).Fit(context.Background(), &model.FitInput{Train: train})
	assert.True(t, errors.Is(err, model.ErrNotSupported))
}
