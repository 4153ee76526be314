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

package serving

// Check the predictions of the Go engines against the predictions of the models.

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/extratrees"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/greedytree"
	"github.com/autotabular/tabular/model/hstree"
	"github.com/autotabular/tabular/model/linear"
	rf "github.com/autotabular/tabular/model/randomforest"
	"github.com/autotabular/tabular/model/xgboost"
	df_engine "github.com/autotabular/tabular/serving/decisionforest"
	"github.com/autotabular/tabular/serving/engine"
	"github.com/autotabular/tabular/serving/example"
	"github.com/autotabular/tabular/utils/test"
)

func loadDataset(t *testing.T, name string) (train, valid, testDs *dataset.Dataset) {
	t.Helper()
	all, testDs, err := dataset.Load(context.Background(), name, "")
	require.NoError(t, err)
	train, valid, err = all.Subsample(600, 1).Split(0.2, 2)
	require.NoError(t, err)
	return train, valid, testDs.Subsample(200, 3)
}

func regressionDataset(t *testing.T) (train, valid, testDs *dataset.Dataset) {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	header := []string{"x1", "x2", "zone", "y"}
	zones := []string{"north", "south", "east"}
	rows := make([][]string, 600)
	for i := range rows {
		x1, x2 := rng.Float64()*10, rng.NormFloat64()
		z := rng.Intn(len(zones))
		y := 3*x1 - 2*x2 + float64(z) + 0.1*rng.NormFloat64()
		rows[i] = []string{fmt.Sprint(x1), fmt.Sprint(x2), zones[z], fmt.Sprint(y)}
		if i%17 == 0 {
			rows[i][1] = "NA"
		}
	}
	all, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y", Problem: dataset.Regression})
	require.NoError(t, err)
	rest, testDs, err := all.Split(0.2, 1)
	require.NoError(t, err)
	train, valid, err = rest.Split(0.2, 2)
	require.NoError(t, err)
	return train, valid, testDs
}

func fit(t *testing.T, spec model.Spec, hp model.Hyperparameters, train, valid *dataset.Dataset) model.Implementation {
	t.Helper()
	m := spec.New(train, hp)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, Validation: valid, Seed: 1, NumWorkers: 2})
	require.NoError(t, err)
	return m
}

// batchFromDataset fills a batch with the raw values of a dataset.
func batchFromDataset(t *testing.T, e engine.Engine, ds *dataset.Dataset) *example.Batch {
	t.Helper()
	header := make([]string, len(ds.Spec.Columns))
	for c, column := range ds.Spec.Columns {
		header[c] = column.Name
	}
	batch := e.AllocateExamples(ds.NumRows())
	batch.FillMissing()
	values := make([]string, len(header))
	for row := 0; row < ds.NumRows(); row++ {
		for c := range header {
			values[c] = ds.Value(row, c)
		}
		require.NoError(t, batch.SetFromFields(row, header, values))
	}
	return batch
}

// testEngine checks the predictions of an engine against the predictions of the model.
// Features are float32 in the engine, so a few examples close to a threshold can be routed
// differently.
func testEngine(t *testing.T, m model.Model, e engine.Engine, ds *dataset.Dataset) {
	t.Helper()
	expected, err := m.PredictProba(context.Background(), ds)
	require.NoError(t, err)

	batch := batchFromDataset(t, e, ds)
	predictions := e.AllocatePredictions(ds.NumRows())
	require.NoError(t, e.Predict(batch, ds.NumRows(), predictions))

	binary := m.Header().Problem == dataset.Binary
	if binary {
		test.CheckEq(t, e.OutputDim(), 1, "output dim")
	} else {
		test.CheckEq(t, e.OutputDim(), m.Header().NumOutputs(), "output dim")
	}

	scale := 1.0
	if m.Header().Problem == dataset.Regression {
		scale = math.Max(1, math.Abs(expected[0][0]))
	}
	numMismatches := 0
	for row, proba := range expected {
		want := proba
		if binary {
			want = proba[1:]
		}
		for dim, w := range want {
			got := float64(predictions[row*e.OutputDim()+dim])
			if math.Abs(got-w) > 1e-3*scale {
				numMismatches++
				break
			}
		}
	}
	if numMismatches*100 > ds.NumRows() {
		t.Errorf("%d / %d examples have different predictions", numMismatches, ds.NumRows())
	}
}

func TestGBTBinaryClassification(t *testing.T) {
	train, valid, testDs := loadDataset(t, "adult")
	m := fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 30}, train, valid)
	e, err := NewEngine(m)
	require.NoError(t, err)
	_, ok := e.(*df_engine.OneDimensionEngine)
	test.CheckEq(t, ok, true, "compiled engine")
	testEngine(t, m, e, testDs)
}

func TestGBTMulticlassClassification(t *testing.T) {
	train, valid, testDs := loadDataset(t, "covertype_small")
	m := fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 20}, train, valid)
	e, err := NewEngine(m)
	require.NoError(t, err)
	_, ok := e.(*df_engine.MultiDimensionEngine)
	test.CheckEq(t, ok, true, "compiled engine")
	testEngine(t, m, e, testDs)
}

func TestGBTRegression(t *testing.T) {
	train, valid, testDs := regressionDataset(t)
	m := fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 30}, train, valid)
	e, err := NewEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestXGBoost(t *testing.T) {
	train, valid, testDs := loadDataset(t, "adult")
	m := fit(t, xgboost.Spec, model.Hyperparameters{"n_estimators": 20, "max_depth": 4}, train, valid)
	e, err := NewCompiledEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestRFBinaryClassification(t *testing.T) {
	train, valid, testDs := loadDataset(t, "adult")
	m := fit(t, rf.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)
	e, err := NewCompiledEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestRFMulticlassClassification(t *testing.T) {
	train, valid, testDs := loadDataset(t, "covertype_small")
	m := fit(t, rf.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)
	e, err := NewCompiledEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestRFRegression(t *testing.T) {
	train, valid, testDs := regressionDataset(t)
	m := fit(t, rf.Spec, model.Hyperparameters{"n_estimators": 20}, train, valid)
	e, err := NewCompiledEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestExtraTrees(t *testing.T) {
	train, valid, testDs := loadDataset(t, "covertype_small")
	m := fit(t, extratrees.Spec, model.Hyperparameters{"n_estimators": 10}, train, valid)
	e, err := NewCompiledEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestSingleTrees(t *testing.T) {
	for _, spec := range []model.Spec{greedytree.Spec, hstree.Spec} {
		t.Run(spec.Key, func(t *testing.T) {
			for _, name := range []string{"adult", "covertype_small"} {
				train, valid, testDs := loadDataset(t, name)
				m := fit(t, spec, nil, train, valid)
				e, err := NewCompiledEngine(m)
				require.NoError(t, err, name)
				testEngine(t, m, e, testDs)
			}
			train, valid, testDs := regressionDataset(t)
			m := fit(t, spec, nil, train, valid)
			e, err := NewCompiledEngine(m)
			require.NoError(t, err)
			testEngine(t, m, e, testDs)
		})
	}
}

func TestModelEngine(t *testing.T) {
	train, valid, testDs := loadDataset(t, "covertype_small")
	m := fit(t, linear.Spec, nil, train, valid)

	_, err := NewCompiledEngine(m)
	require.Error(t, err)

	e, err := NewEngine(m)
	require.NoError(t, err)
	_, ok := e.(*ModelEngine)
	test.CheckEq(t, ok, true, "model engine")
	testEngine(t, m, e, testDs)
}

func TestModelEngineBinary(t *testing.T) {
	train, valid, testDs := loadDataset(t, "adult")
	m := fit(t, linear.Spec, nil, train, valid)
	e, err := NewModelEngine(m)
	require.NoError(t, err)
	testEngine(t, m, e, testDs)
}

func TestMissingValues(t *testing.T) {
	train, valid, _ := loadDataset(t, "adult")
	m := fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 10}, train, valid)
	e, err := NewEngine(m)
	require.NoError(t, err)

	// An example with all the values missing follows the NA branches of the model.
	allMissing := dataset.NewEmpty(m.Dataspec(), 1)
	expected, err := m.PredictProba(context.Background(), allMissing)
	require.NoError(t, err)

	batch := e.AllocateExamples(1)
	batch.FillMissing()
	predictions := e.AllocatePredictions(1)
	require.NoError(t, e.Predict(batch, 1, predictions))
	test.CheckNear(t, float64(predictions[0]), expected[0][1], 1e-4, "all missing")
}
