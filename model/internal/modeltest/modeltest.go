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

// Package modeltest contains helpers to test the model implementations.
package modeltest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/io"
	"github.com/autotabular/tabular/utils/test"
)

// Data loads a catalog dataset. The training split is subsampled to "numRows" rows and 20% of
// it is held out for validation.
func Data(t testing.TB, name string, numRows int) (train, valid, test *dataset.Dataset) {
	t.Helper()
	all, test, err := dataset.Load(context.Background(), name, "")
	if err != nil {
		t.Fatal(err)
	}
	train, valid, err = all.Subsample(numRows, 1).Split(0.2, 2)
	if err != nil {
		t.Fatal(err)
	}
	return train, valid, test
}

// Regression generates a small regression dataset with numerical and categorical features.
func Regression(t testing.TB, numRows int) (train, valid, test *dataset.Dataset) {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	header := []string{"x1", "x2", "zone", "y"}
	zones := []string{"north", "south", "east"}
	zoneEffect := []float64{0, 4, -3}
	rows := make([][]string, numRows)
	for i := range rows {
		x1, x2 := rng.Float64()*10, rng.NormFloat64()
		z := rng.Intn(len(zones))
		y := 3*x1 - 2*x2 + zoneEffect[z] + 0.1*rng.NormFloat64()
		rows[i] = []string{fmt.Sprint(x1), fmt.Sprint(x2), zones[z], fmt.Sprint(y)}
	}
	all, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y", Problem: dataset.Regression})
	if err != nil {
		t.Fatal(err)
	}
	rest, test, err := all.Split(0.2, 1)
	if err != nil {
		t.Fatal(err)
	}
	train, valid, err = rest.Split(0.2, 2)
	if err != nil {
		t.Fatal(err)
	}
	return train, valid, test
}

// Fit creates and trains a model. The test is skipped if the model does not apply to the data.
func Fit(t testing.TB, spec model.Spec, hp model.Hyperparameters, train, valid *dataset.Dataset) model.Implementation {
	t.Helper()
	return FitWithInput(t, spec, hp, &model.FitInput{Train: train, Validation: valid, Seed: 1, NumWorkers: 2})
}

// FitWithInput is Fit with a custom input.
func FitWithInput(t testing.TB, spec model.Spec, hp model.Hyperparameters, in *model.FitInput) model.Implementation {
	t.Helper()
	m := spec.New(in.Train, hp)
	if err := m.Fit(context.Background(), in); err != nil {
		if model.IsSkip(err) {
			t.Skipf("%s skipped: %v", spec.Key, err)
		}
		t.Fatalf("%s: %v", spec.Key, err)
	}
	return m
}

// Predict computes and checks the predictions of a model: one row per example, one column per
// output, and probabilities in [0, 1] summing to one for classification.
func Predict(t testing.TB, m model.Model, ds *dataset.Dataset) [][]float64 {
	t.Helper()
	preds, err := m.PredictProba(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != ds.NumRows() {
		t.Fatalf("got %d predictions for %d rows", len(preds), ds.NumRows())
	}
	numOutputs := m.Header().NumOutputs()
	for i, pred := range preds {
		if len(pred) != numOutputs {
			t.Fatalf("prediction %d has %d values, expecting %d", i, len(pred), numOutputs)
		}
		sum := 0.0
		for _, v := range pred {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("prediction %d is not finite: %v", i, pred)
			}
			if m.Header().Problem.IsClassification() && (v < 0 || v > 1) {
				t.Fatalf("prediction %d is not a probability distribution: %v", i, pred)
			}
			sum += v
		}
		if m.Header().Problem.IsClassification() && math.Abs(sum-1) > 1e-6 {
			t.Fatalf("prediction %d does not sum to one: %v", i, pred)
		}
	}
	return preds
}

// Accuracy is the fraction of rows where the most probable class is the label.
func Accuracy(preds [][]float64, ds *dataset.Dataset) float64 {
	labels := ds.Labels()
	correct, total := 0, 0
	for i, pred := range preds {
		if labels[i] < 0 {
			continue
		}
		best := 0
		for c, p := range pred {
			if p > pred[best] {
				best = c
			}
		}
		if best == labels[i] {
			correct++
		}
		total++
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// MajorityRate is the accuracy of always predicting the most frequent class of "ds".
func MajorityRate(ds *dataset.Dataset) float64 {
	counts := map[int]int{}
	total := 0
	for _, l := range ds.Labels() {
		if l >= 0 {
			counts[l]++
			total++
		}
	}
	best := 0
	for _, c := range counts {
		best = max(best, c)
	}
	return float64(best) / float64(max(1, total))
}

// RMSE is the root mean squared error of regression predictions.
func RMSE(preds [][]float64, ds *dataset.Dataset) float64 {
	sum := 0.0
	targets := ds.Targets()
	for i, pred := range preds {
		d := pred[0] - targets[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(max(1, len(preds))))
}

// Std is the standard deviation of the regression label.
func Std(ds *dataset.Dataset) float64 {
	targets := ds.Targets()
	mean := 0.0
	for _, v := range targets {
		mean += v
	}
	mean /= float64(max(1, len(targets)))
	sum := 0.0
	for _, v := range targets {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(max(1, len(targets))))
}

// CheckSaveLoad saves and reloads a model, and checks that the reloaded model gives the same
// predictions.
func CheckSaveLoad(t testing.TB, m model.Implementation, ds *dataset.Dataset) model.Model {
	t.Helper()
	dir := t.TempDir()
	if err := io.SaveModel(dir, m); err != nil {
		t.Fatal(err)
	}
	loaded, err := io.LoadModel(dir)
	if err != nil {
		t.Fatal(err)
	}
	test.CheckEq(t, loaded.Name(), m.Name(), "model key")
	test.CheckEq(t, loaded.Header().Classes, m.Header().Classes, "classes")
	reencoded, err := ds.Reencode(loaded.Dataspec())
	if err != nil {
		t.Fatal(err)
	}
	want := Predict(t, m, ds)
	got := Predict(t, loaded, reencoded)
	test.CheckSlicesNear(t, got, want, 1e-9, "predictions after reload")
	return loaded
}
