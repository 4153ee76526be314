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

package predictor_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/utils/test"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func adult(t *testing.T) (train, testDs *dataset.Dataset) {
	t.Helper()
	train, testDs, err := dataset.Load(context.Background(), "adult", "")
	require.NoError(t, err)
	return train.Subsample(800, 1), testDs
}

func TestFitPredict(t *testing.T) {
	ctx := testContext()
	train, testDs := adult(t)
	hp, err := hyperparameter.FromKeys(canonical.Register, "DUMMY", "LR", "GBM")
	require.NoError(t, err)
	p, err := predictor.Fit(ctx, train, predictor.Options{Hyperparameters: hp, FitWeightedEnsemble: true})
	require.NoError(t, err)

	leaderboard := p.Leaderboard()
	require.Len(t, leaderboard, 4)
	test.CheckEq(t, leaderboard[0].Name, p.BestName(), "")
	test.CheckEq(t, p.Metric(), "accuracy", "")
	for _, row := range leaderboard {
		test.CheckEq(t, row.Status, "fitted", row.Name)
		_, ok := p.Model(row.Name)
		assert.True(t, ok, row.Name)
	}

	labels, err := p.Predict(ctx, testDs)
	require.NoError(t, err)
	require.Len(t, labels, testDs.NumRows())
	for _, l := range labels {
		assert.Contains(t, []string{"<=50K", ">50K"}, l)
	}

	scores, err := p.Evaluate(ctx, testDs)
	require.NoError(t, err)
	assert.Contains(t, scores, "accuracy")
	assert.Contains(t, scores, "roc_auc")
	assert.NotContains(t, scores, "rmse")
	assert.Greater(t, scores["accuracy"], 0.6)
}

func TestSaveLoad(t *testing.T) {
	ctx := testContext()
	train, testDs := adult(t)
	hp, err := hyperparameter.FromKeys(canonical.Register, "LR", "RF")
	require.NoError(t, err)
	p, err := predictor.Fit(ctx, train, predictor.Options{Hyperparameters: hp})
	require.NoError(t, err)
	want, err := p.PredictProba(ctx, testDs)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, p.Save(ctx, dir))
	loaded, err := predictor.Load(ctx, dir)
	require.NoError(t, err)
	test.CheckEq(t, loaded.BestName(), p.BestName(), "")
	test.CheckEq(t, loaded.Leaderboard(), p.Leaderboard(), "")

	got, err := loaded.PredictProba(ctx, testDs)
	require.NoError(t, err)
	test.CheckSlicesNear(t, got, want, 1e-9, "predictions")

	_, err = predictor.Load(ctx, t.TempDir())
	require.Error(t, err)
}

func TestAllSkipped(t *testing.T) {
	ctx := testContext()
	train, _ := adult(t)
	hp, err := hyperparameter.FromKeys(canonical.Register, "TABPFN", "FT_TRANSFORMER")
	require.NoError(t, err)
	_, err = predictor.Fit(ctx, train, predictor.Options{Hyperparameters: hp})
	require.ErrorIs(t, err, predictor.ErrNoModelFitted)
	var fitErr *predictor.FitError
	require.True(t, errors.As(err, &fitErr))
	assert.True(t, fitErr.AllSkipped())
	assert.ErrorContains(t, err, model.ErrDependencyUnavailable.Error())
}

func TestRegression(t *testing.T) {
	ctx := testContext()
	path := filepath.Join(t.TempDir(), "train.csv")
	content := "x,z,y\n"
	for i := 0; i < 200; i++ {
		zone := []string{"a", "b"}[i%2]
		y := float64(i%20) * 2
		if zone == "b" {
			y += 10
		}
		content += fmt.Sprintf("%d,%s,%g\n", i%20, zone, y+0.5)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	hp, err := hyperparameter.FromKeys(canonical.Register, "DUMMY", "IM_GREEDYTREE")
	require.NoError(t, err)
	p, err := predictor.FitCSV(ctx, path, "y", "", predictor.Options{Hyperparameters: hp})
	require.NoError(t, err)
	test.CheckEq(t, p.Metric(), "rmse", "")
	test.CheckEq(t, p.BestName(), "IM_GREEDYTREE", "")

	train, err := dataset.LoadCSV(ctx, path, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	scores, err := p.Evaluate(ctx, train)
	require.NoError(t, err)
	assert.Contains(t, scores, "r2")
	assert.Greater(t, scores["r2"], 0.8)
}
