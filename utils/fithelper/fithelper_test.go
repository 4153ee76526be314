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

package fithelper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/utils/fithelper"
	"github.com/autotabular/tabular/utils/test"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func fitKey(t *testing.T, datasetName string, key string, opts ...fithelper.Option) {
	t.Helper()
	hp, err := hyperparameter.FromKeys(canonical.Register, key)
	require.NoError(t, err)
	opts = append([]fithelper.Option{fithelper.WithSampleSize(500), fithelper.WithTestSize(200), fithelper.WithAllowSkip()}, opts...)
	res, err := fithelper.FitAndValidateDataset(testContext(), datasetName, fithelper.FitArgs{Hyperparameters: hp}, opts...)
	require.NoError(t, err)
	if res.Skipped {
		t.Skip(res.SkipReason)
	}
	test.CheckEq(t, len(res.Predictor.Leaderboard()), 1, "")
}

func TestAllModelsBinary(t *testing.T) {
	if testing.Short() {
		t.Skip("trains every model type")
	}
	for _, key := range canonical.Register.Keys() {
		t.Run(key, func(t *testing.T) { fitKey(t, "adult", key) })
	}
}

func TestAllModelsMulticlass(t *testing.T) {
	if testing.Short() {
		t.Skip("trains every model type")
	}
	for _, key := range canonical.Register.Keys() {
		t.Run(key, func(t *testing.T) { fitKey(t, "covertype_small", key) })
	}
}

func TestRegisterSize(t *testing.T) {
	test.CheckEq(t, canonical.Register.Len(), 24, "")
}

func TestWeightedEnsemble(t *testing.T) {
	hp, err := hyperparameter.FromKeys(canonical.Register, "DUMMY", "LR", "RF")
	require.NoError(t, err)
	res, err := fithelper.FitAndValidateDataset(testContext(), "adult",
		fithelper.FitArgs{Hyperparameters: hp, FitWeightedEnsemble: true}, fithelper.WithSampleSize(400))
	require.NoError(t, err)
	require.False(t, res.Skipped)
	test.CheckEq(t, len(res.Predictor.Leaderboard()), 4, "")
	require.Contains(t, res.Scores, "accuracy")
}

func TestSkippedModel(t *testing.T) {
	hp, err := hyperparameter.FromKeys(canonical.Register, "TABPFN")
	require.NoError(t, err)
	_, err = fithelper.FitAndValidateDataset(testContext(), "adult", fithelper.FitArgs{Hyperparameters: hp})
	require.Error(t, err)

	res, err := fithelper.FitAndValidateDataset(testContext(), "adult", fithelper.FitArgs{Hyperparameters: hp},
		fithelper.WithAllowSkip())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Contains(t, res.SkipReason, "TABPFN")
}

func TestNoModel(t *testing.T) {
	_, err := fithelper.FitAndValidateDataset(testContext(), "adult", fithelper.FitArgs{})
	require.Error(t, err)
}
