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

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/predictor"
)

// TestBenchmark evaluates inference speed of a small predictor trained on the synthetic adult
// dataset.
func TestBenchmark(t *testing.T) {
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	train, testDs, err := dataset.Load(ctx, "adult", "")
	require.NoError(t, err)
	hp, err := hyperparameter.FromKeys(canonical.Register, "GBM")
	require.NoError(t, err)
	p, err := predictor.Fit(ctx, train.Subsample(500, 1), predictor.Options{Hyperparameters: hp})
	require.NoError(t, err)

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "predictor")
	require.NoError(t, p.Save(ctx, modelPath))
	csvPath := filepath.Join(dir, "test.csv")
	require.NoError(t, dataset.WriteCSV(ctx, csvPath, testDs.Subsample(200, 1)))

	options := Options{
		numRuns:    2,
		batchSize:  64,
		warmupRuns: 1}
	require.NoError(t, Run(ctx, modelPath, "csv:"+csvPath, &options))
}

func TestInvalidOptions(t *testing.T) {
	err := Run(context.Background(), "unused", "csv:unused", &Options{numRuns: 0, batchSize: 1, warmupRuns: 1})
	require.Error(t, err)
}

func TestParseTypedPath(t *testing.T) {
	format, path, err := parseTypedPath("csv:/tmp/a:b.csv")
	require.NoError(t, err)
	require.Equal(t, "csv", format)
	require.Equal(t, "/tmp/a:b.csv", path)

	_, _, err = parseTypedPath("/tmp/a.csv")
	require.Error(t, err)
}
