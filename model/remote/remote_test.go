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

package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/remote"
	"github.com/autotabular/tabular/model/remote/remotetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpec = model.Spec{
	Key:      "REMOTE_TEST",
	Problems: model.AllProblems,
	Builder: func(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
		return remote.New(header, dataspec, remote.Limits{MaxRows: 100, MaxClasses: 2})
	},
}

func init() {
	model.RegisteredBuilders[testSpec.Key] = testSpec.Builder
}

func TestNoEndpoint(t *testing.T) {
	train, _, _ := modeltest.Data(t, "adult", 100)
	m := testSpec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train})
	assert.ErrorIs(t, err, model.ErrDependencyUnavailable)
	assert.True(t, model.IsSkip(err))
}

func TestFitPredict(t *testing.T) {
	service, server := remotetest.NewServer(t)
	train, _, testDs := modeltest.Data(t, "adult", 300)

	m := testSpec.New(train, model.Hyperparameters{"n_ensemble": 4})
	require.NoError(t, m.Fit(context.Background(), &model.FitInput{
		Train:    train,
		Seed:     1,
		External: model.ExternalBackend{Endpoint: server.URL + "/"},
	}))

	req := service.LastFit()
	assert.Equal(t, "REMOTE_TEST", req.ModelKey)
	assert.Equal(t, dataset.Binary, req.ProblemType)
	assert.Len(t, req.Rows, 100, "subsampled to the row limit")
	assert.Len(t, req.Columns, len(train.Spec.Features()))
	assert.EqualValues(t, 4, req.Hyperparameters["n_ensemble"])

	modeltest.Predict(t, m, testDs)
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestTooManyClasses(t *testing.T) {
	train, _, _ := modeltest.Data(t, "covertype_small", 100)
	m := testSpec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, External: model.ExternalBackend{Endpoint: "http://unused"}})
	if !errors.Is(err, model.ErrNotSupported) {
		t.Fatalf("got %v, expecting %v", err, model.ErrNotSupported)
	}
}

func TestUnknownModel(t *testing.T) {
	_, server := remotetest.NewServer(t)
	client, err := remote.NewClient(model.ExternalBackend{Endpoint: server.URL})
	require.NoError(t, err)
	_, err = client.Predict(context.Background(), &remote.PredictRequest{ModelID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model missing")
}
