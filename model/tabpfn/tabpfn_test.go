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

package tabpfn_test

import (
	"context"
	"testing"

	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/remote/remotetest"
	"github.com/autotabular/tabular/model/tabpfn"
	"github.com/autotabular/tabular/utils/fithelper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitSubsamplesContext(t *testing.T) {
	service, server := remotetest.NewServer(t)
	train, _, testDs := modeltest.Data(t, "adult", 2000)
	require.Greater(t, train.NumRows(), tabpfn.Limits.MaxRows)

	m := modeltest.FitWithInput(t, tabpfn.Spec, nil, &model.FitInput{
		Train:    train,
		External: model.ExternalBackend{Endpoint: server.URL},
	})
	assert.Len(t, service.LastFit().Rows, tabpfn.Limits.MaxRows)
	modeltest.Predict(t, m, testDs)
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestRegressionNotSupported(t *testing.T) {
	train, _, _ := modeltest.Regression(t, 100)
	m := tabpfn.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, External: model.ExternalBackend{Endpoint: "http://unused"}})
	assert.ErrorIs(t, err, model.ErrNotSupported)
}

func fitAndValidate(t *testing.T, datasetName string) {
	_, server := remotetest.NewServer(t)
	hp, err := hyperparameter.FromKeys(canonical.Register, tabpfn.ModelKey)
	require.NoError(t, err)
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	res, err := fithelper.FitAndValidateDataset(ctx, datasetName, fithelper.FitArgs{
		Hyperparameters: hp,
		External:        model.ExternalBackend{Endpoint: server.URL},
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestBinary(t *testing.T) {
	fitAndValidate(t, "adult")
}

func TestMulticlass(t *testing.T) {
	fitAndValidate(t, "covertype_small")
}
