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

package tabpfnmix_test

import (
	"context"
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/remote/remotetest"
	"github.com/autotabular/tabular/model/tabpfnmix"

	"github.com/stretchr/testify/assert"
)

func TestFitRegression(t *testing.T) {
	_, server := remotetest.NewServer(t)
	train, valid, testDs := modeltest.Regression(t, 200)
	m := modeltest.FitWithInput(t, tabpfnmix.Spec, nil, &model.FitInput{
		Train:      train,
		Validation: valid,
		External:   model.ExternalBackend{Endpoint: server.URL},
	})
	preds := modeltest.Predict(t, m, testDs)
	// The fake service predicts the mean of the training labels.
	assert.InDelta(t, preds[0][0], preds[1][0], 1e-12)
}

func TestSkippedWithoutBackend(t *testing.T) {
	train, _, _ := modeltest.Data(t, "adult", 100)
	m := tabpfnmix.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train})
	assert.True(t, model.IsSkip(err))
}
