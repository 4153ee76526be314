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

package fttransformer_test

import (
	"context"
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/fttransformer"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/remote/remotetest"

	"github.com/stretchr/testify/assert"
)

func TestSkippedWithoutBackend(t *testing.T) {
	train, valid, _ := modeltest.Data(t, "adult", 100)
	m := fttransformer.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, Validation: valid})
	assert.ErrorIs(t, err, model.ErrDependencyUnavailable)
}

func TestFitMulticlass(t *testing.T) {
	service, server := remotetest.NewServer(t)
	train, _, testDs := modeltest.Data(t, "covertype_small", 300)
	m := modeltest.FitWithInput(t, fttransformer.Spec, nil, &model.FitInput{
		Train:    train,
		External: model.ExternalBackend{Endpoint: server.URL},
	})
	assert.Equal(t, fttransformer.ModelKey, service.LastFit().ModelKey)
	assert.Equal(t, 7, service.LastFit().NumClasses)
	modeltest.Predict(t, m, testDs)
}
