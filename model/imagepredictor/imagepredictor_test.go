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

package imagepredictor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/imagepredictor"
	"github.com/autotabular/tabular/model/internal/modeltest"
)

func TestFit(t *testing.T) {
	train, valid, testDs := modeltest.Images(t, 120)
	m := modeltest.Fit(t, imagepredictor.Spec, model.Hyperparameters{"num_epochs": 20, "image_size": 8, "hidden_size": []int{16}}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < 0.9 {
		t.Errorf("accuracy %v is too low", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestNoImage(t *testing.T) {
	train, valid, _ := modeltest.Data(t, "covertype_small", 200)
	m := imagepredictor.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, Validation: valid})
	if !errors.Is(err, model.ErrNoValidFeatures) {
		t.Fatalf("got %v, expecting %v", err, model.ErrNoValidFeatures)
	}
}
