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

package textpredictor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/model/textpredictor"
)

func TestFit(t *testing.T) {
	train, valid, testDs := modeltest.Text(t, 400)
	m := modeltest.Fit(t, textpredictor.Spec, model.Hyperparameters{"num_epochs": 20, "num_buckets": 256}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < 0.8 {
		t.Errorf("accuracy %v is too low", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestNoText(t *testing.T) {
	train, valid, _ := modeltest.Data(t, "adult", 200)
	m := textpredictor.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, Validation: valid})
	if !errors.Is(err, model.ErrNoValidFeatures) {
		t.Fatalf("got %v, expecting %v", err, model.ErrNoValidFeatures)
	}
	if !model.IsSkip(err) {
		t.Error("the error should skip the model")
	}
}
