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

package fasttext_test

import (
	"context"
	"errors"
	"testing"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/fasttext"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/utils/test"
)

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 600)
	m := modeltest.Fit(t, fasttext.Spec, nil, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.05 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitText(t *testing.T) {
	train, valid, testDs := modeltest.Text(t, 400)
	m := modeltest.Fit(t, fasttext.Spec, nil, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < 0.8 {
		t.Errorf("accuracy %v is too low", acc)
	}
}

func TestTokens(t *testing.T) {
	train, _, _ := modeltest.Text(t, 50)
	m := modeltest.Fit(t, fasttext.Spec, model.Hyperparameters{"epoch": 1}, train, nil)
	body := m.(*fasttext.Model).Body
	tokens := body.Tokens(train.Spec, train, 0)
	// 7 words, 6 bigrams and the numerical decile.
	test.CheckEq(t, len(tokens), 14, "number of tokens")
}

func TestRegressionNotSupported(t *testing.T) {
	train, valid, _ := modeltest.Regression(t, 100)
	m := fasttext.Spec.New(train, nil)
	err := m.Fit(context.Background(), &model.FitInput{Train: train, Validation: valid})
	if !errors.Is(err, model.ErrNotSupported) {
		t.Fatalf("got %v, expecting %v", err, model.ErrNotSupported)
	}
}
