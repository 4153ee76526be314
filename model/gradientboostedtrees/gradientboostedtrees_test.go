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

package gradientboostedtrees_test

import (
	"context"
	"testing"
	"time"

	"github.com/autotabular/tabular/model"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/internal/modeltest"
	"github.com/autotabular/tabular/utils/test"
)

func TestFitBinary(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "adult", 800)
	m := modeltest.Fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 50}, train, valid)

	gbtModel := m.(*gbt.Model)
	test.CheckEq(t, gbtModel.Name(), "GBM", "")
	test.CheckEq(t, gbtModel.GbtHeader.Loss, gbt.BinomialLogLikelihood, "")
	test.CheckEq(t, gbtModel.GbtHeader.NumTreesPerIter, 1, "")
	test.CheckEq(t, len(gbtModel.Forest.Trees), gbtModel.GbtHeader.NumTrees, "")
	if gbtModel.GbtHeader.NumTrees > 50 {
		t.Errorf("too many trees: %d", gbtModel.GbtHeader.NumTrees)
	}

	preds := modeltest.Predict(t, m, testDs)
	if acc := modeltest.Accuracy(preds, testDs); acc < modeltest.MajorityRate(testDs)-0.03 {
		t.Errorf("accuracy %v is below the majority rate", acc)
	}
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitMulticlass(t *testing.T) {
	train, valid, testDs := modeltest.Data(t, "covertype_small", 600)
	m := modeltest.Fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 10, "num_leaves": 8}, train, valid)

	gbtModel := m.(*gbt.Model)
	test.CheckEq(t, gbtModel.GbtHeader.Loss, gbt.MultinomialLogLikelihood, "")
	test.CheckEq(t, gbtModel.GbtHeader.NumTreesPerIter, 7, "")
	test.CheckEq(t, gbtModel.GbtHeader.NumTrees%7, 0, "")
	for _, tree := range gbtModel.Forest.Trees {
		if tree.Root.NumLeafs() > 8 {
			t.Fatalf("tree with %d leaves", tree.Root.NumLeafs())
		}
	}
	modeltest.Predict(t, m, testDs)
	modeltest.CheckSaveLoad(t, m, testDs)
}

func TestFitRegression(t *testing.T) {
	train, valid, testDs := modeltest.Regression(t, 600)
	m := modeltest.Fit(t, gbt.Spec, model.Hyperparameters{"num_boost_round": 100}, train, valid)
	preds := modeltest.Predict(t, m, testDs)
	if rmse := modeltest.RMSE(preds, testDs); rmse > 0.5*modeltest.Std(testDs) {
		t.Errorf("rmse %v is too large (label std %v)", rmse, modeltest.Std(testDs))
	}
}

func TestFitCancelled(t *testing.T) {
	train, valid, _ := modeltest.Data(t, "adult", 200)
	m := gbt.Spec.New(train, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if err := m.Fit(ctx, &model.FitInput{Train: train, Validation: valid}); err == nil {
		t.Error("expected an error")
	}
}

func TestActivation(t *testing.T) {
	test.CheckSlicesNear(t, [][]float64{gbt.Activation(gbt.BinomialLogLikelihood, []float64{0})}, [][]float64{{0.5, 0.5}}, 1e-12, "binomial")
	test.CheckSlicesNear(t, [][]float64{gbt.Activation(gbt.MultinomialLogLikelihood, []float64{1, 1, 1})}, [][]float64{{1. / 3, 1. / 3, 1. / 3}}, 1e-12, "multinomial")
	test.CheckEq(t, gbt.Activation(gbt.SquaredError, []float64{3}), []float64{3}, "regression")
}
