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

package example

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/utils/test"
)

func toySpec(t *testing.T) (*dataset.DataSpec, *model.Header) {
	t.Helper()
	rows := [][]string{
		{"1.5", "UK", "a long sentence about cats", "yes"},
		{"2.5", "FR", "another sentence about dogs", "no"},
		{"NA", "UK", "third text value", "yes"},
		{"4", "DE", "yet another text", "no"},
	}
	ds, err := dataset.FromRecords([]string{"age", "country", "comment", "label"}, rows, dataset.InferOptions{
		Label:       "label",
		ColumnTypes: map[string]dataset.ColumnType{"country": dataset.Categorical, "comment": dataset.Text},
	})
	require.NoError(t, err)
	header := &model.Header{Problem: ds.Spec.Problem, Label: "label", InputFeatures: []int{0, 1, 2}}
	return ds.Spec, header
}

func TestNewFeatures(t *testing.T) {
	spec, header := toySpec(t)
	features, buildMap, err := NewFeatures(spec, header)
	require.NoError(t, err)

	test.CheckEq(t, features.NumericalFeatures, map[string]NumericalFeatureID{"age": 0}, "")
	test.CheckEq(t, features.CategoricalFeatures, map[string]CategoricalFeatureID{"country": 0}, "")
	test.CheckEq(t, features.StringFeatures, map[string]StringFeatureID{"comment": 0}, "")
	test.CheckEq(t, buildMap.NumericalFeatures, map[int]NumericalFeatureID{0: 0}, "")
	test.CheckEq(t, buildMap.CategoricalFeatures, map[int]CategoricalFeatureID{1: 0}, "")
	test.CheckEq(t, features.CategoricalSpec[0].NumUniqueValues, uint32(4), "")
	test.CheckEq(t, features.Names(), []string{"age", "comment", "country"}, "")
	assert.True(t, math.IsNaN(float64(features.MissingNumericalValues[0])))
	test.CheckEq(t, features.MissingCategoricalValues, []uint32{OutOfVocabulary}, "")
}

func TestSetFromFieldsAndToDataset(t *testing.T) {
	spec, header := toySpec(t)
	features, _, err := NewFeatures(spec, header)
	require.NoError(t, err)

	batch := NewBatch(3, features)
	batch.FillMissing()
	require.NoError(t, batch.SetFromFields(0, []string{"age", "country", "comment", "unused"},
		[]string{"30", "FR", "hello", "x"}))
	require.NoError(t, batch.SetFromMap(1, map[string]string{"age": "NA", "country": "Mars"}))
	require.Error(t, batch.SetFromFields(2, []string{"age"}, []string{"not a number"}))
	require.Error(t, batch.SetFromFields(2, []string{"age", "country"}, []string{"1"}))

	ds, err := batch.ToDataset(spec, 2)
	require.NoError(t, err)
	test.CheckEq(t, ds.NumRows(), 2, "")
	test.CheckEq(t, ds.Value(0, 0), "30", "")
	test.CheckEq(t, ds.Value(0, 1), "FR", "")
	test.CheckEq(t, ds.Value(0, 2), "hello", "")
	test.CheckEq(t, ds.Value(1, 0), "", "missing numerical")
	test.CheckEq(t, ds.Value(1, 1), "", "unknown categorical")
	test.CheckEq(t, ds.HasLabel(0), false, "")

	_, err = batch.ToDataset(spec, 4)
	require.Error(t, err)
}

func TestCopyFromAndDebug(t *testing.T) {
	spec, header := toySpec(t)
	features, _, err := NewFeatures(spec, header)
	require.NoError(t, err)

	src := NewBatch(2, features)
	src.FillMissing()
	src.SetNumerical(1, features.NumericalFeatures["age"], 12)
	src.SetCategoricalFromString(1, features.CategoricalFeatures["country"], "DE")
	src.SetString(1, features.StringFeatures["comment"], "copied")

	dst := NewBatch(1, features)
	dst.CopyFrom(src, 1, 2)
	test.CheckEq(t, dst.NumericalValues, []float32{12}, "")
	test.CheckEq(t, dst.StringValues, []string{"copied"}, "")

	repr := dst.ToStringDebug()
	assert.True(t, strings.Contains(repr, `"country" (CATEGORICAL id:0): "DE"`), repr)
	assert.True(t, strings.Contains(repr, `"comment" (STRING id:0): "copied"`), repr)
}

func TestOverrideMissingValuePlaceholders(t *testing.T) {
	spec, header := toySpec(t)
	features, _, err := NewFeatures(spec, header)
	require.NoError(t, err)
	features.OverrideMissingValuePlaceholders(-1, "UK")

	batch := NewBatch(1, features)
	batch.FillMissing()
	test.CheckEq(t, batch.NumericalValues, []float32{-1}, "")
	test.CheckEq(t, batch.CategoricalValues, []uint32{features.CategoricalSpec[0].Dictionary["UK"]}, "")
}
