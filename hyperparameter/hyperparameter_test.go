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

package hyperparameter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/utils/test"
)

const src = `
model "GBM" {
  learning_rate = 0.05
  num_leaves    = 64
}

model "GBM" {
  extra_trees = true
}

model "NN_TORCH" {
  hidden     = [128, 64]
  activation = "relu"
}

model "DUMMY" {}
`

func TestParseHCL(t *testing.T) {
	c, err := hyperparameter.ParseHCL([]byte(src), "test.hcl", canonical.Register)
	require.NoError(t, err)
	test.CheckEq(t, c.Keys(), []string{"DUMMY", "GBM", "NN_TORCH"}, "")
	test.CheckEq(t, c.NumModels(), 4, "")
	test.CheckEq(t, c["GBM"], []model.Hyperparameters{
		{"learning_rate": 0.05, "num_leaves": 64},
		{"extra_trees": true},
	}, "")
	test.CheckEq(t, c["NN_TORCH"][0].Ints("hidden", nil), []int{128, 64}, "")
	test.CheckEq(t, c["NN_TORCH"][0].Str("activation", ""), "relu", "")
	test.CheckEq(t, c["DUMMY"], []model.Hyperparameters{{}}, "")
}

func TestParseHCLUnknownKey(t *testing.T) {
	_, err := hyperparameter.ParseHCL([]byte(`model "GMB" { num_leaves = 3 }`), "test.hcl", canonical.Register)
	var unknown *register.UnknownKeyError
	require.ErrorAs(t, err, &unknown)
	test.CheckEq(t, unknown.Suggestion, "GBM", "")

	// Without register, the keys are not validated.
	c, err := hyperparameter.ParseHCL([]byte(`model "GMB" { num_leaves = 3 }`), "test.hcl", nil)
	require.NoError(t, err)
	require.ErrorAs(t, c.Validate(canonical.Register), &unknown)
}

func TestParseHCLErrors(t *testing.T) {
	for _, bad := range []string{
		`model "GBM" { num_leaves = }`,
		`model { num_leaves = 3 }`,
		`model "GBM" { nested { a = 1 } }`,
		`model "GBM" { a = [[1], [2]] }`,
		`model "GBM" { a = { b = 1 } }`,
		`model "GBM" { a = null }`,
	} {
		_, err := hyperparameter.ParseHCL([]byte(bad), "bad.hcl", nil)
		require.Error(t, err, bad)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hp.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	c, err := hyperparameter.LoadFile(context.Background(), path, canonical.Register)
	require.NoError(t, err)
	test.CheckEq(t, c.NumModels(), 4, "")

	_, err = hyperparameter.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"), nil)
	require.Error(t, err)
}

func TestFromKeys(t *testing.T) {
	c, err := hyperparameter.FromKeys(canonical.Register, "RF", "DUMMY")
	require.NoError(t, err)
	test.CheckEq(t, c.Keys(), []string{"DUMMY", "RF"}, "")

	_, err = hyperparameter.FromKeys(canonical.Register, "NOPE")
	require.Error(t, err)
}
