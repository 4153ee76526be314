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

package register_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/utils/test"
)

func specs() []model.Spec {
	return []model.Spec{
		{Key: "RF", Name: "RandomForest", Priority: 80, Problems: model.AllProblems, Tags: []string{model.TagTree}},
		{Key: "KNN", Name: "KNeighbors", Priority: 100, Problems: model.AllProblems},
		{Key: "XT", Name: "ExtraTrees", Priority: 80, Problems: model.AllProblems, Tags: []string{model.TagTree}},
		{Key: "TABPFN", Name: "TabPFN", Priority: 110, Problems: model.ClassificationProblems, Tags: []string{model.TagExternal}},
		{Key: "DUMMY", Name: "Dummy", Problems: model.AllProblems},
	}
}

func TestNew(t *testing.T) {
	r, err := register.New(specs()...)
	require.NoError(t, err)
	test.CheckEq(t, r.Len(), 5, "")
	test.CheckEq(t, r.Keys(), []string{"RF", "KNN", "XT", "TABPFN", "DUMMY"}, "")
	test.CheckEq(t, r.NameMap()["XT"], "ExtraTrees", "")
	test.CheckEq(t, r.PriorityMap()["TABPFN"], 110, "")
	assert.True(t, r.Exists("KNN"))
	assert.False(t, r.Exists("knn"))

	spec, err := r.Get("XT")
	require.NoError(t, err)
	test.CheckEq(t, spec.Name, "ExtraTrees", "")
}

func TestDuplicate(t *testing.T) {
	_, err := register.New(append(specs(), model.Spec{Key: "RF", Name: "Other"})...)
	var dup *register.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	test.CheckEq(t, dup.Key, "RF", "")

	assert.Panics(t, func() { register.MustNew(specs()[0], specs()[0]) })
}

func TestUnknownKey(t *testing.T) {
	r := register.MustNew(specs()...)
	_, err := r.Get("TABPF")
	var unknown *register.UnknownKeyError
	require.True(t, errors.As(err, &unknown))
	test.CheckEq(t, unknown.Suggestion, "TABPFN", "")
	test.CheckEq(t, err.Error(), `unknown model key "TABPF", did you mean "TABPFN"?`, "")

	_, err = r.Get("extratrees")
	require.ErrorAs(t, err, &unknown)
	test.CheckEq(t, unknown.Suggestion, "XT", "")

	_, err = r.Get("SOMETHING_ELSE_ENTIRELY")
	require.ErrorAs(t, err, &unknown)
	test.CheckEq(t, unknown.Suggestion, "", "")
}

func TestRemove(t *testing.T) {
	r := register.MustNew(specs()...)
	assert.True(t, r.Remove("KNN"))
	assert.False(t, r.Remove("KNN"))
	test.CheckEq(t, r.Keys(), []string{"RF", "XT", "TABPFN", "DUMMY"}, "")
	spec, err := r.Get("DUMMY")
	require.NoError(t, err)
	test.CheckEq(t, spec.Key, "DUMMY", "")
	require.NoError(t, r.Add(model.Spec{Key: "KNN", Name: "KNeighbors"}))
	test.CheckEq(t, r.Keys(), []string{"RF", "XT", "TABPFN", "DUMMY", "KNN"}, "")
}

func TestSortedByPriority(t *testing.T) {
	r := register.MustNew(specs()...)
	var keys []string
	for _, s := range r.SortedByPriority() {
		keys = append(keys, s.Key)
	}
	test.CheckEq(t, keys, []string{"TABPFN", "KNN", "RF", "XT", "DUMMY"}, "")
	// The register itself is not reordered.
	test.CheckEq(t, r.Keys()[0], "RF", "")
}

func TestSelect(t *testing.T) {
	r := register.MustNew(specs()...)
	keys := func(specs []model.Spec) []string {
		var out []string
		for _, s := range specs {
			out = append(out, s.Key)
		}
		return out
	}

	selected, err := r.Select(`"tree" in Tags`)
	require.NoError(t, err)
	test.CheckEq(t, keys(selected), []string{"RF", "XT"}, "")

	selected, err = r.Select(`Priority >= 100 && "` + string(dataset.Regression) + `" in Problems`)
	require.NoError(t, err)
	test.CheckEq(t, keys(selected), []string{"KNN"}, "")

	selected, err = r.Select(`Key startsWith "D" || Name == "TabPFN"`)
	require.NoError(t, err)
	test.CheckEq(t, keys(selected), []string{"TABPFN", "DUMMY"}, "")

	_, err = r.Select(`Priority +`)
	require.Error(t, err)
	_, err = r.Select(`Priority`)
	require.Error(t, err)
}
