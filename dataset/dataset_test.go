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

package dataset_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/utils/test"
)

// labelRows creates records with a numerical feature and the given labels.
func labelRows(labels ...string) ([]string, [][]string) {
	rows := make([][]string, len(labels))
	for i, l := range labels {
		rows[i] = []string{fmt.Sprint(i), l}
	}
	return []string{"x", "y"}, rows
}

func repeat(values []string, n int) []string {
	var out []string
	for i := 0; i < n; i++ {
		out = append(out, values[i%len(values)])
	}
	return out
}

func TestInferColumnTypes(t *testing.T) {
	header := []string{"age", "city", "comment", "photo", "label"}
	rows := [][]string{
		{"10", "paris", "a very nice place to stay", "a.png", "yes"},
		{"20", "rome", "the food was cold and late", "b.JPG", "no"},
		{"NA", "paris", "nothing to say about it", "c.png", "yes"},
		{"40", "", "would come back again soon", "d.png", "no"},
	}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "label"})
	require.NoError(t, err)

	var types []dataset.ColumnType
	for _, c := range ds.Spec.Columns {
		types = append(types, c.Type)
	}
	test.CheckEq(t, types, []dataset.ColumnType{dataset.Numerical, dataset.Categorical, dataset.Text,
		dataset.Image, dataset.Categorical}, "")
	test.CheckEq(t, ds.Spec.Problem, dataset.Binary, "")
	test.CheckEq(t, ds.Spec.Classes(), []string{"no", "yes"}, "")
	test.CheckEq(t, ds.Spec.Features(), []int{0, 1, 2, 3}, "")

	test.CheckEq(t, ds.Spec.Columns[0].Numerical.NumMissing, 1, "")
	test.CheckNear(t, ds.Spec.Columns[0].Numerical.Mean, 70./3, 1e-9, "")
	test.CheckEq(t, math.IsNaN(ds.Numerical(0)[2]), true, "")
	test.CheckEq(t, ds.Value(2, 0), "", "")
	test.CheckEq(t, ds.Categorical(1)[3], dataset.OutOfVocabulary, "")
	test.CheckEq(t, ds.Value(0, 1), "paris", "")
	test.CheckEq(t, ds.Value(1, 3), "b.JPG", "")
}

func TestInferProblem(t *testing.T) {
	manyIntegers := make([]string, 30)
	for i := range manyIntegers {
		manyIntegers[i] = fmt.Sprint(i * 3)
	}
	for _, tc := range []struct {
		name    string
		labels  []string
		forced  dataset.ProblemType
		problem dataset.ProblemType
		classes []string
	}{
		{"strings", repeat([]string{"a", "b"}, 10), "", dataset.Binary, []string{"a", "b"}},
		{"zero one", repeat([]string{"0", "1"}, 10), "", dataset.Binary, []string{"0", "1"}},
		{"small integers", repeat([]string{"1", "2", "3"}, 12), "", dataset.Multiclass, []string{"1", "2", "3"}},
		{"numerical order", repeat([]string{"10", "9", "2", "1"}, 12), "", dataset.Multiclass, []string{"1", "2", "9", "10"}},
		{"fractions", repeat([]string{"0.5", "1.5", "2"}, 12), "", dataset.Regression, nil},
		{"many integers", manyIntegers, "", dataset.Regression, nil},
		{"forced regression", repeat([]string{"0", "1"}, 10), dataset.Regression, dataset.Regression, nil},
		{"forced multiclass", repeat([]string{"0.5", "1.5", "2"}, 12), dataset.Multiclass, dataset.Multiclass, []string{"0.5", "1.5", "2"}},
	} {
		header, rows := labelRows(tc.labels...)
		ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y", Problem: tc.forced})
		require.NoError(t, err, tc.name)
		test.CheckEq(t, ds.Spec.Problem, tc.problem, tc.name)
		if tc.classes != nil {
			test.CheckEq(t, ds.Spec.Classes(), tc.classes, tc.name)
		}
	}
}

func TestInferProblemErrors(t *testing.T) {
	header, rows := labelRows("a", "a", "a")
	_, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.Error(t, err, "single class")

	header, rows = labelRows("a", "b", "c")
	_, err = dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y", Problem: dataset.Binary})
	require.Error(t, err, "binary with three classes")

	_, err = dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y", Problem: dataset.Regression})
	require.Error(t, err, "regression on strings")

	_, err = dataset.FromRecords(header, rows, dataset.InferOptions{Label: "z"})
	require.Error(t, err, "unknown label")

	_, err = dataset.FromRecords(header, [][]string{{"1"}}, dataset.InferOptions{Label: "y"})
	require.Error(t, err, "short row")
}

func TestMissingLabels(t *testing.T) {
	header, rows := labelRows("a", "", "b", "?", "a")
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	test.CheckEq(t, ds.Labels(), []int{0, -1, 1, -1, 0}, "")
	test.CheckEq(t, ds.HasLabel(1), false, "")

	labeled := ds.DropMissingLabels()
	test.CheckEq(t, labeled.NumRows(), 3, "")
	test.CheckEq(t, labeled.Labels(), []int{0, 1, 0}, "")
	test.CheckEq(t, labeled.Numerical(0), []float64{0, 2, 4}, "")

	header, rows = labelRows("1.5", "NA", "2.5")
	ds, err = dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	test.CheckEq(t, ds.DropMissingLabels().Targets(), []float64{1.5, 2.5}, "")
}

func TestSplitIsStratified(t *testing.T) {
	labels := make([]string, 100)
	for i := range labels {
		labels[i] = "a"
		if i%5 == 0 {
			labels[i] = "b"
		}
	}
	header, rows := labelRows(labels...)
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)

	first, second, err := ds.Split(0.25, 1)
	require.NoError(t, err)
	count := func(d *dataset.Dataset) map[int]int {
		counts := map[int]int{}
		for _, l := range d.Labels() {
			counts[l]++
		}
		return counts
	}
	test.CheckEq(t, count(second), map[int]int{0: 20, 1: 5}, "")
	test.CheckEq(t, count(first), map[int]int{0: 60, 1: 15}, "")
	test.CheckEq(t, first.Spec == ds.Spec, true, "shared dataspec")

	again, _, err := ds.Split(0.25, 1)
	require.NoError(t, err)
	test.CheckEq(t, again.Numerical(0), first.Numerical(0), "deterministic")

	_, _, err = ds.Split(0, 1)
	require.Error(t, err)
	_, _, err = ds.Split(1, 1)
	require.Error(t, err)
}

func TestSubsample(t *testing.T) {
	header, rows := labelRows(repeat([]string{"a", "b"}, 50)...)
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "y"})
	require.NoError(t, err)

	test.CheckEq(t, ds.Subsample(100, 1) == ds, true, "")
	test.CheckEq(t, ds.Subsample(0, 1) == ds, true, "")

	sub := ds.Subsample(10, 3)
	test.CheckEq(t, sub.NumRows(), 10, "")
	test.CheckEq(t, ds.Subsample(10, 3).Numerical(0), sub.Numerical(0), "deterministic")
	values := sub.Numerical(0)
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			t.Fatalf("rows are not kept in order: %v", values)
		}
	}
}

func TestReencode(t *testing.T) {
	train, err := dataset.FromRecords([]string{"x", "c", "y"},
		[][]string{{"1", "red", "a"}, {"2", "blue", "b"}, {"3", "red", "a"}},
		dataset.InferOptions{Label: "y"})
	require.NoError(t, err)
	other, err := dataset.FromRecords([]string{"c", "y"},
		[][]string{{"blue", "b"}, {"green", "a"}},
		dataset.InferOptions{Label: "y"})
	require.NoError(t, err)

	encoded, err := other.Reencode(train.Spec)
	require.NoError(t, err)
	test.CheckEq(t, encoded.Spec == train.Spec, true, "")
	test.CheckEq(t, math.IsNaN(encoded.Numerical(0)[0]), true, "absent column")
	test.CheckEq(t, encoded.Value(0, 1), "blue", "")
	test.CheckEq(t, encoded.Categorical(1)[1], dataset.OutOfVocabulary, "unknown value")
	test.CheckEq(t, encoded.Value(0, 2), "b", "")
	test.CheckEq(t, encoded.Value(1, 2), "a", "")

	same, err := train.Reencode(train.Spec)
	require.NoError(t, err)
	test.CheckEq(t, same == train, true, "")
}

func TestCSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	header := []string{"age", "city", "comment", "label"}
	rows := [][]string{
		{"10.5", "paris", "a very nice place, to stay", "yes"},
		{"", "rome", "the \"food\" was cold and late", "no"},
		{"-3", "", "nothing to say about it", "yes"},
	}
	ds, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "label"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ds.csv")
	require.NoError(t, dataset.WriteCSV(ctx, path, ds))
	gotHeader, _, err := dataset.ReadCSV(ctx, path)
	require.NoError(t, err)
	test.CheckEq(t, gotHeader, header, "")

	loaded, err := dataset.LoadCSVWithSpec(ctx, path, ds.Spec)
	require.NoError(t, err)
	test.CheckEq(t, loaded.NumRows(), ds.NumRows(), "")
	for r := 0; r < ds.NumRows(); r++ {
		for c := range header {
			test.CheckEq(t, loaded.Value(r, c), ds.Value(r, c), fmt.Sprintf("row %d column %d", r, c))
		}
	}

	inferred, err := dataset.LoadCSV(ctx, path, dataset.InferOptions{Label: "label"})
	require.NoError(t, err)
	test.CheckEq(t, inferred.Spec.Problem, dataset.Binary, "")
}
