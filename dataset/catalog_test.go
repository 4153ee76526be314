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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/utils/test"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestGeneratedDatasets(t *testing.T) {
	ctx := context.Background()
	test.CheckEq(t, dataset.Names(), []string{"adult", "covertype_small"}, "")

	train, testDs, err := dataset.Load(ctx, "adult", "")
	require.NoError(t, err)
	test.CheckEq(t, train.Spec.Problem, dataset.Binary, "")
	test.CheckEq(t, train.Spec.LabelColumn().Name, "class", "")
	test.CheckEq(t, train.Spec.Classes(), []string{"<=50K", ">50K"}, "")
	test.CheckEq(t, train.NumRows(), 2000, "")
	test.CheckEq(t, testDs.NumRows(), 500, "")
	test.CheckEq(t, testDs.Spec == train.Spec, true, "")

	again, _, err := dataset.Load(ctx, "adult", "")
	require.NoError(t, err)
	test.CheckEq(t, again.Labels(), train.Labels(), "deterministic")

	train, _, err = dataset.Load(ctx, "covertype_small", "")
	require.NoError(t, err)
	test.CheckEq(t, train.Spec.Problem, dataset.Multiclass, "")
	test.CheckEq(t, train.Spec.Classes(), []string{"1", "2", "3", "4", "5", "6", "7"}, "")
}

func TestUnknownDataset(t *testing.T) {
	_, _, err := dataset.Load(context.Background(), "no_such_dataset", t.TempDir())
	require.Error(t, err)
}

func TestLoadWithMeta(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, filepath.Join(dir, "houses"), map[string]string{
		"meta.yaml": "label: price\nproblem_type: regression\ntrain: houses_train.csv\ntest: houses_test.csv\n" +
			"columns:\n  zip: CATEGORICAL\n",
		"houses_train.csv": "rooms,zip,price\n3,75001,300\n4,75002,420\n2,75001,210\n5,75003,500\n",
		"houses_test.csv":  "rooms,zip,price\n3,75002,330\n1,99999,90\n",
	})

	train, testDs, err := dataset.Load(context.Background(), "houses", dir)
	require.NoError(t, err)
	test.CheckEq(t, train.Spec.Problem, dataset.Regression, "")
	test.CheckEq(t, train.Spec.LabelColumn().Name, "price", "")
	test.CheckEq(t, train.Spec.Columns[1].Type, dataset.Categorical, "")
	test.CheckEq(t, train.NumRows(), 4, "")
	test.CheckEq(t, testDs.NumRows(), 2, "")
	test.CheckEq(t, testDs.Targets(), []float64{330, 90}, "")
	test.CheckEq(t, testDs.Categorical(1)[1], dataset.OutOfVocabulary, "")
}

func TestLoadIntegerLabelFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, filepath.Join(dir, "digits"), map[string]string{
		"meta.yaml": "label: digit\n",
		"train.csv": "a,b,digit\n1,2,0\n3,4,1\n5,6,2\n7,8,1\n9,0,0\n",
		"test.csv":  "a,b,digit\n1,2,2\n",
	})

	train, testDs, err := dataset.Load(context.Background(), "digits", dir)
	require.NoError(t, err)
	test.CheckEq(t, train.Spec.Problem, dataset.Multiclass, "")
	test.CheckEq(t, train.Spec.Classes(), []string{"0", "1", "2"}, "")
	test.CheckEq(t, testDs.Labels(), []int{2}, "")
}

func TestLoadCatalogDatasetFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, filepath.Join(dir, "adult"), map[string]string{
		"train.csv": "age,class\n25,<=50K\n52,>50K\n33,<=50K\n",
		"test.csv":  "age,class\n41,>50K\n",
	})

	train, testDs, err := dataset.Load(context.Background(), "adult", dir)
	require.NoError(t, err)
	test.CheckEq(t, train.NumRows(), 3, "")
	test.CheckEq(t, train.Spec.Problem, dataset.Binary, "")
	test.CheckEq(t, testDs.Labels(), []int{1}, "")
}

func TestLoadWithoutLabel(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, filepath.Join(dir, "unlabeled"), map[string]string{
		"train.csv": "a,b\n1,2\n",
	})
	_, _, err := dataset.Load(context.Background(), "unlabeled", dir)
	require.ErrorContains(t, err, "meta.yaml")
}
