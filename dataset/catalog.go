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

package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/autotabular/tabular/utils/file"
)

// Meta describes a dataset stored on disk. It is read from "<dir>/<name>/meta.yaml".
// Every field is optional for the datasets of the catalog.
type Meta struct {
	Label       string            `yaml:"label"`
	ProblemType string            `yaml:"problem_type"`
	Train       string            `yaml:"train"`
	Test        string            `yaml:"test"`
	Columns     map[string]string `yaml:"columns"`
}

// Info describes a named dataset known to the catalog.
type Info struct {
	Name    string
	Label   string
	Problem ProblemType
	// Generate creates "numRows" raw records. Used when the dataset is not available on disk.
	Generate  func(numRows int, seed int64) (header []string, rows [][]string)
	TrainRows int
	TestRows  int
}

var (
	catalogMu sync.RWMutex
	catalog   = map[string]Info{}
)

// Register adds a named dataset to the catalog. Only call this during initialization.
func Register(info Info) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, exists := catalog[info.Name]; exists {
		panic(fmt.Sprintf("dataset %q registered twice", info.Name))
	}
	catalog[info.Name] = info
}

// Names lists the registered datasets.
func Names() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load loads the train and test splits of a named dataset. The test split is encoded with the
// dataspec of the train split.
//
// If "<dir>/<name>/train.csv" exists, the dataset is read from disk. The label and problem
// type come from the optional "<dir>/<name>/meta.yaml", or from the catalog. Otherwise, the
// registered generator of the dataset is used.
func Load(ctx context.Context, name string, dir string) (train *Dataset, test *Dataset, err error) {
	catalogMu.RLock()
	info, registered := catalog[name]
	catalogMu.RUnlock()

	if dir != "" {
		datasetDir := filepath.Join(dir, name)
		meta, found, err := readMeta(ctx, datasetDir)
		if err != nil {
			return nil, nil, err
		}
		if !found && registered {
			meta = Meta{Label: info.Label, ProblemType: string(info.Problem)}
		}
		exists, err := file.Exists(ctx, filepath.Join(datasetDir, meta.Train))
		if err != nil {
			return nil, nil, err
		}
		if exists {
			if meta.Label == "" {
				return nil, nil, fmt.Errorf("dataset %q: no label, add a meta.yaml file", name)
			}
			return loadFromDisk(ctx, datasetDir, meta)
		}
	}

	if !registered {
		return nil, nil, fmt.Errorf("unknown dataset %q. The available datasets are: %v", name, Names())
	}
	opts := InferOptions{Label: info.Label, Problem: info.Problem}
	header, rows := info.Generate(info.TrainRows, 1)
	train, err = FromRecords(header, rows, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	header, rows = info.Generate(info.TestRows, 2)
	test, err = FromRecordsWithSpec(train.Spec, header, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	return train, test, nil
}

// readMeta reads "<dir>/meta.yaml" if present. The file names default to "train.csv" and
// "test.csv".
func readMeta(ctx context.Context, dir string) (meta Meta, found bool, err error) {
	metaPath := filepath.Join(dir, "meta.yaml")
	exists, err := file.Exists(ctx, metaPath)
	if err != nil {
		return Meta{}, false, err
	}
	if exists {
		content, err := file.ReadFile(ctx, metaPath)
		if err != nil {
			return Meta{}, false, err
		}
		if err := yaml.Unmarshal(content, &meta); err != nil {
			return Meta{}, false, fmt.Errorf("parse %q: %w", metaPath, err)
		}
	}
	if meta.Train == "" {
		meta.Train = "train.csv"
	}
	if meta.Test == "" {
		meta.Test = "test.csv"
	}
	return meta, exists, nil
}

func loadFromDisk(ctx context.Context, dir string, meta Meta) (*Dataset, *Dataset, error) {
	var err error
	opts := InferOptions{Label: meta.Label, ColumnTypes: map[string]ColumnType{}}
	if meta.ProblemType != "" {
		if opts.Problem, err = ParseProblemType(meta.ProblemType); err != nil {
			return nil, nil, err
		}
	}
	for column, rawType := range meta.Columns {
		if opts.ColumnTypes[column], err = ParseColumnType(rawType); err != nil {
			return nil, nil, fmt.Errorf("column %q: %w", column, err)
		}
	}

	train, err := LoadCSV(ctx, filepath.Join(dir, meta.Train), opts)
	if err != nil {
		return nil, nil, err
	}
	test, err := LoadCSVWithSpec(ctx, filepath.Join(dir, meta.Test), train.Spec)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
