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
	"fmt"
	"math"
	"strconv"
	"strings"
)

// InferOptions controls the inference of a dataspec from raw records.
type InferOptions struct {
	// Label is the name of the label column. Required.
	Label string
	// Problem forces the problem type. Inferred from the label column if empty: a
	// categorical label, or a numerical label with at most MaxInferredClasses distinct
	// integer values, is a classification label.
	Problem ProblemType
	// ColumnTypes forces the type of some columns.
	ColumnTypes map[string]ColumnType
	// MinVocabCount is the minimum number of occurrences of a categorical feature value to be
	// part of the dictionary. Defaults to 1.
	MinVocabCount int
	// MaxVocabCount is the maximum dictionary size of a categorical feature. Defaults to 2000.
	MaxVocabCount int
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// inferColumnType guesses the type of a column from its raw values.
func inferColumnType(values []string) ColumnType {
	numNonMissing := 0
	numNumerical := 0
	numImages := 0
	numTokens := 0
	unique := map[string]struct{}{}
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		numNonMissing++
		unique[v] = struct{}{}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numNumerical++
		}
		lower := strings.ToLower(v)
		for _, ext := range imageExtensions {
			if strings.HasSuffix(lower, ext) {
				numImages++
				break
			}
		}
		numTokens += len(strings.Fields(v))
	}
	switch {
	case numNonMissing == 0:
		return Numerical
	case numNumerical == numNonMissing:
		return Numerical
	case numImages == numNonMissing:
		return Image
	case float64(numTokens)/float64(numNonMissing) >= 3 &&
		float64(len(unique))/float64(numNonMissing) > 0.5:
		return Text
	}
	return Categorical
}

// MaxInferredClasses is the maximum number of distinct integer values of a numerical label
// inferred as a classification label.
const MaxInferredClasses = 20

// isClassLabel tests if a numerical label only contains a few distinct integer values, e.g.
// 0/1 or 1..7.
func isClassLabel(values []string) bool {
	unique := map[float64]struct{}{}
	for _, raw := range values {
		if IsMissing(raw) {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v != math.Trunc(v) {
			return false
		}
		unique[v] = struct{}{}
		if len(unique) > MaxInferredClasses {
			return false
		}
	}
	return len(unique) >= 2
}

// FromRecords builds a dataset and infers its dataspec from string records. "header" contains
// the column names, and each row of "rows" contains one value per column.
func FromRecords(header []string, rows [][]string, opts InferOptions) (*Dataset, error) {
	if opts.Label == "" {
		return nil, fmt.Errorf("the label column is not specified")
	}
	if opts.MinVocabCount <= 0 {
		opts.MinVocabCount = 1
	}
	if opts.MaxVocabCount <= 0 {
		opts.MaxVocabCount = 2000
	}

	labelIdx := -1
	for i, name := range header {
		if name == opts.Label {
			labelIdx = i
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found in %v", opts.Label, header)
	}

	columnValues := make([][]string, len(header))
	for c := range header {
		columnValues[c] = make([]string, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expecting %d", r, len(row), len(header))
		}
		for c, v := range row {
			columnValues[c][r] = strings.TrimSpace(v)
		}
	}

	spec := &DataSpec{Label: labelIdx, NumRows: len(rows), Columns: make([]Column, len(header))}
	for c, name := range header {
		column := Column{Name: name}
		if forced, ok := opts.ColumnTypes[name]; ok {
			column.Type = forced
		} else {
			column.Type = inferColumnType(columnValues[c])
		}

		if c == labelIdx {
			switch {
			case opts.Problem == Regression && column.Type != Numerical:
				return nil, fmt.Errorf("regression label %q is not numerical", name)
			case opts.Problem == Binary || opts.Problem == Multiclass:
				column.Type = Categorical
			case column.Type != Numerical:
				column.Type = Categorical
			case opts.Problem == "" && isClassLabel(columnValues[c]):
				column.Type = Categorical
			}
		}

		switch column.Type {
		case Numerical:
			column.Numerical = numericalStats(columnValues[c])
		case Categorical:
			counts := map[string]int{}
			for _, v := range columnValues[c] {
				if !IsMissing(v) {
					counts[v]++
				}
			}
			if c == labelIdx {
				column.Categorical = newCategoricalSpec(counts, true, 1, 0)
			} else {
				column.Categorical = newCategoricalSpec(counts, false, opts.MinVocabCount, opts.MaxVocabCount)
			}
		}
		spec.Columns[c] = column
	}

	label := spec.LabelColumn()
	switch {
	case label.Type == Numerical:
		spec.Problem = Regression
	case label.Categorical.NumValues()-1 < 2:
		return nil, fmt.Errorf("label %q has %d class(es), expecting at least 2", label.Name, label.Categorical.NumValues()-1)
	case opts.Problem == Binary && label.Categorical.NumValues()-1 != 2:
		return nil, fmt.Errorf("binary label %q has %d classes", label.Name, label.Categorical.NumValues()-1)
	case label.Categorical.NumValues()-1 == 2:
		spec.Problem = Binary
	default:
		spec.Problem = Multiclass
	}

	ds := NewEmpty(spec, len(rows))
	for c := range header {
		for r, v := range columnValues[c] {
			if err := ds.SetValue(r, c, v); err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
		}
	}
	return ds, nil
}

// FromRecordsWithSpec builds a dataset with an existing dataspec. Columns are matched by name.
// Columns of the dataspec absent from "header" (e.g. the label at prediction time) are missing.
func FromRecordsWithSpec(spec *DataSpec, header []string, rows [][]string) (*Dataset, error) {
	mapping := make([]int, len(header))
	for i, name := range header {
		mapping[i] = spec.ColumnIndex(name)
	}
	ds := NewEmpty(spec, len(rows))
	for r, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expecting %d", r, len(row), len(header))
		}
		for i, v := range row {
			if mapping[i] < 0 {
				continue
			}
			if err := ds.SetValue(r, mapping[i], strings.TrimSpace(v)); err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
		}
	}
	return ds, nil
}

func numericalStats(values []string) *NumericalSpec {
	spec := &NumericalSpec{Min: math.Inf(1), Max: math.Inf(-1)}
	sum, sumSq := 0.0, 0.0
	n := 0
	for _, raw := range values {
		if IsMissing(raw) {
			spec.NumMissing++
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			spec.NumMissing++
			continue
		}
		n++
		sum += v
		sumSq += v * v
		spec.Min = math.Min(spec.Min, v)
		spec.Max = math.Max(spec.Max, v)
	}
	if n == 0 {
		spec.Min, spec.Max = 0, 0
		return spec
	}
	spec.Mean = sum / float64(n)
	variance := sumSq/float64(n) - spec.Mean*spec.Mean
	if variance > 0 {
		spec.Std = math.Sqrt(variance)
	}
	return spec
}
