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

// Package dataset contains the in-memory representation of tabular datasets and their
// specification (the "dataspec").
//
// A dataset is stored column by column. Numerical values are float64 with NaN for missing
// values. Categorical values are indices in the column dictionary, where index 0
// (OutOfVocabulary) represents both missing and unknown values. Text and image columns keep
// the raw strings (an image column contains file paths).
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ColumnType is the semantic type of a column.
type ColumnType int

// Known column types.
const (
	Numerical ColumnType = iota
	Categorical
	Text
	Image
)

func (t ColumnType) String() string {
	switch t {
	case Numerical:
		return "NUMERICAL"
	case Categorical:
		return "CATEGORICAL"
	case Text:
		return "TEXT"
	case Image:
		return "IMAGE"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType parses the name of a column type (case insensitive).
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NUMERICAL", "NUMERIC", "FLOAT", "INT":
		return Numerical, nil
	case "CATEGORICAL", "CATEGORY":
		return Categorical, nil
	case "TEXT":
		return Text, nil
	case "IMAGE", "IMAGE_PATH":
		return Image, nil
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}

// ProblemType is the learning task.
type ProblemType string

// Known problem types.
const (
	Binary     ProblemType = "binary"
	Multiclass ProblemType = "multiclass"
	Regression ProblemType = "regression"
)

// IsClassification tests if the problem is a classification problem.
func (p ProblemType) IsClassification() bool {
	return p == Binary || p == Multiclass
}

// ParseProblemType parses a problem type.
func ParseProblemType(s string) (ProblemType, error) {
	switch p := ProblemType(strings.ToLower(strings.TrimSpace(s))); p {
	case Binary, Multiclass, Regression:
		return p, nil
	}
	return "", fmt.Errorf("unknown problem type %q", s)
}

// OutOfVocabulary is the dictionary index of missing and unknown categorical values.
const OutOfVocabulary = int32(0)

// OutOfVocabularyItem is the dictionary entry at index OutOfVocabulary.
const OutOfVocabularyItem = "<OOV>"

// NumericalSpec contains the statistics of a numerical column.
type NumericalSpec struct {
	Mean       float64 `msgpack:"mean"`
	Std        float64 `msgpack:"std"`
	Min        float64 `msgpack:"min"`
	Max        float64 `msgpack:"max"`
	NumMissing int     `msgpack:"num_missing"`
}

// CategoricalSpec contains the dictionary of a categorical column.
type CategoricalSpec struct {
	// Items[i] is the string value of index i. Items[0] is OutOfVocabularyItem.
	Items []string `msgpack:"items"`
	// Counts[i] is the number of training occurrences of Items[i].
	Counts []int `msgpack:"counts"`
	// MostFrequent is the index of the most frequent (non OOV) value.
	MostFrequent int32 `msgpack:"most_frequent"`

	index map[string]int32
}

// NumValues is the number of dictionary entries, including OutOfVocabulary.
func (c *CategoricalSpec) NumValues() int {
	return len(c.Items)
}

// Index returns the dictionary index of a value, or OutOfVocabulary.
func (c *CategoricalSpec) Index(value string) int32 {
	if c.index != nil {
		if idx, ok := c.index[value]; ok {
			return idx
		}
		return OutOfVocabulary
	}
	for i := 1; i < len(c.Items); i++ {
		if c.Items[i] == value {
			return int32(i)
		}
	}
	return OutOfVocabulary
}

func (c *CategoricalSpec) buildIndex() {
	c.index = make(map[string]int32, len(c.Items))
	for i := 1; i < len(c.Items); i++ {
		c.index[c.Items[i]] = int32(i)
	}
}

// Column is the specification of a single column.
type Column struct {
	Name        string           `msgpack:"name"`
	Type        ColumnType       `msgpack:"type"`
	Numerical   *NumericalSpec   `msgpack:"numerical,omitempty"`
	Categorical *CategoricalSpec `msgpack:"categorical,omitempty"`
}

// DataSpec is the specification of a dataset: its columns, its label and its problem type.
type DataSpec struct {
	Columns []Column    `msgpack:"columns"`
	Label   int         `msgpack:"label"`
	Problem ProblemType `msgpack:"problem"`
	NumRows int         `msgpack:"num_rows"`
}

// Finalize builds the lookup structures of the dataspec. It should be called once after a
// dataspec is deserialized.
func (s *DataSpec) Finalize() {
	for i := range s.Columns {
		if s.Columns[i].Categorical != nil {
			s.Columns[i].Categorical.buildIndex()
		}
	}
}

// ColumnIndex returns the index of a column by name, or -1.
func (s *DataSpec) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// LabelColumn is the label column.
func (s *DataSpec) LabelColumn() *Column {
	return &s.Columns[s.Label]
}

// Classes are the class names of a classification dataspec, in class index order.
func (s *DataSpec) Classes() []string {
	if !s.Problem.IsClassification() {
		return nil
	}
	return s.LabelColumn().Categorical.Items[1:]
}

// NumClasses is the number of classes of a classification dataspec, 0 otherwise.
func (s *DataSpec) NumClasses() int {
	return len(s.Classes())
}

// NumOutputs is the number of prediction columns: the number of classes for classification,
// and 1 for regression.
func (s *DataSpec) NumOutputs() int {
	if s.Problem.IsClassification() {
		return s.NumClasses()
	}
	return 1
}

// Features is the list of column indices of the input features (all columns but the label).
func (s *DataSpec) Features() []int {
	features := make([]int, 0, len(s.Columns))
	for i := range s.Columns {
		if i != s.Label {
			features = append(features, i)
		}
	}
	return features
}

// FeaturesOfType is the list of feature column indices with one of the given types.
func (s *DataSpec) FeaturesOfType(types ...ColumnType) []int {
	var features []int
	for _, i := range s.Features() {
		for _, t := range types {
			if s.Columns[i].Type == t {
				features = append(features, i)
				break
			}
		}
	}
	return features
}

// String gives a human readable description of the dataspec.
func (s *DataSpec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Number of records: %d\nNumber of columns: %d\nProblem: %s\n", s.NumRows, len(s.Columns), s.Problem)
	for i, c := range s.Columns {
		marker := ""
		if i == s.Label {
			marker = " (label)"
		}
		switch c.Type {
		case Numerical:
			fmt.Fprintf(&b, "\t%d: %q %s mean:%g min:%g max:%g missing:%d%s\n", i, c.Name, c.Type,
				c.Numerical.Mean, c.Numerical.Min, c.Numerical.Max, c.Numerical.NumMissing, marker)
		case Categorical:
			fmt.Fprintf(&b, "\t%d: %q %s values:%d most-frequent:%q%s\n", i, c.Name, c.Type,
				c.Categorical.NumValues(), c.Categorical.Items[c.Categorical.MostFrequent], marker)
		default:
			fmt.Fprintf(&b, "\t%d: %q %s%s\n", i, c.Name, c.Type, marker)
		}
	}
	return b.String()
}

// newCategoricalSpec builds a dictionary from value counts. Values are sorted by decreasing
// frequency (ties broken alphabetically), unless "lexicographic" is set. Values seen less than
// "minCount" times, or beyond "maxValues" entries, are mapped to OutOfVocabulary.
func newCategoricalSpec(counts map[string]int, lexicographic bool, minCount int, maxValues int) *CategoricalSpec {
	values := make([]string, 0, len(counts))
	for v, c := range counts {
		if c >= minCount {
			values = append(values, v)
		}
	}
	if lexicographic {
		sortLabels(values)
	} else {
		sort.Slice(values, func(i, j int) bool {
			ci, cj := counts[values[i]], counts[values[j]]
			if ci != cj {
				return ci > cj
			}
			return values[i] < values[j]
		})
	}
	if maxValues > 0 && len(values) > maxValues {
		values = values[:maxValues]
	}

	spec := &CategoricalSpec{
		Items:  append([]string{OutOfVocabularyItem}, values...),
		Counts: make([]int, len(values)+1),
	}
	bestCount := -1
	for i, v := range values {
		spec.Counts[i+1] = counts[v]
		if counts[v] > bestCount {
			bestCount = counts[v]
			spec.MostFrequent = int32(i + 1)
		}
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	kept := 0
	for _, c := range spec.Counts[1:] {
		kept += c
	}
	spec.Counts[0] = total - kept
	spec.buildIndex()
	return spec
}

// sortLabels sorts values in numerical order if they are all numbers, and in lexicographic
// order otherwise.
func sortLabels(values []string) {
	numbers := make(map[string]float64, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			sort.Strings(values)
			return
		}
		numbers[v] = f
	}
	sort.Slice(values, func(i, j int) bool { return numbers[values[i]] < numbers[values[j]] })
}
