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
	"math/rand"
	"sort"
	"strconv"
)

// columnData holds the values of a column. Only the field matching the column type is set.
type columnData struct {
	num []float64
	cat []int32
	str []string
}

// Dataset is an in-memory columnar dataset.
type Dataset struct {
	Spec    *DataSpec
	columns []columnData
	numRows int
}

// NewEmpty allocates a dataset with "numRows" rows for a given dataspec. Numerical values
// are initialized as missing, categorical values as OutOfVocabulary and strings as empty.
func NewEmpty(spec *DataSpec, numRows int) *Dataset {
	ds := &Dataset{Spec: spec, columns: make([]columnData, len(spec.Columns)), numRows: numRows}
	for i, c := range spec.Columns {
		switch c.Type {
		case Numerical:
			values := make([]float64, numRows)
			for j := range values {
				values[j] = math.NaN()
			}
			ds.columns[i].num = values
		case Categorical:
			ds.columns[i].cat = make([]int32, numRows)
		default:
			ds.columns[i].str = make([]string, numRows)
		}
	}
	return ds
}

// NumRows is the number of rows in the dataset.
func (d *Dataset) NumRows() int {
	return d.numRows
}

// Numerical returns the values of a numerical column.
func (d *Dataset) Numerical(col int) []float64 {
	return d.columns[col].num
}

// Categorical returns the dictionary indices of a categorical column.
func (d *Dataset) Categorical(col int) []int32 {
	return d.columns[col].cat
}

// Strings returns the raw values of a text or image column.
func (d *Dataset) Strings(col int) []string {
	return d.columns[col].str
}

// Value returns the string representation of a cell. Missing values are returned as "".
func (d *Dataset) Value(row, col int) string {
	switch d.Spec.Columns[col].Type {
	case Numerical:
		v := d.columns[col].num[row]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case Categorical:
		v := d.columns[col].cat[row]
		if v == OutOfVocabulary {
			return ""
		}
		return d.Spec.Columns[col].Categorical.Items[v]
	default:
		return d.columns[col].str[row]
	}
}

// SetValue sets a cell from its string representation. Empty and "NA" values are missing.
func (d *Dataset) SetValue(row, col int, raw string) error {
	column := &d.Spec.Columns[col]
	switch column.Type {
	case Numerical:
		if IsMissing(raw) {
			d.columns[col].num[row] = math.NaN()
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("column %q: %w", column.Name, err)
		}
		d.columns[col].num[row] = v
	case Categorical:
		if IsMissing(raw) {
			d.columns[col].cat[row] = OutOfVocabulary
			return nil
		}
		d.columns[col].cat[row] = column.Categorical.Index(raw)
	default:
		d.columns[col].str[row] = raw
	}
	return nil
}

// IsMissing tests if a raw value represents a missing value.
func IsMissing(raw string) bool {
	return raw == "" || raw == "NA" || raw == "?"
}

// Labels returns the class index of each row, or -1 if the label is missing or unknown.
func (d *Dataset) Labels() []int {
	if !d.Spec.Problem.IsClassification() {
		return nil
	}
	values := d.columns[d.Spec.Label].cat
	labels := make([]int, len(values))
	for i, v := range values {
		labels[i] = int(v) - 1
	}
	return labels
}

// Targets returns the regression target of each row (NaN if missing).
func (d *Dataset) Targets() []float64 {
	if d.Spec.Problem != Regression {
		return nil
	}
	return d.columns[d.Spec.Label].num
}

// HasLabel tests if the label of a row is present (and known for classification).
func (d *Dataset) HasLabel(row int) bool {
	if d.Spec.Problem.IsClassification() {
		return d.columns[d.Spec.Label].cat[row] != OutOfVocabulary
	}
	return !math.IsNaN(d.columns[d.Spec.Label].num[row])
}

// Subset creates a new dataset containing the given rows (in order). The dataspec is shared.
func (d *Dataset) Subset(rows []int) *Dataset {
	sub := &Dataset{Spec: d.Spec, columns: make([]columnData, len(d.columns)), numRows: len(rows)}
	for c, src := range d.columns {
		switch {
		case src.num != nil:
			dst := make([]float64, len(rows))
			for i, r := range rows {
				dst[i] = src.num[r]
			}
			sub.columns[c].num = dst
		case src.cat != nil:
			dst := make([]int32, len(rows))
			for i, r := range rows {
				dst[i] = src.cat[r]
			}
			sub.columns[c].cat = dst
		default:
			dst := make([]string, len(rows))
			for i, r := range rows {
				dst[i] = src.str[r]
			}
			sub.columns[c].str = dst
		}
	}
	return sub
}

// DropMissingLabels returns the dataset without the rows having a missing label.
func (d *Dataset) DropMissingLabels() *Dataset {
	rows := make([]int, 0, d.numRows)
	for i := 0; i < d.numRows; i++ {
		if d.HasLabel(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == d.numRows {
		return d
	}
	return d.Subset(rows)
}

// Subsample returns at most "n" randomly selected rows. If the dataset has "n" rows or less, it
// is returned as is.
func (d *Dataset) Subsample(n int, seed int64) *Dataset {
	if n <= 0 || d.numRows <= n {
		return d
	}
	rng := rand.New(rand.NewSource(seed))
	rows := rng.Perm(d.numRows)[:n]
	sort.Ints(rows)
	return d.Subset(rows)
}

// Split splits the dataset in two. The second dataset contains a fraction "frac" of the rows.
// For classification, the split is stratified on the label.
func (d *Dataset) Split(frac float64, seed int64) (*Dataset, *Dataset, error) {
	if frac <= 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("split fraction should be in (0, 1), got %v", frac)
	}
	rng := rand.New(rand.NewSource(seed))

	groups := map[int][]int{}
	if d.Spec.Problem.IsClassification() {
		for i, l := range d.Labels() {
			groups[l] = append(groups[l], i)
		}
	} else {
		groups[0] = make([]int, d.numRows)
		for i := range groups[0] {
			groups[0][i] = i
		}
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var first, second []int
	for _, k := range keys {
		rows := groups[k]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		numSecond := int(math.Round(frac * float64(len(rows))))
		if numSecond == 0 && len(rows) > 1 {
			numSecond = 1
		}
		second = append(second, rows[:numSecond]...)
		first = append(first, rows[numSecond:]...)
	}
	if len(first) == 0 || len(second) == 0 {
		return nil, nil, fmt.Errorf("not enough rows (%d) to split the dataset", d.numRows)
	}
	sort.Ints(first)
	sort.Ints(second)
	return d.Subset(first), d.Subset(second), nil
}

// Reencode converts a dataset into another compatible dataspec. Columns are matched by name.
// Columns of "spec" missing from the dataset are filled with missing values.
func (d *Dataset) Reencode(spec *DataSpec) (*Dataset, error) {
	if d.Spec == spec {
		return d, nil
	}
	dst := NewEmpty(spec, d.numRows)
	for c, column := range spec.Columns {
		srcCol := d.Spec.ColumnIndex(column.Name)
		if srcCol < 0 {
			continue
		}
		srcType := d.Spec.Columns[srcCol].Type
		if srcType == column.Type && column.Type == Numerical {
			copy(dst.columns[c].num, d.columns[srcCol].num)
			continue
		}
		for r := 0; r < d.numRows; r++ {
			if err := dst.SetValue(r, c, d.Value(r, srcCol)); err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}
