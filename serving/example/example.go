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

// Package example defines "Batch": a batch of examples; and "Features": the
// specification of the input features of a model.
package example

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
)

// OutOfVocabulary (OOV) is the special values of unknown or too-rare categorical values.
const OutOfVocabulary = uint32(dataset.OutOfVocabulary)

// NumericalFeatureID is the unique identifier of a numerical feature.
type NumericalFeatureID int

// CategoricalFeatureID is the unique identifier of a categorical feature.
type CategoricalFeatureID int

// StringFeatureID is the unique identifier of a text or image feature.
type StringFeatureID int

// Features contains the definition of the input features of a model.
type Features struct {
	// NumericalFeatures is the mapping between numerical feature names and numerical feature ids.
	// Indexed by "NumericalFeatureID".
	NumericalFeatures map[string]NumericalFeatureID
	// CategoricalFeatures is the mapping between categorical feature names and categorical feature
	// ids. Indexed by "CategoricalFeatureID".
	CategoricalFeatures map[string]CategoricalFeatureID
	// StringFeatures is the mapping between text and image feature names and their ids.
	StringFeatures map[string]StringFeatureID

	// MissingNumericalValues is the representation of a "missing value" for each of the numerical
	// features. Defaults to NaN, which the models handle natively.
	MissingNumericalValues []float32
	// MissingCategoricalValues is the representation of a "missing value" for each of the
	// categorical features.
	MissingCategoricalValues []uint32

	// CategoricalSpec is the meta-data about the categorical features. Indexed by
	// "CategoricalFeatureID".
	CategoricalSpec []CategoricalSpec

	// Column index in the dataspec of each feature, by feature type.
	numericalColumns   []int
	categoricalColumns []int
	stringColumns      []int
}

// CategoricalSpec is the meta-data about a categorical feature.
type CategoricalSpec struct {
	// NumUniqueValues of this feature. The feature value should be in [0, NumUniqueValues).
	NumUniqueValues uint32

	// Dictionary of string values to integer values for this feature.
	Dictionary map[string]uint32
}

// FeatureConstructionMap contains the mapping between the column index and the
// feature id. FeatureConstructionMap is only used during the model to engine
// compilation, and it is then discarded.
type FeatureConstructionMap struct {
	// Mapping between a column index (i.e. the index of the column in the
	// dataspec) and a NumericalFeatureID.
	NumericalFeatures map[int]NumericalFeatureID

	// Mapping between a column index (in the dataspec) and a
	// CategoricalFeatureID.
	CategoricalFeatures map[int]CategoricalFeatureID
}

// NewFeatures converts a dataspec into a feature definition used by an engine.
func NewFeatures(dataspec *dataset.DataSpec, header *model.Header) (*Features, *FeatureConstructionMap, error) {

	// Initialize the feature fields.
	features := &Features{}
	features.NumericalFeatures = map[string]NumericalFeatureID{}
	features.CategoricalFeatures = map[string]CategoricalFeatureID{}
	features.StringFeatures = map[string]StringFeatureID{}

	buildMap := &FeatureConstructionMap{}
	buildMap.NumericalFeatures = map[int]NumericalFeatureID{}
	buildMap.CategoricalFeatures = map[int]CategoricalFeatureID{}

	// Index the input features.
	for _, columnIdx := range header.InputFeatures {
		if columnIdx < 0 || columnIdx >= len(dataspec.Columns) {
			return nil, nil, fmt.Errorf("input feature %d is not in the dataspec", columnIdx)
		}
		column := &dataspec.Columns[columnIdx]

		switch column.Type {

		case dataset.Numerical:
			featureID := NumericalFeatureID(len(features.NumericalFeatures))
			buildMap.NumericalFeatures[columnIdx] = featureID
			features.NumericalFeatures[column.Name] = featureID
			features.numericalColumns = append(features.numericalColumns, columnIdx)
			features.MissingNumericalValues = append(features.MissingNumericalValues, float32(math.NaN()))

		case dataset.Categorical:
			featureID := CategoricalFeatureID(len(features.CategoricalFeatures))
			buildMap.CategoricalFeatures[columnIdx] = featureID
			features.CategoricalFeatures[column.Name] = featureID
			features.categoricalColumns = append(features.categoricalColumns, columnIdx)
			features.MissingCategoricalValues = append(features.MissingCategoricalValues, OutOfVocabulary)

			spec := CategoricalSpec{
				NumUniqueValues: uint32(column.Categorical.NumValues()),
				Dictionary:      make(map[string]uint32, column.Categorical.NumValues()),
			}
			for idx, item := range column.Categorical.Items {
				if idx == int(dataset.OutOfVocabulary) {
					continue
				}
				spec.Dictionary[item] = uint32(idx)
			}
			features.CategoricalSpec = append(features.CategoricalSpec, spec)

		case dataset.Text, dataset.Image:
			featureID := StringFeatureID(len(features.StringFeatures))
			features.StringFeatures[column.Name] = featureID
			features.stringColumns = append(features.stringColumns, columnIdx)

		default:
			return nil, nil, fmt.Errorf("Non supported feature %v with type %v",
				column.Name, column.Type)
		}
	}

	return features, buildMap, nil
}

// NumFeatures is the number of features.
func (f *Features) NumFeatures() int {
	return len(f.NumericalFeatures) + len(f.CategoricalFeatures) + len(f.StringFeatures)
}

// Names is the sorted list of the feature names.
func (f *Features) Names() []string {
	names := make([]string, 0, f.NumFeatures())
	for name := range f.NumericalFeatures {
		names = append(names, name)
	}
	for name := range f.CategoricalFeatures {
		names = append(names, name)
	}
	for name := range f.StringFeatures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OverrideMissingValuePlaceholders specifies the values that will replace the missing numerical
// and categorical values when calling SetMissing* during inference.
//
// Models are natively able to handle missing values. Overriding the missing values is a form of
// data pre-processing that should only be applied if such pre-processing is also applied during
// training.
//
// This overrides all missing values from all features, both numerical and categorical.
func (f *Features) OverrideMissingValuePlaceholders(numerical float32, categorical string) {
	// Numerical values.
	for i := 0; i < len(f.MissingNumericalValues); i++ {
		f.MissingNumericalValues[i] = numerical
	}

	// Categorical values
	for i := 0; i < len(f.MissingCategoricalValues); i++ {
		value, exists := f.CategoricalSpec[i].Dictionary[categorical]
		if !exists {
			value = OutOfVocabulary
		}
		f.MissingCategoricalValues[i] = value
	}
}

// Batch is a set of examples.
type Batch struct {
	features    *Features
	numExamples int

	// {Example major, feature minor} values for the unary feature values.
	NumericalValues   []float32
	CategoricalValues []uint32
	StringValues      []string
}

// NewBatch creates a batch of examples. The example values are in a
// non-defined state: Because being used, the features values should be set
// ether with "FillMissing" or "Set*".
func NewBatch(numExamples int, features *Features) *Batch {
	batch := &Batch{numExamples: numExamples, features: features}
	batch.NumericalValues = make([]float32, len(features.NumericalFeatures)*numExamples)
	batch.CategoricalValues = make([]uint32, len(features.CategoricalFeatures)*numExamples)
	batch.StringValues = make([]string, len(features.StringFeatures)*numExamples)
	return batch
}

// NumAllocatedExamples is the number of allocated examples.
func (batch *Batch) NumAllocatedExamples() int {
	return batch.numExamples
}

// Features of the batch.
func (batch *Batch) Features() *Features {
	return batch.features
}

// Clear clears the content of a batch. After a clear call, the feature values
// are in a non defined state i.e. in the same state as after "NewBatch".
func (batch *Batch) Clear() {
	clear(batch.StringValues)
}

// FillMissing sets all the feature values of all the examples as missing.
//
// This method is equivalent to, but more efficient than, calling the
// "SetMissing*" methods for all the features and all the examples.
func (batch *Batch) FillMissing() {
	for exampleIdx := 0; exampleIdx < batch.numExamples; exampleIdx++ {
		// Numerical features
		beginIdx := exampleIdx * len(batch.features.NumericalFeatures)
		endIdx := (exampleIdx + 1) * len(batch.features.NumericalFeatures)
		copy(batch.NumericalValues[beginIdx:endIdx], batch.features.MissingNumericalValues)

		// Categorical features
		beginIdx = exampleIdx * len(batch.features.CategoricalFeatures)
		endIdx = (exampleIdx + 1) * len(batch.features.CategoricalFeatures)
		copy(batch.CategoricalValues[beginIdx:endIdx], batch.features.MissingCategoricalValues)
	}
	clear(batch.StringValues)
}

// SetNumerical sets the value of a numerical feature.
func (batch *Batch) SetNumerical(exampleIdx int, feature NumericalFeatureID, value float32) {
	batch.NumericalValues[int(feature)+exampleIdx*len(batch.features.NumericalFeatures)] = value
}

// SetMissingNumerical sets a numerical feature value as missing.
func (batch *Batch) SetMissingNumerical(exampleIdx int, feature NumericalFeatureID) {
	batch.NumericalValues[int(feature)+exampleIdx*len(batch.features.NumericalFeatures)] =
		batch.features.MissingNumericalValues[feature]
}

// SetCategorical sets the value of a categorical feature as an integer.
func (batch *Batch) SetCategorical(exampleIdx int, feature CategoricalFeatureID, value uint32) {
	if value >= batch.features.CategoricalSpec[feature].NumUniqueValues {
		value = OutOfVocabulary
	}
	batch.CategoricalValues[int(feature)+exampleIdx*len(batch.features.CategoricalFeatures)] = value
}

// SetCategoricalFromString sets the value of a categorical feature. Unknown values are
// OutOfVocabulary.
func (batch *Batch) SetCategoricalFromString(exampleIdx int, feature CategoricalFeatureID, rawValue string) {
	value, exists := batch.features.CategoricalSpec[feature].Dictionary[rawValue]
	if !exists {
		value = OutOfVocabulary
	}
	batch.CategoricalValues[int(feature)+exampleIdx*len(batch.features.CategoricalFeatures)] = value
}

// SetMissingCategorical sets a categorical feature value as missing.
func (batch *Batch) SetMissingCategorical(exampleIdx int, feature CategoricalFeatureID) {
	batch.CategoricalValues[int(feature)+exampleIdx*len(batch.features.CategoricalFeatures)] =
		batch.features.MissingCategoricalValues[feature]
}

// SetString sets the value of a text or image feature. An image value is a file path.
func (batch *Batch) SetString(exampleIdx int, feature StringFeatureID, value string) {
	batch.StringValues[int(feature)+exampleIdx*len(batch.features.StringFeatures)] = value
}

// SetFromFields sets all the fields of an example from a csv-like field and
// header. This method is slow and should not be used for speed-sensitive code.
//
// Empty fields and fields with the value "NA" or "?" are considered "missing values".
//
// Example:
//
//	examples.SetFromFields(0, ["a","b","c"], ["0.5","UK","NA"])
func (batch *Batch) SetFromFields(exampleIdx int, header []string, values []string) error {
	if len(header) != len(values) {
		return fmt.Errorf("%d fields for a header of %d columns", len(values), len(header))
	}
	for fieldIdx, key := range header {
		if err := batch.setField(exampleIdx, key, values[fieldIdx]); err != nil {
			return err
		}
	}
	return nil
}

// SetFromMap sets the fields of an example from a column name to value map. The columns
// not used by the model are ignored.
func (batch *Batch) SetFromMap(exampleIdx int, values map[string]string) error {
	for key, rawValue := range values {
		if err := batch.setField(exampleIdx, key, rawValue); err != nil {
			return err
		}
	}
	return nil
}

func (batch *Batch) setField(exampleIdx int, key string, rawValue string) error {
	isMissing := dataset.IsMissing(rawValue)

	// Numerical feature
	if numericalFeatureID, found := batch.features.NumericalFeatures[key]; found {
		if isMissing {
			batch.SetMissingNumerical(exampleIdx, numericalFeatureID)
			return nil
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 32)
		if err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
		batch.SetNumerical(exampleIdx, numericalFeatureID, float32(value))
		return nil
	}

	// Categorical feature
	if categoricalFeatureID, found := batch.features.CategoricalFeatures[key]; found {
		if isMissing {
			batch.SetMissingCategorical(exampleIdx, categoricalFeatureID)
			return nil
		}
		batch.SetCategoricalFromString(exampleIdx, categoricalFeatureID, rawValue)
		return nil
	}

	// Text or image feature
	if stringFeatureID, found := batch.features.StringFeatures[key]; found {
		batch.SetString(exampleIdx, stringFeatureID, rawValue)
	}
	// Other columns are not used by the model. We ignore them.
	return nil
}

// CopyFrom copies the content of a batch from another batch.
// Assumes both source batch has the exact same features (e.g. it is created by the same engine).
func (batch *Batch) CopyFrom(src *Batch, beginIdx int, endIdx int) {
	batch.Clear()

	numNumerical := len(batch.features.NumericalFeatures)
	copy(
		batch.NumericalValues[:(endIdx-beginIdx)*numNumerical],
		src.NumericalValues[beginIdx*numNumerical:endIdx*numNumerical])

	numCategorical := len(batch.features.CategoricalFeatures)
	copy(
		batch.CategoricalValues[:(endIdx-beginIdx)*numCategorical],
		src.CategoricalValues[beginIdx*numCategorical:endIdx*numCategorical])

	numString := len(batch.features.StringFeatures)
	copy(
		batch.StringValues[:(endIdx-beginIdx)*numString],
		src.StringValues[beginIdx*numString:endIdx*numString])
}

// ToDataset converts the first "numExamples" examples into a dataset encoded with "spec". The
// columns that are not features (e.g. the label) are missing.
func (batch *Batch) ToDataset(spec *dataset.DataSpec, numExamples int) (*dataset.Dataset, error) {
	if numExamples > batch.numExamples {
		return nil, fmt.Errorf("%d examples requested from a batch of %d", numExamples, batch.numExamples)
	}
	ds := dataset.NewEmpty(spec, numExamples)
	f := batch.features
	for featureIdx, col := range f.numericalColumns {
		if col >= len(spec.Columns) || spec.Columns[col].Type != dataset.Numerical {
			return nil, fmt.Errorf("column %d is not numerical in the dataspec", col)
		}
		dst := ds.Numerical(col)
		for exampleIdx := range dst {
			dst[exampleIdx] = float64(batch.NumericalValues[featureIdx+exampleIdx*len(f.numericalColumns)])
		}
	}
	for featureIdx, col := range f.categoricalColumns {
		if col >= len(spec.Columns) || spec.Columns[col].Type != dataset.Categorical {
			return nil, fmt.Errorf("column %d is not categorical in the dataspec", col)
		}
		dst := ds.Categorical(col)
		for exampleIdx := range dst {
			dst[exampleIdx] = int32(batch.CategoricalValues[featureIdx+exampleIdx*len(f.categoricalColumns)])
		}
	}
	for featureIdx, col := range f.stringColumns {
		if col >= len(spec.Columns) || ds.Strings(col) == nil {
			return nil, fmt.Errorf("column %d is not a text or image column in the dataspec", col)
		}
		dst := ds.Strings(col)
		for exampleIdx := range dst {
			dst[exampleIdx] = batch.StringValues[featureIdx+exampleIdx*len(f.stringColumns)]
		}
	}
	return ds, nil
}

// ToStringDebug exports the content of the set of examples into a text-debug representation.
func (batch *Batch) ToStringDebug() string {
	var repr strings.Builder
	fmt.Fprintf(&repr, "batch with %v example(s)\n", batch.NumAllocatedExamples())

	f := batch.features
	for exampleIdx := 0; exampleIdx < batch.NumAllocatedExamples(); exampleIdx++ {
		fmt.Fprintf(&repr, "exampleIdx: %v\n", exampleIdx)

		for _, name := range f.Names() {
			if featureID, ok := f.NumericalFeatures[name]; ok {
				value := batch.NumericalValues[int(featureID)+exampleIdx*len(f.NumericalFeatures)]
				fmt.Fprintf(&repr, "%q (NUMERICAL id:%v): \"%v\"\n", name, featureID, value)
			}
			if featureID, ok := f.CategoricalFeatures[name]; ok {
				value := batch.CategoricalValues[int(featureID)+exampleIdx*len(f.CategoricalFeatures)]
				strValue := "<UNKNOWN>"
				for itemKey, itemIdx := range f.CategoricalSpec[featureID].Dictionary {
					if itemIdx == value {
						strValue = itemKey
						break
					}
				}
				fmt.Fprintf(&repr, "%q (CATEGORICAL id:%v): %q\n", name, featureID, strValue)
			}
			if featureID, ok := f.StringFeatures[name]; ok {
				value := batch.StringValues[int(featureID)+exampleIdx*len(f.StringFeatures)]
				fmt.Fprintf(&repr, "%q (STRING id:%v): %q\n", name, featureID, value)
			}
		}
	}
	return repr.String()
}
