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

// Package node defines the serialized representation of the decision tree nodes.
package node

import (
	"math"

	"github.com/autotabular/tabular/dataset"
)

// ConditionType is the type of a node condition.
type ConditionType int

const (
	// NumericalHigher is "value >= Threshold".
	NumericalHigher ConditionType = iota
	// CategoricalIn is "value in Positive".
	CategoricalIn
)

// Condition routes an example to the positive or the negative child of a node.
type Condition struct {
	Type ConditionType `msgpack:"type"`
	// Feature is the column index in the dataspec.
	Feature   int     `msgpack:"feature"`
	Threshold float64 `msgpack:"threshold,omitempty"`
	// Positive is a bitmap of the categorical values evaluating to true.
	Positive []uint64 `msgpack:"positive,omitempty"`
	// NAValue is the evaluation of the condition for a missing numerical value.
	NAValue bool `msgpack:"na_value"`
}

// RawNode is the content of a node, as stored on disk. A node without condition is a leaf.
type RawNode struct {
	Condition *Condition `msgpack:"condition,omitempty"`
	// Value is the output of the node. Its meaning depends on the model e.g. a class
	// distribution or a score increment.
	Value []float64 `msgpack:"value"`
	// NumExamples is the (weighted) number of training examples in the node.
	NumExamples float64 `msgpack:"num_examples"`
}

// NewBitmap creates a bitmap able to hold "n" values.
func NewBitmap(n int) []uint64 {
	return make([]uint64, (n+63)/64)
}

// SetBit sets a value in a bitmap.
func SetBit(bitmap []uint64, value int32) {
	bitmap[value/64] |= 1 << (uint(value) % 64)
}

// HasBit tests if a value is in a bitmap. Values outside of the bitmap are not.
func HasBit(bitmap []uint64, value int32) bool {
	idx := int(value / 64)
	if value < 0 || idx >= len(bitmap) {
		return false
	}
	return bitmap[idx]&(1<<(uint(value)%64)) != 0
}

// EvalNumerical evaluates the condition on a numerical value.
func (c *Condition) EvalNumerical(value float64) bool {
	if math.IsNaN(value) {
		return c.NAValue
	}
	return value >= c.Threshold
}

// EvalCategorical evaluates the condition on a categorical value.
func (c *Condition) EvalCategorical(value int32) bool {
	return HasBit(c.Positive, value)
}

// Eval evaluates the condition on a row of a dataset.
func (c *Condition) Eval(ds *dataset.Dataset, row int) bool {
	if c.Type == CategoricalIn {
		return c.EvalCategorical(ds.Categorical(c.Feature)[row])
	}
	return c.EvalNumerical(ds.Numerical(c.Feature)[row])
}
