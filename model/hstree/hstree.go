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

// Package hstree defines the hierarchical shrinkage tree: a CART tree whose node values are
// shrunk towards the values of their ancestors.
//
// The prediction of a leaf reached through the path n_0 (root), ..., n_L is
//
//	v(n_0) + sum_{l=1..L} (v(n_l) - v(n_{l-1})) / (1 + reg_param / N(n_{l-1}))
//
// where v is the mean label (or class distribution) and N the number of training examples of
// a node. The shrunk values are computed once after training and stored in the leaves.
package hstree

import (
	"fmt"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
	"github.com/autotabular/tabular/model/greedytree"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "IM_HSTREE"

// Spec describes the hierarchical shrinkage tree model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "HierarchicalShrinkageTree",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree, model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"max_leaf_nodes":   20,
		"max_depth":        0,
		"min_samples_leaf": 1,
		"reg_param":        10.0,
	},
	Builder: Create,
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a hierarchical shrinkage tree model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return greedytree.New(header, dataspec, Shrink)
}

// Shrink applies the hierarchical shrinkage to the values of a tree.
func Shrink(tree *dt.Tree, hp model.Hyperparameters) error {
	lambda := hp.Float("reg_param", 10)
	if lambda < 0 {
		return fmt.Errorf("reg_param should be positive, got %v", lambda)
	}
	root := tree.Root.RawNode.Value
	shrink(tree.Root, append([]float64(nil), root...), lambda)
	return nil
}

// shrink replaces the values of the sub-tree of "n" by their shrunk values. "shrunk" is the
// shrunk value of "n".
func shrink(n *dt.Node, shrunk []float64, lambda float64) {
	if n.IsLeaf() {
		n.RawNode.Value = shrunk
		return
	}
	factor := 1 / (1 + lambda/n.RawNode.NumExamples)
	for _, child := range []*dt.Node{n.NegativeChild, n.PositiveChild} {
		value := make([]float64, len(shrunk))
		for i := range value {
			value[i] = shrunk[i] + (child.RawNode.Value[i]-n.RawNode.Value[i])*factor
		}
		shrink(child, value, lambda)
	}
	n.RawNode.Value = shrunk
}
