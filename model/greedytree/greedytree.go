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

// Package greedytree defines the single CART decision tree model. Its leaves contain the class
// distribution (classification) or the mean label (regression) of their training examples.
package greedytree

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "IM_GREEDYTREE"

const headerFilename = "tree_header.msgpack"

// Spec describes the greedy tree model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "GreedyTree",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree, model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"max_leaf_nodes":   20,
		"max_depth":        0,
		"min_samples_leaf": 1,
	},
	Builder: Create,
}

// PostProcess modifies a trained tree, e.g. to regularize its leaf values.
type PostProcess func(tree *dt.Tree, hp model.Hyperparameters) error

// Header is the tree specific meta-data.
type Header struct {
	NodeFormat    string `msgpack:"node_format"`
	NumNodeShards int    `msgpack:"num_node_shards"`
	NumLeaves     int    `msgpack:"num_leaves"`
}

// Model is a single decision tree model.
type Model struct {
	model.Base
	TreeHeader  *Header
	Forest      *dt.Forest
	postProcess PostProcess
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a greedy tree model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return New(header, dataspec, nil)
}

// New creates a single tree model. "postProcess" can be nil.
func New(header *model.Header, dataspec *dataset.DataSpec, postProcess PostProcess) *Model {
	return &Model{Base: model.NewBase(header, dataspec), postProcess: postProcess}
}

// Tree is the trained tree.
func (me *Model) Tree() *dt.Tree {
	return me.Forest.Trees[0]
}

// Fit grows the tree best first until it reaches "max_leaf_nodes" leaves.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	hp := me.Hyperparameters()
	train := in.Train.DropMissingLabels()
	features := dt.NewFeatures(train, me.Header().InputFeatures)
	if features == nil {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	rows := make([]int, train.NumRows())
	for i := range rows {
		rows[i] = i
	}
	tree := dt.Grow(features, dt.NewTarget(train), rows, dt.Config{
		MaxDepth:    hp.Int("max_depth", 0),
		MaxLeaves:   hp.Int("max_leaf_nodes", 20),
		MinExamples: hp.Float("min_samples_leaf", 1),
	}, rand.New(rand.NewSource(in.Seed)))
	if me.postProcess != nil {
		if err := me.postProcess(tree, hp); err != nil {
			return fmt.Errorf("%s: %w", me.Name(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	me.Forest = &dt.Forest{Trees: []*dt.Tree{tree}}
	me.TreeHeader = &Header{
		NodeFormat:    dt.DefaultNodeFormat,
		NumNodeShards: 1,
		NumLeaves:     tree.Root.NumLeafs(),
	}
	return nil
}

// PredictProba returns the value of the leaf reached by each row.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Forest == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	tree := me.Tree()
	classification := me.Header().Problem.IsClassification()
	preds := make([][]float64, ds.NumRows())
	for row := range preds {
		preds[row] = append([]float64(nil), tree.Leaf(ds, row).RawNode.Value...)
		if classification {
			model.NormalizeDistribution(preds[row])
		}
	}
	return preds, nil
}

// SaveSpecific saves the tree.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Forest == nil {
		return model.ErrNotFitted
	}
	if err := model.SaveBody(modelPath, prefix, headerFilename, me.TreeHeader); err != nil {
		return err
	}
	return dt.SaveForest(filepath.Join(modelPath, prefix+dt.DefaultNodeFilename), me.TreeHeader.NodeFormat, me.Forest)
}

// LoadSpecific loads the tree.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.TreeHeader = &Header{}
	if err := model.LoadBody(modelPath, prefix, headerFilename, me.TreeHeader); err != nil {
		return err
	}
	var err error
	me.Forest, err = dt.LoadForest(
		filepath.Join(modelPath, prefix+dt.DefaultNodeFilename),
		me.TreeHeader.NumNodeShards,
		me.TreeHeader.NodeFormat,
		1)
	return err
}
