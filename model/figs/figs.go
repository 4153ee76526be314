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

// Package figs defines the Fast Interpretable Greedy-tree Sums model.
//
// FIGS grows a sum of trees. At each iteration, it considers splitting every leaf of the
// current trees, as well as starting a new tree, and applies the split reducing the squared
// error the most. A leaf of a tree is fitted on the residuals of the other trees. Training
// stops after "max_rules" splits.
//
// Classification labels are one-hot encoded: binary problems use one sum of trees predicting
// the probability of the second class, and multiclass problems use one sum per class.
package figs

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "IM_FIGS"

const headerFilename = "figs_header.msgpack"

// Spec describes the FIGS model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "Figs",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree, model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"max_rules":        12,
		"min_samples_leaf": 2,
	},
	Builder: Create,
}

// Header is the FIGS specific meta-data.
type Header struct {
	NodeFormat    string `msgpack:"node_format"`
	NumNodeShards int    `msgpack:"num_node_shards"`
	NumTrees      int    `msgpack:"num_trees"`
	// TreesPerOutput[k] is the number of trees of output k. The trees are stored output after
	// output.
	TreesPerOutput []int `msgpack:"trees_per_output"`
}

// Model is a FIGS model.
type Model struct {
	model.Base
	FigsHeader *Header
	Forest     *dt.Forest
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a FIGS model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

type leaf struct {
	node *dt.Node
	rows []int
}

type growingTree struct {
	root   *dt.Node
	leaves []*leaf
	// pred[row] is the prediction of the tree for a training row.
	pred []float64
}

// Sum is a growing sum of trees regressing a single target.
type Sum struct {
	features *dt.Features
	targets  []float64
	cfg      dt.Config
	trees    []*growingTree
	residual []float64
}

// NewSum creates an empty sum of trees.
func NewSum(features *dt.Features, targets []float64, cfg dt.Config) *Sum {
	return &Sum{features: features, targets: targets, cfg: cfg, residual: make([]float64, len(targets))}
}

// residuals computes the targets minus the predictions of all the trees except "skip" (-1 for
// none).
func (s *Sum) residuals(skip int) []float64 {
	copy(s.residual, s.targets)
	for i, t := range s.trees {
		if i == skip {
			continue
		}
		for row, v := range t.pred {
			s.residual[row] -= v
		}
	}
	return s.residual
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

type candidate struct {
	tree  int
	leaf  int
	split *dt.Split
}

// Step applies the best split. Returns false if no split improves the fit.
func (s *Sum) Step() bool {
	var best *candidate
	consider := func(tree, leafIdx int, rows []int) {
		target := &dt.RegressionTarget{Values: s.residuals(tree)}
		split := dt.FindSplit(s.features, target, rows, dt.RowStats(target, rows), s.cfg, nil)
		if split != nil && (best == nil || split.Gain > best.split.Gain) {
			best = &candidate{tree: tree, leaf: leafIdx, split: split}
		}
	}
	for t, tree := range s.trees {
		for l, lf := range tree.leaves {
			consider(t, l, lf.rows)
		}
	}
	consider(len(s.trees), -1, allRows(len(s.targets)))
	if best == nil {
		return false
	}

	if best.tree == len(s.trees) {
		target := &dt.RegressionTarget{Values: s.residuals(-1)}
		rows := allRows(len(s.targets))
		root := dt.NewLeaf(dt.RowStats(target, rows))
		s.trees = append(s.trees, &growingTree{
			root:   root,
			leaves: []*leaf{{node: root, rows: rows}},
			pred:   make([]float64, len(s.targets)),
		})
		best.leaf = 0
	}
	tree := s.trees[best.tree]
	lf := tree.leaves[best.leaf]
	neg, pos := s.features.Partition(best.split, lf.rows)
	lf.node.ApplySplit(best.split)
	tree.leaves[best.leaf] = &leaf{node: lf.node.NegativeChild, rows: neg}
	tree.leaves = append(tree.leaves, &leaf{node: lf.node.PositiveChild, rows: pos})

	s.refit()
	return true
}

// refit updates the leaf values of each tree, in order, on the residuals of the other trees.
func (s *Sum) refit() {
	for t, tree := range s.trees {
		residual := s.residuals(t)
		for _, lf := range tree.leaves {
			mean := 0.0
			for _, row := range lf.rows {
				mean += residual[row]
			}
			if len(lf.rows) > 0 {
				mean /= float64(len(lf.rows))
			}
			lf.node.RawNode.Value = []float64{mean}
			for _, row := range lf.rows {
				tree.pred[row] = mean
			}
		}
	}
}

// Trees returns the trees of the sum.
func (s *Sum) Trees() []*dt.Tree {
	trees := make([]*dt.Tree, len(s.trees))
	for i, t := range s.trees {
		trees[i] = &dt.Tree{Root: t.root}
	}
	return trees
}

// NumSplits is the total number of splits of the sum.
func (s *Sum) NumSplits() int {
	n := 0
	for _, t := range s.trees {
		n += len(t.leaves) - 1
	}
	return n
}

func (me *Model) numSums() int {
	switch me.Header().Problem {
	case dataset.Multiclass:
		return me.Header().NumOutputs()
	}
	return 1
}

// Fit grows the sums of trees.
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
	cfg := dt.Config{MinExamples: hp.Float("min_samples_leaf", 2)}
	maxRules := hp.Int("max_rules", 12)

	header := &Header{NodeFormat: dt.DefaultNodeFormat, NumNodeShards: 1}
	forest := &dt.Forest{}
	for k := 0; k < me.numSums(); k++ {
		targets := make([]float64, train.NumRows())
		switch me.Header().Problem {
		case dataset.Regression:
			copy(targets, train.Targets())
		case dataset.Binary:
			for i, l := range train.Labels() {
				targets[i] = float64(l)
			}
		default:
			for i, l := range train.Labels() {
				if l == k {
					targets[i] = 1
				}
			}
		}
		sum := NewSum(features, targets, cfg)
		for sum.NumSplits() < maxRules {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !sum.Step() {
				break
			}
		}
		trees := sum.Trees()
		if len(trees) == 0 {
			// Constant model.
			target := &dt.RegressionTarget{Values: targets}
			trees = []*dt.Tree{{Root: dt.NewLeaf(dt.RowStats(target, allRows(len(targets))))}}
		}
		forest.Trees = append(forest.Trees, trees...)
		header.TreesPerOutput = append(header.TreesPerOutput, len(trees))
	}
	header.NumTrees = len(forest.Trees)
	me.FigsHeader = header
	me.Forest = forest
	return nil
}

// PredictProba sums the trees. Classification outputs are clipped to [0, 1] and normalized.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Forest == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	numSums := len(me.FigsHeader.TreesPerOutput)
	preds := make([][]float64, ds.NumRows())
	raw := make([]float64, numSums)
	for row := range preds {
		begin := 0
		for k, n := range me.FigsHeader.TreesPerOutput {
			raw[k] = 0
			for _, tree := range me.Forest.Trees[begin : begin+n] {
				raw[k] += tree.Leaf(ds, row).RawNode.Value[0]
			}
			begin += n
		}
		preds[row] = me.finalize(raw)
	}
	return preds, nil
}

func (me *Model) finalize(raw []float64) []float64 {
	switch me.Header().Problem {
	case dataset.Regression:
		return []float64{raw[0]}
	case dataset.Binary:
		p := clip01(raw[0])
		return []float64{1 - p, p}
	}
	out := make([]float64, len(raw))
	sum := 0.0
	for k, v := range raw {
		out[k] = clip01(v)
		sum += out[k]
	}
	for k := range out {
		if sum > 0 {
			out[k] /= sum
		} else {
			out[k] = 1 / float64(len(out))
		}
	}
	return out
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// SaveSpecific saves the trees.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Forest == nil {
		return model.ErrNotFitted
	}
	if err := model.SaveBody(modelPath, prefix, headerFilename, me.FigsHeader); err != nil {
		return err
	}
	return dt.SaveForest(filepath.Join(modelPath, prefix+dt.DefaultNodeFilename), me.FigsHeader.NodeFormat, me.Forest)
}

// LoadSpecific loads the trees.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.FigsHeader = &Header{}
	if err := model.LoadBody(modelPath, prefix, headerFilename, me.FigsHeader); err != nil {
		return err
	}
	var err error
	me.Forest, err = dt.LoadForest(
		filepath.Join(modelPath, prefix+dt.DefaultNodeFilename),
		me.FigsHeader.NumNodeShards,
		me.FigsHeader.NodeFormat,
		me.FigsHeader.NumTrees)
	return err
}
