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

// Package boostedrules defines the boosted rules model: AdaBoost (SAMME) over decision stumps.
// Each stump is a single "if feature condition then class" rule.
package boostedrules

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
const ModelKey = "IM_BOOSTEDRULES"

const headerFilename = "boosted_rules_header.msgpack"

// maxAlpha bounds the weight of a stump without training error.
const maxAlpha = 10.0

// Spec describes the boosted rules model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "BoostedRules",
	Priority: 0,
	Problems: model.ClassificationProblems,
	Tags:     []string{model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"n_estimators":  10,
		"learning_rate": 1.0,
	},
	Builder: Create,
}

// Header is the boosted rules specific meta-data.
type Header struct {
	NodeFormat    string `msgpack:"node_format"`
	NumNodeShards int    `msgpack:"num_node_shards"`
	NumTrees      int    `msgpack:"num_trees"`
	// Alphas are the weights of the stumps.
	Alphas []float64 `msgpack:"alphas"`
}

// Model is a boosted rules model.
type Model struct {
	model.Base
	BrHeader *Header
	Forest   *dt.Forest
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a boosted rules model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Fit trains the stumps. Each stump is trained on the examples re-weighted by the errors of
// the previous stumps.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	if err := me.CheckProblem(model.ClassificationProblems...); err != nil {
		return err
	}
	hp := me.Hyperparameters()
	train := in.Train.DropMissingLabels()
	features := dt.NewFeatures(train, me.Header().InputFeatures)
	if features == nil {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	numClasses := me.Header().NumOutputs()
	labels := train.Labels()
	numRows := len(labels)
	weights := make([]float64, numRows)
	for i := range weights {
		weights[i] = 1 / float64(numRows)
	}
	rows := make([]int, numRows)
	for i := range rows {
		rows[i] = i
	}
	target := &dt.ClassificationTarget{Labels: labels, NumClasses: numClasses, Weights: weights}
	// Leaves must hold at least one example whatever its weight.
	cfg := dt.Config{MaxDepth: 1, MinExamples: 1e-12}
	learningRate := hp.Float("learning_rate", 1)
	numEstimators := hp.Int("n_estimators", 10)

	header := &Header{NodeFormat: dt.DefaultNodeFormat, NumNodeShards: 1}
	forest := &dt.Forest{}
	for m := 0; m < numEstimators; m++ {
		if err := ctx.Err(); err != nil {
			if m == 0 {
				return err
			}
			break
		}
		stump := dt.Grow(features, target, rows, cfg, nil)
		if stump.Root.IsLeaf() && m > 0 {
			break
		}
		misclassified := make([]bool, numRows)
		errSum, total := 0.0, 0.0
		for i := range rows {
			pred := argmax(stump.Leaf(train, i).RawNode.Value)
			misclassified[i] = pred != labels[i]
			if misclassified[i] {
				errSum += weights[i]
			}
			total += weights[i]
		}
		errRate := errSum / total
		if errRate >= 1-1/float64(numClasses) {
			// Not better than random guessing.
			if m == 0 {
				forest.Trees = append(forest.Trees, stump)
				header.Alphas = append(header.Alphas, 1)
			}
			break
		}
		alpha := maxAlpha
		if errRate > 0 {
			alpha = math.Min(maxAlpha, learningRate*(math.Log((1-errRate)/errRate)+math.Log(float64(numClasses-1))))
		}
		forest.Trees = append(forest.Trees, stump)
		header.Alphas = append(header.Alphas, alpha)
		if errRate == 0 {
			break
		}

		sum := 0.0
		for i := range weights {
			if misclassified[i] {
				weights[i] *= math.Exp(alpha)
			}
			sum += weights[i]
		}
		for i := range weights {
			weights[i] /= sum
		}
	}
	header.NumTrees = len(forest.Trees)
	me.BrHeader = header
	me.Forest = forest
	return nil
}

// PredictProba computes the class probabilities from the weighted votes of the stumps:
// softmax(votes / (sum(alphas) * (K-1))).
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Forest == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	numClasses := me.Header().NumOutputs()
	totalAlpha := 0.0
	for _, a := range me.BrHeader.Alphas {
		totalAlpha += a
	}
	scale := 1 / (totalAlpha * float64(max(1, numClasses-1)))
	preds := make([][]float64, ds.NumRows())
	for row := range preds {
		votes := make([]float64, numClasses)
		for i, tree := range me.Forest.Trees {
			votes[argmax(tree.Leaf(ds, row).RawNode.Value)] += me.BrHeader.Alphas[i]
		}
		maxVote := votes[argmax(votes)] * scale
		sum := 0.0
		for c := range votes {
			votes[c] = math.Exp(votes[c]*scale - maxVote)
			sum += votes[c]
		}
		for c := range votes {
			votes[c] /= sum
		}
		preds[row] = votes
	}
	return preds, nil
}

// Rules describes the stumps, e.g. "if age >= 37.5 then >50K else <=50K (alpha=0.73)".
func (me *Model) Rules() []string {
	spec := me.Dataspec()
	classes := me.Header().Classes
	rules := make([]string, len(me.Forest.Trees))
	for i, tree := range me.Forest.Trees {
		root := tree.Root
		if root.IsLeaf() {
			rules[i] = fmt.Sprintf("always %s (alpha=%.3g)", classes[argmax(root.RawNode.Value)], me.BrHeader.Alphas[i])
			continue
		}
		rules[i] = fmt.Sprintf("if %s then %s else %s (alpha=%.3g)",
			dt.DescribeCondition(spec, root.RawNode.Condition, false),
			classes[argmax(root.PositiveChild.RawNode.Value)],
			classes[argmax(root.NegativeChild.RawNode.Value)],
			me.BrHeader.Alphas[i])
	}
	return rules
}

// SaveSpecific saves the stumps.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Forest == nil {
		return model.ErrNotFitted
	}
	if err := model.SaveBody(modelPath, prefix, headerFilename, me.BrHeader); err != nil {
		return err
	}
	return dt.SaveForest(filepath.Join(modelPath, prefix+dt.DefaultNodeFilename), me.BrHeader.NodeFormat, me.Forest)
}

// LoadSpecific loads the stumps.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.BrHeader = &Header{}
	if err := model.LoadBody(modelPath, prefix, headerFilename, me.BrHeader); err != nil {
		return err
	}
	var err error
	me.Forest, err = dt.LoadForest(
		filepath.Join(modelPath, prefix+dt.DefaultNodeFilename),
		me.BrHeader.NumNodeShards,
		me.BrHeader.NodeFormat,
		me.BrHeader.NumTrees)
	return err
}
