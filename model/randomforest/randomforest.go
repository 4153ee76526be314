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

// Package randomforest defines the random forest model.
package randomforest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"

	// External dependencies, pls keep in this position in file.
	"golang.org/x/sync/errgroup"
	// End of external dependencies.//
	//
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "RF"

// Filename containing the RF header.
const headerFilename = "random_forest_header.msgpack"

// Spec describes the random forest model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "RandomForest",
	Priority: 80,
	Problems: model.AllProblems,
	Tags:     []string{model.TagTree},
	Defaults: model.Hyperparameters{
		"n_estimators":     100,
		"max_depth":        0,
		"min_samples_leaf": 1,
		"max_features":     "sqrt",
		"bootstrap":        true,
	},
	Builder: Create,
}

// Header is the random forest specific meta-data.
type Header struct {
	NumTrees      int    `msgpack:"num_trees"`
	NodeFormat    string `msgpack:"node_format"`
	NumNodeShards int    `msgpack:"num_node_shards"`
	// RandomThresholds is set for extremely randomized trees.
	RandomThresholds bool `msgpack:"random_thresholds"`
}

// Model is a Random Forest model. Each leaf contains the class distribution (classification)
// or the mean label value (regression) of its training examples.
type Model struct {
	model.Base
	RfHeader *Header
	Forest   *dt.Forest
}

func init() {
	// Register the constructor (loader) for RFs.
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a RF model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

// NumCandidateFeatures converts the "max_features" hyperparameter into a number of features
// among "numFeatures". 0 means all the features.
func NumCandidateFeatures(hp model.Hyperparameters, numFeatures int) int {
	switch hp.Str("max_features", "") {
	case "sqrt":
		return int(math.Ceil(math.Sqrt(float64(numFeatures))))
	case "log2":
		return max(1, int(math.Ceil(math.Log2(float64(numFeatures)))))
	case "all":
		return 0
	}
	v := hp.Float("max_features", 0)
	switch {
	case v <= 0:
		return 0
	case v <= 1:
		return max(1, int(math.Round(v*float64(numFeatures))))
	}
	return min(numFeatures, int(v))
}

// Fit trains the forest. The trees are trained in parallel. If the context expires, the model
// keeps the trees trained so far.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	in = in.Labeled()
	hp := me.Hyperparameters()
	features := dt.NewFeatures(in.Train, me.Header().InputFeatures)
	if features == nil {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	target := dt.NewTarget(in.Train)
	numTrees := hp.Int("n_estimators", 100)
	if numTrees <= 0 {
		return fmt.Errorf("%s: n_estimators should be positive", me.Name())
	}
	bootstrap := hp.Bool("bootstrap", true)
	randomThresholds := hp.Bool("random_thresholds", false)
	cfg := dt.Config{
		MaxDepth:             hp.Int("max_depth", 0),
		MinExamples:          hp.Float("min_samples_leaf", 1),
		NumCandidateFeatures: NumCandidateFeatures(hp, features.NumFeatures()),
		RandomThresholds:     randomThresholds,
	}

	numRows := in.Train.NumRows()
	trees := make([]*dt.Tree, numTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, in.NumWorkers))
	for i := range trees {
		g.Go(model.Worker(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(in.Seed + int64(i)*7919))
			rows := make([]int, numRows)
			for j := range rows {
				if bootstrap {
					rows[j] = rng.Intn(numRows)
				} else {
					rows[j] = j
				}
			}
			trees[i] = dt.Grow(features, target, rows, cfg, rng)
			return nil
		}))
	}
	err := g.Wait()

	forest := &dt.Forest{}
	for _, tree := range trees {
		if tree != nil {
			forest.Trees = append(forest.Trees, tree)
		}
	}
	if err != nil && !(errors.Is(err, context.DeadlineExceeded) && len(forest.Trees) > 0) {
		return err
	}
	me.Forest = forest
	me.RfHeader = &Header{
		NumTrees:         len(forest.Trees),
		NodeFormat:       dt.DefaultNodeFormat,
		NumNodeShards:    1,
		RandomThresholds: randomThresholds,
	}
	return nil
}

// PredictProba averages the leaf values of the trees. Class distributions are renormalized to
// absorb the rounding errors of the sum.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Forest == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	numOutputs := me.Header().NumOutputs()
	classification := me.Header().Problem.IsClassification()
	numTrees := float64(len(me.Forest.Trees))
	preds := make([][]float64, ds.NumRows())
	for row := range preds {
		pred := make([]float64, numOutputs)
		for _, tree := range me.Forest.Trees {
			for i, v := range tree.Leaf(ds, row).RawNode.Value {
				pred[i] += v
			}
		}
		for i := range pred {
			pred[i] /= numTrees
		}
		if classification {
			model.NormalizeDistribution(pred)
		}
		preds[row] = pred
	}
	return preds, nil
}

// SaveSpecific saves the RF header and the forest.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Forest == nil {
		return model.ErrNotFitted
	}
	if err := model.SaveBody(modelPath, prefix, headerFilename, me.RfHeader); err != nil {
		return err
	}
	return dt.SaveForest(filepath.Join(modelPath, prefix+dt.DefaultNodeFilename), me.RfHeader.NodeFormat, me.Forest)
}

// LoadSpecific loads a model from disk.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {

	// Load the RF specialized header.
	me.RfHeader = &Header{}
	if err := model.LoadBody(modelPath, prefix, headerFilename, me.RfHeader); err != nil {
		return err
	}

	// Load the forest structure.
	var err error
	me.Forest, err = dt.LoadForest(
		filepath.Join(modelPath, prefix+dt.DefaultNodeFilename),
		me.RfHeader.NumNodeShards,
		me.RfHeader.NodeFormat,
		me.RfHeader.NumTrees)
	if err != nil {
		return err
	}

	if len(me.Forest.Trees) != me.RfHeader.NumTrees {
		return fmt.Errorf("Wrong number of trees in the model")
	}
	return nil
}
