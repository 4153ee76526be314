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

// Package serving is the entry point for model inference (serving). Models can have more than
// one inference engine, this will pick the correct (fastest) one according to the model.
package serving

import (
	"context"
	"fmt"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/greedytree"
	rf "github.com/autotabular/tabular/model/randomforest"
	df_engine "github.com/autotabular/tabular/serving/decisionforest"
	"github.com/autotabular/tabular/serving/engine"
	"github.com/autotabular/tabular/serving/example"
)

// NewEngine creates the best available engine for the model. Tree models are compiled into a
// flat engine. The other models are served through their PredictProba method.
func NewEngine(m model.Model) (engine.Engine, error) {
	e, err := NewCompiledEngine(m)
	if err == nil {
		return e, nil
	}
	return NewModelEngine(m)
}

// NewCompiledEngine creates a compiled engine for the model. It fails if no compiled engine is
// available for the model.
func NewCompiledEngine(m model.Model) (engine.Engine, error) {
	var e engine.Engine
	var err error
	switch typed := m.(type) {
	case *gbt.Model:
		e, err = newEngineGbt(typed)
	case *rf.Model:
		e, err = newEngineRf(typed)
	case *greedytree.Model:
		e, err = df_engine.NewTreeGenericEngine(typed)
	default:
		return nil, fmt.Errorf("No engine compatible to the model %q", m.Name())
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newEngineGbt(m *gbt.Model) (engine.Engine, error) {
	switch m.Header().Problem {
	case dataset.Binary:
		return df_engine.NewBinaryClassificationGBDTGenericEngine(m)
	case dataset.Multiclass:
		return df_engine.NewMulticlassClassificationGBDTGenericEngine(m)
	case dataset.Regression:
		return df_engine.NewRegressionGBDTGenericEngine(m)
	}
	return nil, fmt.Errorf("No engine compatible to the model")
}

func newEngineRf(m *rf.Model) (engine.Engine, error) {
	switch m.Header().Problem {
	case dataset.Binary:
		return df_engine.NewBinaryClassificationRFGenericEngine(m)
	case dataset.Multiclass:
		return df_engine.NewMulticlassClassificationRFGenericEngine(m)
	case dataset.Regression:
		return df_engine.NewRegressionRFGenericEngine(m)
	}
	return nil, fmt.Errorf("No engine compatible to the model")
}

// ModelEngine serves any model by converting the examples into a dataset and calling
// PredictProba.
type ModelEngine struct {
	model     model.Model
	features  *example.Features
	outputDim int
}

// NewModelEngine creates an engine calling the model for each batch.
func NewModelEngine(m model.Model) (*ModelEngine, error) {
	features, _, err := example.NewFeatures(m.Dataspec(), m.Header())
	if err != nil {
		return nil, err
	}
	outputDim := m.Header().NumOutputs()
	if m.Header().Problem == dataset.Binary {
		outputDim = 1
	}
	return &ModelEngine{model: m, features: features, outputDim: outputDim}, nil
}

// AllocateExamples allocates a set of examples.
func (e *ModelEngine) AllocateExamples(maxNumExamples int) *example.Batch {
	return example.NewBatch(maxNumExamples, e.features)
}

// AllocatePredictions allocates a set of predictions.
func (e *ModelEngine) AllocatePredictions(maxNumExamples int) []float32 {
	return make([]float32, maxNumExamples*e.outputDim)
}

// Features of the engine.
func (e *ModelEngine) Features() *example.Features {
	return e.features
}

// OutputDim is the output dimension of the engine.
func (e *ModelEngine) OutputDim() int {
	return e.outputDim
}

// Predict generates predictions with the model.
func (e *ModelEngine) Predict(examples *example.Batch, numExamples int, predictions []float32) error {
	return e.PredictContext(context.Background(), examples, numExamples, predictions)
}

// PredictContext is Predict with a context, for models calling an external backend.
func (e *ModelEngine) PredictContext(ctx context.Context, examples *example.Batch, numExamples int, predictions []float32) error {
	ds, err := examples.ToDataset(e.model.Dataspec(), numExamples)
	if err != nil {
		return err
	}
	probas, err := e.model.PredictProba(ctx, ds)
	if err != nil {
		return err
	}
	if len(probas) != numExamples {
		return fmt.Errorf("%s returned %d predictions for %d examples", e.model.Name(), len(probas), numExamples)
	}
	binary := e.model.Header().Problem == dataset.Binary
	for exampleIdx, proba := range probas {
		if binary {
			predictions[exampleIdx] = float32(proba[1])
			continue
		}
		for dim := 0; dim < e.outputDim; dim++ {
			predictions[exampleIdx*e.outputDim+dim] = float32(proba[dim])
		}
	}
	return nil
}
