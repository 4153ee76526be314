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

// Package fithelper trains model configurations on the catalog datasets and checks the
// validity of the resulting predictors. It is used by the tests of the models.
//
// Usage example:
//
//	hp, _ := hyperparameter.FromKeys(canonical.Register, "GBM")
//	res, err := fithelper.FitAndValidateDataset(ctx, "adult", fithelper.FitArgs{Hyperparameters: hp})
package fithelper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/trainer"
	"github.com/autotabular/tabular/utils/file"
)

// DefaultSampleSize is the default maximum number of training rows.
const DefaultSampleSize = 1000

// FitArgs are the arguments of the predictor training.
type FitArgs struct {
	Hyperparameters     hyperparameter.Config
	FitWeightedEnsemble bool
	External            model.ExternalBackend
	Seed                int64
}

type options struct {
	sampleSize   int
	testSize     int
	allowSkip    bool
	datasetDir   string
	expected     int
	skipSaveLoad bool
	margin       float64
}

// Option configures FitAndValidateDataset.
type Option func(*options)

// WithSampleSize sets the maximum number of training rows. Zero or negative keeps all the rows.
func WithSampleSize(n int) Option { return func(o *options) { o.sampleSize = n } }

// WithTestSize sets the maximum number of test rows.
func WithTestSize(n int) Option { return func(o *options) { o.testSize = n } }

// WithAllowSkip accepts models skipped because they do not apply to the data or to the
// environment.
func WithAllowSkip() Option { return func(o *options) { o.allowSkip = true } }

// WithDatasetDir reads the datasets from a directory instead of generating them.
func WithDatasetDir(dir string) Option { return func(o *options) { o.datasetDir = dir } }

// WithExpectedModels overrides the expected number of leaderboard rows.
func WithExpectedModels(n int) Option { return func(o *options) { o.expected = n } }

// WithoutSaveLoad disables the save/load round trip check.
func WithoutSaveLoad() Option { return func(o *options) { o.skipSaveLoad = true } }

// Result of FitAndValidateDataset.
type Result struct {
	Predictor *predictor.Predictor
	// Scores are the metrics on the test split.
	Scores map[string]float64
	// Skipped is set when every model was skipped. SkipReason explains why.
	Skipped    bool
	SkipReason string
}

// FitAndValidateDataset trains a predictor with the model configurations of "args" on the
// train split of a catalog dataset, and checks the predictions on the test split.
//
// If all the models are skipped, and skipping is allowed, the returned result is marked as
// skipped and no error is returned.
func FitAndValidateDataset(ctx context.Context, datasetName string, args FitArgs, opts ...Option) (*Result, error) {
	o := options{sampleSize: DefaultSampleSize, testSize: 500, margin: 1e-6}
	for _, opt := range opts {
		opt(&o)
	}
	if args.Hyperparameters.NumModels() == 0 {
		return nil, errors.New("no model configuration to train")
	}

	train, testDs, err := dataset.Load(ctx, datasetName, o.datasetDir)
	if err != nil {
		return nil, err
	}
	train = train.Subsample(o.sampleSize, args.Seed)
	testDs = testDs.Subsample(o.testSize, args.Seed)

	p, err := predictor.Fit(ctx, train, predictor.Options{
		Hyperparameters:     args.Hyperparameters,
		FitWeightedEnsemble: args.FitWeightedEnsemble,
		External:            args.External,
		Seed:                args.Seed,
		DatasetName:         datasetName,
	})
	if err != nil {
		var fitErr *predictor.FitError
		if o.allowSkip && errors.As(err, &fitErr) && fitErr.AllSkipped() {
			return &Result{Skipped: true, SkipReason: fitErr.Error()}, nil
		}
		return nil, err
	}

	if err := checkLeaderboard(p, args, o); err != nil {
		return nil, err
	}
	if err := checkPredictions(ctx, p, testDs); err != nil {
		return nil, err
	}
	scores, err := p.Evaluate(ctx, testDs)
	if err != nil {
		return nil, err
	}
	for name, s := range scores {
		if math.IsInf(s, 0) || math.IsNaN(s) {
			return nil, fmt.Errorf("%s: score %s is not finite: %v", p.BestName(), name, s)
		}
	}
	if !o.skipSaveLoad {
		if err := checkSaveLoad(ctx, p, testDs, o.margin); err != nil {
			return nil, err
		}
	}
	return &Result{Predictor: p, Scores: scores}, nil
}

func checkLeaderboard(p *predictor.Predictor, args FitArgs, o options) error {
	leaderboard := p.Leaderboard()
	expected := o.expected
	if expected == 0 {
		expected = args.Hyperparameters.NumModels()
		fitted := 0
		for _, row := range leaderboard {
			if row.Level == 1 && row.Status == string(trainer.StatusFitted) {
				fitted++
			}
		}
		// The weighted ensemble is only added on top of two fitted models.
		if args.FitWeightedEnsemble && fitted >= 2 {
			expected++
		}
	}
	if len(leaderboard) != expected {
		return fmt.Errorf("expected %d models in the leaderboard, got %d", expected, len(leaderboard))
	}
	for _, row := range leaderboard {
		switch row.Status {
		case string(trainer.StatusFitted):
		case string(trainer.StatusSkipped):
			if !o.allowSkip {
				return fmt.Errorf("model %s was skipped: %s", row.Name, row.Error)
			}
		default:
			return fmt.Errorf("model %s %s: %s", row.Name, row.Status, row.Error)
		}
	}
	return nil
}

func checkPredictions(ctx context.Context, p *predictor.Predictor, testDs *dataset.Dataset) error {
	header := p.Best().Header()
	proba, err := p.PredictProba(ctx, testDs)
	if err != nil {
		return err
	}
	if len(proba) != testDs.NumRows() {
		return fmt.Errorf("expected %d predictions, got %d", testDs.NumRows(), len(proba))
	}
	for i, row := range proba {
		if len(row) != header.NumOutputs() {
			return fmt.Errorf("prediction %d has %d values, expected %d", i, len(row), header.NumOutputs())
		}
		if !header.Problem.IsClassification() {
			if math.IsNaN(row[0]) || math.IsInf(row[0], 0) {
				return fmt.Errorf("prediction %d is not finite: %v", i, row[0])
			}
			continue
		}
		sum := 0.
		for _, v := range row {
			if v < 0 || v > 1 || math.IsNaN(v) {
				return fmt.Errorf("prediction %d is not a probability distribution: %v", i, row)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-4 {
			return fmt.Errorf("probabilities of prediction %d sum to %v", i, sum)
		}
	}

	labels := p.Labels(proba)
	if len(labels) != testDs.NumRows() {
		return fmt.Errorf("expected %d labels, got %d", testDs.NumRows(), len(labels))
	}
	if !header.Problem.IsClassification() {
		for i, l := range labels {
			if _, err := strconv.ParseFloat(l, 64); err != nil {
				return fmt.Errorf("label %d: %w", i, err)
			}
		}
		return nil
	}
	classes := map[string]bool{}
	for _, c := range header.Classes {
		classes[c] = true
	}
	for i, l := range labels {
		if !classes[l] {
			return fmt.Errorf("label %d %q is not a class of %v", i, l, header.Classes)
		}
	}
	return nil
}

func checkSaveLoad(ctx context.Context, p *predictor.Predictor, testDs *dataset.Dataset, margin float64) error {
	dir, err := file.MkdirTemp(ctx, "fithelper")
	if err != nil {
		return err
	}
	defer file.RemoveAll(ctx, dir)
	if err := p.Save(ctx, dir); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	loaded, err := predictor.Load(ctx, dir)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if loaded.BestName() != p.BestName() {
		return fmt.Errorf("loaded predictor best model is %s, expected %s", loaded.BestName(), p.BestName())
	}
	want, err := p.PredictProba(ctx, testDs)
	if err != nil {
		return err
	}
	got, err := loaded.PredictProba(ctx, testDs)
	if err != nil {
		return err
	}
	for i := range want {
		for j := range want[i] {
			if math.Abs(got[i][j]-want[i][j]) > margin {
				return fmt.Errorf("prediction [%d][%d] changed after save/load: %v != %v", i, j, got[i][j], want[i][j])
			}
		}
	}
	return nil
}
