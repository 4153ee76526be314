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

// Package predictor is the high level API: it trains the models of a preset (or of explicit
// hyperparameters) on a dataset, keeps the best one, and uses it to make predictions.
//
// Usage example:
//
//	train, err := dataset.LoadCSV(ctx, "train.csv", dataset.InferOptions{Label: "income"})
//	p, err := predictor.Fit(ctx, train, predictor.Options{Preset: "fast"})
//	labels, err := p.Predict(ctx, test)
package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// External dependencies, pls keep in this position in file.
	"gopkg.in/yaml.v3"
	// End of external dependencies.
	//

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/metric"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	modelio "github.com/autotabular/tabular/model/io"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/store"
	"github.com/autotabular/tabular/trainer"
	"github.com/autotabular/tabular/utils/file"
)

const (
	modelDir            = "model"
	predictorFilename   = "predictor.yaml"
	leaderboardFilename = "leaderboard.yaml"
)

// DefaultHoldoutFrac is the fraction of the training rows used for validation when no
// validation dataset is given.
const DefaultHoldoutFrac = 0.2

// ErrNoModelFitted is returned when none of the models could be fitted.
var ErrNoModelFitted = errors.New("no model fitted")

// Options are the training settings of a predictor.
type Options struct {
	// Hyperparameters are the model configurations. If not set, the models of Preset are used.
	Hyperparameters hyperparameter.Config
	// Preset is a trainer preset name. Defaults to "default".
	Preset string
	// Register resolves the model keys. Defaults to the canonical register.
	Register *register.Register
	// Validation is the validation dataset. If not set, HoldoutFrac of the training rows are
	// held out.
	Validation  *dataset.Dataset
	HoldoutFrac float64
	TimeLimit   time.Duration
	// ParallelModels is the number of models trained at the same time.
	ParallelModels int
	NumWorkers     int
	Seed           int64
	Metric         string
	External       model.ExternalBackend
	// FitWeightedEnsemble adds a weighted ensemble of the fitted models.
	FitWeightedEnsemble bool
	Store               *store.Store
	DatasetName         string
}

// LeaderboardRow is the summary of a trained model.
type LeaderboardRow struct {
	Name       string  `yaml:"name" json:"name"`
	Key        string  `yaml:"key" json:"key"`
	Level      int     `yaml:"level" json:"level"`
	Status     string  `yaml:"status" json:"status"`
	ValScore   float64 `yaml:"val_score" json:"val_score"`
	FitSeconds float64 `yaml:"fit_seconds" json:"fit_seconds"`
	Error      string  `yaml:"error,omitempty" json:"error,omitempty"`
}

func summarize(l trainer.Leaderboard) []LeaderboardRow {
	rows := make([]LeaderboardRow, len(l))
	for i, e := range l {
		rows[i] = LeaderboardRow{
			Name:       e.Name,
			Key:        e.Key,
			Level:      e.Level,
			Status:     string(e.Status),
			ValScore:   e.ValScore,
			FitSeconds: e.FitTime.Seconds(),
		}
		if e.Err != nil {
			rows[i].Error = e.Err.Error()
		}
	}
	return rows
}

// FitError is returned when no model could be fitted. It contains the leaderboard explaining
// why.
type FitError struct {
	Leaderboard []LeaderboardRow
}

func (e *FitError) Error() string {
	var reasons []string
	for _, r := range e.Leaderboard {
		reasons = append(reasons, fmt.Sprintf("%s %s: %s", r.Name, r.Status, r.Error))
	}
	return fmt.Sprintf("%v among %d models: %s", ErrNoModelFitted, len(e.Leaderboard), strings.Join(reasons, "; "))
}

func (e *FitError) Unwrap() error {
	return ErrNoModelFitted
}

// AllSkipped tests if all the models were skipped i.e. none of them failed.
func (e *FitError) AllSkipped() bool {
	for _, r := range e.Leaderboard {
		if r.Status != string(trainer.StatusSkipped) {
			return false
		}
	}
	return true
}

// Predictor is a trained predictor.
type Predictor struct {
	best        model.Model
	bestName    string
	metric      string
	leaderboard []LeaderboardRow
	// models are the fitted models of the training, by name. Not saved.
	models map[string]model.Model
	runID  string
}

// Fit trains a predictor.
func Fit(ctx context.Context, train *dataset.Dataset, opts Options) (*Predictor, error) {
	reg := opts.Register
	if reg == nil {
		reg = canonical.Register
	}
	hp := opts.Hyperparameters
	if hp == nil {
		preset := opts.Preset
		if preset == "" {
			preset = "default"
		}
		var err error
		if hp, err = trainer.Presets(reg, preset); err != nil {
			return nil, err
		}
	}

	train = train.DropMissingLabels()
	valid := opts.Validation
	if valid == nil {
		frac := opts.HoldoutFrac
		if frac == 0 {
			frac = DefaultHoldoutFrac
		}
		var err error
		if train, valid, err = train.Split(frac, opts.Seed); err != nil {
			return nil, fmt.Errorf("holdout split: %w", err)
		}
	} else {
		var err error
		if valid, err = valid.Reencode(train.Spec); err != nil {
			return nil, fmt.Errorf("validation dataset: %w", err)
		}
		valid = valid.DropMissingLabels()
	}

	result, err := trainer.New(trainer.Config{
		Hyperparameters:     hp,
		Register:            reg,
		TimeLimit:           opts.TimeLimit,
		ParallelModels:      opts.ParallelModels,
		NumWorkers:          opts.NumWorkers,
		Seed:                opts.Seed,
		Metric:              opts.Metric,
		External:            opts.External,
		FitWeightedEnsemble: opts.FitWeightedEnsemble,
		Store:               opts.Store,
		DatasetName:         opts.DatasetName,
	}).Fit(ctx, train, valid)
	if err != nil {
		return nil, err
	}
	best := result.Leaderboard.Best()
	if best == nil {
		return nil, &FitError{Leaderboard: summarize(result.Leaderboard)}
	}
	p := &Predictor{
		best:        best.Model,
		bestName:    best.Name,
		metric:      result.Metric,
		leaderboard: summarize(result.Leaderboard),
		models:      map[string]model.Model{},
		runID:       result.RunID,
	}
	for _, e := range result.Leaderboard {
		if e.Status == trainer.StatusFitted {
			p.models[e.Name] = e.Model
		}
	}
	return p, nil
}

// FitCSV trains a predictor on a CSV file. The problem type is inferred from the label column
// unless "problem" is set.
func FitCSV(ctx context.Context, path string, label string, problem dataset.ProblemType, opts Options) (*Predictor, error) {
	train, err := dataset.LoadCSV(ctx, path, dataset.InferOptions{Label: label, Problem: problem})
	if err != nil {
		return nil, err
	}
	if opts.DatasetName == "" {
		opts.DatasetName = filepath.Base(path)
	}
	return Fit(ctx, train, opts)
}

// Best returns the best model.
func (p *Predictor) Best() model.Model {
	return p.best
}

// BestName is the leaderboard name of the best model.
func (p *Predictor) BestName() string {
	return p.bestName
}

// Metric is the name of the validation metric.
func (p *Predictor) Metric() string {
	return p.metric
}

// RunID is the id of the training run in the store, if any.
func (p *Predictor) RunID() string {
	return p.runID
}

// Dataspec is the dataspec of the best model.
func (p *Predictor) Dataspec() *dataset.DataSpec {
	return p.best.Dataspec()
}

// Leaderboard returns the summary of the trained models, best first.
func (p *Predictor) Leaderboard() []LeaderboardRow {
	return append([]LeaderboardRow(nil), p.leaderboard...)
}

// Model returns a fitted model by leaderboard name. Only available after Fit.
func (p *Predictor) Model(name string) (model.Model, bool) {
	m, ok := p.models[name]
	return m, ok
}

// PredictProba computes the predictions of the best model. The dataset is re-encoded with the
// model dataspec if needed.
func (p *Predictor) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	encoded, err := ds.Reencode(p.best.Dataspec())
	if err != nil {
		return nil, err
	}
	return p.best.PredictProba(ctx, encoded)
}

// Predict returns the predicted class of each row, or the predicted value for regression.
func (p *Predictor) Predict(ctx context.Context, ds *dataset.Dataset) ([]string, error) {
	preds, err := p.PredictProba(ctx, ds)
	if err != nil {
		return nil, err
	}
	return p.Labels(preds), nil
}

// Labels converts predictions into labels.
func (p *Predictor) Labels(preds [][]float64) []string {
	labels := make([]string, len(preds))
	classes := p.best.Header().Classes
	for i, pred := range preds {
		if p.best.Header().Problem.IsClassification() {
			labels[i] = classes[metric.Argmax(pred)]
		} else {
			labels[i] = strconv.FormatFloat(pred[0], 'g', -1, 64)
		}
	}
	return labels
}

// Evaluate computes all the metrics of the problem type on a labeled dataset.
func (p *Predictor) Evaluate(ctx context.Context, ds *dataset.Dataset) (map[string]float64, error) {
	encoded, err := ds.Reencode(p.best.Dataspec())
	if err != nil {
		return nil, err
	}
	preds, err := p.best.PredictProba(ctx, encoded)
	if err != nil {
		return nil, err
	}
	scores, err := metric.Evaluate(encoded, preds)
	if err != nil {
		return nil, err
	}
	for name, s := range scores {
		if math.IsNaN(s) {
			return nil, fmt.Errorf("metric %s is NaN: the dataset has no label", name)
		}
	}
	return scores, nil
}

type predictorFile struct {
	Best      string    `yaml:"best"`
	Key       string    `yaml:"key"`
	Problem   string    `yaml:"problem"`
	Label     string    `yaml:"label"`
	Metric    string    `yaml:"metric"`
	RunID     string    `yaml:"run_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Save saves the best model and the leaderboard in a directory.
func (p *Predictor) Save(ctx context.Context, dir string) error {
	impl, ok := p.best.(model.Implementation)
	if !ok {
		return fmt.Errorf("model %s cannot be saved", p.bestName)
	}
	if err := modelio.SaveModel(filepath.Join(dir, modelDir), impl); err != nil {
		return err
	}
	meta := predictorFile{
		Best:      p.bestName,
		Key:       p.best.Name(),
		Problem:   string(p.best.Header().Problem),
		Label:     p.best.Header().Label,
		Metric:    p.metric,
		RunID:     p.runID,
		CreatedAt: time.Now().UTC(),
	}
	if err := writeYAML(ctx, filepath.Join(dir, predictorFilename), meta); err != nil {
		return err
	}
	return writeYAML(ctx, filepath.Join(dir, leaderboardFilename), p.leaderboard)
}

// Load loads a predictor saved with Save. The model types are resolved with the canonical
// models.
func Load(ctx context.Context, dir string) (*Predictor, error) {
	var meta predictorFile
	if err := readYAML(ctx, filepath.Join(dir, predictorFilename), &meta); err != nil {
		return nil, err
	}
	var leaderboard []LeaderboardRow
	if err := readYAML(ctx, filepath.Join(dir, leaderboardFilename), &leaderboard); err != nil {
		return nil, err
	}
	best, err := modelio.LoadModel(filepath.Join(dir, modelDir))
	if err != nil {
		return nil, err
	}
	if best.Name() != meta.Key {
		return nil, fmt.Errorf("the saved model is a %s, expected %s", best.Name(), meta.Key)
	}
	return &Predictor{
		best:        best,
		bestName:    meta.Best,
		metric:      meta.Metric,
		leaderboard: leaderboard,
		models:      map[string]model.Model{meta.Best: best},
		runID:       meta.RunID,
	}, nil
}

func writeYAML(ctx context.Context, path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return file.WriteFile(ctx, path, data)
}

func readYAML(ctx context.Context, path string, v any) error {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cannot parse %q: %w", path, err)
	}
	return nil
}
