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

// Package trainer fits a set of model configurations on a dataset and ranks them on a
// validation dataset.
//
// The models are trained in two levels. Level 1 models are trained on the data, by decreasing
// priority. Level 2 models are the ensembles, trained on the predictions of the fitted level 1
// models.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	// External dependencies, pls keep in this position in file.
	"golang.org/x/sync/errgroup"
	// End of external dependencies.
	//

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/metric"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/model/ensemble"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/store"
)

// ErrTimeLimit is the reason of the models skipped because the time limit was reached.
var ErrTimeLimit = errors.New("time limit reached")

// Config are the training settings.
type Config struct {
	// Hyperparameters are the model configurations to train.
	Hyperparameters hyperparameter.Config
	// Register resolves the model keys. Defaults to the canonical register.
	Register *register.Register
	// TimeLimit is the total training time. Each model gets an equal share of the remaining
	// time. <=0 means no limit.
	TimeLimit time.Duration
	// ParallelModels is the number of models trained at the same time. Defaults to 1.
	ParallelModels int
	// NumWorkers is the number of goroutines available to each model. Defaults to 1.
	NumWorkers int
	Seed       int64
	// Metric ranks the models. Defaults to metric.Default of the problem type.
	Metric string
	// External is the external model backend.
	External model.ExternalBackend
	// FitWeightedEnsemble adds a ENS_WEIGHTED ensemble when at least two level 1 models are
	// fitted and no ENS_WEIGHTED configuration is given.
	FitWeightedEnsemble bool
	// Store records the run if set.
	Store *store.Store
	// DatasetName is recorded in the store.
	DatasetName string
}

// Result is the outcome of a training.
type Result struct {
	Leaderboard Leaderboard
	Metric      string
	// RunID is the id of the run in the store, if any.
	RunID string
}

// Trainer trains model configurations.
type Trainer struct {
	cfg    Config
	metric metric.Metric
}

// New creates a trainer.
func New(cfg Config) *Trainer {
	if cfg.Register == nil {
		cfg.Register = canonical.Register
	}
	cfg.ParallelModels = max(1, cfg.ParallelModels)
	cfg.NumWorkers = max(1, cfg.NumWorkers)
	return &Trainer{cfg: cfg}
}

type job struct {
	name  string
	spec  model.Spec
	hp    model.Hyperparameters
	level int
}

// plan lists the jobs of each level, by decreasing priority.
func (t *Trainer) plan() (level1, level2 []job, err error) {
	if err := t.cfg.Hyperparameters.Validate(t.cfg.Register); err != nil {
		return nil, nil, err
	}
	for _, spec := range t.cfg.Register.SortedByPriority() {
		for i, hp := range t.cfg.Hyperparameters[spec.Key] {
			name := spec.Key
			if i > 0 {
				name += "_" + strconv.Itoa(i+1)
			}
			if spec.HasTag(model.TagEnsemble) {
				level2 = append(level2, job{name: name, spec: spec, hp: hp, level: 2})
			} else {
				level1 = append(level1, job{name: name, spec: spec, hp: hp, level: 1})
			}
		}
	}
	return level1, level2, nil
}

// budget shares the remaining time between the models left to train.
type budget struct {
	mu       sync.Mutex
	deadline time.Time
	left     int
}

// next returns the time allotted to the next model. Returns 0 without limit, and a negative
// duration if the time is over.
func (b *budget) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deadline.IsZero() {
		return 0
	}
	remaining := time.Until(b.deadline)
	share := remaining / time.Duration(max(1, b.left))
	b.left--
	if remaining <= 0 {
		return -1
	}
	return max(share, time.Millisecond)
}

func (b *budget) add(n int) {
	b.mu.Lock()
	b.left += n
	b.mu.Unlock()
}

// Fit trains the configured models on "train" and scores them on "valid".
func (t *Trainer) Fit(ctx context.Context, train, valid *dataset.Dataset) (*Result, error) {
	if train == nil || valid == nil {
		return nil, fmt.Errorf("training and validation datasets are required")
	}
	if valid.Spec != train.Spec {
		return nil, fmt.Errorf("the validation dataset is not encoded with the training dataspec")
	}
	problem := train.Spec.Problem
	t.metric = metric.Default(problem)
	if t.cfg.Metric != "" {
		m, err := metric.Get(t.cfg.Metric)
		if err != nil {
			return nil, err
		}
		if !m.Supports(problem) {
			return nil, fmt.Errorf("metric %q does not apply to %s problems", m.Name, problem)
		}
		t.metric = m
	}
	level1, level2, err := t.plan()
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Training models.", "problem", problem, "train_rows", train.NumRows(),
		"valid_rows", valid.NumRows(), "models", len(level1)+len(level2), "metric", t.metric.Name)
	start := time.Now()
	b := &budget{left: len(level1) + len(level2)}
	if t.cfg.TimeLimit > 0 {
		b.deadline = start.Add(t.cfg.TimeLimit)
	}

	in := model.FitInput{Train: train, Validation: valid, Seed: t.cfg.Seed, NumWorkers: t.cfg.NumWorkers, External: t.cfg.External}
	leaderboard, err := t.run(ctx, level1, in, b)
	if err != nil {
		return nil, err
	}

	var bases []model.Model
	for _, e := range leaderboard {
		if e.Status == StatusFitted {
			bases = append(bases, e.Model)
		}
	}
	if t.cfg.FitWeightedEnsemble && len(bases) >= 2 && t.cfg.Hyperparameters[ensemble.WeightedModelKey] == nil {
		if spec, err := t.cfg.Register.Get(ensemble.WeightedModelKey); err == nil {
			level2 = append(level2, job{name: spec.Key, spec: spec, hp: model.Hyperparameters{}, level: 2})
			b.add(1)
		}
	}
	in.BaseModels = bases
	ensembles, err := t.run(ctx, level2, in, b)
	if err != nil {
		return nil, err
	}
	leaderboard = append(leaderboard, ensembles...)
	leaderboard.Sort()

	result := &Result{Leaderboard: leaderboard, Metric: t.metric.Name}
	counts := leaderboard.Count()
	logger.Info("Training done.", "duration", time.Since(start), "fitted", counts[StatusFitted],
		"skipped", counts[StatusSkipped], "failed", counts[StatusFailed])
	if t.cfg.Store != nil {
		if result.RunID, err = t.record(ctx, problem, start, leaderboard); err != nil {
			logger.Error("Cannot record the run.", "error", err)
		}
	}
	return result, nil
}

// run trains a list of jobs with bounded parallelism. The entries are in the order of the jobs.
func (t *Trainer) run(ctx context.Context, jobs []job, in model.FitInput, b *budget) (Leaderboard, error) {
	entries := make(Leaderboard, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.ParallelModels)
	for i, j := range jobs {
		g.Go(func() error {
			entries[i] = t.fitOne(gctx, j, in, b.next())
			return nil
		})
	}
	// The jobs never fail: their errors are recorded in the entries.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// fitOne trains and scores a model. Errors and panics are recorded in the entry.
func (t *Trainer) fitOne(ctx context.Context, j job, in model.FitInput, allotted time.Duration) (entry *Entry) {
	start := time.Now()
	entry = &Entry{Name: j.name, Key: j.spec.Key, Level: j.level, ValScore: math.NaN()}
	logger := ctxlog.FromContext(ctx).With("model", j.name)
	defer func() {
		if r := recover(); r != nil {
			entry.Status, entry.Err, entry.Model = StatusFailed, fmt.Errorf("panic: %v", r), nil
		}
		entry.FitTime = time.Since(start)
		switch entry.Status {
		case StatusFitted:
			logger.Info("Fitted model.", "duration", entry.FitTime, "val_score", entry.ValScore)
		case StatusSkipped:
			logger.Info("Skipped model.", "reason", entry.Err)
		default:
			logger.Warn("Model failed.", "duration", entry.FitTime, "error", entry.Err)
		}
	}()

	if allotted < 0 {
		entry.Status, entry.Err = StatusSkipped, ErrTimeLimit
		return entry
	}
	if !j.spec.Supports(in.Train.Spec.Problem) {
		entry.Status = StatusSkipped
		entry.Err = fmt.Errorf("%s on %s: %w", j.spec.Key, in.Train.Spec.Problem, model.ErrNotSupported)
		return entry
	}
	if allotted > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, allotted)
		defer cancel()
	}

	m := j.spec.New(in.Train, j.hp)
	if err := m.Fit(ctx, &in); err != nil {
		entry.Err = err
		entry.Status = StatusFailed
		if model.IsSkip(err) {
			entry.Status = StatusSkipped
		}
		return entry
	}
	m.Header().Metadata.FitSeconds = time.Since(start).Seconds()
	preds, err := m.PredictProba(ctx, in.Validation)
	if err != nil {
		entry.Status, entry.Err = StatusFailed, fmt.Errorf("validation predictions: %w", err)
		return entry
	}
	score, err := t.metric.Score(in.Validation, preds)
	if err != nil {
		entry.Status, entry.Err = StatusFailed, fmt.Errorf("validation score: %w", err)
		return entry
	}
	if math.IsNaN(score) {
		entry.Status, entry.Err = StatusFailed, fmt.Errorf("validation %s is NaN", t.metric.Name)
		return entry
	}
	m.Header().Metadata.ValScore = score
	m.Header().Metadata.ValMetric = t.metric.Name
	entry.Status, entry.ValScore, entry.Model = StatusFitted, score, m
	return entry
}

func (t *Trainer) record(ctx context.Context, problem dataset.ProblemType, start time.Time, l Leaderboard) (string, error) {
	run := store.Run{
		Dataset:     t.cfg.DatasetName,
		ProblemType: string(problem),
		StartedAt:   start,
		Duration:    time.Since(start),
	}
	if best := l.Best(); best != nil {
		run.BestModel = best.Name
	}
	for _, e := range l {
		r := store.ModelResult{
			ModelKey:   e.Key,
			ModelName:  e.Name,
			Status:     string(e.Status),
			ValScore:   e.ValScore,
			FitSeconds: e.FitTime.Seconds(),
		}
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
		run.Results = append(run.Results, r)
	}
	return t.cfg.Store.RecordRun(ctx, run)
}
