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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/autotabular/tabular/config"
	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/serving/rest"
	"github.com/autotabular/tabular/store"
	"github.com/autotabular/tabular/trainer"
)

func newFlagSet(name string, stdout io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	return fs
}

func runModels(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("models", stdout)
	where := fs.String("where", "", `Expression selecting the model types e.g. "'tree' in Tags && Priority > 50".`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	specs := canonical.Register.Specs()
	if *where != "" {
		var err error
		if specs, err = canonical.Register.Select(*where); err != nil {
			return err
		}
	}
	rows := make([][]string, len(specs))
	for i, spec := range specs {
		problems := make([]string, len(spec.Problems))
		for j, p := range spec.Problems {
			problems[j] = string(p)
		}
		rows[i] = []string{spec.Key, spec.Name, strconv.Itoa(spec.Priority),
			strings.Join(problems, ","), strings.Join(spec.Tags, ",")}
	}
	renderTable(stdout, fmt.Sprintf("%d model types", len(specs)),
		[]string{"KEY", "NAME", "PRIORITY", "PROBLEMS", "TAGS"}, rows, nil)
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.Open(ctx, cfg.Store.Path)
}

func runFit(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("fit", stdout)
	datasetName := fs.String("dataset", "", "Name of a catalog dataset e.g. adult.")
	csvPath := fs.String("csv", "", "Path to a training CSV file. Requires -label.")
	label := fs.String("label", "", "Label column of the CSV file.")
	problem := fs.String("problem", "", "Problem type of the CSV file (binary, multiclass, regression). Inferred if empty.")
	hpPath := fs.String("hp", "", "HCL file with the model configurations.")
	keys := fs.String("keys", "", "Comma separated model keys, trained with their default hyperparameters.")
	preset := fs.String("preset", "default", "Preset used when neither -hp nor -keys is set: "+strings.Join(trainer.PresetNames(), ", ")+".")
	out := fs.String("out", "", "Directory where the predictor is saved.")
	ensemble := fs.Bool("ensemble", true, "Add a weighted ensemble of the fitted models.")
	timeLimit := fs.Duration("time_limit", cfg.Trainer.TimeLimit, "Time budget of the training.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*datasetName == "") == (*csvPath == "") {
		return fmt.Errorf("%w: exactly one of -dataset and -csv is required", errUsage)
	}

	opts := predictor.Options{
		Preset:              *preset,
		HoldoutFrac:         cfg.Trainer.HoldoutFrac,
		TimeLimit:           *timeLimit,
		ParallelModels:      cfg.Trainer.ParallelModels,
		NumWorkers:          cfg.Trainer.NumWorkers,
		Seed:                cfg.Trainer.Seed,
		External:            model.ExternalBackend{Endpoint: cfg.Remote.Endpoint, Timeout: cfg.Remote.Timeout},
		FitWeightedEnsemble: *ensemble,
	}
	var err error
	switch {
	case *hpPath != "":
		if opts.Hyperparameters, err = hyperparameter.LoadFile(ctx, *hpPath, canonical.Register); err != nil {
			return err
		}
	case *keys != "":
		if opts.Hyperparameters, err = hyperparameter.FromKeys(canonical.Register, strings.Split(*keys, ",")...); err != nil {
			return err
		}
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
		opts.Store = s
	}

	var train, testDs *dataset.Dataset
	if *datasetName != "" {
		if train, testDs, err = dataset.Load(ctx, *datasetName, cfg.Datasets.Dir); err != nil {
			return err
		}
		train = train.Subsample(cfg.Datasets.SampleSize, cfg.Trainer.Seed)
		opts.DatasetName = *datasetName
	} else {
		if *label == "" {
			return fmt.Errorf("%w: -csv requires -label", errUsage)
		}
		var problemType dataset.ProblemType
		if *problem != "" {
			if problemType, err = dataset.ParseProblemType(*problem); err != nil {
				return err
			}
		}
		if train, err = dataset.LoadCSV(ctx, *csvPath, dataset.InferOptions{Label: *label, Problem: problemType}); err != nil {
			return err
		}
		opts.DatasetName = *csvPath
	}

	ctxlog.FromContext(ctx).Info("fitting", "dataset", opts.DatasetName, "rows", train.NumRows(),
		"problem", train.Spec.Problem)
	p, err := predictor.Fit(ctx, train, opts)
	if err != nil {
		var fitErr *predictor.FitError
		if errors.As(err, &fitErr) {
			renderLeaderboard(stdout, "No model fitted", fitErr.Leaderboard)
		}
		return err
	}
	renderLeaderboard(stdout, fmt.Sprintf("Leaderboard (%s, best: %s)", p.Metric(), p.BestName()), p.Leaderboard())

	if testDs != nil {
		scores, err := p.Evaluate(ctx, testDs)
		if err != nil {
			return err
		}
		renderScores(stdout, scores)
	}
	if *out != "" {
		if err := p.Save(ctx, *out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Predictor saved in %s\n", *out)
	}
	if p.RunID() != "" {
		fmt.Fprintf(stdout, "Run recorded with id %s\n", p.RunID())
	}
	return nil
}

func renderLeaderboard(w io.Writer, title string, leaderboard []predictor.LeaderboardRow) {
	rows := make([][]string, len(leaderboard))
	for i, r := range leaderboard {
		rows[i] = []string{strconv.Itoa(i + 1), r.Name, r.Key, strconv.Itoa(r.Level), r.Status,
			formatScore(r.ValScore), fmt.Sprintf("%.2fs", r.FitSeconds), truncate(r.Error, 60)}
	}
	renderTable(w, title, []string{"#", "MODEL", "KEY", "LEVEL", "STATUS", "VAL SCORE", "FIT TIME", "ERROR"}, rows,
		func(row int) lipgloss.Style {
			switch leaderboard[row].Status {
			case string(trainer.StatusSkipped):
				return skippedStyle
			case string(trainer.StatusFailed):
				return failedStyle
			}
			return cellStyle
		})
}

func renderScores(w io.Writer, scores map[string]float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, formatScore(scores[name])}
	}
	renderTable(w, "Test evaluation", []string{"METRIC", "SCORE"}, rows, nil)
}

func runPredict(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("predict", stdout)
	modelPath := fs.String("model", "", "Directory of the saved predictor.")
	csvPath := fs.String("csv", "", "CSV file to predict.")
	proba := fs.Bool("proba", false, "Print the class probabilities instead of the labels.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" || *csvPath == "" {
		return fmt.Errorf("%w: -model and -csv are required", errUsage)
	}
	p, err := predictor.Load(ctx, *modelPath)
	if err != nil {
		return err
	}
	ds, err := dataset.LoadCSVWithSpec(ctx, *csvPath, p.Dataspec())
	if err != nil {
		return err
	}
	preds, err := p.PredictProba(ctx, ds)
	if err != nil {
		return err
	}
	if !*proba || !p.Dataspec().Problem.IsClassification() {
		for _, label := range p.Labels(preds) {
			fmt.Fprintln(stdout, label)
		}
		return nil
	}
	fmt.Fprintln(stdout, strings.Join(p.Best().Header().Classes, ","))
	for _, pred := range preds {
		values := make([]string, len(pred))
		for i, v := range pred {
			values[i] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		fmt.Fprintln(stdout, strings.Join(values, ","))
	}
	return nil
}

func runServe(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("serve", stdout)
	modelPath := fs.String("model", "", "Directory of the saved predictor.")
	addr := fs.String("addr", cfg.Serving.Addr, "Listening address.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" {
		return fmt.Errorf("%w: -model is required", errUsage)
	}
	p, err := predictor.Load(ctx, *modelPath)
	if err != nil {
		return err
	}
	server, err := rest.New(p, canonical.Register)
	if err != nil {
		return err
	}
	return server.Run(ctx, *addr)
}

func runRuns(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("runs", stdout)
	id := fs.String("id", "", "Show the models of a run.")
	del := fs.String("delete", "", "Delete a run.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("no run store configured: set store.path or TABULAR_STORE_PATH")
	}
	defer s.Close()

	switch {
	case *del != "":
		if err := s.DeleteRun(ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Run %s deleted\n", *del)
		return nil

	case *id != "":
		run, err := s.Run(ctx, *id)
		if err != nil {
			return err
		}
		rows := make([][]string, len(run.Results))
		for i, r := range run.Results {
			rows[i] = []string{r.ModelName, r.ModelKey, r.Status, formatScore(r.ValScore),
				fmt.Sprintf("%.2fs", r.FitSeconds), truncate(r.Error, 60)}
		}
		title := fmt.Sprintf("Run %s on %s (%s), best: %s", run.ID, run.Dataset, run.ProblemType, run.BestModel)
		renderTable(stdout, title, []string{"MODEL", "KEY", "STATUS", "VAL SCORE", "FIT TIME", "ERROR"}, rows, nil)
		return nil
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{r.ID, r.Dataset, r.ProblemType, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(1e6).String(), r.BestModel}
	}
	renderTable(stdout, fmt.Sprintf("%d runs", len(runs)),
		[]string{"ID", "DATASET", "PROBLEM", "STARTED", "DURATION", "BEST"}, rows, nil)
	return nil
}
