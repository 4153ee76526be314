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

/*
The tabular command trains, inspects and serves tabular predictors.

Usage:

	tabular models [-where "'tree' in Tags"]
	tabular fit -dataset adult [-hp models.hcl | -keys GBM,RF | -preset fast] [-out /tmp/p]
	tabular fit -csv train.csv -label income [-problem binary] [-out /tmp/p]
	tabular predict -model /tmp/p -csv test.csv [-proba]
	tabular serve -model /tmp/p [-addr :8080]
	tabular runs [-id RUN_ID] [-delete RUN_ID]

The settings are read from the configuration file and the TABULAR_* environment variables.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/autotabular/tabular/config"
	"github.com/autotabular/tabular/internal/ctxlog"
)

// command is a sub-command of the tool.
type command struct {
	help string
	run  func(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"models":  {"List the registered model types.", runModels},
	"fit":     {"Train a predictor on a dataset.", runFit},
	"predict": {"Predict a CSV file with a saved predictor.", runPredict},
	"serve":   {"Serve a saved predictor over HTTP.", runServe},
	"runs":    {"List the recorded training runs.", runRuns},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tabular <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].help)
	}
}

// errUsage is returned for invalid command lines.
var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(stderr)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, stderr)
	ctx = ctxlog.WithLogger(ctx, logger)
	return cmd.run(ctx, cfg, args[1:], stdout)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
