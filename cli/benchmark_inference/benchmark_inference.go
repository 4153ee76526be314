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
Benchmark the inference speed of a saved predictor.

Usage example:

	# Disable CPU power scaling
	sudo apt install linux-cpupower
	sudo cpupower frequency-set --governor performance

	# Train and save a predictor
	tabular fit -dataset adult -out /tmp/adult_predictor

	# Benchmark
	go run ./cli/benchmark_inference \
		--model=/tmp/adult_predictor \
		--dataset=csv:/tmp/adult_test.csv \
		--batch_size=100 \
		--warmup_runs=10 \
		--num_runs=100

Naming convention:
  - A (benchmark) "run" evaluates the speed of a model on a dataset.
  - A "run" is composed of one of more "unit runs".
  - A "unit run" measure the speed of a specific inference implementation (called "engine") with
    specific parameters (e.g. batchSize=10).
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/serving"
	"github.com/autotabular/tabular/serving/engine"
	"github.com/autotabular/tabular/serving/example"
)

var flagModel = flag.String("model", "", "Path to the saved predictor")
var flagDataset = flag.String("dataset", "", "Type path to the dataset e.g. csv:/tmp/my_file.csv")
var flagNumRuns = flag.Int("num_runs", 20, "Number of times the dataset is run. Higher values increase the precision of the timings, but increase the duration of the benchmark.")
var flagBatchSize = flag.Int("batch_size", 100, "Number of examples per batch. Note that some engine are not impacted by the batch size.")
var flagWarmupRuns = flag.Int("warmup_runs", 2, "Number of runs through the dataset before the benchmark.")

// Options are the options to run the benchmark.
type Options struct {
	// Number of times the entire dataset is run.
	numRuns int

	// Number of runs to "warmup" the engine i.e. running the engine before the benchmark.
	warmupRuns int

	// Number of examples in each batch. Some engine speed can be impacted by the batch size.
	batchSize int
}

// Run runs the benchmark. The results are printed on the standard output.
func Run(ctx context.Context, modelPath string, datasetPath string, options *Options) error {
	fmt.Printf("Run benchmark with\n  model: %v\n  dataset: %v\n  options: %+v\n",
		modelPath, datasetPath, *options)

	// Check the validity of the options
	if options.numRuns <= 0 {
		return fmt.Errorf("options.runs should be greater or equal to 1")
	}
	if options.batchSize <= 0 {
		return fmt.Errorf("options.batchSize should be greater or equal to 1")
	}
	if options.warmupRuns <= 0 {
		return fmt.Errorf("options.warmupRuns should be greater or equal to 1")
	}

	// Load the predictor
	fmt.Println("Load predictor")
	p, err := predictor.Load(ctx, modelPath)
	if err != nil {
		return err
	}
	model := p.Best()
	fmt.Println("\tFound model:", p.BestName(), model.Name())

	// Compile the model. Tree models have a compiled engine in addition to the generic one.
	fmt.Println("Compile model")
	engines := []engine.Engine{}
	if compiled, err := serving.NewCompiledEngine(model); err == nil {
		engines = append(engines, compiled)
	}
	generic, err := serving.NewModelEngine(model)
	if err != nil {
		return err
	}
	engines = append(engines, generic)

	for _, engine := range engines {
		fmt.Printf("\tBuilt engine \"%T\" with %d input features\n",
			engine, engine.Features().NumFeatures())

		// Loads the dataset.
		fmt.Println("Load dataset")
		dataset, err := loadDataset(ctx, engine, datasetPath)
		if err != nil {
			return err
		}
		fmt.Printf("\t%d examples\n", dataset.NumAllocatedExamples())

		// Run the benchmark
		fmt.Println("Run benchmark")
		result, err := UnitRun(engine, dataset, options)
		if err != nil {
			return err
		}

		// Print the result
		fmt.Printf("Results for %T\n", engine)
		fmt.Print(result)
	}

	return nil
}

func (result *UnitRunResult) String() string {
	return fmt.Sprintf(
		`Avg. time per dataset:  %v
Avg. time per batch:    %v
Avg. time per examples: %v
`,
		// Note: In Go, duration * duration gives a duration, where the result is effectively
		// numNanoseconds * numNanoseconds -> numNanoseconds.
		result.durationPerExample*time.Duration(result.numExamples),
		result.durationPerExample*time.Duration(result.batchSize),
		result.durationPerExample)
}

func loadDataset(ctx context.Context, engine engine.Engine, typedPath string) (*example.Batch, error) {
	format, path, err := parseTypedPath(typedPath)
	if err != nil {
		return nil, err
	}
	switch format {
	case "csv":
		return loadDatasetCsv(ctx, engine, path)
	default:
		return nil, fmt.Errorf("Non supported dataset format %v", format)
	}
}

// parseTypedPath parses a typed path into its constituents.
//
// For example:
//
//	Input: "csv:/path/to/file.csv"
//	Results:
//	  1. "csv"
//	  2. "/path/to/file.csv"
//	  3. nil (i.e. no error)
func parseTypedPath(typedPath string) (pathType string, path string, err error) {
	i := strings.Index(typedPath, ":")
	if i == -1 {
		err = fmt.Errorf("Malformed typed dataset path. Expecting [format]:[path]. Instead, got %v", typedPath)
		return
	}
	pathType = typedPath[:i]
	path = typedPath[i+1:]
	err = nil
	return
}

func loadDatasetCsv(ctx context.Context, engine engine.Engine, path string) (*example.Batch, error) {
	// Read the csv content. The header is returned separately.
	csvHeader, csvData, err := dataset.ReadCSV(ctx, path)
	if err != nil {
		return nil, err
	}
	numExamples := len(csvData)

	// Convert the csv into a "Batch".
	examples := engine.AllocateExamples(numExamples)
	examples.FillMissing()
	for exampleIdx := 0; exampleIdx < numExamples; exampleIdx++ {
		if err := examples.SetFromFields(exampleIdx, csvHeader, csvData[exampleIdx]); err != nil {
			return nil, err
		}
	}
	return examples, nil
}

// UnitRunResult contains the benchmark result for a single run.
type UnitRunResult struct {
	durationPerExample time.Duration
	numExamples        int
	batchSize          int
}

// UnitRun benchmark a single engine on a give dataset.
func UnitRun(engine engine.Engine, dataset *example.Batch, options *Options) (*UnitRunResult, error) {

	batchSize := options.batchSize
	numExamples := dataset.NumAllocatedExamples()
	if numExamples == 0 {
		return nil, fmt.Errorf("The dataset is empty")
	}
	numBatches := (numExamples + batchSize - 1) / options.batchSize

	batch := engine.AllocateExamples(batchSize)
	predictions := engine.AllocatePredictions(batchSize)

	run := func(numRuns int) error {
		for runIdx := 0; runIdx < numRuns; runIdx++ {
			for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
				beginIdx := batchIdx * batchSize
				endIdx := min((batchIdx+1)*batchSize, numExamples)
				numExamplesInBatch := endIdx - beginIdx

				// Set the example values.
				// The benchmark time account for a single copy of the feature values.
				batch.CopyFrom(dataset, beginIdx, endIdx)

				// Generate the predictions.
				if err := engine.Predict(batch, numExamplesInBatch, predictions); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// Warmup
	if err := run(options.warmupRuns); err != nil {
		return nil, err
	}

	// Benchmark
	start := time.Now()
	if err := run(options.numRuns); err != nil {
		return nil, err
	}
	end := time.Now()

	result := &UnitRunResult{
		numExamples: numExamples,
		batchSize:   batchSize,
	}
	result.durationPerExample = end.Sub(start) / time.Duration(options.numRuns*numExamples)
	return result, nil
}

func main() {
	flag.Parse()

	options := Options{
		numRuns:    *flagNumRuns,
		batchSize:  *flagBatchSize,
		warmupRuns: *flagWarmupRuns}
	if err := Run(context.Background(), *flagModel, *flagDataset, &options); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
