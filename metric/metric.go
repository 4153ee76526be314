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

// Package metric contains the evaluation metrics of the models.
//
// All the metrics are reported as scores where higher is better: the losses (log_loss, rmse,
// mae) are negated.
package metric

import (
	"fmt"
	"math"
	"sort"

	"github.com/autotabular/tabular/dataset"
)

// Names of the metrics.
const (
	Accuracy         = "accuracy"
	BalancedAccuracy = "balanced_accuracy"
	LogLoss          = "log_loss"
	RocAuc           = "roc_auc"
	F1               = "f1"
	RMSE             = "rmse"
	MAE              = "mae"
	R2               = "r2"
)

// Truth is the ground truth of a dataset: class indices (negative if missing) or regression
// targets (NaN if missing).
type Truth struct {
	Labels  []int
	Targets []float64
}

// TruthOf extracts the ground truth of a dataset.
func TruthOf(ds *dataset.Dataset) Truth {
	return Truth{Labels: ds.Labels(), Targets: ds.Targets()}
}

// Metric is an evaluation metric.
type Metric struct {
	Name     string
	Problems []dataset.ProblemType
	score    func(truth Truth, preds [][]float64) float64
}

var metrics = map[string]Metric{
	Accuracy:         {Accuracy, []dataset.ProblemType{dataset.Binary, dataset.Multiclass}, accuracy},
	BalancedAccuracy: {BalancedAccuracy, []dataset.ProblemType{dataset.Binary, dataset.Multiclass}, balancedAccuracy},
	LogLoss:          {LogLoss, []dataset.ProblemType{dataset.Binary, dataset.Multiclass}, logLoss},
	RocAuc:           {RocAuc, []dataset.ProblemType{dataset.Binary}, rocAuc},
	F1:               {F1, []dataset.ProblemType{dataset.Binary}, f1},
	RMSE:             {RMSE, []dataset.ProblemType{dataset.Regression}, rmse},
	MAE:              {MAE, []dataset.ProblemType{dataset.Regression}, mae},
	R2:               {R2, []dataset.ProblemType{dataset.Regression}, r2},
}

// Get returns a metric by name.
func Get(name string) (Metric, error) {
	m, ok := metrics[name]
	if !ok {
		return Metric{}, fmt.Errorf("unknown metric %q. The available metrics are: %v", name, Names())
	}
	return m, nil
}

// Names lists the available metrics.
func Names() []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the metric used to rank the models of a problem.
func Default(problem dataset.ProblemType) Metric {
	switch problem {
	case dataset.Binary, dataset.Multiclass:
		return metrics[Accuracy]
	}
	return metrics[RMSE]
}

// Supports tests if the metric applies to a problem type.
func (m Metric) Supports(problem dataset.ProblemType) bool {
	for _, p := range m.Problems {
		if p == problem {
			return true
		}
	}
	return false
}

// Score evaluates predictions against the labels of a dataset.
func (m Metric) Score(ds *dataset.Dataset, preds [][]float64) (float64, error) {
	if !m.Supports(ds.Spec.Problem) {
		return 0, fmt.Errorf("metric %q does not apply to %s problems", m.Name, ds.Spec.Problem)
	}
	if len(preds) != ds.NumRows() {
		return 0, fmt.Errorf("got %d predictions for %d rows", len(preds), ds.NumRows())
	}
	return m.ScoreTruth(TruthOf(ds), preds), nil
}

// ScoreTruth evaluates predictions against a ground truth. Rows with a missing label are
// ignored. Returns NaN if no row has a label.
func (m Metric) ScoreTruth(truth Truth, preds [][]float64) float64 {
	return m.score(truth, preds)
}

// Evaluate computes all the metrics applicable to the problem of the dataset.
func Evaluate(ds *dataset.Dataset, preds [][]float64) (map[string]float64, error) {
	scores := map[string]float64{}
	for _, name := range Names() {
		m := metrics[name]
		if !m.Supports(ds.Spec.Problem) {
			continue
		}
		s, err := m.Score(ds, preds)
		if err != nil {
			return nil, err
		}
		scores[name] = s
	}
	return scores, nil
}

// Argmax returns the index of the largest value. Ties are broken by the lowest index.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func accuracy(truth Truth, preds [][]float64) float64 {
	correct, total := 0, 0
	for i, l := range truth.Labels {
		if l < 0 {
			continue
		}
		if Argmax(preds[i]) == l {
			correct++
		}
		total++
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(total)
}

func balancedAccuracy(truth Truth, preds [][]float64) float64 {
	correct := map[int]int{}
	total := map[int]int{}
	for i, l := range truth.Labels {
		if l < 0 {
			continue
		}
		total[l]++
		if Argmax(preds[i]) == l {
			correct[l]++
		}
	}
	if len(total) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for l, n := range total {
		sum += float64(correct[l]) / float64(n)
	}
	return sum / float64(len(total))
}

const epsilon = 1e-15

func logLoss(truth Truth, preds [][]float64) float64 {
	sum, total := 0.0, 0
	for i, l := range truth.Labels {
		if l < 0 {
			continue
		}
		p := math.Min(math.Max(preds[i][l], epsilon), 1-epsilon)
		sum -= math.Log(p)
		total++
	}
	if total == 0 {
		return math.NaN()
	}
	return -sum / float64(total)
}

// rocAuc is the probability that a positive example (class 1) is ranked above a negative one,
// computed from the ranks of the scores with ties averaged.
func rocAuc(truth Truth, preds [][]float64) float64 {
	type scored struct {
		score    float64
		positive bool
	}
	var items []scored
	numPositive := 0
	for i, l := range truth.Labels {
		if l < 0 {
			continue
		}
		items = append(items, scored{preds[i][1], l == 1})
		if l == 1 {
			numPositive++
		}
	}
	numNegative := len(items) - numPositive
	if numPositive == 0 || numNegative == 0 {
		return math.NaN()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })
	rankSum := 0.0
	for i := 0; i < len(items); {
		j := i
		for j < len(items) && items[j].score == items[i].score {
			j++
		}
		// Ranks i+1..j share their average.
		rank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if items[k].positive {
				rankSum += rank
			}
		}
		i = j
	}
	return (rankSum - float64(numPositive*(numPositive+1))/2) / float64(numPositive*numNegative)
}

func f1(truth Truth, preds [][]float64) float64 {
	tp, fp, fn := 0, 0, 0
	for i, l := range truth.Labels {
		if l < 0 {
			continue
		}
		predicted := Argmax(preds[i]) == 1
		switch {
		case predicted && l == 1:
			tp++
		case predicted:
			fp++
		case l == 1:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn)
}

func regressionErrors(truth Truth, preds [][]float64, fn func(d float64) float64) (float64, int) {
	sum, total := 0.0, 0
	for i, t := range truth.Targets {
		if math.IsNaN(t) {
			continue
		}
		sum += fn(preds[i][0] - t)
		total++
	}
	return sum, total
}

func rmse(truth Truth, preds [][]float64) float64 {
	sum, total := regressionErrors(truth, preds, func(d float64) float64 { return d * d })
	if total == 0 {
		return math.NaN()
	}
	return -math.Sqrt(sum / float64(total))
}

func mae(truth Truth, preds [][]float64) float64 {
	sum, total := regressionErrors(truth, preds, math.Abs)
	if total == 0 {
		return math.NaN()
	}
	return -sum / float64(total)
}

func r2(truth Truth, preds [][]float64) float64 {
	mean, total := 0.0, 0
	for _, t := range truth.Targets {
		if !math.IsNaN(t) {
			mean += t
			total++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	mean /= float64(total)
	sse, _ := regressionErrors(truth, preds, func(d float64) float64 { return d * d })
	sst := 0.0
	for _, t := range truth.Targets {
		if !math.IsNaN(t) {
			sst += (t - mean) * (t - mean)
		}
	}
	if sst == 0 {
		if sse == 0 {
			return 1
		}
		return 0
	}
	return 1 - sse/sst
}
