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

package decisiontree

import (
	"github.com/autotabular/tabular/dataset"
)

// Stats are the label statistics of a set of training examples.
//
// The loss of a set of examples is the quantity minimized by the splits: the gain of a split is
// "parent.Loss() - negative.Loss() - positive.Loss()".
type Stats interface {
	Reset()
	AddRow(row int)
	Add(o Stats)
	Sub(o Stats)
	Set(o Stats)
	// Weight is the (weighted) number of examples.
	Weight() float64
	// Hessian is the sum of the second order derivatives. Equal to Weight for non gradient
	// targets.
	Hessian() float64
	Loss() float64
	// Value is the output of a leaf with those examples.
	Value() []float64
	// SortKey orders the categorical values of a feature before searching for the best
	// categorical split.
	SortKey(parent Stats) float64
}

// Target is a training label.
type Target interface {
	NewStats() Stats
}

// RowStats computes the statistics of a set of rows.
func RowStats(target Target, rows []int) Stats {
	s := target.NewStats()
	for _, row := range rows {
		s.AddRow(row)
	}
	return s
}

// ClassificationTarget is a categorical label. The loss is the weighted Gini impurity.
type ClassificationTarget struct {
	Labels     []int
	NumClasses int
	// Weights of the examples. nil means unit weights.
	Weights []float64
}

// NewStats implements Target.
func (t *ClassificationTarget) NewStats() Stats {
	return &classificationStats{target: t, counts: make([]float64, t.NumClasses)}
}

type classificationStats struct {
	target *ClassificationTarget
	counts []float64
	sum    float64
}

func (s *classificationStats) Reset() {
	for i := range s.counts {
		s.counts[i] = 0
	}
	s.sum = 0
}

func (s *classificationStats) AddRow(row int) {
	w := 1.0
	if s.target.Weights != nil {
		w = s.target.Weights[row]
	}
	s.counts[s.target.Labels[row]] += w
	s.sum += w
}

func (s *classificationStats) Add(o Stats) {
	other := o.(*classificationStats)
	for i, c := range other.counts {
		s.counts[i] += c
	}
	s.sum += other.sum
}

func (s *classificationStats) Sub(o Stats) {
	other := o.(*classificationStats)
	for i, c := range other.counts {
		s.counts[i] -= c
	}
	s.sum -= other.sum
}

func (s *classificationStats) Set(o Stats) {
	other := o.(*classificationStats)
	copy(s.counts, other.counts)
	s.sum = other.sum
}

func (s *classificationStats) Weight() float64  { return s.sum }
func (s *classificationStats) Hessian() float64 { return s.sum }

func (s *classificationStats) Loss() float64 {
	if s.sum <= 0 {
		return 0
	}
	sumSq := 0.0
	for _, c := range s.counts {
		sumSq += c * c
	}
	return s.sum - sumSq/s.sum
}

func (s *classificationStats) Value() []float64 {
	value := make([]float64, len(s.counts))
	if s.sum <= 0 {
		return value
	}
	for i, c := range s.counts {
		value[i] = c / s.sum
	}
	return value
}

func (s *classificationStats) SortKey(parent Stats) float64 {
	if s.sum <= 0 {
		return 0
	}
	p := parent.(*classificationStats)
	best := 0
	for i, c := range p.counts {
		if c > p.counts[best] {
			best = i
		}
	}
	return s.counts[best] / s.sum
}

// RegressionTarget is a numerical label. The loss is the sum of squared errors.
type RegressionTarget struct {
	Values []float64
	// Weights of the examples. nil means unit weights.
	Weights []float64
}

// NewStats implements Target.
func (t *RegressionTarget) NewStats() Stats {
	return &regressionStats{target: t}
}

type regressionStats struct {
	target          *RegressionTarget
	sum, sumSq, wgt float64
}

func (s *regressionStats) Reset() { s.sum, s.sumSq, s.wgt = 0, 0, 0 }

func (s *regressionStats) AddRow(row int) {
	w := 1.0
	if s.target.Weights != nil {
		w = s.target.Weights[row]
	}
	v := s.target.Values[row]
	s.sum += w * v
	s.sumSq += w * v * v
	s.wgt += w
}

func (s *regressionStats) Add(o Stats) {
	other := o.(*regressionStats)
	s.sum += other.sum
	s.sumSq += other.sumSq
	s.wgt += other.wgt
}

func (s *regressionStats) Sub(o Stats) {
	other := o.(*regressionStats)
	s.sum -= other.sum
	s.sumSq -= other.sumSq
	s.wgt -= other.wgt
}

func (s *regressionStats) Set(o Stats) {
	other := o.(*regressionStats)
	s.sum, s.sumSq, s.wgt = other.sum, other.sumSq, other.wgt
}

func (s *regressionStats) Weight() float64  { return s.wgt }
func (s *regressionStats) Hessian() float64 { return s.wgt }

func (s *regressionStats) Loss() float64 {
	if s.wgt <= 0 {
		return 0
	}
	return s.sumSq - s.sum*s.sum/s.wgt
}

func (s *regressionStats) mean() float64 {
	if s.wgt <= 0 {
		return 0
	}
	return s.sum / s.wgt
}

func (s *regressionStats) Value() []float64      { return []float64{s.mean()} }
func (s *regressionStats) SortKey(Stats) float64 { return s.mean() }

// GradientTarget is the first and second order derivatives of a loss, as used by gradient
// boosting. The leaf value is the Newton step "-G/(H+Lambda)".
type GradientTarget struct {
	Gradients []float64
	Hessians  []float64
	// Lambda is the L2 regularization of the leaf values.
	Lambda float64
}

// NewStats implements Target.
func (t *GradientTarget) NewStats() Stats {
	return &gradientStats{target: t}
}

type gradientStats struct {
	target  *GradientTarget
	g, h, n float64
}

func (s *gradientStats) Reset() { s.g, s.h, s.n = 0, 0, 0 }

func (s *gradientStats) AddRow(row int) {
	s.g += s.target.Gradients[row]
	s.h += s.target.Hessians[row]
	s.n++
}

func (s *gradientStats) Add(o Stats) {
	other := o.(*gradientStats)
	s.g += other.g
	s.h += other.h
	s.n += other.n
}

func (s *gradientStats) Sub(o Stats) {
	other := o.(*gradientStats)
	s.g -= other.g
	s.h -= other.h
	s.n -= other.n
}

func (s *gradientStats) Set(o Stats) {
	other := o.(*gradientStats)
	s.g, s.h, s.n = other.g, other.h, other.n
}

func (s *gradientStats) Weight() float64  { return s.n }
func (s *gradientStats) Hessian() float64 { return s.h }

func (s *gradientStats) Loss() float64 {
	if s.h+s.target.Lambda <= 0 {
		return 0
	}
	return -0.5 * s.g * s.g / (s.h + s.target.Lambda)
}

func (s *gradientStats) step() float64 {
	if s.h+s.target.Lambda <= 0 {
		return 0
	}
	return -s.g / (s.h + s.target.Lambda)
}

func (s *gradientStats) Value() []float64      { return []float64{s.step()} }
func (s *gradientStats) SortKey(Stats) float64 { return s.step() }

// NewTarget creates the target of the label of a dataset: a ClassificationTarget for
// classification, and a RegressionTarget for regression.
func NewTarget(ds *dataset.Dataset) Target {
	if ds.Spec.Problem.IsClassification() {
		return &ClassificationTarget{Labels: ds.Labels(), NumClasses: ds.Spec.NumClasses()}
	}
	return &RegressionTarget{Values: ds.Targets()}
}
