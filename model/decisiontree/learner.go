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
	"container/heap"
	"math"
	"math/rand"
	"sort"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model/decisiontree/node"
)

// Features are the input features of a tree learner. Missing numerical values are replaced by
// the mean of the column, and the conditions send missing values on the same side as the mean.
type Features struct {
	// Columns are the dataspec column indices of the features.
	Columns     []int
	numerical   [][]float64
	categorical [][]int32
	numValues   []int
	means       []float64
}

// NewFeatures extracts the numerical and categorical features of a dataset. Other column types
// are ignored. Returns nil if none of the columns can be used.
func NewFeatures(ds *dataset.Dataset, columns []int) *Features {
	f := &Features{}
	for _, col := range columns {
		column := &ds.Spec.Columns[col]
		switch column.Type {
		case dataset.Numerical:
			mean := column.Numerical.Mean
			src := ds.Numerical(col)
			values := make([]float64, len(src))
			for i, v := range src {
				if math.IsNaN(v) {
					v = mean
				}
				values[i] = v
			}
			f.Columns = append(f.Columns, col)
			f.numerical = append(f.numerical, values)
			f.categorical = append(f.categorical, nil)
			f.numValues = append(f.numValues, 0)
			f.means = append(f.means, mean)
		case dataset.Categorical:
			if column.Categorical.NumValues() <= 1 {
				continue
			}
			f.Columns = append(f.Columns, col)
			f.numerical = append(f.numerical, nil)
			f.categorical = append(f.categorical, ds.Categorical(col))
			f.numValues = append(f.numValues, column.Categorical.NumValues())
			f.means = append(f.means, 0)
		}
	}
	if len(f.Columns) == 0 {
		return nil
	}
	return f
}

// NumFeatures is the number of features.
func (f *Features) NumFeatures() int {
	return len(f.Columns)
}

func (f *Features) eval(split *Split, row int) bool {
	if values := f.numerical[split.feature]; values != nil {
		return values[row] >= split.Condition.Threshold
	}
	return split.Condition.EvalCategorical(f.categorical[split.feature][row])
}

// Partition splits a set of rows according to a split.
func (f *Features) Partition(split *Split, rows []int) (negative, positive []int) {
	for _, row := range rows {
		if f.eval(split, row) {
			positive = append(positive, row)
		} else {
			negative = append(negative, row)
		}
	}
	return negative, positive
}

// Config are the parameters of the tree learner.
type Config struct {
	// MaxDepth is the maximum depth of the tree. <=0 means no limit.
	MaxDepth int
	// MinExamples is the minimum (weighted) number of examples in a leaf. Defaults to 1.
	MinExamples float64
	// MaxLeaves > 0 grows the tree best first until it reaches this number of leaves.
	MaxLeaves int
	// NumCandidateFeatures is the number of features randomly sampled in each node. <=0 means
	// all the features.
	NumCandidateFeatures int
	// RandomThresholds selects the numerical thresholds uniformly at random instead of
	// searching the best one.
	RandomThresholds bool
	// MinGain is the minimum gain of a split.
	MinGain float64
	// MinHessian is the minimum sum of hessians in a leaf.
	MinHessian float64
}

// Split is a candidate split of a node.
type Split struct {
	Condition node.Condition
	Gain      float64
	// Statistics of the examples in the two children.
	Negative, Positive Stats
	feature            int
}

func (cfg *Config) valid(s Stats) bool {
	minExamples := cfg.MinExamples
	if minExamples <= 0 {
		minExamples = 1
	}
	return s.Weight() >= minExamples && s.Hessian() >= cfg.MinHessian && s.Weight() > 0
}

type valueRow struct {
	value float64
	row   int
}

// FindSplit finds the best split of a set of rows. Returns nil if no split satisfies the
// constraints. "rng" can be nil if no randomness is configured.
func FindSplit(f *Features, target Target, rows []int, parent Stats, cfg Config, rng *rand.Rand) *Split {
	candidates := make([]int, f.NumFeatures())
	for i := range candidates {
		candidates[i] = i
	}
	if cfg.NumCandidateFeatures > 0 && cfg.NumCandidateFeatures < len(candidates) && rng != nil {
		rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:cfg.NumCandidateFeatures]
	}

	parentLoss := parent.Loss()
	best := &Split{Gain: cfg.MinGain}
	found := false
	negative := target.NewStats()
	positive := target.NewStats()

	consider := func(feature int, fill func(c *node.Condition)) {
		if !cfg.valid(negative) {
			return
		}
		positive.Set(parent)
		positive.Sub(negative)
		if !cfg.valid(positive) {
			return
		}
		gain := parentLoss - negative.Loss() - positive.Loss()
		if gain > best.Gain {
			best.Gain = gain
			best.feature = feature
			best.Condition = node.Condition{Feature: f.Columns[feature]}
			fill(&best.Condition)
			found = true
		}
	}

	pairs := make([]valueRow, len(rows))
	for _, feature := range candidates {
		if values := f.numerical[feature]; values != nil {
			for i, row := range rows {
				pairs[i] = valueRow{values[row], row}
			}
			mean := f.means[feature]
			if cfg.RandomThresholds {
				lo, hi := math.Inf(1), math.Inf(-1)
				for _, p := range pairs {
					lo = math.Min(lo, p.value)
					hi = math.Max(hi, p.value)
				}
				if !(hi > lo) {
					continue
				}
				threshold := lo + rng.Float64()*(hi-lo)
				if threshold <= lo {
					threshold = hi
				}
				negative.Reset()
				for _, p := range pairs {
					if p.value < threshold {
						negative.AddRow(p.row)
					}
				}
				consider(feature, func(c *node.Condition) {
					c.Type = node.NumericalHigher
					c.Threshold = threshold
					c.NAValue = mean >= threshold
				})
				continue
			}

			sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })
			negative.Reset()
			for i := 0; i+1 < len(pairs); i++ {
				negative.AddRow(pairs[i].row)
				lo, hi := pairs[i].value, pairs[i+1].value
				if lo == hi {
					continue
				}
				consider(feature, func(c *node.Condition) {
					threshold := lo + (hi-lo)/2
					if threshold <= lo {
						threshold = hi
					}
					c.Type = node.NumericalHigher
					c.Threshold = threshold
					c.NAValue = mean >= threshold
				})
			}
			continue
		}

		values := f.categorical[feature]
		numValues := f.numValues[feature]
		perValue := make([]Stats, numValues)
		present := []int32{}
		for _, row := range rows {
			v := values[row]
			if int(v) >= numValues || v < 0 {
				continue
			}
			if perValue[v] == nil {
				perValue[v] = target.NewStats()
				present = append(present, v)
			}
			perValue[v].AddRow(row)
		}
		if len(present) < 2 {
			continue
		}
		keys := make(map[int32]float64, len(present))
		for _, v := range present {
			keys[v] = perValue[v].SortKey(parent)
		}
		sort.Slice(present, func(i, j int) bool {
			ki, kj := keys[present[i]], keys[present[j]]
			if ki != kj {
				return ki < kj
			}
			return present[i] < present[j]
		})
		negative.Reset()
		for i := 0; i+1 < len(present); i++ {
			negative.Add(perValue[present[i]])
			positiveValues := present[i+1:]
			consider(feature, func(c *node.Condition) {
				c.Type = node.CategoricalIn
				c.Positive = node.NewBitmap(numValues)
				for _, v := range positiveValues {
					node.SetBit(c.Positive, v)
				}
			})
		}
	}

	if !found {
		return nil
	}
	neg, pos := f.Partition(best, rows)
	if len(neg) == 0 || len(pos) == 0 {
		return nil
	}
	best.Negative = RowStats(target, neg)
	best.Positive = RowStats(target, pos)
	return best
}

// NewLeaf creates a leaf node from the statistics of its examples.
func NewLeaf(s Stats) *Node {
	return &Node{RawNode: &node.RawNode{Value: s.Value(), NumExamples: s.Weight()}}
}

// ApplySplit turns a leaf into a non-leaf node with two leaf children.
func (n *Node) ApplySplit(split *Split) {
	condition := split.Condition
	n.RawNode.Condition = &condition
	n.NegativeChild = NewLeaf(split.Negative)
	n.PositiveChild = NewLeaf(split.Positive)
}

type growCandidate struct {
	node  *Node
	rows  []int
	depth int
	split *Split
}

type candidateQueue []*growCandidate

func (q candidateQueue) Len() int           { return len(q) }
func (q candidateQueue) Less(i, j int) bool { return q[i].split.Gain > q[j].split.Gain }
func (q candidateQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *candidateQueue) Push(x any)        { *q = append(*q, x.(*growCandidate)) }
func (q *candidateQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// Grow trains a decision tree on a set of rows. Rows can be repeated (e.g. bootstrapping).
// Nodes are split in order of decreasing gain, so a tree limited by MaxLeaves keeps the most
// useful splits.
func Grow(f *Features, target Target, rows []int, cfg Config, rng *rand.Rand) *Tree {
	rootStats := RowStats(target, rows)
	root := NewLeaf(rootStats)

	queue := &candidateQueue{}
	push := func(n *Node, rows []int, depth int, stats Stats) {
		if cfg.MaxDepth > 0 && depth >= cfg.MaxDepth {
			return
		}
		if split := FindSplit(f, target, rows, stats, cfg, rng); split != nil {
			heap.Push(queue, &growCandidate{node: n, rows: rows, depth: depth, split: split})
		}
	}
	push(root, rows, 0, rootStats)

	numLeaves := 1
	for queue.Len() > 0 {
		if cfg.MaxLeaves > 0 && numLeaves >= cfg.MaxLeaves {
			break
		}
		c := heap.Pop(queue).(*growCandidate)
		neg, pos := f.Partition(c.split, c.rows)
		c.node.ApplySplit(c.split)
		numLeaves++
		push(c.node.NegativeChild, neg, c.depth+1, c.split.Negative)
		push(c.node.PositiveChild, pos, c.depth+1, c.split.Positive)
	}
	return &Tree{Root: root}
}
