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

package trainer

import (
	"math"
	"sort"
	"time"

	"github.com/autotabular/tabular/model"
)

// Status is the outcome of the training of a model.
type Status string

// Training outcomes.
const (
	StatusFitted Status = "fitted"
	// StatusSkipped is a model that does not apply to the data or to the environment.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Entry is a model of the leaderboard.
type Entry struct {
	// Name is unique in the leaderboard: the model key, followed by "_<i>" for the i-th (i>=2)
	// configuration of the same key.
	Name string
	Key  string
	// Level is 1 for the models trained on the data, and 2 for the ensembles.
	Level  int
	Status Status
	// ValScore is the score on the validation dataset (higher is better). NaN if the model was
	// not fitted.
	ValScore float64
	FitTime  time.Duration
	Err      error
	Model    model.Implementation
}

// Leaderboard lists the trained models. After sorting, the fitted models come first by
// decreasing validation score, followed by the skipped and the failed models.
type Leaderboard []*Entry

func statusRank(s Status) int {
	switch s {
	case StatusFitted:
		return 0
	case StatusSkipped:
		return 1
	}
	return 2
}

// Sort sorts the leaderboard. Models with the same score keep their training order.
func (l Leaderboard) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		ri, rj := statusRank(l[i].Status), statusRank(l[j].Status)
		if ri != rj {
			return ri < rj
		}
		if l[i].Status == StatusFitted && l[i].ValScore != l[j].ValScore {
			return l[i].ValScore > l[j].ValScore
		}
		return false
	})
}

// Best returns the fitted model with the highest validation score, or nil.
func (l Leaderboard) Best() *Entry {
	var best *Entry
	for _, e := range l {
		if e.Status != StatusFitted || math.IsNaN(e.ValScore) {
			continue
		}
		if best == nil || e.ValScore > best.ValScore {
			best = e
		}
	}
	return best
}

// Get returns the entry with a given name, or nil.
func (l Leaderboard) Get(name string) *Entry {
	for _, e := range l {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// WithStatus returns the entries with a given status.
func (l Leaderboard) WithStatus(s Status) Leaderboard {
	var out Leaderboard
	for _, e := range l {
		if e.Status == s {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries of each status.
func (l Leaderboard) Count() map[Status]int {
	counts := map[Status]int{}
	for _, e := range l {
		counts[e.Status]++
	}
	return counts
}
