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

// Package register defines an ordered collection of model types.
//
// The order of a register is the registration order. It is only used for display and to break
// the ties between model types of the same priority.
package register

import (
	"fmt"
	"sort"
	"strings"

	// External dependencies, pls keep in this position in file.
	"github.com/agnivade/levenshtein"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	// End of external dependencies.
	//

	"github.com/autotabular/tabular/model"
)

// UnknownKeyError is returned when looking up a model type that is not registered.
type UnknownKeyError struct {
	Key string
	// Suggestion is the closest registered key, if any is close enough.
	Suggestion string
}

func (e *UnknownKeyError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown model key %q, did you mean %q?", e.Key, e.Suggestion)
	}
	return fmt.Sprintf("unknown model key %q", e.Key)
}

// DuplicateKeyError is returned when registering a model type twice.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("model key %q is already registered", e.Key)
}

// Register is an ordered collection of model types, unique by key.
type Register struct {
	specs []model.Spec
	index map[string]int
}

// New creates a register from a list of model types.
func New(specs ...model.Spec) (*Register, error) {
	r := &Register{index: make(map[string]int, len(specs))}
	for _, s := range specs {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is like New but panics on error. Used to initialize package level registers.
func MustNew(specs ...model.Spec) *Register {
	r, err := New(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Add appends a model type at the end of the register.
func (r *Register) Add(spec model.Spec) error {
	if spec.Key == "" {
		return fmt.Errorf("model type %q has no key", spec.Name)
	}
	if _, ok := r.index[spec.Key]; ok {
		return &DuplicateKeyError{Key: spec.Key}
	}
	r.index[spec.Key] = len(r.specs)
	r.specs = append(r.specs, spec)
	return nil
}

// Remove removes a model type. Returns false if the key was not registered.
func (r *Register) Remove(key string) bool {
	i, ok := r.index[key]
	if !ok {
		return false
	}
	r.specs = append(r.specs[:i:i], r.specs[i+1:]...)
	delete(r.index, key)
	for j := i; j < len(r.specs); j++ {
		r.index[r.specs[j].Key] = j
	}
	return true
}

// Exists tests if a model key is registered.
func (r *Register) Exists(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Get returns the model type with a given key.
func (r *Register) Get(key string) (model.Spec, error) {
	i, ok := r.index[key]
	if !ok {
		return model.Spec{}, &UnknownKeyError{Key: key, Suggestion: r.Suggest(key)}
	}
	return r.specs[i], nil
}

// Suggest returns the registered key closest to "key", or "" if none is close.
func (r *Register) Suggest(key string) string {
	best, bestDist := "", -1
	upper := strings.ToUpper(key)
	for _, s := range r.specs {
		dist := levenshtein.ComputeDistance(upper, s.Key)
		if d := levenshtein.ComputeDistance(strings.ToLower(key), strings.ToLower(s.Name)); d < dist {
			dist = d
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = s.Key, dist
		}
	}
	if bestDist < 0 || bestDist > max(2, len(key)/2) {
		return ""
	}
	return best
}

// Len is the number of registered model types.
func (r *Register) Len() int {
	return len(r.specs)
}

// Keys returns the registered keys in registration order.
func (r *Register) Keys() []string {
	keys := make([]string, len(r.specs))
	for i, s := range r.specs {
		keys[i] = s.Key
	}
	return keys
}

// Specs returns a copy of the registered model types in registration order.
func (r *Register) Specs() []model.Spec {
	return append([]model.Spec(nil), r.specs...)
}

// NameMap maps the keys to the display names.
func (r *Register) NameMap() map[string]string {
	m := make(map[string]string, len(r.specs))
	for _, s := range r.specs {
		m[s.Key] = s.Name
	}
	return m
}

// PriorityMap maps the keys to the default priorities.
func (r *Register) PriorityMap() map[string]int {
	m := make(map[string]int, len(r.specs))
	for _, s := range r.specs {
		m[s.Key] = s.Priority
	}
	return m
}

// SortedByPriority returns the model types by decreasing priority. Model types with the same
// priority stay in registration order.
func (r *Register) SortedByPriority() []model.Spec {
	specs := r.Specs()
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Priority > specs[j].Priority })
	return specs
}

// selectEnv is the environment of the Select expressions.
type selectEnv struct {
	Key      string
	Name     string
	Priority int
	Tags     []string
	Problems []string
}

func newSelectEnv(s model.Spec) selectEnv {
	problems := make([]string, len(s.Problems))
	for i, p := range s.Problems {
		problems[i] = string(p)
	}
	tags := append([]string{}, s.Tags...)
	return selectEnv{Key: s.Key, Name: s.Name, Priority: s.Priority, Tags: tags, Problems: problems}
}

// Select returns the model types, in registration order, matching a boolean expression over
// "Key", "Name", "Priority", "Tags" and "Problems" e.g.
// `"tree" in Tags && Priority >= 50` or `"regression" in Problems`.
func (r *Register) Select(expression string) ([]model.Spec, error) {
	program, err := compile(expression)
	if err != nil {
		return nil, err
	}
	var selected []model.Spec
	for _, s := range r.specs {
		out, err := vm.Run(program, newSelectEnv(s))
		if err != nil {
			return nil, fmt.Errorf("evaluating %q on %s: %w", expression, s.Key, err)
		}
		if out.(bool) {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

func compile(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(selectEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid model selection %q: %w", expression, err)
	}
	return program, nil
}
