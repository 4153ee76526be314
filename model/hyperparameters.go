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

package model

import (
	"fmt"
	"sort"
	"strings"
)

// Hyperparameters are the training parameters of a model, keyed by name.
//
// Values are numbers (int or float64), strings, booleans or lists of those. The getters
// convert between the numerical types since hyperparameters read from files or from the
// serialized header are always float64.
type Hyperparameters map[string]any

// Merge returns a new set of hyperparameters containing "defaults" overridden by "overrides".
func Merge(defaults, overrides Hyperparameters) Hyperparameters {
	merged := make(Hyperparameters, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the hyperparameters.
func (h Hyperparameters) Clone() Hyperparameters {
	return Merge(nil, h)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Int returns an integer hyperparameter, or "def" if not set.
func (h Hyperparameters) Int(key string, def int) int {
	if v, ok := toFloat(h[key]); ok {
		return int(v)
	}
	return def
}

// Float returns a floating point hyperparameter, or "def" if not set.
func (h Hyperparameters) Float(key string, def float64) float64 {
	if v, ok := toFloat(h[key]); ok {
		return v
	}
	return def
}

// Str returns a string hyperparameter, or "def" if not set.
func (h Hyperparameters) Str(key string, def string) string {
	if v, ok := h[key].(string); ok {
		return v
	}
	return def
}

// Bool returns a boolean hyperparameter, or "def" if not set.
func (h Hyperparameters) Bool(key string, def bool) bool {
	if v, ok := h[key].(bool); ok {
		return v
	}
	return def
}

// Ints returns a list of integers hyperparameter (e.g. layer sizes), or "def" if not set.
func (h Hyperparameters) Ints(key string, def []int) []int {
	switch x := h[key].(type) {
	case []int:
		return x
	case []float64:
		out := make([]int, len(x))
		for i, v := range x {
			out[i] = int(v)
		}
		return out
	case []any:
		out := make([]int, 0, len(x))
		for _, item := range x {
			v, ok := toFloat(item)
			if !ok {
				return def
			}
			out = append(out, int(v))
		}
		return out
	}
	return def
}

// Floats returns a list of floats hyperparameter, or "def" if not set.
func (h Hyperparameters) Floats(key string, def []float64) []float64 {
	switch x := h[key].(type) {
	case []float64:
		return x
	case []int:
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = float64(v)
		}
		return out
	case []any:
		out := make([]float64, 0, len(x))
		for _, item := range x {
			v, ok := toFloat(item)
			if !ok {
				return def
			}
			out = append(out, v)
		}
		return out
	}
	return def
}

// Normalize converts the values into the canonical types: float64, string, bool and []any.
// Returns an error for unsupported value types.
func (h Hyperparameters) Normalize() (Hyperparameters, error) {
	out := make(Hyperparameters, len(h))
	for k, v := range h {
		n, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("hyperparameter %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	switch x := v.(type) {
	case string, bool:
		return x, nil
	case []int:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = float64(item)
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out, nil
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// String gives a deterministic representation of the hyperparameters.
func (h Hyperparameters) String() string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, h[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}
