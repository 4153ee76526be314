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

package io

import (
	"fmt"
	"time"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"

	// External dependencies, pls keep in this position in file.
	"google.golang.org/protobuf/types/known/structpb"
	// End of external dependencies.
)

func intsToList(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

func stringsToList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func listToInts(v any) ([]int, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expecting a list, got %T", v)
	}
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]int, len(list))
	for i, item := range list {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("expecting a number, got %T", item)
		}
		out[i] = int(f)
	}
	return out, nil
}

func listToStrings(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expecting a list, got %T", v)
	}
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expecting a string, got %T", item)
		}
		out[i] = s
	}
	return out, nil
}

func headerToStruct(h *model.Header) (*structpb.Struct, error) {
	hp, err := h.Hyperparameters.Normalize()
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"key":             h.Key,
		"name":            h.Name,
		"problem":         string(h.Problem),
		"label":           h.Label,
		"input_features":  intsToList(h.InputFeatures),
		"classes":         stringsToList(h.Classes),
		"hyperparameters": map[string]any(hp),
		"metadata": map[string]any{
			"id":          h.Metadata.ID,
			"framework":   h.Metadata.Framework,
			"created_at":  h.Metadata.CreatedAt.Format(time.RFC3339Nano),
			"fit_seconds": h.Metadata.FitSeconds,
			"val_score":   h.Metadata.ValScore,
			"val_metric":  h.Metadata.ValMetric,
		},
	})
}

func headerFromStruct(s *structpb.Struct) (*model.Header, error) {
	m := s.AsMap()
	h := &model.Header{}
	h.Key, _ = m["key"].(string)
	if h.Key == "" {
		return nil, fmt.Errorf("invalid model header: missing model key")
	}
	h.Name, _ = m["name"].(string)
	problem, _ := m["problem"].(string)
	var err error
	if h.Problem, err = dataset.ParseProblemType(problem); err != nil {
		return nil, fmt.Errorf("invalid model header: %w", err)
	}
	h.Label, _ = m["label"].(string)
	if h.InputFeatures, err = listToInts(m["input_features"]); err != nil {
		return nil, fmt.Errorf("invalid model header input features: %w", err)
	}
	if h.Classes, err = listToStrings(m["classes"]); err != nil {
		return nil, fmt.Errorf("invalid model header classes: %w", err)
	}
	h.Hyperparameters = model.Hyperparameters{}
	if hp, ok := m["hyperparameters"].(map[string]any); ok {
		h.Hyperparameters = hp
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		h.Metadata.ID, _ = meta["id"].(string)
		h.Metadata.Framework, _ = meta["framework"].(string)
		if createdAt, ok := meta["created_at"].(string); ok {
			if h.Metadata.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
				return nil, fmt.Errorf("invalid model header creation time: %w", err)
			}
		}
		h.Metadata.FitSeconds, _ = meta["fit_seconds"].(float64)
		h.Metadata.ValScore, _ = meta["val_score"].(float64)
		h.Metadata.ValMetric, _ = meta["val_metric"].(string)
	}
	return h, nil
}

func dataspecToStruct(spec *dataset.DataSpec) (*structpb.Struct, error) {
	columns := make([]any, len(spec.Columns))
	for i, c := range spec.Columns {
		column := map[string]any{
			"name": c.Name,
			"type": c.Type.String(),
		}
		if c.Numerical != nil {
			column["numerical"] = map[string]any{
				"mean":        c.Numerical.Mean,
				"std":         c.Numerical.Std,
				"min":         c.Numerical.Min,
				"max":         c.Numerical.Max,
				"num_missing": float64(c.Numerical.NumMissing),
			}
		}
		if c.Categorical != nil {
			column["categorical"] = map[string]any{
				"items":         stringsToList(c.Categorical.Items),
				"counts":        intsToList(c.Categorical.Counts),
				"most_frequent": float64(c.Categorical.MostFrequent),
			}
		}
		columns[i] = column
	}
	return structpb.NewStruct(map[string]any{
		"columns":  columns,
		"label":    float64(spec.Label),
		"problem":  string(spec.Problem),
		"num_rows": float64(spec.NumRows),
	})
}

func dataspecFromStruct(s *structpb.Struct) (*dataset.DataSpec, error) {
	m := s.AsMap()
	spec := &dataset.DataSpec{}
	label, _ := m["label"].(float64)
	numRows, _ := m["num_rows"].(float64)
	spec.Label, spec.NumRows = int(label), int(numRows)
	problem, _ := m["problem"].(string)
	var err error
	if spec.Problem, err = dataset.ParseProblemType(problem); err != nil {
		return nil, fmt.Errorf("invalid dataspec: %w", err)
	}
	columns, _ := m["columns"].([]any)
	for i, item := range columns {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid dataspec column %d", i)
		}
		var c dataset.Column
		c.Name, _ = raw["name"].(string)
		typeName, _ := raw["type"].(string)
		if c.Type, err = dataset.ParseColumnType(typeName); err != nil {
			return nil, fmt.Errorf("invalid dataspec column %q: %w", c.Name, err)
		}
		if num, ok := raw["numerical"].(map[string]any); ok {
			c.Numerical = &dataset.NumericalSpec{}
			c.Numerical.Mean, _ = num["mean"].(float64)
			c.Numerical.Std, _ = num["std"].(float64)
			c.Numerical.Min, _ = num["min"].(float64)
			c.Numerical.Max, _ = num["max"].(float64)
			numMissing, _ := num["num_missing"].(float64)
			c.Numerical.NumMissing = int(numMissing)
		}
		if cat, ok := raw["categorical"].(map[string]any); ok {
			c.Categorical = &dataset.CategoricalSpec{}
			if c.Categorical.Items, err = listToStrings(cat["items"]); err != nil {
				return nil, fmt.Errorf("invalid dataspec column %q: %w", c.Name, err)
			}
			if c.Categorical.Counts, err = listToInts(cat["counts"]); err != nil {
				return nil, fmt.Errorf("invalid dataspec column %q: %w", c.Name, err)
			}
			mostFrequent, _ := cat["most_frequent"].(float64)
			c.Categorical.MostFrequent = int32(mostFrequent)
		}
		spec.Columns = append(spec.Columns, c)
	}
	if spec.Label < 0 || spec.Label >= len(spec.Columns) {
		return nil, fmt.Errorf("invalid dataspec: label column %d out of range", spec.Label)
	}
	spec.Finalize()
	return spec, nil
}
