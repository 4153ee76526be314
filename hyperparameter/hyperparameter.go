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

// Package hyperparameter defines the set of model configurations to train, and reads them from
// HCL files.
//
// Example of file:
//
//	model "GBM" {
//	  learning_rate = 0.05
//	  num_leaves    = 64
//	}
//	model "GBM" {
//	  extra_trees = true
//	}
//	model "NN_TORCH" {
//	  hidden = [128, 64]
//	}
//
// Each block is one configuration. A model key can have several configurations.
package hyperparameter

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"

	// External dependencies, pls keep in this position in file.
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	// End of external dependencies.
	//

	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/register"
)

// Config lists the configurations to train, keyed by model key.
type Config map[string][]model.Hyperparameters

// Add adds a configuration for a model key.
func (c Config) Add(key string, hp model.Hyperparameters) {
	c[key] = append(c[key], hp)
}

// NumModels is the total number of configurations.
func (c Config) NumModels() int {
	n := 0
	for _, configs := range c {
		n += len(configs)
	}
	return n
}

// Keys returns the model keys in alphabetical order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that all the model keys are in the register.
func (c Config) Validate(reg *register.Register) error {
	for _, key := range c.Keys() {
		if _, err := reg.Get(key); err != nil {
			return err
		}
	}
	return nil
}

// FromKeys creates a configuration with the default hyperparameters of a list of models.
func FromKeys(reg *register.Register, keys ...string) (Config, error) {
	c := Config{}
	for _, key := range keys {
		if _, err := reg.Get(key); err != nil {
			return nil, err
		}
		c.Add(key, model.Hyperparameters{})
	}
	return c, nil
}

type fileRoot struct {
	Models []*modelBlock `hcl:"model,block"`
}

type modelBlock struct {
	Key    string   `hcl:"key,label"`
	Remain hcl.Body `hcl:",remain"`
}

// ParseHCL parses HCL "model" blocks. If "reg" is not nil, the model keys are validated
// against it.
func ParseHCL(src []byte, filename string, reg *register.Register) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	c := Config{}
	for _, block := range root.Models {
		if reg != nil {
			if _, err := reg.Get(block.Key); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}
		attrs, diags := block.Remain.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("model %q in %s: %w", block.Key, filename, diags)
		}
		hp := model.Hyperparameters{}
		for name, attr := range attrs {
			value, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("model %q in %s: %w", block.Key, filename, diags)
			}
			v, err := fromCty(value)
			if err != nil {
				return nil, fmt.Errorf("model %q in %s, hyperparameter %q: %w", block.Key, filename, name, err)
			}
			hp[name] = v
		}
		c.Add(block.Key, hp)
	}
	return c, nil
}

// LoadFile reads an HCL hyperparameter file.
func LoadFile(ctx context.Context, path string, reg *register.Register) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseHCL(src, path, reg)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Loaded hyperparameters.", "path", path, "models", c.NumModels())
	return c, nil
}

// fromCty converts an HCL value into a hyperparameter value. Whole numbers become int.
func fromCty(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, fmt.Errorf("value is not set")
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		f := v.AsBigFloat()
		if f.IsInt() {
			if i, acc := f.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		out, _ := f.Float64()
		return out, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, item := it.Element()
			converted, err := fromCty(item)
			if err != nil {
				return nil, err
			}
			if _, nested := converted.([]any); nested {
				return nil, fmt.Errorf("nested lists are not supported")
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.FriendlyName())
}
