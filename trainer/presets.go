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
	"fmt"
	"sort"

	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/register"
)

// presetSelections are the model selection expressions of the presets. The models are resolved
// through the register, so a new model type only needs the right tags and priority to join a
// preset.
var presetSelections = map[string]string{
	// The models with a default priority.
	"default": `Priority > 0`,
	// The in-process models with a default priority, without neural networks.
	"fast":          `Priority > 0 && !("neural" in Tags) && !("external" in Tags)`,
	"interpretable": `"interpretable" in Tags`,
	"all":           `true`,
}

// PresetNames lists the available presets.
func PresetNames() []string {
	names := make([]string, 0, len(presetSelections))
	for name := range presetSelections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns the model configurations of a preset: the default hyperparameters of the
// selected models of the register.
func Presets(reg *register.Register, name string) (hyperparameter.Config, error) {
	selection, ok := presetSelections[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q, the available presets are %v", name, PresetNames())
	}
	specs, err := reg.Select(selection)
	if err != nil {
		return nil, err
	}
	c := hyperparameter.Config{}
	for _, s := range specs {
		c.Add(s.Key, model.Hyperparameters{})
	}
	return c, nil
}
