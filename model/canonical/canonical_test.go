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

package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/utils/test"
)

func TestRegister(t *testing.T) {
	test.CheckEq(t, canonical.Register.Keys(), []string{
		"RF", "XT", "KNN", "GBM", "CAT", "XGB", "NN_TORCH", "LR", "FASTAI",
		"AG_TEXT_NN", "AG_IMAGE_NN", "AG_AUTOMM", "FT_TRANSFORMER", "TABPFN", "TABPFNMIX",
		"FASTTEXT", "ENS_WEIGHTED", "SIMPLE_ENS_WEIGHTED", "IM_RULEFIT", "IM_GREEDYTREE",
		"IM_FIGS", "IM_HSTREE", "IM_BOOSTEDRULES", "DUMMY",
	}, "")
	test.CheckEq(t, canonical.Register.NameMap(), map[string]string{
		"RF":                  "RandomForest",
		"XT":                  "ExtraTrees",
		"KNN":                 "KNeighbors",
		"GBM":                 "LightGBM",
		"CAT":                 "CatBoost",
		"XGB":                 "XGBoost",
		"NN_TORCH":            "NeuralNetTorch",
		"LR":                  "LinearModel",
		"FASTAI":              "NeuralNetFastAI",
		"AG_TEXT_NN":          "TextPredictor",
		"AG_IMAGE_NN":         "ImagePredictor",
		"AG_AUTOMM":           "MultiModalPredictor",
		"FT_TRANSFORMER":      "FTTransformer",
		"TABPFN":              "TabPFN",
		"TABPFNMIX":           "TabPFNMix",
		"FASTTEXT":            "FastText",
		"ENS_WEIGHTED":        "WeightedEnsemble",
		"SIMPLE_ENS_WEIGHTED": "SimpleWeightedEnsemble",
		"IM_RULEFIT":          "RuleFit",
		"IM_GREEDYTREE":       "GreedyTree",
		"IM_FIGS":             "Figs",
		"IM_HSTREE":           "HierarchicalShrinkageTree",
		"IM_BOOSTEDRULES":     "BoostedRules",
		"DUMMY":               "Dummy",
	}, "")
}

func TestPriorities(t *testing.T) {
	priorities := canonical.Register.PriorityMap()
	want := map[string]int{
		"TABPFN": 110, "KNN": 100, "GBM": 90, "RF": 80, "CAT": 70, "XT": 60, "FASTAI": 50,
		"TABPFNMIX": 45, "XGB": 40, "LR": 30, "NN_TORCH": 25,
	}
	for key, p := range priorities {
		test.CheckEq(t, p, want[key], key)
	}

	var order []string
	for _, s := range canonical.Register.SortedByPriority()[:11] {
		order = append(order, s.Key)
	}
	test.CheckEq(t, order, []string{
		"TABPFN", "KNN", "GBM", "RF", "CAT", "XT", "FASTAI", "TABPFNMIX", "XGB", "LR", "NN_TORCH",
	}, "")
}

func TestSpecsAreLoadable(t *testing.T) {
	for _, s := range canonical.Register.Specs() {
		require.NotNil(t, s.Builder, s.Key)
		assert.NotEmpty(t, s.Problems, s.Key)
		_, ok := model.RegisteredBuilders[s.Key]
		assert.True(t, ok, "%s has no registered builder", s.Key)
	}
}

func TestSelect(t *testing.T) {
	selected, err := canonical.Register.Select(`"external" in Tags`)
	require.NoError(t, err)
	var keys []string
	for _, s := range selected {
		keys = append(keys, s.Key)
	}
	test.CheckEq(t, keys, []string{"FT_TRANSFORMER", "TABPFN", "TABPFNMIX"}, "")
}
