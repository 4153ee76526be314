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

// Package canonical registers the "canonical" models.
//
// Model implementations are made accessible through a registration mechanism for three main usecases:
// - A user wants all the available official models (called "canonical" models") to be available.
//
//	In this case, the user import this "canonical" package. Importing this package registers the
//	canonical models, and "Register" lists them.
//
// - A user is developing a custom model. This implementation is not canonical. The user import the
//
//	implementation package manually once, and adds its "Spec" to a register.
//
// - A user is developing a size critical binary that serves a single type of model. The user import
//
//	the implementation package of the corresponding model.
//
// Models (in the "/model" directory) and engines (i.e. optimized code to run models (in the
// "/serving" directory) are independent.
package canonical

import (
	"github.com/autotabular/tabular/model"
	"github.com/autotabular/tabular/model/boostedrules"
	"github.com/autotabular/tabular/model/catboost"
	"github.com/autotabular/tabular/model/dummy"
	"github.com/autotabular/tabular/model/ensemble"
	"github.com/autotabular/tabular/model/extratrees"
	"github.com/autotabular/tabular/model/fastai"
	"github.com/autotabular/tabular/model/fasttext"
	"github.com/autotabular/tabular/model/figs"
	"github.com/autotabular/tabular/model/fttransformer"
	"github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/greedytree"
	"github.com/autotabular/tabular/model/hstree"
	"github.com/autotabular/tabular/model/imagepredictor"
	"github.com/autotabular/tabular/model/knn"
	"github.com/autotabular/tabular/model/linear"
	"github.com/autotabular/tabular/model/multimodal"
	"github.com/autotabular/tabular/model/randomforest"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/model/rulefit"
	"github.com/autotabular/tabular/model/tabpfn"
	"github.com/autotabular/tabular/model/tabpfnmix"
	"github.com/autotabular/tabular/model/tabularnn"
	"github.com/autotabular/tabular/model/textpredictor"
	"github.com/autotabular/tabular/model/xgboost"
)

// Specs are the canonical model types. The order is only used for display. New official models
// are appended at the bottom.
var Specs = []model.Spec{
	randomforest.Spec,
	extratrees.Spec,
	knn.Spec,
	gradientboostedtrees.Spec,
	catboost.Spec,
	xgboost.Spec,
	tabularnn.Spec,
	linear.Spec,
	fastai.Spec,
	textpredictor.Spec,
	imagepredictor.Spec,
	multimodal.Spec,
	fttransformer.Spec,
	tabpfn.Spec,
	tabpfnmix.Spec,
	fasttext.Spec,
	ensemble.WeightedSpec,
	ensemble.SimpleWeightedSpec,
	rulefit.Spec,
	greedytree.Spec,
	figs.Spec,
	hstree.Spec,
	boostedrules.Spec,
	dummy.Spec,
}

// Register is the register of the canonical model types.
var Register = register.MustNew(Specs...)

// NewRegister creates a register of the canonical model types that can be modified without
// changing "Register".
func NewRegister() *register.Register {
	return register.MustNew(Specs...)
}
