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

// Package rulefit defines the RuleFit model.
//
// Candidate rules are the conjunctions of conditions leading to the nodes of shallow trees
// trained on bootstrap samples. The rules (as 0/1 features) and the winsorized numerical
// features (as linear terms) are combined by an L1 regularized linear model: a logistic
// regression per class (one-vs-rest) for classification, and a lasso for regression.
package rulefit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
	"github.com/autotabular/tabular/model/decisiontree/node"
)

// ModelKey is the unique identifier of the model for serialization.
const ModelKey = "IM_RULEFIT"

const bodyFilename = "rulefit.msgpack"

// linearScale is the scale of the standardized linear terms, giving them the same prior
// importance as a rule with 50% support.
const linearScale = 0.4

// Spec describes the RuleFit model.
var Spec = model.Spec{
	Key:      ModelKey,
	Name:     "RuleFit",
	Priority: 0,
	Problems: model.AllProblems,
	Tags:     []string{model.TagLinear, model.TagInterpretable},
	Defaults: model.Hyperparameters{
		"n_estimators":   10,
		"tree_size":      4,
		"max_rules":      30,
		"alpha":          0.005,
		"include_linear": true,
		"num_iterations": 300,
	},
	Builder: Create,
}

// Term is a condition of a rule.
type Term struct {
	Condition node.Condition `msgpack:"condition"`
	Negated   bool           `msgpack:"negated"`
}

// Rule is a conjunction of terms.
type Rule struct {
	Terms []Term `msgpack:"terms"`
}

// Eval tests if a row satisfies all the terms of the rule.
func (r *Rule) Eval(ds *dataset.Dataset, row int) bool {
	for i := range r.Terms {
		if r.Terms[i].Condition.Eval(ds, row) == r.Terms[i].Negated {
			return false
		}
	}
	return true
}

// Describe gives a human readable description of the rule.
func (r *Rule) Describe(spec *dataset.DataSpec) string {
	parts := make([]string, len(r.Terms))
	for i := range r.Terms {
		parts[i] = dt.DescribeCondition(spec, &r.Terms[i].Condition, r.Terms[i].Negated)
	}
	return strings.Join(parts, " and ")
}

// LinearTerm is a winsorized and standardized numerical feature.
type LinearTerm struct {
	Col   int     `msgpack:"col"`
	Lo    float64 `msgpack:"lo"`
	Hi    float64 `msgpack:"hi"`
	Mean  float64 `msgpack:"mean"`
	Scale float64 `msgpack:"scale"`
}

func (l *LinearTerm) value(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Min(l.Hi, math.Max(l.Lo, v))
	return (v - l.Mean) * l.Scale
}

// Body is the model specific data.
type Body struct {
	Rules  []Rule       `msgpack:"rules"`
	Linear []LinearTerm `msgpack:"linear"`
	// Coefs[k] are the coefficients of output k: the rules followed by the linear terms.
	Coefs      [][]float64 `msgpack:"coefs"`
	Intercepts []float64   `msgpack:"intercepts"`
}

// Model is a RuleFit model.
type Model struct {
	model.Base
	Body *Body
}

func init() {
	model.RegisteredBuilders[ModelKey] = Create
}

// Create creates a RuleFit model.
func Create(header *model.Header, dataspec *dataset.DataSpec) model.Implementation {
	return &Model{Base: model.NewBase(header, dataspec)}
}

func collectRules(n *dt.Node, path []Term, seen map[string]bool, out *[]Rule) {
	if n.IsLeaf() {
		return
	}
	for _, child := range []struct {
		node    *dt.Node
		negated bool
	}{{n.NegativeChild, true}, {n.PositiveChild, false}} {
		terms := append(append([]Term(nil), path...), Term{Condition: *n.RawNode.Condition, Negated: child.negated})
		rule := Rule{Terms: terms}
		key := fmt.Sprint(terms)
		if !seen[key] {
			seen[key] = true
			*out = append(*out, rule)
		}
		collectRules(child.node, terms, seen, out)
	}
}

// generateRules trains shallow trees on bootstrap samples and extracts their rules.
func generateRules(train *dataset.Dataset, features *dt.Features, hp model.Hyperparameters, seed int64) []Rule {
	target := dt.NewTarget(train)
	cfg := dt.Config{MaxLeaves: hp.Int("tree_size", 4), MinExamples: 5}
	maxCandidates := 2 * hp.Int("max_rules", 30)
	rng := rand.New(rand.NewSource(seed))
	numRows := train.NumRows()
	sampleSize := max(1, numRows/2)
	seen := map[string]bool{}
	var rules []Rule
	for i := 0; i < hp.Int("n_estimators", 10) && len(rules) < maxCandidates; i++ {
		rows := make([]int, sampleSize)
		for j := range rows {
			rows[j] = rng.Intn(numRows)
		}
		tree := dt.Grow(features, target, rows, cfg, rng)
		collectRules(tree.Root, nil, seen, &rules)
	}
	if len(rules) > maxCandidates {
		rules = rules[:maxCandidates]
	}
	return rules
}

func quantile(sorted []float64, q float64) float64 {
	return sorted[int(q*float64(len(sorted)-1))]
}

func linearTerms(train *dataset.Dataset, columns []int) []LinearTerm {
	var terms []LinearTerm
	for _, col := range columns {
		if train.Spec.Columns[col].Type != dataset.Numerical {
			continue
		}
		var values []float64
		for _, v := range train.Numerical(col) {
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			continue
		}
		sort.Float64s(values)
		term := LinearTerm{Col: col, Lo: quantile(values, 0.025), Hi: quantile(values, 0.975)}
		sum, sumSq := 0.0, 0.0
		for _, v := range values {
			v = math.Min(term.Hi, math.Max(term.Lo, v))
			sum += v
			sumSq += v * v
		}
		term.Mean = sum / float64(len(values))
		std := math.Sqrt(math.Max(0, sumSq/float64(len(values))-term.Mean*term.Mean))
		if std == 0 {
			continue
		}
		term.Scale = linearScale / std
		terms = append(terms, term)
	}
	return terms
}

// design computes the feature matrix of the linear model.
func (b *Body) design(ds *dataset.Dataset) [][]float64 {
	width := len(b.Rules) + len(b.Linear)
	x := make([][]float64, ds.NumRows())
	for row := range x {
		x[row] = make([]float64, width)
		for i := range b.Rules {
			if b.Rules[i].Eval(ds, row) {
				x[row][i] = 1
			}
		}
		for i := range b.Linear {
			x[row][len(b.Rules)+i] = b.Linear[i].value(ds.Numerical(b.Linear[i].Col)[row])
		}
	}
	return x
}

// Fit generates the rules and fits the sparse linear model.
func (me *Model) Fit(ctx context.Context, in *model.FitInput) error {
	if err := me.CheckInput(in); err != nil {
		return err
	}
	hp := me.Hyperparameters()
	train := in.Train.DropMissingLabels()
	features := dt.NewFeatures(train, me.Header().InputFeatures)
	if features == nil {
		return fmt.Errorf("%s: %w", me.Name(), model.ErrNoValidFeatures)
	}
	body := &Body{Rules: generateRules(train, features, hp, in.Seed)}
	if hp.Bool("include_linear", true) {
		body.Linear = linearTerms(train, me.Header().InputFeatures)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := me.fitCoefs(body, train, hp); err != nil {
		return err
	}

	// Keep the "max_rules" most important rules, and refit.
	maxRules := hp.Int("max_rules", 30)
	if kept := importantRules(body, maxRules); len(kept) < len(body.Rules) {
		rules := make([]Rule, len(kept))
		for i, r := range kept {
			rules[i] = body.Rules[r]
		}
		body.Rules = rules
		if err := me.fitCoefs(body, train, hp); err != nil {
			return err
		}
	}
	me.Body = body
	return nil
}

// importantRules returns the indices of the rules with a non-zero coefficient, at most
// "maxRules" of them by decreasing absolute coefficient.
func importantRules(b *Body, maxRules int) []int {
	importance := make([]float64, len(b.Rules))
	for _, coefs := range b.Coefs {
		for i := range b.Rules {
			importance[i] += math.Abs(coefs[i])
		}
	}
	var kept []int
	for i, v := range importance {
		if v > 0 {
			kept = append(kept, i)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return importance[kept[i]] > importance[kept[j]] })
	if len(kept) > maxRules {
		kept = kept[:maxRules]
	}
	sort.Ints(kept)
	return kept
}

func (me *Model) fitCoefs(b *Body, train *dataset.Dataset, hp model.Hyperparameters) error {
	x := b.design(train)
	alpha := hp.Float("alpha", 0.005)
	iterations := hp.Int("num_iterations", 300)
	b.Coefs, b.Intercepts = nil, nil
	switch me.Header().Problem {
	case dataset.Regression:
		y := train.Targets()
		mean, std := meanStd(y)
		scaled := make([]float64, len(y))
		for i, v := range y {
			scaled[i] = (v - mean) / std
		}
		w, intercept := Lasso(x, scaled, alpha, iterations, false)
		for i := range w {
			w[i] *= std
		}
		b.Coefs = [][]float64{w}
		b.Intercepts = []float64{intercept*std + mean}
	default:
		labels := train.Labels()
		numModels := me.Header().NumOutputs()
		if me.Header().Problem == dataset.Binary {
			numModels = 1
		}
		for k := 0; k < numModels; k++ {
			positive := k
			if me.Header().Problem == dataset.Binary {
				positive = 1
			}
			y := make([]float64, len(labels))
			for i, l := range labels {
				if l == positive {
					y[i] = 1
				}
			}
			w, intercept := Lasso(x, y, alpha, iterations, true)
			b.Coefs = append(b.Coefs, w)
			b.Intercepts = append(b.Intercepts, intercept)
		}
	}
	return nil
}

func meanStd(values []float64) (float64, float64) {
	mean, sumSq := 0.0, 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(max(1, len(values)))
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sumSq / float64(max(1, len(values))))
	if std == 0 {
		std = 1
	}
	return mean, std
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// Lasso minimizes "loss(x.w + intercept, y) + alpha * |w|_1" with accelerated proximal
// gradient descent (FISTA). The loss is the mean squared error / 2, or the mean logistic loss
// if "logistic" is set (y in {0, 1}). The intercept is not penalized.
func Lasso(x [][]float64, y []float64, alpha float64, iterations int, logistic bool) ([]float64, float64) {
	n := len(x)
	if n == 0 {
		return nil, 0
	}
	p := len(x[0])
	// Upper bound of the Lipschitz constant of the gradient.
	lipschitz := 1.0
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x[i][j] * x[i][j]
		}
		lipschitz += sum / float64(n)
	}
	if logistic {
		lipschitz *= 0.25
	}
	step := 1 / lipschitz

	w := make([]float64, p+1) // The last value is the intercept.
	z := make([]float64, p+1)
	prev := make([]float64, p+1)
	grad := make([]float64, p+1)
	t := 1.0
	for it := 0; it < iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		for i, row := range x {
			pred := z[p]
			for j, v := range row {
				pred += z[j] * v
			}
			if logistic {
				pred = sigmoid(pred)
			}
			r := (pred - y[i]) / float64(n)
			for j, v := range row {
				grad[j] += r * v
			}
			grad[p] += r
		}
		copy(prev, w)
		for j := 0; j < p; j++ {
			v := z[j] - step*grad[j]
			w[j] = math.Copysign(math.Max(0, math.Abs(v)-step*alpha), v)
		}
		w[p] = z[p] - step*grad[p]

		nextT := (1 + math.Sqrt(1+4*t*t)) / 2
		for j := range z {
			z[j] = w[j] + (t-1)/nextT*(w[j]-prev[j])
		}
		t = nextT
	}
	return w[:p], w[p]
}

// PredictProba computes the predictions of the linear model.
func (me *Model) PredictProba(ctx context.Context, ds *dataset.Dataset) ([][]float64, error) {
	if me.Body == nil {
		return nil, model.ErrNotFitted
	}
	if err := me.CheckPredict(ds); err != nil {
		return nil, err
	}
	x := me.Body.design(ds)
	problem := me.Header().Problem
	preds := make([][]float64, len(x))
	for row, features := range x {
		scores := make([]float64, len(me.Body.Coefs))
		for k, coefs := range me.Body.Coefs {
			scores[k] = me.Body.Intercepts[k]
			for j, v := range features {
				scores[k] += coefs[j] * v
			}
		}
		switch problem {
		case dataset.Regression:
			preds[row] = scores
		case dataset.Binary:
			p := sigmoid(scores[0])
			preds[row] = []float64{1 - p, p}
		default:
			sum := 0.0
			for k, s := range scores {
				scores[k] = sigmoid(s)
				sum += scores[k]
			}
			for k := range scores {
				scores[k] /= sum
			}
			preds[row] = scores
		}
	}
	return preds, nil
}

// Rules describes the rules and linear terms with a non-zero coefficient, by decreasing
// absolute coefficient (summed over the outputs).
func (me *Model) Rules() []string {
	type described struct {
		text       string
		importance float64
	}
	spec := me.Dataspec()
	var out []described
	numRules := len(me.Body.Rules)
	for j := 0; j < numRules+len(me.Body.Linear); j++ {
		importance := 0.0
		coefs := make([]string, len(me.Body.Coefs))
		for k, c := range me.Body.Coefs {
			importance += math.Abs(c[j])
			coefs[k] = fmt.Sprintf("%.3g", c[j])
		}
		if importance == 0 {
			continue
		}
		var text string
		if j < numRules {
			text = me.Body.Rules[j].Describe(spec)
		} else {
			text = "linear: " + spec.Columns[me.Body.Linear[j-numRules].Col].Name
		}
		out = append(out, described{fmt.Sprintf("%s (coef=%s)", text, strings.Join(coefs, ",")), importance})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].importance > out[j].importance })
	texts := make([]string, len(out))
	for i, d := range out {
		texts[i] = d.text
	}
	return texts
}

// SaveSpecific saves the rules and the coefficients.
func (me *Model) SaveSpecific(modelPath string, prefix string) error {
	if me.Body == nil {
		return model.ErrNotFitted
	}
	return model.SaveBody(modelPath, prefix, bodyFilename, me.Body)
}

// LoadSpecific loads the rules and the coefficients.
func (me *Model) LoadSpecific(modelPath string, prefix string) error {
	me.Body = &Body{}
	return model.LoadBody(modelPath, prefix, bodyFilename, me.Body)
}
