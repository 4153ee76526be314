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

// Package decisionforest contains the engine inference code for decision forest
// models.
package decisionforest

import (
	"fmt"
	"math"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
	dt "github.com/autotabular/tabular/model/decisiontree"
	"github.com/autotabular/tabular/model/decisiontree/node"
	gbt "github.com/autotabular/tabular/model/gradientboostedtrees"
	"github.com/autotabular/tabular/model/greedytree"
	rf "github.com/autotabular/tabular/model/randomforest"
	"github.com/autotabular/tabular/serving/engine"
	"github.com/autotabular/tabular/serving/example"
)

// SetNodeSignature is the signature of a method that set a leaf value during
// engine compilation.
type SetNodeSignature func(srcNode *dt.Node, dstNode *genericNode) error

// ActivationSignature is an activation function. Activation functions are
// applied on the output of Gradient Boosted Trees models.
type ActivationSignature func(value float32) float32

// MultiDimActivationSignature is an activation function applied in place on a
// multi-dimensional output.
type MultiDimActivationSignature func(values []float32)

// Type of a condition.
type genericConditionType uint8

const (
	// When the node is a leaf i.e. does not contain a condition.
	leafConditionType genericConditionType = 0

	// Condition: feature >= threshold. Missing values evaluate to false.
	numericalIsHigherConditionType genericConditionType = 1

	// Condition: feature \in mask with mask a 32 bits bitmap.
	categoricalContainsMaskConditionType genericConditionType = 2

	// Condition: feature \in mask with mask containing any number of bits.
	categoricalContainsBufferConditionType genericConditionType = 3

	// Condition: feature >= threshold. Missing values evaluate to true.
	numericalIsHigherOrMissingConditionType genericConditionType = 4
)

// genericNode is the most generic decision tree node. It is expected that
// models build with genericNode have the higher coverage of features while
// being the least efficient.
type genericNode struct {

	// Offset to the positive child node.
	//
	// Note: The negative node is always next to its parent node. In other words,
	// the offset of the negative child node is always 1.
	rightIdx uint16

	// Index of the feature being tested. The exact interpretation of "featureIdx"
	// depends on "condition".
	featureIdx uint16

	// The main parameter of the condition:
	//   numericalIsHigher*: Numerical condition as "value >=
	//     interpret_cast_float32(condition)".
	//
	//   categoricalContainsMask*: Categorical condition as "condition[value]",
	//     where "condition" is a bitmap. Only when the maximum value of the
	//     attribute is < 32.
	//
	//   categoricalContainsBuffer*: Categorical condition as
	//     "categoricalBitmap[condition * 8 + value]", where "categoricalBitmap"
	//     is a bitmap.
	//
	//   leaf: The float32 leaf value, or the offset of the leaf values for
	//     multi-dimensional leaves.
	condition uint32

	// Type of the condition. See the definition of "genericConditionType" for the
	// supported condition types.
	conditionType genericConditionType // 8bits
}

// genericEngine for all types of decision forest models.
type genericEngine struct {
	// features used as input.
	features *example.Features

	// The list of nodes, tree by tree, in a depth first (node, negative,
	// positive) order.
	nodes []genericNode

	// Index in "nodes" of the root nodes.
	rootOffsets []uint32

	// Bitmap used in categorical conditions. Used with the following conditions:
	// [categoricalContainsBufferConditionType].
	categoricalBitmap []byte
}

// Initialize the content of a generic engine.
// Note: Generic engines are constructed by value (!= by pointers).
func (e *genericEngine) initialize(forest *dt.Forest, header *model.Header,
	dataspec *dataset.DataSpec, setLeaf SetNodeSignature) error {

	if forest == nil || len(forest.Trees) == 0 {
		return fmt.Errorf("The model does not contain any tree")
	}

	// Create the input features.
	features, buildMap, err := example.NewFeatures(dataspec, header)
	if err != nil {
		return err
	}
	if len(features.StringFeatures) > 0 {
		return fmt.Errorf("Tree engines do not support text or image features")
	}
	e.features = features

	numNodes := 0
	for _, tree := range forest.Trees {
		numNodes += tree.Root.NumLeafs() + tree.Root.NumNonLeafs()
	}
	e.nodes = make([]genericNode, 0, numNodes)
	e.rootOffsets = make([]uint32, 0, len(forest.Trees))
	for _, tree := range forest.Trees {
		if len(e.nodes) > math.MaxUint32 {
			return fmt.Errorf("To many nodes in the forest")
		}
		e.rootOffsets = append(e.rootOffsets, uint32(len(e.nodes)))
		if err = e.addNode(tree.Root, buildMap, setLeaf); err != nil {
			return err
		}
	}

	return nil
}

// Gets the active leaf of a given example. This method is used during
// inference.
func (e *genericEngine) getLeaf(examples *example.Batch, exampleIdx int, nodeIdx int) *genericNode {
	var node *genericNode
	numNumerical := len(e.features.NumericalFeatures)
	numCategorical := len(e.features.CategoricalFeatures)

	// This for-loop navigates down the tree from the root to the leaf.
	for {
		node = &e.nodes[nodeIdx]
		var eval bool
		switch node.conditionType {

		case leafConditionType:
			// Leaf
			return node

		case numericalIsHigherConditionType:
			// feature >= threshold condition. NaN >= threshold is false.
			value := examples.NumericalValues[int(node.featureIdx)+exampleIdx*numNumerical]
			eval = value >= math.Float32frombits(node.condition)

		case numericalIsHigherOrMissingConditionType:
			value := examples.NumericalValues[int(node.featureIdx)+exampleIdx*numNumerical]
			eval = value >= math.Float32frombits(node.condition) || value != value

		case categoricalContainsBufferConditionType:
			// feature \in mask condition
			valueIdx := int(node.featureIdx) + exampleIdx*numCategorical
			bitmapIdx := node.condition + examples.CategoricalValues[valueIdx]
			eval = GetBit(e.categoricalBitmap, bitmapIdx)

		case categoricalContainsMaskConditionType:
			// feature \in mask condition
			valueIdx := int(node.featureIdx) + exampleIdx*numCategorical
			eval = (node.condition & (1 << examples.CategoricalValues[valueIdx])) != 0
		}

		if eval {
			nodeIdx += int(node.rightIdx)
		} else {
			nodeIdx++
		}
	}
}

// addNode recursively adds a node and its descendants to the engine.
func (e *genericEngine) addNode(srcNode *dt.Node, buildMap *example.FeatureConstructionMap,
	setLeaf SetNodeSignature) error {
	// Allocate the node
	nodeIdx := len(e.nodes)
	e.nodes = append(e.nodes, genericNode{})
	dstNode := &e.nodes[nodeIdx]

	if srcNode.IsLeaf() {
		dstNode.conditionType = leafConditionType
		return setLeaf(srcNode, dstNode)
	}

	// Set the node's condition
	condition := srcNode.RawNode.Condition
	switch condition.Type {
	case node.NumericalHigher:
		featureID, found := buildMap.NumericalFeatures[condition.Feature]
		if !found {
			return fmt.Errorf("Cannot find column %v in the input features", condition.Feature)
		}
		if featureID > math.MaxUint16 {
			return fmt.Errorf("Too many features in the model")
		}
		dstNode.featureIdx = uint16(featureID)
		dstNode.condition = math.Float32bits(float32(condition.Threshold))
		if condition.NAValue {
			dstNode.conditionType = numericalIsHigherOrMissingConditionType
		} else {
			dstNode.conditionType = numericalIsHigherConditionType
		}

	case node.CategoricalIn:
		featureID, found := buildMap.CategoricalFeatures[condition.Feature]
		if !found {
			return fmt.Errorf("Cannot find column %v in the input features", condition.Feature)
		}

		numUniqueValues := e.features.CategoricalSpec[featureID].NumUniqueValues
		mask := make([]byte, (numUniqueValues+7)/8)
		for value := uint32(0); value < numUniqueValues; value++ {
			if node.HasBit(condition.Positive, int32(value)) {
				SetBit(mask, value)
			}
		}

		err := e.setCategoricalContainsCondition(featureID, dstNode, numUniqueValues, mask)
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("Non supported condition type %v", condition.Type)
	}

	// Build the negative branch.
	if err := e.addNode(srcNode.NegativeChild, buildMap, setLeaf); err != nil {
		return err
	}
	// Note: "dstNode" is now invalid.

	// Set the offset to the positive child
	rightIdx := len(e.nodes) - nodeIdx
	if rightIdx <= 0 {
		return fmt.Errorf("Invalid child")
	}
	if rightIdx > math.MaxUint16 {
		return fmt.Errorf("To many nodes in a single branch")
	}
	e.nodes[nodeIdx].rightIdx = uint16(rightIdx)

	// Build the positive branch.
	return e.addNode(srcNode.PositiveChild, buildMap, setLeaf)
}

func (e *genericEngine) setCategoricalContainsCondition(featureID example.CategoricalFeatureID,
	dstNode *genericNode, numUniqueValues uint32, mask []byte) error {
	if len(mask) != (int(numUniqueValues)+7)/8 {
		return fmt.Errorf("Unexpected categorical mask size")
	}
	if featureID > math.MaxUint16 {
		return fmt.Errorf("Too many features in the model")
	}
	dstNode.featureIdx = uint16(featureID)

	if numUniqueValues <= 32 {
		// Store the mask in an uint32.
		dstNode.conditionType = categoricalContainsMaskConditionType

		// Converts the mask into a uint32.
		var value uint32
		for i := uint32(0); i < numUniqueValues; i++ {
			if GetBit(mask, i) {
				value |= 1 << i
			}
		}

		dstNode.condition = value
	} else {
		// Store the mask in the byte buffer.
		dstNode.condition = uint32(len(e.categoricalBitmap)) * 8
		dstNode.conditionType = categoricalContainsBufferConditionType
		e.categoricalBitmap = append(e.categoricalBitmap, mask...)
	}

	return nil
}

// GetBit gets the i-th bit in a bitmap.
func GetBit(bitmap []byte, i uint32) bool {
	byteValue := bitmap[i/8]
	return (byteValue & (1 << (i & 7))) != 0
}

// SetBit sets the i-th bit in a bitmap.
func SetBit(bitmap []byte, i uint32) {
	byteIdx := i / 8
	byteValue := bitmap[byteIdx]
	bitmap[byteIdx] = byteValue | (1 << (i & 7))
}

// Identity activation function.
func activationIdentity(value float32) float32 {
	return value
}

// Sigmoid activation function used for binomial log-like losses.
func activationSigmoid(value float32) float32 {
	return 1.0 / (1.0 + expf(-value))
}

// Softmax activation function used for multinomial log-like losses.
func activationSoftmax(values []float32) {
	maxValue := values[0]
	for _, v := range values[1:] {
		maxValue = max(maxValue, v)
	}
	var sum float32
	for i, v := range values {
		values[i] = expf(v - maxValue)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
}

// Clamps an averaged probability to [0, 1].
func activationProbability(value float32) float32 {
	return min(max(value, 0), 1)
}

// Clamps an averaged class distribution to [0, 1] and rescales it to sum to one.
func activationDistribution(values []float32) {
	var sum float32
	for i, v := range values {
		values[i] = min(max(v, 0), 1)
		sum += values[i]
	}
	if sum == 0 {
		return
	}
	for i := range values {
		values[i] /= sum
	}
}

func expf(v float32) float32 {
	return float32(math.Exp(float64(v)))
}

// OneDimensionEngine is a specialization of the generic engine for models with a single output
// dimension.
type OneDimensionEngine struct {
	Activation        ActivationSignature
	initialPrediction float32
	base              genericEngine
}

// newOneDimensionEngine creates a OneDimensionEngine.
func newOneDimensionEngine(activation ActivationSignature,
	forest *dt.Forest,
	header *model.Header,
	dataspec *dataset.DataSpec,
	initialPrediction float32,
	setNode SetNodeSignature) (*OneDimensionEngine, error) {
	engine := &OneDimensionEngine{Activation: activation, initialPrediction: initialPrediction}
	err := engine.base.initialize(forest, header, dataspec, setNode)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// setLeafOneDimensionRegressive sets the value of a single dimension regressive leaf.
func setLeafOneDimensionRegressive(srcNode *dt.Node, dstNode *genericNode) error {
	if len(srcNode.RawNode.Value) != 1 {
		return fmt.Errorf("Invalid leaf")
	}
	// "condition" contains the float32 value of the leaf.
	dstNode.condition = math.Float32bits(float32(srcNode.RawNode.Value[0]))
	return nil
}

// setLeafScaled returns a leaf setter storing the "dim"-th leaf value divided by "numTrees".
func setLeafScaled(dim int, numValues int, numTrees int) SetNodeSignature {
	return func(srcNode *dt.Node, dstNode *genericNode) error {
		if len(srcNode.RawNode.Value) != numValues {
			return fmt.Errorf("Invalid leaf")
		}
		leafValue := float32(srcNode.RawNode.Value[dim]) / float32(numTrees)
		dstNode.condition = math.Float32bits(leafValue)
		return nil
	}
}

// NewBinaryClassificationGBDTGenericEngine creates an engine for a binary
// classification GBT model.
func NewBinaryClassificationGBDTGenericEngine(model *gbt.Model) (*OneDimensionEngine, error) {
	if len(model.GbtHeader.InitialPredictions) != 1 {
		return nil, fmt.Errorf("Invalid initial predictions")
	}
	if model.GbtHeader.Loss != gbt.BinomialLogLikelihood {
		return nil, fmt.Errorf("Incompatible loss. Expecting log likelihood")
	}

	return newOneDimensionEngine(activationSigmoid,
		model.Forest,
		model.Header(),
		model.Dataspec(),
		float32(model.GbtHeader.InitialPredictions[0]), setLeafOneDimensionRegressive)
}

// NewRegressionGBDTGenericEngine creates an engine for a regression GBT model.
func NewRegressionGBDTGenericEngine(model *gbt.Model) (*OneDimensionEngine, error) {
	if len(model.GbtHeader.InitialPredictions) != 1 {
		return nil, fmt.Errorf("Invalid initial predictions")
	}
	if model.GbtHeader.Loss != gbt.SquaredError {
		return nil, fmt.Errorf("Incompatible loss. Expecting squared error")
	}

	return newOneDimensionEngine(activationIdentity,
		model.Forest,
		model.Header(),
		model.Dataspec(),
		float32(model.GbtHeader.InitialPredictions[0]), setLeafOneDimensionRegressive)
}

// NewBinaryClassificationRFGenericEngine creates an engine for a binary
// classification RF model.
func NewBinaryClassificationRFGenericEngine(model *rf.Model) (*OneDimensionEngine, error) {
	return newOneDimensionEngine(activationProbability,
		model.Forest,
		model.Header(),
		model.Dataspec(),
		0, setLeafScaled(1, 2, len(model.Forest.Trees)))
}

// NewRegressionRFGenericEngine creates an engine for a regression RF model.
func NewRegressionRFGenericEngine(model *rf.Model) (*OneDimensionEngine, error) {
	return newOneDimensionEngine(activationIdentity,
		model.Forest,
		model.Header(),
		model.Dataspec(),
		0, setLeafScaled(0, 1, len(model.Forest.Trees)))
}

// AllocateExamples allocates a set of examples.
func (e *OneDimensionEngine) AllocateExamples(maxNumExamples int) *example.Batch {
	return example.NewBatch(maxNumExamples, e.Features())
}

// AllocatePredictions allocates a set of predictions.
func (e *OneDimensionEngine) AllocatePredictions(maxNumExamples int) []float32 {
	// Works before OutputDim() == 1.
	return make([]float32, maxNumExamples)
}

// Features of the engine.
func (e *OneDimensionEngine) Features() *example.Features {
	return e.base.features
}

// OutputDim is the output dimension of the engine.
func (e *OneDimensionEngine) OutputDim() int {
	return 1
}

// Predict generates predictions with the engine.
func (e *OneDimensionEngine) Predict(examples *example.Batch, numExamples int, predictions []float32) error {
	for exampleIdx := 0; exampleIdx < numExamples; exampleIdx++ {
		prediction := e.initialPrediction
		for _, rootOffset := range e.base.rootOffsets {
			leaf := e.base.getLeaf(examples, exampleIdx, int(rootOffset))
			prediction += math.Float32frombits(leaf.condition)
		}
		predictions[exampleIdx] = e.Activation(prediction)
	}
	return nil
}

// MultiDimensionEngine is a specialization of the generic engine for models with more than
// one output dimension e.g. multiclass classification models.
type MultiDimensionEngine struct {
	Activation         MultiDimActivationSignature
	outputDim          int
	initialPredictions []float32
	// If "numTreesPerIter" > 0, the leaves contain a single value and tree "i" contributes to
	// the output "i % numTreesPerIter". Otherwise, the leaves contain "outputDim" values
	// stored in "leafValues" at the offset "condition".
	numTreesPerIter int
	leafValues      []float32
	base            genericEngine
}

// newMultiDimensionEngine creates a MultiDimensionEngine.
func newMultiDimensionEngine(activation MultiDimActivationSignature, forest *dt.Forest,
	header *model.Header, dataspec *dataset.DataSpec, initialPredictions []float64,
	numTreesPerIter int, leafScale float32) (*MultiDimensionEngine, error) {
	outputDim := header.NumOutputs()
	engine := &MultiDimensionEngine{
		Activation:         activation,
		outputDim:          outputDim,
		initialPredictions: make([]float32, outputDim),
		numTreesPerIter:    numTreesPerIter,
	}
	if initialPredictions != nil {
		if len(initialPredictions) != outputDim {
			return nil, fmt.Errorf("Invalid initial predictions")
		}
		for i, v := range initialPredictions {
			engine.initialPredictions[i] = float32(v)
		}
	}

	setLeaf := setLeafOneDimensionRegressive
	if numTreesPerIter == 0 {
		setLeaf = func(srcNode *dt.Node, dstNode *genericNode) error {
			if len(srcNode.RawNode.Value) != outputDim {
				return fmt.Errorf("Invalid leaf")
			}
			dstNode.condition = uint32(len(engine.leafValues))
			for _, v := range srcNode.RawNode.Value {
				engine.leafValues = append(engine.leafValues, float32(v)*leafScale)
			}
			return nil
		}
	}
	if err := engine.base.initialize(forest, header, dataspec, setLeaf); err != nil {
		return nil, err
	}
	return engine, nil
}

// NewMulticlassClassificationGBDTGenericEngine creates an engine for a multiclass
// classification GBT model.
func NewMulticlassClassificationGBDTGenericEngine(model *gbt.Model) (*MultiDimensionEngine, error) {
	if model.GbtHeader.Loss != gbt.MultinomialLogLikelihood {
		return nil, fmt.Errorf("Incompatible loss. Expecting multinomial log likelihood")
	}
	if model.GbtHeader.NumTreesPerIter != model.Header().NumOutputs() {
		return nil, fmt.Errorf("Invalid number of trees per iteration")
	}
	return newMultiDimensionEngine(activationSoftmax, model.Forest, model.Header(), model.Dataspec(),
		model.GbtHeader.InitialPredictions, model.GbtHeader.NumTreesPerIter, 1)
}

// NewMulticlassClassificationRFGenericEngine creates an engine for a multiclass
// classification RF model.
func NewMulticlassClassificationRFGenericEngine(model *rf.Model) (*MultiDimensionEngine, error) {
	return newMultiDimensionEngine(activationDistribution, model.Forest, model.Header(),
		model.Dataspec(), nil, 0, 1/float32(len(model.Forest.Trees)))
}

// NewTreeGenericEngine creates an engine for a single decision tree model.
func NewTreeGenericEngine(model *greedytree.Model) (engine.Engine, error) {
	var e engine.Engine
	var err error
	switch model.Header().Problem {
	case dataset.Binary:
		e, err = newOneDimensionEngine(activationProbability, model.Forest, model.Header(),
			model.Dataspec(), 0, setLeafScaled(1, 2, 1))
	case dataset.Multiclass:
		e, err = newMultiDimensionEngine(activationDistribution, model.Forest, model.Header(),
			model.Dataspec(), nil, 0, 1)
	case dataset.Regression:
		e, err = newOneDimensionEngine(activationIdentity, model.Forest, model.Header(),
			model.Dataspec(), 0, setLeafOneDimensionRegressive)
	default:
		return nil, fmt.Errorf("No engine compatible to the model")
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AllocateExamples allocates a set of examples.
func (e *MultiDimensionEngine) AllocateExamples(maxNumExamples int) *example.Batch {
	return example.NewBatch(maxNumExamples, e.Features())
}

// AllocatePredictions allocates a set of predictions.
func (e *MultiDimensionEngine) AllocatePredictions(maxNumExamples int) []float32 {
	return make([]float32, maxNumExamples*e.outputDim)
}

// Features of the engine.
func (e *MultiDimensionEngine) Features() *example.Features {
	return e.base.features
}

// OutputDim is the output dimension of the engine.
func (e *MultiDimensionEngine) OutputDim() int {
	return e.outputDim
}

// Predict generates predictions with the engine.
func (e *MultiDimensionEngine) Predict(examples *example.Batch, numExamples int, predictions []float32) error {
	for exampleIdx := 0; exampleIdx < numExamples; exampleIdx++ {
		prediction := predictions[exampleIdx*e.outputDim : (exampleIdx+1)*e.outputDim]
		copy(prediction, e.initialPredictions)
		for treeIdx, rootOffset := range e.base.rootOffsets {
			leaf := e.base.getLeaf(examples, exampleIdx, int(rootOffset))
			if e.numTreesPerIter > 0 {
				prediction[treeIdx%e.numTreesPerIter] += math.Float32frombits(leaf.condition)
				continue
			}
			values := e.leafValues[leaf.condition : int(leaf.condition)+e.outputDim]
			for dim, v := range values {
				prediction[dim] += v
			}
		}
		e.Activation(prediction)
	}
	return nil
}
