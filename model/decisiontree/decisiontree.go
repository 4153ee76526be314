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

// Package decisiontree contains utilities to handle and to train decision trees.
package decisiontree

import (
	"fmt"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model/decisiontree/io"
	"github.com/autotabular/tabular/model/decisiontree/node"

	// Include I/O support for standard formats.
	_ "github.com/autotabular/tabular/model/decisiontree/io/canonical"
)

// DefaultNodeFilename is the default filename to store nodes.
const DefaultNodeFilename = "nodes"

// DefaultNodeFormat is the default format to store nodes.
const DefaultNodeFormat = "BLOB_SEQUENCE"

// Node is a tree node.
type Node struct {
	RawNode       *node.RawNode
	PositiveChild *Node
	NegativeChild *Node
}

// IsLeaf tests if a node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.PositiveChild == nil
}

// Tree is a decision tree.
type Tree struct {
	// Root node of the tree. nil if the tree is empty.
	Root *Node
}

// Forest is a collection of trees.
type Forest struct {
	Trees []*Tree
}

// NumLeafs is the number of leafs in a sub-tree.
func (n *Node) NumLeafs() int {
	if n.IsLeaf() {
		return 1
	}
	return n.PositiveChild.NumLeafs() + n.NegativeChild.NumLeafs()
}

// NumNonLeafs is the number of non-leaf nodes in a sub-tree.
func (n *Node) NumNonLeafs() int {
	if n.IsLeaf() {
		return 0
	}
	return 1 + n.PositiveChild.NumNonLeafs() + n.NegativeChild.NumNonLeafs()
}

// Depth is the maximum depth of a sub-tree. A single leaf has depth 0.
func (n *Node) Depth() int {
	if n.IsLeaf() {
		return 0
	}
	return 1 + max(n.PositiveChild.Depth(), n.NegativeChild.Depth())
}

// Walk calls "fn" on all the nodes of a sub-tree, parents before children and negative
// children before positive ones.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(n *Node, depth int), depth int) {
	fn(n, depth)
	if !n.IsLeaf() {
		n.NegativeChild.walk(fn, depth+1)
		n.PositiveChild.walk(fn, depth+1)
	}
}

// Leaf returns the leaf reached by a row of a dataset.
func (t *Tree) Leaf(ds *dataset.Dataset, row int) *Node {
	n := t.Root
	for !n.IsLeaf() {
		if n.RawNode.Condition.Eval(ds, row) {
			n = n.PositiveChild
		} else {
			n = n.NegativeChild
		}
	}
	return n
}

// Path returns the nodes traversed by a row of a dataset, from the root to the leaf.
func (t *Tree) Path(ds *dataset.Dataset, row int) []*Node {
	n := t.Root
	path := []*Node{n}
	for !n.IsLeaf() {
		if n.RawNode.Condition.Eval(ds, row) {
			n = n.PositiveChild
		} else {
			n = n.NegativeChild
		}
		path = append(path, n)
	}
	return path
}

// NumLeafs is the number of leafs in the forest.
func (f *Forest) NumLeafs() int {
	count := 0
	for _, tree := range f.Trees {
		if tree.Root != nil {
			count += tree.Root.NumLeafs()
		}
	}
	return count
}

// NumNonLeafs is the number of non-leaf nodes in the forest.
func (f *Forest) NumNonLeafs() int {
	count := 0
	for _, tree := range f.Trees {
		if tree.Root != nil {
			count += tree.Root.NumNonLeafs()
		}
	}
	return count
}

func newNode(reader io.Reader) (*Node, error) {
	rawNode, err := reader.Next()
	if err != nil {
		return nil, err
	}
	if rawNode == nil {
		// No more nodes
		return nil, fmt.Errorf("Not enough nodes")
	}

	n := &Node{RawNode: rawNode}

	if rawNode.Condition != nil {
		// Read the two child nodes
		n.NegativeChild, err = newNode(reader)
		if err != nil {
			return nil, err
		}

		n.PositiveChild, err = newNode(reader)
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}

// LoadForest loads a forest from disk.
func LoadForest(basePath string, numShards int, format string, numTrees int) (*Forest, error) {

	forest := &Forest{}
	forest.Trees = make([]*Tree, 0, numTrees)

	reader, err := io.NewNodeReader(basePath, numShards, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	for treeIdx := 0; treeIdx < numTrees; treeIdx++ {
		root, err := newNode(reader)
		if err != nil {
			return nil, fmt.Errorf("decisiontree.LoadForest() after reading %d trees, got error: %w", treeIdx, err)
		}
		forest.Trees = append(forest.Trees, &Tree{Root: root})
	}

	return forest, nil
}

// SaveForest saves a forest in a single shard. The nodes are stored in depth first order,
// negative child first, as expected by LoadForest.
func SaveForest(basePath string, format string, forest *Forest) error {
	writer, err := io.NewNodeWriter(basePath, format)
	if err != nil {
		return err
	}
	for treeIdx, tree := range forest.Trees {
		if tree.Root == nil {
			writer.Close()
			return fmt.Errorf("decisiontree.SaveForest() tree %d is empty", treeIdx)
		}
		var writeErr error
		tree.Root.Walk(func(n *Node, _ int) {
			if writeErr == nil {
				writeErr = writer.Write(n.RawNode)
			}
		})
		if writeErr != nil {
			writer.Close()
			return writeErr
		}
	}
	return writer.Close()
}
