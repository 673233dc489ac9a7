package ml

import (
	"errors"
	"fmt"
	"math"
)

// RegressionTree is one booster tree stored as a flat node array rooted at index 0.
type RegressionTree struct {
	nodes []TreeNode
}

// TreeNode is one node of a flattened tree. Leaves have no children.
type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	DefaultLeft bool    `json:"default_left"`
	Value       float64 `json:"value"`
	Cover       float64 `json:"cover"`
	IsLeaf      bool    `json:"is_leaf"`
}

// NewRegressionTree validates child indices so traversal cannot loop or run out of bounds.
func NewRegressionTree(nodes []TreeNode) (*RegressionTree, error) {
	tree := &RegressionTree{nodes: nodes}
	if err := tree.validate(); err != nil {
		return nil, err
	}
	return tree, nil
}

func (t *RegressionTree) Nodes() []TreeNode {
	return t.nodes
}

// Predict walks x down to a leaf. A split sends x left when x < threshold;
// NaN follows the node's default direction.
func (t *RegressionTree) Predict(x []float64) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, errors.New("tree has no nodes")
	}
	idx := 0
	for steps := 0; steps <= len(t.nodes); steps++ {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(x) {
			return 0, errors.New("feature index out of range")
		}
		idx = t.next(node, x[node.FeatureIdx])
	}
	return 0, errors.New("invalid tree state")
}

func (t *RegressionTree) next(node TreeNode, value float64) int {
	if math.IsNaN(value) {
		if node.DefaultLeft {
			return node.LeftChild
		}
		return node.RightChild
	}
	if value < node.Threshold {
		return node.LeftChild
	}
	return node.RightChild
}

// ExpectedValue is the cover-weighted mean of the leaf values, the tree's output
// over the training distribution.
func (t *RegressionTree) ExpectedValue() float64 {
	if len(t.nodes) == 0 || t.nodes[0].Cover <= 0 {
		return 0
	}
	total := 0.0
	for _, node := range t.nodes {
		if node.IsLeaf {
			total += node.Value * node.Cover
		}
	}
	return total / t.nodes[0].Cover
}

func (t *RegressionTree) validate() error {
	if len(t.nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range t.nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(t.nodes) ||
			node.RightChild <= i || node.RightChild >= len(t.nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, node.LeftChild, node.RightChild)
		}
		if node.FeatureIdx < 0 {
			return fmt.Errorf("node %d splits on negative feature", i)
		}
	}
	return nil
}
