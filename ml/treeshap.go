package ml

import (
	"errors"
	"math"
)

// TreeExplainer computes path-dependent TreeSHAP values (Lundberg et al. 2018,
// algorithm 2) using node cover as the background distribution. For each class
// the values sum to the class margin minus its expected margin.
type TreeExplainer struct {
	booster  *Booster
	expected []float64
}

// NewTreeExplainer needs node cover on every tree. Models without it cannot be explained.
func NewTreeExplainer(booster *Booster) (*TreeExplainer, error) {
	if booster == nil {
		return nil, errors.New("booster is nil")
	}
	for _, tree := range booster.trees {
		if tree.nodes[0].Cover <= 0 {
			return nil, errors.New("model has no node cover (sum_hessian); attribution unavailable")
		}
	}
	return &TreeExplainer{booster: booster, expected: booster.ExpectedMargins()}, nil
}

// BaseValue is the expected margin of class.
func (e *TreeExplainer) BaseValue(class int) float64 {
	return e.expected[class]
}

// ShapValues returns one attribution per input column for class.
func (e *TreeExplainer) ShapValues(x []float64, class int) ([]float64, error) {
	if class < 0 || class >= e.booster.numClass {
		return nil, errors.New("class out of range")
	}
	if len(x) != e.booster.numFeature {
		return nil, errors.New("feature count does not match model")
	}
	phi := make([]float64, len(x))
	for _, tree := range e.booster.ClassTrees(class) {
		depth := maxDepth(tree.nodes, 0)
		path := make([]pathElement, (depth+2)*(depth+3)/2+1)
		treeShap(tree, x, phi, 0, path, 0, 1, 1, -1)
	}
	return phi, nil
}

type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func maxDepth(nodes []TreeNode, idx int) int {
	node := nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := maxDepth(nodes, node.LeftChild)
	right := maxDepth(nodes, node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}

// treeShap recurses with a copy of the parent's unique path stored right after
// it in the shared buffer.
func treeShap(tree *RegressionTree, x, phi []float64, nodeIdx int, parentPath []pathElement,
	uniqueDepth int, zeroFraction, oneFraction float64, featureIdx int) {

	path := parentPath[uniqueDepth:]
	copy(path, parentPath[:uniqueDepth])
	extendPath(path, uniqueDepth, zeroFraction, oneFraction, featureIdx)

	node := tree.nodes[nodeIdx]
	if node.IsLeaf {
		for i := 1; i <= uniqueDepth; i++ {
			w := unwoundPathSum(path, uniqueDepth, i)
			el := path[i]
			phi[el.feature] += w * (el.one - el.zero) * node.Value
		}
		return
	}

	hot := tree.next(node, x[node.FeatureIdx])
	cold := node.RightChild
	if hot == node.RightChild {
		cold = node.LeftChild
	}
	hotZero := tree.nodes[hot].Cover / node.Cover
	coldZero := tree.nodes[cold].Cover / node.Cover
	incomingZero, incomingOne := 1.0, 1.0

	// A feature seen earlier on the path is unwound and re-split here.
	k := 0
	for ; k <= uniqueDepth; k++ {
		if path[k].feature == node.FeatureIdx {
			break
		}
	}
	if k != uniqueDepth+1 {
		incomingZero = path[k].zero
		incomingOne = path[k].one
		unwindPath(path, uniqueDepth, k)
		uniqueDepth--
	}

	treeShap(tree, x, phi, hot, path, uniqueDepth+1, hotZero*incomingZero, incomingOne, node.FeatureIdx)
	treeShap(tree, x, phi, cold, path, uniqueDepth+1, coldZero*incomingZero, 0, node.FeatureIdx)
}

func extendPath(path []pathElement, uniqueDepth int, zeroFraction, oneFraction float64, featureIdx int) {
	path[uniqueDepth] = pathElement{feature: featureIdx, zero: zeroFraction, one: oneFraction}
	if uniqueDepth == 0 {
		path[uniqueDepth].weight = 1
	}
	d := float64(uniqueDepth + 1)
	for i := uniqueDepth - 1; i >= 0; i-- {
		path[i+1].weight += oneFraction * path[i].weight * float64(i+1) / d
		path[i].weight = zeroFraction * path[i].weight * float64(uniqueDepth-i) / d
	}
}

func unwindPath(path []pathElement, uniqueDepth, pathIdx int) {
	one := path[pathIdx].one
	zero := path[pathIdx].zero
	next := path[uniqueDepth].weight
	d := float64(uniqueDepth + 1)
	for i := uniqueDepth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(uniqueDepth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(uniqueDepth-i))
		}
	}
	for i := pathIdx; i < uniqueDepth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElement, uniqueDepth, pathIdx int) float64 {
	one := path[pathIdx].one
	zero := path[pathIdx].zero
	next := path[uniqueDepth].weight
	d := float64(uniqueDepth + 1)
	total := 0.0
	for i := uniqueDepth - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*(float64(uniqueDepth-i)/d)
		case zero != 0:
			total += (path[i].weight / zero) / (float64(uniqueDepth-i) / d)
		}
	}
	if math.IsNaN(total) {
		return 0
	}
	return total
}
