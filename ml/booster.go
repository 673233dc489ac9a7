package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Booster evaluates a multi-class gradient-boosted tree ensemble saved with
// XGBoost's native JSON format (save_model("*.json")).
type Booster struct {
	trees      []*RegressionTree
	treeClass  []int
	baseScore  []float64
	numClass   int
	numFeature int
	objective  string
}

type xgbModelFile struct {
	Learner struct {
		FeatureNames []string `json:"feature_names"`
		Booster      struct {
			Name  string `json:"name"`
			Model struct {
				TreeInfo []int     `json:"tree_info"`
				Trees    []xgbTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		ModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
	Version []int `json:"version"`
}

type xgbTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
	SumHessian      []float64  `json:"sum_hessian"`
	SplitType       []int      `json:"split_type"`
}

// flexBool accepts both 0/1 and false/true; XGBoost releases disagree on which.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// LoadBooster reads an XGBoost JSON model file.
func LoadBooster(path string) (*Booster, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBooster(payload)
}

// ParseBooster decodes an XGBoost JSON model. Only multi:softprob and multi:softmax are accepted.
func ParseBooster(payload []byte) (*Booster, error) {
	var file xgbModelFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode xgboost model: %w", err)
	}
	learner := file.Learner
	if name := learner.Booster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	objective := learner.Objective.Name
	if objective != "multi:softprob" && objective != "multi:softmax" {
		return nil, fmt.Errorf("unsupported objective %q", objective)
	}

	numClass, err := strconv.Atoi(learner.ModelParam.NumClass)
	if err != nil || numClass < 2 {
		return nil, fmt.Errorf("invalid num_class %q", learner.ModelParam.NumClass)
	}
	numFeature, err := strconv.Atoi(learner.ModelParam.NumFeature)
	if err != nil || numFeature <= 0 {
		return nil, fmt.Errorf("invalid num_feature %q", learner.ModelParam.NumFeature)
	}
	baseScore, err := parseBaseScore(learner.ModelParam.BaseScore, numClass)
	if err != nil {
		return nil, err
	}

	raw := learner.Booster.Model
	if len(raw.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}
	if len(raw.TreeInfo) != len(raw.Trees) {
		return nil, fmt.Errorf("tree_info has %d entries for %d trees", len(raw.TreeInfo), len(raw.Trees))
	}

	booster := &Booster{
		trees:      make([]*RegressionTree, len(raw.Trees)),
		treeClass:  raw.TreeInfo,
		baseScore:  baseScore,
		numClass:   numClass,
		numFeature: numFeature,
		objective:  objective,
	}
	for i, t := range raw.Trees {
		if raw.TreeInfo[i] < 0 || raw.TreeInfo[i] >= numClass {
			return nil, fmt.Errorf("tree %d assigned to class %d", i, raw.TreeInfo[i])
		}
		tree, err := convertTree(t, numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		booster.trees[i] = tree
	}
	return booster, nil
}

func convertTree(t xgbTree, numFeature int) (*RegressionTree, error) {
	n := len(t.LeftChildren)
	if n == 0 {
		return nil, errors.New("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n ||
		len(t.DefaultLeft) != n || len(t.SumHessian) != n {
		return nil, errors.New("node arrays have different lengths")
	}
	nodes := make([]TreeNode, n)
	for i := 0; i < n; i++ {
		if len(t.SplitType) == n && t.SplitType[i] != 0 {
			return nil, fmt.Errorf("node %d uses a categorical split", i)
		}
		if t.LeftChildren[i] == -1 {
			nodes[i] = TreeNode{
				FeatureIdx: -1,
				LeftChild:  -1,
				RightChild: -1,
				Value:      t.SplitConditions[i],
				Cover:      t.SumHessian[i],
				IsLeaf:     true,
			}
			continue
		}
		if t.SplitIndices[i] >= numFeature {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, t.SplitIndices[i], numFeature)
		}
		nodes[i] = TreeNode{
			FeatureIdx:  t.SplitIndices[i],
			Threshold:   t.SplitConditions[i],
			LeftChild:   t.LeftChildren[i],
			RightChild:  t.RightChildren[i],
			DefaultLeft: bool(t.DefaultLeft[i]),
			Cover:       t.SumHessian[i],
		}
	}
	return NewRegressionTree(nodes)
}

// parseBaseScore handles the scalar form ("5E-1") and the per-class vector form
// ("[5E-1,5E-1,5E-1]") written by newer releases.
func parseBaseScore(raw string, numClass int) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "0.5"
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	parts := strings.Split(raw, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid base_score %q", raw)
		}
		values = append(values, v)
	}
	switch len(values) {
	case 1:
		scores := make([]float64, numClass)
		for i := range scores {
			scores[i] = values[0]
		}
		return scores, nil
	case numClass:
		return values, nil
	default:
		return nil, fmt.Errorf("base_score has %d values for %d classes", len(values), numClass)
	}
}

// NumClass, NumFeature and NumTrees report the model shape.
func (b *Booster) NumClass() int   { return b.numClass }
func (b *Booster) NumFeature() int { return b.numFeature }
func (b *Booster) NumTrees() int   { return len(b.trees) }

// Margins returns the raw per-class scores (log-odds before softmax).
func (b *Booster) Margins(x []float64) ([]float64, error) {
	if len(x) != b.numFeature {
		return nil, fmt.Errorf("model expects %d features, got %d", b.numFeature, len(x))
	}
	margins := append([]float64(nil), b.baseScore...)
	for i, tree := range b.trees {
		value, err := tree.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		margins[b.treeClass[i]] += value
	}
	return margins, nil
}

// ExpectedMargins is the per-class margin averaged over the training data, the
// reference point attribution values are measured from.
func (b *Booster) ExpectedMargins() []float64 {
	expected := append([]float64(nil), b.baseScore...)
	for i, tree := range b.trees {
		expected[b.treeClass[i]] += tree.ExpectedValue()
	}
	return expected
}

// PredictProba returns softmax probabilities over the margins.
func (b *Booster) PredictProba(x []float64) ([]float64, []float64, error) {
	margins, err := b.Margins(x)
	if err != nil {
		return nil, nil, err
	}
	return softmax(margins), margins, nil
}

// ClassTrees returns the trees that vote for class.
func (b *Booster) ClassTrees(class int) []*RegressionTree {
	trees := make([]*RegressionTree, 0, len(b.trees)/b.numClass+1)
	for i, tree := range b.trees {
		if b.treeClass[i] == class {
			trees = append(trees, tree)
		}
	}
	return trees
}

func softmax(margins []float64) []float64 {
	maxMargin := math.Inf(-1)
	for _, m := range margins {
		if m > maxMargin {
			maxMargin = m
		}
	}
	probs := make([]float64, len(margins))
	sum := 0.0
	for i, m := range margins {
		probs[i] = math.Exp(m - maxMargin)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
