package ensemble

import (
	"fmt"
	"math"
)

// Tree-ensemble kinds.
const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// TreeNode is one node of a binary decision tree. Leaves have Left == -1.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is a serialized random forest or gradient-boosted model.
// A random forest averages leaf probabilities; a boosted model sums leaf
// margins onto BaseScore and applies the logistic function.
type TreeEnsemble struct {
	ModelName   string    `json:"name"`
	Kind        string    `json:"kind"`
	NFeatures   int       `json:"n_features"`
	BaseScore   float64   `json:"base_score"`
	Importances []float64 `json:"feature_importances,omitempty"`
	Trees       []Tree    `json:"trees"`
}

// Name implements Classifier.
func (m *TreeEnsemble) Name() string { return m.ModelName }

// FeatureImportances implements ImportanceProvider.
func (m *TreeEnsemble) FeatureImportances() []float64 { return m.Importances }

// Validate checks the ensemble kind and that every tree is well formed.
func (m *TreeEnsemble) Validate() error {
	if m.Kind != KindRandomForest && m.Kind != KindGradientBoosting {
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	if m.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", m.NFeatures)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	for t, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", t)
		}
		for i, n := range tree.Nodes {
			if n.Left == -1 {
				continue
			}
			if n.Left <= i || n.Left >= len(tree.Nodes) || n.Right <= i || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children %d/%d", t, i, n.Left, n.Right)
			}
			if n.Feature < 0 || n.Feature >= m.NFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d outside [0,%d)", t, i, n.Feature, m.NFeatures)
			}
		}
	}
	return nil
}

// PredictProba implements Classifier.
func (m *TreeEnsemble) PredictProba(x []float64) (float64, error) {
	if len(x) < m.NFeatures {
		return 0, fmt.Errorf("%s expects %d features, got %d", m.ModelName, m.NFeatures, len(x))
	}
	var total float64
	for _, tree := range m.Trees {
		total += tree.leaf(x)
	}
	switch m.Kind {
	case KindRandomForest:
		p := total / float64(len(m.Trees))
		return math.Max(0, math.Min(1, p)), nil
	case KindGradientBoosting:
		return 1 / (1 + math.Exp(-(m.BaseScore + total))), nil
	default:
		return 0, fmt.Errorf("unknown model kind %q", m.Kind)
	}
}

// leaf walks from the root to a leaf. NaN feature values go left. Children
// always have larger indices than their parent, so the walk terminates.
func (t Tree) leaf(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n.Value
		}
		v := x[n.Feature]
		if math.IsNaN(v) || v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
