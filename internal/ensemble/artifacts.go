package ensemble

import (
	"fmt"
	"math"
)

// Classifier produces the positive-class probability for one feature vector
// laid out in the artifact set's expected feature order.
type Classifier interface {
	Name() string
	PredictProba(x []float64) (float64, error)
}

// ImportanceProvider is implemented by classifiers that expose a feature
// importance vector aligned with the expected feature names.
type ImportanceProvider interface {
	FeatureImportances() []float64
}

// Scaler transforms a reconciled feature vector before classification.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// IdentityScaler is the absent-scaler variant: it returns its input unchanged.
type IdentityScaler struct{}

func (IdentityScaler) Transform(x []float64) ([]float64, error) { return x, nil }

// Thresholds split probabilities into risk categories.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
}

// DefaultThresholds are used when no valid ensemble configuration is loaded.
var DefaultThresholds = Thresholds{Low: 0.33, Medium: 0.66}

// Validate requires 0 < low < medium < 1.
func (t Thresholds) Validate() error {
	if !(t.Low > 0 && t.Low < t.Medium && t.Medium < 1) {
		return fmt.Errorf("thresholds must satisfy 0 < low < medium < 1, got low=%v medium=%v", t.Low, t.Medium)
	}
	return nil
}

// DefaultWeight applies to a loaded classifier with no configured weight.
const DefaultWeight = 0.5

func validWeight(w float64) bool {
	return w >= 0 && !math.IsInf(w, 0)
}

// ArtifactSet is the immutable inference state shared by all requests.
type ArtifactSet struct {
	classifiers  []Classifier
	weights      map[string]float64
	scaler       Scaler
	featureNames []string
	thresholds   Thresholds
	importances  []float64
}

// NewArtifactSet assembles an artifact set. Weights for classifiers that are
// not present are dropped, a nil scaler becomes IdentityScaler, and the
// importance vector is taken from the first classifier that provides one of
// matching length.
func NewArtifactSet(classifiers []Classifier, weights map[string]float64, scaler Scaler, featureNames []string, thresholds Thresholds) (*ArtifactSet, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if scaler == nil {
		scaler = IdentityScaler{}
	}
	set := &ArtifactSet{
		classifiers:  classifiers,
		weights:      make(map[string]float64, len(classifiers)),
		scaler:       scaler,
		featureNames: featureNames,
		thresholds:   thresholds,
	}
	seen := make(map[string]struct{}, len(classifiers))
	for _, c := range classifiers {
		if _, dup := seen[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate classifier %q", c.Name())
		}
		seen[c.Name()] = struct{}{}
		w, ok := weights[c.Name()]
		if !ok {
			w = DefaultWeight
		}
		if !validWeight(w) {
			return nil, fmt.Errorf("classifier %q has invalid weight %v", c.Name(), w)
		}
		set.weights[c.Name()] = w
	}
	for _, c := range classifiers {
		ip, ok := c.(ImportanceProvider)
		if !ok {
			continue
		}
		if imp := ip.FeatureImportances(); len(imp) > 0 && len(imp) == len(featureNames) {
			set.importances = imp
			break
		}
	}
	return set, nil
}

// EmptyArtifactSet has no classifiers, no schema and default thresholds.
func EmptyArtifactSet() *ArtifactSet {
	return &ArtifactSet{
		weights:    map[string]float64{},
		scaler:     IdentityScaler{},
		thresholds: DefaultThresholds,
	}
}

// Classifiers returns the loaded classifiers in ensemble order.
func (a *ArtifactSet) Classifiers() []Classifier { return a.classifiers }

// Weight returns the ensemble weight of a loaded classifier.
func (a *ArtifactSet) Weight(name string) float64 { return a.weights[name] }

// FeatureNames returns the expected feature order, empty when no schema is loaded.
func (a *ArtifactSet) FeatureNames() []string { return a.featureNames }

// Thresholds returns the category thresholds.
func (a *ArtifactSet) Thresholds() Thresholds { return a.thresholds }

func (a *ArtifactSet) totalWeight() float64 {
	var total float64
	for _, w := range a.weights {
		total += w
	}
	return total
}
