package ensemble

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubClassifier struct {
	name        string
	p           float64
	err         error
	importances []float64
}

func (c stubClassifier) Name() string { return c.name }

func (c stubClassifier) PredictProba([]float64) (float64, error) { return c.p, c.err }

func (c stubClassifier) FeatureImportances() []float64 { return c.importances }

type failingScaler struct{}

func (failingScaler) Transform([]float64) ([]float64, error) {
	return nil, errors.New("incompatible scaler")
}

func newTestScorer(t *testing.T, set *ArtifactSet) *Scorer {
	t.Helper()
	return NewScorer(set, 5, discardLogger(), observability.NewMetricsForTesting())
}

func mustSet(t *testing.T, classifiers []Classifier, weights map[string]float64, scaler Scaler, names []string) *ArtifactSet {
	t.Helper()
	set, err := NewArtifactSet(classifiers, weights, scaler, names, DefaultThresholds)
	require.NoError(t, err)
	return set
}

func TestPredictProbability_WeightedAverage(t *testing.T) {
	set := mustSet(t, []Classifier{
		stubClassifier{name: "rf", p: 0.8},
		stubClassifier{name: "xgb", p: 0.2},
	}, map[string]float64{"rf": 0.6, "xgb": 0.4}, nil, nil)
	s := newTestScorer(t, set)

	p, fallback := s.PredictProbability([]float64{1, 2, 3})
	assert.False(t, fallback)
	assert.InDelta(t, 0.56, p, 1e-9)
}

func TestPredictProbability_DefaultWeight(t *testing.T) {
	set := mustSet(t, []Classifier{
		stubClassifier{name: "rf", p: 0.9},
		stubClassifier{name: "xgb", p: 0.3},
	}, nil, nil, nil)
	s := newTestScorer(t, set)

	assert.InDelta(t, DefaultWeight, set.Weight("rf"), 0)
	p, _ := s.PredictProbability([]float64{0})
	assert.InDelta(t, 0.6, p, 1e-9)
}

func TestPredictProbability_SkipsFailingClassifier(t *testing.T) {
	set := mustSet(t, []Classifier{
		stubClassifier{name: "rf", err: errors.New("shape mismatch")},
		stubClassifier{name: "xgb", p: 0.42},
	}, map[string]float64{"rf": 0.9, "xgb": 0.1}, nil, nil)
	s := newTestScorer(t, set)

	p, fallback := s.PredictProbability([]float64{1})
	assert.False(t, fallback)
	assert.InDelta(t, 0.42, p, 1e-9)
}

func TestPredictProbability_ZeroWeightsAverageEqually(t *testing.T) {
	set := mustSet(t, []Classifier{
		stubClassifier{name: "rf", p: 0.9},
		stubClassifier{name: "xgb", p: 0.5},
	}, map[string]float64{"rf": 0, "xgb": 0}, nil, nil)
	s := newTestScorer(t, set)

	p, fallback := s.PredictProbability([]float64{1})
	assert.False(t, fallback, "real classifier output must not be labelled degraded")
	assert.InDelta(t, 0.7, p, 1e-9)

	r, err := s.Score(1, domain.FeatureRow{Names: []string{"a"}, Values: []float64{1}})
	require.NoError(t, err)
	assert.False(t, r.Degraded)
	assert.InDelta(t, 0.7, r.Probability, 1e-9)
}

func TestPredictProbability_Fallback(t *testing.T) {
	s := newTestScorer(t, EmptyArtifactSet())

	a := []float64{1.5, 2.5, 3.5}
	b := []float64{1.5, 2.5, 3.6}

	p1, fallback := s.PredictProbability(a)
	require.True(t, fallback)
	p2, _ := s.PredictProbability(a)
	assert.InDelta(t, p1, p2, 0, "fallback must be deterministic")
	assert.GreaterOrEqual(t, p1, 0.15)
	assert.Less(t, p1, 0.65)

	distinct := map[float64]struct{}{}
	for i := range 20 {
		v, _ := s.PredictProbability([]float64{float64(i), b[1], b[2]})
		distinct[v] = struct{}{}
	}
	assert.Greater(t, len(distinct), 1, "different vectors should spread across the fallback range")
}

func TestPredictProbability_AllClassifiersFail(t *testing.T) {
	set := mustSet(t, []Classifier{stubClassifier{name: "rf", err: errors.New("boom")}}, nil, nil, nil)
	s := newTestScorer(t, set)

	x := []float64{4, 5}
	p, fallback := s.PredictProbability(x)
	assert.True(t, fallback)
	assert.InDelta(t, FallbackProbability(x), p, 0)
}

func TestCategorize(t *testing.T) {
	s := newTestScorer(t, EmptyArtifactSet())
	const eps = 1e-9

	tests := []struct {
		p    float64
		want domain.RiskCategory
	}{
		{0, domain.RiskLow},
		{0.33 - eps, domain.RiskLow},
		{0.33, domain.RiskMedium},
		{0.5, domain.RiskMedium},
		{0.66, domain.RiskHigh},
		{0.66 - eps, domain.RiskMedium},
		{0.66 + eps, domain.RiskHigh},
		{1, domain.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Categorize(tt.p), "p=%v", tt.p)
	}

	rank := map[domain.RiskCategory]int{domain.RiskLow: 0, domain.RiskMedium: 1, domain.RiskHigh: 2}
	prev := 0
	for i := 0; i <= 1000; i++ {
		r := rank[s.Categorize(float64(i)/1000)]
		assert.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestPreprocess_Reconciles(t *testing.T) {
	set := mustSet(t, nil, nil, nil, []string{"c", "a", "missing"})
	s := newTestScorer(t, set)

	row := domain.FeatureRow{
		Names:  []string{"a", "b", "c"},
		Values: []float64{1, 2, math.Inf(1)},
	}
	x, err := s.Preprocess(row)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{0, 1, 0}, x); diff != "" {
		t.Errorf("preprocess mismatch (-want +got):\n%s", diff)
	}
}

func TestPreprocess_ScalerFallback(t *testing.T) {
	set := mustSet(t, nil, nil, failingScaler{}, nil)
	s := newTestScorer(t, set)

	x, err := s.Preprocess(domain.FeatureRow{Names: []string{"a", "b"}, Values: []float64{3, math.NaN()}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0}, x)
}

func TestPreprocess_StandardScaler(t *testing.T) {
	scaler := &StandardScaler{Mean: []float64{1, 10}, Scale: []float64{2, 0}}
	set := mustSet(t, nil, nil, scaler, []string{"a", "b"})
	s := newTestScorer(t, set)

	x, err := s.Preprocess(domain.FeatureRow{Names: []string{"b", "a"}, Values: []float64{12, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, x)
}

func TestPreprocess_RejectsMalformedRow(t *testing.T) {
	s := newTestScorer(t, EmptyArtifactSet())
	_, err := s.Preprocess(domain.FeatureRow{Names: []string{"a"}, Values: []float64{1, 2}})
	require.Error(t, err)
}

func TestTopFeatures(t *testing.T) {
	row := domain.FeatureRow{
		Names:  []string{"f0", "f1", "f2", "f3", "f4", "f5", "f6"},
		Values: make([]float64, 7),
	}

	t.Run("importance order with stable ties", func(t *testing.T) {
		set := mustSet(t, []Classifier{
			stubClassifier{name: "rf", p: 0.5, importances: []float64{0.1, 0.3, 0.3, 0.05, 0.2, 0.3, 0}},
		}, nil, nil, row.Names)
		s := newTestScorer(t, set)
		assert.Equal(t, []string{"f1", "f2", "f5", "f4", "f0"}, s.TopFeatures(row, 5))
	})

	t.Run("no importances uses row order", func(t *testing.T) {
		s := newTestScorer(t, EmptyArtifactSet())
		assert.Equal(t, []string{"f0", "f1", "f2"}, s.TopFeatures(row, 3))
	})

	t.Run("mismatched importances ignored", func(t *testing.T) {
		set := mustSet(t, []Classifier{
			stubClassifier{name: "rf", importances: []float64{1, 2}},
		}, nil, nil, row.Names)
		s := newTestScorer(t, set)
		assert.Equal(t, []string{"f0", "f1"}, s.TopFeatures(row, 2))
	})

	t.Run("n larger than row", func(t *testing.T) {
		s := newTestScorer(t, EmptyArtifactSet())
		assert.Len(t, s.TopFeatures(row, 50), 7)
	})
}

func TestPredictForLeadDays_IsolatesFailures(t *testing.T) {
	set := mustSet(t, []Classifier{stubClassifier{name: "rf", p: 0.71234}}, nil, nil, nil)
	s := newTestScorer(t, set)

	good := domain.FeatureRow{Date: domain.Date{Year: 2024, Month: 5, Day: 2}, Names: []string{"a"}, Values: []float64{1}}
	bad := domain.FeatureRow{Names: []string{"a", "b"}, Values: []float64{1}}

	results, failed := s.PredictForLeadDays(domain.LeadDayFeatureMap{1: good, 3: bad, 7: good})

	require.Len(t, results, 2)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.KindScoring, domain.KindOf(failed[3]))

	r := results[1]
	assert.Equal(t, 1, r.Day)
	assert.Equal(t, good.Date, r.Date)
	assert.InDelta(t, 0.712, r.Probability, 0)
	assert.Equal(t, domain.RiskHigh, r.Alert)
	assert.Equal(t, []string{"a"}, r.TopFeatures)
	assert.False(t, r.Degraded)
}

func TestPredictForLeadDays_FallbackIsLabelled(t *testing.T) {
	s := newTestScorer(t, EmptyArtifactSet())
	row := domain.FeatureRow{Names: []string{"a", "b"}, Values: []float64{0.3, 9}}

	results, failed := s.PredictForLeadDays(domain.LeadDayFeatureMap{2: row})
	require.Empty(t, failed)
	assert.True(t, results[2].Degraded)
}

func TestNewArtifactSet_Rejects(t *testing.T) {
	_, err := NewArtifactSet(nil, nil, nil, nil, Thresholds{Low: 0.7, Medium: 0.3})
	require.Error(t, err)

	_, err = NewArtifactSet([]Classifier{stubClassifier{name: "rf"}, stubClassifier{name: "rf"}}, nil, nil, nil, DefaultThresholds)
	require.Error(t, err)

	_, err = NewArtifactSet([]Classifier{stubClassifier{name: "rf"}}, map[string]float64{"rf": math.Inf(1)}, nil, nil, DefaultThresholds)
	assert.Error(t, err)

	_, err = NewArtifactSet([]Classifier{stubClassifier{name: "rf"}}, map[string]float64{"rf": -1}, nil, nil, DefaultThresholds)
	require.Error(t, err)
}

// stump builds a depth-one tree splitting feature f at threshold.
func stump(f int, threshold, left, right float64) Tree {
	return Tree{Nodes: []TreeNode{
		{Feature: f, Threshold: threshold, Left: 1, Right: 2},
		{Left: -1, Value: left},
		{Left: -1, Value: right},
	}}
}

func TestTreeEnsemble_PredictProba(t *testing.T) {
	rf := &TreeEnsemble{ModelName: "rf", Kind: KindRandomForest, NFeatures: 2, Trees: []Tree{
		stump(0, 10, 0.2, 0.8),
		stump(1, 0.5, 0.4, 1.0),
	}}
	require.NoError(t, rf.Validate())

	p, err := rf.PredictProba([]float64{5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p, 1e-9)

	p, err = rf.PredictProba([]float64{math.NaN(), 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, p, 1e-9)

	gb := &TreeEnsemble{ModelName: "xgb", Kind: KindGradientBoosting, NFeatures: 1, BaseScore: 0, Trees: []Tree{
		stump(0, 0, -1, 1),
	}}
	p, err = gb.PredictProba([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-1)), p, 1e-9)

	_, err = gb.PredictProba(nil)
	require.Error(t, err)
}

func TestTreeEnsemble_Validate(t *testing.T) {
	tests := []struct {
		name  string
		model TreeEnsemble
	}{
		{"unknown kind", TreeEnsemble{Kind: "svm", NFeatures: 1, Trees: []Tree{stump(0, 0, 0, 1)}}},
		{"no trees", TreeEnsemble{Kind: KindRandomForest, NFeatures: 1}},
		{"feature out of range", TreeEnsemble{Kind: KindRandomForest, NFeatures: 1, Trees: []Tree{stump(3, 0, 0, 1)}}},
		{"child loops back", TreeEnsemble{Kind: KindRandomForest, NFeatures: 1, Trees: []Tree{{Nodes: []TreeNode{
			{Feature: 0, Left: 0, Right: 1}, {Left: -1},
		}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.model.Validate())
		})
	}
}

func writeArtifact(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestLoad_FullSet(t *testing.T) {
	dir := t.TempDir()
	names := []string{"temp", "rh"}
	writeArtifact(t, dir, "rf_model.json", TreeEnsemble{
		Kind: KindRandomForest, NFeatures: 2, Importances: []float64{0.2, 0.8},
		Trees: []Tree{stump(0, 0, 0.1, 0.9)},
	})
	writeArtifact(t, dir, "xgb_model.json", TreeEnsemble{
		Kind: KindGradientBoosting, NFeatures: 2, Trees: []Tree{stump(1, 0, -2, 2)},
	})
	writeArtifact(t, dir, ScalerFile, StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}})
	writeArtifact(t, dir, ConfigFile, EnsembleConfig{
		ModelWeights: map[string]float64{"rf": 0.7, "xgb": 0.3, "svm": 1},
		FeatureNames: names,
		Thresholds:   &Thresholds{Low: 0.2, Medium: 0.5},
	})

	set := Load(dir, discardLogger())

	require.Len(t, set.Classifiers(), 2)
	assert.Equal(t, "rf", set.Classifiers()[0].Name())
	assert.InDelta(t, 0.7, set.Weight("rf"), 0)
	assert.InDelta(t, 0, set.Weight("svm"), 0)
	assert.Equal(t, names, set.FeatureNames())
	assert.Equal(t, Thresholds{Low: 0.2, Medium: 0.5}, set.Thresholds())

	s := newTestScorer(t, set)
	assert.Equal(t, []string{"rh", "temp"}, s.TopFeatures(domain.FeatureRow{Names: names, Values: []float64{0, 0}}, 5))
}

func TestLoad_Degrades(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		set := Load(t.TempDir(), discardLogger())
		assert.Empty(t, set.Classifiers())
		assert.Equal(t, DefaultThresholds, set.Thresholds())
	})

	t.Run("corrupt model and bad thresholds", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rf_model.json"), []byte("{not json"), 0o600))
		writeArtifact(t, dir, "xgb_model.json", TreeEnsemble{
			Kind: KindGradientBoosting, NFeatures: 1, Trees: []Tree{stump(0, 0, 0, 1)},
		})
		writeArtifact(t, dir, ConfigFile, EnsembleConfig{Thresholds: &Thresholds{Low: 0.9, Medium: 0.1}})

		set := Load(dir, discardLogger())
		require.Len(t, set.Classifiers(), 1)
		assert.Equal(t, "xgb", set.Classifiers()[0].Name())
		assert.InDelta(t, DefaultWeight, set.Weight("xgb"), 0)
		assert.Equal(t, DefaultThresholds, set.Thresholds())
	})

	t.Run("negative weight degrades only that model", func(t *testing.T) {
		dir := t.TempDir()
		names := []string{"temp", "rh"}
		writeArtifact(t, dir, "rf_model.json", TreeEnsemble{
			Kind: KindRandomForest, NFeatures: 2, Trees: []Tree{stump(0, 0, 0.1, 0.9)},
		})
		writeArtifact(t, dir, "xgb_model.json", TreeEnsemble{
			Kind: KindGradientBoosting, NFeatures: 2, Trees: []Tree{stump(1, 0, -2, 2)},
		})
		writeArtifact(t, dir, ScalerFile, StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}})
		writeArtifact(t, dir, ConfigFile, EnsembleConfig{
			ModelWeights: map[string]float64{"rf": -0.4, "xgb": 0.3},
			FeatureNames: names,
			Thresholds:   &Thresholds{Low: 0.2, Medium: 0.5},
		})

		set := Load(dir, discardLogger())
		require.Len(t, set.Classifiers(), 2)
		assert.InDelta(t, DefaultWeight, set.Weight("rf"), 0)
		assert.InDelta(t, 0.3, set.Weight("xgb"), 0)
		assert.Equal(t, names, set.FeatureNames())
		assert.Equal(t, Thresholds{Low: 0.2, Medium: 0.5}, set.Thresholds())
		_, isStandard := set.scaler.(*StandardScaler)
		assert.True(t, isStandard, "scaler must survive a bad weight")
	})

	t.Run("scaler length mismatch falls back at scoring time", func(t *testing.T) {
		dir := t.TempDir()
		writeArtifact(t, dir, ScalerFile, StandardScaler{Mean: []float64{1}, Scale: []float64{1}})
		s := newTestScorer(t, Load(dir, discardLogger()))

		x, err := s.Preprocess(domain.FeatureRow{Names: []string{"a", "b"}, Values: []float64{4, 5}})
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 5}, x)
	})
}
