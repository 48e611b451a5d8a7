package ensemble

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/spaolacci/murmur3"
)

// DefaultTopN is the number of explanatory features reported per day.
const DefaultTopN = 5

// Scorer turns feature rows into risk predictions. It only reads its
// artifact set and is safe for concurrent use.
type Scorer struct {
	set     *ArtifactSet
	topN    int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScorer creates a scorer over set. A non-positive topN uses DefaultTopN.
func NewScorer(set *ArtifactSet, topN int, logger *slog.Logger, metrics *observability.Metrics) *Scorer {
	if set == nil {
		set = EmptyArtifactSet()
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	metrics.ModelsLoaded.Set(float64(len(set.Classifiers())))
	return &Scorer{set: set, topN: topN, logger: logger, metrics: metrics}
}

// ModelsLoaded returns the number of classifiers in the ensemble.
func (s *Scorer) ModelsLoaded() int { return len(s.set.Classifiers()) }

// Preprocess reconciles row against the expected feature names, replaces
// non-finite values with zero and applies the scaler. A scaler failure falls
// back to the unscaled vector.
func (s *Scorer) Preprocess(row domain.FeatureRow) ([]float64, error) {
	if len(row.Names) != len(row.Values) {
		return nil, fmt.Errorf("feature row has %d names and %d values", len(row.Names), len(row.Values))
	}

	var x []float64
	if expected := s.set.FeatureNames(); len(expected) > 0 {
		lookup, err := row.Lookup()
		if err != nil {
			return nil, err
		}
		x = make([]float64, len(expected))
		missing := 0
		for i, name := range expected {
			v, ok := lookup[name]
			if !ok {
				missing++
			}
			x[i] = v
		}
		if missing > 0 {
			s.logger.Debug("expected features missing, filled with zero", "missing", missing, "expected", len(expected))
		}
	} else {
		x = append([]float64(nil), row.Values...)
	}

	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}

	scaled, err := s.set.scaler.Transform(x)
	if err != nil {
		s.metrics.ScalerFallbacks.Inc()
		s.logger.Warn("scaler failed, using unscaled features", "error", err)
		return x, nil
	}
	return scaled, nil
}

// PredictProbability returns the weighted ensemble probability of x. When
// every responding classifier has weight zero they are averaged equally. When
// no classifier produces a value it returns the hash fallback and true.
func (s *Scorer) PredictProbability(x []float64) (float64, bool) {
	var sum, weights, plain float64
	var n int
	for _, c := range s.set.Classifiers() {
		p, err := c.PredictProba(x)
		if err != nil || math.IsNaN(p) {
			s.metrics.ClassifierErrors.WithLabelValues(c.Name()).Inc()
			s.logger.Warn("classifier failed, excluding from ensemble", "model", c.Name(), "error", err)
			continue
		}
		w := s.set.Weight(c.Name())
		sum += p * w
		weights += w
		plain += p
		n++
	}
	switch {
	case weights > 0:
		return sum / weights, false
	case n > 0:
		return plain / float64(n), false
	}

	s.metrics.FallbackScores.Inc()
	s.logger.Warn("no classifier output, using fallback score")
	return FallbackProbability(x), true
}

// FallbackProbability derives a deterministic value in [0.15, 0.65) from the
// bytes of x. It carries no predictive meaning.
func FallbackProbability(x []float64) float64 {
	buf := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	h := murmur3.Sum64(buf)
	return 0.15 + float64(h%100)/200
}

// Categorize maps p onto a risk category using the loaded thresholds.
func (s *Scorer) Categorize(p float64) domain.RiskCategory {
	t := s.set.Thresholds()
	switch {
	case p < t.Low:
		return domain.RiskLow
	case p < t.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// TopFeatures returns the n most important expected features, or the first n
// names of row when no importance vector is loaded.
func (s *Scorer) TopFeatures(row domain.FeatureRow, n int) []string {
	if n <= 0 {
		return []string{}
	}
	imp := s.set.importances
	if len(imp) == 0 {
		n = min(n, len(row.Names))
		return append([]string{}, row.Names[:n]...)
	}

	names := s.set.FeatureNames()
	idx := make([]int, len(imp))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return imp[idx[a]] > imp[idx[b]] })
	n = min(n, len(idx))
	out := make([]string, n)
	for i := range out {
		out[i] = names[idx[i]]
	}
	return out
}

// Score runs the full per-row chain for one lead day.
func (s *Scorer) Score(day int, row domain.FeatureRow) (domain.PredictionResult, error) {
	x, err := s.Preprocess(row)
	if err != nil {
		return domain.PredictionResult{}, domain.ScoringError(fmt.Sprintf("scoring day %d failed", day), err)
	}
	p, degraded := s.PredictProbability(x)
	p = math.Max(0, math.Min(1, p))
	category := s.Categorize(p)
	s.metrics.RiskCategories.WithLabelValues(string(category)).Inc()
	return domain.PredictionResult{
		Day:         day,
		Date:        row.Date,
		Probability: math.Round(p*1000) / 1000,
		Alert:       category,
		TopFeatures: s.TopFeatures(row, s.topN),
		Degraded:    degraded,
	}, nil
}

// PredictForLeadDays scores every lead day independently. Days that fail are
// reported in the error map and do not affect the others.
func (s *Scorer) PredictForLeadDays(rows domain.LeadDayFeatureMap) (map[int]domain.PredictionResult, map[int]error) {
	results := make(map[int]domain.PredictionResult, len(rows))
	var failed map[int]error
	for day, row := range rows {
		res, err := s.Score(day, row)
		if err != nil {
			if failed == nil {
				failed = make(map[int]error)
			}
			failed[day] = err
			s.logger.Warn("lead day scoring failed", "day", day, "error", err)
			continue
		}
		results[day] = res
	}
	return results, failed
}
