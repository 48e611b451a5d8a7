package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/ensemble"
	"github.com/couchcryptid/disease-risk-service/internal/features"
	"github.com/couchcryptid/disease-risk-service/internal/pipeline"
	"github.com/couchcryptid/disease-risk-service/internal/weathersim"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ist      = time.FixedZone("Asia/Kolkata", 19800)
	testNow  = time.Date(2024, time.July, 15, 10, 0, 0, 0, ist)
	testMeta = domain.LocationMeta{Latitude: 18.5204, Longitude: 73.8567, Elevation: 560, Timezone: "Asia/Kolkata"}
)

// --- weather source stub ---

type stubSource struct {
	series *domain.Series
	err    error
	calls  atomic.Int32
}

func (s *stubSource) FetchForecast(context.Context, float64, float64) (*domain.Series, domain.LocationMeta, error) {
	s.calls.Add(1)
	return s.series, testMeta, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// thirtySevenDays covers 30 past days and 7 forecast days including today.
func thirtySevenDays() *domain.Series {
	start := time.Date(2024, time.June, 15, 0, 0, 0, 0, ist)
	return weathersim.Generate(weathersim.Options{Start: start, Hours: 37 * 24, Seed: 42})
}

func newPredictor(source domain.WeatherSource, set *ensemble.ArtifactSet) *pipeline.Predictor {
	logger := quietLogger()
	metrics := newTestMetrics()
	return pipeline.NewPredictor(
		source,
		features.NewEngine(features.DefaultConfig(), logger),
		ensemble.NewScorer(set, ensemble.DefaultTopN, logger, metrics),
		logger,
		metrics,
	)
}

func ptr(v float64) *float64 { return &v }

func TestPredictor_EndToEnd(t *testing.T) {
	freezeClock(t)

	model := &ensemble.TreeEnsemble{
		ModelName:   "rf",
		Kind:        ensemble.KindRandomForest,
		NFeatures:   2,
		Importances: []float64{0.4, 0.6},
		Trees: []ensemble.Tree{{Nodes: []ensemble.TreeNode{
			{Feature: 1, Threshold: 80, Left: 1, Right: 2},
			{Left: -1, Value: 0.2},
			{Left: -1, Value: 0.9},
		}}},
	}
	names := []string{"temperature_2m_daily_mean", "relative_humidity_2m_daily_max"}
	set, err := ensemble.NewArtifactSet([]ensemble.Classifier{model}, nil, nil, names, ensemble.DefaultThresholds)
	require.NoError(t, err)

	source := &stubSource{series: thirtySevenDays()}
	r, err := newPredictor(source, set).Predict(context.Background(), domain.PredictionRequest{
		Latitude:  ptr(18.5204),
		Longitude: ptr(73.8567),
		LeadDays:  []float64{1, 3, 7},
		Disease:   "Late Blight",
	})
	require.NoError(t, err)

	assert.Equal(t, "success", r.Status)
	assert.Equal(t, testMeta, r.Location)
	assert.Equal(t, "Late Blight", r.Disease)
	require.Len(t, r.RiskByDay, 3)
	today := domain.DateOf(testNow)
	for i, day := range []int{1, 3, 7} {
		res := r.RiskByDay[i]
		assert.Equal(t, day, res.Day)
		assert.GreaterOrEqual(t, res.Probability, 0.0)
		assert.LessOrEqual(t, res.Probability, 1.0)
		assert.Contains(t, []domain.RiskCategory{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}, res.Alert)
		assert.LessOrEqual(t, len(res.TopFeatures), 5)
		assert.Equal(t, []string{"relative_humidity_2m_daily_max", "temperature_2m_daily_mean"}, res.TopFeatures)
		assert.False(t, res.Degraded)
		if day < 7 {
			assert.Equal(t, today.AddDays(day), res.Date)
		}
	}
	// Day 7 is past the forecast horizon and uses the last row.
	assert.Equal(t, today.AddDays(6), r.RiskByDay[2].Date)

	assert.Greater(t, r.FeatureStatistics.TotalFeatures, 1000)
	assert.NotNil(t, r.WeatherSummary.TemperatureMean)
	assert.Len(t, r.TopFeaturesByDay, 3)
	assert.Empty(t, r.FailedDays)

	_, err = json.Marshal(r)
	require.NoError(t, err)
}

func TestPredictor_FallbackWithoutModels(t *testing.T) {
	freezeClock(t)

	r, err := newPredictor(&stubSource{series: thirtySevenDays()}, ensemble.EmptyArtifactSet()).Predict(
		context.Background(),
		domain.PredictionRequest{Latitude: ptr(18.5204), Longitude: ptr(73.8567)},
	)
	require.NoError(t, err)

	require.Len(t, r.RiskByDay, 7, "no lead days means all seven")
	for _, res := range r.RiskByDay {
		assert.True(t, res.Degraded)
		assert.GreaterOrEqual(t, res.Probability, 0.15)
		assert.Less(t, res.Probability, 0.65)
		assert.Len(t, res.TopFeatures, 5)
	}
	assert.Equal(t, "unknown", r.Disease)
}

func TestPredictor_Errors(t *testing.T) {
	freezeClock(t)

	tests := []struct {
		name      string
		source    *stubSource
		req       domain.PredictionRequest
		wantKind  domain.ErrorKind
		wantFetch bool
	}{
		{
			name:     "missing latitude",
			source:   &stubSource{series: thirtySevenDays()},
			req:      domain.PredictionRequest{Longitude: ptr(10)},
			wantKind: domain.KindInput,
		},
		{
			name:     "no usable lead days",
			source:   &stubSource{series: thirtySevenDays()},
			req:      domain.PredictionRequest{Latitude: ptr(1), Longitude: ptr(1), LeadDays: []float64{0, 9}},
			wantKind: domain.KindInput,
		},
		{
			name:      "weather unavailable",
			source:    &stubSource{err: errors.New("connection refused")},
			req:       domain.PredictionRequest{Latitude: ptr(1), Longitude: ptr(1)},
			wantKind:  domain.KindWeatherUnavailable,
			wantFetch: true,
		},
		{
			name:      "empty series",
			source:    &stubSource{series: domain.NewSeries(nil)},
			req:       domain.PredictionRequest{Latitude: ptr(1), Longitude: ptr(1)},
			wantKind:  domain.KindFeatureComputation,
			wantFetch: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newPredictor(tt.source, ensemble.EmptyArtifactSet()).Predict(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			assert.Equal(t, tt.wantFetch, tt.source.calls.Load() > 0)
		})
	}
}

// --- transformer ---

type stubPredictor struct {
	report *domain.RiskReport
	err    error
	got    domain.PredictionRequest
}

func (s *stubPredictor) Predict(_ context.Context, req domain.PredictionRequest) (*domain.RiskReport, error) {
	s.got = req
	return s.report, s.err
}

func TestRiskTransformer_Transform(t *testing.T) {
	pred := &stubPredictor{report: &domain.RiskReport{
		Status:    "success",
		Location:  domain.LocationMeta{Latitude: 18.5204, Longitude: 73.8567},
		Disease:   "Rust",
		Timestamp: "2024-07-15T04:30:00Z",
		RiskByDay: []domain.PredictionResult{{Day: 1}, {Day: 2, Degraded: true}},
	}}
	tfm := pipeline.NewTransformer(pred, quietLogger())

	out, err := tfm.Transform(context.Background(), domain.RawEvent{
		Value: []byte(`{"latitude":18.5204,"longitude":73.8567,"lead_days":[1,2],"disease":"Rust"}`),
	})
	require.NoError(t, err)

	assert.InDelta(t, 18.5204, *pred.got.Latitude, 0)
	assert.Equal(t, domain.LeadDays{1, 2}, pred.got.LeadDays)
	assert.Equal(t, []byte("18.5204,73.8567"), out.Key)
	assert.Equal(t, map[string]string{
		pipeline.HeaderDisease:     "Rust",
		pipeline.HeaderGeneratedAt: "2024-07-15T04:30:00Z",
		pipeline.HeaderDegraded:    "true",
	}, out.Headers)

	var decoded domain.RiskReport
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	assert.Equal(t, "Rust", decoded.Disease)
	assert.Len(t, decoded.RiskByDay, 2)
}

func TestRiskTransformer_LeadDayStrings(t *testing.T) {
	pred := &stubPredictor{report: &domain.RiskReport{RiskByDay: []domain.PredictionResult{{Day: 1}}}}
	tfm := pipeline.NewTransformer(pred, quietLogger())

	_, err := tfm.Transform(context.Background(), domain.RawEvent{
		Value: []byte(`{"latitude":1,"longitude":2,"lead_days":["1","3"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadDays{1, 3}, pred.got.LeadDays)

	_, err = tfm.Transform(context.Background(), domain.RawEvent{
		Value: []byte(`{"latitude":1,"longitude":2,"lead_days":["tomorrow"]}`),
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
	assert.Contains(t, domain.MessageOf(err), "not a number")
}

func TestRiskTransformer_KeepsMessageKey(t *testing.T) {
	pred := &stubPredictor{report: &domain.RiskReport{RiskByDay: []domain.PredictionResult{{Day: 1}}}}
	out, err := pipeline.NewTransformer(pred, quietLogger()).Transform(context.Background(), domain.RawEvent{
		Key:   []byte("field-17"),
		Value: []byte(`{"latitude":1,"longitude":2}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("field-17"), out.Key)
	assert.Equal(t, "false", out.Headers[pipeline.HeaderDegraded])
}

func TestRiskTransformer_Errors(t *testing.T) {
	_, err := pipeline.NewTransformer(&stubPredictor{}, quietLogger()).Transform(context.Background(), domain.RawEvent{Value: []byte("not json")})
	require.Error(t, err)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))

	upstream := domain.WeatherError("weather data unavailable", errors.New("timeout"))
	_, err = pipeline.NewTransformer(&stubPredictor{err: upstream}, quietLogger()).Transform(context.Background(), domain.RawEvent{Value: []byte(`{}`)})
	require.ErrorIs(t, err, upstream)
}
