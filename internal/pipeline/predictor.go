package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/features"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/couchcryptid/disease-risk-service/internal/report"
)

// FeatureEngineer builds the daily feature frame from hourly weather.
type FeatureEngineer interface {
	Engineer(s *domain.Series) (*domain.Frame, error)
}

// RiskScorer scores one feature row per lead day.
type RiskScorer interface {
	PredictForLeadDays(rows domain.LeadDayFeatureMap) (map[int]domain.PredictionResult, map[int]error)
}

// Predictor runs one request through fetch, engineer, align, score and
// assemble. It holds no per-request state and is safe for concurrent use.
type Predictor struct {
	source  domain.WeatherSource
	engine  FeatureEngineer
	scorer  RiskScorer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPredictor wires the prediction stages together.
func NewPredictor(source domain.WeatherSource, engine FeatureEngineer, scorer RiskScorer, logger *slog.Logger, metrics *observability.Metrics) *Predictor {
	return &Predictor{
		source:  source,
		engine:  engine,
		scorer:  scorer,
		logger:  logger,
		metrics: metrics,
	}
}

// Predict validates req and produces its risk report. Returned errors are
// *domain.Error values carrying the failure kind.
func (p *Predictor) Predict(ctx context.Context, req domain.PredictionRequest) (*domain.RiskReport, error) {
	start := time.Now()
	r, err := p.predict(ctx, req)
	p.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.Predictions.WithLabelValues(string(domain.KindOf(err))).Inc()
		return nil, err
	}
	p.metrics.Predictions.WithLabelValues("success").Inc()
	return r, nil
}

func (p *Predictor) predict(ctx context.Context, req domain.PredictionRequest) (*domain.RiskReport, error) {
	resolved, err := req.Resolve()
	if err != nil {
		return nil, err
	}

	series, meta, err := p.source.FetchForecast(ctx, resolved.Latitude, resolved.Longitude)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			err = domain.WeatherError("weather data unavailable", err)
		}
		return nil, err
	}

	frame, err := p.engine.Engineer(series)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			err = domain.FeatureError("feature computation failed", err)
		}
		return nil, err
	}
	p.metrics.FeaturesGenerated.Set(float64(frame.Width()))

	today := domain.Today(series.Location())
	rows, err := features.Align(frame, resolved.LeadDays, today)
	if err != nil {
		return nil, err
	}

	results, failed := p.scorer.PredictForLeadDays(rows)
	if len(results) == 0 {
		return nil, domain.ScoringError("prediction failed", firstFailure(failed))
	}

	out := report.Assemble(report.Input{
		Location: meta,
		Disease:  resolved.Disease,
		Results:  results,
		Failed:   failed,
		Series:   series,
		Frame:    frame,
	}, p.logger)

	p.logger.Info("prediction complete",
		"lat", resolved.Latitude,
		"lon", resolved.Longitude,
		"disease", resolved.Disease,
		"lead_days", resolved.LeadDays,
		"features", frame.Width(),
		"failed_days", len(failed),
	)
	return &out, nil
}

// firstFailure returns the error of the earliest failed lead day.
func firstFailure(failed map[int]error) error {
	best := 0
	var err error
	for day, e := range failed {
		if err == nil || day < best {
			best, err = day, e
		}
	}
	return err
}
