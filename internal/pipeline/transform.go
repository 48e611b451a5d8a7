package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// Report headers set on every output event.
const (
	HeaderDisease     = "disease"
	HeaderGeneratedAt = "generated_at"
	HeaderDegraded    = "degraded"
)

// RiskPredictor produces a report for one request.
type RiskPredictor interface {
	Predict(ctx context.Context, req domain.PredictionRequest) (*domain.RiskReport, error)
}

// RiskTransformer implements Transformer by treating each raw event as a
// JSON prediction request and emitting the serialized risk report.
type RiskTransformer struct {
	predictor RiskPredictor
	logger    *slog.Logger
}

// NewTransformer creates a RiskTransformer.
func NewTransformer(predictor RiskPredictor, logger *slog.Logger) *RiskTransformer {
	return &RiskTransformer{
		predictor: predictor,
		logger:    logger,
	}
}

func (t *RiskTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	var req domain.PredictionRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return domain.OutputEvent{}, err
		}
		return domain.OutputEvent{}, domain.InputError("request is not valid JSON", err)
	}

	r, err := t.predictor.Predict(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return SerializeReport(raw.Key, r)
}

// SerializeReport converts a report into an output event. An empty key is
// replaced by "lat,lon" of the report location.
func SerializeReport(key []byte, r *domain.RiskReport) (domain.OutputEvent, error) {
	value, err := json.Marshal(r)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("marshal report: %w", err)
	}
	if len(key) == 0 {
		key = []byte(strconv.FormatFloat(r.Location.Latitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(r.Location.Longitude, 'f', -1, 64))
	}

	degraded := false
	for _, res := range r.RiskByDay {
		degraded = degraded || res.Degraded
	}
	return domain.OutputEvent{
		Key:   key,
		Value: value,
		Headers: map[string]string{
			HeaderDisease:     r.Disease,
			HeaderGeneratedAt: r.Timestamp,
			HeaderDegraded:    strconv.FormatBool(degraded),
		},
	}, nil
}
