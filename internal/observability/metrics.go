package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disease_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Prediction metrics.
	Predictions        *prometheus.CounterVec // labels: outcome={success,invalid_input,weather_unavailable,...}
	PredictionDuration prometheus.Histogram
	RiskCategories     *prometheus.CounterVec // labels: category={low,medium,high}
	FallbackScores     prometheus.Counter
	ClassifierErrors   *prometheus.CounterVec // labels: model
	ScalerFallbacks    prometheus.Counter
	ModelsLoaded       prometheus.Gauge
	FeaturesGenerated  prometheus.Gauge

	// Weather ingestion metrics.
	WeatherRequests    *prometheus.CounterVec   // labels: endpoint={forecast,archive}, outcome={success,error}
	WeatherAPIDuration *prometheus.HistogramVec // labels: endpoint
	WeatherCache       *prometheus.CounterVec   // labels: tier={memory,file}, result={hit,miss}

	// Batch pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	SkippedRequests         *prometheus.CounterVec // labels: kind={invalid_input,weather_unavailable,...}
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "End-to-end duration of a prediction including the weather fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RiskCategories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_category_total",
			Help:      "Scored lead days by risk category.",
		}, []string{"category"}),
		FallbackScores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_scores_total",
			Help:      "Lead days scored by the hash fallback because no classifier produced a value.",
		}),
		ClassifierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_errors_total",
			Help:      "Classifier failures excluded from the ensemble average.",
		}, []string{"model"}),
		ScalerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scaler_fallbacks_total",
			Help:      "Rows scored on unscaled values because the scaler failed.",
		}),
		ModelsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "Number of classifiers in the loaded ensemble.",
		}),
		FeaturesGenerated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_generated",
			Help:      "Width of the most recently engineered feature frame.",
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Upstream weather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Upstream weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total prediction requests read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total risk reports written to the sink topic.",
		}),
		SkippedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_skipped_total",
			Help:      "Queued prediction requests committed without a report, by error kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the batch pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Predictions,
		m.PredictionDuration,
		m.RiskCategories,
		m.FallbackScores,
		m.ClassifierErrors,
		m.ScalerFallbacks,
		m.ModelsLoaded,
		m.FeaturesGenerated,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.WeatherCache,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.SkippedRequests,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	}
}
