package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/disease-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disease-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/disease-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/disease-risk-service/internal/config"
	"github.com/couchcryptid/disease-risk-service/internal/ensemble"
	"github.com/couchcryptid/disease-risk-service/internal/features"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/couchcryptid/disease-risk-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	artifacts := ensemble.Load(cfg.ModelDir, logger)
	scorer := ensemble.NewScorer(artifacts, cfg.TopNFeatures, logger, metrics)

	client := openmeteo.NewClient(openmeteo.Options{
		ForecastURL:  cfg.ForecastURL,
		ArchiveURL:   cfg.ArchiveURL,
		Timeout:      cfg.WeatherTimeout,
		PastDays:     cfg.WeatherPastDays,
		ForecastDays: cfg.WeatherForecastDays,
		RateLimit:    cfg.WeatherRateLimit,
		MaxRetries:   cfg.WeatherMaxRetries,
	}, logger, metrics)
	source := openmeteo.NewCachedSource(client, openmeteo.CacheOptions{
		Dir:        cfg.CacheDir,
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheSize,
		Clock:      clockwork.NewRealClock(),
		// Each attempt is bounded by WEATHER_TIMEOUT.
		FetchTimeout: cfg.WeatherTimeout * time.Duration(cfg.WeatherMaxRetries+1),
	}, logger, metrics)
	logger.Info("weather cache configured", "dir", cfg.CacheDir, "ttl", cfg.CacheTTL, "size", cfg.CacheSize)

	engine := features.NewEngine(features.DefaultConfig(), logger)
	predictor := pipeline.NewPredictor(source, engine, scorer, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka batch mode is feature-flagged via KAFKA_ENABLED; without it the
	// service only answers HTTP requests and is ready immediately.
	var ready httpadapter.ReadinessChecker = httpadapter.ReadinessFunc(func(context.Context) error { return nil })
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(predictor, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		ready = p

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
		logger.Info("kafka batch mode enabled", "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka batch mode disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, predictor, scorer.ModelsLoaded(), logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
