package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/disease-risk-service/internal/config"
	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/ensemble"
	"github.com/couchcryptid/disease-risk-service/internal/features"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/couchcryptid/disease-risk-service/internal/pipeline"
	"github.com/couchcryptid/disease-risk-service/internal/weathersim"
	"github.com/spf13/cobra"
)

type options struct {
	lat      float64
	lon      float64
	leadDays []int
	disease  string
	simulate bool
	seed     uint64
	start    string
	end      string
	hours    int
	output   string
}

// archiveSource is satisfied by the Open-Meteo client stack.
type archiveSource interface {
	FetchArchive(ctx context.Context, lat, lon float64, start, end domain.Date) (*domain.Series, domain.LocationMeta, error)
}

// stack holds the components shared by the subcommands.
type stack struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	source  domain.WeatherSource
	archive archiveSource
	engine  *features.Engine
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "riskctl",
		Short:        "Plant disease outbreak risk from the command line",
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.Float64Var(&opts.lat, "lat", 18.5204, "latitude in degrees")
	flags.Float64Var(&opts.lon, "lon", 73.8567, "longitude in degrees")
	flags.BoolVar(&opts.simulate, "simulate", false, "use generated weather instead of the forecast API")
	flags.Uint64Var(&opts.seed, "seed", 1, "seed for generated weather")

	root.AddCommand(newPredictCmd(opts), newFeaturesCmd(opts), newSampleCmd(opts))
	return root
}

func newPredictCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Print a risk report for one location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newStack(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			scorer := ensemble.NewScorer(ensemble.Load(s.cfg.ModelDir, s.logger), s.cfg.TopNFeatures, s.logger, s.metrics)
			predictor := pipeline.NewPredictor(s.source, s.engine, scorer, s.logger, s.metrics)

			lat, lon := opts.lat, opts.lon
			days := make([]float64, len(opts.leadDays))
			for i, d := range opts.leadDays {
				days[i] = float64(d)
			}
			r, err := predictor.Predict(cmd.Context(), domain.PredictionRequest{
				Latitude:  &lat,
				Longitude: &lon,
				LeadDays:  days,
				Disease:   opts.disease,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().IntSliceVar(&opts.leadDays, "lead-days", nil, "lead days to score (default 1-7)")
	cmd.Flags().StringVar(&opts.disease, "disease", "", "disease label for the report")
	return cmd
}

func newFeaturesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print feature statistics for one location",
		Long: `Fetch hourly weather for one location, engineer the daily feature frame
and print its statistics. With --start and --end the archive endpoint is
queried instead of the forecast.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newStack(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			series, err := fetch(cmd.Context(), s, opts)
			if err != nil {
				return err
			}
			frame, err := s.engine.Engineer(series)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), features.Summarize(frame))
		},
	}
	cmd.Flags().StringVar(&opts.start, "start", "", "archive start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "archive end date (YYYY-MM-DD)")
	cmd.MarkFlagsRequiredTogether("start", "end")
	return cmd
}

func fetch(ctx context.Context, s *stack, opts *options) (*domain.Series, error) {
	if opts.start == "" {
		series, _, err := s.source.FetchForecast(ctx, opts.lat, opts.lon)
		return series, err
	}
	if s.archive == nil {
		return nil, errors.New("archive dates cannot be combined with --simulate")
	}
	start, err := domain.ParseDate(opts.start)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDate(opts.end)
	if err != nil {
		return nil, err
	}
	series, _, err := s.archive.FetchArchive(ctx, opts.lat, opts.lon, start, end)
	return series, err
}

func newSampleCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic hourly weather fixture",
		Long: `Generate deterministic hourly weather in the Open-Meteo response shape.
The output parses like a real forecast response.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now().UTC().Truncate(24 * time.Hour)
			if opts.start != "" {
				d, err := domain.ParseDate(opts.start)
				if err != nil {
					return err
				}
				start = d.In(time.UTC)
			}
			series := weathersim.Generate(weathersim.Options{Start: start, Hours: opts.hours, Seed: opts.seed})
			body, err := openmeteo.Encode(series, domain.LocationMeta{
				Latitude:  opts.lat,
				Longitude: opts.lon,
				Timezone:  "UTC",
			})
			if err != nil {
				return err
			}
			if opts.output == "" {
				_, err = cmd.OutOrStdout().Write(append(body, '\n'))
				return err
			}
			if err := os.WriteFile(opts.output, body, 0o644); err != nil {
				return fmt.Errorf("write fixture: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.start, "start", "", "first day of the series (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&opts.hours, "hours", 37*24, "number of hourly rows")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// newStack logs to logOut so stdout carries only the JSON result.
func newStack(opts *options, logOut io.Writer) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLoggerTo(logOut, cfg)
	// Unregistered: the CLI serves no /metrics endpoint.
	metrics := observability.NewMetricsForTesting()

	var source domain.WeatherSource
	var archive archiveSource
	if opts.simulate {
		source = weathersim.Source{
			PastDays:     cfg.WeatherPastDays,
			ForecastDays: cfg.WeatherForecastDays,
			Seed:         opts.seed,
		}
	} else {
		client := openmeteo.NewClient(openmeteo.Options{
			ForecastURL:  cfg.ForecastURL,
			ArchiveURL:   cfg.ArchiveURL,
			Timeout:      cfg.WeatherTimeout,
			PastDays:     cfg.WeatherPastDays,
			ForecastDays: cfg.WeatherForecastDays,
			RateLimit:    cfg.WeatherRateLimit,
			MaxRetries:   cfg.WeatherMaxRetries,
		}, logger, metrics)
		cached := openmeteo.NewCachedSource(client, openmeteo.CacheOptions{
			Dir:        cfg.CacheDir,
			TTL:        cfg.CacheTTL,
			MaxEntries: cfg.CacheSize,
			// Each attempt is bounded by WEATHER_TIMEOUT.
			FetchTimeout: cfg.WeatherTimeout * time.Duration(cfg.WeatherMaxRetries+1),
		}, logger, metrics)
		source, archive = cached, cached
	}

	return &stack{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		source:  source,
		archive: archive,
		engine:  features.NewEngine(features.DefaultConfig(), logger),
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
