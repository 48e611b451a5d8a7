package features

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Engine turns an hourly weather series into a daily feature frame. It holds
// no per-request state and is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates a feature engine for cfg.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Config returns the engine's feature configuration.
func (e *Engine) Config() Config { return e.cfg }

// Engineer builds the daily feature frame for s. Features whose inputs are
// absent from s are omitted. The returned frame contains no NaN values.
func (e *Engine) Engineer(s *domain.Series) (*domain.Frame, error) {
	if s == nil {
		return nil, domain.FeatureError("feature computation failed", fmt.Errorf("series is nil"))
	}
	if err := s.Validate(); err != nil {
		return nil, domain.FeatureError("feature computation failed", err)
	}

	hourly := e.hourlyColumns(s)
	spans := daySpans(s.Times())

	daily := aggregateDaily(hourly, spans, e.cfg.DailyFuncs)
	daily = append(daily, dayOverDayDeltas(daily)...)
	for i := range daily {
		fillMissing(daily[i].Values)
	}

	dates := make([]domain.Date, len(spans))
	for i, sp := range spans {
		dates[i] = sp.date
	}
	frame, err := domain.NewFrame(dates, daily)
	if err != nil {
		return nil, domain.FeatureError("feature computation failed", err)
	}

	e.logger.Debug("features engineered",
		"hours", s.Len(),
		"days", frame.Len(),
		"hourly_columns", len(hourly),
		"features", frame.Width(),
	)
	return frame, nil
}

// hourlyColumns generates every hourly block in a fixed order: raw, rolling,
// lag, delta, interaction, disease.
func (e *Engine) hourlyColumns(s *domain.Series) []hourlyColumn {
	var out []hourlyColumn
	for _, name := range s.Columns() {
		v, _ := s.Column(name)
		out = append(out, hourlyColumn{name: name, category: domain.CategoryBase, values: v})
	}

	rolling := perVariable(s, e.cfg.RollingVariables, func(name string, x []float64) []hourlyColumn {
		return rollingColumns(name, x, e.cfg.RollingWindows, e.cfg.RollingFuncs)
	})
	lags := perVariable(s, e.cfg.LagVariables, func(name string, x []float64) []hourlyColumn {
		return lagColumns(name, x, e.cfg.LagPeriods)
	})
	deltas := perVariable(s, e.cfg.LagVariables, func(name string, x []float64) []hourlyColumn {
		return deltaColumns(name, x, e.cfg.DeltaPeriods)
	})

	out = append(out, rolling...)
	out = append(out, lags...)
	out = append(out, deltas...)
	out = append(out, derive(s, interactionFeatures, domain.CategoryInteraction)...)
	out = append(out, derive(s, diseaseFeatures, domain.CategoryDisease)...)
	return out
}

// perVariable runs gen for each present variable in parallel and returns the
// results concatenated in variable order.
func perVariable(s *domain.Series, variables []string, gen func(name string, x []float64) []hourlyColumn) []hourlyColumn {
	results := make([][]hourlyColumn, len(variables))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range variables {
		x, ok := s.Column(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			results[i] = gen(name, x)
			return nil
		})
	}
	_ = g.Wait()

	var out []hourlyColumn
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// daySpan is the half-open hourly row range [start, end) for one date.
type daySpan struct {
	date       domain.Date
	start, end int
}

func daySpans(times []time.Time) []daySpan {
	var spans []daySpan
	for i, t := range times {
		d := domain.DateOf(t)
		if n := len(spans); n > 0 && spans[n-1].date == d {
			spans[n-1].end = i + 1
			continue
		}
		spans = append(spans, daySpan{date: d, start: i, end: i + 1})
	}
	return spans
}

// aggregateDaily reduces each hourly column to one value per day for every
// function in funcs. NaN hours are skipped; a day with no observations has
// NaN statistics and a zero sum.
func aggregateDaily(hourly []hourlyColumn, spans []daySpan, funcs []AggFunc) []domain.FeatureColumn {
	out := make([]domain.FeatureColumn, len(hourly)*len(funcs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c, col := range hourly {
		g.Go(func() error {
			stats := make([][]float64, len(funcs))
			for k := range stats {
				stats[k] = make([]float64, len(spans))
			}
			for d, sp := range spans {
				s := summarize(col.values[sp.start:sp.end])
				for k, fn := range funcs {
					stats[k][d] = s.pick(fn, 0)
				}
			}
			for k, fn := range funcs {
				out[c*len(funcs)+k] = domain.FeatureColumn{
					Name:     fmt.Sprintf("%s_daily_%s", col.name, fn),
					Category: col.category,
					Values:   stats[k],
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// dayOverDayDeltas derives today-minus-yesterday for every daily mean column.
func dayOverDayDeltas(daily []domain.FeatureColumn) []domain.FeatureColumn {
	suffix := "_daily_" + string(AggMean)
	var out []domain.FeatureColumn
	for _, col := range daily {
		if !strings.HasSuffix(col.Name, suffix) {
			continue
		}
		v := nanSlice(len(col.Values))
		for i := 1; i < len(v); i++ {
			v[i] = col.Values[i] - col.Values[i-1]
		}
		out = append(out, domain.FeatureColumn{
			Name:     col.Name + "_delta",
			Category: domain.CategoryDelta,
			Values:   v,
		})
	}
	return out
}
