// Package openmeteo fetches hourly weather from the Open-Meteo forecast and
// archive APIs and converts responses into domain series.
package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/observability"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Endpoint kinds, used as metric labels and cache key suffixes.
const (
	KindForecast = "forecast"
	KindArchive  = "archive"
)

// Options configures a Client.
type Options struct {
	ForecastURL  string
	ArchiveURL   string
	Timeout      time.Duration
	PastDays     int
	ForecastDays int
	RateLimit    float64
	MaxRetries   int
}

// Query identifies one upstream request.
type Query struct {
	Kind      string
	Latitude  float64
	Longitude float64
	Start     domain.Date
	End       domain.Date
}

// Key is the cache identity of q.
func (q Query) Key() string {
	key := fmt.Sprintf("%.4f_%.4f_%s", q.Latitude, q.Longitude, q.Kind)
	if q.Kind == KindArchive {
		key += "_" + q.Start.String() + "_" + q.End.String()
	}
	return key
}

// Client implements domain.WeatherSource using the Open-Meteo API.
type Client struct {
	httpClient   *http.Client
	forecastURL  string
	archiveURL   string
	pastDays     int
	forecastDays int
	maxRetries   int
	minWait      time.Duration
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewClient creates an Open-Meteo client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = max(1, int(opts.RateLimit))
	}
	return &Client{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		forecastURL:  opts.ForecastURL,
		archiveURL:   opts.ArchiveURL,
		pastDays:     opts.PastDays,
		forecastDays: opts.ForecastDays,
		maxRetries:   opts.MaxRetries,
		minWait:      250 * time.Millisecond,
		limiter:      rate.NewLimiter(limit, burst),
		breaker:      newBreaker("open-meteo", logger),
		logger:       logger,
		metrics:      metrics,
	}
}

func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// FetchForecast implements domain.WeatherSource.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) (*domain.Series, domain.LocationMeta, error) {
	body, err := c.Fetch(ctx, Query{Kind: KindForecast, Latitude: lat, Longitude: lon})
	if err != nil {
		return nil, domain.LocationMeta{}, err
	}
	return Parse(body)
}

// FetchArchive returns observed hourly weather between start and end inclusive.
func (c *Client) FetchArchive(ctx context.Context, lat, lon float64, start, end domain.Date) (*domain.Series, domain.LocationMeta, error) {
	body, err := c.Fetch(ctx, Query{Kind: KindArchive, Latitude: lat, Longitude: lon, Start: start, End: end})
	if err != nil {
		return nil, domain.LocationMeta{}, err
	}
	return Parse(body)
}

// Fetch performs q and returns the raw response body. Every failure is a
// weather-unavailable error.
func (c *Client) Fetch(ctx context.Context, q Query) ([]byte, error) {
	u, err := c.buildURL(q)
	if err != nil {
		return nil, domain.WeatherError("weather data unavailable", err)
	}

	start := time.Now()
	body, err := c.doWithRetry(ctx, u)
	c.metrics.WeatherAPIDuration.WithLabelValues(q.Kind).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues(q.Kind, "error").Inc()
		c.logger.Warn("weather request failed", "endpoint", q.Kind, "lat", q.Latitude, "lon", q.Longitude, "error", err)
		return nil, domain.WeatherError("weather data unavailable", err)
	}
	c.metrics.WeatherRequests.WithLabelValues(q.Kind, "success").Inc()
	return body, nil
}

func (c *Client) buildURL(q Query) (string, error) {
	params := url.Values{
		"latitude":  {strconv.FormatFloat(q.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(q.Longitude, 'f', -1, 64)},
		"hourly":    {strings.Join(domain.HourlyParameters, ",")},
		"timezone":  {"auto"},
	}
	switch q.Kind {
	case KindForecast:
		params.Set("past_days", strconv.Itoa(c.pastDays))
		params.Set("forecast_days", strconv.Itoa(c.forecastDays))
		return c.forecastURL + "?" + params.Encode(), nil
	case KindArchive:
		if q.End.Before(q.Start) {
			return "", fmt.Errorf("archive range ends %s before it starts %s", q.End, q.Start)
		}
		params.Set("start_date", q.Start.String())
		params.Set("end_date", q.End.String())
		return c.archiveURL + "?" + params.Encode(), nil
	default:
		return "", fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

func (c *Client) doWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.minWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.doRequest(ctx, fullURL)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
		c.logger.Debug("retrying weather request", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("weather request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("open-meteo API error: status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF)
}
