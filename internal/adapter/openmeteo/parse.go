package openmeteo

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

const timeLayout = "2006-01-02T15:04"

// Open-Meteo API response types.

type response struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	Elevation        float64                    `json:"elevation"`
	Timezone         string                     `json:"timezone"`
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
}

// Parse converts an Open-Meteo response body into an hourly series and its
// location metadata. Timestamps are placed in a fixed zone built from the
// response offset, so the index stays strictly hourly across DST changes.
// Null readings become NaN.
func Parse(body []byte) (*domain.Series, domain.LocationMeta, error) {
	series, meta, err := parse(body)
	if err != nil {
		return nil, domain.LocationMeta{}, domain.WeatherError("weather data unavailable", err)
	}
	return series, meta, nil
}

func parse(body []byte) (*domain.Series, domain.LocationMeta, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.LocationMeta{}, fmt.Errorf("decode response: %w", err)
	}
	meta := domain.LocationMeta{
		Latitude:  resp.Latitude,
		Longitude: resp.Longitude,
		Elevation: resp.Elevation,
		Timezone:  resp.Timezone,
	}

	rawTimes, ok := resp.Hourly["time"]
	if !ok {
		return nil, meta, fmt.Errorf("response has no hourly time index")
	}
	var stamps []string
	if err := json.Unmarshal(rawTimes, &stamps); err != nil {
		return nil, meta, fmt.Errorf("decode hourly time: %w", err)
	}

	zoneName := resp.Timezone
	if zoneName == "" {
		zoneName = "UTC"
	}
	loc := time.FixedZone(zoneName, resp.UTCOffsetSeconds)
	times := make([]time.Time, len(stamps))
	for i, s := range stamps {
		t, err := time.ParseInLocation(timeLayout, s, loc)
		if err != nil {
			return nil, meta, fmt.Errorf("parse hourly time %q: %w", s, err)
		}
		times[i] = t
	}

	series := domain.NewSeries(times)
	for _, name := range columnOrder(resp.Hourly) {
		var readings []*float64
		if err := json.Unmarshal(resp.Hourly[name], &readings); err != nil {
			return nil, meta, fmt.Errorf("decode hourly %s: %w", name, err)
		}
		values := make([]float64, len(readings))
		for i, r := range readings {
			if r == nil {
				values[i] = math.NaN()
				continue
			}
			values[i] = *r
		}
		if err := series.Set(name, values); err != nil {
			return nil, meta, err
		}
	}

	if err := series.Validate(); err != nil {
		return nil, meta, err
	}
	return series, meta, nil
}

// columnOrder lists the known parameters in request order, then any extra
// columns sorted by name.
func columnOrder(hourly map[string]json.RawMessage) []string {
	known := make(map[string]struct{}, len(domain.HourlyParameters))
	var order []string
	for _, name := range domain.HourlyParameters {
		known[name] = struct{}{}
		if _, ok := hourly[name]; ok {
			order = append(order, name)
		}
	}
	var extra []string
	for name := range hourly {
		if _, ok := known[name]; ok || name == "time" {
			continue
		}
		extra = append(extra, name)
	}
	slices.Sort(extra)
	return append(order, extra...)
}
