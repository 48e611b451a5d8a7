package weathersim

import (
	"context"
	"math"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// Source serves generated weather in place of the forecast API. The series
// starts PastDays before the current day and runs ForecastDays past it, the
// same window the forecast endpoint returns.
type Source struct {
	PastDays     int
	ForecastDays int
	Seed         uint64
	// Location is the zone of the generated timestamps. Nil means UTC.
	Location *time.Location
}

// FetchForecast generates a series for the point. The same point and seed
// always yield the same weather.
func (s Source) FetchForecast(ctx context.Context, lat, lon float64) (*domain.Series, domain.LocationMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.LocationMeta{}, err
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	today := domain.Today(loc)
	start := today.AddDays(-s.PastDays).In(loc)

	series := Generate(Options{
		Start: start,
		Hours: (s.PastDays + s.ForecastDays) * 24,
		Seed:  s.Seed ^ math.Float64bits(lat) ^ math.Float64bits(lon)<<1,
	})
	return series, domain.LocationMeta{
		Latitude:  lat,
		Longitude: lon,
		Timezone:  loc.String(),
	}, nil
}
