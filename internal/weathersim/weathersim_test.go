package weathersim

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	start := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	s := Generate(Options{Start: start, Hours: 72, Seed: 7})

	require.NoError(t, s.Validate())
	assert.Equal(t, 72, s.Len())
	assert.Len(t, s.Columns(), 15)

	temp, ok := s.Column(domain.VarTemperature)
	require.True(t, ok)
	for _, v := range temp {
		assert.GreaterOrEqual(t, v, 15.0)
		assert.LessOrEqual(t, v, 30.0)
	}
	rh, _ := s.Column(domain.VarHumidity)
	for _, v := range rh {
		assert.GreaterOrEqual(t, v, 40.0)
		assert.LessOrEqual(t, v, 95.0)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := Options{Start: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), Hours: 48, Seed: 42}
	a, _ := Generate(opts).Column(domain.VarPrecipitation)
	b, _ := Generate(opts).Column(domain.VarPrecipitation)
	assert.Equal(t, a, b)

	opts.Seed = 43
	c, _ := Generate(opts).Column(domain.VarTemperature)
	d, _ := Generate(Options{Start: opts.Start, Hours: 48, Seed: 42}).Column(domain.VarTemperature)
	assert.NotEqual(t, c, d)
}

func TestGenerate_Omit(t *testing.T) {
	s := Generate(Options{
		Start: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
		Hours: 24,
		Omit:  []string{domain.VarSoilMoisture, domain.VarIsDay},
	})
	assert.False(t, s.Has(domain.VarSoilMoisture))
	assert.False(t, s.Has(domain.VarIsDay))
	assert.True(t, s.Has(domain.VarTemperature))
}

func TestSource_FetchForecast(t *testing.T) {
	ist := time.FixedZone("IST", 19800)
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.July, 15, 4, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	src := Source{PastDays: 30, ForecastDays: 7, Seed: 1, Location: ist}
	s, meta, err := src.FetchForecast(context.Background(), 18.52, 73.85)
	require.NoError(t, err)

	assert.Equal(t, 37*24, s.Len())
	assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, ist), s.Times()[0])
	assert.Equal(t, "IST", meta.Timezone)
	assert.InDelta(t, 18.52, meta.Latitude, 0)

	again, _, err := src.FetchForecast(context.Background(), 18.52, 73.85)
	require.NoError(t, err)
	a, _ := s.Column(domain.VarTemperature)
	b, _ := again.Column(domain.VarTemperature)
	assert.Equal(t, a, b)
}

func TestSource_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Source{PastDays: 1, ForecastDays: 1}.FetchForecast(ctx, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
