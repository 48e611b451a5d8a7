package openmeteo

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// Encode renders a series in the Open-Meteo response shape, so fixtures and
// cached bodies share one format. NaN readings become null and the offset is
// taken from the first timestamp.
func Encode(s *domain.Series, meta domain.LocationMeta) ([]byte, error) {
	times := s.Times()
	if len(times) == 0 {
		return nil, errors.New("encode series: series is empty")
	}
	_, offset := times[0].Zone()

	hourly := make(map[string]any, len(s.Columns())+1)
	stamps := make([]string, len(times))
	for i, t := range times {
		stamps[i] = t.Format(timeLayout)
	}
	hourly["time"] = stamps
	for _, name := range s.Columns() {
		vals, _ := s.Column(name)
		readings := make([]*float64, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			readings[i] = &vals[i]
		}
		hourly[name] = readings
	}

	return json.Marshal(map[string]any{
		"latitude":           meta.Latitude,
		"longitude":          meta.Longitude,
		"elevation":          meta.Elevation,
		"timezone":           meta.Timezone,
		"utc_offset_seconds": offset,
		"hourly":             hourly,
	})
}
