// Package report assembles the response for one prediction request from the
// scored lead days and the weather and feature data behind them.
package report

import (
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
	"github.com/couchcryptid/disease-risk-service/internal/features"
)

// StatusSuccess is the status of every assembled report.
const StatusSuccess = "success"

// summaryHours is the trailing window covered by the weather summary.
const summaryHours = 168

// Input carries everything a report is built from.
type Input struct {
	Location domain.LocationMeta
	Disease  string
	Results  map[int]domain.PredictionResult
	Failed   map[int]error
	Series   *domain.Series
	Frame    *domain.Frame
}

// Assemble builds the report. The weather summary, parameter statistics and
// feature statistics are explanatory: if one cannot be computed it is left
// empty and the failure is logged.
func Assemble(in Input, logger *slog.Logger) domain.RiskReport {
	r := domain.RiskReport{
		Status:            StatusSuccess,
		Location:          in.Location,
		Disease:           in.Disease,
		RiskByDay:         make([]domain.PredictionResult, 0, len(in.Results)),
		TopFeaturesByDay:  make(map[string][]string, len(in.Results)),
		WeatherParameters: map[string]map[string]domain.Stats{},
		Timestamp:         domain.Now().UTC().Format(time.RFC3339),
	}

	days := make([]int, 0, len(in.Results))
	for d := range in.Results {
		days = append(days, d)
	}
	slices.Sort(days)
	for _, d := range days {
		res := in.Results[d]
		r.RiskByDay = append(r.RiskByDay, res)
		r.TopFeaturesByDay[strconv.Itoa(d)] = res.TopFeatures
	}

	if len(in.Failed) > 0 {
		r.FailedDays = make(map[string]string, len(in.Failed))
		for d, err := range in.Failed {
			r.FailedDays[strconv.Itoa(d)] = err.Error()
		}
	}

	if summary, err := WeatherSummary(in.Series); err != nil {
		logger.Warn("weather summary unavailable", "error", err)
	} else {
		r.WeatherSummary = summary
	}
	if params, err := WeatherParameters(in.Series); err != nil {
		logger.Warn("weather parameter statistics unavailable", "error", err)
	} else {
		r.WeatherParameters = params
	}
	r.FeatureStatistics = features.Summarize(in.Frame)
	return r
}

var errNoSeries = errors.New("no weather series")

// WeatherSummary condenses the last week of s. Variables absent from s, or
// with no readings in the window, are left nil.
func WeatherSummary(s *domain.Series) (domain.WeatherSummary, error) {
	if s == nil || s.Len() == 0 {
		return domain.WeatherSummary{}, errNoSeries
	}
	recent := s.Tail(summaryHours)

	var out domain.WeatherSummary
	if st, ok := describe(recent, domain.VarTemperature); ok {
		out.TemperatureMean = round1(st.mean)
		out.TemperatureMin = round1(st.min)
		out.TemperatureMax = round1(st.max)
	}
	if st, ok := describe(recent, domain.VarHumidity); ok {
		out.HumidityMean = round1(st.mean)
	}
	if st, ok := describe(recent, domain.VarPrecipitation); ok {
		out.PrecipitationTotal = round1(st.sum)
	}
	if st, ok := describe(recent, domain.VarWindSpeed); ok {
		out.WindSpeedMean = round1(st.mean)
		out.WindSpeedMax = round1(st.max)
	}
	return out, nil
}

// ParameterCategories groups hourly parameters for the detailed statistics.
var ParameterCategories = []struct {
	Name       string
	Parameters []string
}{
	{"temperature", []string{"temperature_2m", "temperature_80m", "dew_point_2m", "apparent_temperature"}},
	{"humidity", []string{"relative_humidity_2m", "vapour_pressure_deficit"}},
	{"precipitation", []string{"precipitation", "rain", "showers", "snowfall", "precipitation_probability"}},
	{"wind", []string{"wind_speed_10m", "wind_speed_80m", "wind_gusts_10m", "wind_direction_10m", "wind_direction_80m"}},
	{"soil", []string{
		"soil_temperature_0cm", "soil_temperature_6cm", "soil_temperature_18cm", "soil_temperature_54cm",
		"soil_moisture_0_to_1cm", "soil_moisture_1_to_3cm", "soil_moisture_3_to_9cm",
		"soil_moisture_9_to_27cm", "soil_moisture_27_to_81cm",
	}},
	{"pressure", []string{"pressure_msl", "surface_pressure"}},
	{"radiation", []string{"shortwave_radiation", "direct_radiation", "diffuse_radiation", "uv_index", "sunshine_duration"}},
	{"cloud", []string{"cloud_cover", "cloud_cover_low", "cloud_cover_mid", "cloud_cover_high", "visibility"}},
}

// WeatherParameters returns mean, min, max and latest reading of every
// present parameter over the whole series, grouped by category. Categories
// with no present parameter are omitted.
func WeatherParameters(s *domain.Series) (map[string]map[string]domain.Stats, error) {
	if s == nil || s.Len() == 0 {
		return nil, errNoSeries
	}
	out := make(map[string]map[string]domain.Stats, len(ParameterCategories))
	for _, cat := range ParameterCategories {
		for _, p := range cat.Parameters {
			st, ok := describe(s, p)
			if !ok {
				continue
			}
			if out[cat.Name] == nil {
				out[cat.Name] = make(map[string]domain.Stats)
			}
			out[cat.Name][p] = domain.Stats{
				Mean:    round2(st.mean),
				Min:     round2(st.min),
				Max:     round2(st.max),
				Current: round2(st.last),
			}
		}
	}
	return out, nil
}

type columnStats struct {
	n                         int
	sum, mean, min, max, last float64
}

// describe skips NaN readings; ok is false when name is absent or has none.
func describe(s *domain.Series, name string) (columnStats, bool) {
	vals, ok := s.Column(name)
	if !ok {
		return columnStats{}, false
	}
	st := columnStats{min: math.Inf(1), max: math.Inf(-1)}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		st.n++
		st.sum += v
		st.min = math.Min(st.min, v)
		st.max = math.Max(st.max, v)
		st.last = v
	}
	if st.n == 0 {
		return columnStats{}, false
	}
	st.mean = st.sum / float64(st.n)
	return st, true
}

func round1(v float64) *float64 {
	r := math.Round(v*10) / 10
	return &r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
