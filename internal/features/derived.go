package features

import (
	"math"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// derivation declares one row-wise hourly feature: its name, the columns it
// reads, and how to compute row i from those columns (in inputs order). A
// derivation runs only when every input is present.
type derivation struct {
	name    string
	inputs  []string
	compute func(in [][]float64, i int) float64
}

const (
	temp     = domain.VarTemperature
	temp80   = domain.VarTemperature80m
	rh       = domain.VarHumidity
	dew      = domain.VarDewPoint
	precip   = domain.VarPrecipitation
	wind     = domain.VarWindSpeed
	pressure = domain.VarPressure
	cloud    = domain.VarCloudCover
	soilTemp = domain.VarSoilTemperature
	soil6cm  = domain.VarSoilTemp6cm
	soilMois = domain.VarSoilMoisture
	et       = domain.VarET
	isDay    = domain.VarIsDay
)

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func between(v, lo, hi float64) bool { return v >= lo && v <= hi }

// SaturationVaporPressure is the Magnus approximation in kPa for t in °C.
func SaturationVaporPressure(t float64) float64 {
	return 0.6108 * math.Exp(17.27*t/(t+237.3))
}

// VaporPressureDeficit in kPa for temperature t (°C) and relative humidity (%).
func VaporPressureDeficit(t, humidity float64) float64 {
	svp := SaturationVaporPressure(t)
	return svp - svp*humidity/100
}

// one builds a derivation over a single input.
func one(name, input string, f func(v float64) float64) derivation {
	return derivation{name: name, inputs: []string{input}, compute: func(in [][]float64, i int) float64 {
		return f(in[0][i])
	}}
}

// two builds a derivation over a pair of inputs.
func two(name, a, b string, f func(x, y float64) float64) derivation {
	return derivation{name: name, inputs: []string{a, b}, compute: func(in [][]float64, i int) float64 {
		return f(in[0][i], in[1][i])
	}}
}

// trailingSum sums the non-NaN values of x over the window ending at i.
func trailingSum(x []float64, i, window int) float64 {
	return summarize(x[max(0, i-window+1):i+1]).pick(AggSum, math.NaN())
}

func pressureChange(in [][]float64, i int) float64 {
	if i == 0 {
		return math.NaN()
	}
	return in[0][i] - in[0][i-1]
}

var interactionFeatures = []derivation{
	two("temp_humidity_product", temp, rh, func(t, h float64) float64 { return t * h }),
	two("temp_humidity_ratio", temp, rh, func(t, h float64) float64 { return t / (h + 1) }),
	two("precip_wind_product", precip, wind, func(p, w float64) float64 { return p * w }),
	two("temp_cloud_product", temp, cloud, func(t, c float64) float64 { return t * c }),
	two("humidity_cloud_product", rh, cloud, func(h, c float64) float64 { return h * c }),
	two("soil_moist_temp_product", soilMois, soilTemp, func(m, t float64) float64 { return m * t }),
	two("wind_humidity_ratio", wind, rh, func(w, h float64) float64 { return w / (h + 1) }),
	two("precip_humidity_product", precip, rh, func(p, h float64) float64 { return p * h }),
	two("temp_range_vertical", temp, temp80, func(a, b float64) float64 { return math.Abs(a - b) }),
	two("soil_temp_gradient", soilTemp, soil6cm, func(a, b float64) float64 { return a - b }),
	two("pressure_wind_interaction", pressure, wind, func(p, w float64) float64 { return p * w }),
}

var diseaseFeatures = []derivation{
	// Leaf wetness.
	one("leaf_wetness_indicator", rh, func(h float64) float64 { return flag(h > 85) }),
	two("leaf_wetness_from_rain", rh, precip, func(_, p float64) float64 { return flag(p > 0) }),
	two("leaf_wetness_combined", rh, precip, func(h, p float64) float64 { return flag(h > 85 || p > 0) }),

	// Vapour pressure deficit.
	two("vpd_calculated", temp, rh, VaporPressureDeficit),
	two("vpd_low", temp, rh, func(t, h float64) float64 { return flag(VaporPressureDeficit(t, h) < 0.5) }),
	two("vpd_optimal", temp, rh, func(t, h float64) float64 { return flag(between(VaporPressureDeficit(t, h), 0.5, 1.5)) }),
	two("vpd_high", temp, rh, func(t, h float64) float64 { return flag(VaporPressureDeficit(t, h) > 1.5) }),

	// Temperature bands by pathogen group.
	one("temp_range_cold", temp, func(t float64) float64 { return flag(between(t, 5, 15)) }),
	one("temp_range_cool", temp, func(t float64) float64 { return flag(t > 15 && t <= 20) }),
	one("temp_range_warm", temp, func(t float64) float64 { return flag(t > 20 && t <= 25) }),
	one("temp_range_hot", temp, func(t float64) float64 { return flag(t > 25 && t <= 30) }),
	one("temp_extreme_cold", temp, func(t float64) float64 { return flag(t < 5) }),
	one("temp_extreme_hot", temp, func(t float64) float64 { return flag(t > 30) }),
	two("temp_gradient_vertical", temp, temp80, func(a, b float64) float64 { return a - b }),

	// Humidity bands.
	one("humidity_very_high", rh, func(h float64) float64 { return flag(h > 90) }),
	one("humidity_high", rh, func(h float64) float64 { return flag(h > 80 && h <= 90) }),
	one("humidity_moderate", rh, func(h float64) float64 { return flag(between(h, 60, 80)) }),
	one("humidity_low", rh, func(h float64) float64 { return flag(h < 60) }),
	one("high_humidity_hours", rh, func(h float64) float64 { return flag(h > 85) }),

	// Precipitation.
	one("has_precipitation", precip, func(p float64) float64 { return flag(p > 0) }),
	one("light_rain", precip, func(p float64) float64 { return flag(p > 0 && p <= 2) }),
	one("moderate_rain", precip, func(p float64) float64 { return flag(p > 2 && p <= 10) }),
	one("heavy_rain", precip, func(p float64) float64 { return flag(p > 10) }),
	{name: "precip_sum_24h", inputs: []string{precip}, compute: func(in [][]float64, i int) float64 { return trailingSum(in[0], i, 24) }},
	{name: "precip_sum_48h", inputs: []string{precip}, compute: func(in [][]float64, i int) float64 { return trailingSum(in[0], i, 48) }},
	{name: "precip_sum_72h", inputs: []string{precip}, compute: func(in [][]float64, i int) float64 { return trailingSum(in[0], i, 72) }},
	one("wet_hour", precip, func(p float64) float64 { return flag(p > 0) }),
	two("drying_conditions", precip, rh, func(p, h float64) float64 { return flag(p == 0 && h < 70) }),

	// Wind and spore dispersal.
	one("wind_calm", wind, func(w float64) float64 { return flag(w < 5) }),
	one("wind_light", wind, func(w float64) float64 { return flag(w >= 5 && w < 15) }),
	one("wind_moderate", wind, func(w float64) float64 { return flag(w >= 15 && w < 25) }),
	one("wind_strong", wind, func(w float64) float64 { return flag(w >= 25) }),
	two("wind_driven_rain", wind, precip, func(w, p float64) float64 { return flag(w > 10 && p > 0) }),

	// Cloud cover.
	one("overcast", cloud, func(c float64) float64 { return flag(c > 80) }),
	one("partly_cloudy", cloud, func(c float64) float64 { return flag(between(c, 40, 80)) }),
	one("clear_sky", cloud, func(c float64) float64 { return flag(c < 40) }),
	two("overcast_humid", cloud, rh, func(c, h float64) float64 { return flag(c > 80 && h > 80) }),

	// Soil.
	one("soil_very_wet", soilMois, func(m float64) float64 { return flag(m > 0.4) }),
	one("soil_moist", soilMois, func(m float64) float64 { return flag(between(m, 0.2, 0.4)) }),
	one("soil_dry", soilMois, func(m float64) float64 { return flag(m < 0.2) }),
	two("soil_warm_wet", soilMois, soilTemp, func(m, t float64) float64 { return flag(t > 20 && m > 0.3) }),
	two("soil_cool_wet", soilMois, soilTemp, func(m, t float64) float64 { return flag(t < 20 && m > 0.3) }),

	// Pressure trend from the hour-to-hour change. The first hour has no
	// change and sets none of the flags.
	{name: "pressure_falling", inputs: []string{pressure}, compute: func(in [][]float64, i int) float64 { return flag(pressureChange(in, i) < -1) }},
	{name: "pressure_rising", inputs: []string{pressure}, compute: func(in [][]float64, i int) float64 { return flag(pressureChange(in, i) > 1) }},
	{name: "pressure_stable", inputs: []string{pressure}, compute: func(in [][]float64, i int) float64 { return flag(math.Abs(pressureChange(in, i)) <= 1) }},

	// Dew point.
	two("dew_point_depression", dew, temp, func(d, t float64) float64 { return t - d }),
	two("near_saturation", dew, temp, func(d, t float64) float64 { return flag(t-d < 2) }),

	// Composite disease envelopes.
	{name: "late_blight_conditions", inputs: []string{temp, rh, precip}, compute: func(in [][]float64, i int) float64 {
		return flag(between(in[0][i], 10, 25) && in[1][i] > 85)
	}},
	two("powdery_mildew_conditions", temp, rh, func(t, h float64) float64 { return flag(between(t, 18, 28) && between(h, 40, 85)) }),
	two("rust_conditions", temp, rh, func(t, h float64) float64 { return flag(between(t, 15, 25) && h > 80) }),
	two("botrytis_conditions", temp, rh, func(t, h float64) float64 { return flag(between(t, 15, 23) && h > 90) }),

	// Evapotranspiration.
	one("et_low", et, func(e float64) float64 { return flag(e < 1) }),
	one("et_moderate", et, func(e float64) float64 { return flag(e >= 1 && e < 3) }),
	one("et_high", et, func(e float64) float64 { return flag(e >= 3) }),
	two("low_et_high_humidity", et, rh, func(e, h float64) float64 { return flag(e < 1 && h > 80) }),

	two("night_high_humidity", isDay, rh, func(d, h float64) float64 { return flag(d == 0 && h > 85) }),

	one("freezing", temp, func(t float64) float64 { return flag(t <= 0) }),
	one("near_freezing", temp, func(t float64) float64 { return flag(t > 0 && t < 5) }),
}

// derive evaluates every derivation whose inputs are present in s.
func derive(s *domain.Series, table []derivation, category domain.FeatureCategory) []hourlyColumn {
	var out []hourlyColumn
	for _, d := range table {
		if !s.Has(d.inputs...) {
			continue
		}
		in := make([][]float64, len(d.inputs))
		for k, name := range d.inputs {
			in[k], _ = s.Column(name)
		}
		vals := make([]float64, s.Len())
		for i := range vals {
			vals[i] = d.compute(in, i)
		}
		out = append(out, hourlyColumn{name: d.name, category: category, values: vals})
	}
	return out
}
