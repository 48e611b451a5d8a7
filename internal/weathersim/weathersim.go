// Package weathersim generates deterministic synthetic hourly weather for
// fixtures, demos and tests.
package weathersim

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// Options shapes a generated series.
type Options struct {
	Start time.Time
	Hours int
	Seed  uint64
	// Omit lists variables to leave out of the series.
	Omit []string
}

// Generate returns an hourly series with a diurnal temperature cycle between
// 15 and 30 °C, humidity moving inversely between 40 and 95 %, and mostly dry
// hours with occasional rain spikes.
func Generate(opts Options) *domain.Series {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	times := make([]time.Time, opts.Hours)
	for i := range times {
		times[i] = opts.Start.Add(time.Duration(i) * time.Hour)
	}

	n := opts.Hours
	cols := map[string][]float64{}
	mk := func(name string) []float64 {
		v := make([]float64, n)
		cols[name] = v
		return v
	}
	temp := mk(domain.VarTemperature)
	temp80 := mk(domain.VarTemperature80m)
	rh := mk(domain.VarHumidity)
	dew := mk(domain.VarDewPoint)
	precip := mk(domain.VarPrecipitation)
	wind := mk(domain.VarWindSpeed)
	gusts := mk(domain.VarWindGusts)
	pressure := mk(domain.VarPressure)
	cloud := mk(domain.VarCloudCover)
	soilT := mk(domain.VarSoilTemperature)
	soil6 := mk(domain.VarSoilTemp6cm)
	soilM := mk(domain.VarSoilMoisture)
	et := mk(domain.VarET)
	vpd := mk(domain.VarVPD)
	isDay := mk(domain.VarIsDay)

	moisture := 0.25
	for i := 0; i < n; i++ {
		hour := times[i].Hour()
		phase := 2 * math.Pi * float64(hour-9) / 24
		cycle := math.Sin(phase)

		temp[i] = 22.5 + 7.5*cycle + rng.NormFloat64()*0.3
		temp[i] = math.Max(15, math.Min(30, temp[i]))
		temp80[i] = temp[i] - 0.8 + rng.NormFloat64()*0.2
		rh[i] = math.Max(40, math.Min(95, 67.5-27.5*cycle+rng.NormFloat64()*2))

		if rng.Float64() < 0.05 {
			precip[i] = 0.5 + rng.ExpFloat64()*4
		}
		if precip[i] > 0 {
			rh[i] = math.Max(rh[i], 88)
			moisture = math.Min(0.45, moisture+precip[i]*0.01)
		} else {
			moisture = math.Max(0.12, moisture-0.001)
		}

		dew[i] = temp[i] - (100-rh[i])/5
		wind[i] = math.Max(0, 8+4*cycle+rng.NormFloat64()*2)
		gusts[i] = wind[i] * 1.6
		pressure[i] = 1012 + 3*math.Sin(2*math.Pi*float64(i)/96) + rng.NormFloat64()*0.3
		cloud[i] = math.Max(0, math.Min(100, 50-30*cycle+rng.NormFloat64()*10))
		if precip[i] > 0 {
			cloud[i] = 95
		}
		soilT[i] = temp[i] - 2 + 0.5*cycle
		soil6[i] = soilT[i] - 1.5
		soilM[i] = moisture
		et[i] = math.Max(0, 0.3*cycle+rng.Float64()*0.05)
		vpd[i] = math.Max(0, 0.6108*math.Exp(17.27*temp[i]/(temp[i]+237.3))*(1-rh[i]/100))
		if hour >= 6 && hour < 18 {
			isDay[i] = 1
		}
	}

	omit := make(map[string]bool, len(opts.Omit))
	for _, o := range opts.Omit {
		omit[o] = true
	}
	s := domain.NewSeries(times)
	for _, name := range []string{
		domain.VarTemperature, domain.VarHumidity, domain.VarDewPoint, domain.VarPrecipitation,
		domain.VarPressure, domain.VarCloudCover, domain.VarET, domain.VarVPD,
		domain.VarWindSpeed, domain.VarWindGusts, domain.VarTemperature80m,
		domain.VarSoilTemperature, domain.VarSoilTemp6cm, domain.VarSoilMoisture, domain.VarIsDay,
	} {
		if omit[name] {
			continue
		}
		_ = s.Set(name, cols[name])
	}
	return s
}
