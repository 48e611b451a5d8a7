package features

import "github.com/couchcryptid/disease-risk-service/internal/domain"

// AggFunc names a window or daily aggregation.
type AggFunc string

const (
	AggMean AggFunc = "mean"
	AggMin  AggFunc = "min"
	AggMax  AggFunc = "max"
	AggStd  AggFunc = "std"
	AggSum  AggFunc = "sum"
)

// Config fixes the shape of the feature space. Models are trained against
// the columns a given Config produces, so it is not read from the
// environment.
type Config struct {
	RollingWindows   []int
	RollingFuncs     []AggFunc
	RollingVariables []string
	LagPeriods       []int
	DeltaPeriods     []int
	LagVariables     []string
	DailyFuncs       []AggFunc
}

// DefaultConfig returns the production feature configuration.
func DefaultConfig() Config {
	rolling := []string{
		domain.VarTemperature,
		domain.VarHumidity,
		domain.VarPrecipitation,
		domain.VarWindSpeed,
		domain.VarSoilTemperature,
		domain.VarCloudCover,
		domain.VarPressure,
	}
	lagged := append(append([]string{}, rolling...),
		domain.VarDewPoint,
		domain.VarSoilMoisture,
		domain.VarET,
		domain.VarVPD,
		domain.VarWindGusts,
	)
	all := []AggFunc{AggMean, AggMin, AggMax, AggStd, AggSum}
	return Config{
		RollingWindows:   []int{3, 6, 12, 24, 48, 72},
		RollingFuncs:     all,
		RollingVariables: rolling,
		LagPeriods:       []int{1, 3, 6, 12, 24, 48, 72},
		DeltaPeriods:     []int{1, 3, 6, 12, 24},
		LagVariables:     lagged,
		DailyFuncs:       all,
	}
}
