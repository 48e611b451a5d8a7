package domain

import "context"

// Hourly weather variable names. They match the Open-Meteo hourly parameter
// names so an upstream response can be loaded without renaming.
const (
	VarTemperature     = "temperature_2m"
	VarTemperature80m  = "temperature_80m"
	VarHumidity        = "relative_humidity_2m"
	VarDewPoint        = "dew_point_2m"
	VarPrecipitation   = "precipitation"
	VarWindSpeed       = "wind_speed_10m"
	VarWindGusts       = "wind_gusts_10m"
	VarPressure        = "pressure_msl"
	VarCloudCover      = "cloud_cover"
	VarSoilTemperature = "soil_temperature_0cm"
	VarSoilTemp6cm     = "soil_temperature_6cm"
	VarSoilMoisture    = "soil_moisture_0_to_1cm"
	VarET              = "evapotranspiration"
	VarVPD             = "vapour_pressure_deficit"
	VarIsDay           = "is_day"
)

// HourlyParameters is the full hourly parameter set requested from the
// weather provider, in request order.
var HourlyParameters = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"dew_point_2m",
	"apparent_temperature",
	"precipitation_probability",
	"precipitation",
	"rain",
	"showers",
	"snowfall",
	"weather_code",
	"pressure_msl",
	"surface_pressure",
	"cloud_cover",
	"cloud_cover_low",
	"cloud_cover_mid",
	"cloud_cover_high",
	"visibility",
	"evapotranspiration",
	"et0_fao_evapotranspiration",
	"vapour_pressure_deficit",
	"wind_speed_10m",
	"wind_speed_80m",
	"wind_direction_10m",
	"wind_direction_80m",
	"wind_gusts_10m",
	"temperature_80m",
	"soil_temperature_0cm",
	"soil_temperature_6cm",
	"soil_temperature_18cm",
	"soil_temperature_54cm",
	"soil_moisture_0_to_1cm",
	"soil_moisture_1_to_3cm",
	"soil_moisture_3_to_9cm",
	"soil_moisture_9_to_27cm",
	"soil_moisture_27_to_81cm",
	"is_day",
	"sunshine_duration",
	"shortwave_radiation",
	"direct_radiation",
	"diffuse_radiation",
	"uv_index",
	"cape",
	"freezing_level_height",
}

// LocationMeta is passed through from the weather provider to the report.
type LocationMeta struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	Timezone  string  `json:"timezone"`
}

// WeatherSource supplies hourly weather for a point.
type WeatherSource interface {
	FetchForecast(ctx context.Context, lat, lon float64) (*Series, LocationMeta, error)
}
