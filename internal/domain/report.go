package domain

// RiskReport is the response for one prediction request.
type RiskReport struct {
	Status            string                      `json:"status"`
	Location          LocationMeta                `json:"location"`
	Disease           string                      `json:"disease"`
	RiskByDay         []PredictionResult          `json:"risk_by_day"`
	TopFeaturesByDay  map[string][]string         `json:"top_features_by_day"`
	FailedDays        map[string]string           `json:"failed_days,omitempty"`
	WeatherSummary    WeatherSummary              `json:"weather_summary"`
	WeatherParameters map[string]map[string]Stats `json:"weather_parameters"`
	FeatureStatistics FeatureStatistics           `json:"feature_statistics"`
	Timestamp         string                      `json:"timestamp"`
}

// WeatherSummary condenses the most recent week of hourly weather. Absent
// variables leave their fields nil.
type WeatherSummary struct {
	TemperatureMean    *float64 `json:"temperature_mean,omitempty"`
	TemperatureMin     *float64 `json:"temperature_min,omitempty"`
	TemperatureMax     *float64 `json:"temperature_max,omitempty"`
	HumidityMean       *float64 `json:"humidity_mean,omitempty"`
	PrecipitationTotal *float64 `json:"precipitation_total,omitempty"`
	WindSpeedMean      *float64 `json:"wind_speed_mean,omitempty"`
	WindSpeedMax       *float64 `json:"wind_speed_max,omitempty"`
}

// Stats describes one hourly parameter over the fetched window.
type Stats struct {
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// FeatureStatistics counts engineered features by category.
type FeatureStatistics struct {
	TotalFeatures int                          `json:"total_features"`
	Categories    map[FeatureCategory]int      `json:"feature_categories"`
	Samples       map[FeatureCategory][]string `json:"sample_features"`
}
