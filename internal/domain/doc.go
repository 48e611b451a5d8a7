// Package domain holds the types shared by the disease-risk pipeline.
//
// # Data Flow
//
// A prediction request moves through four stages:
//
//	Series (hourly weather)  →  Frame (daily features)
//	Frame + lead days        →  LeadDayFeatureMap (one row per lead day)
//	LeadDayFeatureMap        →  PredictionResult per lead day
//	results + summaries      →  RiskReport
//
// # Hourly Series
//
// Series columns are keyed by Open-Meteo hourly parameter names
// (temperature_2m, relative_humidity_2m, ...). Units follow the provider:
// °C, %, mm, km/h, hPa, m³/m³ for soil moisture and mm for
// evapotranspiration. Missing observations are NaN. The index is
// strictly hourly in a fixed zone derived from the provider's UTC offset,
// so daylight-saving transitions never create gaps or duplicate hours.
//
// # Daily Frame
//
// Frame rows are calendar dates in the series' zone. Columns carry a
// FeatureCategory so statistics can be reported without parsing names.
// A Frame never contains NaN once it leaves the feature engine.
//
// # Lead Days
//
// A lead day D targets today + D, where "today" comes from the package
// clock in the series' zone. Valid lead days are 1 through 7.
//
// # Errors
//
// Failures that reach callers are *Error values classified by ErrorKind,
// which maps to an HTTP status. Anything unclassified is internal.
package domain
