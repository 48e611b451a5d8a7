package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures for callers. Scoring degrades rather than
// failing, so KindScoring is reserved for structurally unusable rows.
type ErrorKind string

const (
	KindInput              ErrorKind = "invalid_input"
	KindWeatherUnavailable ErrorKind = "weather_unavailable"
	KindFeatureComputation ErrorKind = "feature_computation_failed"
	KindScoring            ErrorKind = "prediction_failed"
	KindInternal           ErrorKind = "internal"
)

// HTTPStatus maps the kind to a response status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindWeatherUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func InputError(msg string, err error) *Error {
	return &Error{Kind: KindInput, Message: msg, Err: err}
}

func WeatherError(msg string, err error) *Error {
	return &Error{Kind: KindWeatherUnavailable, Message: msg, Err: err}
}

func FeatureError(msg string, err error) *Error {
	return &Error{Kind: KindFeatureComputation, Message: msg, Err: err}
}

func ScoringError(msg string, err error) *Error {
	return &Error{Kind: KindScoring, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the classified message of err, falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
