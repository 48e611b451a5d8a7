package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MinLeadDay = 1
	MaxLeadDay = 7
)

// DefaultLeadDays is used when a request does not name any lead days.
var DefaultLeadDays = []int{1, 2, 3, 4, 5, 6, 7}

// DiseaseTypes lists the disease labels the service advertises. Labels are
// passed through to the report and do not affect scoring.
var DiseaseTypes = []string{
	"Late Blight",
	"Early Blight",
	"Powdery Mildew",
	"Downy Mildew",
	"Rust",
	"Leaf Spot",
	"Anthracnose",
	"Bacterial Blight",
	"Fusarium Wilt",
	"Verticillium Wilt",
	"Root Rot",
	"Botrytis",
	"Septoria",
	"Alternaria",
	"Cercospora",
	"Bacterial Spot",
	"Mosaic Virus",
}

// PredictionRequest is the caller-facing input to a prediction.
type PredictionRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	LeadDays  LeadDays `json:"lead_days,omitempty"`
	Disease   string   `json:"disease,omitempty"`
}

// LeadDays holds requested lead days as sent. Form posts and some clients
// quote numbers, so each element may be a JSON number or a numeric string.
// Null elements are dropped.
type LeadDays []float64

func (d *LeadDays) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return InputError("lead_days must be a list of numbers", err)
	}
	out := make(LeadDays, 0, len(elems))
	for _, e := range elems {
		v, ok, err := parseLeadDay(e)
		if err != nil {
			return InputError(fmt.Sprintf("lead_days contains %s, which is not a number", e), err)
		}
		if ok {
			out = append(out, v)
		}
	}
	*d = out
	return nil
}

func parseLeadDay(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		return 0, false, nil
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	default:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false, err
		}
		return v, true, nil
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ResolvedRequest is a validated request with normalized lead days.
type ResolvedRequest struct {
	Latitude  float64
	Longitude float64
	LeadDays  []int
	Disease   string
}

// Resolve validates r and normalizes its lead days and disease label.
// All failures are input errors.
func (r PredictionRequest) Resolve() (ResolvedRequest, error) {
	if err := validate.Struct(r); err != nil {
		return ResolvedRequest{}, InputError(describeValidation(err), err)
	}
	days, err := NormalizeLeadDays(r.LeadDays)
	if err != nil {
		return ResolvedRequest{}, err
	}
	disease := strings.TrimSpace(r.Disease)
	if disease == "" {
		disease = "unknown"
	}
	return ResolvedRequest{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		LeadDays:  days,
		Disease:   disease,
	}, nil
}

// NormalizeLeadDays truncates each value to an integer, keeps those in
// [MinLeadDay, MaxLeadDay], and returns them sorted without duplicates.
// An empty input yields DefaultLeadDays; a non-empty input with no usable
// values is an input error.
func NormalizeLeadDays(raw []float64) ([]int, error) {
	if len(raw) == 0 {
		return slices.Clone(DefaultLeadDays), nil
	}
	var days []int
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d := int(v)
		if d < MinLeadDay || d > MaxLeadDay {
			continue
		}
		days = append(days, d)
	}
	slices.Sort(days)
	days = slices.Compact(days)
	if len(days) == 0 {
		return nil, InputError(fmt.Sprintf("no valid lead days provided (must be %d-%d)", MinLeadDay, MaxLeadDay), nil)
	}
	return days, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return fmt.Sprintf("%s out of range (%s %s)", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
