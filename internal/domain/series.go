package domain

import (
	"errors"
	"fmt"
	"time"
)

// Series is an hourly weather table: one timestamp per row and one float64
// column per weather variable. Missing observations are NaN. A Series is
// built by the ingestion adapter and treated as immutable afterwards.
type Series struct {
	times   []time.Time
	columns []string
	values  map[string][]float64
}

// NewSeries creates an empty series over the given hourly timestamps.
func NewSeries(times []time.Time) *Series {
	return &Series{
		times:  times,
		values: make(map[string][]float64),
	}
}

// Set adds or replaces a column. The slice length must match the index length.
func (s *Series) Set(name string, vals []float64) error {
	if len(vals) != len(s.times) {
		return fmt.Errorf("column %s has %d values, want %d", name, len(vals), len(s.times))
	}
	if _, ok := s.values[name]; !ok {
		s.columns = append(s.columns, name)
	}
	s.values[name] = vals
	return nil
}

// Column returns the values for name and whether the column exists.
func (s *Series) Column(name string) ([]float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether every named column is present.
func (s *Series) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := s.values[n]; !ok {
			return false
		}
	}
	return true
}

// Columns returns column names in insertion order.
func (s *Series) Columns() []string {
	return s.columns
}

// Times returns the hourly index.
func (s *Series) Times() []time.Time {
	return s.times
}

// Len returns the number of hourly rows.
func (s *Series) Len() int {
	return len(s.times)
}

// Location returns the zone of the index, or UTC for an empty series.
func (s *Series) Location() *time.Location {
	if len(s.times) == 0 {
		return time.UTC
	}
	return s.times[0].Location()
}

// Tail returns a view over the last n rows. Column slices share storage.
func (s *Series) Tail(n int) *Series {
	if n >= len(s.times) {
		return s
	}
	start := len(s.times) - n
	out := NewSeries(s.times[start:])
	for _, name := range s.columns {
		out.columns = append(out.columns, name)
		out.values[name] = s.values[name][start:]
	}
	return out
}

// Validate checks that the series is non-empty and its index is strictly
// increasing in exact one-hour steps.
func (s *Series) Validate() error {
	if len(s.times) == 0 {
		return errors.New("series is empty")
	}
	for i := 1; i < len(s.times); i++ {
		if step := s.times[i].Sub(s.times[i-1]); step != time.Hour {
			return fmt.Errorf("series index not hourly at row %d: step %s", i, step)
		}
	}
	return nil
}
