package domain

import "fmt"

// FeatureCategory groups engineered columns for statistics and explanation.
type FeatureCategory string

const (
	CategoryBase        FeatureCategory = "base"
	CategoryRolling     FeatureCategory = "rolling"
	CategoryLag         FeatureCategory = "lag"
	CategoryDelta       FeatureCategory = "delta"
	CategoryInteraction FeatureCategory = "interaction"
	CategoryDisease     FeatureCategory = "disease"
)

// FeatureCategories lists every category in reporting order.
var FeatureCategories = []FeatureCategory{
	CategoryRolling,
	CategoryLag,
	CategoryDelta,
	CategoryInteraction,
	CategoryDisease,
	CategoryBase,
}

// FeatureColumn is one named column of a Frame.
type FeatureColumn struct {
	Name     string
	Category FeatureCategory
	Values   []float64
}

// Frame is the daily feature table: one row per calendar date and one column
// per engineered feature. It is read-only once returned by the feature engine.
type Frame struct {
	dates   []Date
	columns []FeatureColumn
	names   []string
	index   map[Date]int
}

// NewFrame builds a Frame. Every column must have one value per date and
// column names must be unique.
func NewFrame(dates []Date, columns []FeatureColumn) (*Frame, error) {
	f := &Frame{
		dates:   dates,
		columns: columns,
		names:   make([]string, len(columns)),
		index:   make(map[Date]int, len(dates)),
	}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if len(c.Values) != len(dates) {
			return nil, fmt.Errorf("feature %s has %d rows, want %d", c.Name, len(c.Values), len(dates))
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate feature %s", c.Name)
		}
		seen[c.Name] = struct{}{}
		f.names[i] = c.Name
	}
	for i, d := range dates {
		f.index[d] = i
	}
	return f, nil
}

// Dates returns the row index in chronological order.
func (f *Frame) Dates() []Date { return f.dates }

// Columns returns every column in generation order.
func (f *Frame) Columns() []FeatureColumn { return f.columns }

// Names returns column names in generation order.
func (f *Frame) Names() []string { return f.names }

// Len returns the number of daily rows.
func (f *Frame) Len() int { return len(f.dates) }

// Width returns the number of feature columns.
func (f *Frame) Width() int { return len(f.columns) }

// RowIndex returns the row position for d.
func (f *Frame) RowIndex(d Date) (int, bool) {
	i, ok := f.index[d]
	return i, ok
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) FeatureRow {
	values := make([]float64, len(f.columns))
	for j, c := range f.columns {
		values[j] = c.Values[i]
	}
	return FeatureRow{Date: f.dates[i], Names: f.names, Values: values}
}

// FeatureRow is a single daily slice of a Frame. Names is shared with the
// frame and must not be modified.
type FeatureRow struct {
	Date   Date
	Names  []string
	Values []float64
}

// Lookup returns a name to value map for the row.
func (r FeatureRow) Lookup() (map[string]float64, error) {
	if len(r.Names) != len(r.Values) {
		return nil, fmt.Errorf("feature row has %d names and %d values", len(r.Names), len(r.Values))
	}
	m := make(map[string]float64, len(r.Names))
	for i, n := range r.Names {
		m[n] = r.Values[i]
	}
	return m, nil
}

// LeadDayFeatureMap maps a lead day (1..7) to the row chosen for it.
type LeadDayFeatureMap map[int]FeatureRow
