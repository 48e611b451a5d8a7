package features

import (
	"fmt"
	"math"

	"github.com/couchcryptid/disease-risk-service/internal/domain"
)

// hourlyColumn is one engineered hourly column before daily aggregation.
type hourlyColumn struct {
	name     string
	category domain.FeatureCategory
	values   []float64
}

// rollingColumns computes trailing-window statistics for one variable. The
// window shrinks at the start of the series (minimum one observation) and
// NaN inputs are skipped.
func rollingColumns(variable string, x []float64, windows []int, funcs []AggFunc) []hourlyColumn {
	out := make([]hourlyColumn, 0, len(windows)*len(funcs))
	for _, w := range windows {
		cols := make([][]float64, len(funcs))
		for k := range cols {
			cols[k] = make([]float64, len(x))
		}
		for i := range x {
			lo := max(0, i-w+1)
			s := summarize(x[lo : i+1])
			for k, fn := range funcs {
				// A window with no observations is undefined, including its sum.
				cols[k][i] = s.pick(fn, math.NaN())
			}
		}
		for k, fn := range funcs {
			out = append(out, hourlyColumn{
				name:     fmt.Sprintf("%s_rolling_%dh_%s", variable, w, fn),
				category: domain.CategoryRolling,
				values:   cols[k],
			})
		}
	}
	return out
}

// lagColumns shifts x forward by each period; the first n rows are NaN.
func lagColumns(variable string, x []float64, periods []int) []hourlyColumn {
	out := make([]hourlyColumn, 0, len(periods))
	for _, n := range periods {
		v := nanSlice(len(x))
		for i := n; i < len(x); i++ {
			v[i] = x[i-n]
		}
		out = append(out, hourlyColumn{
			name:     fmt.Sprintf("%s_lag_%dh", variable, n),
			category: domain.CategoryLag,
			values:   v,
		})
	}
	return out
}

// deltaColumns is x[i] - x[i-n]; the first n rows are NaN.
func deltaColumns(variable string, x []float64, periods []int) []hourlyColumn {
	out := make([]hourlyColumn, 0, len(periods))
	for _, n := range periods {
		v := nanSlice(len(x))
		for i := n; i < len(x); i++ {
			v[i] = x[i] - x[i-n]
		}
		out = append(out, hourlyColumn{
			name:     fmt.Sprintf("%s_delta_%dh", variable, n),
			category: domain.CategoryDelta,
			values:   v,
		})
	}
	return out
}
