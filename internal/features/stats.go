package features

import "math"

// summary holds NaN-skipping statistics over a slice.
type summary struct {
	n    int
	sum  float64
	min  float64
	max  float64
	mean float64
	std  float64
}

func summarize(vals []float64) summary {
	s := summary{min: math.Inf(1), max: math.Inf(-1)}
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		s.n++
		s.sum += v
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	}
	if s.n == 0 {
		s.mean, s.min, s.max, s.std = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.mean = s.sum / float64(s.n)
	if s.n < 2 {
		s.std = math.NaN()
		return s
	}
	var sq float64
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		d := v - s.mean
		sq += d * d
	}
	s.std = math.Sqrt(sq / float64(s.n-1))
	return s
}

// pick returns the statistic for fn. emptySum is returned for AggSum when
// every input was NaN.
func (s summary) pick(fn AggFunc, emptySum float64) float64 {
	switch fn {
	case AggMean:
		return s.mean
	case AggMin:
		return s.min
	case AggMax:
		return s.max
	case AggStd:
		return s.std
	case AggSum:
		if s.n == 0 {
			return emptySum
		}
		return s.sum
	default:
		return math.NaN()
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// fillMissing resolves NaN in place: backward fill, then forward fill,
// then zero.
func fillMissing(vals []float64) {
	next := math.NaN()
	for i := len(vals) - 1; i >= 0; i-- {
		if math.IsNaN(vals[i]) {
			vals[i] = next
		} else {
			next = vals[i]
		}
	}
	prev := math.NaN()
	for i := range vals {
		if math.IsNaN(vals[i]) {
			vals[i] = prev
		} else {
			prev = vals[i]
		}
	}
	for i := range vals {
		if math.IsNaN(vals[i]) {
			vals[i] = 0
		}
	}
}
