package features

import (
	"math"
)

// RollingMean trailing mean over at most window values ending at each index.
// Positions with fewer than minPeriods observations are NaN.
func RollingMean(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		n := i - start + 1
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingStd trailing sample standard deviation (n-1 denominator) over at
// most window values. It is NaN below minPeriods observations and 0 when
// only one observation is present.
func RollingStd(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		n := i - start + 1
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		if n < 2 {
			out[i] = 0
			continue
		}
		w := values[start : i+1]
		mean := 0.0
		for _, v := range w {
			mean += v
		}
		mean /= float64(n)
		ss := 0.0
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}
