// Package stats provides the summary statistics used by the aggregate reports.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary is a five-number summary plus the mean.
type Summary struct {
	N      int     `json:"n"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Summarize computes the summary of values. Quartiles and the median
// interpolate linearly between the closest ranks. An empty input yields a
// zero summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Summary{
		N:      len(sorted),
		Min:    sorted[0],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Mean:   stat.Mean(sorted, nil),
		Q3:     quantile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// quantile interpolates at rank (n-1)p of an ascending, non-empty slice.
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// SummarizeInts is Summarize over integer samples.
func SummarizeInts(values []int) Summary {
	f := make([]float64, len(values))
	for i, v := range values {
		f[i] = float64(v)
	}
	return Summarize(f)
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}
