package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, Summary{N: 4, Min: 1, Q1: 1.75, Median: 2.5, Mean: 2.5, Q3: 3.25, Max: 4}, s)
}

func TestSummarize_Interpolates(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q1     float64
		median float64
		q3     float64
	}{
		{"single", []float64{7}, 7, 7, 7},
		{"pair", []float64{1, 0}, 0.25, 0.5, 0.75},
		{"odd", []float64{5, 1, 3}, 2, 3, 4},
		{"ties", []float64{0, 0, 0, 1, 1, 3}, 0, 0.5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.values)
			assert.InDelta(t, tt.q1, s.Q1, 1e-12, "q1")
			assert.InDelta(t, tt.median, s.Median, 1e-12, "median")
			assert.InDelta(t, tt.q3, s.Q3, 1e-12, "q3")
		})
	}
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Summarize(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestSummarizeInts(t *testing.T) {
	s := SummarizeInts([]int{24, 24, 22, 23, 24})
	assert.Equal(t, 22.0, s.Min)
	assert.Equal(t, 24.0, s.Median)
	assert.InDelta(t, 23.4, s.Mean, 1e-9)
	assert.Equal(t, 24.0, s.Max)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 12.3, Round(12.345, 1))
	assert.Equal(t, 0.5, Round(0.45, 1))
}
