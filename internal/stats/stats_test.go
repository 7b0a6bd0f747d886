package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 5},
		{"odd unsorted", []float64{1, 3, 2}, 2},
		{"even", []float64{1, 2, 3, 4}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Median(tt.xs), 1e-9)
		})
	}
}

func TestMedian_DoesNotMutateInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	Median(xs)
	assert.Equal(t, []float64{3, 1, 2}, xs)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		p    float64
		want float64
	}{
		{"empty", nil, 90, 0},
		{"single", []float64{42}, 10, 42},
		{"interpolated p50", []float64{10, 20, 30, 40}, 50, 25},
		{"p0 is min", []float64{10, 20, 30, 40}, 0, 10},
		{"p100 is max", []float64{10, 20, 30, 40}, 100, 40},
		{"p10 of four", []float64{10, 20, 30, 40}, 10, 13},
		{"unsorted input", []float64{40, 10, 30, 20}, 50, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(tt.xs, tt.p), 1e-9)
		})
	}
}
