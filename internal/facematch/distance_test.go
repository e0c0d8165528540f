package facematch

import (
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "unit apart",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1,
		},
		{
			name:     "pythagorean",
			a:        []float32{0, 0},
			b:        []float32{3, 4},
			expected: 5,
		},
		{
			name:     "negative components",
			a:        []float32{-1, -1},
			b:        []float32{1, 1},
			expected: 2 * math.Sqrt2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EuclideanDistance(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-6 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestEuclideanDistanceInvalidInput(t *testing.T) {
	if d := EuclideanDistance([]float32{1, 2}, []float32{1, 2, 3}); !math.IsInf(d, 1) {
		t.Errorf("mismatched lengths: got %v, want +Inf", d)
	}
	if d := EuclideanDistance(nil, nil); !math.IsInf(d, 1) {
		t.Errorf("empty vectors: got %v, want +Inf", d)
	}
}
