package facematch

import "math"

// EuclideanDistance computes the Euclidean (L2) distance between two
// embedding vectors. Vectors of different or zero length yield +Inf so that
// invalid input can never win a nearest-neighbor comparison; callers that
// need to distinguish a dimension mismatch check lengths up front.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return math.Sqrt(sum)
}
