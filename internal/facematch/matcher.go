package facematch

import (
	"fmt"

	"github.com/kozaktomas/roll-call/internal/constants"
)

// Matcher classifies detected faces against a gallery using nearest-neighbor
// Euclidean distance with an exclusive tolerance threshold and per-frame
// duplicate suppression.
type Matcher struct {
	gallery       *Gallery
	tolerance     float64
	minConfidence float64
}

// NewMatcher creates a matcher over the given gallery. Non-positive tolerance
// or confidence floor fall back to the defaults.
func NewMatcher(gallery *Gallery, tolerance, minConfidence float64) *Matcher {
	if tolerance <= 0 {
		tolerance = constants.DefaultTolerance
	}
	if minConfidence <= 0 {
		minConfidence = constants.DefaultMinConfidence
	}
	return &Matcher{
		gallery:       gallery,
		tolerance:     tolerance,
		minConfidence: minConfidence,
	}
}

// MatchFrame classifies each face embedding of a frame, in frame order
// (largest faces first). Embeddings must correspond one-to-one with the
// frame's boxes.
//
// A face is assigned to the student owning the nearest gallery embedding when
// the distance is strictly below the tolerance and the resulting confidence
// (1 - distance, clamped to [0, 1]) reaches the acceptance floor. A student
// already assigned to an earlier face in the same frame is not assigned
// again: the earlier, larger face keeps the claim and the later face becomes
// unknown. Against an empty gallery every face is unknown with confidence 0.
//
// An embedding dimension mismatch is a configuration error and fails the
// whole call; it is never reported as an unknown face.
func (m *Matcher) MatchFrame(frame Frame, embeddings [][]float32) ([]MatchResult, error) {
	if len(embeddings) != len(frame.Boxes) {
		return nil, fmt.Errorf("got %d embeddings for %d boxes", len(embeddings), len(frame.Boxes))
	}

	results := make([]MatchResult, 0, len(frame.Boxes))
	assigned := make(map[string]bool)

	for i, box := range frame.Boxes {
		result := MatchResult{Box: box}

		studentID, distance, found, err := m.gallery.Nearest(embeddings[i])
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}

		if found && distance < m.tolerance {
			confidence := clamp(1-distance, 0, 1)
			if confidence >= m.minConfidence && !assigned[studentID] {
				result.StudentID = studentID
				result.Name = m.gallery.Name(studentID)
				result.Confidence = confidence
				assigned[studentID] = true
			}
		}

		results = append(results, result)
	}

	return results, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
