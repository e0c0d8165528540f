// Package facematch implements the face matching core: merging detection
// boxes from one or more detectors, the in-memory embedding gallery, and
// nearest-neighbor classification of detected faces against it.
package facematch

// DetectionBox is a rectangular face region proposed by a detector,
// in pixel coordinates. Score is the detector confidence, if provided.
type DetectionBox struct {
	Top    int     `json:"top"`
	Left   int     `json:"left"`
	Bottom int     `json:"bottom"`
	Right  int     `json:"right"`
	Score  float64 `json:"score,omitempty"`
}

// Width returns the box width in pixels.
func (b DetectionBox) Width() int {
	return b.Right - b.Left
}

// Height returns the box height in pixels.
func (b DetectionBox) Height() int {
	return b.Bottom - b.Top
}

// Area returns the box area in square pixels.
func (b DetectionBox) Area() int {
	return b.Width() * b.Height()
}

// Size returns the larger of width and height.
func (b DetectionBox) Size() int {
	return max(b.Width(), b.Height())
}

// Center returns the box center coordinates.
func (b DetectionBox) Center() (cx, cy float64) {
	return float64(b.Left+b.Right) / 2, float64(b.Top+b.Bottom) / 2
}

// Frame is the deduplicated set of detection boxes derived from one image,
// ordered by descending area. Boxes only live for the processing of that
// image.
type Frame struct {
	Boxes []DetectionBox
}

// UnknownStudent marks a face that could not be matched against the gallery.
const UnknownStudent = ""

// MatchResult is the classification outcome for one detection box.
// An unmatched face has an empty StudentID and zero confidence.
type MatchResult struct {
	StudentID  string       `json:"student_id,omitempty"`
	Name       string       `json:"name,omitempty"`
	Confidence float64      `json:"confidence"`
	Box        DetectionBox `json:"box"`
}

// Unknown reports whether the face was not assigned to any student.
func (r MatchResult) Unknown() bool {
	return r.StudentID == UnknownStudent
}
