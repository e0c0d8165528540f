// Package detector talks to the external face perception service: face
// localization and embedding extraction live there, this package only ships
// images over and interprets the results. The interfaces exist so tests and
// alternative engines can substitute the HTTP client.
package detector

import (
	"context"

	"github.com/kozaktomas/roll-call/internal/facematch"
)

// FaceDetector locates faces in an image. Implementations may be called
// multiple times per image with different underlying detectors; the merger
// collapses the combined output.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]facematch.DetectionBox, error)
}

// FaceEncoder computes one embedding per detection box, same length and
// order as the input boxes.
type FaceEncoder interface {
	EncodeFaces(ctx context.Context, imageData []byte, boxes []facematch.DetectionBox) ([][]float32, error)
}

// Engine is the full perception collaborator.
type Engine interface {
	FaceDetector
	FaceEncoder
}
