package facematch

import (
	"math"
	"sort"

	"github.com/kozaktomas/roll-call/internal/constants"
)

// MergeDetections collapses overlapping detections from one or more detectors
// run on the same image into a single canonical frame.
//
// Boxes are processed in the order received: a box is a duplicate of an
// already-kept box when the distance between their centers is smaller than
// half the smaller box size, and the first-seen box wins. Survivors below
// the minimum face size are dropped, and the rest is sorted by area,
// largest first. Zero input boxes yield an empty frame, not an error.
func MergeDetections(minFaceSize int, detections ...[]DetectionBox) Frame {
	if minFaceSize <= 0 {
		minFaceSize = constants.DefaultMinFaceSize
	}

	var kept []DetectionBox
	for _, boxes := range detections {
		for _, box := range boxes {
			if !isDuplicate(box, kept) {
				kept = append(kept, box)
			}
		}
	}

	valid := kept[:0]
	for _, box := range kept {
		if box.Width() >= minFaceSize && box.Height() >= minFaceSize {
			valid = append(valid, box)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Area() > valid[j].Area()
	})

	return Frame{Boxes: valid}
}

// isDuplicate reports whether box describes the same face as any kept box.
func isDuplicate(box DetectionBox, kept []DetectionBox) bool {
	cx, cy := box.Center()
	for _, other := range kept {
		ox, oy := other.Center()
		dist := math.Hypot(cx-ox, cy-oy)
		minSize := float64(min(box.Size(), other.Size()))
		if dist < minSize*constants.DuplicateCenterRatio {
			return true
		}
	}
	return false
}
