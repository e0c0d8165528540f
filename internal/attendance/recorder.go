// Package attendance turns per-frame match results into durable presence
// records: one record per student per day, first recognition wins.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/roll-call/internal/database"
)

// Recorder persists match results as attendance records.
type Recorder struct {
	store database.AttendanceWriter
}

// NewRecorder creates a recorder over the given attendance store.
func NewRecorder(store database.AttendanceWriter) *Recorder {
	return &Recorder{store: store}
}

// Marking is one student mention to record: the match the caller accepted.
type Marking struct {
	StudentID  string
	Confidence float64
}

// Summary reports what one RecordFrame call actually did. Re-running the same
// frame yields NewlyMarked=0 with everything counted as duplicates.
type Summary struct {
	NewlyMarked       []string `json:"newly_marked"`
	DuplicatesSkipped int      `json:"duplicates_skipped"`
	UnknownCount      int      `json:"unknown_count"`
}

// RecordFrame records attendance for every recognized student in one frame.
// Unknown faces (empty student ID) are counted but never persisted. The
// insert-if-absent lives in the storage layer, so concurrent frames cannot
// double-mark a student; a record that already exists for the day is reported
// as a duplicate, not an error. A storage failure aborts the call.
func (r *Recorder) RecordFrame(ctx context.Context, markings []Marking, at time.Time, sourceRef string) (*Summary, error) {
	summary := &Summary{}
	seen := make(map[string]bool, len(markings))

	for _, m := range markings {
		if m.StudentID == "" {
			summary.UnknownCount++
			continue
		}
		// The same student can appear twice in one frame only through
		// matcher misuse; treat the second mention as a duplicate here
		// rather than hitting storage again.
		if seen[m.StudentID] {
			summary.DuplicatesSkipped++
			continue
		}
		seen[m.StudentID] = true

		inserted, err := r.store.MarkAttendance(ctx, database.AttendanceRecord{
			StudentID:  m.StudentID,
			Timestamp:  at,
			Confidence: m.Confidence,
			SourceRef:  sourceRef,
		})
		if err != nil {
			return summary, fmt.Errorf("failed to mark attendance for %s: %w", m.StudentID, err)
		}
		if inserted {
			summary.NewlyMarked = append(summary.NewlyMarked, m.StudentID)
		} else {
			summary.DuplicatesSkipped++
		}
	}

	return summary, nil
}

// Report returns all attendance records for one date.
func (r *Recorder) Report(ctx context.Context, date time.Time) ([]database.AttendanceRecord, error) {
	return r.store.GetAttendance(ctx, date)
}

// ReportRange returns records for all dates in [from, to].
func (r *Recorder) ReportRange(ctx context.Context, from, to time.Time) ([]database.AttendanceRecord, error) {
	return r.store.GetAttendanceRange(ctx, from, to)
}
