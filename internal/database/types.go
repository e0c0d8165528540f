package database

import (
	"time"
)

// StoredStudent is the persisted artifact for one registered student: the
// durable source of truth the in-memory gallery is built from. One record per
// student, addressed by ID, loadable and savable independently of any other
// student.
type StoredStudent struct {
	ID           string
	Name         string
	Embeddings   [][]float32
	Dim          int
	RegisteredAt time.Time
	ImageCount   int
	CreatedAt    time.Time
}

// AttendanceRecord is one date-scoped presence record. At most one exists per
// (StudentID, date of Timestamp); the first successful recognition of the day
// is authoritative and later attempts are no-ops.
type AttendanceRecord struct {
	ID         int64
	StudentID  string
	Timestamp  time.Time
	Confidence float64
	SourceRef  string
	CreatedAt  time.Time
}

// DateKey returns the date part of the record timestamp, the second half of
// the attendance uniqueness key.
func (r AttendanceRecord) DateKey() string {
	return r.Timestamp.Format(DateFormat)
}

// DateFormat is the canonical date layout used for attendance keys and queries.
const DateFormat = "2006-01-02"
