// Package database defines the storage types and repository interfaces for
// student artifacts and attendance records. Concrete backends live in the
// postgres, mariadb, and mock subpackages.
package database

import (
	"context"
	"time"
)

// StudentReader provides read-only access to persisted student artifacts.
type StudentReader interface {
	// GetStudent retrieves a student by ID, returns nil if not found
	GetStudent(ctx context.Context, studentID string) (*StoredStudent, error)
	// HasStudent checks if an artifact exists for the given student ID
	HasStudent(ctx context.Context, studentID string) (bool, error)
	// ListStudents returns all persisted student artifacts
	ListStudents(ctx context.Context) ([]StoredStudent, error)
	// CountStudents returns the number of persisted students
	CountStudents(ctx context.Context) (int, error)
}

// StudentWriter provides write access to student artifacts.
type StudentWriter interface {
	StudentReader

	// SaveStudent stores one student's artifact, replacing any previous
	// embedding set for that student. The write is all-or-nothing: a failure
	// leaves the previous artifact intact.
	SaveStudent(ctx context.Context, student StoredStudent) error
}

// AttendanceReader provides read access to attendance records.
type AttendanceReader interface {
	// GetAttendance returns all records for one date
	GetAttendance(ctx context.Context, date time.Time) ([]AttendanceRecord, error)
	// GetAttendanceRange returns records with dates in [from, to], ordered by
	// date then student ID
	GetAttendanceRange(ctx context.Context, from, to time.Time) ([]AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records.
type AttendanceWriter interface {
	AttendanceReader

	// MarkAttendance inserts a record unless one already exists for the same
	// (student, date). The insert-if-absent is atomic at the storage layer so
	// concurrent frame processing cannot create duplicates. Returns true when
	// a record was inserted, false when the day was already marked.
	MarkAttendance(ctx context.Context, rec AttendanceRecord) (bool, error)
}

// Store bundles the repositories of one storage backend.
type Store interface {
	Students() StudentWriter
	Attendance() AttendanceWriter
	Close() error
}
