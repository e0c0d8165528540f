package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/roll-call/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// MarkAttendance inserts a record unless one exists for (student, date).
// The UNIQUE(student_id, att_date) constraint plus ON CONFLICT DO NOTHING
// makes this safe under concurrent frame processing without any in-process
// locking. Returns true when a record was inserted.
func (r *AttendanceRepository) MarkAttendance(ctx context.Context, rec database.AttendanceRecord) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (student_id, att_date, att_time, confidence, source_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, att_date) DO NOTHING
	`,
		rec.StudentID,
		rec.Timestamp.Format(database.DateFormat),
		rec.Timestamp.Format("15:04:05"),
		rec.Confidence,
		rec.SourceRef,
	)
	if err != nil {
		return false, fmt.Errorf("mark attendance for %s: %w", rec.StudentID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark attendance rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetAttendance returns all records for one date, ordered by student ID.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, date time.Time) ([]database.AttendanceRecord, error) {
	return r.GetAttendanceRange(ctx, date, date)
}

// GetAttendanceRange returns records with dates in [from, to], ordered by
// date then student ID.
func (r *AttendanceRepository) GetAttendanceRange(ctx context.Context, from, to time.Time) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, att_date, att_time, confidence, source_ref, created_at
		FROM attendance
		WHERE att_date BETWEEN $1 AND $2
		ORDER BY att_date, student_id
	`, from.Format(database.DateFormat), to.Format(database.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var attDate, attTime time.Time
		if err := rows.Scan(&rec.ID, &rec.StudentID, &attDate, &attTime,
			&rec.Confidence, &rec.SourceRef, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		rec.Timestamp = time.Date(
			attDate.Year(), attDate.Month(), attDate.Day(),
			attTime.Hour(), attTime.Minute(), attTime.Second(), 0, time.UTC,
		)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
