package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/roll-call/internal/database"
)

// StudentRepository provides MariaDB-backed student artifact storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new MariaDB student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetStudent retrieves a student artifact by ID, returns nil if not found.
func (r *StudentRepository) GetStudent(ctx context.Context, studentID string) (*database.StoredStudent, error) {
	var s database.StoredStudent
	var embeddingsJSON string
	err := r.pool.db.QueryRowContext(ctx, `
		SELECT id, name, dim, embeddings, registered_at, image_count, created_at
		FROM students
		WHERE id = ?
	`, studentID).Scan(&s.ID, &s.Name, &s.Dim, &embeddingsJSON, &s.RegisteredAt, &s.ImageCount, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}

	if err := json.Unmarshal([]byte(embeddingsJSON), &s.Embeddings); err != nil {
		return nil, fmt.Errorf("decode embeddings for %s: %w", studentID, err)
	}
	return &s, nil
}

// HasStudent checks if an artifact exists for the given student ID.
func (r *StudentRepository) HasStudent(ctx context.Context, studentID string) (bool, error) {
	var one int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT 1 FROM students WHERE id = ?", studentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check student exists: %w", err)
	}
	return true, nil
}

// ListStudents returns all persisted student artifacts ordered by ID.
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.StoredStudent, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, name, dim, embeddings, registered_at, image_count, created_at
		FROM students
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.StoredStudent
	for rows.Next() {
		var s database.StoredStudent
		var embeddingsJSON string
		if err := rows.Scan(&s.ID, &s.Name, &s.Dim, &embeddingsJSON,
			&s.RegisteredAt, &s.ImageCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingsJSON), &s.Embeddings); err != nil {
			return nil, fmt.Errorf("decode embeddings for %s: %w", s.ID, err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// CountStudents returns the number of persisted students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// SaveStudent stores one student's artifact, replacing any previous embedding
// set. The upsert is a single statement, so the write is all-or-nothing.
func (r *StudentRepository) SaveStudent(ctx context.Context, student database.StoredStudent) error {
	for i, emb := range student.Embeddings {
		if len(emb) != r.pool.dim {
			return fmt.Errorf("student %s embedding %d: dim %d does not match store dim %d",
				student.ID, i, len(emb), r.pool.dim)
		}
	}

	embeddingsJSON, err := json.Marshal(student.Embeddings)
	if err != nil {
		return fmt.Errorf("encode embeddings for %s: %w", student.ID, err)
	}

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT INTO students (id, name, dim, embeddings, registered_at, image_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			dim = VALUES(dim),
			embeddings = VALUES(embeddings),
			registered_at = VALUES(registered_at),
			image_count = VALUES(image_count)
	`, student.ID, student.Name, student.Dim, string(embeddingsJSON),
		student.RegisteredAt, student.ImageCount)
	if err != nil {
		return fmt.Errorf("upsert student %s: %w", student.ID, err)
	}
	return nil
}
