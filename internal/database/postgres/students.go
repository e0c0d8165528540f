package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/pgvector/pgvector-go"
)

// StudentRepository provides PostgreSQL-backed student artifact storage.
// Each student's embedding set lives in its own rows, so artifacts load and
// save independently of each other.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetStudent retrieves a student artifact by ID, returns nil if not found.
func (r *StudentRepository) GetStudent(ctx context.Context, studentID string) (*database.StoredStudent, error) {
	var s database.StoredStudent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, dim, registered_at, image_count, created_at
		FROM students
		WHERE id = $1
	`, studentID).Scan(&s.ID, &s.Name, &s.Dim, &s.RegisteredAt, &s.ImageCount, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}

	embeddings, err := r.loadEmbeddings(ctx, studentID)
	if err != nil {
		return nil, err
	}
	s.Embeddings = embeddings
	return &s, nil
}

// HasStudent checks if an artifact exists for the given student ID.
func (r *StudentRepository) HasStudent(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)", studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check student exists: %w", err)
	}
	return exists, nil
}

// ListStudents returns all persisted student artifacts ordered by ID.
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.StoredStudent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, dim, registered_at, image_count, created_at
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
		if err := rows.Scan(&s.ID, &s.Name, &s.Dim, &s.RegisteredAt, &s.ImageCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	for i := range students {
		embeddings, err := r.loadEmbeddings(ctx, students[i].ID)
		if err != nil {
			return nil, err
		}
		students[i].Embeddings = embeddings
	}
	return students, nil
}

// CountStudents returns the number of persisted students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// SaveStudent stores one student's artifact, replacing any previous embedding
// set. The whole write happens in one transaction: a failure rolls back and
// leaves the previous artifact intact.
func (r *StudentRepository) SaveStudent(ctx context.Context, student database.StoredStudent) error {
	for i, emb := range student.Embeddings {
		if len(emb) != r.pool.dim {
			return fmt.Errorf("student %s embedding %d: dim %d does not match store dim %d",
				student.ID, i, len(emb), r.pool.dim)
		}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (id, name, dim, registered_at, image_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			dim = EXCLUDED.dim,
			registered_at = EXCLUDED.registered_at,
			image_count = EXCLUDED.image_count
	`, student.ID, student.Name, student.Dim, student.RegisteredAt, student.ImageCount)
	if err != nil {
		return fmt.Errorf("upsert student %s: %w", student.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM student_embeddings WHERE student_id = $1", student.ID,
	); err != nil {
		return fmt.Errorf("clear embeddings for %s: %w", student.ID, err)
	}

	for i, emb := range student.Embeddings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO student_embeddings (student_id, embedding_index, embedding)
			VALUES ($1, $2, $3)
		`, student.ID, i, pgvector.NewVector(emb)); err != nil {
			return fmt.Errorf("insert embedding %d for %s: %w", i, student.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student %s: %w", student.ID, err)
	}
	return nil
}

func (r *StudentRepository) loadEmbeddings(ctx context.Context, studentID string) ([][]float32, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT embedding
		FROM student_embeddings
		WHERE student_id = $1
		ORDER BY embedding_index
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings for %s: %w", studentID, err)
	}
	defer rows.Close()

	var embeddings [][]float32
	for rows.Next() {
		var v pgvector.Vector
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan embedding for %s: %w", studentID, err)
		}
		embeddings = append(embeddings, v.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings for %s: %w", studentID, err)
	}
	return embeddings, nil
}
