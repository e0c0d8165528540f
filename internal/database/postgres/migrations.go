package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema. All statements are idempotent so this runs
// unconditionally on startup. The embedding column dimension is fixed per
// database and comes from the pool configuration.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createStudents := `
		CREATE TABLE IF NOT EXISTS students (
			id            VARCHAR(255) PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			dim           INTEGER NOT NULL,
			registered_at TIMESTAMP WITH TIME ZONE NOT NULL,
			image_count   INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := p.Exec(ctx, createStudents); err != nil {
		return fmt.Errorf("failed to create students table: %w", err)
	}

	createEmbeddings := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS student_embeddings (
			student_id      VARCHAR(255) NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			embedding_index INTEGER NOT NULL,
			embedding       vector(%d) NOT NULL,
			UNIQUE(student_id, embedding_index)
		)
	`, p.dim)
	if _, err := p.Exec(ctx, createEmbeddings); err != nil {
		return fmt.Errorf("failed to create student_embeddings table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS student_embeddings_student_idx
		ON student_embeddings(student_id)
	`); err != nil {
		return fmt.Errorf("failed to create student_embeddings index: %w", err)
	}

	// UNIQUE(student_id, att_date) is what makes attendance marking an atomic
	// insert-if-absent: the first recognition of the day wins, every later
	// insert for the same key is ignored by ON CONFLICT DO NOTHING.
	createAttendance := `
		CREATE TABLE IF NOT EXISTS attendance (
			id         BIGSERIAL PRIMARY KEY,
			student_id VARCHAR(255) NOT NULL,
			att_date   DATE NOT NULL,
			att_time   TIME NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source_ref VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE(student_id, att_date)
		)
	`
	if _, err := p.Exec(ctx, createAttendance); err != nil {
		return fmt.Errorf("failed to create attendance table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance(att_date)
	`); err != nil {
		return fmt.Errorf("failed to create attendance date index: %w", err)
	}

	return nil
}
