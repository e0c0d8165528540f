// Package mariadb implements the storage backend on MariaDB/MySQL for
// deployments without PostgreSQL. Embeddings are stored JSON-encoded since
// MariaDB has no vector column type; the attendance insert-if-absent maps to
// INSERT IGNORE over the same uniqueness key as the PostgreSQL backend.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/roll-call/internal/database"
)

// normalizeDSN parses the caller's DSN and forces ParseTime so DATE/DATETIME
// columns scan into time.Time. Parsing instead of appending keeps DSNs that
// already carry query parameters valid.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db  *sql.DB
	dim int
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string, dim int) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	normalized, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db, dim: dim}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Migrate creates the schema. All statements are idempotent.
func (p *Pool) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id            VARCHAR(255) PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			dim           INT NOT NULL,
			embeddings    LONGTEXT NOT NULL,
			registered_at DATETIME NOT NULL,
			image_count   INT NOT NULL DEFAULT 0,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			student_id VARCHAR(255) NOT NULL,
			att_date   DATE NOT NULL,
			att_time   TIME NOT NULL,
			confidence DOUBLE NOT NULL,
			source_ref VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_student_date (student_id, att_date),
			KEY attendance_date_idx (att_date)
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate MariaDB schema: %w", err)
		}
	}
	return nil
}

// Store is the MariaDB implementation of database.Store.
type Store struct {
	pool       *Pool
	students   *StudentRepository
	attendance *AttendanceRepository
}

// Open connects to MariaDB, runs migrations, and returns the backend.
func Open(dsn string, dim int) (*Store, error) {
	pool, err := NewPool(dsn, dim)
	if err != nil {
		return nil, fmt.Errorf("failed to create MariaDB pool: %w", err)
	}

	if err := pool.Migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		pool:       pool,
		students:   NewStudentRepository(pool),
		attendance: NewAttendanceRepository(pool),
	}, nil
}

func (s *Store) Students() database.StudentWriter {
	return s.students
}

func (s *Store) Attendance() database.AttendanceWriter {
	return s.attendance
}

func (s *Store) Close() error {
	return s.pool.Close()
}
