package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/roll-call/internal/config"
	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/database/mariadb"
	"github.com/kozaktomas/roll-call/internal/database/postgres"
	"github.com/kozaktomas/roll-call/internal/facematch"
)

// openStore connects to the configured storage backend. PostgreSQL is
// preferred when DATABASE_URL is set; MARIADB_DSN selects MariaDB.
func openStore(cfg *config.Config) (database.Store, error) {
	switch {
	case cfg.Database.URL != "":
		fmt.Println("Using PostgreSQL backend")
		return postgres.Open(&cfg.Database, cfg.Detector.Dim)
	case cfg.Database.MariaDBDSN != "":
		fmt.Println("Using MariaDB backend")
		return mariadb.Open(cfg.Database.MariaDBDSN, cfg.Detector.Dim)
	default:
		return nil, errors.New("DATABASE_URL or MARIADB_DSN environment variable is required")
	}
}

// loadGallery builds the in-memory gallery from all persisted students.
func loadGallery(ctx context.Context, store database.Store, dim int) (*facematch.Gallery, error) {
	students, err := store.Students().ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}

	records := make([]facematch.StudentRecord, 0, len(students))
	for _, s := range students {
		records = append(records, facematch.StudentRecord{
			ID:           s.ID,
			Name:         s.Name,
			Embeddings:   s.Embeddings,
			RegisteredAt: s.RegisteredAt,
			ImageCount:   s.ImageCount,
		})
	}

	gallery := facematch.NewGallery(dim)
	loaded, skipped := gallery.Load(records)
	fmt.Printf("Gallery loaded: %d students (%d skipped)\n", loaded, skipped)
	return gallery, nil
}
