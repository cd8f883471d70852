// Package db picks the record store for the configured driver.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/domain/documents"
	"github.com/bryanwahyu/medcoder/internal/infra/db/mysql"
	"github.com/bryanwahyu/medcoder/internal/infra/db/postgres"
	"github.com/bryanwahyu/medcoder/internal/infra/db/sqlite"
)

// Store bundles the connection with its repositories.
type Store struct {
	Driver    string
	DB        *sql.DB
	Documents documents.Repository
	Failures  documents.FailureRepository

	migrate func(ctx context.Context, db *sql.DB) error
}

// Open connects using cfg.Database.Driver: sqlite, mysql or postgres.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	s := &Store{Driver: cfg.Database.Driver}
	var err error
	switch cfg.Database.Driver {
	case "", "sqlite":
		s.Driver = "sqlite"
		s.DB, err = sqlite.Open(ctx, cfg.Database.Path)
		s.Documents = sqlite.NewDocumentRepository(s.DB)
		s.Failures = sqlite.NewFailureRepository(s.DB)
		s.migrate = sqlite.Migrate
	case "mysql":
		s.DB, err = mysql.Connect(ctx, cfg.MySQLDSN())
		s.Documents = mysql.NewDocumentRepository(s.DB)
		s.Failures = mysql.NewFailureRepository(s.DB)
		s.migrate = mysql.Migrate
	case "postgres":
		s.DB, err = postgres.Connect(ctx, cfg.PostgresDSN())
		s.Documents = postgres.NewDocumentRepository(s.DB)
		s.Failures = postgres.NewFailureRepository(s.DB)
		s.migrate = postgres.Migrate
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Driver, err)
	}
	return s, nil
}

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.migrate(ctx, s.DB)
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }
