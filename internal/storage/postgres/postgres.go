// Package postgres implements the storage.Backend interface on PostgreSQL
// through the GORM backend.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/database"
	gormstorage "github.com/cogconvo/captioner/internal/storage/gorm"
)

// Backend connects to PostgreSQL on Init and records through GORM.
type Backend struct {
	*gormstorage.Backend
	cfg config.PostgresConfig
	log zerolog.Logger
}

// New creates a new PostgreSQL storage backend. It does not connect yet.
func New(cfg config.PostgresConfig, log zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: log}),
		cfg:     cfg,
		log:     log,
	}
}

// Init connects, migrates the schema and starts the DB writer.
func (b *Backend) Init() error {
	if b.Backend.DB() == nil {
		db, err := database.OpenPostgres(b.cfg, b.log)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.Backend.SetDB(db)
	}
	return b.Backend.Init()
}
