package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/cogconvo/captioner/internal/config"
	influxstorage "github.com/cogconvo/captioner/internal/storage/influx"
	"github.com/cogconvo/captioner/internal/storage/memory"
	"github.com/cogconvo/captioner/internal/storage/postgres"
	sqlitestorage "github.com/cogconvo/captioner/internal/storage/sqlite"
	"github.com/cogconvo/captioner/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. The database
// and influx backends log through zerolog, the rest through slog.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, zlog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, zlog)
	case "postgres":
		return postgres.New(cfg.Postgres, zlog), nil
	case "websocket":
		return websocket.New(cfg.WebSocket, logger), nil
	case "influx":
		return influxstorage.New(cfg.Influx, zlog), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
