package storage_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/storage"
	gormstorage "github.com/cogconvo/captioner/internal/storage/gorm"
	influxstorage "github.com/cogconvo/captioner/internal/storage/influx"
	"github.com/cogconvo/captioner/internal/storage/memory"
	"github.com/cogconvo/captioner/internal/storage/postgres"
	sqlitestorage "github.com/cogconvo/captioner/internal/storage/sqlite"
	"github.com/cogconvo/captioner/internal/storage/websocket"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
	_ storage.Backend    = (*gormstorage.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
	_ storage.Backend    = (*influxstorage.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"", &memory.Backend{}},
		{"memory", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
		{"websocket", &websocket.Backend{}},
		{"influx", &influxstorage.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, nil, zerolog.Nop())
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "s3"}, nil, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage type")
}
