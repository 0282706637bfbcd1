package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Meter("captioner"))
}

func TestNew_EnabledWithoutSinks(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "captioner"})
	assert.Error(t, err)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "captioner",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
		Attributes:   map[string]string{"deployment": "lab"},
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.Flush(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNew_OTLPEndpoint(t *testing.T) {
	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318/v1/logs"} {
		t.Run(endpoint, func(t *testing.T) {
			p, err := New(Config{Enabled: true, Endpoint: endpoint, Insecure: true})
			require.NoError(t, err)
			assert.True(t, p.Enabled())
			assert.NotNil(t, p.LoggerProvider())

			// nothing was logged, so shutdown does not reach the collector
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, p.Shutdown(ctx))
		})
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, LogWriter: &buf})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Shutdown(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}
