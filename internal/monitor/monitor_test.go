package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/pkg/core"
)

func readStatus(t *testing.T, path string) Status {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	return st
}

func TestRun_RewritesStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	var sent atomic.Int64
	svc := NewService(path, 5*time.Millisecond, func() Status {
		return Status{Session: "abc", CaptionsSent: int(sent.Add(1)), Speaker: core.JurorC}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Last().CaptionsSent >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, svc.IsRunning())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, svc.IsRunning())

	st := readStatus(t, path)
	assert.Equal(t, "abc", st.Session)
	assert.Equal(t, core.JurorC, st.Speaker)
	assert.Equal(t, svc.Last().CaptionsSent, st.CaptionsSent)
}

func TestRun_RejectsSecondRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	svc := NewService(path, time.Hour, func() Status { return Status{} }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, svc.IsRunning, time.Second, time.Millisecond)

	assert.Error(t, svc.Run(ctx))
	cancel()
	require.NoError(t, <-done)
}

func TestRun_BadPath(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "missing", "status.json"), 0, func() Status { return Status{} }, nil)
	assert.ErrorContains(t, svc.Run(context.Background()), "creating status file")
}

func TestWriteStatus_Truncates(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "status.json"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, WriteStatus(f, Status{Session: "a-very-long-session-id", Caption: "a long caption text"}))
	require.NoError(t, WriteStatus(f, Status{Session: "b"}))

	st := readStatus(t, f.Name())
	assert.Equal(t, "b", st.Session)
	assert.Empty(t, st.Caption)
}
