package logging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGelf struct {
	mu   sync.Mutex
	msgs []*gelf.Message
	err  error
}

func (f *fakeGelf) WriteMessage(m *gelf.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeGelf) last(t *testing.T) (*gelf.Message, map[string]any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs)
	m := f.msgs[len(f.msgs)-1]
	fields := map[string]any{}
	require.NoError(t, json.Unmarshal(m.RawExtra, &fields))
	return m, fields
}

func TestGelfHandler_Fields(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelDebug))

	logger.With("session", "s-1").WithGroup("caption").Warn("speaker unresolved",
		"speaker", "juror-c", "frame", 12, "ambient", true, "id", 7)

	m, fields := w.last(t)
	assert.Equal(t, "speaker unresolved", m.Short)
	assert.Equal(t, gelfWarning, m.Level)
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "s-1", fields["_session"])
	assert.Equal(t, "juror-c", fields["_caption.speaker"])
	assert.Equal(t, float64(12), fields["_caption.frame"])
	assert.Equal(t, true, fields["_caption.ambient"])
	assert.Equal(t, float64(7), fields["_caption.id"])
}

func TestGelfHandler_ReservedID(t *testing.T) {
	w := &fakeGelf{}
	slog.New(NewGelfHandler(w, nil)).Info("x", "id", "abc")

	_, fields := w.last(t)
	assert.Equal(t, "abc", fields["_id_"])
	assert.NotContains(t, fields, "_id")
}

func TestGelfHandler_MultilineMessage(t *testing.T) {
	w := &fakeGelf{}
	slog.New(NewGelfHandler(w, nil)).Error("first line\nsecond line")

	m, _ := w.last(t)
	assert.Equal(t, "first line", m.Short)
	assert.Equal(t, "first line\nsecond line", m.Full)
	assert.Equal(t, gelfError, m.Level)
}

func TestGelfHandler_Level(t *testing.T) {
	h := NewGelfHandler(&fakeGelf{}, nil)
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestGelfHandler_WriteError(t *testing.T) {
	w := &fakeGelf{err: errors.New("unreachable")}
	h := NewGelfHandler(w, nil)

	var r slog.Record
	r.Message = "m"
	r.Level = slog.LevelInfo
	assert.Error(t, h.Handle(context.Background(), r))
}

func TestGelfLevel(t *testing.T) {
	assert.Equal(t, gelfDebug, gelfLevel(slog.LevelDebug))
	assert.Equal(t, gelfInfo, gelfLevel(slog.LevelInfo))
	assert.Equal(t, gelfWarning, gelfLevel(slog.LevelWarn))
	assert.Equal(t, gelfError, gelfLevel(slog.LevelError+4))
}
