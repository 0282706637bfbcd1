package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// failingHandler accepts every record and fails to write it.
type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func textHandler(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestMultiHandler_Fanout(t *testing.T) {
	var file, gelf bytes.Buffer
	m := NewMultiHandler(nil, NewMultiHandler(textHandler(&file, slog.LevelInfo)), nil, textHandler(&gelf, slog.LevelWarn))
	assert.Equal(t, 2, m.Len(), "nil handlers are dropped and nested ones inlined")

	logger := slog.New(m)
	logger.Info("focus changed")
	logger.Warn("frame too large")

	assert.Contains(t, file.String(), "focus changed")
	assert.Contains(t, file.String(), "frame too large")
	assert.NotContains(t, gelf.String(), "focus changed")
	assert.Contains(t, gelf.String(), "frame too large")
}

func TestMultiHandler_Enabled(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))

	info := NewMultiHandler(textHandler(&buf, slog.LevelInfo))
	assert.False(t, info.Enabled(ctx, slog.LevelDebug))
	assert.True(t, info.Enabled(ctx, slog.LevelInfo))

	mixed := NewMultiHandler(textHandler(&buf, slog.LevelInfo), textHandler(&buf, slog.LevelDebug))
	assert.True(t, mixed.Enabled(ctx, slog.LevelDebug))
}

func TestMultiHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(textHandler(&buf, slog.LevelInfo))

	assert.Same(t, m, m.WithGroup(""))

	h := m.WithAttrs([]slog.Attr{slog.String("component", "viewer")}).WithGroup("speaker")
	slog.New(h).Info("moved", "id", "juror-a")

	assert.Contains(t, buf.String(), "component=viewer")
	assert.Contains(t, buf.String(), "speaker.id=juror-a")
}

func TestMultiHandler_FailureDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(failingHandler{}, textHandler(&buf, slog.LevelInfo))

	err := m.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "still written", 0))
	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "still written")
}
