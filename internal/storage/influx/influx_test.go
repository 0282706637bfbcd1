package influxstorage

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/pkg/core"
)

func TestBackend_BackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx.lp.gz")
	b := New(config.InfluxConfig{Host: "127.0.0.1", Port: "1", Protocol: "http", BackupPath: path}, zerolog.Nop())
	require.NoError(t, b.Init())

	assert.Error(t, b.EndSession(), "no session yet")

	s := &core.Session{UUID: "live-1"}
	require.NoError(t, b.StartSession(s))
	assert.Equal(t, uint(1), s.ID)

	now := time.Now()
	require.NoError(t, b.RecordCaption(&core.CaptionRecord{Time: now, Message: core.CaptionMessage{Text: "hung jury", SpeakerID: core.JurorB}}))
	require.NoError(t, b.RecordFocus(&core.FocusRecord{Time: now, Focused: core.JurorB, Source: "orientation"}))
	require.NoError(t, b.RecordTarget(&core.TargetRecord{Time: now, Target: core.JurorB, Input: "click"}))
	require.NoError(t, b.RecordSpeakerPosition(&core.SpeakerPositionRecord{Time: now, Speaker: core.JurorB, Position: core.Vec3{1, 1, 1}}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "caption,session=live-1")
	assert.Contains(t, out, "focus,session=live-1")
	assert.Contains(t, out, "target,input=click,session=live-1")
	assert.Contains(t, out, "speaker_position,session=live-1")
}
