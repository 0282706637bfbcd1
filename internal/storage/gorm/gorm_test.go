package gormstorage

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/internal/database"
	"github.com/cogconvo/captioner/internal/model"
	"github.com/cogconvo/captioner/internal/model/convert"
	"github.com/cogconvo/captioner/pkg/core"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{Logger: zerolog.Nop()})
}

func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("", zerolog.Nop())
	require.NoError(t, err)
	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestInitClose_QueueOnly(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	require.NoError(t, b.RecordFocus(&core.FocusRecord{Focused: core.JurorA}))
	assert.Equal(t, 1, b.Pending())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, b.Pending(), "nothing to write to")
}

func TestRecord_QueuesConvertedRows(t *testing.T) {
	b := newTestBackend()

	require.NoError(t, b.RecordCaption(&core.CaptionRecord{Message: core.CaptionMessage{Text: "x", SpeakerID: core.JurorB}}))
	require.NoError(t, b.RecordTarget(&core.TargetRecord{Target: core.JurorC, Input: "click"}))
	require.NoError(t, b.RecordSpeakerPosition(&core.SpeakerPositionRecord{Speaker: core.JurorA, Position: core.Vec3{1, 2, 3}}))

	assert.Equal(t, 3, b.Pending())
	captions := b.queues.Captions.Drain()
	require.Len(t, captions, 1)
	assert.Equal(t, "juror-b", captions[0].SpeakerID)
}

func TestRecordSpeakerPosition_RejectsNonFinite(t *testing.T) {
	b := newTestBackend()
	err := b.RecordSpeakerPosition(&core.SpeakerPositionRecord{Speaker: core.JurorB, Position: core.Vec3{0, math.Inf(1), 0}})
	assert.ErrorContains(t, err, "juror-b")
	assert.Zero(t, b.Pending())
}

func TestEndSession_WithoutStart(t *testing.T) {
	assert.Error(t, newTestBackend().EndSession())
}

func TestSession_SQLite(t *testing.T) {
	b := newSQLiteBackend(t)
	start := time.Now()

	s := &core.Session{UUID: "9a3f", RenderingMethod: core.MonitorAndGlobal, FocusSource: "mock", StartTime: start}
	require.NoError(t, b.StartSession(s))
	require.NotZero(t, s.ID)

	focused := core.JurorC
	require.NoError(t, b.RecordCaption(&core.CaptionRecord{
		Time:    start.Add(time.Second),
		Message: core.CaptionMessage{MessageID: 1, ChunkID: 2, Text: "eleven to one", SpeakerID: core.JurorA, FocusedID: &focused},
	}))
	require.NoError(t, b.RecordFocus(&core.FocusRecord{Time: start, Focused: core.JurorNone, Source: "mock"}))
	require.NoError(t, b.RecordTarget(&core.TargetRecord{Time: start, Target: core.JurorA, Input: "key"}))
	require.NoError(t, b.RecordSpeakerPosition(&core.SpeakerPositionRecord{Time: start, Speaker: core.JurorA, Position: core.Vec3{0.5, 1.2, -2}}))

	require.NoError(t, b.EndSession())
	assert.Zero(t, b.Pending())

	db := b.DB()
	var session model.Session
	require.NoError(t, db.First(&session, s.ID).Error)
	assert.Equal(t, "monitor_and_global", session.RenderingMethodName)
	assert.True(t, session.EndTime.Valid)

	var captions []model.CaptionMessage
	require.NoError(t, db.Where("session_id = ?", s.ID).Find(&captions).Error)
	require.Len(t, captions, 1)
	assert.Equal(t, 2, captions[0].ChunkID)
	assert.Contains(t, string(captions[0].Payload), "eleven to one")
	assert.Equal(t, "juror-c", captions[0].FocusedID.String)

	var focus model.FocusChange
	require.NoError(t, db.Where("session_id = ?", s.ID).First(&focus).Error)
	assert.False(t, focus.Focused.Valid)

	var pos model.SpeakerPosition
	require.NoError(t, db.Where("session_id = ?", s.ID).First(&pos).Error)
	assert.Equal(t, core.Vec3{0.5, 1.2, -2}, convert.PointToVec3(pos.Position))
}

func TestWriteLoop_Flushes(t *testing.T) {
	db, err := database.OpenSQLite("", zerolog.Nop())
	require.NoError(t, err)
	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{UUID: "loop"}))
	require.NoError(t, b.RecordFocus(&core.FocusRecord{Time: time.Now(), Focused: core.JurorB}))

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&model.FocusChange{}).Count(&n)
		return n == 1
	}, time.Second, 10*time.Millisecond)
}
