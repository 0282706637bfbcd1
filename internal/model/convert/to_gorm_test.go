package convert

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogconvo/captioner/pkg/core"
)

func TestVec3ToPoint(t *testing.T) {
	pt, err := Vec3ToPoint(core.Vec3{1.5, 0.7, -3})
	require.NoError(t, err)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, geom.DimXYZ, coord.Type)
	assert.Equal(t, 1.5, coord.X)
	assert.Equal(t, 0.7, coord.Y)
	assert.Equal(t, -3.0, coord.Z)

	assert.Equal(t, core.Vec3{1.5, 0.7, -3}, PointToVec3(pt))
	assert.Equal(t, core.Vec3{}, PointToVec3(geom.Point{}))
}

func TestVec3ToPoint_RoundTrip(t *testing.T) {
	for _, v := range []core.Vec3{
		{},
		{-1.25, 0.7, 3},
		{1e6, -1e-6, 42},
	} {
		pt, err := Vec3ToPoint(v)
		require.NoError(t, err)
		assert.Equal(t, v, PointToVec3(pt))
	}
}

func TestVec3ToPoint_NonFinite(t *testing.T) {
	for _, v := range []core.Vec3{
		{math.NaN(), 0, 0},
		{0, math.Inf(1), 0},
		{0, 0, math.Inf(-1)},
	} {
		_, err := Vec3ToPoint(v)
		assert.Error(t, err, "%v", v)
	}

	_, err := CoreToSpeakerPosition(core.SpeakerPositionRecord{Speaker: core.JurorA, Position: core.Vec3{math.NaN(), 0, 0}})
	assert.ErrorContains(t, err, "juror-a")
}

func TestCoreToSession(t *testing.T) {
	start := time.Now()
	s := CoreToSession(core.Session{
		ID:              7,
		UUID:            "abc",
		RenderingMethod: core.GlobalWithDirectionIndicators,
		StartTime:       start,
	})
	assert.Equal(t, uint(7), s.ID)
	assert.Equal(t, 4, s.RenderingMethod)
	assert.Equal(t, "global_with_direction_indicators", s.RenderingMethodName)
	assert.False(t, s.EndTime.Valid)

	s = CoreToSession(core.Session{StartTime: start, EndTime: start.Add(time.Second)})
	assert.True(t, s.EndTime.Valid)
}

func TestCoreToCaptionMessage(t *testing.T) {
	focused := core.JurorA
	msg := core.CaptionMessage{MessageID: 3, ChunkID: 9, Text: "not guilty", SpeakerID: core.JuryForeman, FocusedID: &focused}
	row, err := CoreToCaptionMessage(core.CaptionRecord{
		Time:      time.Now(),
		Message:   msg,
		SendDelay: 1500 * time.Microsecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, row.MessageID)
	assert.Equal(t, 9, row.ChunkID)
	assert.Equal(t, "jury-foreman", row.SpeakerID)
	assert.True(t, row.FocusedID.Valid)
	assert.Equal(t, "juror-a", row.FocusedID.String)
	assert.Equal(t, 1.5, row.SendDelayMs)

	var decoded core.CaptionMessage
	require.NoError(t, json.Unmarshal(row.Payload, &decoded))
	assert.Equal(t, msg.Text, decoded.Text)
	assert.Equal(t, core.JurorA, decoded.Focused())

	row, err = CoreToCaptionMessage(core.CaptionRecord{Message: core.CaptionMessage{Text: "x"}})
	require.NoError(t, err)
	assert.False(t, row.FocusedID.Valid, "null focus")
	assert.Contains(t, string(row.Payload), `"focused_id":null`)
}

func TestCoreToChanges(t *testing.T) {
	f := CoreToFocusChange(core.FocusRecord{Focused: core.JurorNone, Source: "serial"})
	assert.False(t, f.Focused.Valid)
	assert.Equal(t, "serial", f.Source)

	tc := CoreToTargetChange(core.TargetRecord{Target: core.JurorB, Input: "key"})
	assert.Equal(t, "juror-b", tc.Target.String)
	assert.Equal(t, "key", tc.Input)

	p, err := CoreToSpeakerPosition(core.SpeakerPositionRecord{Speaker: core.JurorC, Position: core.Vec3{0, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "juror-c", p.Speaker)
	assert.Equal(t, core.Vec3{0, 1, 2}, PointToVec3(p.Position))
}
