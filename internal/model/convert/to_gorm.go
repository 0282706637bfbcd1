// Package convert maps recorded core types to database rows.
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/cogconvo/captioner/internal/model"
	"github.com/cogconvo/captioner/pkg/core"
)

// Vec3ToPoint converts a scene position to an XYZ point. Positions with a
// NaN or infinite component are rejected.
func Vec3ToPoint(v core.Vec3) (geom.Point, error) {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return geom.Point{}, fmt.Errorf("invalid position %v", v)
		}
	}
	coords := geom.Coordinates{XY: geom.XY{X: v[0], Y: v[1]}, Z: v[2], Type: geom.DimXYZ}
	pt, err := geom.NewPoint(coords)
	if err != nil {
		return geom.Point{}, fmt.Errorf("position %v: %w", v, err)
	}
	return pt, nil
}

// PointToVec3 converts an XYZ point back to a scene position. An empty
// point gives the origin.
func PointToVec3(p geom.Point) core.Vec3 {
	c, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{c.X, c.Y, c.Z}
}

func jurorToNull(id core.JurorID) sql.NullString {
	return sql.NullString{String: string(id), Valid: id.IsSet()}
}

// CoreToSession converts a session
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		ID:                  s.ID,
		UUID:                s.UUID,
		RenderingMethod:     int(s.RenderingMethod),
		RenderingMethodName: s.RenderingMethod.String(),
		CaptionsFile:        s.CaptionsFile,
		FocusSource:         s.FocusSource,
		ClientAddr:          s.ClientAddr,
		StartTime:           s.StartTime,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return out
}

// CoreToCaptionMessage converts a transmitted caption. The payload keeps
// the message exactly as it went over the wire.
func CoreToCaptionMessage(r core.CaptionRecord) (model.CaptionMessage, error) {
	payload, err := json.Marshal(r.Message)
	if err != nil {
		return model.CaptionMessage{}, fmt.Errorf("marshal caption message: %w", err)
	}
	return model.CaptionMessage{
		Time:        r.Time,
		MessageID:   r.Message.MessageID,
		ChunkID:     r.Message.ChunkID,
		SpeakerID:   string(r.Message.SpeakerID),
		FocusedID:   jurorToNull(r.Message.Focused()),
		SendDelayMs: float64(r.SendDelay) / float64(time.Millisecond),
		Payload:     datatypes.JSON(payload),
	}, nil
}

// CoreToFocusChange converts a focus change
func CoreToFocusChange(r core.FocusRecord) model.FocusChange {
	return model.FocusChange{
		Time:    r.Time,
		Focused: jurorToNull(r.Focused),
		Source:  r.Source,
	}
}

// CoreToTargetChange converts a caption target change
func CoreToTargetChange(r core.TargetRecord) model.TargetChange {
	return model.TargetChange{
		Time:   r.Time,
		Target: jurorToNull(r.Target),
		Input:  r.Input,
	}
}

// CoreToSpeakerPosition converts a speaker position sample
func CoreToSpeakerPosition(r core.SpeakerPositionRecord) (model.SpeakerPosition, error) {
	pt, err := Vec3ToPoint(r.Position)
	if err != nil {
		return model.SpeakerPosition{}, fmt.Errorf("speaker %s: %w", r.Speaker, err)
	}
	return model.SpeakerPosition{
		Time:     r.Time,
		Speaker:  string(r.Speaker),
		Position: pt,
	}, nil
}
