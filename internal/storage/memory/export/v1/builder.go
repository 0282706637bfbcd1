package v1

import (
	"math"
	"time"

	"github.com/cogconvo/captioner/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session   *core.Session
	Captions  []core.CaptionRecord
	Focus     []core.FocusRecord
	Targets   []core.TargetRecord
	Positions []core.SpeakerPositionRecord
}

// Build converts recorded session data into the v1 export.
func Build(data *SessionData) Export {
	s := data.Session
	export := Export{
		Version:             FormatVersion,
		SessionID:           s.UUID,
		RenderingMethod:     int(s.RenderingMethod),
		RenderingMethodName: s.RenderingMethod.String(),
		CaptionsFile:        s.CaptionsFile,
		FocusSource:         s.FocusSource,
		ClientAddr:          s.ClientAddr,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		Captions:            make([]Caption, 0, len(data.Captions)),
		Focus:               make([][]any, 0, len(data.Focus)),
		Targets:             make([][]any, 0, len(data.Targets)),
		Positions:           make(map[string][][]any),
	}
	if !s.EndTime.IsZero() && s.EndTime.After(s.StartTime) {
		export.Duration = round(s.EndTime.Sub(s.StartTime).Seconds())
	}

	for _, c := range data.Captions {
		export.Captions = append(export.Captions, Caption{
			Offset:    offset(s.StartTime, c.Time),
			SendDelay: millis(c.SendDelay),
			Message:   c.Message,
		})
	}

	// Format: [offsetMs, juror, source]
	for _, f := range data.Focus {
		export.Focus = append(export.Focus, []any{offset(s.StartTime, f.Time), jurorOrNil(f.Focused), f.Source})
	}

	// Format: [offsetMs, juror, input]
	for _, t := range data.Targets {
		export.Targets = append(export.Targets, []any{offset(s.StartTime, t.Time), jurorOrNil(t.Target), t.Input})
	}

	// Format: juror -> [offsetMs, [x, y, z]]
	for _, p := range data.Positions {
		key := string(p.Speaker)
		export.Positions[key] = append(export.Positions[key], []any{
			offset(s.StartTime, p.Time),
			[]float64{p.Position[0], p.Position[1], p.Position[2]},
		})
	}

	return export
}

func offset(start, t time.Time) float64 {
	if start.IsZero() {
		return 0
	}
	return millis(t.Sub(start))
}

func millis(d time.Duration) float64 {
	return round(float64(d) / float64(time.Millisecond))
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func jurorOrNil(id core.JurorID) any {
	if !id.IsSet() {
		return nil
	}
	return string(id)
}
