// Package v1 contains the v1 export format for recorded viewing sessions.
package v1

import (
	"time"

	"github.com/cogconvo/captioner/pkg/core"
)

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version             int                `json:"version"`
	SessionID           string             `json:"sessionId"`
	RenderingMethod     int                `json:"renderingMethod"`
	RenderingMethodName string             `json:"renderingMethodName"`
	CaptionsFile        string             `json:"captionsFile"`
	FocusSource         string             `json:"focusSource"`
	ClientAddr          string             `json:"clientAddr,omitempty"`
	StartTime           time.Time          `json:"startTime"`
	EndTime             time.Time          `json:"endTime"`
	Duration            float64            `json:"duration"` // seconds
	Captions            []Caption          `json:"captions"`
	Focus               [][]any            `json:"focus"`     // [offsetMs, juror|null, source]
	Targets             [][]any            `json:"targets"`   // [offsetMs, juror|null, input]
	Positions           map[string][][]any `json:"positions"` // juror -> [offsetMs, [x, y, z]]
}

// Caption is one transmitted caption message.
type Caption struct {
	Offset    float64             `json:"offset"`    // ms since session start
	SendDelay float64             `json:"sendDelay"` // ms behind schedule
	Message   core.CaptionMessage `json:"message"`
}
