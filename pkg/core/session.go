// pkg/core/session.go
package core

import (
	"fmt"
	"time"
)

// RenderingMethod selects how the glasses present captions.
type RenderingMethod int

const (
	MonitorOnly                             RenderingMethod = 1
	GlobalOnly                              RenderingMethod = 2
	MonitorAndGlobal                        RenderingMethod = 3
	GlobalWithDirectionIndicators           RenderingMethod = 4
	WhoSaidWhat                             RenderingMethod = 5
	MonitorAndGlobalWithDirectionIndicators RenderingMethod = 6
	FocusedSpeakerOnly                      RenderingMethod = 8
	FocusedSpeakerAndGlobal                 RenderingMethod = 9
)

var renderingMethodNames = map[RenderingMethod]string{
	MonitorOnly:                             "monitor_only",
	GlobalOnly:                              "global_only",
	MonitorAndGlobal:                        "monitor_and_global",
	GlobalWithDirectionIndicators:           "global_with_direction_indicators",
	WhoSaidWhat:                             "who_said_what",
	MonitorAndGlobalWithDirectionIndicators: "monitor_and_global_with_direction_indicators",
	FocusedSpeakerOnly:                      "focused_speaker_only",
	FocusedSpeakerAndGlobal:                 "focused_speaker_and_global",
}

// Valid reports whether m is a known rendering method.
func (m RenderingMethod) Valid() bool {
	_, ok := renderingMethodNames[m]
	return ok
}

func (m RenderingMethod) String() string {
	if name, ok := renderingMethodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("rendering_method(%d)", int(m))
}

// ParseRenderingMethod validates an integer rendering method.
func ParseRenderingMethod(i int) (RenderingMethod, error) {
	m := RenderingMethod(i)
	if !m.Valid() {
		return 0, fmt.Errorf("invalid rendering method %d", i)
	}
	return m, nil
}

// Session is one viewing session of the deliberation.
type Session struct {
	ID              uint
	UUID            string
	RenderingMethod RenderingMethod
	CaptionsFile    string
	FocusSource     string
	ClientAddr      string
	StartTime       time.Time
	EndTime         time.Time
}

// CaptionRecord is a caption message as transmitted to the glasses.
type CaptionRecord struct {
	Time      time.Time
	Message   CaptionMessage
	SendDelay time.Duration // how late the send was relative to the caption's scheduled time
}

// FocusRecord is a change of the juror the viewer is focused on.
type FocusRecord struct {
	Time    time.Time
	Focused JurorID
	Source  string
}

// TargetRecord is a change of the caption target from user input.
type TargetRecord struct {
	Time   time.Time
	Target JurorID
	Input  string // key, click or leave
}

// SpeakerPositionRecord is a sampled world position of a speaker.
type SpeakerPositionRecord struct {
	Time     time.Time
	Speaker  JurorID
	Position Vec3
}

// UploadMetadata describes an exported session file.
type UploadMetadata struct {
	SessionID       string
	RenderingMethod string
	Duration        float64 // seconds
	Captions        int
}
