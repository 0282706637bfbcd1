// pkg/core/caption.go
package core

import "time"

// Caption is one timed word chunk of the deliberation transcript.
// Delay is milliseconds from the start of playback.
type Caption struct {
	Text      string  `json:"text"`
	MessageID int     `json:"message_id"`
	ChunkID   int     `json:"chunk_id"`
	Delay     float64 `json:"delay"`
	SpeakerID JurorID `json:"speaker_id"`
}

// At returns the playback offset of the caption.
func (c Caption) At() time.Duration {
	return time.Duration(c.Delay * float64(time.Millisecond))
}

// CaptionState is the per-surface state driving caption visibility.
// Target holds either the active target or the cursor target depending on
// how the surface is configured.
type CaptionState struct {
	Speaker JurorID
	Target  JurorID
	Ambient bool
}

// CaptionMessage is sent to the glasses for every caption or focus change.
type CaptionMessage struct {
	MessageID int      `json:"message_id"`
	ChunkID   int      `json:"chunk_id"`
	Text      string   `json:"text"`
	SpeakerID JurorID  `json:"speaker_id"`
	FocusedID *JurorID `json:"focused_id"`
}

// NewCaptionMessage builds the wire message for a caption and the juror the
// viewer is focused on. An unset focus is encoded as null.
func NewCaptionMessage(c Caption, focused JurorID) CaptionMessage {
	msg := CaptionMessage{
		MessageID: c.MessageID,
		ChunkID:   c.ChunkID,
		Text:      c.Text,
		SpeakerID: c.SpeakerID,
	}
	if focused.IsSet() {
		f := focused
		msg.FocusedID = &f
	}
	return msg
}

// Focused returns the focused juror, or JurorNone.
func (m CaptionMessage) Focused() JurorID {
	if m.FocusedID == nil {
		return JurorNone
	}
	return *m.FocusedID
}

// OrientationMessage is read from a device reporting its head orientation.
type OrientationMessage struct {
	Azimuth float64 `json:"azimuth"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}
