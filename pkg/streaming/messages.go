// Package streaming holds the JSON envelope protocol spoken over WebSockets,
// both to the viewer host and to the observer dashboard.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/cogconvo/captioner/pkg/core"
)

// Recording message types sent to the observer dashboard.
const (
	TypeStartSession    = "start_session"
	TypeEndSession      = "end_session"
	TypeCaption         = "caption"
	TypeFocus           = "focus"
	TypeTarget          = "target"
	TypeSpeakerPosition = "speaker_position"
)

// Viewer message types. Patches flow to the host; the rest are input the
// host reports.
const (
	TypePatch    = "patch"
	TypeSnapshot = "snapshot"
	TypeKey      = "key"
	TypeClick    = "click"
	TypeLeave    = "leave"
	TypePosition = "position"
	TypeCamera   = "camera"
	TypeGone     = "gone"
)

// Envelope wraps all messages sent over a WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// Marshal builds a JSON-encoded envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = b
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// SessionPayload announces the start or end of a recorded session.
type SessionPayload struct {
	Session *core.Session `json:"session"`
}

// KeyPayload is a key press in the viewer.
type KeyPayload struct {
	Key string `json:"key"`
}

// ClickPayload is a click on a speaker.
type ClickPayload struct {
	Speaker core.JurorID `json:"speaker"`
}

// PositionPayload reports a speaker's local position and its parent's
// world position.
type PositionPayload struct {
	Speaker core.JurorID `json:"speaker"`
	Local   [3]float64   `json:"local"`
	Parent  [3]float64   `json:"parent"`
}

// GonePayload reports that a speaker's scene element was removed.
type GonePayload struct {
	Speaker core.JurorID `json:"speaker"`
}

// CameraPayload reports the viewer's head position.
type CameraPayload struct {
	Position [3]float64 `json:"position"`
}
