// Package model holds the database schema of recorded sessions.
package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Session{},
	&CaptionMessage{},
	&FocusChange{},
	&TargetChange{},
	&SpeakerPosition{},
}

// Session is one viewing session
type Session struct {
	ID                  uint         `json:"id" gorm:"primarykey"`
	CreatedAt           time.Time    `json:"createdAt"`
	UUID                string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	RenderingMethod     int          `json:"renderingMethod"`
	RenderingMethodName string       `json:"renderingMethodName" gorm:"size:64"`
	CaptionsFile        string       `json:"captionsFile" gorm:"size:255"`
	FocusSource         string       `json:"focusSource" gorm:"size:32"`
	ClientAddr          string       `json:"clientAddr" gorm:"size:64"`
	StartTime           time.Time    `json:"startTime"`
	EndTime             sql.NullTime `json:"endTime"`
}

func (*Session) TableName() string {
	return "sessions"
}

// CaptionMessage is a caption message as transmitted to the glasses
type CaptionMessage struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	Time        time.Time      `json:"time" gorm:"index:idx_caption_time"`
	SessionID   uint           `json:"sessionId" gorm:"index:idx_caption_session_id"`
	Session     Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	MessageID   int            `json:"messageId"`
	ChunkID     int            `json:"chunkId"`
	SpeakerID   string         `json:"speakerId" gorm:"size:16"`
	FocusedID   sql.NullString `json:"focusedId" gorm:"size:16"`
	SendDelayMs float64        `json:"sendDelayMs"`
	Payload     datatypes.JSON `json:"payload"` // the message exactly as sent
}

func (*CaptionMessage) TableName() string {
	return "caption_messages"
}

// FocusChange is a change of the juror the viewer looks at
type FocusChange struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	Time      time.Time      `json:"time" gorm:"index:idx_focus_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_focus_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Focused   sql.NullString `json:"focused" gorm:"size:16"`
	Source    string         `json:"source" gorm:"size:32"`
}

func (*FocusChange) TableName() string {
	return "focus_changes"
}

// TargetChange is a change of the caption target from viewer input
type TargetChange struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	Time      time.Time      `json:"time" gorm:"index:idx_target_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_target_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Target    sql.NullString `json:"target" gorm:"size:16"`
	Input     string         `json:"input" gorm:"size:16"`
}

func (*TargetChange) TableName() string {
	return "target_changes"
}

// SpeakerPosition is a sampled world position of a speaker
type SpeakerPosition struct {
	ID        uint       `json:"id" gorm:"primarykey"`
	Time      time.Time  `json:"time" gorm:"index:idx_position_time"`
	SessionID uint       `json:"sessionId" gorm:"index:idx_position_session_id"`
	Session   Session    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Speaker   string     `json:"speaker" gorm:"size:16"`
	Position  geom.Point `json:"position"` // XYZ, scene metres
}

func (*SpeakerPosition) TableName() string {
	return "speaker_positions"
}
