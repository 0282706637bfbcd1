// Package storage records viewing sessions: every caption message sent to
// the glasses, focus changes, target changes and speaker positions.
package storage

import "github.com/cogconvo/captioner/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (StartSession assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordCaption(r *core.CaptionRecord) error
	RecordFocus(r *core.FocusRecord) error
	RecordTarget(r *core.TargetRecord) error
	RecordSpeakerPosition(r *core.SpeakerPositionRecord) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to an observer dashboard.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
