// Package memory records a session in memory and exports it as (gzipped)
// JSON when the session ends.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/pkg/core"
)

// ErrNoSession is returned when ending a session that never started.
var ErrNoSession = errors.New("no session started")

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	captions  []core.CaptionRecord
	focus     []core.FocusRecord
	targets   []core.TargetRecord
	positions []core.SpeakerPositionRecord

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	b.session = s

	// Reset all collections
	b.captions = nil
	b.focus = nil
	b.targets = nil
	b.positions = nil
	b.lastExportPath = ""

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	if b.session.EndTime.IsZero() {
		b.session.EndTime = time.Now()
	}
	return b.exportJSON()
}

// RecordCaption stores a transmitted caption message
func (b *Backend) RecordCaption(r *core.CaptionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.captions = append(b.captions, *r)
	return nil
}

// RecordFocus stores a focus change
func (b *Backend) RecordFocus(r *core.FocusRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focus = append(b.focus, *r)
	return nil
}

// RecordTarget stores a caption target change
func (b *Backend) RecordTarget(r *core.TargetRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, *r)
	return nil
}

// RecordSpeakerPosition stores a sampled speaker position
func (b *Backend) RecordSpeakerPosition(r *core.SpeakerPositionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = append(b.positions, *r)
	return nil
}

// GetExportedFilePath returns the path of the last export, or "".
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported session.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.UploadMetadata{}
	}
	meta := core.UploadMetadata{
		SessionID:       b.session.UUID,
		RenderingMethod: b.session.RenderingMethod.String(),
		Captions:        len(b.captions),
	}
	if !b.session.EndTime.IsZero() {
		meta.Duration = b.session.EndTime.Sub(b.session.StartTime).Seconds()
	}
	return meta
}
