// Package monitor keeps a status file up to date for the operator while a
// caption session runs.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cogconvo/captioner/internal/focus"
	"github.com/cogconvo/captioner/pkg/core"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// Status is a snapshot of a running session.
type Status struct {
	Time         time.Time    `json:"time"`
	Session      string       `json:"session"`
	Method       string       `json:"renderingMethod"`
	Elapsed      string       `json:"elapsed"`
	CaptionsSent int          `json:"captionsSent"`
	Caption      string       `json:"caption,omitempty"`
	Speaker      core.JurorID `json:"speaker,omitempty"`
	Focused      core.JurorID `json:"focused,omitempty"`
	Gaze         *focus.Gaze  `json:"gaze,omitempty"`
}

// Snapshot returns the current status.
type Snapshot func() Status

// Service manages status monitoring
type Service struct {
	path     string
	interval time.Duration
	snapshot Snapshot
	logger   *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	last      Status
}

// NewService creates a monitor writing snapshots to path.
func NewService(path string, interval time.Duration, snapshot Snapshot, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{path: path, interval: interval, snapshot: snapshot, logger: logger}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent snapshot written.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run rewrites the status file every interval until ctx is done. A final
// snapshot is written on the way out.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("status monitor already running")
	}
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	statusFile, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	defer statusFile.Close()
	s.logger.Debug("Starting status monitor", "file", s.path)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.write(statusFile)
			return nil
		case <-ticker.C:
			s.write(statusFile)
		}
	}
}

func (s *Service) write(f *os.File) {
	st := s.snapshot()
	if err := WriteStatus(f, st); err != nil {
		s.logger.Error("Error writing status file", "error", err)
		return
	}
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
}

// WriteStatus replaces the contents of f with st as indented JSON.
func WriteStatus(f *os.File, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
