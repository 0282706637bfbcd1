// Package influxstorage implements the storage.Backend interface as points
// written to InfluxDB, for live latency and focus dashboards.
package influxstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/internal/influx"
	"github.com/cogconvo/captioner/pkg/core"
)

// Backend writes every record as an InfluxDB point tagged with the session.
type Backend struct {
	manager *influx.Manager
	log     zerolog.Logger
	session *core.Session
	seq     uint
}

// New creates a new InfluxDB storage backend.
func New(cfg config.InfluxConfig, log zerolog.Logger) *Backend {
	return &Backend{manager: influx.NewManager(cfg, log), log: log}
}

// Init connects to InfluxDB or opens the backup file.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to initialize influx: %w", err)
	}
	return nil
}

// Close flushes pending points.
func (b *Backend) Close() error {
	return b.manager.Close()
}

// StartSession tags subsequent points with the session id.
func (b *Backend) StartSession(s *core.Session) error {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	b.seq++
	s.ID = b.seq
	b.session = s
	return nil
}

// EndSession flushes points of the session.
func (b *Backend) EndSession() error {
	if b.session == nil {
		return errors.New("no session started")
	}
	if b.session.EndTime.IsZero() {
		b.session.EndTime = time.Now()
	}
	return b.manager.Flush()
}

func (b *Backend) sessionTag() string {
	if b.session == nil {
		return ""
	}
	return b.session.UUID
}

// RecordCaption writes a caption point.
func (b *Backend) RecordCaption(r *core.CaptionRecord) error {
	return b.manager.WritePoint(influx.CaptionPoint(b.sessionTag(), r))
}

// RecordFocus writes a focus point.
func (b *Backend) RecordFocus(r *core.FocusRecord) error {
	return b.manager.WritePoint(influx.FocusPoint(b.sessionTag(), r))
}

// RecordTarget writes a target point.
func (b *Backend) RecordTarget(r *core.TargetRecord) error {
	return b.manager.WritePoint(influx.TargetPoint(b.sessionTag(), r))
}

// RecordSpeakerPosition writes a speaker position point.
func (b *Backend) RecordSpeakerPosition(r *core.SpeakerPositionRecord) error {
	return b.manager.WritePoint(influx.SpeakerPositionPoint(b.sessionTag(), r))
}
