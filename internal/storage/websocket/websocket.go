// Package websocket streams session records to an observer dashboard.
package websocket

import (
	"log/slog"
	"time"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/pkg/core"
	"github.com/cogconvo/captioner/pkg/streaming"
)

// Backend streams session data over WebSocket to an observer dashboard.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	link    *link
	cfg     config.WebSocketConfig
	seq     uint
	session *core.Session
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		link: newLink(logger.With("component", "observer")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	if n := b.link.dropped.Load(); n > 0 {
		b.link.logger.Warn("Observer records dropped", "count", n)
	}
	return b.link.close()
}

// sendEnvelope queues a record without waiting for the dashboard.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	b.link.send(data)
	return nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	b.seq++
	s.ID = b.seq
	b.session = s

	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.SessionPayload{Session: s})
	if err != nil {
		return err
	}

	// replayed on reconnect so the dashboard knows which session records belong to
	b.link.setGreeting(data)
	return b.link.request(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	var payload any
	if b.session != nil {
		if b.session.EndTime.IsZero() {
			b.session.EndTime = time.Now()
		}
		payload = streaming.SessionPayload{Session: b.session}
	}

	data, err := streaming.Marshal(streaming.TypeEndSession, payload)
	if err == nil {
		err = b.link.request(data, streaming.TypeEndSession, ackTimeout)
	}
	b.link.setGreeting(nil)
	b.session = nil

	return err
}

func (b *Backend) RecordCaption(r *core.CaptionRecord) error {
	return b.sendEnvelope(streaming.TypeCaption, r)
}

func (b *Backend) RecordFocus(r *core.FocusRecord) error {
	return b.sendEnvelope(streaming.TypeFocus, r)
}

func (b *Backend) RecordTarget(r *core.TargetRecord) error {
	return b.sendEnvelope(streaming.TypeTarget, r)
}

func (b *Backend) RecordSpeakerPosition(r *core.SpeakerPositionRecord) error {
	return b.sendEnvelope(streaming.TypeSpeakerPosition, r)
}
