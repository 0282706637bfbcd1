// Package streaming pushes captions to the glasses client. The latest
// caption and the latest focus are combined, and a message goes out only
// when that pair changes.
package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cogconvo/captioner/pkg/core"
)

const instrumentationName = "github.com/cogconvo/captioner/internal/streaming"

// CaptionSource is the caption timeline.
type CaptionSource interface {
	Current() (core.Caption, bool)
	Changed() <-chan struct{}
}

// FocusSource is the focus tracker.
type FocusSource interface {
	Current() (core.JurorID, bool)
	Changed() <-chan struct{}
}

// Encoder writes one message to the client.
type Encoder interface {
	Encode(v any) error
}

// Recorder stores every transmitted message.
type Recorder interface {
	RecordCaption(r *core.CaptionRecord) error
}

type pair struct {
	caption core.Caption
	focused core.JurorID
}

// Streamer combines captions and focus into caption messages.
type Streamer struct {
	captions CaptionSource
	focus    FocusSource
	recorder Recorder
	start    time.Time
	logger   *slog.Logger

	sent    metric.Int64Counter
	last    *pair
	counter atomic.Int64
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithRecorder records every sent message.
func WithRecorder(r Recorder) Option {
	return func(s *Streamer) { s.recorder = r }
}

// WithStart sets the timeline start used to measure send delay.
func WithStart(t time.Time) Option {
	return func(s *Streamer) { s.start = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Streamer) { s.logger = l }
}

// New creates a streamer.
func New(captions CaptionSource, focus FocusSource, opts ...Option) (*Streamer, error) {
	s := &Streamer{
		captions: captions,
		focus:    focus,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.sent, err = otel.Meter(instrumentationName).Int64Counter(
		"streamer.messages.sent",
		metric.WithDescription("Caption messages sent to the glasses client"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	return s, nil
}

// Sent returns the number of messages sent.
func (s *Streamer) Sent() int { return int(s.counter.Load()) }

// Run sends until ctx is done or a send fails. Nothing is sent before the
// first caption exists. A pending change is flushed once more on the way out.
func (s *Streamer) Run(ctx context.Context, enc Encoder) error {
	for {
		capCh := s.captions.Changed()
		focCh := s.focus.Changed()

		if err := s.flush(ctx, enc); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return s.flush(context.WithoutCancel(ctx), enc)
		case <-capCh:
		case <-focCh:
		}
	}
}

// flush sends the current pair if it differs from the last one sent.
func (s *Streamer) flush(ctx context.Context, enc Encoder) error {
	c, ok := s.captions.Current()
	if !ok {
		return nil
	}
	focused, _ := s.focus.Current()
	p := pair{caption: c, focused: focused}
	if s.last != nil && *s.last == p {
		return nil
	}

	msg := core.NewCaptionMessage(c, focused)
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("send caption %d/%d: %w", c.MessageID, c.ChunkID, err)
	}
	s.last = &p
	s.counter.Add(1)
	s.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", string(c.SpeakerID))))

	if s.recorder != nil {
		now := time.Now()
		rec := &core.CaptionRecord{Time: now, Message: msg}
		if !s.start.IsZero() {
			rec.SendDelay = now.Sub(s.start.Add(c.At()))
		}
		if err := s.recorder.RecordCaption(rec); err != nil {
			s.logger.Warn("Failed to record caption", "error", err)
		}
	}
	return nil
}
