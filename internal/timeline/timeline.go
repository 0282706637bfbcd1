// Package timeline loads a caption script and plays it back on an absolute
// schedule.
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cogconvo/captioner/pkg/core"
)

// ErrNoCaptions is returned for an empty caption script.
var ErrNoCaptions = errors.New("no captions")

// Load reads a JSON array of captions. Every caption must name a known
// speaker and carry a non-negative delay. Captions are returned in delay
// order.
func Load(path string) ([]core.Caption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a caption script.
func Parse(data []byte) ([]core.Caption, error) {
	var captions []core.Caption
	if err := json.Unmarshal(data, &captions); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}
	if len(captions) == 0 {
		return nil, ErrNoCaptions
	}
	for i, c := range captions {
		if !c.SpeakerID.Valid() {
			return nil, fmt.Errorf("caption %d: %w: %q", i, core.ErrUnknownJuror, c.SpeakerID)
		}
		if c.Delay < 0 {
			return nil, fmt.Errorf("caption %d: negative delay %v", i, c.Delay)
		}
	}
	sort.SliceStable(captions, func(i, j int) bool { return captions[i].Delay < captions[j].Delay })
	return captions, nil
}

// Player emits captions at their scheduled time.
type Player struct {
	captions []core.Caption
	logger   *slog.Logger
	onEmit   []func(core.Caption)

	mu      sync.RWMutex
	current *core.Caption
	changed chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// OnCaption registers a callback run for every emitted caption.
func OnCaption(fn func(core.Caption)) PlayerOption {
	return func(p *Player) { p.onEmit = append(p.onEmit, fn) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

// NewPlayer creates a player for captions in delay order.
func NewPlayer(captions []core.Caption, opts ...PlayerOption) *Player {
	p := &Player{
		captions: captions,
		logger:   slog.Default(),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len returns the number of captions.
func (p *Player) Len() int { return len(p.captions) }

// Run emits caption i at start + delay(i). Each wait is computed from start,
// so late wake-ups never push later captions back. Run returns nil after the
// last caption, or the context error when cancelled.
func (p *Player) Run(ctx context.Context, start time.Time) error {
	for i, c := range p.captions {
		if wait := time.Until(start.Add(c.At())); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		p.emit(c)
		p.logger.Debug("caption emitted", "index", i, "speaker", c.SpeakerID, "message", c.MessageID, "chunk", c.ChunkID)
	}
	p.logger.Info("caption timeline finished", "captions", len(p.captions))
	return nil
}

func (p *Player) emit(c core.Caption) {
	p.mu.Lock()
	p.current = &c
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()

	for _, fn := range p.onEmit {
		fn(c)
	}
}

// Current returns the latest emitted caption.
func (p *Player) Current() (core.Caption, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return core.Caption{}, false
	}
	return *p.current, true
}

// Changed returns a channel closed at the next emission.
func (p *Player) Changed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}
