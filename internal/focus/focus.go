// Package focus tracks which juror the viewer is looking at. Sources read the
// hardware (an eye-tracking serial device or a head orientation stream) or
// simulate it; a Tracker keeps the latest value.
package focus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cogconvo/captioner/internal/config"
	"github.com/cogconvo/captioner/pkg/core"
)

// Source reports focus changes until ctx is done or the device fails. An
// emitted JurorNone means nobody is in focus.
type Source interface {
	Run(ctx context.Context, emit func(core.JurorID)) error
}

// New builds the source selected by cfg.Source: serial, orientation or mock.
func New(cfg config.FocusConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Source {
	case "serial":
		return NewSerialSource(cfg.Serial.Port, cfg.Serial.BaudRate, logger), nil
	case "orientation":
		sectors, err := ParseSectors(cfg.Orientation.Sectors)
		if err != nil {
			return nil, err
		}
		return NewOrientationSource(cfg.Orientation.Addr, NewAzimuthFilter(cfg.Orientation.Window),
			cfg.Orientation.CenterAzimuth, sectors, logger), nil
	case "mock", "":
		return NewMockSource(cfg.Mock.MinInterval, cfg.Mock.MaxInterval, cfg.Mock.Seed), nil
	default:
		return nil, fmt.Errorf("unknown focus source: %s", cfg.Source)
	}
}

// Tracker holds the latest focused juror and notifies only on change.
type Tracker struct {
	mu        sync.RWMutex
	current   core.JurorID
	seen      bool
	changed   chan struct{}
	listeners []func(core.JurorID)
}

// NewTracker creates a tracker with nothing in focus.
func NewTracker(listeners ...func(core.JurorID)) *Tracker {
	return &Tracker{changed: make(chan struct{}), listeners: listeners}
}

// Set records id and reports whether it differs from the previous value.
// The first value always counts as a change.
func (t *Tracker) Set(id core.JurorID) bool {
	t.mu.Lock()
	if t.seen && t.current == id {
		t.mu.Unlock()
		return false
	}
	t.current = id
	t.seen = true
	close(t.changed)
	t.changed = make(chan struct{})
	listeners := t.listeners
	t.mu.Unlock()

	for _, l := range listeners {
		l(id)
	}
	return true
}

// Current returns the focused juror and whether any value was seen yet.
func (t *Tracker) Current() (core.JurorID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.seen
}

// Changed returns a channel closed at the next change.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

// Run feeds src into the tracker until src returns.
func (t *Tracker) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, func(id core.JurorID) { t.Set(id) })
}
