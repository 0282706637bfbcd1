package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Loop ticks the entities of a session at a fixed rate.
type Loop struct {
	ctx *Context

	mu       sync.Mutex
	entities []*Entity
	frames   uint64
}

// NewLoop creates a loop over ctx.
func NewLoop(ctx *Context) *Loop {
	return &Loop{ctx: ctx}
}

// Add initialises e and adds it to the loop.
func (l *Loop) Add(e *Entity) error {
	l.ctx.Frame.Lock()
	defer l.ctx.Frame.Unlock()
	if err := e.Init(l.ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.entities = append(l.entities, e)
	l.mu.Unlock()
	return nil
}

// Entity returns the entity with id.
func (l *Loop) Entity(id string) (*Entity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Update delivers data to one entity between frames.
func (l *Loop) Update(id string, data any) error {
	e, ok := l.Entity(id)
	if !ok {
		return fmt.Errorf("unknown entity %q", id)
	}
	l.ctx.Frame.Lock()
	defer l.ctx.Frame.Unlock()
	e.Update(l.ctx, data)
	return nil
}

// Broadcast delivers data to every entity between frames.
func (l *Loop) Broadcast(data any) {
	l.mu.Lock()
	entities := append([]*Entity(nil), l.entities...)
	l.mu.Unlock()

	l.ctx.Frame.Lock()
	defer l.ctx.Frame.Unlock()
	for _, e := range entities {
		e.Update(l.ctx, data)
	}
}

// Step runs one frame.
func (l *Loop) Step(dt time.Duration) {
	l.mu.Lock()
	entities := append([]*Entity(nil), l.entities...)
	l.frames++
	l.mu.Unlock()

	l.ctx.Frame.Lock()
	defer l.ctx.Frame.Unlock()
	for _, e := range entities {
		e.Tick(l.ctx, dt)
	}
}

// Frames returns the number of frames run.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Run ticks every entity fps times a second until ctx is done.
func (l *Loop) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	l.ctx.Logger.Info("frame loop started", "fps", fps)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.ctx.Logger.Info("frame loop stopped", "frames", l.Frames())
			return nil
		case now := <-ticker.C:
			l.Step(now.Sub(last))
			last = now
		}
	}
}
