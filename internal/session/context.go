// Package session owns the state of one viewing session and runs the
// per-frame behaviours of its entities.
package session

import (
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/cogconvo/captioner/internal/caption"
	"github.com/cogconvo/captioner/internal/speaker"
	"github.com/cogconvo/captioner/pkg/core"
)

// Context is the session-scoped state every behaviour receives. Nothing here
// is package-global; two sessions never share state.
type Context struct {
	ID       string
	Speakers *speaker.Registry
	Captions *caption.Set
	Logger   *slog.Logger

	// Frame is held while a frame runs and while input handlers run.
	Frame sync.Mutex

	mu     sync.RWMutex
	camera core.Vec3
	anchor core.Vec3
	yaw    float64
}

// NewContext creates a session with a fresh id.
func NewContext(speakers *speaker.Registry, captions *caption.Set, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Context{
		ID:       id,
		Speakers: speakers,
		Captions: captions,
		Logger:   logger.With("session", id),
	}
}

// SetCamera records the viewer's head position.
func (c *Context) SetCamera(pos core.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.camera = pos
}

// Camera returns the viewer's head position.
func (c *Context) Camera() core.Vec3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.camera
}

// SetAnchor records the position indicators are aimed from.
func (c *Context) SetAnchor(pos core.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchor = pos
}

// Anchor returns the position indicators are aimed from.
func (c *Context) Anchor() core.Vec3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.anchor
}

// Rotate turns the camera rig about Y, keeping yaw within [0, 360).
func (c *Context) Rotate(degrees float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw = math.Mod(c.yaw+degrees, 360)
	if c.yaw < 0 {
		c.yaw += 360
	}
}

// Yaw returns the rig rotation in degrees.
func (c *Context) Yaw() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.yaw
}
