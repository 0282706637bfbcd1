package input

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/cogconvo/captioner/internal/caption"
	"github.com/cogconvo/captioner/internal/dispatcher"
	"github.com/cogconvo/captioner/internal/speaker"
	"github.com/cogconvo/captioner/pkg/core"
)

// Rotation keys.
const (
	KeyRotateLeft  = "q"
	KeyRotateRight = "e"
)

// Dispatcher commands handled by the controller.
const (
	CmdKey      = ":KEY:"
	CmdClick    = ":CLICK:"
	CmdLeave    = ":LEAVE:"
	CmdPosition = ":POSITION:"
	CmdCamera   = ":CAMERA:"
	CmdGone     = ":GONE:"
)

// Input kinds passed to target listeners.
const (
	SourceKey   = "key"
	SourceClick = "click"
	SourceLeave = "leave"
)

// Rig is the camera rig the rotation keys turn.
type Rig interface {
	Rotate(degrees float64)
}

// Camera receives the viewer's head position.
type Camera interface {
	SetCamera(pos core.Vec3)
}

// TargetListener is told about every target change, e.g. for recording.
type TargetListener func(target core.JurorID, source string)

// Controller applies input to the session state.
type Controller struct {
	keys      KeyMap
	captions  *caption.Set
	speakers  *speaker.Registry
	rig       Rig
	camera    Camera
	step      float64
	logger    *slog.Logger
	listeners []TargetListener
	mu        sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithRig enables q/e rotation of rig by step degrees.
func WithRig(rig Rig, step float64) Option {
	return func(c *Controller) {
		c.rig = rig
		c.step = step
	}
}

// WithCamera forwards camera reports to cam.
func WithCamera(cam Camera) Option {
	return func(c *Controller) { c.camera = cam }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// OnTarget registers a listener for target changes.
func OnTarget(l TargetListener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

// NewController creates a controller over the session's captions and speakers.
func NewController(keys KeyMap, captions *caption.Set, speakers *speaker.Registry, opts ...Option) *Controller {
	c := &Controller{
		keys:     keys,
		captions: captions,
		speakers: speakers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key handles a key press. Mapped keys set the target of every caption
// surface at once; q and e turn the rig. Other keys are ignored. Key names
// are matched case-insensitively, as the key map is stored lower case. Key
// reports whether the key was handled.
func (c *Controller) Key(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key = strings.ToLower(key)

	switch key {
	case KeyRotateLeft:
		return c.rotate(c.step)
	case KeyRotateRight:
		return c.rotate(-c.step)
	}

	id, ok := c.keys.Lookup(key)
	if !ok {
		return false
	}
	c.setTarget(id, SourceKey)
	return true
}

func (c *Controller) rotate(deg float64) bool {
	if c.rig == nil {
		return false
	}
	c.rig.Rotate(deg)
	return true
}

// Click sets the target to the clicked speaker.
func (c *Controller) Click(id core.JurorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTarget(id, SourceClick)
}

// Leave clears the target of cursor-driven surfaces. Surfaces whose target
// comes from the keyboard keep it.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.captions.ClearTargetAll()
	c.speakers.ClearActive()
	c.notify(core.JurorNone, SourceLeave)
}

func (c *Controller) setTarget(id core.JurorID, source string) {
	c.captions.SetTargetAll(id)
	c.speakers.SetActive(id)
	c.logger.Debug("caption target set", "target", id, "input", source)
	c.notify(id, source)
}

func (c *Controller) notify(id core.JurorID, source string) {
	for _, l := range c.listeners {
		l(id, source)
	}
}

// Position records a speaker's world position from its local offset and its
// parent's position.
func (c *Controller) Position(id core.JurorID, local, parent core.Vec3) {
	c.speakers.Update(id, local, parent)
}

// Gone marks a speaker's position unresolved after its scene element was
// removed. Markers pointing at it stop moving until it reports again.
func (c *Controller) Gone(id core.JurorID) {
	c.speakers.Forget(id)
	c.logger.Debug("speaker element gone", "speaker", id)
}

// Camera records the viewer's head position.
func (c *Controller) Camera(pos core.Vec3) {
	if c.camera != nil {
		c.camera.SetCamera(pos)
	}
}

// Register installs the controller's commands on d. Every handler runs
// under frame so input is applied between frames; the last write wins.
func (c *Controller) Register(d *dispatcher.Dispatcher, frame sync.Locker) {
	opts := []dispatcher.Option{dispatcher.Serialized(frame), dispatcher.Logged()}

	d.Register(CmdKey, func(e dispatcher.Event) (any, error) {
		return c.Key(e.Arg(0)), nil
	}, opts...)

	d.Register(CmdClick, func(e dispatcher.Event) (any, error) {
		id, err := core.ParseJurorID(e.Arg(0))
		if err != nil {
			return nil, err
		}
		if !id.IsSet() {
			return nil, fmt.Errorf("click without speaker id")
		}
		c.Click(id)
		return true, nil
	}, opts...)

	d.Register(CmdLeave, func(e dispatcher.Event) (any, error) {
		c.Leave()
		return true, nil
	}, opts...)

	// positions arrive every frame; buffer them and drop when behind
	d.Register(CmdPosition, func(e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, fmt.Errorf("position without speaker id")
		}
		id, err := core.ParseJurorID(e.Args[0])
		if err != nil {
			return nil, err
		}
		v, err := parseFloats(e.Args[1:])
		if err != nil {
			return nil, fmt.Errorf("position for %s: %w", id, err)
		}
		switch len(v) {
		case 3:
			c.Position(id, core.Vec3{v[0], v[1], v[2]}, core.Vec3{})
		case 6:
			c.Position(id, core.Vec3{v[0], v[1], v[2]}, core.Vec3{v[3], v[4], v[5]})
		default:
			return nil, fmt.Errorf("position for %s: want 3 or 6 coordinates, got %d", id, len(v))
		}
		return true, nil
	}, dispatcher.Buffered(256), dispatcher.Serialized(frame))

	d.Register(CmdGone, func(e dispatcher.Event) (any, error) {
		id, err := core.ParseJurorID(e.Arg(0))
		if err != nil {
			return nil, err
		}
		if !id.IsSet() {
			return nil, fmt.Errorf("gone without speaker id")
		}
		c.Gone(id)
		return true, nil
	}, dispatcher.Serialized(frame))

	d.Register(CmdCamera, func(e dispatcher.Event) (any, error) {
		v, err := parseFloats(e.Args)
		if err != nil || len(v) != 3 {
			return nil, fmt.Errorf("camera: want 3 coordinates: %v", e.Args)
		}
		c.Camera(core.Vec3{v[0], v[1], v[2]})
		return true, nil
	}, dispatcher.Serialized(frame))
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
