package session

import (
	"fmt"
	"time"

	"github.com/cogconvo/captioner/internal/caption"
	"github.com/cogconvo/captioner/internal/indicator"
	"github.com/cogconvo/captioner/pkg/core"
)

// Behavior is per-entity logic driven by the session.
type Behavior interface {
	OnInit(ctx *Context) error
	OnTick(ctx *Context, dt time.Duration)
	OnUpdate(ctx *Context, data any)
}

// Entity is a scene object with an explicit list of behaviours.
type Entity struct {
	ID        string
	Behaviors []Behavior
}

// NewEntity creates an entity.
func NewEntity(id string, behaviors ...Behavior) *Entity {
	return &Entity{ID: id, Behaviors: behaviors}
}

// Init runs OnInit on every behaviour, stopping at the first error.
func (e *Entity) Init(ctx *Context) error {
	for _, b := range e.Behaviors {
		if err := b.OnInit(ctx); err != nil {
			return fmt.Errorf("init %s: %w", e.ID, err)
		}
	}
	return nil
}

// Tick runs OnTick on every behaviour.
func (e *Entity) Tick(ctx *Context, dt time.Duration) {
	for _, b := range e.Behaviors {
		b.OnTick(ctx, dt)
	}
}

// Update runs OnUpdate on every behaviour.
func (e *Entity) Update(ctx *Context, data any) {
	for _, b := range e.Behaviors {
		b.OnUpdate(ctx, data)
	}
}

// CaptionUpdate is the data a caption entity accepts.
type CaptionUpdate struct {
	Speaker *core.JurorID
	Target  *core.JurorID
}

// CaptionBehavior applies the visibility rule every frame and whenever its
// surface changes. The store drops unchanged writes, so an idle frame costs
// nothing downstream.
type CaptionBehavior struct {
	Surface *caption.Surface
}

func (b *CaptionBehavior) OnInit(ctx *Context) error {
	if b.Surface == nil {
		return fmt.Errorf("caption behaviour without surface")
	}
	b.Surface.Apply()
	return nil
}

func (b *CaptionBehavior) OnTick(*Context, time.Duration) {
	b.Surface.Apply()
}

func (b *CaptionBehavior) OnUpdate(ctx *Context, data any) {
	switch u := data.(type) {
	case CaptionUpdate:
		if u.Speaker != nil {
			b.Surface.SetSpeaker(*u.Speaker)
		}
		if u.Target != nil {
			b.Surface.SetTarget(*u.Target)
		}
	case core.Caption:
		b.Surface.SetSpeaker(u.SpeakerID)
	}
}

// IndicatorBehavior re-aims a marker every frame.
type IndicatorBehavior struct {
	Updater *indicator.Updater
}

func (b *IndicatorBehavior) OnInit(*Context) error {
	if b.Updater == nil {
		return fmt.Errorf("indicator behaviour without updater")
	}
	return nil
}

func (b *IndicatorBehavior) OnTick(ctx *Context, _ time.Duration) {
	b.Updater.Tick(ctx.Anchor(), ctx.Speakers)
}

func (b *IndicatorBehavior) OnUpdate(*Context, any) {}

// Positioner is an element that can be moved.
type Positioner interface {
	SetPosition(p core.Vec3)
}

// StayBelow keeps an element under the viewer's head at a fixed height.
type StayBelow struct {
	Element Positioner
	Height  float64
	// Anchor also moves the indicator anchor with the element.
	Anchor bool
}

func (b *StayBelow) OnInit(*Context) error { return nil }

func (b *StayBelow) OnTick(ctx *Context, _ time.Duration) {
	p := ctx.Camera()
	p[1] = b.Height
	if b.Element != nil {
		b.Element.SetPosition(p)
	}
	if b.Anchor {
		ctx.SetAnchor(p)
	}
}

func (b *StayBelow) OnUpdate(*Context, any) {}

// Yawer is an element rotated about Y.
type Yawer interface {
	SetYaw(deg float64)
}

// RotateQE mirrors the rig yaw, which the q and e keys change, onto an element.
type RotateQE struct {
	Element Yawer
}

func (b *RotateQE) OnInit(ctx *Context) error {
	if b.Element != nil {
		b.Element.SetYaw(ctx.Yaw())
	}
	return nil
}

func (b *RotateQE) OnTick(ctx *Context, _ time.Duration) {
	if b.Element != nil {
		b.Element.SetYaw(ctx.Yaw())
	}
}

func (b *RotateQE) OnUpdate(*Context, any) {}
