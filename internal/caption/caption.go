// Package caption decides the visibility of caption surfaces from the
// speaker they show, the current target and whether they are ambient.
package caption

import (
	"fmt"
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Opacity applies the visibility rule. When speaker or target is unset it
// reports changed=false and the caller must leave the element alone.
// Otherwise a plain caption is opaque when speaker matches target and an
// ambient caption is opaque when it does not.
func Opacity(speaker, target core.JurorID, ambient bool) (opacity float64, changed bool) {
	if !speaker.IsSet() || !target.IsSet() {
		return 0, false
	}
	if (speaker == target) != ambient {
		return 1, true
	}
	return 0, true
}

// TargetField names the caption attribute that holds the target.
type TargetField string

const (
	// ActiveTarget is set from keyboard shortcuts and never cleared.
	ActiveTarget TargetField = "activeTarget"
	// CursorTarget is set by clicking a speaker and cleared when the pointer leaves.
	CursorTarget TargetField = "cursorTarget"
)

// ParseTargetField validates a configured target field name.
func ParseTargetField(s string) (TargetField, error) {
	switch TargetField(s) {
	case ActiveTarget, CursorTarget:
		return TargetField(s), nil
	default:
		return "", fmt.Errorf("unknown caption target field %q", s)
	}
}

// Clearable reports whether a pointer leave resets the target.
func (f TargetField) Clearable() bool {
	return f == CursorTarget
}

// TextElement is the text element a surface controls.
type TextElement interface {
	SetOpacity(opacity float64)
}

// Surface is one caption surface.
type Surface struct {
	id    string
	field TargetField
	el    TextElement

	mu    sync.RWMutex
	state core.CaptionState
}

// NewSurface creates a surface for el.
func NewSurface(id string, field TargetField, ambient bool, el TextElement) *Surface {
	return &Surface{
		id:    id,
		field: field,
		el:    el,
		state: core.CaptionState{Ambient: ambient},
	}
}

// ID returns the surface id.
func (s *Surface) ID() string { return s.id }

// Field returns which target attribute this surface uses.
func (s *Surface) Field() TargetField { return s.field }

// State returns a copy of the surface state.
func (s *Surface) State() core.CaptionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Speaker returns the speaker whose words the surface shows.
func (s *Surface) Speaker() core.JurorID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Speaker
}

// SpeakerIsActive reports whether the surface's speaker is the current target.
func (s *Surface) SpeakerIsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Speaker.IsSet() && s.state.Speaker == s.state.Target
}

// SetSpeaker sets the speaker and re-applies visibility.
func (s *Surface) SetSpeaker(id core.JurorID) bool {
	s.mu.Lock()
	s.state.Speaker = id
	s.mu.Unlock()
	return s.Apply()
}

// SetTarget sets the target and re-applies visibility.
func (s *Surface) SetTarget(id core.JurorID) bool {
	s.setTarget(id)
	return s.Apply()
}

// ClearTarget returns the target to unset. The element keeps its last
// opacity since the rule makes no change for an unset target.
func (s *Surface) ClearTarget() bool {
	s.setTarget(core.JurorNone)
	return s.Apply()
}

func (s *Surface) setTarget(id core.JurorID) {
	s.mu.Lock()
	s.state.Target = id
	s.mu.Unlock()
}

// Apply runs the visibility rule and writes the element's opacity when the
// rule yields one. It reports whether a write happened.
func (s *Surface) Apply() bool {
	st := s.State()
	opacity, changed := Opacity(st.Speaker, st.Target, st.Ambient)
	if !changed || s.el == nil {
		return false
	}
	s.el.SetOpacity(opacity)
	return true
}

// Set is every caption surface of a session.
type Set struct {
	mu       sync.Mutex
	surfaces []*Surface
}

// NewSet groups surfaces.
func NewSet(surfaces ...*Surface) *Set {
	return &Set{surfaces: surfaces}
}

// Add appends a surface.
func (c *Set) Add(s *Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaces = append(c.surfaces, s)
}

// Surfaces returns the surfaces in insertion order.
func (c *Set) Surfaces() []*Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Surface(nil), c.surfaces...)
}

// Get returns the surface with id.
func (c *Set) Get(id string) (*Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.surfaces {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// SetTargetAll sets the target of every surface before applying any of
// them, so no surface is observed with a stale target once Apply runs.
func (c *Set) SetTargetAll(id core.JurorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.surfaces {
		s.setTarget(id)
	}
	for _, s := range c.surfaces {
		s.Apply()
	}
}

// ClearTargetAll resets the target of every clearable surface.
func (c *Set) ClearTargetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.surfaces {
		if s.field.Clearable() {
			s.setTarget(core.JurorNone)
		}
	}
}
