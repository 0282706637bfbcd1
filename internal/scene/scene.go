// Package scene is a headless attribute store standing in for the rendering
// host. Element writes become patches that a host applies to its own scene
// graph.
package scene

import (
	"sort"
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Attribute names understood by the host.
const (
	AttrOpacity  = "opacity"
	AttrColor    = "color"
	AttrRotation = "rotation" // quaternion [x, y, z, w]
	AttrPosition = "position" // [x, y, z]
	AttrYaw      = "yaw"      // degrees about Y
)

// Patch is a single attribute write.
type Patch struct {
	Entity    string `json:"entity"`
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// Sink receives patches.
type Sink interface {
	Push(p Patch)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Patch)

// Push calls f.
func (f SinkFunc) Push(p Patch) { f(p) }

type key struct {
	entity, attr string
}

// Store records the last value of every attribute and forwards changes to
// its sinks. Writing the value an attribute already holds is suppressed.
type Store struct {
	mu     sync.Mutex
	values map[key]any
	sinks  []Sink
}

// NewStore creates a store forwarding to sinks.
func NewStore(sinks ...Sink) *Store {
	return &Store{values: make(map[key]any), sinks: sinks}
}

// AddSink attaches another sink.
func (s *Store) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Set writes an attribute and reports whether it changed.
func (s *Store) Set(entity, attr string, value any) bool {
	s.mu.Lock()
	k := key{entity, attr}
	if prev, ok := s.values[k]; ok && prev == value {
		s.mu.Unlock()
		return false
	}
	s.values[k] = value
	sinks := s.sinks
	s.mu.Unlock()

	p := Patch{Entity: entity, Attribute: attr, Value: encode(value)}
	for _, sink := range sinks {
		sink.Push(p)
	}
	return true
}

// Get returns the current value of an attribute.
func (s *Store) Get(entity, attr string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key{entity, attr}]
	return v, ok
}

// Snapshot returns every attribute as patches, sorted by entity then
// attribute, so a newly connected host can catch up.
func (s *Store) Snapshot() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Patch, 0, len(s.values))
	for k, v := range s.values {
		out = append(out, Patch{Entity: k.entity, Attribute: k.attr, Value: encode(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Attribute < out[j].Attribute
	})
	return out
}

func encode(v any) any {
	switch t := v.(type) {
	case core.Quat:
		return [4]float64{t.V[0], t.V[1], t.V[2], t.W}
	case core.Vec3:
		return [3]float64(t)
	default:
		return v
	}
}

// Text is a text element whose opacity gates a caption.
type Text struct {
	store *Store
	id    string
}

// Text returns the text element with id.
func (s *Store) Text(id string) *Text { return &Text{store: s, id: id} }

// SetOpacity writes the element's opacity.
func (t *Text) SetOpacity(opacity float64) { t.store.Set(t.id, AttrOpacity, opacity) }

// Marker is an indicator mesh.
type Marker struct {
	store *Store
	id    string
}

// Marker returns the marker element with id.
func (s *Store) Marker(id string) *Marker { return &Marker{store: s, id: id} }

// SetOrientation writes the marker's rotation.
func (m *Marker) SetOrientation(q core.Quat) { m.store.Set(m.id, AttrRotation, q) }

// SetColor writes the marker's material colour.
func (m *Marker) SetColor(color string) { m.store.Set(m.id, AttrColor, color) }

// Anchored is an element positioned relative to the camera rig.
type Anchored struct {
	store *Store
	id    string
}

// Anchored returns the anchored element with id.
func (s *Store) Anchored(id string) *Anchored { return &Anchored{store: s, id: id} }

// SetPosition writes the element's position.
func (a *Anchored) SetPosition(p core.Vec3) { a.store.Set(a.id, AttrPosition, p) }

// SetYaw writes the element's rotation about Y in degrees.
func (a *Anchored) SetYaw(deg float64) { a.store.Set(a.id, AttrYaw, deg) }
