// Package speaker holds the world position and active flag of every known
// speaker in the scene.
package speaker

import (
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Registry holds known speakers. Entries are created on first sighting and
// never removed. Safe for concurrent use: the bridge reader writes positions
// while the frame loop reads them.
type Registry struct {
	mu       sync.RWMutex
	order    []core.JurorID
	speakers map[core.JurorID]*entry
	active   core.JurorID
}

type entry struct {
	position core.Vec3
	resolved bool
}

// NewRegistry creates a registry that knows ids up front. Known speakers
// have no position until one is set, so Resolve reports false for them.
func NewRegistry(ids ...core.JurorID) *Registry {
	r := &Registry{speakers: make(map[core.JurorID]*entry, len(ids))}
	for _, id := range ids {
		r.ensure(id)
	}
	return r
}

func (r *Registry) ensure(id core.JurorID) *entry {
	e, ok := r.speakers[id]
	if !ok {
		e = &entry{}
		r.speakers[id] = e
		r.order = append(r.order, id)
	}
	return e
}

// Update sets a speaker's world position from its local offset and its
// parent's world position.
func (r *Registry) Update(id core.JurorID, local, parent core.Vec3) {
	r.SetPosition(id, local.Add(parent))
}

// SetPosition sets a speaker's world position.
func (r *Registry) SetPosition(id core.JurorID, world core.Vec3) {
	if !id.IsSet() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensure(id)
	e.position = world
	e.resolved = true
}

// Forget marks a speaker's position unresolved, e.g. when its scene element
// disappears. The speaker itself stays known.
func (r *Registry) Forget(id core.JurorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.speakers[id]; ok {
		e.resolved = false
	}
}

// SetActive makes id the only active speaker.
func (r *Registry) SetActive(id core.JurorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id.IsSet() {
		r.ensure(id)
	}
	r.active = id
}

// ClearActive leaves no speaker active.
func (r *Registry) ClearActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = core.JurorNone
}

// Active returns the active speaker, or JurorNone.
func (r *Registry) Active() core.JurorID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Resolve returns the world position of id, and false when the speaker is
// unknown or its position has not been reported.
func (r *Registry) Resolve(id core.JurorID) (core.Vec3, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.speakers[id]
	if !ok || !e.resolved {
		return core.Vec3{}, false
	}
	return e.position, true
}

// Get returns the speaker with id.
func (r *Registry) Get(id core.JurorID) (core.Speaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.speakers[id]
	if !ok {
		return core.Speaker{}, false
	}
	return core.Speaker{ID: id, Position: e.position, Active: r.active == id}, true
}

// All returns every known speaker in the order first seen.
func (r *Registry) All() []core.Speaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Speaker, 0, len(r.order))
	for _, id := range r.order {
		e := r.speakers[id]
		out = append(out, core.Speaker{ID: id, Position: e.position, Active: r.active == id})
	}
	return out
}

// Len returns the number of known speakers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
