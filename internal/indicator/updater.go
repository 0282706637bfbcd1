package indicator

import (
	"log/slog"
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Element is the marker the updater drives.
type Element interface {
	SetOrientation(q core.Quat)
	SetColor(color string)
}

// Resolver looks up a speaker's world position.
type Resolver interface {
	Resolve(id core.JurorID) (core.Vec3, bool)
}

// SpeakerSource tells the updater which speaker to point at. A caption
// surface is one.
type SpeakerSource interface {
	Speaker() core.JurorID
	SpeakerIsActive() bool
}

// ActiveSource reports the registry's active speaker.
type ActiveSource interface {
	Active() core.JurorID
}

// Follow points a marker at a fixed speaker, active when the registry says so.
func Follow(id core.JurorID, active ActiveSource) SpeakerSource {
	return fixed{id: id, active: active}
}

type fixed struct {
	id     core.JurorID
	active ActiveSource
}

func (f fixed) Speaker() core.JurorID { return f.id }

func (f fixed) SpeakerIsActive() bool {
	return f.active != nil && f.active.Active() == f.id
}

// Updater recomputes one marker every frame.
type Updater struct {
	el     Element
	source SpeakerSource
	offset Offset
	colors Colors
	logger *slog.Logger

	mu      sync.Mutex
	missing map[core.JurorID]bool
}

// NewUpdater creates an updater for el.
func NewUpdater(el Element, source SpeakerSource, offset Offset, colors Colors, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		el:      el,
		source:  source,
		offset:  offset,
		colors:  colors,
		logger:  logger,
		missing: make(map[core.JurorID]bool),
	}
}

// Tick orients the marker from anchor toward the speaker and colours it.
// It does nothing when no speaker is set or the speaker's position cannot be
// resolved this frame; an unresolved speaker is logged once until it
// resolves again. Tick reports whether the marker was written.
func (u *Updater) Tick(anchor core.Vec3, speakers Resolver) bool {
	id := u.source.Speaker()
	if !id.IsSet() {
		return false
	}

	target, ok := speakers.Resolve(id)
	if !ok {
		u.mu.Lock()
		first := !u.missing[id]
		u.missing[id] = true
		u.mu.Unlock()
		if first {
			u.logger.Warn("speaker position unresolved, skipping indicator", "speaker", id)
		}
		return false
	}

	u.mu.Lock()
	if u.missing[id] {
		delete(u.missing, id)
		u.logger.Debug("speaker position resolved", "speaker", id)
	}
	u.mu.Unlock()

	q := u.offset.Apply(LookAt(anchor, target, Up))
	u.el.SetOrientation(q)
	u.el.SetColor(u.colors.Pick(u.source.SpeakerIsActive()))
	return true
}
