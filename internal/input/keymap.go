// Package input turns key presses, pointer events and host position reports
// into caption target and speaker registry updates.
package input

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cogconvo/captioner/pkg/core"
)

// KeyMap maps the four shortcut keys to jurors.
type KeyMap map[string]core.JurorID

// DefaultKeyMap binds 1-4 to the jurors in seating order.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"1": core.JurorA,
		"2": core.JurorB,
		"3": core.JurorC,
		"4": core.JuryForeman,
	}
}

// NewKeyMap validates a configured key table: exactly one key per juror, no
// key that collides with the rotation keys, and lower-case key names only.
// Config keys are lower-cased on load and presses are folded before lookup,
// so an upper-case entry could never match.
func NewKeyMap(raw map[string]string) (KeyMap, error) {
	if len(raw) != len(core.Jurors) {
		return nil, fmt.Errorf("key map needs %d entries, got %d", len(core.Jurors), len(raw))
	}
	km := make(KeyMap, len(raw))
	seen := make(map[core.JurorID]string, len(raw))
	for key, v := range raw {
		if key != strings.ToLower(key) {
			return nil, fmt.Errorf("key %q: key names must be lower case", key)
		}
		if key == KeyRotateLeft || key == KeyRotateRight {
			return nil, fmt.Errorf("key %q is reserved for rotation", key)
		}
		id, err := core.ParseJurorID(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		if !id.IsSet() {
			return nil, fmt.Errorf("key %q: empty juror", key)
		}
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("keys %q and %q both map to %s", other, key, id)
		}
		seen[id] = key
		km[key] = id
	}
	return km, nil
}

// Lookup returns the juror bound to key.
func (k KeyMap) Lookup(key string) (core.JurorID, bool) {
	id, ok := k[key]
	return id, ok
}

// Keys returns the bound keys in sorted order.
func (k KeyMap) Keys() []string {
	keys := make([]string, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
