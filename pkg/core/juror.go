// pkg/core/juror.go
package core

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrUnknownJuror is returned when a speaker id is not one of the four jurors.
var ErrUnknownJuror = errors.New("unknown juror id")

// JurorID identifies a speaker in the deliberation. The empty value means unset.
type JurorID string

const (
	JurorNone   JurorID = ""
	JurorA      JurorID = "juror-a"
	JurorB      JurorID = "juror-b"
	JurorC      JurorID = "juror-c"
	JuryForeman JurorID = "jury-foreman"
)

// Jurors lists every known speaker in seating order.
var Jurors = [4]JurorID{JurorA, JurorB, JurorC, JuryForeman}

// IsSet reports whether the id is non-empty.
func (j JurorID) IsSet() bool {
	return j != JurorNone
}

// Valid reports whether the id is one of the four jurors.
func (j JurorID) Valid() bool {
	for _, k := range Jurors {
		if j == k {
			return true
		}
	}
	return false
}

// Index returns the seating index of the juror, or -1.
func (j JurorID) Index() int {
	for i, k := range Jurors {
		if j == k {
			return i
		}
	}
	return -1
}

// ParseJurorID validates s as a juror id. The empty string parses to JurorNone.
func ParseJurorID(s string) (JurorID, error) {
	j := JurorID(s)
	if j == JurorNone || j.Valid() {
		return j, nil
	}
	return JurorNone, fmt.Errorf("%w: %q", ErrUnknownJuror, s)
}

// JurorFromIndex returns the juror seated at i.
func JurorFromIndex(i int) (JurorID, error) {
	if i < 0 || i >= len(Jurors) {
		return JurorNone, fmt.Errorf("%w: index %d", ErrUnknownJuror, i)
	}
	return Jurors[i], nil
}

// Vec3 is a position or direction in scene space (metres, Y up).
type Vec3 = mgl64.Vec3

// Quat is an orientation in scene space.
type Quat = mgl64.Quat

// Speaker is a known speaker with its world position.
type Speaker struct {
	ID       JurorID
	Position Vec3
	Active   bool
}
