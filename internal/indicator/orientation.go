// Package indicator orients and colours the markers that point at the
// current speaker.
package indicator

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cogconvo/captioner/pkg/core"
)

const epsilon = 1e-4

// Up is the scene's up axis.
var Up = core.Vec3{0, 1, 0}

// LookAt returns the orientation that turns an object at eye so that its
// local +Z axis points at target. When target lies along up from eye the
// forward axis is nudged so the basis stays well defined.
func LookAt(eye, target, up core.Vec3) core.Quat {
	z := target.Sub(eye)
	if z.Len() == 0 {
		z = core.Vec3{0, 0, 1}
	}
	z = z.Normalize()

	x := up.Cross(z)
	if x.Len() == 0 {
		if math.Abs(up.Z()) == 1 {
			z[0] += epsilon
		} else {
			z[2] += epsilon
		}
		z = z.Normalize()
		x = up.Cross(z)
	}
	x = x.Normalize()
	y := z.Cross(x)

	return mgl64.Mat4ToQuat(mgl64.Mat3FromCols(x, y, z).Mat4()).Normalize()
}

// Axis is a local rotation axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) vec() core.Vec3 {
	switch a {
	case AxisY:
		return core.Vec3{0, 1, 0}
	case AxisZ:
		return core.Vec3{0, 0, 1}
	default:
		return core.Vec3{1, 0, 0}
	}
}

// Offset is a corrective rotation about a local axis applied after LookAt,
// compensating for how the marker mesh is modelled.
type Offset struct {
	Axis    Axis
	Degrees float64
}

// Offset presets for the two marker meshes in use.
var (
	OffsetNone        = Offset{}
	OffsetQuarterTurn = Offset{Axis: AxisX, Degrees: 90}
	OffsetEighthBack  = Offset{Axis: AxisX, Degrees: -45}
)

// ParseOffset resolves a configured offset preset name.
func ParseOffset(name string) (Offset, error) {
	switch name {
	case "quarterTurn":
		return OffsetQuarterTurn, nil
	case "eighthBack":
		return OffsetEighthBack, nil
	case "none", "":
		return OffsetNone, nil
	default:
		return Offset{}, fmt.Errorf("unknown indicator offset %q", name)
	}
}

// Apply rotates q about the offset's local axis.
func (o Offset) Apply(q core.Quat) core.Quat {
	if o.Degrees == 0 {
		return q
	}
	r := mgl64.QuatRotate(mgl64.DegToRad(o.Degrees), o.Axis.vec())
	return q.Mul(r).Normalize()
}

// Colors are the marker colours for an active and an inactive speaker.
type Colors struct {
	Active   string
	Inactive string
}

// Colour presets.
var (
	ColorsGold  = Colors{Active: "#FF0000", Inactive: "#FFD700"}
	ColorsBlack = Colors{Active: "#FF0000", Inactive: "#000000"}
)

// ParseColors resolves a configured colour preset name.
func ParseColors(name string) (Colors, error) {
	switch name {
	case "gold", "":
		return ColorsGold, nil
	case "black":
		return ColorsBlack, nil
	default:
		return Colors{}, fmt.Errorf("unknown indicator colours %q", name)
	}
}

// Pick returns the colour for the given state.
func (c Colors) Pick(active bool) string {
	if active {
		return c.Active
	}
	return c.Inactive
}
