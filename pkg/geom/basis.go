package geom

import (
	"fmt"
	"strings"
)

// Basis identifies the axis convention of the downstream frame.
type Basis int

const (
	// BasisIdentity leaves axes untouched.
	BasisIdentity Basis = iota
	// BasisUnreal swaps Y and Z, turning a right-handed Y-up frame into a
	// left-handed Z-up one.
	BasisUnreal
)

func (b Basis) String() string {
	switch b {
	case BasisIdentity:
		return "identity"
	case BasisUnreal:
		return "unreal"
	}
	return fmt.Sprintf("basis(%d)", int(b))
}

// ParseBasis parses a basis name as written in config files.
func ParseBasis(s string) (Basis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity", "none":
		return BasisIdentity, nil
	case "unreal", "":
		return BasisUnreal, nil
	}
	return 0, fmt.Errorf("geom: unknown basis %q", s)
}

// Conversion maps upstream geometric values into the downstream frame.
type Conversion struct {
	Basis Basis
	// UnitScale multiplies positions and translations.
	UnitScale float64
}

// UnrealConversion converts metres in a Y-up frame to centimetres in a Z-up frame.
var UnrealConversion = Conversion{Basis: BasisUnreal, UnitScale: 100}

// IdentityConversion passes values through unchanged.
var IdentityConversion = Conversion{Basis: BasisIdentity, UnitScale: 1}

func (c Conversion) swap(v Vec3) Vec3 {
	if c.Basis == BasisUnreal {
		return Vec3{X: v.X, Y: v.Z, Z: v.Y}
	}
	return v
}

// Position converts a point position.
func (c Conversion) Position(v Vec3) Vec3 {
	return c.swap(v).Scale(c.UnitScale)
}

// Direction converts a direction or tangent without applying the unit scale.
func (c Conversion) Direction(v Vec3) Vec3 {
	return c.swap(v)
}

// Scale converts a per-axis scale.
func (c Conversion) Scale(v Vec3) Vec3 {
	return c.swap(v)
}

// Rotation converts a rotation quaternion. Reflecting the frame negates
// the rotation angle, hence the sign flip on W.
func (c Conversion) Rotation(q Quat) Quat {
	if c.Basis == BasisUnreal {
		return Quat{X: q.X, Y: q.Z, Z: q.Y, W: -q.W}
	}
	return q
}

// Transform converts a decomposed transform.
func (c Conversion) Transform(t Transform) Transform {
	return Transform{
		Location: c.Position(t.Location),
		Rotation: c.Rotation(t.Rotation),
		Scale:    c.Scale(t.Scale),
	}
}

// Matrix converts a 4x4 matrix by conjugating with the axis swap and
// scaling the translation row.
func (c Conversion) Matrix(m Mat4) Mat4 {
	out := m
	if c.Basis == BasisUnreal {
		perm := [4]int{0, 2, 1, 3}
		for r := 0; r < 4; r++ {
			for col := 0; col < 4; col++ {
				out[r*4+col] = m[perm[r]*4+perm[col]]
			}
		}
	}
	out[12] *= c.UnitScale
	out[13] *= c.UnitScale
	out[14] *= c.UnitScale
	return out
}

// Inverse returns the conversion from the downstream frame back upstream.
// The axis swap is its own inverse, so only the unit scale changes.
func (c Conversion) Inverse() Conversion {
	if c.UnitScale == 0 {
		return Conversion{Basis: c.Basis, UnitScale: 1}
	}
	return Conversion{Basis: c.Basis, UnitScale: 1 / c.UnitScale}
}

// FlipsWinding reports whether the conversion changes handedness, which
// reverses triangle winding.
func (c Conversion) FlipsWinding() bool {
	return c.Basis == BasisUnreal
}
