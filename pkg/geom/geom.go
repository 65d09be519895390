// Package geom holds the small value types shared by the upstream cook model
// and the downstream point data: vectors, quaternions, transforms and 4x4
// matrices, plus the basis conversion between the two coordinate systems.
package geom

import "math"

// Vec2 is a 2D vector.
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float64
}

// Vec4 is a 4D vector. Colors use X,Y,Z,W as R,G,B,A.
type Vec4 struct {
	X, Y, Z, W float64
}

// One is the unit scale vector.
var One = Vec3{X: 1, Y: 1, Z: 1}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Mul returns the component-wise product.
func (v Vec3) Mul(o Vec3) Vec3 {
	return Vec3{X: v.X * o.X, Y: v.Y * o.Y, Z: v.Z * o.Z}
}

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean length.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length, or the zero vector.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// Normalize returns q scaled to unit length. A zero quaternion becomes identity.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if l == 0 {
		return IdentityQuat
	}
	return Quat{X: q.X / l, Y: q.Y / l, Z: q.Z / l, W: q.W / l}
}

// QuatFromEuler builds a quaternion from Euler angles in radians, applied in
// X, then Y, then Z order.
func QuatFromEuler(x, y, z float64) Quat {
	cx, sx := math.Cos(x/2), math.Sin(x/2)
	cy, sy := math.Cos(y/2), math.Sin(y/2)
	cz, sz := math.Cos(z/2), math.Sin(z/2)
	return Quat{
		X: sx*cy*cz - cx*sy*sz,
		Y: cx*sy*cz + sx*cy*sz,
		Z: cx*cy*sz - sx*sy*cz,
		W: cx*cy*cz + sx*sy*sz,
	}
}

// Transform is a decomposed scale-rotate-translate transform.
type Transform struct {
	Location Vec3
	Rotation Quat
	Scale    Vec3
}

// IdentityTransform has no translation, no rotation and unit scale.
var IdentityTransform = Transform{Rotation: IdentityQuat, Scale: One}

// Mat4 is a row-major 4x4 matrix using the row-vector convention: the
// translation lives in elements 12, 13 and 14.
type Mat4 [16]float64

// IdentityMat4 is the identity matrix.
var IdentityMat4 = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float64 {
	return m[r*4+c]
}

// Decompose splits an affine matrix into location, rotation and scale.
// Shear is discarded. A row of zero length yields zero scale on that axis
// and an identity rotation.
func (m Mat4) Decompose() Transform {
	var rows [3]Vec3
	var scale [3]float64
	for r := 0; r < 3; r++ {
		rows[r] = Vec3{X: m.At(r, 0), Y: m.At(r, 1), Z: m.At(r, 2)}
		scale[r] = rows[r].Length()
	}
	t := Transform{
		Location: Vec3{X: m[12], Y: m[13], Z: m[14]},
		Scale:    Vec3{X: scale[0], Y: scale[1], Z: scale[2]},
		Rotation: IdentityQuat,
	}
	if scale[0] == 0 || scale[1] == 0 || scale[2] == 0 {
		return t
	}
	// Column-vector rotation matrix: column i is the normalized row i.
	var rm [3][3]float64
	for r := 0; r < 3; r++ {
		n := rows[r].Scale(1 / scale[r])
		rm[0][r], rm[1][r], rm[2][r] = n.X, n.Y, n.Z
	}
	t.Rotation = quatFromRotation(rm)
	return t
}

// Matrix composes t into an affine matrix, the inverse of Decompose for
// shear-free matrices.
func (t Transform) Matrix() Mat4 {
	q := t.Rotation.Normalize()
	x, y, z, w := q.X, q.Y, q.Z, q.W
	// Column-vector rotation matrix.
	r := [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
	s := [3]float64{t.Scale.X, t.Scale.Y, t.Scale.Z}
	var m Mat4
	for row := 0; row < 3; row++ {
		for c := 0; c < 3; c++ {
			m[row*4+c] = r[c][row] * s[row]
		}
	}
	m[12], m[13], m[14], m[15] = t.Location.X, t.Location.Y, t.Location.Z, 1
	return m
}

func quatFromRotation(m [3][3]float64) Quat {
	trace := m[0][0] + m[1][1] + m[2][2]
	var q Quat
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{
			W: s / 4,
			X: (m[2][1] - m[1][2]) / s,
			Y: (m[0][2] - m[2][0]) / s,
			Z: (m[1][0] - m[0][1]) / s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1+m[0][0]-m[1][1]-m[2][2]) * 2
		q = Quat{
			W: (m[2][1] - m[1][2]) / s,
			X: s / 4,
			Y: (m[0][1] + m[1][0]) / s,
			Z: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1+m[1][1]-m[0][0]-m[2][2]) * 2
		q = Quat{
			W: (m[0][2] - m[2][0]) / s,
			X: (m[0][1] + m[1][0]) / s,
			Y: s / 4,
			Z: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+m[2][2]-m[0][0]-m[1][1]) * 2
		q = Quat{
			W: (m[1][0] - m[0][1]) / s,
			X: (m[0][2] + m[2][0]) / s,
			Y: (m[1][2] + m[2][1]) / s,
			Z: s / 4,
		}
	}
	return q.Normalize()
}
