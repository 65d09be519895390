package pcg

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/chazu/pcgbridge/pkg/geom"
)

// encoder writes a little-endian canonical form. Strings are written by
// content, never by handle, so two sets that interned in different orders
// still encode identically when their values match.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) i64(v int64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v)) }

func (e *encoder) f64(v float64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) bool(b bool) {
	if b {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) vec3(v geom.Vec3) {
	e.f64(v.X)
	e.f64(v.Y)
	e.f64(v.Z)
}

func (e *encoder) quat(q geom.Quat) {
	e.f64(q.X)
	e.f64(q.Y)
	e.f64(q.Z)
	e.f64(q.W)
}

func (e *encoder) transform(t geom.Transform) {
	e.vec3(t.Location)
	e.quat(t.Rotation)
	e.vec3(t.Scale)
}

func (e *encoder) value(v Value, strs *StringTable) {
	e.u8(uint8(v.Type))
	switch v.Type {
	case TypeBool, TypeInt64:
		e.i64(v.Int)
	case TypeDouble:
		e.f64(v.Num[0])
	case TypeVector2:
		e.f64(v.Num[0])
		e.f64(v.Num[1])
	case TypeVector:
		e.f64(v.Num[0])
		e.f64(v.Num[1])
		e.f64(v.Num[2])
	case TypeVector4, TypeQuaternion:
		for _, n := range v.Num {
			e.f64(n)
		}
	case TypeTransform:
		e.transform(v.Xform)
	case TypeString, TypeSoftObjectPath:
		e.str(strs.Lookup(v.Str))
	}
}

func (pd *PointData) encode(e *encoder) {
	e.u8(uint8(KindPointData))
	e.u32(uint32(len(pd.schema.attrs)))
	for _, a := range pd.schema.attrs {
		e.str(a.Name)
		e.u8(uint8(a.Type))
		e.u8(uint8(a.Domain))
		e.value(a.Default, pd.strings)
	}
	for _, v := range pd.data {
		e.value(v, pd.strings)
	}
	e.u32(uint32(len(pd.points)))
	for _, p := range pd.points {
		e.transform(p.Transform)
		e.f64(p.Density)
		e.f64(p.Color.X)
		e.f64(p.Color.Y)
		e.f64(p.Color.Z)
		e.f64(p.Color.W)
		e.vec3(p.BoundsMin)
		e.vec3(p.BoundsMax)
		e.f64(p.Steepness)
		e.u32(uint32(p.Seed))
		for _, v := range p.Values {
			e.value(v, pd.strings)
		}
	}
}

func (s *SplineData) encode(e *encoder) {
	e.u8(uint8(KindSpline))
	e.bool(s.Closed)
	e.u32(uint32(len(s.Points)))
	for _, p := range s.Points {
		e.f64(p.InputKey)
		e.vec3(p.Position)
		e.quat(p.Rotation)
		e.vec3(p.Scale)
		e.vec3(p.ArriveTangent)
		e.vec3(p.LeaveTangent)
		e.u8(uint8(p.Type))
		e.i64(int64(p.PointIndex))
	}
}

func (m *MeshData) encode(e *encoder) {
	e.u8(uint8(KindMesh))
	e.u32(uint32(len(m.Positions)))
	for i, p := range m.Positions {
		e.vec3(p)
		if i < len(m.Normals) {
			e.vec3(m.Normals[i])
		}
		if i < len(m.PointIndices) {
			e.i64(int64(m.PointIndices[i]))
		}
	}
	e.u32(uint32(len(m.Triangles)))
	for _, t := range m.Triangles {
		e.u32(uint32(t[0]))
		e.u32(uint32(t[1]))
		e.u32(uint32(t[2]))
	}
}

// Encode returns the canonical byte encoding of d. Equal payloads encode
// to identical bytes.
func Encode(d Data) []byte {
	var e encoder
	d.encode(&e)
	return e.buf
}

// Encode returns the canonical byte encoding of the point set.
func (pd *PointData) Encode() []byte { return Encode(pd) }

// CRC fingerprints d's canonical encoding.
func CRC(d Data) uint64 {
	return xxhash.Sum64(Encode(d))
}

// SeedFromPosition derives a stable per-point seed from a location rounded
// to whole units.
func SeedFromPosition(v geom.Vec3) int32 {
	var e encoder
	e.i64(int64(math.Round(v.X)))
	e.i64(int64(math.Round(v.Y)))
	e.i64(int64(math.Round(v.Z)))
	return int32(xxhash.Sum64(e.buf))
}
