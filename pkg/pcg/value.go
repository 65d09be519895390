// Package pcg models the downstream point-data representation: typed
// attribute values, sealed point sets and the tagged collection handed to
// the point-processing graph.
package pcg

import (
	"fmt"

	"github.com/chazu/pcgbridge/pkg/geom"
)

// Type is a downstream attribute value type.
type Type int

const (
	TypeBool Type = iota
	TypeInt64
	TypeDouble
	TypeVector2
	TypeVector
	TypeVector4
	TypeQuaternion
	TypeTransform
	TypeString
	TypeSoftObjectPath
)

var typeNames = [...]string{
	TypeBool:           "Bool",
	TypeInt64:          "Int64",
	TypeDouble:         "Double",
	TypeVector2:        "Vector2",
	TypeVector:         "Vector",
	TypeVector4:        "Vector4",
	TypeQuaternion:     "Quaternion",
	TypeTransform:      "Transform",
	TypeString:         "String",
	TypeSoftObjectPath: "SoftObjectPath",
}

// String returns the downstream type name.
func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Domain is where an attribute lives.
type Domain int

const (
	// DomainPoint attributes hold one value per point.
	DomainPoint Domain = iota
	// DomainData attributes hold one value for the whole set.
	DomainData
)

// String returns "point" or "data".
func (d Domain) String() string {
	if d == DomainData {
		return "data"
	}
	return "point"
}

// StringHandle refers to an interned string. The zero handle is "".
type StringHandle uint32

// Value is a tagged attribute value. Only the fields relevant to Type are
// meaningful: Int for Bool and Int64, Num for Double and the vector types,
// Xform for Transform, Str for String and SoftObjectPath.
type Value struct {
	Type  Type
	Int   int64
	Num   [4]float64
	Xform geom.Transform
	Str   StringHandle
}

// Default returns the zero value of t. Quaternions and transforms default
// to identity.
func Default(t Type) Value {
	v := Value{Type: t}
	switch t {
	case TypeQuaternion:
		v.Num[3] = 1
	case TypeTransform:
		v.Xform = geom.IdentityTransform
	}
	return v
}

// BoolValue returns a Bool value.
func BoolValue(b bool) Value {
	v := Value{Type: TypeBool}
	if b {
		v.Int = 1
	}
	return v
}

// Int64Value returns an Int64 value.
func Int64Value(i int64) Value { return Value{Type: TypeInt64, Int: i} }

// DoubleValue returns a Double value.
func DoubleValue(f float64) Value { return Value{Type: TypeDouble, Num: [4]float64{f}} }

// Vector2Value returns a Vector2 value.
func Vector2Value(v geom.Vec2) Value {
	return Value{Type: TypeVector2, Num: [4]float64{v.X, v.Y}}
}

// VectorValue returns a Vector value.
func VectorValue(v geom.Vec3) Value {
	return Value{Type: TypeVector, Num: [4]float64{v.X, v.Y, v.Z}}
}

// Vector4Value returns a Vector4 value.
func Vector4Value(v geom.Vec4) Value {
	return Value{Type: TypeVector4, Num: [4]float64{v.X, v.Y, v.Z, v.W}}
}

// QuaternionValue returns a Quaternion value.
func QuaternionValue(q geom.Quat) Value {
	return Value{Type: TypeQuaternion, Num: [4]float64{q.X, q.Y, q.Z, q.W}}
}

// TransformValue returns a Transform value.
func TransformValue(t geom.Transform) Value { return Value{Type: TypeTransform, Xform: t} }

// StringValue returns a String value for an interned handle.
func StringValue(h StringHandle) Value { return Value{Type: TypeString, Str: h} }

// SoftObjectPathValue returns a SoftObjectPath value for an interned handle.
func SoftObjectPathValue(h StringHandle) Value {
	return Value{Type: TypeSoftObjectPath, Str: h}
}

// Bool reads a Bool value.
func (v Value) Bool() bool { return v.Int != 0 }

// Double reads a Double value.
func (v Value) Double() float64 { return v.Num[0] }

// Vector2 reads a Vector2 value.
func (v Value) Vector2() geom.Vec2 {
	return geom.Vec2{X: v.Num[0], Y: v.Num[1]}
}

// Vector reads a Vector value.
func (v Value) Vector() geom.Vec3 {
	return geom.Vec3{X: v.Num[0], Y: v.Num[1], Z: v.Num[2]}
}

// Vector4 reads a Vector4 value.
func (v Value) Vector4() geom.Vec4 {
	return geom.Vec4{X: v.Num[0], Y: v.Num[1], Z: v.Num[2], W: v.Num[3]}
}

// Quaternion reads a Quaternion value.
func (v Value) Quaternion() geom.Quat {
	return geom.Quat{X: v.Num[0], Y: v.Num[1], Z: v.Num[2], W: v.Num[3]}
}

// StringTable interns strings for one point set. Handle 0 is always "".
type StringTable struct {
	strs  []string
	index map[string]StringHandle
}

// NewStringTable returns a table holding only the empty string.
func NewStringTable() *StringTable {
	return &StringTable{strs: []string{""}, index: map[string]StringHandle{"": 0}}
}

// Intern returns the handle for s, adding it if needed.
func (t *StringTable) Intern(s string) StringHandle {
	if h, ok := t.index[s]; ok {
		return h
	}
	h := StringHandle(len(t.strs))
	t.strs = append(t.strs, s)
	t.index[s] = h
	return h
}

// Lookup returns the string for h, or "" for an unknown handle.
func (t *StringTable) Lookup(h StringHandle) string {
	if int(h) < len(t.strs) {
		return t.strs[h]
	}
	return ""
}

// Len returns the number of interned strings including "".
func (t *StringTable) Len() int { return len(t.strs) }
