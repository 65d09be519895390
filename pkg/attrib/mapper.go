// Package attrib maps upstream attribute descriptors to downstream value
// types and converts raw attribute elements into typed values.
package attrib

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

var (
	// ErrUnsupportedType is returned for storage/tuple combinations that have
	// no downstream equivalent.
	ErrUnsupportedType = errors.New("attrib: unsupported type")
	// ErrAmbiguousScope is returned for owners that have no one-to-one
	// relationship with points.
	ErrAmbiguousScope = errors.New("attrib: ambiguous scope")
)

// MappingError records which descriptor failed to map.
type MappingError struct {
	Descriptor cook.AttributeDescriptor
	Err        error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("attrib: map %s: %v", e.Descriptor, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// Conversion is the value transform applied on top of the type mapping.
type Conversion int

const (
	ConvertNone Conversion = iota
	// ConvertPosition applies basis and unit conversion to a 3-vector.
	ConvertPosition
	// ConvertRotation applies basis conversion to a quaternion.
	ConvertRotation
	// ConvertMatrix applies basis and unit conversion to a 4x4 matrix and
	// decomposes it.
	ConvertMatrix
	// ConvertAssetPath strips the ";" suffix of asset references.
	ConvertAssetPath
)

func (c Conversion) String() string {
	switch c {
	case ConvertNone:
		return "none"
	case ConvertPosition:
		return "position"
	case ConvertRotation:
		return "rotation"
	case ConvertMatrix:
		return "matrix"
	case ConvertAssetPath:
		return "asset-path"
	}
	return fmt.Sprintf("conversion(%d)", int(c))
}

// Mapping is the resolved downstream shape of one descriptor.
type Mapping struct {
	Descriptor cook.AttributeDescriptor
	Type       pcg.Type
	Domain     pcg.Domain
	Convert    Conversion
}

// Map resolves the downstream type and domain of d. It is a pure function
// of the descriptor.
func Map(d cook.AttributeDescriptor) (Mapping, error) {
	m := Mapping{Descriptor: d}

	switch d.Owner {
	case cook.OwnerPoint:
		m.Domain = pcg.DomainPoint
	case cook.OwnerDetail:
		m.Domain = pcg.DomainData
	default:
		return Mapping{}, &MappingError{Descriptor: d, Err: fmt.Errorf("%w: %s owner", ErrAmbiguousScope, d.Owner)}
	}

	typ, conv, err := mapType(d)
	if err != nil {
		return Mapping{}, &MappingError{Descriptor: d, Err: err}
	}
	m.Type, m.Convert = typ, conv
	return m, nil
}

func mapType(d cook.AttributeDescriptor) (pcg.Type, Conversion, error) {
	unsupported := func() (pcg.Type, Conversion, error) {
		return 0, ConvertNone, fmt.Errorf("%w: %s x%d", ErrUnsupportedType, d.Storage, d.TupleSize)
	}
	if d.Array {
		return unsupported()
	}

	switch d.Storage {
	case cook.StorageInt8, cook.StorageUint8:
		if d.TupleSize == 1 {
			return pcg.TypeBool, ConvertNone, nil
		}
	case cook.StorageInt64:
		if d.TupleSize == 1 {
			return pcg.TypeInt64, ConvertNone, nil
		}
	case cook.StorageInt16, cook.StorageInt:
		switch d.TupleSize {
		case 1:
			return pcg.TypeInt64, ConvertNone, nil
		case 2:
			return pcg.TypeVector2, ConvertNone, nil
		case 3:
			return pcg.TypeVector, ConvertNone, nil
		case 4:
			return pcg.TypeVector4, ConvertNone, nil
		}
	case cook.StorageFloat, cook.StorageFloat64:
		switch d.TupleSize {
		case 1:
			return pcg.TypeDouble, ConvertNone, nil
		case 2:
			return pcg.TypeVector2, ConvertNone, nil
		case 3:
			if d.TypeInfo == cook.TypeInfoPoint {
				return pcg.TypeVector, ConvertPosition, nil
			}
			return pcg.TypeVector, ConvertNone, nil
		case 4:
			if d.TypeInfo == cook.TypeInfoQuaternion {
				return pcg.TypeQuaternion, ConvertRotation, nil
			}
			return pcg.TypeVector4, ConvertNone, nil
		case 16:
			return pcg.TypeTransform, ConvertMatrix, nil
		}
	case cook.StorageString:
		if d.TupleSize == 1 {
			if d.TypeInfo == cook.TypeInfoAssetPath {
				return pcg.TypeSoftObjectPath, ConvertAssetPath, nil
			}
			return pcg.TypeString, ConvertNone, nil
		}
	}
	return unsupported()
}

// Value converts element i of a into a typed value. It returns false when
// the element carries no data.
func (m Mapping) Value(a *cook.Attribute, i int, conv geom.Conversion, intern func(string) pcg.StringHandle) (pcg.Value, bool) {
	if !a.Has(i) {
		return pcg.Value{}, false
	}
	f := func(c int) float64 {
		v, _ := a.Float(i, c)
		return v
	}

	switch m.Type {
	case pcg.TypeBool:
		v, _ := a.Int(i, 0)
		return pcg.BoolValue(v != 0), true
	case pcg.TypeInt64:
		v, _ := a.Int(i, 0)
		return pcg.Int64Value(v), true
	case pcg.TypeDouble:
		return pcg.DoubleValue(f(0)), true
	case pcg.TypeVector2:
		return pcg.Vector2Value(geom.Vec2{X: f(0), Y: f(1)}), true
	case pcg.TypeVector:
		v := geom.Vec3{X: f(0), Y: f(1), Z: f(2)}
		if m.Convert == ConvertPosition {
			v = conv.Position(v)
		}
		return pcg.VectorValue(v), true
	case pcg.TypeVector4:
		return pcg.Vector4Value(geom.Vec4{X: f(0), Y: f(1), Z: f(2), W: f(3)}), true
	case pcg.TypeQuaternion:
		q := geom.Quat{X: f(0), Y: f(1), Z: f(2), W: f(3)}
		return pcg.QuaternionValue(conv.Rotation(q)), true
	case pcg.TypeTransform:
		var mat geom.Mat4
		for c := range mat {
			mat[c] = f(c)
		}
		return pcg.TransformValue(conv.Matrix(mat).Decompose()), true
	case pcg.TypeString:
		s, _ := a.StringAt(i, 0)
		return pcg.StringValue(intern(s)), true
	case pcg.TypeSoftObjectPath:
		s, _ := a.StringAt(i, 0)
		return pcg.SoftObjectPathValue(intern(CleanAssetPath(s))), true
	}
	return pcg.Value{}, false
}

// CleanAssetPath drops everything from the first ";" onwards, which carries
// upstream import options rather than the reference itself.
func CleanAssetPath(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

// LooksLikeAssetPath reports whether s is a downstream asset reference,
// either a bare "/Game/..." path or a typed "Class'/Path.Asset'" reference.
func LooksLikeAssetPath(s string) bool {
	s = CleanAssetPath(s)
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "/") && !strings.ContainsAny(s, " \t\n") && len(s) > 1 {
		return true
	}
	open := strings.IndexByte(s, '\'')
	return open > 0 && strings.HasSuffix(s, "'") && strings.HasPrefix(s[open+1:], "/")
}

// Cache memoizes Map by descriptor for the lifetime of one session. It is
// safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	m      map[cook.AttributeDescriptor]cached
	hits   int
	misses int
}

type cached struct {
	mapping Mapping
	err     error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{m: make(map[cook.AttributeDescriptor]cached)}
}

// Map returns the memoized mapping of d, computing it on first use.
func (c *Cache) Map(d cook.AttributeDescriptor) (Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.m[d]; ok {
		c.hits++
		return r.mapping, r.err
	}
	c.misses++
	m, err := Map(d)
	c.m[d] = cached{mapping: m, err: err}
	return m, err
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
