package pcg

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/pcgbridge/pkg/geom"
)

var (
	// ErrSealed is returned when mutating a sealed point set.
	ErrSealed = errors.New("pcg: point data is sealed")
	// ErrSchema is returned for values that do not match the schema.
	ErrSchema = errors.New("pcg: schema mismatch")
)

// AttributeSchema declares one attribute of a point set.
type AttributeSchema struct {
	Name    string
	Type    Type
	Domain  Domain
	Default Value
}

// Schema is an ordered attribute declaration list. Point and data domain
// attributes are indexed separately, in declaration order.
type Schema struct {
	attrs  []AttributeSchema
	byName map[string]int
	point  []int
	data   []int
}

// NewSchema sorts attrs by name and indexes them. Duplicate names fail.
func NewSchema(attrs ...AttributeSchema) (Schema, error) {
	sorted := append([]AttributeSchema(nil), attrs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	s := Schema{attrs: sorted, byName: make(map[string]int, len(sorted))}
	for i, a := range sorted {
		if _, dup := s.byName[a.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate attribute %q", ErrSchema, a.Name)
		}
		if a.Default.Type != a.Type {
			return Schema{}, fmt.Errorf("%w: default for %q is %s, want %s", ErrSchema, a.Name, a.Default.Type, a.Type)
		}
		s.byName[a.Name] = i
		if a.Domain == DomainData {
			s.data = append(s.data, i)
		} else {
			s.point = append(s.point, i)
		}
	}
	return s, nil
}

// Attributes returns every declaration in order.
func (s Schema) Attributes() []AttributeSchema {
	return append([]AttributeSchema(nil), s.attrs...)
}

// Lookup finds a declaration by name.
func (s Schema) Lookup(name string) (AttributeSchema, bool) {
	i, ok := s.byName[name]
	if !ok {
		return AttributeSchema{}, false
	}
	return s.attrs[i], true
}

// PointNames returns the point domain attribute names in slot order.
func (s Schema) PointNames() []string {
	return s.names(s.point)
}

// DataNames returns the data domain attribute names in slot order.
func (s Schema) DataNames() []string {
	return s.names(s.data)
}

func (s Schema) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = s.attrs[j].Name
	}
	return out
}

// Slot returns the per-domain slot of a named attribute.
func (s Schema) Slot(name string) (Domain, int, bool) {
	i, ok := s.byName[name]
	if !ok {
		return 0, 0, false
	}
	list := s.point
	if s.attrs[i].Domain == DomainData {
		list = s.data
	}
	for slot, j := range list {
		if j == i {
			return s.attrs[i].Domain, slot, true
		}
	}
	return 0, 0, false
}

// Point is one record of a point set.
type Point struct {
	Transform geom.Transform
	Density   float64
	Color     geom.Vec4
	BoundsMin geom.Vec3
	BoundsMax geom.Vec3
	Steepness float64
	Seed      int32
	// Values holds one value per point domain attribute, in schema slot order.
	Values []Value
}

// DefaultPoint returns a point with the downstream defaults: identity
// transform, density 1, white, unit bounds, steepness 0.5.
func DefaultPoint() Point {
	return Point{
		Transform: geom.IdentityTransform,
		Density:   1,
		Color:     geom.Vec4{X: 1, Y: 1, Z: 1, W: 1},
		BoundsMin: geom.Vec3{X: -1, Y: -1, Z: -1},
		BoundsMax: geom.Vec3{X: 1, Y: 1, Z: 1},
		Steepness: 0.5,
	}
}

// PointData is an ordered point set with a fixed schema. Once sealed it is
// immutable and safe for concurrent readers.
type PointData struct {
	points  []Point
	schema  Schema
	data    []Value
	strings *StringTable
}

// Len returns the number of points.
func (pd *PointData) Len() int { return len(pd.points) }

// Schema returns the declared schema.
func (pd *PointData) Schema() Schema { return pd.schema }

// Point returns a copy of point i.
func (pd *PointData) Point(i int) Point {
	p := pd.points[i]
	p.Values = append([]Value(nil), p.Values...)
	return p
}

// Value returns the value of a point domain attribute on point i.
func (pd *PointData) Value(i int, name string) (Value, bool) {
	dom, slot, ok := pd.schema.Slot(name)
	if !ok || dom != DomainPoint || i < 0 || i >= len(pd.points) {
		return Value{}, false
	}
	return pd.points[i].Values[slot], true
}

// DataValue returns the value of a data domain attribute.
func (pd *PointData) DataValue(name string) (Value, bool) {
	dom, slot, ok := pd.schema.Slot(name)
	if !ok || dom != DomainData {
		return Value{}, false
	}
	return pd.data[slot], true
}

// Keys returns the attribute names present on point i.
func (pd *PointData) Keys(i int) []string {
	if i < 0 || i >= len(pd.points) {
		return nil
	}
	return pd.schema.PointNames()
}

// String resolves a string handle.
func (pd *PointData) String(h StringHandle) string { return pd.strings.Lookup(h) }

// PointDataBuilder assembles a PointData. It is not safe for concurrent use.
type PointDataBuilder struct {
	pd     *PointData
	sealed bool
}

// NewPointDataBuilder creates count default points, each holding every point
// domain attribute at its schema default.
func NewPointDataBuilder(schema Schema, count int) *PointDataBuilder {
	pd := &PointData{
		points:  make([]Point, count),
		schema:  schema,
		strings: NewStringTable(),
	}
	for i := range pd.points {
		p := DefaultPoint()
		p.Values = make([]Value, len(schema.point))
		for slot, j := range schema.point {
			p.Values[slot] = schema.attrs[j].Default
		}
		pd.points[i] = p
	}
	pd.data = make([]Value, len(schema.data))
	for slot, j := range schema.data {
		pd.data[slot] = schema.attrs[j].Default
	}
	return &PointDataBuilder{pd: pd}
}

// Intern adds s to the set's string table.
func (b *PointDataBuilder) Intern(s string) StringHandle { return b.pd.strings.Intern(s) }

// Point returns point i for in-place edits of its intrinsic fields.
func (b *PointDataBuilder) Point(i int) *Point { return &b.pd.points[i] }

// Len returns the number of points.
func (b *PointDataBuilder) Len() int { return len(b.pd.points) }

// SetValue stores v in a point domain slot of point i.
func (b *PointDataBuilder) SetValue(i, slot int, v Value) error {
	if b.sealed {
		return ErrSealed
	}
	want := b.pd.schema.attrs[b.pd.schema.point[slot]]
	if v.Type != want.Type {
		return fmt.Errorf("%w: %q is %s, got %s", ErrSchema, want.Name, want.Type, v.Type)
	}
	b.pd.points[i].Values[slot] = v
	return nil
}

// SetDataValue stores v in a data domain slot.
func (b *PointDataBuilder) SetDataValue(slot int, v Value) error {
	if b.sealed {
		return ErrSealed
	}
	want := b.pd.schema.attrs[b.pd.schema.data[slot]]
	if v.Type != want.Type {
		return fmt.Errorf("%w: %q is %s, got %s", ErrSchema, want.Name, want.Type, v.Type)
	}
	b.pd.data[slot] = v
	return nil
}

// Seal validates and freezes the set. The builder is unusable afterwards.
func (b *PointDataBuilder) Seal() (*PointData, error) {
	if b.sealed {
		return nil, ErrSealed
	}
	if err := b.pd.validate(); err != nil {
		return nil, err
	}
	b.sealed = true
	return b.pd, nil
}

func (pd *PointData) validate() error {
	for i, p := range pd.points {
		if len(p.Values) != len(pd.schema.point) {
			return fmt.Errorf("%w: point %d has %d values, schema declares %d",
				ErrSchema, i, len(p.Values), len(pd.schema.point))
		}
		for slot, v := range p.Values {
			want := pd.schema.attrs[pd.schema.point[slot]]
			if v.Type != want.Type {
				return fmt.Errorf("%w: point %d %q is %s, want %s", ErrSchema, i, want.Name, v.Type, want.Type)
			}
		}
	}
	return nil
}
