// Package build assembles canonical point sets from extracted part buffers.
package build

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chazu/pcgbridge/pkg/attrib"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

// DefaultPrefix marks attributes that are exported downstream.
const DefaultPrefix = "unreal_pcg_attribute_"

// Intrinsic attributes feed point fields rather than schema attributes.
const (
	AttrPosition = "P"
	AttrOrient   = "orient"
	AttrRot      = "rot"
	AttrScale    = "scale"
	AttrPScale   = "pscale"
	AttrDensity  = "density"
	AttrColor    = "Cd"
	AttrAlpha    = "Alpha"
)

var intrinsic = map[string]bool{
	AttrPosition: true, AttrOrient: true, AttrRot: true, AttrScale: true,
	AttrPScale: true, AttrDensity: true, AttrColor: true, AttrAlpha: true,
}

// ErrAttributeMappingFailed is returned when a declared attribute cannot be
// mapped. No point set is produced.
var ErrAttributeMappingFailed = errors.New("build: attribute mapping failed")

// MappingFailedError aggregates every mapping failure of one part.
type MappingFailedError struct {
	Part     string
	Failures []error
}

func (e *MappingFailedError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("build: part %q: attribute mapping failed: %s", e.Part, strings.Join(msgs, "; "))
}

func (e *MappingFailedError) Is(target error) bool { return target == ErrAttributeMappingFailed }

func (e *MappingFailedError) Unwrap() []error { return e.Failures }

// Mapper resolves attribute descriptors. *attrib.Cache satisfies it.
type Mapper interface {
	Map(cook.AttributeDescriptor) (attrib.Mapping, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(cook.AttributeDescriptor) (attrib.Mapping, error)

func (f MapperFunc) Map(d cook.AttributeDescriptor) (attrib.Mapping, error) { return f(d) }

// Options configures a Builder.
type Options struct {
	// Prefix selects exported attributes and is stripped from their names.
	// An empty prefix exports every point and detail attribute that is not
	// intrinsic or a control attribute.
	Prefix     string
	Conversion geom.Conversion
	Mapper     Mapper
	Logger     *zap.Logger
}

// Builder turns part buffers into sealed point sets.
type Builder struct {
	prefix string
	conv   geom.Conversion
	mapper Mapper
	log    *zap.Logger
}

// New returns a Builder. A nil mapper uses attrib.Map directly and a zero
// conversion becomes geom.IdentityConversion.
func New(opts Options) *Builder {
	b := &Builder{prefix: opts.Prefix, conv: opts.Conversion, mapper: opts.Mapper, log: opts.Logger}
	if b.mapper == nil {
		b.mapper = MapperFunc(attrib.Map)
	}
	if b.conv.UnitScale == 0 {
		b.conv = geom.IdentityConversion
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b
}

// Field is one exported attribute: its source buffer, downstream name and
// resolved mapping.
type Field struct {
	Name    string
	Source  *cook.Attribute
	Mapping attrib.Mapping
}

// Fields resolves the exported attributes of p. Every failure is collected
// into a *MappingFailedError.
func (b *Builder) Fields(p *extract.PartBuffers) ([]Field, error) {
	var (
		fields   []Field
		failures []error
		seen     = make(map[string]bool)
	)
	for _, owner := range []cook.Owner{cook.OwnerPoint, cook.OwnerDetail, cook.OwnerPrim, cook.OwnerVertex} {
		for _, a := range p.Attributes {
			if a.Owner != owner {
				continue
			}
			name, ok := b.exported(a)
			if !ok {
				continue
			}
			if seen[name] {
				b.log.Warn("duplicate exported attribute ignored",
					zap.String("part", p.Info.Name), zap.String("attribute", a.Name), zap.Stringer("owner", owner))
				continue
			}
			seen[name] = true
			m, err := b.mapper.Map(a.AttributeDescriptor)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			fields = append(fields, Field{Name: name, Source: a, Mapping: m})
		}
	}
	if len(failures) > 0 {
		return nil, &MappingFailedError{Part: p.Info.Name, Failures: failures}
	}
	return fields, nil
}

func (b *Builder) exported(a *cook.Attribute) (string, bool) {
	if b.prefix == "" {
		if a.Owner != cook.OwnerPoint && a.Owner != cook.OwnerDetail {
			return "", false
		}
		if intrinsic[a.Name] || extract.IsControlAttribute(a.Name) || strings.HasPrefix(a.Name, "__") {
			return "", false
		}
		return a.Name, true
	}
	name, ok := strings.CutPrefix(a.Name, b.prefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Build produces one point per upstream point of p, in upstream order.
func (b *Builder) Build(p *extract.PartBuffers) (*pcg.PointData, error) {
	fields, err := b.Fields(p)
	if err != nil {
		return nil, err
	}

	decls := make([]pcg.AttributeSchema, len(fields))
	for i, f := range fields {
		decls[i] = pcg.AttributeSchema{
			Name:    f.Name,
			Type:    f.Mapping.Type,
			Domain:  f.Mapping.Domain,
			Default: pcg.Default(f.Mapping.Type),
		}
	}
	schema, err := pcg.NewSchema(decls...)
	if err != nil {
		return nil, fmt.Errorf("build: part %q: %w", p.Info.Name, err)
	}

	n := len(p.Positions)
	pb := pcg.NewPointDataBuilder(schema, n)
	xforms := b.transforms(p)
	in := intrinsics(p)
	for i := 0; i < n; i++ {
		pt := pb.Point(i)
		pt.Transform = xforms[i]
		pt.Density = in.density(i)
		pt.Color = in.color(i)
		pt.Seed = pcg.SeedFromPosition(pt.Transform.Location)
	}

	for _, f := range fields {
		dom, slot, _ := schema.Slot(f.Name)
		if dom == pcg.DomainData {
			if v, ok := f.Mapping.Value(f.Source, 0, b.conv, pb.Intern); ok {
				if err := pb.SetDataValue(slot, v); err != nil {
					return nil, fmt.Errorf("build: part %q: %w", p.Info.Name, err)
				}
			}
			continue
		}
		for i := 0; i < n; i++ {
			v, ok := f.Mapping.Value(f.Source, i, b.conv, pb.Intern)
			if !ok {
				continue
			}
			if err := pb.SetValue(i, slot, v); err != nil {
				return nil, fmt.Errorf("build: part %q: %w", p.Info.Name, err)
			}
		}
	}

	pd, err := pb.Seal()
	if err != nil {
		return nil, fmt.Errorf("build: part %q: %w", p.Info.Name, err)
	}
	b.log.Debug("point data built",
		zap.String("part", p.Info.Name),
		zap.Int("points", pd.Len()),
		zap.Int("attributes", len(fields)))
	return pd, nil
}

// transforms returns one downstream transform per point. Instance
// transforms win over point attributes; indices outside the point range
// are left for the instance specializer to report.
func (b *Builder) transforms(p *extract.PartBuffers) []geom.Transform {
	n := len(p.Positions)
	out := make([]geom.Transform, n)
	orient := pointScoped(p, AttrOrient)
	rot := pointScoped(p, AttrRot)
	scale := pointScoped(p, AttrScale)
	pscale := pointScoped(p, AttrPScale)

	for i, pos := range p.Positions {
		t := geom.Transform{Location: pos, Rotation: geom.IdentityQuat, Scale: geom.One}
		switch {
		case orient != nil && orient.TupleSize == 4 && orient.Has(elem(orient, i)):
			t.Rotation = quat(orient, elem(orient, i))
		case rot != nil && rot.TupleSize == 4 && rot.Has(elem(rot, i)):
			t.Rotation = quat(rot, elem(rot, i))
		case rot != nil && rot.TupleSize == 3 && rot.Has(elem(rot, i)):
			e := rot.Tuple(elem(rot, i))
			t.Rotation = geom.QuatFromEuler(e[0], e[1], e[2])
		}
		if scale != nil && scale.TupleSize == 3 && scale.Has(elem(scale, i)) {
			s := scale.Tuple(elem(scale, i))
			t.Scale = geom.Vec3{X: s[0], Y: s[1], Z: s[2]}
		}
		if pscale != nil {
			if k, ok := pscale.Float(elem(pscale, i), 0); ok {
				t.Scale = t.Scale.Scale(k)
			}
		}
		out[i] = t
	}

	inst := p.Instances
	for k, xf := range inst.Transforms {
		idx := k
		if inst.PointIndices != nil {
			if k >= len(inst.PointIndices) {
				break
			}
			idx = inst.PointIndices[k]
		}
		if idx < 0 || idx >= n {
			continue
		}
		out[idx] = xf
	}

	for i := range out {
		out[i] = b.conv.Transform(out[i])
	}
	return out
}

func quat(a *cook.Attribute, i int) geom.Quat {
	q := a.Tuple(i)
	return geom.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}.Normalize()
}

// pointScoped finds an intrinsic attribute on points, falling back to detail.
func pointScoped(p *extract.PartBuffers, name string) *cook.Attribute {
	if a := p.Attribute(cook.OwnerPoint, name); a != nil {
		return a
	}
	return p.Attribute(cook.OwnerDetail, name)
}

// elem maps a point index to the element index of a.
func elem(a *cook.Attribute, i int) int {
	if a.Owner == cook.OwnerDetail {
		return 0
	}
	return i
}

type intrinsicAttrs struct {
	densityAttr, colorAttr, alphaAttr *cook.Attribute
}

func intrinsics(p *extract.PartBuffers) intrinsicAttrs {
	return intrinsicAttrs{
		densityAttr: pointScoped(p, AttrDensity),
		colorAttr:   pointScoped(p, AttrColor),
		alphaAttr:   pointScoped(p, AttrAlpha),
	}
}

// density defaults to 1 when the point carries no density.
func (in intrinsicAttrs) density(i int) float64 {
	a := in.densityAttr
	if a == nil {
		return 1
	}
	if v, ok := a.Float(elem(a, i), 0); ok {
		return v
	}
	return 1
}

// color combines Cd and Alpha, defaulting to opaque white.
func (in intrinsicAttrs) color(i int) geom.Vec4 {
	c := geom.Vec4{X: 1, Y: 1, Z: 1, W: 1}
	if a := in.colorAttr; a != nil && a.TupleSize >= 3 && a.Has(elem(a, i)) {
		t := a.Tuple(elem(a, i))
		c.X, c.Y, c.Z = t[0], t[1], t[2]
		if len(t) >= 4 {
			c.W = t[3]
		}
	}
	if a := in.alphaAttr; a != nil {
		if v, ok := a.Float(elem(a, i), 0); ok {
			c.W = v
		}
	}
	return c
}
