// Package upload converts downstream point data back into upstream cook
// parts, so a collection can feed a node as input geometry.
package upload

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

// ErrUnsupportedData is returned for payload kinds with no upstream form.
var ErrUnsupportedData = errors.New("upload: unsupported data")

// Options configures an Uploader.
type Options struct {
	// Prefix is prepended to every schema attribute name. Empty uses
	// build.DefaultPrefix.
	Prefix string
	// Conversion is the frame the data was translated into. Its inverse is
	// applied to positions, rotations, tangents and transforms.
	Conversion geom.Conversion
	// RotAndScale writes spline control point rotations and scales.
	RotAndScale bool
	// ObjectPath is written to parts of collections that carry none.
	ObjectPath string
	Logger     *zap.Logger
}

// Uploader turns payloads into parts. It holds no mutable state.
type Uploader struct {
	prefix      string
	inv         geom.Conversion
	rotAndScale bool
	objectPath  string
	log         *zap.Logger
}

// New returns an Uploader. A zero conversion is treated as identity.
func New(opts Options) *Uploader {
	u := &Uploader{
		prefix:      opts.Prefix,
		inv:         opts.Conversion.Inverse(),
		rotAndScale: opts.RotAndScale,
		objectPath:  opts.ObjectPath,
		log:         opts.Logger,
	}
	if u.prefix == "" {
		u.prefix = build.DefaultPrefix
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	return u
}

// Collection converts every non-empty entry of c into one part, in entry
// order. Parts are named "<kind>_<entry>" and carry the entry's tags and
// the collection's object path.
func (u *Uploader) Collection(c *pcg.Collection) ([]*cook.Part, error) {
	path := c.ObjectPath
	if path == "" {
		path = u.objectPath
	}
	var parts []*cook.Part
	for i, e := range c.Entries {
		name := fmt.Sprintf("%s_%d", e.Data.Kind(), i)
		p, err := u.Data(name, e.Data)
		if err != nil {
			return nil, err
		}
		if p == nil {
			u.log.Debug("empty entry skipped", zap.String("entry", name))
			continue
		}
		if len(e.Tags) > 0 {
			p.SetAttribute(cook.StringArrayAttribute(extract.AttrTags, cook.OwnerDetail, append([]string(nil), e.Tags...)))
		}
		if path != "" {
			owner := cook.OwnerDetail
			if p.Info.Type == cook.PartCurve {
				owner = cook.OwnerPrim
			}
			values := make([]string, 1)
			if owner == cook.OwnerPrim {
				values = make([]string, len(p.Topology.Counts))
			}
			for k := range values {
				values[k] = path
			}
			p.SetAttribute(cook.StringAttribute(extract.AttrObjectPath, owner, values...))
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// Data dispatches on the payload kind. Empty payloads yield a nil part.
func (u *Uploader) Data(name string, d pcg.Data) (*cook.Part, error) {
	switch d := d.(type) {
	case *pcg.PointData:
		return u.Points(name, d)
	case *pcg.SplineData:
		return u.Spline(name, d), nil
	case *pcg.MeshData:
		return u.Mesh(name, d), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedData, d.Kind())
}

// Points writes one upstream point per downstream point with its
// transform, density and color, plus every schema attribute under the
// prefix. Data domain attributes become detail attributes.
func (u *Uploader) Points(name string, pd *pcg.PointData) (*cook.Part, error) {
	n := pd.Len()
	if n == 0 {
		return nil, nil
	}
	p := cook.NewPart(name, cook.PartPoints)
	rot := make([]float64, 0, n*4)
	scale := make([]float64, 0, n*3)
	density := make([]float64, 0, n)
	cd := make([]float64, 0, n*3)
	alpha := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		pt := pd.Point(i)
		xf := u.inv.Transform(pt.Transform)
		p.AddPoint(xf.Location)
		rot = append(rot, xf.Rotation.X, xf.Rotation.Y, xf.Rotation.Z, xf.Rotation.W)
		scale = append(scale, xf.Scale.X, xf.Scale.Y, xf.Scale.Z)
		density = append(density, pt.Density)
		cd = append(cd, pt.Color.X, pt.Color.Y, pt.Color.Z)
		alpha = append(alpha, pt.Color.W)
	}
	p.SetAttribute(cook.FloatAttribute(build.AttrRot, cook.OwnerPoint, 4, cook.TypeInfoQuaternion, rot...))
	p.SetAttribute(cook.FloatAttribute(build.AttrScale, cook.OwnerPoint, 3, cook.TypeInfoVector, scale...))
	p.SetAttribute(cook.FloatAttribute(build.AttrDensity, cook.OwnerPoint, 1, cook.TypeInfoNone, density...))
	p.SetAttribute(cook.FloatAttribute(build.AttrColor, cook.OwnerPoint, 3, cook.TypeInfoColor, cd...))
	p.SetAttribute(cook.FloatAttribute(build.AttrAlpha, cook.OwnerPoint, 1, cook.TypeInfoNone, alpha...))

	for _, as := range pd.Schema().Attributes() {
		var (
			a   *cook.Attribute
			err error
		)
		if as.Domain == pcg.DomainData {
			v, _ := pd.DataValue(as.Name)
			a, err = u.attribute(as, cook.OwnerDetail, []pcg.Value{v}, pd.String)
		} else {
			values := make([]pcg.Value, n)
			for i := range values {
				values[i], _ = pd.Value(i, as.Name)
			}
			a, err = u.attribute(as, cook.OwnerPoint, values, pd.String)
		}
		if err != nil {
			return nil, fmt.Errorf("upload: %s: %w", name, err)
		}
		p.SetAttribute(a)
	}
	return p, nil
}

// attribute flattens values of one schema attribute into an upstream
// attribute of the matching storage.
func (u *Uploader) attribute(as pcg.AttributeSchema, owner cook.Owner, values []pcg.Value, str func(pcg.StringHandle) string) (*cook.Attribute, error) {
	name := u.prefix + as.Name
	floats := func(tuple int, info cook.TypeInfo, get func(pcg.Value) []float64) *cook.Attribute {
		flat := make([]float64, 0, len(values)*tuple)
		for _, v := range values {
			flat = append(flat, get(v)...)
		}
		return cook.FloatAttribute(name, owner, tuple, info, flat...)
	}
	strs := func(info cook.TypeInfo) *cook.Attribute {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = str(v.Str)
		}
		a := cook.StringAttribute(name, owner, out...)
		a.TypeInfo = info
		return a
	}

	switch as.Type {
	case pcg.TypeBool:
		ints := make([]int64, len(values))
		for i, v := range values {
			if v.Bool() {
				ints[i] = 1
			}
		}
		return cook.IntAttribute(name, owner, cook.StorageUint8, 1, ints...), nil
	case pcg.TypeInt64:
		ints := make([]int64, len(values))
		for i, v := range values {
			ints[i] = v.Int
		}
		return cook.IntAttribute(name, owner, cook.StorageInt64, 1, ints...), nil
	case pcg.TypeDouble:
		a := floats(1, cook.TypeInfoNone, func(v pcg.Value) []float64 { return []float64{v.Double()} })
		a.Storage = cook.StorageFloat64
		return a, nil
	case pcg.TypeVector2:
		return floats(2, cook.TypeInfoNone, func(v pcg.Value) []float64 { return v.Num[:2] }), nil
	case pcg.TypeVector:
		return floats(3, cook.TypeInfoNone, func(v pcg.Value) []float64 { return v.Num[:3] }), nil
	case pcg.TypeVector4:
		return floats(4, cook.TypeInfoNone, func(v pcg.Value) []float64 { return v.Num[:] }), nil
	case pcg.TypeQuaternion:
		return floats(4, cook.TypeInfoQuaternion, func(v pcg.Value) []float64 {
			q := u.inv.Rotation(v.Quaternion())
			return []float64{q.X, q.Y, q.Z, q.W}
		}), nil
	case pcg.TypeTransform:
		return floats(16, cook.TypeInfoMatrix, func(v pcg.Value) []float64 {
			m := u.inv.Matrix(v.Xform.Matrix())
			return m[:]
		}), nil
	case pcg.TypeString:
		return strs(cook.TypeInfoNone), nil
	case pcg.TypeSoftObjectPath:
		return strs(cook.TypeInfoAssetPath), nil
	}
	return nil, fmt.Errorf("%w: attribute %q of type %s", ErrUnsupportedData, as.Name, as.Type)
}

// Spline writes one open or closed curve primitive over one point per
// control point. Tangents are written when any control point uses custom
// tangents; otherwise the curve type records linear or smooth.
func (u *Uploader) Spline(name string, s *pcg.SplineData) *cook.Part {
	n := len(s.Points)
	if n == 0 {
		return nil
	}
	p := cook.NewPart(name, cook.PartCurve)
	verts := make([]int, n)
	custom, smooth := false, false
	for i, sp := range s.Points {
		verts[i] = p.AddPoint(u.inv.Position(sp.Position))
		switch sp.Type {
		case pcg.SplineCustomTangent:
			custom = true
		case pcg.SplineCurve:
			smooth = true
		}
	}
	p.AddPrim(verts...)

	closed := int64(0)
	if s.Closed {
		closed = 1
	}
	p.SetAttribute(cook.IntAttribute(extract.AttrCurveClosed, cook.OwnerPrim, cook.StorageInt, 1, closed))

	if keys, ok := inputKeys(s); ok {
		p.SetAttribute(cook.FloatAttribute(extract.AttrCurveParam, cook.OwnerVertex, 1, cook.TypeInfoNone, keys...))
	}

	if custom {
		arrive := make([]float64, 0, n*3)
		leave := make([]float64, 0, n*3)
		for _, sp := range s.Points {
			a, l := u.inv.Position(sp.ArriveTangent), u.inv.Position(sp.LeaveTangent)
			arrive = append(arrive, a.X, a.Y, a.Z)
			leave = append(leave, l.X, l.Y, l.Z)
		}
		p.SetAttribute(cook.FloatAttribute(extract.AttrArriveTangent, cook.OwnerPoint, 3, cook.TypeInfoVector, arrive...))
		p.SetAttribute(cook.FloatAttribute(extract.AttrLeaveTangent, cook.OwnerPoint, 3, cook.TypeInfoVector, leave...))
	} else {
		typ := int64(0)
		if smooth {
			typ = 1
		}
		p.SetAttribute(cook.IntAttribute(extract.AttrCurveType, cook.OwnerPrim, cook.StorageInt, 1, typ))
	}

	if u.rotAndScale {
		rot := make([]float64, 0, n*4)
		scale := make([]float64, 0, n*3)
		for _, sp := range s.Points {
			q, k := u.inv.Rotation(sp.Rotation), u.inv.Scale(sp.Scale)
			rot = append(rot, q.X, q.Y, q.Z, q.W)
			scale = append(scale, k.X, k.Y, k.Z)
		}
		p.SetAttribute(cook.FloatAttribute(build.AttrRot, cook.OwnerPoint, 4, cook.TypeInfoQuaternion, rot...))
		p.SetAttribute(cook.FloatAttribute(build.AttrScale, cook.OwnerPoint, 3, cook.TypeInfoVector, scale...))
	}
	return p
}

// inputKeys returns the control point keys when they form a valid curve
// parameterization: finite and strictly increasing.
func inputKeys(s *pcg.SplineData) ([]float64, bool) {
	keys := make([]float64, len(s.Points))
	for i, sp := range s.Points {
		if math.IsNaN(sp.InputKey) || math.IsInf(sp.InputKey, 0) {
			return nil, false
		}
		if i > 0 && sp.InputKey <= keys[i-1] {
			return nil, false
		}
		keys[i] = sp.InputKey
	}
	return keys, true
}

// Mesh writes one point per mesh vertex and one triangle per face, undoing
// the winding reversal of a reflecting conversion. A mesh without vertices
// yields nil; one without triangles is a point-only mesh part.
func (u *Uploader) Mesh(name string, m *pcg.MeshData) *cook.Part {
	if len(m.Positions) == 0 {
		return nil
	}
	p := cook.NewPart(name, cook.PartMesh)
	for _, v := range m.Positions {
		p.AddPoint(u.inv.Position(v))
	}
	for _, t := range m.Triangles {
		if u.inv.FlipsWinding() {
			p.AddPrim(t[2], t[1], t[0])
		} else {
			p.AddPrim(t[0], t[1], t[2])
		}
	}
	return p
}
