package specialize

import (
	"fmt"
	"math"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

// CurveEntry is one built curve.
type CurveEntry struct {
	Curve  int
	Spline *pcg.SplineData
}

// CurveOutput holds the curves of a part. Dropped lists one *CurveError per
// curve that could not be built.
type CurveOutput struct {
	Entries []CurveEntry
	Dropped []error
}

// Curves builds one spline per curve primitive of p. Control points take
// their transform from the base point each vertex refers to. A malformed
// curve is dropped and reported; an out-of-range point fails the part.
func Curves(p *extract.PartBuffers, base *pcg.PointData, conv geom.Conversion) (*CurveOutput, error) {
	topo := p.Topology
	param := p.Attribute(cook.OwnerVertex, extract.AttrCurveParam)
	if param == nil {
		param = p.Attribute(cook.OwnerPoint, extract.AttrCurveParam)
	}
	closed := primScoped(p, extract.AttrCurveClosed)
	ctype := primScoped(p, extract.AttrCurveType)
	arrive := p.PointAttribute(extract.AttrArriveTangent)
	leave := p.PointAttribute(extract.AttrLeaveTangent)
	custom := arrive != nil || leave != nil

	out := &CurveOutput{}
	offset := 0
	for c, count := range topo.Counts {
		if count < 0 || offset+count > len(topo.Vertices) {
			return nil, &IndexError{What: fmt.Sprintf("part %q curve %d vertex list", p.Info.Name, c), Index: offset + count, Len: len(topo.Vertices)}
		}
		if count < 1 {
			out.Dropped = append(out.Dropped, &CurveError{Part: p.Info.Name, Curve: c, Reason: "no vertices"})
			continue
		}
		verts := topo.Vertices[offset : offset+count]
		start := offset
		offset += count

		for _, pi := range verts {
			if pi < 0 || pi >= base.Len() {
				return nil, &IndexError{What: fmt.Sprintf("part %q curve %d", p.Info.Name, c), Index: pi, Len: base.Len()}
			}
		}

		keys, err := curveParams(param, start, verts)
		if err != nil {
			out.Dropped = append(out.Dropped, &CurveError{Part: p.Info.Name, Curve: c, Reason: err.Error()})
			continue
		}

		typ := pcg.SplineCurve
		if v, ok := primInt(ctype, c); ok && v <= 0 {
			typ = pcg.SplineLinear
		}
		if custom {
			typ = pcg.SplineCustomTangent
		}

		spline := &pcg.SplineData{Points: make([]pcg.SplinePoint, count)}
		if v, ok := primInt(closed, c); ok {
			spline.Closed = v != 0
		}
		for j, pi := range verts {
			xf := base.Point(pi).Transform
			sp := pcg.SplinePoint{
				InputKey:   keys[j],
				Position:   xf.Location,
				Rotation:   xf.Rotation,
				Scale:      xf.Scale,
				Type:       typ,
				PointIndex: pi,
			}
			if t, ok := tangent(arrive, start+j, pi); ok {
				sp.ArriveTangent = conv.Position(t)
			}
			if t, ok := tangent(leave, start+j, pi); ok {
				sp.LeaveTangent = conv.Position(t)
			}
			spline.Points[j] = sp
		}
		out.Entries = append(out.Entries, CurveEntry{Curve: c, Spline: spline})
	}
	return out, nil
}

// curveParams returns the parameter of each vertex of one curve, defaulting
// to the vertex ordinal. Parameters must be finite and strictly increasing.
func curveParams(a *cook.Attribute, start int, verts []int) ([]float64, error) {
	keys := make([]float64, len(verts))
	for j := range verts {
		keys[j] = float64(j)
		if a == nil {
			continue
		}
		i := start + j
		if a.Owner == cook.OwnerPoint {
			i = verts[j]
		}
		v, ok := a.Float(i, 0)
		if !ok {
			return nil, fmt.Errorf("vertex %d has no curve parameter", j)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("vertex %d curve parameter is %v", j, v)
		}
		keys[j] = v
	}
	for j := 1; j < len(keys); j++ {
		if keys[j] <= keys[j-1] {
			return nil, fmt.Errorf("curve parameter not strictly increasing at vertex %d (%v after %v)", j, keys[j], keys[j-1])
		}
	}
	return keys, nil
}

func primScoped(p *extract.PartBuffers, name string) *cook.Attribute {
	if a := p.Attribute(cook.OwnerPrim, name); a != nil {
		return a
	}
	return p.Attribute(cook.OwnerDetail, name)
}

func primInt(a *cook.Attribute, prim int) (int64, bool) {
	if a == nil {
		return 0, false
	}
	if a.Owner == cook.OwnerDetail {
		prim = 0
	}
	return a.Int(prim, 0)
}

func tangent(a *cook.Attribute, vertex, point int) (geom.Vec3, bool) {
	if a == nil || a.TupleSize != 3 {
		return geom.Vec3{}, false
	}
	i := point
	switch a.Owner {
	case cook.OwnerVertex:
		i = vertex
	case cook.OwnerDetail:
		i = 0
	}
	t := a.Tuple(i)
	if t == nil {
		return geom.Vec3{}, false
	}
	return geom.Vec3{X: t[0], Y: t[1], Z: t[2]}, true
}
