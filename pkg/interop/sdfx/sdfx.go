// Package sdfx implements the interop interfaces using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop"
)

// Compile-time interface checks.
var (
	_ interop.Converter = (*Kernel)(nil)
	_ interop.Modeler   = (*Kernel)(nil)
)

// DefaultCells is the marching cubes resolution used when none is given.
const DefaultCells = 64

// minArea below which a triangle counts as degenerate.
const minArea = 1e-12

// Kernel implements interop.Converter and interop.Modeler.
type Kernel struct{}

// New returns a new Kernel.
func New() *Kernel {
	return &Kernel{}
}

func vec(v geom.Vec3) v3.Vec { return v3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

func unvec(v v3.Vec) geom.Vec3 { return geom.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Triangulate fans polygons into triangles. Vertex normals are the
// area-weighted average of adjacent face normals.
func (k *Kernel) Triangulate(points []geom.Vec3, topo cook.Topology, opts interop.Options) (*interop.Mesh, error) {
	m := &interop.Mesh{PartName: opts.PartName}
	local := make(map[int]uint32)
	var accum []v3.Vec

	vertexOf := func(p int) uint32 {
		if v, ok := local[p]; ok {
			return v
		}
		v := uint32(len(m.PointIndices))
		local[p] = v
		m.PointIndices = append(m.PointIndices, p)
		m.Vertices = append(m.Vertices, points[p].X, points[p].Y, points[p].Z)
		accum = append(accum, v3.Vec{})
		return v
	}

	offset := 0
	for prim, count := range topo.Counts {
		if count < 0 {
			return nil, fmt.Errorf("%w: primitive %d has negative vertex count %d", interop.ErrBadTopology, prim, count)
		}
		if offset+count > len(topo.Vertices) {
			return nil, fmt.Errorf("%w: primitive %d overruns the vertex list", interop.ErrBadTopology, prim)
		}
		poly := topo.Vertices[offset : offset+count]
		offset += count
		for _, p := range poly {
			if p < 0 || p >= len(points) {
				return nil, fmt.Errorf("%w: primitive %d references point %d of %d", interop.ErrBadTopology, prim, p, len(points))
			}
		}
		for i := 1; i+1 < len(poly); i++ {
			a, b, c := poly[0], poly[i], poly[i+1]
			if a == b || b == c || a == c {
				continue
			}
			if opts.FlipWinding {
				a, c = c, a
			}
			pa, pb, pc := vec(points[a]), vec(points[b]), vec(points[c])
			cross := pb.Sub(pa).Cross(pc.Sub(pa))
			if cross.Length()/2 < minArea {
				continue
			}
			// half the cross product is the unit normal weighted by area
			n := cross.MulScalar(0.5)
			for _, p := range []int{a, b, c} {
				v := vertexOf(p)
				accum[v] = accum[v].Add(n)
				m.Indices = append(m.Indices, v)
			}
		}
	}

	m.Normals = make([]float64, 0, len(m.Vertices))
	for _, n := range accum {
		n = unitOrZero(n)
		m.Normals = append(m.Normals, n.X, n.Y, n.Z)
	}
	return m, nil
}

func unitOrZero(v v3.Vec) v3.Vec {
	if v.Length() == 0 {
		return v
	}
	return v.Normalize()
}

// solid wraps an sdf.SDF3 to implement interop.Solid.
type solid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *solid) BoundingBox() (min, max geom.Vec3) {
	bb := s.s.BoundingBox()
	return unvec(bb.Min), unvec(bb.Max)
}

func unwrap(s interop.Solid) sdf.SDF3 {
	return s.(*solid).s
}

func wrap(s sdf.SDF3) interop.Solid {
	return &solid{s: s}
}

// Box creates a box centred on the origin.
func (k *Kernel) Box(size geom.Vec3) (interop.Solid, error) {
	s, err := sdf.Box3D(vec(size), 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box: %w", err)
	}
	return wrap(s), nil
}

// Sphere creates a sphere centred on the origin.
func (k *Kernel) Sphere(radius float64) (interop.Solid, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx: sphere: %w", err)
	}
	return wrap(s), nil
}

// Cylinder creates a Z-aligned cylinder centred on the origin.
func (k *Kernel) Cylinder(height, radius float64) (interop.Solid, error) {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: cylinder: %w", err)
	}
	return wrap(s), nil
}

// Union returns the union of two solids.
func (k *Kernel) Union(a, b interop.Solid) interop.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns a minus b.
func (k *Kernel) Difference(a, b interop.Solid) interop.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid.
func (k *Kernel) Translate(s interop.Solid, by geom.Vec3) interop.Solid {
	return wrap(sdf.Transform3D(unwrap(s), sdf.Translate3d(vec(by))))
}

// Polygonize renders s with marching cubes and welds coincident vertices.
func (k *Kernel) Polygonize(s interop.Solid, cells int) ([]geom.Vec3, cook.Topology, error) {
	if cells <= 0 {
		cells = DefaultCells
	}
	triangles := render.ToTriangles(unwrap(s), render.NewMarchingCubesUniform(cells))
	if len(triangles) == 0 {
		return nil, cook.Topology{}, fmt.Errorf("sdfx: polygonize produced no triangles")
	}

	var points []geom.Vec3
	index := make(map[v3.Vec]int)
	topo := cook.Topology{
		Vertices: make([]int, 0, len(triangles)*3),
		Counts:   make([]int, 0, len(triangles)),
	}
	for _, tri := range triangles {
		for j := 0; j < 3; j++ {
			v := tri[j]
			p, ok := index[v]
			if !ok {
				p = len(points)
				index[v] = p
				points = append(points, unvec(v))
			}
			topo.Vertices = append(topo.Vertices, p)
		}
		topo.Counts = append(topo.Counts, 3)
	}
	return points, topo, nil
}
