// Package interop defines the strategy the bridge uses to talk to a
// geometry library: turning upstream polygon topology into triangle meshes,
// and modelling simple solids that a scripted cook can emit as parts.
// Implementations (sdfx) sit behind these interfaces so the backend can be
// swapped without touching the pipeline.
package interop

import (
	"errors"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
)

// ErrBadTopology is returned when a primitive references a point that does
// not exist.
var ErrBadTopology = errors.New("interop: bad topology")

// Options controls triangulation.
type Options struct {
	// FlipWinding reverses every triangle.
	FlipWinding bool
	// PartName labels the resulting mesh.
	PartName string
}

// Converter triangulates polygon topology.
type Converter interface {
	// Triangulate fans every polygon of topo into triangles over points,
	// dropping degenerate triangles and primitives with fewer than three
	// vertices. Only referenced points are kept, in first-use order.
	Triangulate(points []geom.Vec3, topo cook.Topology, opts Options) (*Mesh, error)
}

// Solid is an opaque handle to a modelled solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max geom.Vec3)
}

// Modeler builds solids and polygonizes them into upstream topology.
type Modeler interface {
	Box(size geom.Vec3) (Solid, error)
	Sphere(radius float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Translate(s Solid, by geom.Vec3) Solid

	// Polygonize returns welded points and triangle topology.
	Polygonize(s Solid, cells int) ([]geom.Vec3, cook.Topology, error)
}
