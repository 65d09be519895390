package specialize

import (
	"fmt"

	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

// MeshOutput is the triangulated mesh of a part.
type MeshOutput struct {
	Mesh *pcg.MeshData
	// Degenerate counts the fan triangles dropped for zero area or
	// repeated points.
	Degenerate int
}

// Meshes triangulates a mesh part over the converted positions of its base
// set. Triangle winding is reversed when the conversion changes handedness.
func Meshes(p *extract.PartBuffers, base *pcg.PointData, conv geom.Conversion, tri interop.Converter) (*MeshOutput, error) {
	topo := p.Topology
	for k, pi := range topo.Vertices {
		if pi < 0 || pi >= base.Len() {
			return nil, &IndexError{What: fmt.Sprintf("part %q vertex %d", p.Info.Name, k), Index: pi, Len: base.Len()}
		}
	}

	positions := make([]geom.Vec3, base.Len())
	for i := range positions {
		positions[i] = base.Point(i).Transform.Location
	}
	m, err := tri.Triangulate(positions, topo, interop.Options{
		FlipWinding: conv.FlipsWinding(),
		PartName:    p.Info.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("specialize: part %q: %w", p.Info.Name, err)
	}

	fan := 0
	for _, c := range topo.Counts {
		if c >= 3 {
			fan += c - 2
		}
	}

	md := &pcg.MeshData{
		Positions:    make([]geom.Vec3, m.VertexCount()),
		Normals:      make([]geom.Vec3, m.VertexCount()),
		Triangles:    make([][3]int, m.TriangleCount()),
		PointIndices: append([]int(nil), m.PointIndices...),
	}
	for i := range md.Positions {
		md.Positions[i] = m.Vertex(i)
		md.Normals[i] = m.Normal(i)
	}
	for t := range md.Triangles {
		md.Triangles[t] = m.Triangle(t)
	}
	return &MeshOutput{Mesh: md, Degenerate: fan - m.TriangleCount()}, nil
}
