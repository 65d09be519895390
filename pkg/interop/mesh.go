package interop

import "github.com/chazu/pcgbridge/pkg/geom"

// Mesh is a triangle mesh with flat arrays: Vertices and Normals hold three
// floats per vertex, Indices three entries per triangle. PointIndices maps
// each vertex back to the upstream point it came from.
type Mesh struct {
	Vertices     []float64
	Normals      []float64
	Indices      []uint32
	PointIndices []int
	PartName     string
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return len(m.Indices) == 0
}

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) geom.Vec3 {
	return geom.Vec3{X: m.Vertices[3*i], Y: m.Vertices[3*i+1], Z: m.Vertices[3*i+2]}
}

// Normal returns the normal of vertex i.
func (m *Mesh) Normal(i int) geom.Vec3 {
	return geom.Vec3{X: m.Normals[3*i], Y: m.Normals[3*i+1], Z: m.Normals[3*i+2]}
}

// Triangle returns the vertex indices of triangle t.
func (m *Mesh) Triangle(t int) [3]int {
	return [3]int{int(m.Indices[3*t]), int(m.Indices[3*t+1]), int(m.Indices[3*t+2])}
}
