package sdfx

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop"
)

func quad() ([]geom.Vec3, cook.Topology) {
	points := []geom.Vec3{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 9, Y: 9, Z: 9}, // unreferenced
	}
	return points, cook.Topology{Vertices: []int{0, 1, 2, 3}, Counts: []int{4}}
}

func TestTriangulateQuad(t *testing.T) {
	points, topo := quad()
	m, err := New().Triangulate(points, topo, interop.Options{PartName: "floor"})
	if err != nil {
		t.Fatalf("Triangulate failed: %v", err)
	}
	if m.TriangleCount() != 2 {
		t.Fatalf("triangle count = %d, want 2", m.TriangleCount())
	}
	if m.VertexCount() != 4 {
		t.Fatalf("vertex count = %d, want 4 (unreferenced point dropped)", m.VertexCount())
	}
	if len(m.Vertices) != len(m.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(m.Vertices), len(m.Normals))
	}
	if m.PartName != "floor" {
		t.Errorf("PartName = %q", m.PartName)
	}
	for i := 0; i < m.VertexCount(); i++ {
		n := m.Normal(i)
		if math.Abs(n.Z-1) > 1e-9 {
			t.Errorf("vertex %d normal = %v, want +Z", i, n)
		}
		if m.Vertex(i) != points[m.PointIndices[i]] {
			t.Errorf("vertex %d does not match its source point", i)
		}
	}
}

func TestTriangulateFlipWinding(t *testing.T) {
	points, topo := quad()
	straight, err := New().Triangulate(points, topo, interop.Options{})
	if err != nil {
		t.Fatal(err)
	}
	flipped, err := New().Triangulate(points, topo, interop.Options{FlipWinding: true})
	if err != nil {
		t.Fatal(err)
	}
	s := straight.Triangle(0)
	f := flipped.Triangle(0)
	if straight.PointIndices[s[0]] != flipped.PointIndices[f[2]] || straight.PointIndices[s[2]] != flipped.PointIndices[f[0]] {
		t.Errorf("winding not reversed: %v vs %v", s, f)
	}
	if n := flipped.Normal(0); math.Abs(n.Z+1) > 1e-9 {
		t.Errorf("flipped normal = %v, want -Z", n)
	}
}

func TestTriangulateSkipsDegenerate(t *testing.T) {
	points := []geom.Vec3{{X: 0}, {X: 1}, {X: 2}, {Y: 1}}
	topo := cook.Topology{
		Vertices: []int{0, 1, 2, 0, 0, 3, 0, 1, 3, 0, 1},
		Counts:   []int{3, 3, 3, 2},
	}
	m, err := New().Triangulate(points, topo, interop.Options{})
	if err != nil {
		t.Fatal(err)
	}
	// collinear, repeated index and a two-vertex line are all dropped
	if m.TriangleCount() != 1 {
		t.Fatalf("triangle count = %d, want 1", m.TriangleCount())
	}
}

func TestTriangulateBadTopology(t *testing.T) {
	points, _ := quad()
	_, err := New().Triangulate(points, cook.Topology{Vertices: []int{0, 1, 12}, Counts: []int{3}}, interop.Options{})
	if !errors.Is(err, interop.ErrBadTopology) {
		t.Fatalf("err = %v, want ErrBadTopology", err)
	}
	_, err = New().Triangulate(points, cook.Topology{Vertices: []int{0, 1}, Counts: []int{3}}, interop.Options{})
	if !errors.Is(err, interop.ErrBadTopology) {
		t.Fatalf("err = %v, want ErrBadTopology", err)
	}
	_, err = New().Triangulate(points, cook.Topology{Vertices: []int{0, 1, 2}, Counts: []int{-1, 4}}, interop.Options{})
	if !errors.Is(err, interop.ErrBadTopology) {
		t.Fatalf("negative count: err = %v, want ErrBadTopology", err)
	}
}

func TestPolygonizeBox(t *testing.T) {
	k := New()
	box, err := k.Box(geom.Vec3{X: 2, Y: 2, Z: 2})
	if err != nil {
		t.Fatal(err)
	}
	points, topo, err := k.Polygonize(k.Translate(box, geom.Vec3{X: 10}), 16)
	if err != nil {
		t.Fatalf("Polygonize failed: %v", err)
	}
	if len(topo.Counts) == 0 {
		t.Fatal("expected triangles")
	}
	if len(topo.Vertices) != 3*len(topo.Counts) {
		t.Fatalf("vertices %d != 3*triangles %d", len(topo.Vertices), 3*len(topo.Counts))
	}
	if len(points) >= len(topo.Vertices) {
		t.Errorf("expected welded points, got %d points for %d vertices", len(points), len(topo.Vertices))
	}
	for _, p := range points {
		if p.X < 8.5 || p.X > 11.5 {
			t.Fatalf("point %v outside translated box", p)
		}
	}

	m, err := k.Triangulate(points, topo, interop.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m.IsEmpty() {
		t.Fatal("round trip produced an empty mesh")
	}
}

func TestSolidsAndBooleans(t *testing.T) {
	k := New()
	sphere, err := k.Sphere(1)
	if err != nil {
		t.Fatal(err)
	}
	cyl, err := k.Cylinder(4, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	min, max := k.Union(sphere, cyl).BoundingBox()
	if max.Z < 1.9 || min.Z > -1.9 {
		t.Errorf("union bounds %v..%v should span the cylinder", min, max)
	}
	min, max = k.Difference(sphere, cyl).BoundingBox()
	if max.X < 0.9 || min.X > -0.9 {
		t.Errorf("difference bounds %v..%v should keep the sphere", min, max)
	}

	if _, err := k.Box(geom.Vec3{X: -1, Y: 1, Z: 1}); err == nil {
		t.Error("negative box size should fail")
	}
}
