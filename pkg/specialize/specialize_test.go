package specialize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop/sdfx"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

func prepare(t *testing.T, p *cook.Part, conv geom.Conversion) (*extract.PartBuffers, *pcg.PointData) {
	t.Helper()
	s := cook.NewNode("n").Commit(p)
	b, err := extract.New(extract.Options{}).Extract(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, b.Parts, 1)
	pd, err := build.New(build.Options{Prefix: build.DefaultPrefix, Conversion: conv}).Build(b.Parts[0])
	require.NoError(t, err)
	return b.Parts[0], pd
}

func TestInstancesBatchBySource(t *testing.T) {
	p := cook.NewPart("trees", cook.PartPoints)
	for i := 0; i < 3; i++ {
		p.AddPoint(geom.Vec3{X: float64(i)})
	}
	p.SetAttribute(cook.StringAttribute(extract.AttrInstance, cook.OwnerPoint, "/Game/Oak.Oak", "/Game/Pine.Pine;lod=1", "/Game/Oak.Oak"))
	part, base := prepare(t, p, geom.UnrealConversion)

	out, err := Instances(part, base)
	require.NoError(t, err)
	require.Len(t, out.Batches, 2)
	assert.Equal(t, "/Game/Oak.Oak", out.Batches[0].Source)
	assert.Equal(t, "/Game/Pine.Pine", out.Batches[1].Source)
	assert.Equal(t, 3, out.Count())

	oak := out.Batches[0].Entries
	require.Len(t, oak, 2)
	assert.Equal(t, 0, oak[0].PointIndex)
	assert.Equal(t, 2, oak[1].PointIndex)
	assert.Equal(t, base.Point(2).Transform, oak[1].Transform)
}

func TestInstancesIndexOutOfRange(t *testing.T) {
	p := cook.NewPart("inst", cook.PartInstancer)
	p.AddPoint(geom.Vec3{})
	p.AddPoint(geom.Vec3{X: 1})
	p.Instances = cook.Instances{
		Transforms:   []geom.Transform{geom.IdentityTransform, geom.IdentityTransform},
		PointIndices: []int{1, 5},
	}
	part, base := prepare(t, p, geom.IdentityConversion)

	out, err := Instances(part, base)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 5, ie.Index)
	assert.Equal(t, 2, ie.Len)
}

func curvePart(params ...float64) *cook.Part {
	p := cook.NewPart("roads", cook.PartCurve)
	for i := 0; i < 9; i++ {
		p.AddPoint(geom.Vec3{X: float64(i)})
	}
	p.AddPrim(0, 1, 2)
	p.AddPrim(3, 4, 5)
	p.AddPrim(6, 7, 8)
	if params != nil {
		p.SetAttribute(cook.FloatAttribute(extract.AttrCurveParam, cook.OwnerVertex, 1, cook.TypeInfoNone, params...))
	}
	return p
}

func TestCurvesPartialFailure(t *testing.T) {
	p := curvePart(0, 0.5, 1, 0, 0.7, 0.3, 0, 1, 2)
	part, base := prepare(t, p, geom.IdentityConversion)

	out, err := Curves(part, base, geom.IdentityConversion)
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, 0, out.Entries[0].Curve)
	assert.Equal(t, 2, out.Entries[1].Curve)

	require.Len(t, out.Dropped, 1)
	assert.ErrorIs(t, out.Dropped[0], ErrMalformedCurveData)
	var ce *CurveError
	require.True(t, errors.As(out.Dropped[0], &ce))
	assert.Equal(t, 1, ce.Curve)

	last := out.Entries[1].Spline
	assert.Equal(t, []float64{0, 1, 2}, []float64{last.Points[0].InputKey, last.Points[1].InputKey, last.Points[2].InputKey})
	assert.Equal(t, 7, last.Points[1].PointIndex)
	assert.Equal(t, geom.Vec3{X: 7}, last.Points[1].Position)
}

func TestCurvesDefaultParameters(t *testing.T) {
	p := curvePart()
	p.SetAttribute(cook.IntAttribute(extract.AttrCurveClosed, cook.OwnerPrim, cook.StorageInt, 1, 0, 1, 0))
	p.SetAttribute(cook.IntAttribute(extract.AttrCurveType, cook.OwnerDetail, cook.StorageInt, 1, 0))
	part, base := prepare(t, p, geom.IdentityConversion)

	out, err := Curves(part, base, geom.IdentityConversion)
	require.NoError(t, err)
	require.Len(t, out.Entries, 3)
	assert.Empty(t, out.Dropped)
	assert.False(t, out.Entries[0].Spline.Closed)
	assert.True(t, out.Entries[1].Spline.Closed)
	for _, e := range out.Entries {
		for j, sp := range e.Spline.Points {
			assert.Equal(t, float64(j), sp.InputKey)
			assert.Equal(t, pcg.SplineLinear, sp.Type)
		}
	}
}

func TestCurvesCustomTangents(t *testing.T) {
	p := curvePart()
	tangents := make([]float64, 0, 27)
	for i := 0; i < 9; i++ {
		tangents = append(tangents, 1, 2, 3)
	}
	p.SetAttribute(cook.FloatAttribute(extract.AttrLeaveTangent, cook.OwnerPoint, 3, cook.TypeInfoVector, tangents...))
	part, base := prepare(t, p, geom.UnrealConversion)

	out, err := Curves(part, base, geom.UnrealConversion)
	require.NoError(t, err)
	sp := out.Entries[0].Spline.Points[0]
	assert.Equal(t, pcg.SplineCustomTangent, sp.Type)
	assert.Equal(t, geom.Vec3{X: 100, Y: 300, Z: 200}, sp.LeaveTangent)
	assert.Equal(t, geom.Vec3{}, sp.ArriveTangent)
}

func TestCurvesIndexOutOfRange(t *testing.T) {
	p := curvePart()
	p.Topology.Vertices[4] = 42
	part, base := prepare(t, p, geom.IdentityConversion)

	out, err := Curves(part, base, geom.IdentityConversion)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCurvesRejectOverrunningCounts(t *testing.T) {
	for _, counts := range [][]int{{-5, 8}, {3, 3, 4}} {
		part, base := prepare(t, curvePart(), geom.IdentityConversion)
		part.Topology.Counts = counts

		out, err := Curves(part, base, geom.IdentityConversion)
		assert.Nil(t, out, "%v", counts)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "%v", counts)
	}
}

func quadPart() *cook.Part {
	p := cook.NewPart("floor", cook.PartMesh)
	a := p.AddPoint(geom.Vec3{X: 0, Z: 0})
	b := p.AddPoint(geom.Vec3{X: 1, Z: 0})
	c := p.AddPoint(geom.Vec3{X: 1, Z: 1})
	d := p.AddPoint(geom.Vec3{X: 0, Z: 1})
	p.AddPrim(a, b, c, d)
	p.AddPrim(a, a, b)
	return p
}

func TestMeshes(t *testing.T) {
	part, base := prepare(t, quadPart(), geom.UnrealConversion)

	out, err := Meshes(part, base, geom.UnrealConversion, sdfx.New())
	require.NoError(t, err)
	m := out.Mesh
	assert.Len(t, m.Triangles, 2)
	assert.Equal(t, 1, out.Degenerate)
	assert.Len(t, m.Positions, 4)
	assert.Len(t, m.Normals, 4)
	for i, pi := range m.PointIndices {
		assert.Equal(t, base.Point(pi).Transform.Location, m.Positions[i])
	}
	// Reversed winding of (a, b, c) is (c, b, a).
	first := m.Triangles[0]
	assert.Equal(t, []int{2, 1, 0}, []int{m.PointIndices[first[0]], m.PointIndices[first[1]], m.PointIndices[first[2]]})
}

func TestMeshesIndexOutOfRange(t *testing.T) {
	p := quadPart()
	p.Topology.Vertices[2] = 10
	part, base := prepare(t, p, geom.IdentityConversion)

	_, err := Meshes(part, base, geom.IdentityConversion, sdfx.New())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
