package translator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
	"github.com/chazu/pcgbridge/pkg/specialize"
)

func scene() []*cook.Part {
	pts := cook.NewPart("scatter", cook.PartPoints)
	for i := 0; i < 4; i++ {
		pts.AddPoint(geom.Vec3{X: float64(i), Y: 0, Z: float64(i) * 2})
	}
	pts.SetAttribute(cook.FloatAttribute("density", cook.OwnerPoint, 1, cook.TypeInfoNone, 0.1, 0.5, 0.9, 1))
	pts.SetAttribute(cook.StringAttribute("unreal_pcg_attribute_mesh", cook.OwnerPoint, "/Game/A.A", "/Game/B.B", "", "/Game/A.A"))
	pts.SetAttribute(cook.StringAttribute(extract.AttrTags, cook.OwnerDetail, "scatter,forest"))

	crv := cook.NewPart("roads", cook.PartCurve)
	for i := 0; i < 6; i++ {
		crv.AddPoint(geom.Vec3{X: float64(i)})
	}
	crv.AddPrim(0, 1, 2)
	crv.AddPrim(3, 4, 5)
	crv.SetAttribute(cook.FloatAttribute(extract.AttrCurveParam, cook.OwnerVertex, 1, cook.TypeInfoNone, 0, 1, 2, 2, 1, 0))

	mesh := cook.NewPart("floor", cook.PartMesh)
	a := mesh.AddPoint(geom.Vec3{})
	b := mesh.AddPoint(geom.Vec3{X: 1})
	c := mesh.AddPoint(geom.Vec3{X: 1, Z: 1})
	mesh.AddPrim(a, b, c)

	inst := cook.NewPart("rocks", cook.PartInstancer)
	inst.AddPoint(geom.Vec3{})
	inst.AddPoint(geom.Vec3{})
	inst.Instances = cook.Instances{Transforms: []geom.Transform{
		{Location: geom.Vec3{X: 1}, Rotation: geom.IdentityQuat, Scale: geom.One},
		{Location: geom.Vec3{X: 2}, Rotation: geom.IdentityQuat, Scale: geom.One},
	}}
	inst.SetAttribute(cook.StringAttribute(extract.AttrInstance, cook.OwnerDetail, "/Game/Rock.Rock"))

	return []*cook.Part{pts, crv, mesh, inst}
}

func TestTranslateScene(t *testing.T) {
	s := cook.NewNode("n").Commit(scene()...)
	res, err := New(DefaultOptions()).Translate(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, s.ID(), res.SessionID)
	require.Len(t, res.Parts, 4)

	scatter := res.Parts[0]
	assert.Equal(t, []string{"scatter", "forest"}, scatter.Tags)
	assert.Equal(t, []string{"mesh"}, scatter.Points.Keys(0))
	for i, want := range []float64{0.1, 0.5, 0.9, 1} {
		assert.Equal(t, want, scatter.Points.Point(i).Density)
	}
	v, ok := scatter.Points.Value(1, "mesh")
	require.True(t, ok)
	assert.Equal(t, pcg.TypeSoftObjectPath, v.Type)

	roads := res.Parts[1]
	require.NotNil(t, roads.Curves)
	assert.Len(t, roads.Curves.Entries, 1)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], specialize.ErrMalformedCurveData)

	floor := res.Parts[2]
	require.NotNil(t, floor.Mesh)
	assert.Len(t, floor.Mesh.Mesh.Triangles, 1)

	rocks := res.Parts[3]
	require.NotNil(t, rocks.Instances)
	require.Len(t, rocks.Instances.Batches, 1)
	assert.Equal(t, "/Game/Rock.Rock", rocks.Instances.Batches[0].Source)
	assert.Equal(t, geom.Vec3{X: 200}, rocks.Instances.Batches[0].Entries[1].Transform.Location)

	require.Len(t, res.Collections, 4, "parts without an object path get their own collection")
	assert.Equal(t, DefaultCookFolder+"PCGDA_scatter_0", res.Collections[0].ObjectPath)
	assert.Equal(t, DefaultCookFolder+"PCGDA_rocks_3", rocks.ObjectPath)
	assert.Equal(t, map[pcg.Kind]int{pcg.KindPointData: 2, pcg.KindSpline: 1, pcg.KindMesh: 1}, kinds(res))
	assert.Equal(t, []string{"scatter", "forest"}, res.Collections[0].Entries[0].Tags)
	assert.Equal(t, 4, res.EntryCount())
}

func kinds(res *Result) map[pcg.Kind]int {
	out := map[pcg.Kind]int{}
	for _, c := range res.Collections {
		for _, e := range c.Entries {
			out[e.Data.Kind()]++
		}
	}
	return out
}

func entries(res *Result) []pcg.TaggedData {
	var out []pcg.TaggedData
	for _, c := range res.Collections {
		out = append(out, c.Entries...)
	}
	return out
}

func TestTranslateDeterministic(t *testing.T) {
	tr := New(DefaultOptions())
	first, err := tr.Translate(context.Background(), cook.NewNode("a").Commit(scene()...))
	require.NoError(t, err)
	second, err := tr.Translate(context.Background(), cook.NewNode("b").Commit(scene()...))
	require.NoError(t, err)

	fe, se := entries(first), entries(second)
	require.Equal(t, len(fe), len(se))
	for i := range fe {
		a, b := fe[i], se[i]
		if diff := cmp.Diff(pcg.Encode(a.Data), pcg.Encode(b.Data)); diff != "" {
			t.Errorf("entry %d differs (-first +second):\n%s", i, diff)
		}
		assert.Equal(t, a.CRC, b.CRC)
	}
}

func TestTranslateMappingFailure(t *testing.T) {
	parts := scene()
	parts[0].SetAttribute(cook.BlobAttribute("unreal_pcg_attribute_blob", cook.OwnerPoint, []byte("x")))
	res, err := New(DefaultOptions()).Translate(context.Background(), cook.NewNode("n").Commit(parts...))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, build.ErrAttributeMappingFailed)
}

func TestTranslateStaleSession(t *testing.T) {
	n := cook.NewNode("n")
	old := n.Commit(scene()...)
	n.Commit(scene()...)
	_, err := New(DefaultOptions()).Translate(context.Background(), old)
	assert.ErrorIs(t, err, cook.ErrSessionInvalid)
}

func TestTranslateIndexOutOfRangeFailsSession(t *testing.T) {
	parts := scene()
	parts[3].Instances.PointIndices = []int{0, 9}
	res, err := New(DefaultOptions()).Translate(context.Background(), cook.NewNode("n").Commit(parts...))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, specialize.ErrIndexOutOfRange)
}

func TestTranslateNegativeCountFailsSession(t *testing.T) {
	parts := scene()
	parts[1].Topology.Counts = []int{-5, 8}
	parts[2].Topology.Counts = []int{-1, 4}
	for _, p := range parts[1:3] {
		res, err := New(DefaultOptions()).Translate(context.Background(), cook.NewNode("n").Commit(p))
		assert.Nil(t, res, p.Info.Name)
		assert.ErrorIs(t, err, extract.ErrIncompleteCookData, p.Info.Name)
	}
}

func TestTranslateGroupsByObjectPath(t *testing.T) {
	parts := scene()
	parts[0].SetAttribute(cook.StringAttribute(extract.AttrObjectPath, cook.OwnerDetail, "/Game/PCG/A"))
	parts[1].SetAttribute(cook.StringAttribute(extract.AttrObjectPath, cook.OwnerDetail, "/Game/PCG/B"))
	parts[3].SetAttribute(cook.StringAttribute(extract.AttrObjectPath, cook.OwnerDetail, "/Game/PCG/A"))

	res, err := New(DefaultOptions()).Translate(context.Background(), cook.NewNode("n").Commit(parts...))
	require.NoError(t, err)

	var paths []string
	for _, c := range res.Collections {
		paths = append(paths, c.ObjectPath)
	}
	assert.Equal(t, []string{"/Game/PCG/A", "/Game/PCG/B", DefaultCookFolder + "PCGDA_floor_2"}, paths)

	a := res.Collection("/Game/PCG/A")
	require.NotNil(t, a)
	assert.Len(t, a.OfKind(pcg.KindPointData), 2)
	assert.Len(t, res.Collection("/Game/PCG/B").OfKind(pcg.KindSpline), 1)
	assert.Nil(t, res.Collection("/Game/PCG/C"))
}

func TestTranslateCookFolder(t *testing.T) {
	opts := DefaultOptions()
	opts.CookFolder = "/Game/Cooked/"
	res, err := New(opts).Translate(context.Background(), cook.NewNode("n").Commit(scene()[0]))
	require.NoError(t, err)
	require.Len(t, res.Collections, 1)
	assert.Equal(t, "/Game/Cooked/PCGDA_scatter_0", res.Collections[0].ObjectPath)
}

func TestTranslateFacelessMeshIsPointCloud(t *testing.T) {
	mesh := cook.NewPart("loose", cook.PartMesh)
	mesh.AddPoint(geom.Vec3{})
	mesh.AddPoint(geom.Vec3{X: 1})

	res, err := New(DefaultOptions()).Translate(context.Background(), cook.NewNode("n").Commit(mesh))
	require.NoError(t, err)
	require.Len(t, res.Parts, 1)
	assert.Nil(t, res.Parts[0].Mesh)
	assert.Equal(t, 2, res.Parts[0].Points.Len())
	assert.Equal(t, map[pcg.Kind]int{pcg.KindPointData: 1}, kinds(res))
}

func TestTranslateRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	opts := DefaultOptions()
	opts.Tracer = tp.Tracer("test")
	_, err := New(opts).Translate(context.Background(), cook.NewNode("n").Commit(scene()...))
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["translator.Translate"])
	assert.Equal(t, 1, names["extract.Extract"])
	assert.Equal(t, 4, names["translator.part"])
}
