package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
)

func scatterPart() *cook.Part {
	p := cook.NewPart("scatter", cook.PartPoints)
	p.AddPoint(geom.Vec3{X: 0})
	p.AddPoint(geom.Vec3{X: 1})
	p.SetAttribute(cook.FloatAttribute("density", cook.OwnerPoint, 1, cook.TypeInfoNone, 0.2, 0.8))
	p.SetAttribute(cook.StringAttribute("unreal_pcg_attribute_mesh", cook.OwnerPoint, "/Game/A.A", ""))
	p.SetAttribute(cook.StringAttribute("unreal_pcg_attribute_label", cook.OwnerPoint, "a", "/Game/B.B"))
	return p
}

func TestExtractReadsEachBufferOnce(t *testing.T) {
	s := cook.NewNode("n").Commit(scatterPart())

	b, err := New(Options{}).Extract(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, b.Parts, 1)
	assert.Equal(t, s.ID(), b.SessionID)
	assert.Equal(t, s.Generation(), b.Generation)

	p := b.Parts[0]
	assert.Equal(t, []geom.Vec3{{X: 0}, {X: 1}}, p.Positions)
	assert.Len(t, p.Attributes, 3)

	assert.Equal(t, 1, s.ReadCount(0, "positions"))
	assert.Equal(t, 1, s.ReadCount(0, "attr/point/density"))
	assert.Equal(t, 1, s.ReadCount(0, "names/point"))
	assert.Equal(t, 0, s.ReadCount(0, "topology"), "point clouds have no topology")
}

func TestExtractDetectsAssetPaths(t *testing.T) {
	s := cook.NewNode("n").Commit(scatterPart())
	b, err := New(Options{}).Extract(context.Background(), s)
	require.NoError(t, err)

	p := b.Parts[0]
	assert.Equal(t, cook.TypeInfoAssetPath, p.Attribute(cook.OwnerPoint, "unreal_pcg_attribute_mesh").TypeInfo)
	assert.Equal(t, cook.TypeInfoNone, p.Attribute(cook.OwnerPoint, "unreal_pcg_attribute_label").TypeInfo,
		"mixed values stay plain strings")
}

func TestExtractIncompleteCookData(t *testing.T) {
	p := scatterPart()
	p.Info.PointCount = 3
	s := cook.NewNode("n").Commit(p)

	b, err := New(Options{}).Extract(context.Background(), s)
	assert.ErrorIs(t, err, ErrIncompleteCookData)
	assert.Nil(t, b)
}

func TestExtractShortTopology(t *testing.T) {
	p := cook.NewPart("m", cook.PartMesh)
	p.AddPoint(geom.Vec3{})
	p.Topology = cook.Topology{Vertices: []int{0, 0}, Counts: []int{3}}
	s := cook.NewNode("n").Commit(p)

	_, err := New(Options{}).Extract(context.Background(), s)
	assert.ErrorIs(t, err, ErrIncompleteCookData)
}

func TestExtractNegativePrimitiveCount(t *testing.T) {
	tests := []struct {
		name string
		typ  cook.PartType
		topo cook.Topology
	}{
		{"curve", cook.PartCurve, cook.Topology{Vertices: []int{0, 1, 2}, Counts: []int{-5, 8}}},
		{"mesh", cook.PartMesh, cook.Topology{Vertices: []int{0, 1, 2}, Counts: []int{-1, 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cook.NewPart(tt.name, tt.typ)
			for i := 0; i < 3; i++ {
				p.AddPoint(geom.Vec3{X: float64(i)})
			}
			p.Topology = tt.topo
			s := cook.NewNode("n").Commit(p)

			b, err := New(Options{}).Extract(context.Background(), s)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, ErrIncompleteCookData)
		})
	}
}

func TestExtractStaleSession(t *testing.T) {
	n := cook.NewNode("n")
	old := n.Commit(scatterPart())
	n.Commit(scatterPart())

	_, err := New(Options{}).Extract(context.Background(), old)
	assert.ErrorIs(t, err, cook.ErrSessionInvalid)
}

func TestExtractCanceled(t *testing.T) {
	s := cook.NewNode("n").Commit(scatterPart())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Extract(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractGateTagsAndObjectPath(t *testing.T) {
	open := scatterPart()
	open.SetAttribute(cook.IntAttribute(AttrOutputGate, cook.OwnerDetail, cook.StorageInt, 1, 1))
	open.SetAttribute(cook.StringAttribute(AttrTags, cook.OwnerDetail, "forest, rocks,forest"))
	open.SetAttribute(cook.StringArrayAttribute(AttrTags, cook.OwnerPrim, []string{"rocks", "cliff"}))
	open.SetAttribute(cook.StringAttribute(AttrObjectPath, cook.OwnerDetail, "/Game/PCG/Out"))

	closed := scatterPart()
	closed.SetAttribute(cook.IntAttribute(AttrOutputGate, cook.OwnerDetail, cook.StorageInt, 1, 0))

	missing := scatterPart()

	tests := []struct {
		name      string
		gate      bool
		wantParts int
	}{
		{"gating on", true, 1},
		{"gating off", false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cook.NewNode("n").Commit(open, closed, missing)
			b, err := New(Options{Gate: tt.gate}).Extract(context.Background(), s)
			require.NoError(t, err)
			require.Len(t, b.Parts, tt.wantParts)
			assert.Len(t, b.Skipped, 3-tt.wantParts)
			assert.Equal(t, []string{"forest", "rocks", "cliff"}, b.Parts[0].Tags)
			assert.Equal(t, "/Game/PCG/Out", b.Parts[0].ObjectPath)
		})
	}
}

func TestExtractObjectPathPerPart(t *testing.T) {
	detail := scatterPart()
	detail.SetAttribute(cook.StringAttribute(AttrObjectPath, cook.OwnerDetail, "/Game/A;imported"))
	prim := scatterPart()
	prim.SetAttribute(cook.StringAttribute(AttrObjectPath, cook.OwnerPrim, "/Game/B"))
	invalid := scatterPart()
	invalid.SetAttribute(cook.StringAttribute(AttrObjectPath, cook.OwnerDetail, "not a path"))

	b, err := New(Options{}).Extract(context.Background(), cook.NewNode("n").Commit(detail, prim, invalid, scatterPart()))
	require.NoError(t, err)
	var got []string
	for _, p := range b.Parts {
		got = append(got, p.ObjectPath)
	}
	assert.Equal(t, []string{"/Game/A", "/Game/B", "", ""}, got)
}

func TestPointAttributeFallback(t *testing.T) {
	p := &PartBuffers{Attributes: []*cook.Attribute{
		cook.FloatAttribute("w", cook.OwnerDetail, 1, cook.TypeInfoNone, 1),
		cook.FloatAttribute("w", cook.OwnerVertex, 1, cook.TypeInfoNone, 2),
	}}
	a := p.PointAttribute("w")
	require.NotNil(t, a)
	assert.Equal(t, cook.OwnerVertex, a.Owner)
	assert.Nil(t, p.PointAttribute("missing"))
}
