package pcg

import (
	"fmt"

	"github.com/chazu/pcgbridge/pkg/geom"
)

// Kind identifies a tagged data payload.
type Kind int

const (
	KindPointData Kind = iota
	KindSpline
	KindMesh
)

// String returns the downstream class name of k.
func (k Kind) String() string {
	switch k {
	case KindPointData:
		return "PointData"
	case KindSpline:
		return "SplineData"
	case KindMesh:
		return "MeshData"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Data is a payload that can be placed in a Collection.
type Data interface {
	Kind() Kind
	encode(e *encoder)
}

// Kind reports KindPointData.
func (pd *PointData) Kind() Kind { return KindPointData }

// SplinePointType selects how a control point's tangents are derived.
type SplinePointType int

const (
	SplineLinear SplinePointType = iota
	SplineCurve
	SplineCustomTangent
)

// String returns the tangent mode name.
func (t SplinePointType) String() string {
	switch t {
	case SplineLinear:
		return "linear"
	case SplineCurve:
		return "curve"
	case SplineCustomTangent:
		return "custom-tangent"
	}
	return fmt.Sprintf("SplinePointType(%d)", int(t))
}

// SplinePoint is one control point. PointIndex refers to the point set the
// spline was derived from.
type SplinePoint struct {
	InputKey      float64
	Position      geom.Vec3
	Rotation      geom.Quat
	Scale         geom.Vec3
	ArriveTangent geom.Vec3
	LeaveTangent  geom.Vec3
	Type          SplinePointType
	PointIndex    int
}

// SplineData is one curve.
type SplineData struct {
	Closed bool
	Points []SplinePoint
}

// Kind reports KindSpline.
func (s *SplineData) Kind() Kind { return KindSpline }

// MeshData is an indexed triangle mesh. PointIndices maps each mesh vertex
// back to the point set it was derived from.
type MeshData struct {
	Positions    []geom.Vec3
	Normals      []geom.Vec3
	Triangles    [][3]int
	PointIndices []int
}

// Kind reports KindMesh.
func (m *MeshData) Kind() Kind { return KindMesh }

// TaggedData is a collection entry.
type TaggedData struct {
	Data Data
	Tags []string
	// CRC is the fingerprint of Data's encoding, used by downstream caches.
	CRC uint64
}

// Collection is the set of tagged data handed downstream.
type Collection struct {
	Entries    []TaggedData
	ObjectPath string
}

// Add appends d with tags and computes its CRC.
func (c *Collection) Add(d Data, tags ...string) {
	c.Entries = append(c.Entries, TaggedData{
		Data: d,
		Tags: append([]string(nil), tags...),
		CRC:  CRC(d),
	})
}

// OfKind returns the entries whose payload has kind k.
func (c *Collection) OfKind(k Kind) []TaggedData {
	var out []TaggedData
	for _, e := range c.Entries {
		if e.Data.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}
