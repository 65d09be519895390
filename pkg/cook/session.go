// Package cook models the upstream side of the bridge: a node that re-cooks
// procedural geometry and the read-only session through which one cook's
// output parts are inspected.
package cook

import (
	"errors"
	"fmt"

	"github.com/chazu/pcgbridge/pkg/geom"
)

var (
	// ErrSessionInvalid is returned when a session has been superseded by a
	// newer cook of the same node, or is otherwise unreadable.
	ErrSessionInvalid = errors.New("cook: session invalid")
	// ErrAttributeNotFound is returned by Session.Attribute for unknown names.
	ErrAttributeNotFound = errors.New("cook: attribute not found")
	// ErrPartNotFound is returned for an unknown part id.
	ErrPartNotFound = errors.New("cook: part not found")
)

// PartType classifies an output part.
type PartType int

const (
	// PartPoints is a point cloud with no primitives.
	PartPoints PartType = iota
	// PartMesh is polygonal geometry.
	PartMesh
	// PartCurve holds one or more curves.
	PartCurve
	// PartInstancer carries per-point instance transforms.
	PartInstancer
)

func (t PartType) String() string {
	switch t {
	case PartPoints:
		return "points"
	case PartMesh:
		return "mesh"
	case PartCurve:
		return "curve"
	case PartInstancer:
		return "instancer"
	}
	return fmt.Sprintf("part(%d)", int(t))
}

// ParsePartType parses a part type name.
func ParsePartType(s string) (PartType, error) {
	for _, t := range []PartType{PartPoints, PartMesh, PartCurve, PartInstancer} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("cook: unknown part type %q", s)
}

// PartInfo is the header of one output part.
type PartInfo struct {
	ID          int
	Name        string
	Type        PartType
	PointCount  int
	VertexCount int
	PrimCount   int
}

// Topology is the primitive layout of a mesh or curve part. Vertices maps
// each vertex to its point; Counts holds the vertex count of each primitive.
type Topology struct {
	Vertices []int
	Counts   []int
}

// Instances is the instance transform list of an instancer part. PointIndices
// correlates each transform with an upstream point; nil means transform i
// belongs to point i.
type Instances struct {
	Transforms   []geom.Transform
	PointIndices []int
}

// Session is a read-only view of one cook's output. Implementations must
// return ErrSessionInvalid from every accessor once superseded.
type Session interface {
	ID() string
	Generation() uint64
	// Stale reports whether a newer cook of the same node exists.
	Stale() bool
	Parts() ([]PartInfo, error)
	Positions(part int) ([]geom.Vec3, error)
	Topology(part int) (Topology, error)
	Instances(part int) (Instances, error)
	AttributeNames(part int, owner Owner) ([]string, error)
	Attribute(part int, owner Owner, name string) (*Attribute, error)
}
