package cook

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chazu/pcgbridge/pkg/geom"
)

// Node tracks the cook generations of one upstream node. Each Commit opens
// a newer generation and implicitly supersedes every earlier session.
type Node struct {
	name   string
	latest atomic.Uint64
}

// NewNode creates a node with no cooks.
func NewNode(name string) *Node {
	return &Node{name: name}
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Latest returns the newest committed generation, or 0.
func (n *Node) Latest() uint64 { return n.latest.Load() }

// Commit publishes parts as the node's newest cook. Parts must not be
// modified afterwards.
func (n *Node) Commit(parts ...*Part) *MemorySession {
	for i, p := range parts {
		p.Info.ID = i
		if p.Info.PointCount == 0 {
			p.Info.PointCount = len(p.Positions)
		}
		if p.Info.VertexCount == 0 {
			p.Info.VertexCount = len(p.Topology.Vertices)
		}
		if p.Info.PrimCount == 0 {
			p.Info.PrimCount = len(p.Topology.Counts)
		}
	}
	return &MemorySession{
		id:    uuid.NewString(),
		gen:   n.latest.Add(1),
		node:  n,
		parts: parts,
		reads: make(map[readKey]int),
	}
}

// Part is a mutable output part used to assemble a cook before Commit.
type Part struct {
	Info       PartInfo
	Positions  []geom.Vec3
	Topology   Topology
	Instances  Instances
	Attributes []*Attribute
}

// NewPart returns an empty part.
func NewPart(name string, typ PartType) *Part {
	return &Part{Info: PartInfo{Name: name, Type: typ}}
}

// AddPoint appends a point and returns its index.
func (p *Part) AddPoint(v geom.Vec3) int {
	p.Positions = append(p.Positions, v)
	return len(p.Positions) - 1
}

// AddPrim appends a primitive over the given points.
func (p *Part) AddPrim(points ...int) int {
	p.Topology.Vertices = append(p.Topology.Vertices, points...)
	p.Topology.Counts = append(p.Topology.Counts, len(points))
	return len(p.Topology.Counts) - 1
}

// SetAttribute adds a, replacing any attribute with the same owner and name.
func (p *Part) SetAttribute(a *Attribute) *Part {
	for i, existing := range p.Attributes {
		if existing.Owner == a.Owner && existing.Name == a.Name {
			p.Attributes[i] = a
			return p
		}
	}
	p.Attributes = append(p.Attributes, a)
	return p
}

// Attr looks up an attribute, or returns nil.
func (p *Part) Attr(owner Owner, name string) *Attribute {
	for _, a := range p.Attributes {
		if a.Owner == owner && a.Name == name {
			return a
		}
	}
	return nil
}

type readKey struct {
	part int
	kind string
}

// MemorySession is an in-memory Session produced by Node.Commit. It counts
// buffer reads so callers can verify access patterns.
type MemorySession struct {
	id    string
	gen   uint64
	node  *Node
	parts []*Part

	mu          sync.Mutex
	reads       map[readKey]int
	invalidated bool
}

var _ Session = (*MemorySession)(nil)

// ID returns the session id, unique per commit.
func (s *MemorySession) ID() string { return s.id }

// Generation returns the node generation this session was committed as.
func (s *MemorySession) Generation() uint64 { return s.gen }

// Stale reports whether the session was superseded or invalidated.
func (s *MemorySession) Stale() bool {
	s.mu.Lock()
	inv := s.invalidated
	s.mu.Unlock()
	return inv || s.gen < s.node.Latest()
}

// Invalidate tears the session down; every later read fails.
func (s *MemorySession) Invalidate() {
	s.mu.Lock()
	s.invalidated = true
	s.mu.Unlock()
}

// ReadCount returns how often a buffer kind was read for a part. Kinds are
// "parts", "positions", "topology", "instances", "names/<owner>" and
// "attr/<owner>/<name>".
func (s *MemorySession) ReadCount(part int, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[readKey{part, kind}]
}

// access counts a read of kind and resolves part. A negative part reads no
// part, only the staleness check.
func (s *MemorySession) access(part int, kind string) (*Part, error) {
	if s.Stale() {
		return nil, fmt.Errorf("%w: %s generation %d superseded by %d",
			ErrSessionInvalid, s.node.Name(), s.gen, s.node.Latest())
	}
	s.mu.Lock()
	s.reads[readKey{part, kind}]++
	s.mu.Unlock()
	if part < 0 {
		return nil, nil
	}
	if part >= len(s.parts) {
		return nil, fmt.Errorf("%w: %d", ErrPartNotFound, part)
	}
	return s.parts[part], nil
}

// Parts returns the part headers in commit order.
func (s *MemorySession) Parts() ([]PartInfo, error) {
	if _, err := s.access(-1, "parts"); err != nil {
		return nil, err
	}
	out := make([]PartInfo, len(s.parts))
	for i, p := range s.parts {
		out[i] = p.Info
	}
	return out, nil
}

// Positions returns a copy of the part's point positions.
func (s *MemorySession) Positions(part int) ([]geom.Vec3, error) {
	p, err := s.access(part, "positions")
	if err != nil {
		return nil, err
	}
	return append([]geom.Vec3(nil), p.Positions...), nil
}

// Topology returns a copy of the part's primitive layout.
func (s *MemorySession) Topology(part int) (Topology, error) {
	p, err := s.access(part, "topology")
	if err != nil {
		return Topology{}, err
	}
	return Topology{
		Vertices: append([]int(nil), p.Topology.Vertices...),
		Counts:   append([]int(nil), p.Topology.Counts...),
	}, nil
}

// Instances returns a copy of the part's instance transforms.
func (s *MemorySession) Instances(part int) (Instances, error) {
	p, err := s.access(part, "instances")
	if err != nil {
		return Instances{}, err
	}
	return Instances{
		Transforms:   append([]geom.Transform(nil), p.Instances.Transforms...),
		PointIndices: append([]int(nil), p.Instances.PointIndices...),
	}, nil
}

// AttributeNames lists the part's attributes on owner in insertion order.
func (s *MemorySession) AttributeNames(part int, owner Owner) ([]string, error) {
	p, err := s.access(part, "names/"+owner.String())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, a := range p.Attributes {
		if a.Owner == owner {
			names = append(names, a.Name)
		}
	}
	return names, nil
}

// Attribute returns a clone of the named attribute, or ErrAttributeNotFound.
func (s *MemorySession) Attribute(part int, owner Owner, name string) (*Attribute, error) {
	p, err := s.access(part, "attr/"+owner.String()+"/"+name)
	if err != nil {
		return nil, err
	}
	if a := p.Attr(owner, name); a != nil {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s %q on part %d", ErrAttributeNotFound, owner, name, part)
}
