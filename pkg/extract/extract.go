// Package extract reads the raw output buffers of a cook session in one
// pass per buffer kind, producing an immutable snapshot the rest of the
// pipeline works from.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chazu/pcgbridge/pkg/attrib"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
)

// ErrIncompleteCookData is returned when a part lacks data it must carry,
// such as positions for every point.
var ErrIncompleteCookData = errors.New("extract: incomplete cook data")

// Control attributes. They steer the translation and are never exported
// as point attributes.
const (
	AttrOutputGate = "unreal_output_pcg_data_asset"
	AttrTags       = "unreal_pcg_tags"
	AttrObjectPath = "unreal_object_path"

	AttrInstance      = "unreal_instance"
	AttrCurveClosed   = "curve_closed"
	AttrCurveType     = "curve_type"
	AttrCurveParam    = "curveu"
	AttrArriveTangent = "unreal_spline_point_arrive_tangent"
	AttrLeaveTangent  = "unreal_spline_point_leave_tangent"
)

var controlAttributes = map[string]bool{
	AttrOutputGate:    true,
	AttrTags:          true,
	AttrObjectPath:    true,
	AttrInstance:      true,
	AttrCurveClosed:   true,
	AttrCurveType:     true,
	AttrCurveParam:    true,
	AttrArriveTangent: true,
	AttrLeaveTangent:  true,
}

// IsControlAttribute reports whether name is one of the control attributes.
func IsControlAttribute(name string) bool { return controlAttributes[name] }

// Buffers is everything read from one session.
type Buffers struct {
	SessionID  string
	Generation uint64
	Parts      []*PartBuffers
	// Skipped lists parts excluded by the output gate.
	Skipped []cook.PartInfo
}

// PartBuffers holds the raw data of one part.
type PartBuffers struct {
	Info       cook.PartInfo
	Positions  []geom.Vec3
	Topology   cook.Topology
	Instances  cook.Instances
	Attributes []*cook.Attribute
	Tags       []string
	// ObjectPath is the downstream asset the part is bound to, or "" when the
	// part carries no valid path.
	ObjectPath string
}

// Attribute returns the attribute with owner and name, or nil.
func (p *PartBuffers) Attribute(owner cook.Owner, name string) *cook.Attribute {
	for _, a := range p.Attributes {
		if a.Owner == owner && a.Name == name {
			return a
		}
	}
	return nil
}

// PointAttribute prefers a point attribute and falls back to vertex then
// detail scope.
func (p *PartBuffers) PointAttribute(name string) *cook.Attribute {
	for _, o := range []cook.Owner{cook.OwnerPoint, cook.OwnerVertex, cook.OwnerDetail} {
		if a := p.Attribute(o, name); a != nil {
			return a
		}
	}
	return nil
}

// Options configures an Extractor.
type Options struct {
	// Gate skips parts whose output gate detail attribute is missing or zero.
	Gate   bool
	Logger *zap.Logger
	Tracer trace.Tracer
}

// Extractor reads sessions.
type Extractor struct {
	gate   bool
	log    *zap.Logger
	tracer trace.Tracer
}

// New returns an Extractor.
func New(opts Options) *Extractor {
	x := &Extractor{gate: opts.Gate, log: opts.Logger, tracer: opts.Tracer}
	if x.log == nil {
		x.log = zap.NewNop()
	}
	if x.tracer == nil {
		x.tracer = otel.Tracer("github.com/chazu/pcgbridge/pkg/extract")
	}
	return x
}

// Extract reads every part of s. It fails with cook.ErrSessionInvalid if s
// is superseded before or during the read.
func (x *Extractor) Extract(ctx context.Context, s cook.Session) (_ *Buffers, err error) {
	ctx, span := x.tracer.Start(ctx, "extract.Extract", trace.WithAttributes(
		attribute.String("session.id", s.ID()),
		attribute.Int64("session.generation", int64(s.Generation())),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.Stale() {
		return nil, fmt.Errorf("extract: %w: session %s is stale", cook.ErrSessionInvalid, s.ID())
	}
	infos, err := s.Parts()
	if err != nil {
		return nil, fmt.Errorf("extract: parts: %w", err)
	}

	b := &Buffers{SessionID: s.ID(), Generation: s.Generation()}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := x.readPart(s, info)
		if err != nil {
			return nil, err
		}
		if x.gate && !gateOpen(p) {
			x.log.Debug("part skipped by output gate", zap.String("part", info.Name))
			b.Skipped = append(b.Skipped, info)
			continue
		}
		b.Parts = append(b.Parts, p)
	}

	// A newer cook may have landed while reading; the snapshot is then torn.
	if s.Stale() {
		return nil, fmt.Errorf("extract: %w: session %s superseded during read", cook.ErrSessionInvalid, s.ID())
	}
	span.SetAttributes(attribute.Int("parts", len(b.Parts)))
	return b, nil
}

func (x *Extractor) readPart(s cook.Session, info cook.PartInfo) (*PartBuffers, error) {
	p := &PartBuffers{Info: info}

	pos, err := s.Positions(info.ID)
	if err != nil {
		return nil, fmt.Errorf("extract: part %q positions: %w", info.Name, err)
	}
	if len(pos) < info.PointCount {
		return nil, fmt.Errorf("extract: part %q: %w: %d positions for %d points",
			info.Name, ErrIncompleteCookData, len(pos), info.PointCount)
	}
	p.Positions = pos[:info.PointCount]

	switch info.Type {
	case cook.PartMesh, cook.PartCurve:
		if p.Topology, err = s.Topology(info.ID); err != nil {
			return nil, fmt.Errorf("extract: part %q topology: %w", info.Name, err)
		}
		if err := checkTopology(info, p.Topology); err != nil {
			return nil, err
		}
	case cook.PartInstancer:
		if p.Instances, err = s.Instances(info.ID); err != nil {
			return nil, fmt.Errorf("extract: part %q instances: %w", info.Name, err)
		}
	}

	for _, owner := range cook.Owners {
		names, err := s.AttributeNames(info.ID, owner)
		if err != nil {
			return nil, fmt.Errorf("extract: part %q %s attribute names: %w", info.Name, owner, err)
		}
		for _, name := range names {
			a, err := s.Attribute(info.ID, owner, name)
			if err != nil {
				return nil, fmt.Errorf("extract: part %q attribute %q: %w", info.Name, name, err)
			}
			if isAssetPathAttribute(a) {
				a.TypeInfo = cook.TypeInfoAssetPath
			}
			p.Attributes = append(p.Attributes, a)
		}
	}

	p.Tags = readTags(p)
	p.ObjectPath = readObjectPath(p)
	x.log.Debug("part extracted",
		zap.String("part", info.Name),
		zap.Stringer("type", info.Type),
		zap.Int("points", len(p.Positions)),
		zap.Int("attributes", len(p.Attributes)))
	return p, nil
}

func checkTopology(info cook.PartInfo, t cook.Topology) error {
	total := 0
	for prim, c := range t.Counts {
		if c < 0 {
			return fmt.Errorf("extract: part %q: %w: primitive %d has vertex count %d",
				info.Name, ErrIncompleteCookData, prim, c)
		}
		total += c
	}
	if total > len(t.Vertices) {
		return fmt.Errorf("extract: part %q: %w: primitives reference %d vertices, %d present",
			info.Name, ErrIncompleteCookData, total, len(t.Vertices))
	}
	return nil
}

// isAssetPathAttribute reports whether a plain string attribute holds only
// asset references.
func isAssetPathAttribute(a *cook.Attribute) bool {
	if a.Storage != cook.StorageString || a.Array || a.TypeInfo != cook.TypeInfoNone {
		return false
	}
	seen := false
	for _, s := range a.Strings {
		if s == "" {
			continue
		}
		if !attrib.LooksLikeAssetPath(s) {
			return false
		}
		seen = true
	}
	return seen
}

func gateOpen(p *PartBuffers) bool {
	a := p.Attribute(cook.OwnerDetail, AttrOutputGate)
	if a == nil {
		return false
	}
	v, ok := a.Int(0, 0)
	return ok && v != 0
}

// readObjectPath returns the cleaned detail or primitive object path. Values
// that are not asset paths are treated as absent.
func readObjectPath(p *PartBuffers) string {
	for _, owner := range []cook.Owner{cook.OwnerDetail, cook.OwnerPrim} {
		a := p.Attribute(owner, AttrObjectPath)
		if a == nil {
			continue
		}
		if s, ok := a.StringAt(0, 0); ok && attrib.LooksLikeAssetPath(s) {
			return attrib.CleanAssetPath(s)
		}
	}
	return ""
}

// readTags collects tags from a detail or primitive attribute, either a
// string array or a comma separated string. Order is kept, duplicates dropped.
func readTags(p *PartBuffers) []string {
	var raw []string
	for _, owner := range []cook.Owner{cook.OwnerDetail, cook.OwnerPrim} {
		a := p.Attribute(owner, AttrTags)
		if a == nil || a.Storage != cook.StorageString {
			continue
		}
		if a.Array {
			for _, list := range a.StringArrays {
				raw = append(raw, list...)
			}
		} else {
			for _, s := range a.Strings {
				raw = append(raw, strings.Split(s, ",")...)
			}
		}
	}

	var tags []string
	seen := make(map[string]bool)
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
