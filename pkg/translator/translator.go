// Package translator wires extraction, mapping, building and specialization
// into a single pass over one cook session.
package translator

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chazu/pcgbridge/pkg/attrib"
	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop"
	"github.com/chazu/pcgbridge/pkg/interop/sdfx"
	"github.com/chazu/pcgbridge/pkg/pcg"
	"github.com/chazu/pcgbridge/pkg/specialize"
)

// DefaultCookFolder prefixes the object path of parts that name none.
const DefaultCookFolder = "/Game/HoudiniEngine/Temp/"

// Options configures a Translator.
type Options struct {
	// Prefix selects exported attributes; see build.Options.
	Prefix     string
	Conversion geom.Conversion
	// Gate enables the per-part output gate.
	Gate bool
	// CookFolder prefixes generated object paths. Empty uses
	// DefaultCookFolder.
	CookFolder string
	Converter  interop.Converter
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// DefaultOptions exports prefixed attributes into the Unreal frame.
func DefaultOptions() Options {
	return Options{Prefix: build.DefaultPrefix, Conversion: geom.UnrealConversion}
}

// PartResult is everything produced for one part.
type PartResult struct {
	Info      cook.PartInfo
	Tags      []string
	Points    *pcg.PointData
	Instances *specialize.InstanceOutput
	Curves    *specialize.CurveOutput
	Mesh      *specialize.MeshOutput
	// ObjectPath is the collection the part's payloads were added to.
	ObjectPath string
}

// Result is the sealed output of one session.
type Result struct {
	SessionID  string
	Generation uint64
	Parts      []*PartResult
	// Collections holds one collection per distinct object path, in order of
	// first appearance.
	Collections []*pcg.Collection
	// Warnings holds recoverable failures such as dropped curves.
	Warnings []error
}

// Translator runs the pipeline. It holds no per-session state and is safe
// for concurrent use.
type Translator struct {
	opts      Options
	extractor *extract.Extractor
	log       *zap.Logger
	tracer    trace.Tracer
}

// New returns a Translator. A nil converter uses the sdfx kernel.
func New(opts Options) *Translator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/chazu/pcgbridge/pkg/translator")
	}
	if opts.Converter == nil {
		opts.Converter = sdfx.New()
	}
	if opts.Conversion.UnitScale == 0 {
		opts.Conversion = geom.IdentityConversion
	}
	if opts.CookFolder == "" {
		opts.CookFolder = DefaultCookFolder
	}
	return &Translator{
		opts: opts,
		extractor: extract.New(extract.Options{
			Gate:   opts.Gate,
			Logger: opts.Logger,
			Tracer: opts.Tracer,
		}),
		log:    opts.Logger,
		tracer: opts.Tracer,
	}
}

// Translate converts s into a Result. Any fatal part error fails the whole
// session so no partial result is ever published.
func (t *Translator) Translate(ctx context.Context, s cook.Session) (_ *Result, err error) {
	ctx, span := t.tracer.Start(ctx, "translator.Translate", trace.WithAttributes(
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

	bufs, err := t.extractor.Extract(ctx, s)
	if err != nil {
		return nil, err
	}

	// One mapping cache per session.
	builder := build.New(build.Options{
		Prefix:     t.opts.Prefix,
		Conversion: t.opts.Conversion,
		Mapper:     attrib.NewCache(),
		Logger:     t.log,
	})

	res := &Result{
		SessionID:  bufs.SessionID,
		Generation: bufs.Generation,
	}
	for _, p := range bufs.Parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pr, err := t.translatePart(ctx, builder, p)
		if err != nil {
			return nil, err
		}
		res.Parts = append(res.Parts, pr)
		if pr.Curves != nil {
			for _, w := range pr.Curves.Dropped {
				t.log.Warn("curve dropped", zap.String("part", p.Info.Name), zap.Error(w))
				res.Warnings = append(res.Warnings, w)
			}
		}
		pr.ObjectPath = t.objectPath(p)
		t.collect(res.collection(pr.ObjectPath), pr)
	}

	if s.Stale() {
		return nil, fmt.Errorf("translator: %w: session %s superseded during translation", cook.ErrSessionInvalid, s.ID())
	}
	span.SetAttributes(
		attribute.Int("parts", len(res.Parts)),
		attribute.Int("warnings", len(res.Warnings)),
	)
	t.log.Info("session translated",
		zap.String("session", res.SessionID),
		zap.Uint64("generation", res.Generation),
		zap.Int("parts", len(res.Parts)),
		zap.Int("collections", len(res.Collections)),
		zap.Int("entries", res.EntryCount()),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (t *Translator) translatePart(ctx context.Context, b *build.Builder, p *extract.PartBuffers) (_ *PartResult, err error) {
	_, span := t.tracer.Start(ctx, "translator.part", trace.WithAttributes(
		attribute.String("part.name", p.Info.Name),
		attribute.String("part.type", p.Info.Type.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pd, err := b.Build(p)
	if err != nil {
		return nil, err
	}
	pr := &PartResult{Info: p.Info, Tags: p.Tags, Points: pd}

	switch p.Info.Type {
	case cook.PartInstancer:
		pr.Instances, err = specialize.Instances(p, pd)
	case cook.PartPoints:
		if p.PointAttribute(extract.AttrInstance) != nil {
			pr.Instances, err = specialize.Instances(p, pd)
		}
	case cook.PartCurve:
		pr.Curves, err = specialize.Curves(p, pd, t.opts.Conversion)
	case cook.PartMesh:
		// A mesh part without faces is a point cloud.
		if p.Info.PrimCount > 0 {
			pr.Mesh, err = specialize.Meshes(p, pd, t.opts.Conversion, t.opts.Converter)
		}
	}
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// objectPath returns the part's own object path, or a generated one that is
// unique to the part.
func (t *Translator) objectPath(p *extract.PartBuffers) string {
	if p.ObjectPath != "" {
		return p.ObjectPath
	}
	return t.opts.CookFolder + "PCGDA_" + p.Info.Name + "_" + strconv.Itoa(p.Info.ID)
}

// Collection returns the collection bound to path, or nil.
func (r *Result) Collection(path string) *pcg.Collection {
	for _, c := range r.Collections {
		if c.ObjectPath == path {
			return c
		}
	}
	return nil
}

// EntryCount returns the number of tagged data across every collection.
func (r *Result) EntryCount() int {
	n := 0
	for _, c := range r.Collections {
		n += len(c.Entries)
	}
	return n
}

func (r *Result) collection(path string) *pcg.Collection {
	if c := r.Collection(path); c != nil {
		return c
	}
	c := &pcg.Collection{ObjectPath: path}
	r.Collections = append(r.Collections, c)
	return c
}

// collect adds a part's downstream payloads: splines for curves, a mesh for
// meshes and the point set for everything else.
func (t *Translator) collect(c *pcg.Collection, pr *PartResult) {
	switch {
	case pr.Curves != nil:
		for _, e := range pr.Curves.Entries {
			c.Add(e.Spline, pr.Tags...)
		}
	case pr.Mesh != nil:
		c.Add(pr.Mesh.Mesh, pr.Tags...)
	default:
		c.Add(pr.Points, pr.Tags...)
	}
}
