// Package recook decides when a node's translation must be rebuilt and
// keeps the last good result available while a rebuild is in flight.
package recook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/translator"
)

// ErrSuperseded is returned when a build finishes after a newer generation
// was opened. Its result is discarded.
var ErrSuperseded = errors.New("recook: superseded by a newer generation")

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateCooking
	StateReady
	StateStale
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCooking:
		return "cooking"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fingerprint identifies a set of upstream parameter values.
type Fingerprint uint64

func (f Fingerprint) String() string { return fmt.Sprintf("%016x", uint64(f)) }

// FingerprintOf hashes parameters independent of map order. Every key,
// value type and value is length-prefixed, so values of different types or
// with embedded separators never collide.
func FingerprintOf(params map[string]any) Fingerprint {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := xxhash.New()
	for _, k := range keys {
		v := params[k]
		writeField(h, k)
		writeField(h, fmt.Sprintf("%T", v))
		writeField(h, fmt.Sprintf("%v", v))
	}
	return Fingerprint(h.Sum64())
}

func writeField(h *xxhash.Digest, s string) {
	_, _ = h.WriteString(strconv.Itoa(len(s)))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(s)
}

// Pipeline turns a session into a result. *translator.Translator satisfies it.
type Pipeline interface {
	Translate(ctx context.Context, s cook.Session) (*translator.Result, error)
}

// CookFunc produces the session for a generation.
type CookFunc func(ctx context.Context) (cook.Session, error)

// Ticket binds a caller to the generation it opened or joined.
type Ticket struct {
	Generation  uint64
	Fingerprint Fingerprint
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option { return func(c *Controller) { c.tracer = t } }

// WithMeter sets the meter used for the build counter.
func WithMeter(m metric.Meter) Option { return func(c *Controller) { c.meter = m } }

// Controller gates rebuilds of one node. It is safe for concurrent use.
type Controller struct {
	name     string
	pipeline Pipeline
	log      *zap.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	builds   metric.Int64Counter
	group    singleflight.Group

	mu    sync.Mutex
	state State
	gen   uint64
	fp    Fingerprint

	ready    *translator.Result
	readyFP  Fingerprint
	readyGen uint64

	failedGen uint64
	failedErr error

	lastSession uint64
	runs        int
}

// NewController returns an idle controller for the named node.
func NewController(name string, p Pipeline, opts ...Option) *Controller {
	c := &Controller{name: name, pipeline: p}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.With(zap.String("node", name))
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/chazu/pcgbridge/pkg/recook")
	}
	if c.meter == nil {
		c.meter = otel.Meter("github.com/chazu/pcgbridge/pkg/recook")
	}
	var err error
	c.builds, err = c.meter.Int64Counter("pcgbridge.recook.builds",
		metric.WithDescription("Pipeline runs started by the recook controller"),
		metric.WithUnit("1"))
	if err != nil {
		c.builds = noop.Int64Counter{}
	}
	return c
}

// Name returns the node name.
func (c *Controller) Name() string { return c.name }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Builds returns how many times the pipeline has run.
func (c *Controller) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

// Current returns the last published result. It stays available while a
// newer generation cooks and after a failed rebuild.
func (c *Controller) Current() (*translator.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, c.ready != nil
}

func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	c.log.Debug("state transition",
		zap.Stringer("from", c.state),
		zap.Stringer("to", to),
		zap.Uint64("generation", c.gen))
	c.state = to
}

// Begin registers a parameter fingerprint. An unchanged fingerprint reuses
// the ready result; a fingerprint matching the cooking generation joins it;
// anything else opens a new generation and supersedes the old one.
func (c *Controller) Begin(fp Fingerprint) (t Ticket, cached *translator.Result, reused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateReady && c.readyFP == fp:
		return Ticket{Generation: c.readyGen, Fingerprint: fp}, c.ready, true
	case c.state == StateCooking && c.fp == fp:
		return Ticket{Generation: c.gen, Fingerprint: fp}, nil, false
	}

	if c.state == StateReady || c.state == StateCooking {
		c.transition(StateStale)
	}
	c.gen++
	c.fp = fp
	c.transition(StateCooking)
	c.log.Info("generation opened", zap.Uint64("generation", c.gen), zap.Stringer("fingerprint", fp))
	return Ticket{Generation: c.gen, Fingerprint: fp}, nil, false
}

// Complete builds the result of t's generation from s. Concurrent callers
// with the same ticket share one pipeline run, and a generation never runs
// twice. A result whose generation was superseded is discarded with
// ErrSuperseded. On failure the previous ready result is restored untouched.
func (c *Controller) Complete(ctx context.Context, t Ticket, s cook.Session) (*translator.Result, error) {
	ctx, span := c.tracer.Start(ctx, "recook.Complete", trace.WithAttributes(
		attribute.String("node", c.name),
		attribute.Int64("generation", int64(t.Generation)),
	))
	defer span.End()

	c.mu.Lock()
	if done, res, err := c.settledLocked(t); done {
		c.mu.Unlock()
		return res, err
	}
	if s.Stale() || s.Generation() <= c.lastSession {
		err := fmt.Errorf("recook: %w: session generation %d, last built %d", cook.ErrSessionInvalid, s.Generation(), c.lastSession)
		c.failLocked(t, err)
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do(strconv.FormatUint(t.Generation, 10), func() (any, error) {
		return c.build(ctx, t, s)
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*translator.Result), nil
}

// Request runs a full cycle: Begin, cook on a miss, Complete.
func (c *Controller) Request(ctx context.Context, fp Fingerprint, cookFn CookFunc) (*translator.Result, error) {
	t, cached, reused := c.Begin(fp)
	if reused {
		return cached, nil
	}
	s, err := cookFn(ctx)
	if err != nil {
		err = fmt.Errorf("recook: cook %s: %w", c.name, err)
		c.mu.Lock()
		if t.Generation == c.gen {
			c.failLocked(t, err)
		}
		c.mu.Unlock()
		return nil, err
	}
	return c.Complete(ctx, t, s)
}

// Reset tears the controller down to Idle. In-flight builds are discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.ready = nil
	c.readyFP, c.readyGen = 0, 0
	c.failedErr = nil
	c.transition(StateIdle)
}

// settledLocked reports whether t's generation already has an outcome.
func (c *Controller) settledLocked(t Ticket) (bool, *translator.Result, error) {
	switch {
	case c.ready != nil && c.readyGen == t.Generation:
		return true, c.ready, nil
	case t.Generation != c.gen:
		return true, nil, fmt.Errorf("%w: generation %d, current %d", ErrSuperseded, t.Generation, c.gen)
	case c.failedErr != nil && c.failedGen == t.Generation:
		return true, nil, c.failedErr
	}
	return false, nil, nil
}

func (c *Controller) build(ctx context.Context, t Ticket, s cook.Session) (*translator.Result, error) {
	c.mu.Lock()
	if done, res, err := c.settledLocked(t); done {
		c.mu.Unlock()
		return res, err
	}
	c.runs++
	c.mu.Unlock()
	c.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("node", c.name)))

	res, err := c.pipeline.Translate(ctx, s)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Generation != c.gen {
		c.log.Info("stale result discarded", zap.Uint64("generation", t.Generation), zap.Uint64("current", c.gen))
		return nil, fmt.Errorf("%w: generation %d, current %d", ErrSuperseded, t.Generation, c.gen)
	}
	if err != nil {
		c.failLocked(t, err)
		return nil, err
	}
	c.ready = res
	c.readyFP = t.Fingerprint
	c.readyGen = t.Generation
	c.lastSession = s.Generation()
	c.failedErr = nil
	c.transition(StateReady)
	c.log.Info("result published", zap.Uint64("generation", t.Generation), zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// failLocked records a failed generation and restores the prior state.
func (c *Controller) failLocked(t Ticket, err error) {
	c.failedGen = t.Generation
	c.failedErr = err
	c.log.Warn("build failed", zap.Uint64("generation", t.Generation), zap.Error(err))
	if c.ready != nil {
		c.transition(StateReady)
		return
	}
	c.transition(StateIdle)
}
