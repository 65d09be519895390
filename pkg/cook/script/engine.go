// Package script cooks geometry from small zygomys programs. It stands in
// for a live geometry session: each evaluation produces the parts of one
// cook and commits them to a cook.Node as a new generation.
package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/interop"
	"github.com/chazu/pcgbridge/pkg/interop/sdfx"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 5 * time.Second

var (
	// ErrSuperseded is returned when a newer evaluation started before this
	// one finished. Its parts are never committed.
	ErrSuperseded = errors.New("script: evaluation superseded by newer request")
	// ErrTimeout is returned when an evaluation exceeds its deadline.
	ErrTimeout = errors.New("script: evaluation timed out")
)

// EvalError is a parse or runtime error in user code.
type EvalError struct {
	Line    int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ScriptError wraps the eval errors of a failed cook.
type ScriptError struct {
	Errors []EvalError
}

func (e *ScriptError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ee := range e.Errors {
		msgs[i] = ee.Error()
	}
	return "script: " + strings.Join(msgs, "; ")
}

// Options configures an Engine.
type Options struct {
	Timeout time.Duration
	// Modeler backs the solid builtins. Nil uses the sdfx kernel.
	Modeler interop.Modeler
	// Cells is the default polygonize resolution.
	Cells  int
	Logger *zap.Logger
}

// Engine evaluates cook scripts. It is safe for concurrent use; every call
// runs in a fresh sandbox and only the newest evaluation may commit.
type Engine struct {
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	generation uint64
}

// New returns an Engine.
func New(opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Modeler == nil {
		opts.Modeler = sdfx.New()
	}
	if opts.Cells <= 0 {
		opts.Cells = sdfx.DefaultCells
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{opts: opts, log: opts.Logger}
}

type evalResult struct {
	parts  []*cook.Part
	errors []EvalError
	err    error
}

// Evaluate runs source with params and returns the parts it emitted.
//
// Return semantics:
//   - On success: parts, nil, nil
//   - On parse or runtime failure in user code: nil, eval errors, nil
//   - On timeout, cancellation, supersession or panic: nil, nil, error
func (e *Engine) Evaluate(ctx context.Context, source string, params map[string]any) ([]*cook.Part, []EvalError, error) {
	gen := e.next()
	return e.wait(ctx, gen, e.start(source, params))
}

// Cook evaluates source and commits the result to node. Eval errors are
// returned as a *ScriptError. A superseded evaluation commits nothing.
func (e *Engine) Cook(ctx context.Context, node *cook.Node, source string, params map[string]any) (*cook.MemorySession, error) {
	gen := e.next()
	parts, evalErrs, err := e.wait(ctx, gen, e.start(source, params))
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		return nil, &ScriptError{Errors: evalErrs}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return nil, ErrSuperseded
	}
	s := node.Commit(parts...)
	e.log.Debug("cook committed",
		zap.String("node", node.Name()),
		zap.Uint64("generation", s.Generation()),
		zap.Int("parts", len(parts)))
	return s, nil
}

func (e *Engine) next() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	return e.generation
}

func (e *Engine) start(source string, params map[string]any) <-chan evalResult {
	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("script: panic during evaluation: %v", r)}
			}
		}()
		parts, evalErrs, err := e.evaluate(source, params)
		ch <- evalResult{parts: parts, errors: evalErrs, err: err}
	}()
	return ch
}

// wait returns the result of generation gen, discarding it when a newer
// evaluation has started. On timeout the goroutine may still be running;
// its result lands in the buffered channel and is dropped.
func (e *Engine) wait(ctx context.Context, gen uint64, ch <-chan evalResult) ([]*cook.Part, []EvalError, error) {
	timer := time.NewTimer(e.opts.Timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		e.mu.Lock()
		current := e.generation
		e.mu.Unlock()
		if gen != current {
			e.log.Debug("stale evaluation discarded", zap.Uint64("generation", gen), zap.Uint64("current", current))
			return nil, nil, ErrSuperseded
		}
		return res.parts, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, e.opts.Timeout)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (e *Engine) evaluate(source string, params map[string]any) ([]*cook.Part, []EvalError, error) {
	st := &cookState{params: params, modeler: e.opts.Modeler, cells: e.opts.Cells}
	if strings.TrimSpace(source) == "" {
		return nil, nil, nil
	}

	// The sandbox denies filesystem and system access.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, st)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		evalErrs := parseZygomysError(err)
		if st.lastErr != nil {
			evalErrs[0].Message = st.lastErr.Error()
		}
		return nil, evalErrs, nil
	}
	return st.parts, nil, nil
}

var (
	linePattern      = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)
	linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)
)

// parseZygomysError extracts line information from a zygomys error.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
