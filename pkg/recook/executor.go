package recook

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/pcgbridge/pkg/translator"
)

// Job asks one controller for the result of a fingerprint.
type Job struct {
	Controller  *Controller
	Fingerprint Fingerprint
	Cook        CookFunc
}

// Outcome is the per-node result of a Run. A failed node carries Err and
// never aborts its siblings.
type Outcome struct {
	Node   string
	Result *translator.Result
	Err    error
}

// Executor runs independent nodes in parallel.
type Executor struct {
	limit int
	log   *zap.Logger
}

// NewExecutor returns an executor running at most limit nodes at once.
// A limit of zero or less means unbounded.
func NewExecutor(limit int, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{limit: limit, log: log}
}

// Run executes jobs and returns their outcomes in job order. The error is
// non-nil only when ctx ends before every job finished.
func (e *Executor) Run(ctx context.Context, jobs []Job) ([]Outcome, error) {
	g, gctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	out := make([]Outcome, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			res, err := j.Controller.Request(gctx, j.Fingerprint, j.Cook)
			out[i] = Outcome{Node: j.Controller.Name(), Result: res, Err: err}
			if err != nil {
				e.log.Warn("node failed", zap.String("node", j.Controller.Name()), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}
