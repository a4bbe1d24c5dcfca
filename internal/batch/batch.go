// Package batch schedules many independent requests concurrently. A failing
// request never affects the others.
package batch

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/driver"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Result is the outcome of one request, in input order.
type Result struct {
	ID       string             `json:"id"`
	Index    int                `json:"index"`
	Pattern  string             `json:"pattern"`
	Schedule *schedule.Schedule `json:"schedule,omitempty"`
	// Kind is the failure class, empty on success or for malformed requests.
	Kind    string        `json:"kind,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`

	Err error `json:"-"`
}

func (r Result) OK() bool { return r.Err == nil }

// ScheduleFunc runs one scheduling call.
type ScheduleFunc func(ctx context.Context, req driver.Request) (*schedule.Schedule, error)

type Runner struct {
	// Limit bounds the requests in flight. Zero uses GOMAXPROCS.
	Limit    int
	Registry *capability.Registry
	Schedule ScheduleFunc
}

// Run resolves and schedules every spec. Per-request failures are reported
// in the results; only cancellation of ctx fails the whole run.
func (r *Runner) Run(ctx context.Context, specs []driver.RequestSpec) ([]Result, error) {
	reg := r.Registry
	if reg == nil {
		reg = capability.NewRegistry()
	}
	run := r.Schedule
	if run == nil {
		run = driver.Schedule
	}
	limit := r.Limit
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	log := logger.FromContext(ctx)

	results := make([]Result, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := Result{ID: uuid.NewString(), Index: i, Pattern: spec.Pattern}
			start := time.Now()
			req, err := spec.Resolve(reg)
			if err == nil {
				res.Schedule, err = run(gctx, req)
			}
			res.Elapsed = time.Since(start)
			if err != nil {
				res.fail(err)
				log.Warn("batch request failed", "index", i, "pattern", spec.Pattern, "error", err)
			} else {
				res.Schedule.ID = res.ID
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Result) fail(err error) {
	r.Err = err
	r.Error = err.Error()
	r.Schedule = nil
	if kind := schedule.Classify(err); kind != nil {
		r.Kind = kind.Error()
	}
}

// Summary counts successful and failed results.
func Summary(results []Result) (ok, failed int) {
	for _, r := range results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
