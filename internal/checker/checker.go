// Package checker drives admitted candidates through a validator with a
// fixed-size worker pool and hands every result to the checkpoint manager.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snapetech/streamcheck/internal/candidate"
	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checkpoint"
	"github.com/snapetech/streamcheck/internal/metrics"
	"github.com/snapetech/streamcheck/internal/safeurl"
)

const DefaultConcurrency = 100

// ErrNoCandidates is returned when the feed yields nothing to check and no
// earlier results exist to resume from.
var ErrNoCandidates = errors.New("no candidates to check")

// errDrainExpired cancels checks still running when the post-interrupt drain
// window closes. Their results are discarded and rechecked on resume.
var errDrainExpired = errors.New("drain window expired")

// Validator checks one candidate. It must return a terminal result and honor ctx.
type Validator interface {
	Check(ctx context.Context, c catalog.Candidate) catalog.CheckResult
}

// Options configures a Checker.
type Options struct {
	Concurrency int
	// Timeout is the per-check bound; it also bounds the drain after an interrupt.
	Timeout time.Duration
	// RateLimit caps check starts per second. Zero means unlimited.
	RateLimit float64
}

// Progress is sent after every recorded result.
type Progress struct {
	Checked int
	Total   int
	Last    catalog.CheckResult
	Counts  catalog.Summary
}

// Outcome describes a finished or interrupted run.
type Outcome struct {
	// Results holds every result known to the checkpoint manager, resumed ones first.
	Results    []catalog.CheckResult
	Summary    catalog.Summary
	Resumed    int
	Admitted   int
	Checked    int
	Duplicates int
	Rejected   map[candidate.Reason]int
	// Interrupted is set when ctx ended before every admitted candidate was checked.
	Interrupted bool
	Elapsed     time.Duration
}

// RejectedTotal sums Rejected.
func (o *Outcome) RejectedTotal() int {
	n := 0
	for _, c := range o.Rejected {
		n += c
	}
	return n
}

// Checker runs one batch.
type Checker struct {
	opts    Options
	v       Validator
	cp      *checkpoint.Manager
	metrics *metrics.Metrics
	log     *log.Logger

	// Progress, when set, receives updates without blocking; slow readers miss some.
	Progress chan<- Progress
}

// New returns a Checker. m and logger may be nil.
func New(opts Options, v Validator, cp *checkpoint.Manager, m *metrics.Metrics, logger *log.Logger) *Checker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Checker{opts: opts, v: v, cp: cp, metrics: m, log: logger}
}

// admit canonicalizes and deduplicates the feed. The dedup set is seeded with
// the URLs already held by the checkpoint manager, so resumed work is skipped
// by the same rule that drops in-run duplicates.
func (c *Checker) admit(feed []catalog.Candidate, out *Outcome) []catalog.Candidate {
	processed := c.cp.Processed()
	dedup := candidate.NewDeduplicator(len(feed) + len(processed))
	dedup.Seed(processed)
	admitted := make([]catalog.Candidate, 0, len(feed))
	for _, raw := range feed {
		cand, reason := candidate.Canonicalize(raw)
		if reason != "" {
			out.Rejected[reason]++
			c.metrics.Candidate("rejected")
			c.log.Debug("candidate rejected", "url", safeurl.RedactURL(cand.URL), "reason", reason)
			continue
		}
		if !dedup.Admit(cand.URL) {
			out.Duplicates++
			c.metrics.Candidate("duplicate")
			continue
		}
		c.metrics.Candidate("admitted")
		admitted = append(admitted, cand)
	}
	c.log.Debug("feed admitted", "distinct", dedup.Len(), "seeded", len(processed))
	return admitted
}

// Run checks feed. Cancelling ctx is an interrupt: dispatch stops, checks in
// flight get at most Options.Timeout to finish, and the checkpoint is flushed
// before Run returns. A persistence failure stops the run and is returned as
// the error alongside the partial Outcome.
func (c *Checker) Run(ctx context.Context, feed []catalog.Candidate) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Rejected: make(map[candidate.Reason]int)}
	out.Resumed = c.cp.Len()
	admitted := c.admit(feed, out)
	out.Admitted = len(admitted)
	if out.Admitted == 0 && out.Resumed == 0 {
		return out, ErrNoCandidates
	}
	c.log.Info("checking candidates",
		"admitted", out.Admitted, "resumed", out.Resumed,
		"duplicates", out.Duplicates, "rejected", out.RejectedTotal(),
		"concurrency", c.opts.Concurrency)

	// Persistence must outlive the interrupt that triggers the final flush.
	persistCtx := context.WithoutCancel(ctx)
	// Checks are detached from ctx so an interrupt lets them finish; only the
	// drain timer or a fatal error cuts them short.
	workCtx, cancelWork := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancelWork(nil)
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	var limiter *rate.Limiter
	if c.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opts.RateLimit), 1)
	}

	jobs := make(chan catalog.Candidate)
	go func() {
		defer close(jobs)
		for _, cand := range admitted {
			if dispatchCtx.Err() != nil {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(dispatchCtx); err != nil {
					return
				}
			}
			select {
			case <-dispatchCtx.Done():
				return
			case jobs <- cand:
			}
		}
	}()

	results := make(chan catalog.CheckResult)
	var g errgroup.Group
	for i := 0; i < min(c.opts.Concurrency, max(out.Admitted, 1)); i++ {
		g.Go(func() error {
			for cand := range jobs {
				c.metrics.CheckStarted()
				r := c.check(workCtx, cand)
				if workCtx.Err() != nil {
					c.metrics.CheckAborted()
					c.log.Debug("check abandoned", "url", safeurl.RedactURL(cand.URL), "cause", context.Cause(workCtx))
					continue
				}
				c.metrics.CheckDone(r)
				results <- r
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	finished := make(chan struct{})
	go c.drainWatch(ctx, finished, cancelWork)

	var fatal error
	var counts catalog.Summary
	for r := range results {
		if fatal != nil {
			continue
		}
		if !c.cp.Record(r) {
			continue
		}
		out.Checked++
		counts.Add(r.Status)
		c.log.Debug("checked", "url", safeurl.RedactURL(r.URL), "status", r.Status, "latency_ms", r.LatencyMs, "detail", r.Detail)
		c.emit(Progress{Checked: out.Checked, Total: out.Admitted, Last: r, Counts: counts})
		if err := c.cp.MaybeFlush(persistCtx); err != nil {
			fatal = err
			stopDispatch()
			cancelWork(err)
		}
	}
	close(finished)

	out.Interrupted = ctx.Err() != nil && out.Checked < out.Admitted
	if fatal == nil {
		fatal = c.cp.Flush(persistCtx)
	}
	out.Results = c.cp.Results()
	out.Elapsed = time.Since(start)
	out.Summary = catalog.Summarize(out.Results, out.Elapsed)
	if fatal != nil {
		c.log.Error("checkpoint persistence failed", "err", fatal)
		return out, fatal
	}
	switch {
	case !out.Interrupted:
	case c.cp.Enabled():
		c.log.Warn("interrupted, progress saved", "checked", out.Checked, "remaining", out.Admitted-out.Checked, "checkpoint", c.cp.Location())
	default:
		c.log.Warn("interrupted, checkpointing disabled, progress not saved", "checked", out.Checked, "remaining", out.Admitted-out.Checked)
	}
	return out, nil
}

// drainWatch cancels outstanding checks once ctx has been done for longer
// than the per-check timeout.
func (c *Checker) drainWatch(ctx context.Context, finished <-chan struct{}, cancel context.CancelCauseFunc) {
	select {
	case <-finished:
		return
	case <-ctx.Done():
	}
	c.log.Info("interrupt received, draining in-flight checks", "max_wait", c.opts.Timeout)
	t := time.NewTimer(c.opts.Timeout)
	defer t.Stop()
	select {
	case <-finished:
	case <-t.C:
		cancel(errDrainExpired)
	}
}

// check runs the validator, turning a panic into an Error result for that candidate.
func (c *Checker) check(ctx context.Context, cand catalog.Candidate) (r catalog.CheckResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("validator panic", "url", safeurl.RedactURL(cand.URL), "panic", p, "stack", string(debug.Stack()))
			r = catalog.CheckResult{
				Candidate: cand,
				Status:    catalog.StatusError,
				LatencyMs: time.Since(start).Milliseconds(),
				Detail:    fmt.Sprintf("internal error: %v", p),
				CheckedAt: time.Now().UTC(),
			}
		}
	}()
	r = c.v.Check(ctx, cand)
	r.Candidate = cand
	return r
}

func (c *Checker) emit(p Progress) {
	if c.Progress == nil {
		return
	}
	select {
	case c.Progress <- p:
	default:
	}
}
