package verify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ceremony/internal/artifact"
	"ceremony/internal/contrib"
	"ceremony/internal/logging"
)

// Engine verifies contributions on a bounded worker pool.
type Engine struct {
	tool    Tool
	store   *contrib.Store
	journal Journal
	kinds   []string
	mode    ChainMode
	workers int
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithKinds sets the required artifact kinds, checked in the given order.
func WithKinds(kinds []string) Option {
	return func(e *Engine) {
		if len(kinds) > 0 {
			e.kinds = append([]string(nil), kinds...)
		}
	}
}

// WithChainMode selects the anchor of each contribution.
func WithChainMode(m ChainMode) Option {
	return func(e *Engine) {
		if m != "" {
			e.mode = m
		}
	}
}

// WithWorkers sets the verification pool width. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine reading contributions from store, running
// tool, and recording every step in journal.
func NewEngine(tool Tool, store *contrib.Store, journal Journal, opts ...Option) *Engine {
	e := &Engine{
		tool:    tool,
		store:   store,
		journal: journal,
		kinds:   artifact.DefaultKinds(),
		mode:    ChainRolling,
		workers: runtime.NumCPU(),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the configured chain mode.
func (e *Engine) Mode() ChainMode { return e.mode }

// VerifyAll runs one task per contribution number in dirs, skipping the
// anchor contribution 0. Every task yields exactly one Result. onResult, if
// set, is called from a single goroutine in completion order. The returned
// slice is in completion order too.
func (e *Engine) VerifyAll(ctx context.Context, dirs []contrib.Dir, onResult func(Result)) []Result {
	byNumber := contrib.GroupByNumber(dirs)
	var numbers []int
	for n := range byNumber {
		if n != 0 {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	e.logger.InfoContext(ctx, "verification plan",
		"contributions", len(numbers), "workers", e.workers, "chain_mode", e.mode, "kinds", len(e.kinds))

	results := make(chan Result)
	var g errgroup.Group
	g.SetLimit(e.workers)
	go func() {
		for _, n := range numbers {
			g.Go(func() error {
				results <- e.verifyNumber(ctx, n, byNumber)
				return nil
			})
		}
		_ = g.Wait() // task errors are carried in Result.Err
		close(results)
	}()

	out := make([]Result, 0, len(numbers))
	for r := range results {
		e.logResult(ctx, r)
		out = append(out, r)
		if onResult != nil {
			onResult(r)
		}
	}
	return out
}

func (e *Engine) logResult(ctx context.Context, r Result) {
	attrs := []any{"contribution", r.Identity.String(), "duration", r.Duration.Round(time.Millisecond)}
	switch r.Status {
	case StatusVerified:
		e.logger.InfoContext(ctx, "contribution verified", attrs...)
	case StatusFailed:
		e.logger.WarnContext(ctx, "contribution failed verification",
			append(attrs, "kind", r.FailedKind, "failure", r.Failure)...)
	default:
		e.logger.ErrorContext(ctx, "contribution verification errored", append(attrs, "error", r.Err)...)
	}
}

// verifyNumber is the per-contribution task. It never panics and always
// returns a Result whose Status is set.
func (e *Engine) verifyNumber(ctx context.Context, number int, byNumber map[int][]contrib.Dir) (res Result) {
	start := time.Now()
	dirs := byNumber[number]
	res.Identity = dirs[0].Identity
	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("panic verifying contribution %04d: %v", number, p)
		}
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Status = StatusError
		res.Err = fmt.Errorf("contribution %04d not verified: %w", number, err)
		return res
	}

	rec, err := e.journal.Open(number)
	if err != nil {
		res.Status = StatusError
		res.Err = fmt.Errorf("open log for contribution %04d: %w", number, err)
		return res
	}
	res.LogPath = rec.Path()
	defer func() {
		if err := rec.Close(res); err != nil && res.Err == nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("close log for contribution %04d: %w", number, err)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("panic verifying contribution %04d: %v", number, p)
		}
	}()

	fail := func(err error) Result {
		res.Status = StatusError
		res.Err = err
		return res
	}

	if len(dirs) > 1 {
		if err := rec.Header(res.Identity, e.mode, nil); err != nil {
			return fail(fmt.Errorf("write log: %w", err))
		}
		names := make([]string, len(dirs))
		for i, d := range dirs {
			names[i] = d.Identity.String()
		}
		detail := "contribution number claimed by " + strings.Join(names, ", ")
		if err := rec.Note(detail); err != nil {
			return fail(fmt.Errorf("write log: %w", err))
		}
		res.Status = StatusFailed
		res.Failure = FailureConflict
		return res
	}
	dir := dirs[0]

	anchorNumber := 0
	if e.mode == ChainRolling {
		anchorNumber = number - 1
	}
	anchors := byNumber[anchorNumber]
	var anchorDir *contrib.Dir
	if len(anchors) == 1 {
		anchorDir = &anchors[0]
		id := anchorDir.Identity
		res.Anchor = &id
	}
	if err := rec.Header(res.Identity, e.mode, res.Anchor); err != nil {
		return fail(fmt.Errorf("write log: %w", err))
	}

	for _, kind := range e.kinds {
		a := ArtifactResult{Kind: kind, Candidate: e.store.ArtifactPath(dir, kind)}
		switch {
		case len(anchors) == 0:
			a.Failure = FailureMissingInput
			a.Detail = fmt.Sprintf("anchor contribution %04d not found", anchorNumber)
		case len(anchors) > 1:
			a.Failure = FailureMissingInput
			a.Detail = fmt.Sprintf("anchor contribution %04d is ambiguous (%d directories)", anchorNumber, len(anchors))
		default:
			a.Anchor = e.store.ArtifactPath(*anchorDir, kind)
			if !e.store.Exists(a.Candidate) {
				a.Failure = FailureMissingInput
				a.Detail = "candidate file missing"
			} else if !e.store.Exists(a.Anchor) {
				a.Failure = FailureMissingInput
				a.Detail = "anchor file missing"
			}
		}

		if a.Failure == "" {
			toolStart := time.Now()
			tr, err := e.tool.Verify(ctx, a.Candidate, a.Anchor)
			a.Invoked = true
			a.Duration = time.Since(toolStart)
			if err != nil {
				res.Artifacts = append(res.Artifacts, a)
				_ = rec.Note(fmt.Sprintf("verifier could not run for %s: %v", kind, err))
				return fail(fmt.Errorf("verify %s of contribution %04d: %w", kind, number, err))
			}
			a.Stdout, a.Stderr, a.ExitCode = tr.Stdout, tr.Stderr, tr.ExitCode
			switch {
			case tr.TimedOut:
				a.Failure = FailureTimeout
				a.Detail = "verification timed out"
			case !tr.OK:
				a.Failure = FailureRejected
				a.Detail = fmt.Sprintf("verifier exited with status %d", tr.ExitCode)
			default:
				a.OK = true
			}
		}

		res.Artifacts = append(res.Artifacts, a)
		if err := rec.Artifact(a); err != nil {
			return fail(fmt.Errorf("write log: %w", err))
		}
		if !a.OK {
			// The chain is broken here; later kinds cannot change the verdict.
			res.Status = StatusFailed
			res.FailedKind = kind
			res.Failure = a.Failure
			return res
		}
	}
	res.Status = StatusVerified
	return res
}
