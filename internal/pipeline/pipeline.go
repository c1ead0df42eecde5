// Package pipeline wires the ceremony stages together: list the remote
// store, mirror it locally, verify every contribution and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"ceremony/internal/catalog"
	"ceremony/internal/config"
	"ceremony/internal/contrib"
	"ceremony/internal/format"
	"ceremony/internal/ledger"
	"ceremony/internal/logging"
	"ceremony/internal/metrics"
	"ceremony/internal/remote"
	"ceremony/internal/resultlog"
	"ceremony/internal/syncer"
	"ceremony/internal/verify"
)

// Commands recorded in the ledger.
const (
	CommandVerify = "verify"
	CommandLocal  = "local"
	CommandSync   = "sync"
)

// Options configures one run. Remote nil means local mode: the store is
// verified as it is on disk.
type Options struct {
	Config  *config.Config
	Remote  remote.Store
	Tool    verify.Tool
	Journal verify.Journal    // defaults to resultlog.NewDir(Config.LogsDir)
	Ledger  ledger.Ledger     // optional
	Metrics *metrics.Recorder // optional
	Out     io.Writer         // progress lines and the final table
	Table   format.Mode
	Logger  *slog.Logger
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID    int64
	Warnings []catalog.Warning
	Sync     *syncer.Report // nil in local mode
	Summary  *resultlog.Summary
	ExitCode int
}

type runner struct {
	opts      Options
	store     *contrib.Store
	out       io.Writer
	logger    *slog.Logger
	runID     int64
	ledgerErr error
}

func newRunner(opts Options) (*runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	r := &runner{
		opts:   opts,
		store:  contrib.New(opts.Config.ContributionsDir, opts.Config.Naming()),
		out:    opts.Out,
		logger: opts.Logger,
	}
	if r.out == nil {
		r.out = io.Discard
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r, nil
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *runner) startRun(command string) {
	if r.opts.Ledger == nil {
		return
	}
	id, err := r.opts.Ledger.StartRun(command, r.opts.Config.ChainMode, r.opts.Config.ExitPolicy)
	if err != nil {
		r.ledgerFailed(err)
		return
	}
	r.runID = id
}

func (r *runner) ledgerFailed(err error) {
	r.logger.Error("ledger write failed", "error", err)
	if r.ledgerErr == nil {
		r.ledgerErr = err
	}
}

// finishRun closes the ledger run and writes metrics. It returns the final
// exit code, which is a malfunction whenever any ledger write failed.
func (r *runner) finishRun(t ledger.RunTotals) int {
	if r.opts.Ledger != nil && r.runID != 0 {
		if err := r.opts.Ledger.FinishRun(r.runID, t); err != nil {
			r.ledgerFailed(err)
		}
	}
	code := t.ExitCode
	if r.ledgerErr != nil {
		code = resultlog.ExitMalfunction
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.Finish(code)
		if path := r.opts.Config.MetricsPath; path != "" {
			if err := r.opts.Metrics.WriteTextfile(path); err != nil {
				r.logger.Warn("metrics not written", "path", path, "error", err)
			}
		}
	}
	return code
}

func (r *runner) sync(ctx context.Context) (*syncer.Report, []catalog.Warning, error) {
	cfg := r.opts.Config
	cat := catalog.New(r.opts.Remote, cfg.Naming(), cfg.Kinds, r.logger.With("component", "catalog"))
	listing, err := cat.List(ctx, cfg.Remote.Prefix)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range listing.Warnings {
		r.printf("Warning: skipping %s", w)
	}

	s := syncer.New(r.opts.Remote, r.store,
		syncer.WithWorkers(cfg.DownloadWorkers),
		syncer.WithLogger(r.logger.With("component", "syncer")))
	rep, err := s.Sync(ctx, listing, func(o syncer.Outcome) {
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveDownload(o)
		}
		if o.OK() {
			r.printf("Downloaded %s to %s (%s)", o.Key, o.Path, format.Bytes(o.Bytes))
		} else {
			r.printf("Failed to download %s: %v", o.Key, o.Err)
		}
	})
	if rep != nil {
		r.printf("Sync: %d new of %d artifacts, %d new of %d receipts, %d failed",
			rep.NewArtifacts, rep.Artifacts, rep.NewReceipts, rep.Receipts, len(rep.Failed()))
	}
	return rep, listing.Warnings, err
}

// Sync mirrors the remote store into the local contribution store without
// verifying anything.
func Sync(ctx context.Context, opts Options) (*Outcome, error) {
	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}
	if opts.Remote == nil {
		return nil, errors.New("pipeline: sync needs a remote store")
	}
	r.startRun(CommandSync)
	rep, warnings, err := r.sync(ctx)
	if err != nil {
		r.finishRun(ledger.RunTotals{ExitCode: resultlog.ExitMalfunction})
		return nil, fmt.Errorf("sync: %w", err)
	}

	policy, _ := resultlog.ParsePolicy(opts.Config.ExitPolicy)
	sum := resultlog.Summarize(nil, len(rep.Failed()), nil)
	code := sum.ExitCode(policy)
	if r.ledgerErr != nil {
		code = resultlog.ExitMalfunction
	}
	code = r.finishRun(ledger.RunTotals{Fetched: rep.Fetched(), SyncFailed: len(rep.Failed()), ExitCode: code})
	return &Outcome{RunID: r.runID, Warnings: warnings, Sync: rep, Summary: sum, ExitCode: code}, nil
}

// Run syncs (unless in local mode), verifies every contribution and writes
// the summary. The returned error is set only when the run could not
// proceed at all; per-contribution problems are in Outcome.Summary.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	r, err := newRunner(opts)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	mode, err := verify.ParseChainMode(cfg.ChainMode)
	if err != nil {
		return nil, err
	}
	policy, err := resultlog.ParsePolicy(cfg.ExitPolicy)
	if err != nil {
		return nil, err
	}

	command := CommandVerify
	if opts.Remote == nil {
		command = CommandLocal
	}
	r.startRun(command)
	out := &Outcome{}

	if opts.Remote != nil {
		rep, warnings, err := r.sync(ctx)
		if err != nil {
			r.finishRun(ledger.RunTotals{ExitCode: resultlog.ExitMalfunction})
			return nil, fmt.Errorf("sync: %w", err)
		}
		out.Sync, out.Warnings = rep, warnings
	}

	dirs, err := r.store.ListContributions()
	if err != nil {
		r.finishRun(ledger.RunTotals{ExitCode: resultlog.ExitMalfunction})
		return nil, err
	}
	gaps := contrib.Gaps(dirs)
	if len(gaps) > 0 {
		r.logger.Warn("contribution chain has gaps", "missing", gaps)
	}

	journal := opts.Journal
	if journal == nil {
		journal = resultlog.NewDir(cfg.LogsDir)
	}
	if logs, ok := journal.(*resultlog.Dir); ok {
		r.pruneLogs(logs, dirs)
	}
	engine := verify.NewEngine(opts.Tool, r.store, journal,
		verify.WithKinds(cfg.Kinds),
		verify.WithChainMode(mode),
		verify.WithWorkers(cfg.VerifyWorkers),
		verify.WithLogger(r.logger.With("component", "verify")))

	results := engine.VerifyAll(ctx, dirs, func(res verify.Result) {
		r.report(res)
		if opts.Metrics != nil {
			opts.Metrics.ObserveResult(res)
		}
		if opts.Ledger != nil && r.runID != 0 {
			if err := opts.Ledger.RecordContribution(ledger.FromResult(r.runID, res)); err != nil {
				r.ledgerFailed(err)
			}
		}
	})

	syncFailed, fetched := 0, 0
	if out.Sync != nil {
		syncFailed, fetched = len(out.Sync.Failed()), out.Sync.Fetched()
	}
	sum := resultlog.Summarize(results, syncFailed, gaps)
	out.Summary = sum
	out.ExitCode = sum.ExitCode(policy)
	if r.ledgerErr != nil {
		out.ExitCode = resultlog.ExitMalfunction
	}
	out.RunID = r.runID

	if sum.Total() > 0 {
		fmt.Fprintln(r.out, sum.Table(opts.Table))
	}
	r.printf("%s", sum)

	out.ExitCode = r.finishRun(ledger.RunTotals{
		Verified: sum.Verified, Failed: sum.Failed, Errored: sum.Errored,
		Fetched: fetched, SyncFailed: syncFailed, ExitCode: out.ExitCode,
	})
	return out, nil
}

// pruneLogs drops logs of contributions no longer present locally, so the
// log directory describes this run only.
func (r *runner) pruneLogs(logs *resultlog.Dir, dirs []contrib.Dir) {
	var keep []int
	for n := range contrib.GroupByNumber(dirs) {
		keep = append(keep, n)
	}
	removed, err := logs.Prune(keep)
	if err != nil {
		r.logger.Warn("stale logs not pruned", "dir", logs.Path(), "error", err)
	}
	if len(removed) > 0 {
		r.logger.Info("pruned stale logs", "dir", logs.Path(), "removed", len(removed))
	}
}

func (r *runner) report(res verify.Result) {
	switch res.Status {
	case verify.StatusVerified:
		r.printf("Verified %s (%d artifacts, %s)", res.Identity, res.Invocations(), format.Duration(res.Duration))
	case verify.StatusFailed:
		where := ""
		if res.FailedKind != "" {
			where = " at " + res.FailedKind
		}
		r.printf("Verification failed for %s%s (%s), see %s", res.Identity, where, res.Failure, res.LogPath)
	default:
		r.printf("Error verifying %s: %v", res.Identity, res.Err)
	}
}
