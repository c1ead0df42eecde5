// Package ledger keeps a history of runs and per-contribution outcomes so
// operators can see when a contribution was last verified and how.
package ledger

import (
	"time"

	"ceremony/internal/verify"
)

// DefaultPath is the default ledger location, relative to cwd.
// Open creates the parent directory.
const DefaultPath = ".ceremony/ledger.db"

// Run is one invocation of the pipeline.
type Run struct {
	ID         int64
	Command    string // verify, sync, local
	ChainMode  string
	Policy     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Verified   int
	Failed     int
	Errored    int
	Fetched    int
	SyncFailed int
	ExitCode   int
}

// Finished reports whether FinishRun was recorded.
func (r *Run) Finished() bool { return !r.FinishedAt.IsZero() }

// RunTotals are the counters written when a run completes.
type RunTotals struct {
	Verified   int
	Failed     int
	Errored    int
	Fetched    int
	SyncFailed int
	ExitCode   int
}

// Contribution is the stored outcome of one contribution within a run.
type Contribution struct {
	RunID       int64
	Number      int
	Contributor string
	Anchor      string
	Status      string
	FailedKind  string
	Failure     string
	Invocations int
	Duration    time.Duration
	LogPath     string
	Error       string
}

// FromResult converts a verification result into its stored form.
func FromResult(runID int64, r verify.Result) Contribution {
	c := Contribution{
		RunID:       runID,
		Number:      r.Number,
		Contributor: r.Contributor,
		Status:      string(r.Status),
		FailedKind:  r.FailedKind,
		Failure:     string(r.Failure),
		Invocations: r.Invocations(),
		Duration:    r.Duration,
		LogPath:     r.LogPath,
	}
	if r.Anchor != nil {
		c.Anchor = r.Anchor.String()
	}
	if r.Err != nil {
		c.Error = r.Err.Error()
	}
	return c
}

// Ledger is the persistence facade for run history. Implementations are
// SQLite (SqlLedger) and in-memory (MemLedger).
type Ledger interface {
	StartRun(command, chainMode, policy string) (runID int64, err error)
	RecordContribution(c Contribution) error
	FinishRun(runID int64, totals RunTotals) error
	GetRun(runID int64) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	ListContributions(runID int64) ([]*Contribution, error)
	Close() error
}
