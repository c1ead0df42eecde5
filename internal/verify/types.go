// Package verify checks that every contribution is a valid transformation
// of its anchor by running the external verifier tool once per artifact kind.
package verify

import (
	"context"
	"fmt"
	"time"

	"ceremony/internal/artifact"
)

// ChainMode selects which contribution a candidate is checked against.
type ChainMode string

const (
	// ChainRolling anchors contribution N on contribution N-1.
	ChainRolling ChainMode = "chain"
	// ChainGlobal anchors every contribution on contribution 0.
	ChainGlobal ChainMode = "global"
)

// ParseChainMode validates a configured chain mode.
func ParseChainMode(s string) (ChainMode, error) {
	switch ChainMode(s) {
	case ChainRolling, ChainGlobal:
		return ChainMode(s), nil
	}
	return "", fmt.Errorf("unknown chain mode %q (want %q or %q)", s, ChainRolling, ChainGlobal)
}

// Status is the outcome of one contribution.
type Status string

const (
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	// StatusError means the pipeline itself malfunctioned; the contribution
	// was not judged.
	StatusError Status = "error"
)

// Failure classifies why an artifact did not verify.
type Failure string

const (
	FailureMissingInput Failure = "missing input"
	FailureRejected     Failure = "rejected"
	FailureTimeout      Failure = "timeout"
	FailureConflict     Failure = "conflicting contributions"
)

// ArtifactResult is the outcome of checking one artifact kind.
type ArtifactResult struct {
	Kind      string
	Candidate string
	Anchor    string
	OK        bool
	Failure   Failure // empty when OK
	Detail    string  // human-readable reason for Failure
	ExitCode  int
	Stdout    string
	Stderr    string
	Invoked   bool // the tool ran for this artifact
	Duration  time.Duration
}

// Result is the outcome of one contribution task.
type Result struct {
	artifact.Identity
	Anchor     *artifact.Identity // nil when no anchor could be resolved
	Status     Status
	FailedKind string
	Failure    Failure
	Artifacts  []ArtifactResult
	LogPath    string
	Duration   time.Duration
	Err        error // set only with StatusError
}

// Invocations counts how many times the tool ran for this contribution.
func (r Result) Invocations() int {
	n := 0
	for _, a := range r.Artifacts {
		if a.Invoked {
			n++
		}
	}
	return n
}

// ToolResult is what the verifier tool reported for one invocation.
type ToolResult struct {
	OK       bool
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Tool verifies one candidate artifact against its anchor. A returned error
// means the tool could not be run at all, not that the artifact is invalid.
type Tool interface {
	Verify(ctx context.Context, candidate, anchor string) (ToolResult, error)
}

// Journal opens the durable log of one contribution.
type Journal interface {
	Open(number int) (Record, error)
}

// Record is one contribution's log, owned by a single task. Writes are
// durable as soon as each call returns.
type Record interface {
	Path() string
	Header(id artifact.Identity, mode ChainMode, anchor *artifact.Identity) error
	Artifact(a ArtifactResult) error
	Note(msg string) error
	Close(r Result) error
}
