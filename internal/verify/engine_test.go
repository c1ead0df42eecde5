package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ceremony/internal/artifact"
	"ceremony/internal/contrib"
)

var testKinds = []string{"combined_26_1_1", "inclusion_26_1", "non-inclusion_26_1"}

// fakeTool rejects any candidate whose content is "tampered" and reports a
// timeout for any whose content is "slow".
type fakeTool struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeTool) Verify(_ context.Context, candidate, anchor string) (ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(candidate))
	f.mu.Unlock()
	if f.err != nil {
		return ToolResult{}, f.err
	}
	data, err := os.ReadFile(candidate)
	if err != nil {
		return ToolResult{}, err
	}
	switch string(data) {
	case "tampered":
		return ToolResult{ExitCode: 1, Stderr: "contribution does not extend " + filepath.Base(anchor)}, nil
	case "slow":
		return ToolResult{TimedOut: true, ExitCode: -1, Stderr: "verification timed out after 5m0s\n"}, nil
	}
	return ToolResult{OK: true, Stdout: "ok"}, nil
}

func (f *fakeTool) callsFor(id artifact.Identity) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.Contains(c, "_"+id.Contributor+"_") {
			out = append(out, c)
		}
	}
	return out
}

type memJournal struct {
	mu      sync.Mutex
	records map[int]*memRecord
}

func newMemJournal() *memJournal { return &memJournal{records: make(map[int]*memRecord)} }

func (j *memJournal) Open(number int) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := &memRecord{path: fmt.Sprintf("mem/%04d.txt", number)}
	j.records[number] = r
	return r, nil
}

type memRecord struct {
	path      string
	lines     []string
	artifacts []ArtifactResult
	closed    *Result
}

func (r *memRecord) Path() string { return r.path }
func (r *memRecord) Header(id artifact.Identity, mode ChainMode, anchor *artifact.Identity) error {
	r.lines = append(r.lines, "header "+id.String()+" "+string(mode))
	return nil
}
func (r *memRecord) Artifact(a ArtifactResult) error {
	r.artifacts = append(r.artifacts, a)
	return nil
}
func (r *memRecord) Note(msg string) error {
	r.lines = append(r.lines, "note "+msg)
	return nil
}
func (r *memRecord) Close(res Result) error {
	r.closed = &res
	return nil
}

type failingJournal struct{}

func (failingJournal) Open(int) (Record, error) { return nil, errors.New("read-only filesystem") }

func writeContribution(t *testing.T, s *contrib.Store, id artifact.Identity, content map[string]string) {
	t.Helper()
	dir := s.DirFor(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, k := range testKinds {
		body, ok := content[k]
		if !ok {
			body = "valid"
		}
		if body == "-" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, s.Naming().ArtifactFile(k, id)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(names ...string) []artifact.Identity {
	out := make([]artifact.Identity, len(names))
	for i, n := range names {
		out[i] = artifact.Identity{Number: i, Contributor: n}
	}
	return out
}

func byNumber(results []Result) map[int]Result {
	m := make(map[int]Result, len(results))
	for _, r := range results {
		m[r.Number] = r
	}
	return m
}

func listDirs(t *testing.T, s *contrib.Store) []contrib.Dir {
	t.Helper()
	dirs, err := s.ListContributions()
	if err != nil {
		t.Fatal(err)
	}
	return dirs
}

func TestVerifyAll_ChainDetectsTamperedContribution(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	people := ids("origin", "alice", "bob", "carol")
	for _, id := range people {
		content := map[string]string{}
		if id.Number == 3 {
			content["inclusion_26_1"] = "tampered"
		}
		writeContribution(t, s, id, content)
	}
	tool := &fakeTool{}
	j := newMemJournal()
	e := NewEngine(tool, s, j, WithKinds(testKinds), WithWorkers(4))

	var mu sync.Mutex
	var seen []int
	results := e.VerifyAll(context.Background(), listDirs(t, s), func(r Result) {
		mu.Lock()
		seen = append(seen, r.Number)
		mu.Unlock()
	})

	sort.Ints(seen)
	if diff := cmp.Diff([]int{1, 2, 3}, seen); diff != "" {
		t.Fatalf("every contribution but 0 yields one result (-want +got):\n%s", diff)
	}
	got := byNumber(results)
	for _, n := range []int{1, 2} {
		if got[n].Status != StatusVerified {
			t.Errorf("contribution %d: %s %v", n, got[n].Status, got[n].Err)
		}
		if got[n].Anchor == nil || got[n].Anchor.Number != n-1 {
			t.Errorf("contribution %d anchored on %v", n, got[n].Anchor)
		}
	}
	if r := got[3]; r.Status != StatusFailed || r.FailedKind != "inclusion_26_1" || r.Failure != FailureRejected {
		t.Errorf("contribution 3: %+v", r)
	}
	// Short-circuit: the third kind of contribution 3 is never checked.
	if calls := tool.callsFor(people[3]); len(calls) != 2 {
		t.Errorf("carol invocations = %v", calls)
	}
	// The anchor of 3 is 2, not the origin.
	if a := got[3].Artifacts[0].Anchor; !strings.Contains(a, "_bob_") {
		t.Errorf("anchor path = %s", a)
	}
	if rec := j.records[3]; rec == nil || rec.closed == nil || rec.closed.Status != StatusFailed {
		t.Errorf("log of contribution 3 not closed with its verdict")
	}
	if _, ok := j.records[0]; ok {
		t.Error("contribution 0 must not be verified")
	}
}

func TestVerifyAll_ShortCircuitOnFirstKind(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	people := ids("origin", "alice")
	writeContribution(t, s, people[0], nil)
	writeContribution(t, s, people[1], map[string]string{"combined_26_1_1": "tampered"})
	tool := &fakeTool{}

	results := NewEngine(tool, s, newMemJournal(), WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)

	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if r.Status != StatusFailed || r.FailedKind != "combined_26_1_1" {
		t.Errorf("result = %+v", r)
	}
	if r.Invocations() != 1 || len(tool.calls) != 1 {
		t.Errorf("invocations = %d, tool calls = %v", r.Invocations(), tool.calls)
	}
}

func TestVerifyAll_TimeoutShortCircuits(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	people := ids("origin", "alice")
	writeContribution(t, s, people[0], nil)
	writeContribution(t, s, people[1], map[string]string{"combined_26_1_1": "slow"})
	tool := &fakeTool{}
	j := newMemJournal()

	r := NewEngine(tool, s, j, WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)[0]

	if r.Status != StatusFailed || r.Failure != FailureTimeout || r.FailedKind != "combined_26_1_1" {
		t.Fatalf("result = %+v", r)
	}
	if r.Err != nil {
		t.Errorf("a timeout is a verdict, not an internal error: %v", r.Err)
	}
	if r.Invocations() != 1 || len(tool.calls) != 1 {
		t.Errorf("invocations = %d, tool calls = %v", r.Invocations(), tool.calls)
	}
	rec := j.records[1]
	if rec == nil || rec.closed == nil || rec.closed.Status != StatusFailed || rec.closed.Failure != FailureTimeout {
		t.Fatalf("log of contribution 1 not closed with the timeout verdict")
	}
	if len(rec.artifacts) != 1 {
		t.Fatalf("logged artifacts = %d, want 1", len(rec.artifacts))
	}
	if a := rec.artifacts[0]; a.Failure != FailureTimeout || !strings.Contains(a.Stderr, "timed out") {
		t.Errorf("logged artifact = %+v", a)
	}
}

func TestVerifyAll_MissingInput(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	people := ids("origin", "alice")
	writeContribution(t, s, people[0], nil)
	writeContribution(t, s, people[1], map[string]string{"inclusion_26_1": "-"})
	tool := &fakeTool{}

	r := NewEngine(tool, s, newMemJournal(), WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)[0]

	if r.Status != StatusFailed || r.Failure != FailureMissingInput || r.FailedKind != "inclusion_26_1" {
		t.Fatalf("result = %+v", r)
	}
	last := r.Artifacts[len(r.Artifacts)-1]
	if last.Invoked {
		t.Error("tool must not run for a missing candidate")
	}
	if diff := cmp.Diff([]string{"combined_26_1_1_alice_contribution_1.ph2"}, tool.calls); diff != "" {
		t.Errorf("tool calls (-want +got):\n%s", diff)
	}
}

func TestVerifyAll_MissingAnchorContribution(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	writeContribution(t, s, artifact.Identity{Number: 0, Contributor: "origin"}, nil)
	writeContribution(t, s, artifact.Identity{Number: 2, Contributor: "bob"}, nil)
	tool := &fakeTool{}

	r := NewEngine(tool, s, newMemJournal(), WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)[0]

	if r.Status != StatusFailed || r.Failure != FailureMissingInput || r.Anchor != nil {
		t.Errorf("result = %+v", r)
	}
	if len(tool.calls) != 0 {
		t.Errorf("tool calls = %v", tool.calls)
	}
}

func TestVerifyAll_GlobalMode(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	writeContribution(t, s, artifact.Identity{Number: 0, Contributor: "origin"}, nil)
	writeContribution(t, s, artifact.Identity{Number: 2, Contributor: "bob"}, nil)
	tool := &fakeTool{}

	e := NewEngine(tool, s, newMemJournal(), WithKinds(testKinds), WithChainMode(ChainGlobal))
	r := e.VerifyAll(context.Background(), listDirs(t, s), nil)[0]

	if e.Mode() != ChainGlobal {
		t.Fatalf("mode = %s", e.Mode())
	}
	if r.Status != StatusVerified || r.Anchor == nil || r.Anchor.Number != 0 {
		t.Errorf("result = %+v", r)
	}
	if r.Invocations() != len(testKinds) {
		t.Errorf("invocations = %d", r.Invocations())
	}
}

func TestVerifyAll_ConflictingContributions(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	writeContribution(t, s, artifact.Identity{Number: 0, Contributor: "origin"}, nil)
	writeContribution(t, s, artifact.Identity{Number: 1, Contributor: "alice"}, nil)
	writeContribution(t, s, artifact.Identity{Number: 1, Contributor: "mallory"}, nil)
	tool := &fakeTool{}
	j := newMemJournal()

	results := NewEngine(tool, s, j, WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)

	if len(results) != 1 {
		t.Fatalf("one task per number, got %d results", len(results))
	}
	if r := results[0]; r.Status != StatusFailed || r.Failure != FailureConflict {
		t.Errorf("result = %+v", r)
	}
	if len(tool.calls) != 0 {
		t.Errorf("tool calls = %v", tool.calls)
	}
	if lines := j.records[1].lines; len(lines) != 2 || !strings.Contains(lines[1], "0001_mallory") {
		t.Errorf("log lines = %v", lines)
	}
}

func TestVerifyAll_InternalErrors(t *testing.T) {
	s := contrib.New(t.TempDir(), artifact.DefaultNaming())
	writeContribution(t, s, artifact.Identity{Number: 0, Contributor: "origin"}, nil)
	writeContribution(t, s, artifact.Identity{Number: 1, Contributor: "alice"}, nil)

	t.Run("tool cannot start", func(t *testing.T) {
		tool := &fakeTool{err: ErrToolUnavailable}
		r := NewEngine(tool, s, newMemJournal(), WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)[0]
		if r.Status != StatusError || !errors.Is(r.Err, ErrToolUnavailable) {
			t.Errorf("result = %+v", r)
		}
	})
	t.Run("log cannot open", func(t *testing.T) {
		r := NewEngine(&fakeTool{}, s, failingJournal{}, WithKinds(testKinds)).VerifyAll(context.Background(), listDirs(t, s), nil)[0]
		if r.Status != StatusError || r.Err == nil {
			t.Errorf("result = %+v", r)
		}
	})
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results := NewEngine(&fakeTool{}, s, newMemJournal(), WithKinds(testKinds)).VerifyAll(ctx, listDirs(t, s), nil)
		if len(results) != 1 || results[0].Status != StatusError || !errors.Is(results[0].Err, context.Canceled) {
			t.Errorf("results = %+v", results)
		}
	})
}

func TestParseChainMode(t *testing.T) {
	if m, err := ParseChainMode("chain"); err != nil || m != ChainRolling {
		t.Errorf("chain: %v %v", m, err)
	}
	if m, err := ParseChainMode("global"); err != nil || m != ChainGlobal {
		t.Errorf("global: %v %v", m, err)
	}
	if _, err := ParseChainMode("tree"); err == nil {
		t.Error("expected error")
	}
}
