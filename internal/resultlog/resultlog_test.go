package resultlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ceremony/internal/artifact"
	"ceremony/internal/format"
	"ceremony/internal/verify"
)

func fixedDir(t *testing.T) *Dir {
	t.Helper()
	d := NewDir(t.TempDir())
	d.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestJournal_WritesEntry(t *testing.T) {
	d := fixedDir(t)
	rec, err := d.Open(3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if rec.Path() != d.PathFor(3) || !strings.HasSuffix(rec.Path(), "0003.txt") {
		t.Fatalf("path = %s", rec.Path())
	}
	id := artifact.Identity{Number: 3, Contributor: "carol"}
	anchor := artifact.Identity{Number: 2, Contributor: "bob"}
	if err := rec.Header(id, verify.ChainRolling, &anchor); err != nil {
		t.Fatal(err)
	}
	ok := verify.ArtifactResult{Kind: "inclusion_26_1", Candidate: "c.ph2", Anchor: "a.ph2", OK: true, Invoked: true, Stdout: "fine"}
	bad := verify.ArtifactResult{
		Kind: "inclusion_26_10", Candidate: "c2.ph2", Anchor: "a2.ph2",
		Failure: verify.FailureRejected, Detail: "verifier exited with status 1",
		Invoked: true, ExitCode: 1, Stderr: "bad delta\n",
	}
	if err := rec.Artifact(ok); err != nil {
		t.Fatal(err)
	}
	if err := rec.Artifact(bad); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(verify.Result{Identity: id, Status: verify.StatusFailed, FailedKind: bad.Kind, Failure: bad.Failure}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(rec.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := `Contribution 0003 by carol
Started: 2024-03-01T12:00:00Z
Chain mode: chain
Anchor: 0002_bob

Verification of c.ph2 against a.ph2: Success
Exit code: 0
Output:
fine
Error:

Verification of c2.ph2 against a2.ph2: Failed (rejected)
Reason: verifier exited with status 1
Exit code: 1
Output:
Error:
bad delta

Result: failed at inclusion_26_10 (rejected)
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestJournal_OpenTruncates(t *testing.T) {
	d := fixedDir(t)
	if err := os.WriteFile(d.PathFor(1), []byte("stale output from an earlier run\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec, err := d.Open(1)
	if err != nil {
		t.Fatal(err)
	}
	_ = rec.Note("anchor contribution 0000 not found")
	_ = rec.Close(verify.Result{Status: verify.StatusFailed, Failure: verify.FailureMissingInput})

	data, _ := os.ReadFile(d.PathFor(1))
	if strings.Contains(string(data), "stale") {
		t.Errorf("old log content survived:\n%s", data)
	}
	if !strings.Contains(string(data), "Result: failed (missing input)") {
		t.Errorf("missing verdict:\n%s", data)
	}
}

func TestJournal_CreatesDir(t *testing.T) {
	d := NewDir(t.TempDir() + "/nested/logs")
	rec, err := d.Open(12)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = rec.Close(verify.Result{Status: verify.StatusError, Err: errors.New("boom")})
	data, _ := os.ReadFile(d.PathFor(12))
	if !strings.Contains(string(data), "Result: error: boom") {
		t.Errorf("log = %q", data)
	}
}

func TestJournal_Prune(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, name := range []string{"0001.txt", "0002.txt", "0007.txt", "12345.txt", "notes.txt", "007.txt"} {
		if err := os.WriteFile(filepath.Join(d.Path(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := d.Prune([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	want := []string{d.PathFor(7), d.PathFor(12345)}
	if diff := cmp.Diff(want, removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	for _, name := range []string{"0001.txt", "0002.txt", "notes.txt", "007.txt"} {
		if _, err := os.Stat(filepath.Join(d.Path(), name)); err != nil {
			t.Errorf("%s should survive: %v", name, err)
		}
	}
}

func TestJournal_PruneMissingDir(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "absent"))
	if removed, err := d.Prune(nil); err != nil || removed != nil {
		t.Errorf("Prune = %v, %v", removed, err)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"errors", "strict"} {
		if p, err := ParsePolicy(s); err != nil || string(p) != s {
			t.Errorf("ParsePolicy(%q) = %q, %v", s, p, err)
		}
	}
	if _, err := ParsePolicy("lenient"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func result(n int, st verify.Status) verify.Result {
	r := verify.Result{Identity: artifact.Identity{Number: n, Contributor: "p"}, Status: st}
	if st == verify.StatusError {
		r.Err = errors.New("log dir not writable")
	}
	return r
}

func TestSummary_ExitCode(t *testing.T) {
	tests := []struct {
		name       string
		results    []verify.Result
		syncFailed int
		policy     Policy
		want       int
	}{
		{"all verified", []verify.Result{result(1, verify.StatusVerified)}, 0, PolicyStrict, ExitOK},
		{"failed lenient", []verify.Result{result(1, verify.StatusFailed)}, 0, PolicyErrors, ExitOK},
		{"failed strict", []verify.Result{result(1, verify.StatusFailed)}, 0, PolicyStrict, ExitInvalid},
		{"download failed lenient", nil, 1, PolicyErrors, ExitOK},
		{"download failed strict", nil, 1, PolicyStrict, ExitInvalid},
		{"internal error", []verify.Result{result(1, verify.StatusFailed), result(2, verify.StatusError)}, 0, PolicyErrors, ExitMalfunction},
		{"internal error wins over strict", []verify.Result{result(2, verify.StatusError)}, 3, PolicyStrict, ExitMalfunction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Summarize(tc.results, tc.syncFailed, nil).ExitCode(tc.policy); got != tc.want {
				t.Errorf("ExitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSummarize_SortsAndCounts(t *testing.T) {
	s := Summarize([]verify.Result{
		result(3, verify.StatusFailed),
		result(1, verify.StatusVerified),
		result(2, verify.StatusError),
	}, 0, []int{4})

	var order []int
	for _, r := range s.Results {
		order = append(order, r.Number)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if s.Verified != 1 || s.Failed != 1 || s.Errored != 1 || s.Total() != 3 {
		t.Errorf("counts: %+v", s)
	}
	if len(s.Errors()) != 1 {
		t.Errorf("Errors() = %v", s.Errors())
	}
	if got := s.String(); got != "1 verified, 1 failed, 1 errored, missing contributions [4]" {
		t.Errorf("String() = %q", got)
	}
	out := s.Table(format.Markdown)
	for _, want := range []string{"0001", "0003", "log dir not writable", "| #"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
