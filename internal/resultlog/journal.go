// Package resultlog writes the durable per-contribution verification logs
// and rolls task results up into a process exit status.
package resultlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ceremony/internal/artifact"
	"ceremony/internal/verify"
)

// DefaultDir is the default log directory, relative to cwd.
const DefaultDir = "verify_logs"

// Dir is a verify.Journal writing one text file per contribution number.
type Dir struct {
	path string
	now  func() time.Time
}

// NewDir returns a journal writing under path. The directory is created on
// first use.
func NewDir(path string) *Dir {
	return &Dir{path: path, now: time.Now}
}

// Path returns the log directory.
func (d *Dir) Path() string { return d.path }

// PathFor returns the log file of a contribution number.
func (d *Dir) PathFor(number int) string {
	return filepath.Join(d.path, fmt.Sprintf("%04d.txt", number))
}

// Prune removes the logs of contribution numbers not in keep and returns
// the removed paths. Files not named like a contribution log are left alone.
func (d *Dir) Prune(keep []int) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	wanted := make(map[int]bool, len(keep))
	for _, n := range keep {
		wanted[n] = true
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := logNumber(e.Name())
		if !ok || wanted[n] {
			continue
		}
		path := filepath.Join(d.path, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove stale log: %w", err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// logNumber parses a log file name as written by PathFor.
func logNumber(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, ".txt")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 || fmt.Sprintf("%04d", n) != base {
		return 0, false
	}
	return n, true
}

// Open truncates the contribution's log and returns it for appending.
func (d *Dir) Open(number int) (verify.Record, error) {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := d.PathFor(number)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return &fileRecord{f: f, path: path, now: d.now}, nil
}

type fileRecord struct {
	f    *os.File
	path string
	now  func() time.Time
}

func (r *fileRecord) Path() string { return r.path }

func (r *fileRecord) write(s string) error {
	_, err := r.f.WriteString(s)
	return err
}

func (r *fileRecord) Header(id artifact.Identity, mode verify.ChainMode, anchor *artifact.Identity) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Contribution %04d by %s\n", id.Number, id.Contributor)
	fmt.Fprintf(&b, "Started: %s\n", r.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Chain mode: %s\n", mode)
	if anchor != nil {
		fmt.Fprintf(&b, "Anchor: %s\n", anchor)
	} else {
		b.WriteString("Anchor: unresolved\n")
	}
	b.WriteString("\n")
	return r.write(b.String())
}

func (r *fileRecord) Artifact(a verify.ArtifactResult) error {
	var b strings.Builder
	verdict := "Success"
	if !a.OK {
		verdict = "Failed (" + string(a.Failure) + ")"
	}
	fmt.Fprintf(&b, "Verification of %s", a.Candidate)
	if a.Anchor != "" {
		fmt.Fprintf(&b, " against %s", a.Anchor)
	}
	fmt.Fprintf(&b, ": %s\n", verdict)
	if a.Detail != "" {
		fmt.Fprintf(&b, "Reason: %s\n", a.Detail)
	}
	if a.Invoked {
		fmt.Fprintf(&b, "Exit code: %d\n", a.ExitCode)
		fmt.Fprintf(&b, "Output:\n%s", ensureNewline(a.Stdout))
		fmt.Fprintf(&b, "Error:\n%s", ensureNewline(a.Stderr))
	}
	b.WriteString("\n")
	return r.write(b.String())
}

func (r *fileRecord) Note(msg string) error {
	return r.write("Note: " + strings.TrimSpace(msg) + "\n\n")
}

// Close writes the final verdict, syncs and closes the file.
func (r *fileRecord) Close(res verify.Result) error {
	line := "Result: " + string(res.Status)
	switch res.Status {
	case verify.StatusFailed:
		if res.FailedKind != "" {
			line += fmt.Sprintf(" at %s (%s)", res.FailedKind, res.Failure)
		} else {
			line += fmt.Sprintf(" (%s)", res.Failure)
		}
	case verify.StatusError:
		if res.Err != nil {
			line += ": " + res.Err.Error()
		}
	}
	werr := r.write(line + "\n")
	serr := r.f.Sync()
	cerr := r.f.Close()
	for _, err := range []error{werr, serr, cerr} {
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
