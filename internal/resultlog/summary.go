package resultlog

import (
	"fmt"
	"sort"

	"ceremony/internal/format"
	"ceremony/internal/verify"
)

// Policy decides whether invalid contributions fail the process.
type Policy string

const (
	// PolicyErrors exits non-zero only when the pipeline itself malfunctioned.
	PolicyErrors Policy = "errors"
	// PolicyStrict also exits non-zero on failed verification or failed downloads.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a configured exit policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyErrors, PolicyStrict:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown exit policy %q (want %q or %q)", s, PolicyErrors, PolicyStrict)
}

// Process exit codes.
const (
	ExitOK          = 0
	ExitMalfunction = 1
	ExitInvalid     = 2
)

// Summary rolls up one run.
type Summary struct {
	Results    []verify.Result // ascending contribution number
	Verified   int
	Failed     int
	Errored    int
	SyncFailed int
	Gaps       []int
}

// Summarize counts results by status. syncFailed is the number of objects
// that could not be downloaded; gaps lists missing contribution numbers.
func Summarize(results []verify.Result, syncFailed int, gaps []int) *Summary {
	s := &Summary{
		Results:    append([]verify.Result(nil), results...),
		SyncFailed: syncFailed,
		Gaps:       append([]int(nil), gaps...),
	}
	sort.SliceStable(s.Results, func(i, j int) bool {
		return s.Results[i].Number < s.Results[j].Number
	})
	for _, r := range s.Results {
		switch r.Status {
		case verify.StatusVerified:
			s.Verified++
		case verify.StatusFailed:
			s.Failed++
		default:
			s.Errored++
		}
	}
	return s
}

// Total is the number of contributions judged or attempted.
func (s *Summary) Total() int { return len(s.Results) }

// Errors returns the internal errors of errored results.
func (s *Summary) Errors() []error {
	var out []error
	for _, r := range s.Results {
		if r.Status == verify.StatusError && r.Err != nil {
			out = append(out, r.Err)
		}
	}
	return out
}

// ExitCode maps the summary to a process exit status under policy.
func (s *Summary) ExitCode(policy Policy) int {
	if s.Errored > 0 {
		return ExitMalfunction
	}
	if policy == PolicyStrict && (s.Failed > 0 || s.SyncFailed > 0) {
		return ExitInvalid
	}
	return ExitOK
}

// Table renders one row per contribution.
func (s *Summary) Table(mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Header("#", "Contributor", "Anchor", "Status", "Kind", "Detail", "Checked", "Duration")
	for _, r := range s.Results {
		anchor := "-"
		if r.Anchor != nil {
			anchor = r.Anchor.String()
		}
		detail := string(r.Failure)
		if r.Status == verify.StatusError && r.Err != nil {
			detail = format.Truncate(r.Err.Error(), 60)
		}
		tb.Row(
			fmt.Sprintf("%04d", r.Number),
			r.Contributor,
			anchor,
			format.Status(r.Status == verify.StatusVerified, string(r.Status)),
			r.FailedKind,
			detail,
			fmt.Sprintf("%d/%d", r.Invocations(), len(r.Artifacts)),
			format.Duration(r.Duration),
		)
	}
	tb.Columns(format.Column{Number: 7, Align: format.AlignRight}, format.Column{Number: 8, Align: format.AlignRight})
	return tb.String()
}

// String is the one-line verdict printed at the end of a run.
func (s *Summary) String() string {
	line := fmt.Sprintf("%d verified, %d failed, %d errored", s.Verified, s.Failed, s.Errored)
	if s.SyncFailed > 0 {
		line += fmt.Sprintf(", %d downloads failed", s.SyncFailed)
	}
	if len(s.Gaps) > 0 {
		line += fmt.Sprintf(", missing contributions %v", s.Gaps)
	}
	return line
}
