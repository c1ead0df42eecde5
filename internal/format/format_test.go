package format_test

import (
	"strings"
	"testing"
	"time"

	"ceremony/internal/format"
)

func TestASCII_Table(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("#", "Contributor", "Status")
	tb.Row("0001", "alice", "verified")
	tb.Row("0002", "bob", "failed")
	out := tb.String()

	for _, want := range []string{"Contributor", "alice", "failed", "───"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if tb.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tb.Len())
	}
}

func TestMarkdown_TableWithFooter(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Status", "Count")
	tb.Row("verified", 4)
	tb.Row("failed", 1)
	tb.Footer("TOTAL", 5)
	out := tb.String()

	for _, want := range []string{"| Status", "---", "TOTAL", "5"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestColumns_RightAlign(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Name", "Bytes")
	tb.Row("inclusion_26_1", 12345)
	tb.Columns(format.Column{Number: 2, Align: format.AlignRight})
	if out := tb.String(); !strings.Contains(out, "12345") {
		t.Errorf("expected '12345' in output:\n%s", out)
	}
}

func TestParseMode(t *testing.T) {
	if format.ParseMode("md") != format.Markdown || format.ParseMode("markdown") != format.Markdown {
		t.Error("md/markdown should select Markdown")
	}
	if format.ParseMode("") != format.ASCII || format.ParseMode("ascii") != format.ASCII {
		t.Error("default should be ASCII")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{30 * time.Second, "30s"},
		{60 * time.Second, "1m 0s"},
		{5*time.Minute + 15*time.Second, "5m 15s"},
	}
	for _, tc := range tests {
		if got := format.Duration(tc.in); got != tc.want {
			t.Errorf("Duration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBytes(t *testing.T) {
	if got := format.Bytes(82_000_000); got != "82 MB" {
		t.Errorf("Bytes = %q", got)
	}
	if got := format.Bytes(-1); got != "0 B" {
		t.Errorf("Bytes(-1) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"abcdef", 3, "abc"},
	}
	for _, tc := range tests {
		if got := format.Truncate(tc.in, tc.maxLen); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
	}
}

func TestMark(t *testing.T) {
	if format.Mark(true) != "✓" || format.Mark(false) != "✗" {
		t.Error("unexpected marks")
	}
}

func TestStatus(t *testing.T) {
	if got := format.Status(true, "verified"); !strings.Contains(got, "✓ verified") {
		t.Errorf("Status(true) = %q", got)
	}
	if got := format.Status(false, "failed"); !strings.Contains(got, "✗ failed") {
		t.Errorf("Status(false) = %q", got)
	}
}
