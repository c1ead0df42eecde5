package format

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// Duration formats d as "Xm Ys" or "Ys"; sub-second values keep milliseconds.
func Duration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Bytes formats a byte count in SI units, e.g. "82 MB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Truncate shortens s to maxLen bytes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// Mark returns "✓" for true and "✗" for false.
func Mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// Status prefixes s with Mark(ok) and colours it green or red. Colour is
// dropped when stdout is not a terminal.
func Status(ok bool, s string) string {
	text := Mark(ok) + " " + s
	if ok {
		return okStyle.Render(text)
	}
	return failStyle.Render(text)
}
