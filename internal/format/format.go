// Package format renders times and counts for list rows and detail views.
package format

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultDateLayout is used by Date when layout is empty.
const DefaultDateLayout = "Jan 2, 2006, 3:04 PM"

// RelativeTime renders t relative to now ("3 hours ago").
func RelativeTime(t time.Time) string {
	return RelativeTo(t, time.Now())
}

// RelativeTo renders t relative to now. A zero time is "unknown time".
func RelativeTo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Date renders t with layout (DefaultDateLayout when empty) in local time.
// A zero time is "unknown date".
func Date(t time.Time, layout string) string {
	if t.IsZero() {
		return "unknown date"
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	return t.Local().Format(layout)
}

// Number abbreviates large counts: 999, 1.0K, 1.5M. Negative values are
// printed as they are.
func Number(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Age is the compact form used in dense list rows.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "?"
	}
	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

// Duration renders short latencies for the debug overlay.
func Duration(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// Score renders a vote total with an explicit sign for positive values.
func Score(n int) string {
	if n > 0 {
		return "+" + Number(int64(n))
	}
	return Number(int64(n))
}
