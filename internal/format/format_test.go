package format

import (
	"strings"
	"testing"
	"time"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{999, "999"},
		{1000, "1.0K"},
		{1500, "1.5K"},
		{9999, "10.0K"},
		{1000000, "1.0M"},
		{1500000, "1.5M"},
		{2500000, "2.5M"},
		{-1000, "-1000"},
		{-1000000, "-1000000"},
	}
	for _, tt := range tests {
		if got := Number(tt.in); got != tt.want {
			t.Errorf("Number(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelativeTo(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := RelativeTo(now.Add(-2*time.Hour), now); !strings.Contains(got, "hour") || !strings.HasSuffix(got, "ago") {
		t.Errorf("two hours back = %q", got)
	}
	if got := RelativeTo(time.Time{}, now); got != "unknown time" {
		t.Errorf("zero time = %q, want unknown time", got)
	}
}

func TestDate(t *testing.T) {
	d := time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local)

	if got := Date(d, "2006-01-02"); got != "2024-01-15" {
		t.Errorf("Date custom = %q", got)
	}
	if got := Date(d, ""); !strings.Contains(got, "2024") || !strings.Contains(got, "15") {
		t.Errorf("Date default = %q", got)
	}
	if got := Date(time.Time{}, ""); got != "unknown date" {
		t.Errorf("Date zero = %q", got)
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := Age(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("Age(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestScoreAndDuration(t *testing.T) {
	if Score(12) != "+12" || Score(0) != "0" || Score(-3) != "-3" {
		t.Errorf("Score: %q %q %q", Score(12), Score(0), Score(-3))
	}
	if Duration(250*time.Millisecond) != "250ms" || Duration(1500*time.Millisecond) != "1.5s" {
		t.Errorf("Duration: %q %q", Duration(250*time.Millisecond), Duration(1500*time.Millisecond))
	}
}
