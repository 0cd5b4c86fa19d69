package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel: feed, API and auth counters, the
// latest problems and the most recent events. dropped is the event logger's
// drop counter. Returns "" if ring is nil.
func debugOverlay(ring *otel.RingBuffer, dropped uint64, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	now := time.Now()

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Session Stats"))
	lines = append(lines, fmt.Sprintf("  Feeds:      %d fetches, %d pages, %d errors, %d resets, %d discarded",
		stats[otel.KindFeedFetch], stats[otel.KindFeedPage], stats[otel.KindFeedError],
		stats[otel.KindFeedReset], stats[otel.KindFeedDiscard]))
	lines = append(lines, fmt.Sprintf("  Catch-ups:  %d", stats[otel.KindFeedCatchUp]))
	lines = append(lines, fmt.Sprintf("  API:        %d requests, %d errors",
		stats[otel.KindAPIRequest], stats[otel.KindAPIError]))
	lines = append(lines, fmt.Sprintf("  Auth:       %d logins, %d refreshes, %d cleared",
		stats[otel.KindAuthLogin], stats[otel.KindAuthRefresh], stats[otel.KindAuthClear]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events, %d dropped", ring.Len(), ring.Cap(), dropped))
	lines = append(lines, "")

	if problems := ring.Matching("", otel.LevelWarn); len(problems) > 0 {
		lines = append(lines, DebugHeaderStyle.Render("Problems"))
		if len(problems) > 3 {
			problems = problems[len(problems)-3:]
		}
		for _, e := range problems {
			lines = append(lines, debugLine(e, now))
		}
		lines = append(lines, "")
	}

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range ring.Last(20) {
		lines = append(lines, debugLine(e, now))
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	content := strings.Join(lines, "\n")
	return DebugPanel.Width(panelWidth).Render(content)
}

func debugLine(e otel.Event, now time.Time) string {
	line := fmt.Sprintf("  %6s  %-14s", format.Duration(now.Sub(e.Time)), string(e.Kind))
	switch {
	case e.Status != 0:
		line += fmt.Sprintf("  %s %s %d", e.Method, truncate(e.Path, 30), e.Status)
	case e.Key != "":
		line += "  " + truncate(e.Key, 30)
	}
	if e.Dur > 0 {
		line += "  " + format.Duration(e.Dur)
	}
	if e.Msg != "" {
		line += "  " + truncate(e.Msg, 40)
	}
	if e.Err != "" {
		line += "  ERR:" + truncate(e.Err, 30)
	}
	return line
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
