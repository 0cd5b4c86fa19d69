package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/otel"
)

func TestDebugOverlayNilRing(t *testing.T) {
	result := debugOverlay(nil, 0, 80, 24)
	if result != "" {
		t.Errorf("debugOverlay(nil) should return empty string, got %q", result)
	}
}

func TestDebugOverlayRendersStats(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	ring.Push(otel.Event{Kind: otel.KindFeedFetch, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindFeedPage, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindFeedFetch, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindFeedError, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindAPIRequest, Time: time.Now()})
	ring.Push(otel.Event{Kind: otel.KindAuthRefresh, Time: time.Now()})

	result := debugOverlay(ring, 0, 120, 40)

	if !strings.Contains(result, "Session Stats") {
		t.Error("overlay should contain 'Session Stats' header")
	}
	if !strings.Contains(result, "2 fetches, 1 pages, 1 errors") {
		t.Errorf("overlay should show feed stats, got:\n%s", result)
	}
	if !strings.Contains(result, "1 requests, 0 errors") {
		t.Errorf("overlay should show api stats, got:\n%s", result)
	}
	if !strings.Contains(result, "0 logins, 1 refreshes") {
		t.Errorf("overlay should show auth stats, got:\n%s", result)
	}
	if !strings.Contains(result, "6 / 64 events, 0 dropped") {
		t.Errorf("overlay should show buffer stats, got:\n%s", result)
	}
}

func TestDebugOverlayRecentEvents(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	ring.Push(otel.Event{Kind: otel.KindFeedPage, Level: otel.LevelInfo, Time: time.Now(), Key: "boxes|name,asc", Msg: "exhausted"})
	ring.Push(otel.Event{Kind: otel.KindAPIError, Level: otel.LevelWarn, Time: time.Now(),
		Method: "GET", Path: "/v1/box", Status: 503, Err: "unavailable"})

	result := debugOverlay(ring, 0, 120, 40)

	if !strings.Contains(result, "Recent Events") {
		t.Error("overlay should contain 'Recent Events' header")
	}
	if !strings.Contains(result, "boxes|name,asc") || !strings.Contains(result, "exhausted") {
		t.Errorf("overlay should show the feed key and message, got:\n%s", result)
	}
	if !strings.Contains(result, "GET /v1/box 503") {
		t.Errorf("overlay should show the request line, got:\n%s", result)
	}
	if !strings.Contains(result, "ERR:unavailable") {
		t.Errorf("overlay should show error, got:\n%s", result)
	}
	if !strings.Contains(result, "Problems") {
		t.Errorf("warnings should be listed under Problems, got:\n%s", result)
	}
}

func TestDebugOverlayTruncation(t *testing.T) {
	ring := otel.NewRingBuffer(64)
	for i := 0; i < 30; i++ {
		ring.Push(otel.Event{Kind: otel.KindFeedFetch, Time: time.Now()})
	}

	// Very small height should still render without panic
	result := debugOverlay(ring, 0, 80, 10)
	if result == "" {
		t.Error("overlay should still render with small height")
	}

	lines := strings.Count(result, "\n")
	// With height=10, maxHeight=6, so at most ~6 content lines (plus border/padding)
	if lines > 20 {
		t.Errorf("overlay should be truncated, got %d lines", lines)
	}
}

func TestDebugToggle(t *testing.T) {
	ring := otel.NewRingBuffer(16)
	app := NewApp(Config{Ring: ring, Theme: "notty"})
	model, _ := app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	app = model.(App)

	if app.debugVisible {
		t.Error("debug should be hidden initially")
	}

	model, _ = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	updated := model.(App)
	if !updated.debugVisible {
		t.Error("? should show debug overlay")
	}

	view := updated.View()
	if !strings.Contains(view, "[DEBUG]") {
		t.Errorf("debug view should contain '[DEBUG]', got:\n%s", view)
	}

	// esc closes the overlay before it pops anything.
	model, _ = updated.Update(tea.KeyMsg{Type: tea.KeyEsc})
	updated = model.(App)
	if updated.debugVisible {
		t.Error("esc should hide debug overlay")
	}
}

func TestDebugOverlayShowsDroppedEvents(t *testing.T) {
	events := otel.NewNullLogger()
	events.Close()
	events.Info(otel.KindNavigate, "ui", "after close")

	app := NewApp(Config{Ring: otel.NewRingBuffer(16), Events: events, Theme: "notty"})
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if view := model.View(); !strings.Contains(view, "1 dropped") {
		t.Errorf("overlay should count dropped events, got:\n%s", view)
	}
}
