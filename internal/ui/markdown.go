package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdown renders thread bodies, rebuilding its glamour renderer only when
// the wrap width moves noticeably.
type markdown struct {
	theme    string
	width    int
	renderer *glamour.TermRenderer
}

func newMarkdown(theme string) *markdown {
	return &markdown{theme: theme}
}

func (m *markdown) styleOption() glamour.TermRendererOption {
	switch m.theme {
	case "dark", "light", "notty", "ascii":
		return glamour.WithStandardStyle(m.theme)
	default:
		return glamour.WithAutoStyle()
	}
}

// wrapWidth keeps long lines readable on wide terminals.
func wrapWidth(width int) int {
	w := width * 9 / 10
	switch {
	case width < 50:
		w = width - 4
	case w > 120:
		w = 120
	}
	if w < 20 {
		w = 20
	}
	return w
}

// Render returns body as styled terminal text. On renderer errors the raw
// text is returned so the body is never lost.
func (m *markdown) Render(body string, width int) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	w := wrapWidth(width)
	if m.renderer == nil || abs(m.width-w) > 10 {
		r, err := glamour.NewTermRenderer(m.styleOption(), glamour.WithWordWrap(w))
		if err != nil {
			return body
		}
		m.renderer, m.width = r, w
	}
	out, err := m.renderer.Render(body)
	if err != nil {
		return body
	}
	return strings.Trim(out, "\n")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
