package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/abelbrown/sharkbox/internal/feed"
)

// styled reports whether w is a terminal that gets colors.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// palette renders list output. The zero value prints plain text.
type palette struct {
	color bool
	title lipgloss.Style
	meta  lipgloss.Style
	score lipgloss.Style
}

func newPalette(color bool) palette {
	return palette{
		color: color,
		title: lipgloss.NewStyle().Bold(true),
		meta:  lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		score: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

func (p palette) Title(s string) string { return p.render(p.title, s) }
func (p palette) Meta(s string) string  { return p.render(p.meta, s) }
func (p palette) Score(s string) string { return p.render(p.score, s) }

func (p palette) render(st lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return st.Render(s)
}

// drain fetches the first page, or every page when all is set.
func drain[T feed.Item](ctx context.Context, f *feed.Feed[T], all bool) ([]T, error) {
	if err := f.FetchMore(ctx); err != nil {
		return nil, err
	}
	for all && f.HasMore() {
		if err := f.FetchMore(ctx); err != nil {
			return f.Items(), err
		}
	}
	return f.Items(), nil
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
