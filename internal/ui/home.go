package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/model"
)

// homeScreen lists boxes.
type homeScreen struct {
	env   *Env
	list  *pagedList[model.Box]
	width int
}

func newHomeScreen(env *Env) *homeScreen {
	q := feed.Query{Target: api.BoxesTarget(), Sort: api.BoxSort}
	return &homeScreen{env: env, list: newPagedList(env, q, api.BoxesFeed(env.client))}
}

func (s *homeScreen) Title() string { return "Boxes" }

func (s *homeScreen) Init() tea.Cmd { return s.list.observe(0) }

func (s *homeScreen) rows() int { return s.list.feed.Len() }

func (s *homeScreen) selected() (model.Box, bool) {
	items := s.list.feed.Items()
	if s.list.cursor < 0 || s.list.cursor >= len(items) {
		return model.Box{}, false
	}
	return items[s.list.cursor], true
}

func (s *homeScreen) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case PageLoaded:
		if msg.Key == s.list.key() {
			return s.list.landed(msg, s.rows)
		}
	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return nil
}

func (s *homeScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "j", "down":
		return s.list.move(1, s.rows())
	case "k", "up":
		return s.list.move(-1, s.rows())
	case "g", "home":
		return s.list.jump(0, s.rows())
	case "G", "end":
		return s.list.jump(s.rows()-1, s.rows())
	case "enter":
		if b, ok := s.selected(); ok {
			return push(newBoxScreen(s.env, b.Slug, b.Name))
		}
	case "s":
		return s.list.resort(flipSort(s.list.query.Sort))
	case "R":
		return s.list.reload()
	}
	return nil
}

func (s *homeScreen) Resize(width, height int) tea.Cmd {
	s.width = width
	return s.list.resize(height, s.rows())
}

func (s *homeScreen) View(width, height int) string {
	items := s.list.feed.Items()
	lines := make([]string, len(items))
	for i, b := range items {
		lines[i] = row(boxLine(b, width-4), i == s.list.cursor, false, width)
	}
	return renderWindow(lines, s.list.cursor, height, s.list.feed, s.env.spin)
}

func boxLine(b model.Box, width int) string {
	var parts []string
	name := b.Name
	if name == "" {
		name = b.Slug
	}
	parts = append(parts, name)
	if b.Access == model.AccessPrivate {
		parts = append(parts, "[private]")
	}
	parts = append(parts, "/"+b.Slug)
	if b.Description != "" {
		parts = append(parts, "- "+b.Description)
	}
	return truncate(strings.Join(parts, " "), width)
}

func (s *homeScreen) Status() string {
	return position(s.list.cursor, s.rows(), s.list.feed.Total()) + "  " + sortLabel(s.list.query.Sort)
}

func (s *homeScreen) Hints() []string {
	return []string{"j/k:nav", "enter:open", "s:sort", "S:saved", "R:reload", "?:debug", "q:quit"}
}

func (s *homeScreen) Busy() bool { return s.list.feed.IsFetchingMore() }
func (s *homeScreen) Err() error { return s.list.err }
func (s *homeScreen) Capturing() bool { return false }
func (s *homeScreen) Close() { s.list.close() }
