package ui

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/store"
)

const savedLimit = 500

var errNoStore = errors.New("bookmarks are unavailable: local store is not open")

// savedScreen lists local bookmarks, newest first. It reads only the store.
type savedScreen struct {
	env    *Env
	marks  []store.Mark
	loaded bool
	cursor int
	height int
	err    error
}

func newSavedScreen(env *Env) *savedScreen { return &savedScreen{env: env, height: 1} }

func (s *savedScreen) Title() string { return "Saved" }

func (s *savedScreen) Init() tea.Cmd { return s.load() }

func (s *savedScreen) load() tea.Cmd {
	marks := s.env.marks
	return func() tea.Msg {
		if marks == nil {
			return SavedLoaded{Err: errNoStore}
		}
		threads, err := marks.Saved(store.KindThread, savedLimit)
		if err != nil {
			return SavedLoaded{Err: err}
		}
		comments, err := marks.Saved(store.KindComment, savedLimit)
		if err != nil {
			return SavedLoaded{Err: err}
		}
		all := append(threads, comments...)
		slices.SortStableFunc(all, func(a, b store.Mark) int { return b.SavedAt.Compare(a.SavedAt) })
		return SavedLoaded{Marks: all}
	}
}

func (s *savedScreen) selected() (store.Mark, bool) {
	if s.cursor < 0 || s.cursor >= len(s.marks) {
		return store.Mark{}, false
	}
	return s.marks[s.cursor], true
}

func (s *savedScreen) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case SavedLoaded:
		s.loaded = true
		s.err = msg.Err
		if msg.Err == nil {
			s.marks = msg.Marks
			s.clamp()
		}
	case MarkChanged:
		if msg.Err == nil && msg.Mark.Kind != store.KindBox {
			// Saved elsewhere, or unsaved here: re-read the list.
			return s.load()
		}
	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return nil
}

func (s *savedScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	s.err = nil
	switch msg.String() {
	case "j", "down":
		s.cursor++
	case "k", "up":
		s.cursor--
	case "g", "home":
		s.cursor = 0
	case "G", "end":
		s.cursor = len(s.marks) - 1
	case "enter":
		if m, ok := s.selected(); ok {
			return s.open(m)
		}
	case "b":
		if m, ok := s.selected(); ok {
			return toggleSaved(s.env, m.Kind, m.ID, m.Title, m.Box, true)
		}
	case "R":
		return s.load()
	}
	s.clamp()
	return nil
}

// open pushes the thread for a saved thread, or the thread scrolled to the
// comment for a saved comment.
func (s *savedScreen) open(m store.Mark) tea.Cmd {
	id, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		s.err = fmt.Errorf("bad saved id %q", m.ID)
		return nil
	}
	switch m.Kind {
	case store.KindThread:
		return push(newThreadScreen(s.env, id, 0))
	case store.KindComment:
		threadID, err := strconv.ParseInt(m.Box, 10, 64)
		if err != nil {
			s.err = fmt.Errorf("saved comment %s has no thread", m.ID)
			return nil
		}
		return push(newThreadScreen(s.env, threadID, id))
	}
	return nil
}

func (s *savedScreen) clamp() {
	if s.cursor >= len(s.marks) {
		s.cursor = len(s.marks) - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

func (s *savedScreen) Resize(width, height int) tea.Cmd {
	s.height = max(height, 1)
	return nil
}

func (s *savedScreen) View(width, height int) string {
	if !s.loaded {
		return HelpStyle.Render(s.env.spin + " loading bookmarks...")
	}
	if len(s.marks) == 0 {
		return HelpStyle.Render("No bookmarks yet. Press b on a thread or comment to save it.")
	}
	now := time.Now()
	lines := make([]string, len(s.marks))
	for i, m := range s.marks {
		lines[i] = row(savedLine(m, width-4, now), i == s.cursor, m.Read && m.Kind == store.KindThread, width)
	}
	offset, last := window(s.cursor, len(lines), height)
	var b strings.Builder
	for i := offset; i <= last; i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
	}
	return b.String()
}

func savedLine(m store.Mark, width int, now time.Time) string {
	kind := "thread "
	where := "/" + m.Box
	if m.Kind == store.KindComment {
		kind = "comment"
		where = "in thread " + m.Box
	}
	meta := fmt.Sprintf(" %s saved %s", where, format.Age(m.SavedAt, now))
	used := len(kind) + len([]rune(meta)) + 4
	return MetaItem.Render(kind) + " " + truncate(m.Title, max(width-used, 10)) + MetaItem.Render(meta)
}

func (s *savedScreen) Status() string {
	if len(s.marks) == 0 {
		return "0 saved"
	}
	return fmt.Sprintf("%d/%d saved", s.cursor+1, len(s.marks))
}

func (s *savedScreen) Hints() []string {
	return []string{"enter:open", "b:unsave", "R:reload", "esc:back"}
}

func (s *savedScreen) Busy() bool { return !s.loaded }
func (s *savedScreen) Err() error { return s.err }
func (s *savedScreen) Capturing() bool { return false }
func (s *savedScreen) Close() {}
