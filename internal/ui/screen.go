package ui

import (
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/page"
	"github.com/abelbrown/sharkbox/internal/store"
)

// screen is one level of the navigation stack.
type screen interface {
	Title() string
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View(width, height int) string
	Resize(width, height int) tea.Cmd

	// Status is the left side of the status bar.
	Status() string
	Hints() []string
	Busy() bool
	Err() error

	// Capturing screens receive every key, including quit and back.
	Capturing() bool
	Close()
}

// push opens s on top of the current screen.
func push(s screen) tea.Cmd {
	return func() tea.Msg { return pushScreen{screen: s} }
}

// flipSort reverses the direction of every sort entry.
func flipSort(sort []string) []string {
	out := make([]string, len(sort))
	for i, s := range sort {
		field, dir, _ := strings.Cut(s, ",")
		if dir == "desc" {
			out[i] = page.Asc(field)
		} else {
			out[i] = page.Desc(field)
		}
	}
	return out
}

// sortLabel is a short description of the primary sort ("createdAt desc").
func sortLabel(sort []string) string {
	if len(sort) == 0 {
		return ""
	}
	return strings.ReplaceAll(sort[0], ",", " ")
}

func loadMarks(env *Env, kind store.Kind, key string, ids []string) tea.Cmd {
	if env.marks == nil || len(ids) == 0 {
		return nil
	}
	marks := env.marks
	ids = slices.Clone(ids)
	return func() tea.Msg {
		m, err := marks.Marks(kind, ids)
		return MarksLoaded{Key: key, Marks: m, Err: err}
	}
}

func markRead(env *Env, t model.Thread) tea.Cmd {
	if env.marks == nil || t.ID == 0 {
		return nil
	}
	marks := env.marks
	return func() tea.Msg {
		id := t.ItemID()
		if err := marks.MarkRead(store.KindThread, id, t.Title, t.BoxSlug(), t.CommentCount); err != nil {
			return MarkChanged{Err: err}
		}
		m, _, err := marks.Get(store.KindThread, id)
		return MarkChanged{Mark: m, Err: err}
	}
}

// toggleSaved flips the bookmark on a record whose current state is saved.
func toggleSaved(env *Env, kind store.Kind, id, title, box string, saved bool) tea.Cmd {
	if env.marks == nil || id == "" {
		return nil
	}
	marks := env.marks
	return func() tea.Msg {
		if err := marks.MarkSaved(kind, id, title, box, !saved); err != nil {
			return MarkChanged{Err: err}
		}
		m, _, err := marks.Get(kind, id)
		return MarkChanged{Mark: m, Err: err}
	}
}

func threadIDs(ts []model.Thread) []string {
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		if id := t.ItemID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }

// scoreText renders a score colored by the user's own vote.
func scoreText(score int, vote *bool) string {
	s := format.Score(score)
	switch {
	case vote == nil:
		return MetaItem.Render(s)
	case *vote:
		return ScoreUp.Render(s)
	default:
		return ScoreDown.Render(s)
	}
}
