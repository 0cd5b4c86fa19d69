package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/store"
)

// threadRows is the thread list shared by the box and user screens: the feed
// plus local vote results and read/saved marks layered on top.
type threadRows struct {
	env       *Env
	list      *pagedList[model.Thread]
	overrides map[int64]model.Thread
	marks     map[string]store.Mark
	notice    string
	err       error
	showBox   bool
}

func newThreadRows(env *Env, q feed.Query, fetch feed.FetchFunc[model.Thread]) *threadRows {
	return &threadRows{
		env:       env,
		list:      newPagedList(env, q, fetch),
		overrides: make(map[int64]model.Thread),
		marks:     make(map[string]store.Mark),
	}
}

func (r *threadRows) items() []model.Thread {
	items := r.list.feed.Items()
	for i, t := range items {
		if o, ok := r.overrides[t.ID]; ok {
			items[i] = o
		}
	}
	return items
}

func (r *threadRows) rows() int { return r.list.feed.Len() }

func (r *threadRows) selected() (model.Thread, bool) {
	items := r.items()
	if r.list.cursor < 0 || r.list.cursor >= len(items) {
		return model.Thread{}, false
	}
	return items[r.list.cursor], true
}

func (r *threadRows) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case PageLoaded:
		if msg.Key != r.list.key() {
			return nil
		}
		cmd := r.list.landed(msg, r.rows)
		if msg.Err != nil {
			return cmd
		}
		return tea.Batch(cmd, loadMarks(r.env, store.KindThread, r.list.key(), threadIDs(r.list.feed.Items())))
	case MarksLoaded:
		if msg.Key == r.list.key() && msg.Err == nil {
			for id, m := range msg.Marks {
				r.marks[id] = m
			}
		}
	case MarkChanged:
		if msg.Err != nil {
			r.err = msg.Err
		} else if msg.Mark.Kind == store.KindThread {
			r.marks[msg.Mark.ID] = msg.Mark
		}
	case ThreadVoted:
		if msg.Err != nil {
			r.err = msg.Err
		} else if msg.Thread.ID != 0 {
			r.overrides[msg.Thread.ID] = msg.Thread
		}
	case tea.KeyMsg:
		return r.handleKey(msg)
	}
	return nil
}

func (r *threadRows) handleKey(msg tea.KeyMsg) tea.Cmd {
	r.err, r.notice = nil, ""
	switch msg.String() {
	case "j", "down":
		return r.list.move(1, r.rows())
	case "k", "up":
		return r.list.move(-1, r.rows())
	case "g", "home":
		return r.list.jump(0, r.rows())
	case "G", "end":
		return r.list.jump(r.rows()-1, r.rows())
	case "enter":
		if t, ok := r.selected(); ok {
			return tea.Batch(push(newThreadScreen(r.env, t.ID, 0)), markRead(r.env, t))
		}
	case "+", "-":
		if t, ok := r.selected(); ok {
			return r.vote(t, msg.String() == "+")
		}
	case "b":
		if t, ok := r.selected(); ok {
			saved := r.marks[t.ItemID()].Saved
			return toggleSaved(r.env, store.KindThread, t.ItemID(), t.Title, t.BoxSlug(), saved)
		}
	case "u":
		if t, ok := r.selected(); ok && t.Username != "" {
			return push(newUserScreen(r.env, t.Username))
		}
	case "s":
		r.overrides = make(map[int64]model.Thread)
		return r.list.resort(flipSort(r.list.query.Sort))
	case "R":
		r.overrides = make(map[int64]model.Thread)
		return r.list.reload()
	}
	return nil
}

func (r *threadRows) vote(t model.Thread, up bool) tea.Cmd {
	if r.env.Session() == nil {
		r.notice = "sign in with `sharkbox login` to vote"
		return nil
	}
	return voteThread(r.env, t, up)
}

func voteThread(env *Env, t model.Thread, up bool) tea.Cmd {
	client, ctx := env.client, env.ctx
	return func() tea.Msg {
		got, err := client.VoteThread(ctx, t.ID, up)
		if err != nil {
			return ThreadVoted{Err: err}
		}
		if got.ID == 0 {
			got = t.WithVote(up)
		}
		return ThreadVoted{Thread: got}
	}
}

func (r *threadRows) view(width, height int) string {
	items := r.items()
	now := time.Now()
	lines := make([]string, len(items))
	for i, t := range items {
		m := r.marks[t.ItemID()]
		lines[i] = row(threadLine(t, m, r.showBox, width-4, now), i == r.list.cursor, m.Read, width)
	}
	return renderWindow(lines, r.list.cursor, height, r.list.feed, r.env.spin)
}

func threadLine(t model.Thread, m store.Mark, showBox bool, width int, now time.Time) string {
	var b strings.Builder
	if m.Saved {
		b.WriteString(SavedMark.Render("*") + " ")
	}
	b.WriteString(scoreText(t.Score(), t.UserVote))
	b.WriteString(" ")
	if showBox && t.BoxSlug() != "" {
		b.WriteString(BoxBadge.Render(t.BoxSlug()))
	}

	meta := fmt.Sprintf(" %s %s %s comments", t.Username, format.Age(t.CreatedAt, now), format.Number(int64(t.CommentCount)))
	if n := m.NewComments(t.CommentCount); n > 0 {
		meta += NewBadge.Render(fmt.Sprintf(" +%d new", n))
	}
	if t.Type == model.ThreadLink {
		meta = " [link]" + meta
	}
	titleWidth := width - len([]rune(meta)) - 8
	b.WriteString(truncate(t.Title, max(titleWidth, 10)))
	b.WriteString(MetaItem.Render(meta))
	return b.String()
}

// boxScreen lists one box's threads.
type boxScreen struct {
	*threadRows
	slug string
	name string
}

func newBoxScreen(env *Env, slug, name string) *boxScreen {
	q := feed.Query{Target: api.ThreadsTarget(slug), Sort: api.ThreadSort}
	return &boxScreen{
		threadRows: newThreadRows(env, q, api.ThreadsFeed(env.client, slug)),
		slug:       slug,
		name:       name,
	}
}

func (s *boxScreen) Title() string {
	if s.name != "" {
		return s.name + " /" + s.slug
	}
	return "/" + s.slug
}

func (s *boxScreen) Init() tea.Cmd { return s.list.observe(0) }
func (s *boxScreen) Update(msg tea.Msg) tea.Cmd { return s.update(msg) }
func (s *boxScreen) View(width, height int) string { return s.view(width, height) }
func (s *boxScreen) Resize(width, height int) tea.Cmd { return s.list.resize(height, s.rows()) }

func (s *boxScreen) Status() string {
	if s.notice != "" {
		return s.notice
	}
	return position(s.list.cursor, s.rows(), s.list.feed.Total()) + "  " + sortLabel(s.list.query.Sort)
}

func (s *boxScreen) Hints() []string {
	return []string{"enter:open", "+/-:vote", "b:save", "u:author", "s:sort", "esc:back"}
}

func (s *boxScreen) Busy() bool { return s.list.feed.IsFetchingMore() }

func (s *boxScreen) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.list.err
}

func (s *boxScreen) Capturing() bool { return false }
func (s *boxScreen) Close() { s.list.close() }
