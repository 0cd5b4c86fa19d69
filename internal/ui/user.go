package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/store"
)

// userScreen shows one user's threads or comments, toggled with tab.
type userScreen struct {
	username string
	threads  *threadRows
	comments *pagedList[model.Comment]
	overlay  map[int64]model.Comment
	saved    map[string]bool
	showing  bool // comments tab is active
	started  bool // comments feed has been observed once
	height   int
	notice   string
	err      error
}

func newUserScreen(env *Env, username string) *userScreen {
	tq := feed.Query{Target: api.UserThreadsTarget(username), Sort: api.UserThreadSort}
	cq := feed.Query{Target: api.UserCommentsTarget(username), Sort: api.UserCommentSort}
	threads := newThreadRows(env, tq, api.UserThreadsFeed(env.client, username))
	threads.showBox = true
	return &userScreen{
		username: username,
		threads:  threads,
		comments: newPagedList(env, cq, api.UserCommentsFeed(env.client, username)),
		overlay:  make(map[int64]model.Comment),
		saved:    make(map[string]bool),
	}
}

func (s *userScreen) Title() string {
	if s.showing {
		return s.username + " / comments"
	}
	return s.username + " / threads"
}

func (s *userScreen) Init() tea.Cmd { return s.threads.list.observe(0) }

func (s *userScreen) env() *Env { return s.threads.env }

func (s *userScreen) commentRows() int { return s.comments.feed.Len() }

func (s *userScreen) commentItems() []model.Comment {
	items := s.comments.feed.Items()
	for i, c := range items {
		if o, ok := s.overlay[c.ID]; ok {
			items[i] = o
		}
	}
	return items
}

func (s *userScreen) selectedComment() (model.Comment, bool) {
	items := s.commentItems()
	if s.comments.cursor < 0 || s.comments.cursor >= len(items) {
		return model.Comment{}, false
	}
	return items[s.comments.cursor], true
}

func (s *userScreen) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case PageLoaded:
		if msg.Key == s.comments.key() {
			cmd := s.comments.landed(msg, s.commentRows)
			if msg.Err != nil {
				return cmd
			}
			ids := commentIDs(s.comments.feed.Items())
			return tea.Batch(cmd, loadMarks(s.env(), store.KindComment, s.comments.key(), ids))
		}
	case MarksLoaded:
		if msg.Key == s.comments.key() && msg.Err == nil {
			for _, m := range msg.Marks {
				s.saved[savedKey(m.Kind, m.ID)] = m.Saved
			}
			return nil
		}
	case MarkChanged:
		if msg.Err == nil && msg.Mark.Kind == store.KindComment {
			s.saved[savedKey(msg.Mark.Kind, msg.Mark.ID)] = msg.Mark.Saved
			return nil
		}
	case CommentVoted:
		if msg.Err != nil {
			s.err = msg.Err
		} else if s.comments.feed.Contains(msg.Comment.ItemID()) {
			s.overlay[msg.Comment.ID] = msg.Comment
		}
		return nil
	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	// Thread pages, marks and votes belong to the threads tab.
	return s.threads.update(msg)
}

func (s *userScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	s.err, s.notice = nil, ""
	if msg.String() == "tab" || msg.String() == "t" {
		s.showing = !s.showing
		if s.showing && !s.started {
			s.started = true
			return s.comments.resize(s.height, s.commentRows())
		}
		return nil
	}
	if !s.showing {
		return s.threads.handleKey(msg)
	}

	l := s.comments
	switch msg.String() {
	case "j", "down":
		return l.move(1, s.commentRows())
	case "k", "up":
		return l.move(-1, s.commentRows())
	case "g", "home":
		return l.jump(0, s.commentRows())
	case "G", "end":
		return l.jump(s.commentRows()-1, s.commentRows())
	case "enter":
		if c, ok := s.selectedComment(); ok {
			return push(newThreadScreen(s.env(), c.ThreadID, c.ID))
		}
	case "+", "-":
		if c, ok := s.selectedComment(); ok {
			return s.vote(c, msg.String() == "+")
		}
	case "b":
		if c, ok := s.selectedComment(); ok {
			saved := s.saved[savedKey(store.KindComment, c.ItemID())]
			title := c.ThreadTitle
			if title == "" {
				title = truncate(c.Content, 60)
			}
			return toggleSaved(s.env(), store.KindComment, c.ItemID(), title, idString(c.ThreadID), saved)
		}
	case "s":
		s.overlay = make(map[int64]model.Comment)
		return l.resort(flipSort(l.query.Sort))
	case "R":
		s.overlay = make(map[int64]model.Comment)
		return l.reload()
	}
	return nil
}

func (s *userScreen) vote(c model.Comment, up bool) tea.Cmd {
	env := s.env()
	if env.Session() == nil {
		s.notice = "sign in with `sharkbox login` to vote"
		return nil
	}
	client, ctx := env.client, env.ctx
	return func() tea.Msg {
		got, err := client.VoteComment(ctx, c.ThreadID, c.ID, up)
		if err != nil {
			return CommentVoted{Err: err}
		}
		if got.ID == 0 {
			got = c.WithVote(up)
		}
		return CommentVoted{Comment: got}
	}
}

func (s *userScreen) Resize(width, height int) tea.Cmd {
	s.height = height
	cmds := []tea.Cmd{s.threads.list.resize(height, s.threads.rows())}
	if s.started {
		cmds = append(cmds, s.comments.resize(height, s.commentRows()))
	}
	return tea.Batch(cmds...)
}

func (s *userScreen) View(width, height int) string {
	if !s.showing {
		return s.threads.view(width, height)
	}
	items := s.commentItems()
	now := time.Now()
	lines := make([]string, len(items))
	for i, c := range items {
		saved := s.saved[savedKey(store.KindComment, c.ItemID())]
		lines[i] = row(userCommentLine(c, saved, width-4, now), i == s.comments.cursor, false, width)
	}
	return renderWindow(lines, s.comments.cursor, height, s.comments.feed, s.env().spin)
}

func userCommentLine(c model.Comment, saved bool, width int, now time.Time) string {
	prefix := ""
	if saved {
		prefix = SavedMark.Render("*") + " "
	}
	where := c.ThreadTitle
	if where == "" {
		where = "thread " + idString(c.ThreadID)
	}
	meta := fmt.Sprintf(" %s on %s", format.Age(c.CreatedAt, now), truncate(where, 30))
	if c.ThreadBoxSlug != "" {
		meta += " /" + c.ThreadBoxSlug
	}
	used := len([]rune(meta)) + 8
	return prefix + scoreText(c.Score(), c.UserVote) + " " + truncate(c.Content, max(width-used, 10)) + MetaItem.Render(meta)
}

func (s *userScreen) Status() string {
	notice := s.notice
	if notice == "" {
		notice = s.threads.notice
	}
	if notice != "" {
		return notice
	}
	if s.showing {
		return position(s.comments.cursor, s.commentRows(), s.comments.feed.Total()) + "  " + sortLabel(s.comments.query.Sort)
	}
	return position(s.threads.list.cursor, s.threads.rows(), s.threads.list.feed.Total()) + "  " + sortLabel(s.threads.list.query.Sort)
}

func (s *userScreen) Hints() []string {
	if s.showing {
		return []string{"tab:threads", "enter:open", "+/-:vote", "b:save", "s:sort", "esc:back"}
	}
	return []string{"tab:comments", "enter:open", "+/-:vote", "b:save", "s:sort", "esc:back"}
}

func (s *userScreen) Busy() bool {
	if s.showing {
		return s.comments.feed.IsFetchingMore()
	}
	return s.threads.list.feed.IsFetchingMore()
}

func (s *userScreen) Err() error {
	switch {
	case s.err != nil:
		return s.err
	case s.showing:
		return s.comments.err
	case s.threads.err != nil:
		return s.threads.err
	}
	return s.threads.list.err
}

func (s *userScreen) Capturing() bool { return false }

func (s *userScreen) Close() {
	s.threads.list.close()
	s.comments.close()
}
