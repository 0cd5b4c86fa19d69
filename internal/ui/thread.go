package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/otel"
	"github.com/abelbrown/sharkbox/internal/store"
)

// threadScreen shows a thread's body above its comment tree. Row 0 of the
// cursor is the thread itself; row i > 0 is comment row i-1.
type threadScreen struct {
	env      *Env
	id       int64
	thread   model.Thread
	loaded   bool
	list     *pagedList[model.Comment]
	overlay  map[int64]model.Comment
	collapse map[int64]bool
	saved    map[string]bool // by savedKey
	body     string
	width    int
	height   int

	// focus is a comment to move to once it has been fetched.
	focus   int64
	compose *composer
	notice  string
	err     error
}

func newThreadScreen(env *Env, threadID, commentID int64) *threadScreen {
	q := feed.Query{Target: api.CommentsTarget(threadID), Sort: api.CommentSort}
	return &threadScreen{
		env:      env,
		id:       threadID,
		list:     newPagedList(env, q, api.CommentsFeed(env.client, threadID)),
		overlay:  make(map[int64]model.Comment),
		collapse: make(map[int64]bool),
		saved:    make(map[string]bool),
		focus:    commentID,
	}
}

func (s *threadScreen) Title() string {
	if s.thread.Title != "" {
		return s.thread.Title
	}
	return "Thread " + idString(s.id)
}

func (s *threadScreen) Init() tea.Cmd {
	cmds := []tea.Cmd{s.loadThread(), s.loadSaved()}
	if s.focus != 0 {
		cmds = append(cmds, s.catchUp(s.focus))
	} else {
		cmds = append(cmds, s.list.observe(0))
	}
	return tea.Batch(cmds...)
}

func (s *threadScreen) loadThread() tea.Cmd {
	client, ctx, id := s.env.client, s.env.ctx, s.id
	return func() tea.Msg {
		t, err := client.Thread(ctx, id)
		return ThreadLoaded{ID: id, Thread: t, Err: err}
	}
}

func (s *threadScreen) loadSaved() tea.Cmd {
	return loadMarks(s.env, store.KindThread, s.list.key(), []string{idString(s.id)})
}

// catchUp pages through the comments until id is present.
func (s *threadScreen) catchUp(id int64) tea.Cmd {
	f, ctx, key := s.list.feed, s.env.ctx, s.list.key()
	limit := feed.MaxCatchUp
	events := s.env.events
	return func() tea.Msg {
		done := events.Timed(otel.KindFeedCatchUp, "feed", key)
		found, err := feed.CatchUp(ctx, f, idString(id), limit)
		done(f.Len(), fmt.Sprintf("comment %d found=%t", id, found), err)
		return CaughtUp{Key: key, CommentID: id, Found: found, Err: err}
	}
}

// comments returns the fetched comments with local edits and votes applied.
func (s *threadScreen) comments() []model.Comment {
	items := s.list.feed.Items()
	for i, c := range items {
		if o, ok := s.overlay[c.ID]; ok {
			items[i] = o
		}
	}
	return items
}

func (s *threadScreen) tree() []model.Row {
	return model.Flatten(model.BuildTree(s.comments()), s.collapse)
}

// rows counts cursor positions: the thread plus every visible comment.
func (s *threadScreen) rows() int { return len(s.tree()) + 1 }

func (s *threadScreen) selectedRow() (model.Row, bool) {
	rows := s.tree()
	i := s.list.cursor - 1
	if i < 0 || i >= len(rows) {
		return model.Row{}, false
	}
	return rows[i], true
}

func (s *threadScreen) Update(msg tea.Msg) tea.Cmd {
	if s.compose != nil {
		if k, ok := msg.(tea.KeyMsg); ok {
			return s.updateComposer(k)
		}
	}

	switch msg := msg.(type) {
	case ThreadLoaded:
		if msg.ID != s.id {
			return nil
		}
		if msg.Err != nil {
			s.err = msg.Err
			return nil
		}
		s.thread, s.loaded = msg.Thread, true
		s.renderBody()
		return s.relayout()
	case PageLoaded:
		if msg.Key != s.list.key() {
			return nil
		}
		cmd := s.list.landed(msg, s.rows)
		if msg.Err != nil {
			return cmd
		}
		return tea.Batch(cmd, loadMarks(s.env, store.KindComment, s.list.key(), commentIDs(s.list.feed.Items())))
	case CaughtUp:
		if msg.Key != s.list.key() {
			return nil
		}
		return s.caughtUp(msg)
	case MarksLoaded:
		if msg.Key == s.list.key() && msg.Err == nil {
			for _, m := range msg.Marks {
				s.saved[savedKey(m.Kind, m.ID)] = m.Saved
			}
		}
	case MarkChanged:
		if msg.Err != nil {
			s.err = msg.Err
		} else {
			s.saved[savedKey(msg.Mark.Kind, msg.Mark.ID)] = msg.Mark.Saved
		}
	case ThreadVoted:
		if msg.Err != nil {
			s.err = msg.Err
		} else if msg.Thread.ID == s.id {
			s.thread = msg.Thread
		}
	case CommentVoted:
		if msg.Err != nil {
			s.err = msg.Err
		} else if msg.Comment.ThreadID == s.id || s.list.feed.Contains(msg.Comment.ItemID()) {
			s.overlay[msg.Comment.ID] = msg.Comment
		}
	case CommentSaved:
		return s.commentSaved(msg)
	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return nil
}

func (s *threadScreen) caughtUp(msg CaughtUp) tea.Cmd {
	switch {
	case errors.Is(msg.Err, feed.ErrSuperseded):
		return nil
	case msg.Err != nil:
		s.err = msg.Err
		s.list.sentinel.Rearm()
		return nil
	case !msg.Found:
		s.notice = fmt.Sprintf("comment %d is not in the first %d pages", msg.CommentID, feed.MaxCatchUp)
	default:
		s.revealComment(msg.CommentID)
	}
	s.focus = 0
	s.list.sentinel.Rearm()
	return s.list.observe(s.rows())
}

// revealComment expands collapsed ancestors and moves the cursor to id.
func (s *threadScreen) revealComment(id int64) {
	byID := make(map[int64]model.Comment)
	for _, c := range s.comments() {
		byID[c.ID] = c
	}
	cur := id
	for range len(byID) {
		c, ok := byID[cur]
		if !ok || c.ParentID == nil {
			break
		}
		delete(s.collapse, *c.ParentID)
		cur = *c.ParentID
	}
	if i := model.IndexOf(s.tree(), id); i >= 0 {
		s.list.cursor = i + 1
	}
}

func (s *threadScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	s.err, s.notice = nil, ""
	switch msg.String() {
	case "j", "down":
		return s.list.move(1, s.rows())
	case "k", "up":
		return s.list.move(-1, s.rows())
	case "g", "home":
		return s.list.jump(0, s.rows())
	case "G", "end":
		return s.list.jump(s.rows()-1, s.rows())
	case " ", "space":
		if r, ok := s.selectedRow(); ok && r.Replies > 0 {
			id := r.Comment.ID
			if s.collapse[id] {
				delete(s.collapse, id)
			} else {
				s.collapse[id] = true
			}
			s.list.clamp(s.rows())
			return s.list.observe(s.rows())
		}
	case "+", "-":
		return s.vote(msg.String() == "+")
	case "c":
		return s.openComposer(composeNew, model.Comment{})
	case "r":
		if r, ok := s.selectedRow(); ok {
			return s.openComposer(composeReply, r.Comment)
		}
		return s.openComposer(composeNew, model.Comment{})
	case "e":
		r, ok := s.selectedRow()
		if !ok {
			return nil
		}
		if !s.env.Session().Owns(r.Comment.UserID) {
			s.notice = "you can only edit your own comments"
			return nil
		}
		return s.openComposer(composeEdit, r.Comment)
	case "b":
		if r, ok := s.selectedRow(); ok {
			c := r.Comment
			saved := s.saved[savedKey(store.KindComment, c.ItemID())]
			return toggleSaved(s.env, store.KindComment, c.ItemID(), truncate(c.Content, 60), idString(s.id), saved)
		}
		saved := s.saved[savedKey(store.KindThread, idString(s.id))]
		return toggleSaved(s.env, store.KindThread, idString(s.id), s.thread.Title, s.thread.BoxSlug(), saved)
	case "u":
		if r, ok := s.selectedRow(); ok && r.Comment.Username != "" {
			return push(newUserScreen(s.env, r.Comment.Username))
		}
		if s.thread.Username != "" {
			return push(newUserScreen(s.env, s.thread.Username))
		}
	case "s":
		s.overlay = make(map[int64]model.Comment)
		return s.list.resort(flipSort(s.list.query.Sort))
	case "R":
		s.overlay = make(map[int64]model.Comment)
		return tea.Batch(s.loadThread(), s.list.reload())
	}
	return nil
}

func (s *threadScreen) vote(up bool) tea.Cmd {
	if s.env.Session() == nil {
		s.notice = "sign in with `sharkbox login` to vote"
		return nil
	}
	r, ok := s.selectedRow()
	if !ok {
		if !s.loaded {
			return nil
		}
		return voteThread(s.env, s.thread, up)
	}
	c := r.Comment
	client, ctx := s.env.client, s.env.ctx
	return func() tea.Msg {
		got, err := client.VoteComment(ctx, s.id, c.ID, up)
		if err != nil {
			return CommentVoted{Err: err}
		}
		if got.ID == 0 {
			got = c.WithVote(up)
		}
		return CommentVoted{Comment: got}
	}
}

func (s *threadScreen) openComposer(mode composeMode, target model.Comment) tea.Cmd {
	if s.env.Session() == nil {
		s.notice = "sign in with `sharkbox login` to comment"
		return nil
	}
	s.compose = newComposer(mode, target, s.width)
	return tea.Batch(s.compose.focus(), s.relayout())
}

func (s *threadScreen) updateComposer(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		s.compose = nil
		return s.relayout()
	case "ctrl+s":
		req, err := s.compose.request()
		if err != nil {
			s.compose.err = err
			return nil
		}
		c := s.compose
		s.compose = nil
		return tea.Batch(s.relayout(), s.submit(c, req))
	}
	return s.compose.update(msg)
}

func (s *threadScreen) submit(c *composer, req model.CommentRequest) tea.Cmd {
	client, ctx, id := s.env.client, s.env.ctx, s.id
	if c.mode == composeEdit {
		target := c.target
		return func() tea.Msg {
			got, err := client.UpdateComment(ctx, id, target.ID, req.Content)
			if err == nil && got.ID == 0 {
				got = target
				got.Content = req.Content
				got.UpdatedAt = time.Now()
			}
			return CommentSaved{Comment: got, Edited: true, Err: err}
		}
	}
	return func() tea.Msg {
		got, err := client.CreateComment(ctx, id, req)
		return CommentSaved{Comment: got, Err: err}
	}
}

func (s *threadScreen) commentSaved(msg CommentSaved) tea.Cmd {
	if msg.Err != nil {
		s.err = msg.Err
		if api.NeedsLogin(msg.Err) {
			s.notice = "session expired; sign in again with `sharkbox login`"
		}
		return nil
	}
	if msg.Edited {
		s.overlay[msg.Comment.ID] = msg.Comment
		s.notice = "comment updated"
		return nil
	}
	s.notice = "comment posted"
	s.thread.CommentCount++
	if msg.Comment.ID == 0 {
		return s.list.reload()
	}
	// Rebuild from page 0 and page forward to the new comment.
	s.list.feed.Close()
	s.list.bind()
	s.focus = msg.Comment.ID
	return s.catchUp(msg.Comment.ID)
}

func (s *threadScreen) Resize(width, height int) tea.Cmd {
	s.width, s.height = width, height
	s.renderBody()
	if s.compose != nil {
		s.compose.resize(width)
	}
	return s.relayout()
}

// relayout recomputes the comment list height after the header or the
// composer changed size.
func (s *threadScreen) relayout() tea.Cmd {
	return s.list.resize(s.listHeight(), s.rows())
}

func (s *threadScreen) renderBody() {
	if !s.loaded || s.width == 0 {
		return
	}
	body := s.thread.Content
	if s.thread.Description != "" {
		body = s.thread.Description + "\n\n" + body
	}
	s.body = s.env.markdown.Render(body, s.width)
}

// header is the thread metadata and body, capped at a third of the screen.
func (s *threadScreen) header() string {
	if s.height == 0 || !s.loaded {
		return ""
	}
	maxLines := s.height / 3
	var b strings.Builder
	meta := fmt.Sprintf("%s in /%s  %s  %s comments", s.thread.Username, s.thread.BoxSlug(),
		format.RelativeTime(s.thread.CreatedAt), format.Number(int64(s.thread.CommentCount)))
	b.WriteString(MetaItem.Render(" " + meta))
	b.WriteString("\n")
	if s.body != "" {
		lines := strings.Split(s.body, "\n")
		if len(lines) > maxLines {
			lines = append(lines[:maxLines], MetaItem.Render(" ..."))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *threadScreen) listHeight() int {
	h := s.height - lipgloss.Height(s.header()) - s.previewHeight()
	if s.compose != nil {
		h -= s.compose.height()
	}
	return max(h, 1)
}

func (s *threadScreen) previewHeight() int { return 4 }

func (s *threadScreen) View(width, height int) string {
	var b strings.Builder
	b.WriteString(s.header())

	now := time.Now()
	rows := s.tree()
	lines := make([]string, 0, len(rows)+1)
	threadRow := fmt.Sprintf("%s %s", scoreText(s.thread.Score(), s.thread.UserVote), truncate(s.Title(), width-12))
	if s.saved[savedKey(store.KindThread, idString(s.id))] {
		threadRow = SavedMark.Render("*") + " " + threadRow
	}
	lines = append(lines, row(threadRow, s.list.cursor == 0, false, width))
	for i, r := range rows {
		lines = append(lines, row(commentLine(r, s.saved[savedKey(store.KindComment, r.Comment.ItemID())], width-4, now), s.list.cursor == i+1, false, width))
	}
	b.WriteString(renderWindow(lines, s.list.cursor, s.list.height, s.list.feed, s.env.spin))

	if r, ok := s.selectedRow(); ok {
		b.WriteString(PreviewStyle.Width(width).Render(clipLines(r.Comment.Content, s.previewHeight()-1, width-2)))
		b.WriteString("\n")
	}
	if s.compose != nil {
		b.WriteString(s.compose.view(width))
	}
	return b.String()
}

func savedKey(kind store.Kind, id string) string { return string(kind) + ":" + id }

func commentIDs(cs []model.Comment) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		if id := c.ItemID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func commentLine(r model.Row, saved bool, width int, now time.Time) string {
	c := r.Comment
	indent := strings.Repeat("  ", min(r.Depth, 8))
	var b strings.Builder
	b.WriteString(indent)
	if saved {
		b.WriteString(SavedMark.Render("*") + " ")
	}
	if r.Collapsed {
		b.WriteString(MetaItem.Render(fmt.Sprintf("[+%d] ", r.Replies)))
	}
	b.WriteString(scoreText(c.Score(), c.UserVote))
	meta := " " + c.Username + " " + format.Age(c.CreatedAt, now)
	if c.Edited() {
		meta += " (edited)"
	}
	b.WriteString(MetaItem.Render(meta))
	b.WriteString(" ")
	used := len([]rune(indent)) + len([]rune(meta)) + 8
	b.WriteString(truncate(c.Content, max(width-used, 10)))
	return b.String()
}

// clipLines wraps text to width and keeps at most n lines.
func clipLines(text string, n, width int) string {
	wrapped := lipgloss.NewStyle().Width(max(width, 10)).Render(text)
	lines := strings.Split(wrapped, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func (s *threadScreen) Status() string {
	if s.notice != "" {
		return s.notice
	}
	total := s.list.feed.Total()
	if s.loaded && s.thread.CommentCount > total {
		total = s.thread.CommentCount
	}
	return fmt.Sprintf("%s comments  %s", strconv.Itoa(total), sortLabel(s.list.query.Sort))
}

func (s *threadScreen) Hints() []string {
	if s.compose != nil {
		return []string{"ctrl+s:send", "esc:cancel"}
	}
	return []string{"+/-:vote", "c:comment", "r:reply", "e:edit", "space:fold", "b:save", "esc:back"}
}

func (s *threadScreen) Busy() bool { return s.list.feed.IsFetchingMore() || !s.loaded }

func (s *threadScreen) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.list.err
}

func (s *threadScreen) Capturing() bool { return s.compose != nil }
func (s *threadScreen) Close() { s.list.close() }
