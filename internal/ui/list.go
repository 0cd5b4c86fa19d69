package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/auth"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/otel"
	"github.com/abelbrown/sharkbox/internal/store"
)

// Env is shared by every screen.
type Env struct {
	ctx       context.Context
	client    *api.Client
	marks     *store.Store // nil disables read/saved marks
	session   func() *auth.Session
	events    *otel.Logger
	pageSize  int
	lookahead int
	markdown  *markdown

	// spin is the current spinner frame, updated by the App.
	spin string
}

// Session returns the signed-in session or nil.
func (e *Env) Session() *auth.Session {
	if e.session == nil {
		return nil
	}
	return e.session()
}

// pagedList couples one feed with its sentinel and a row cursor.
type pagedList[T feed.Item] struct {
	env      *Env
	feed     *feed.Feed[T]
	sentinel *feed.Sentinel
	query    feed.Query
	fetch    feed.FetchFunc[T]
	cursor   int
	height   int
	err      error
}

func newPagedList[T feed.Item](env *Env, q feed.Query, fetch feed.FetchFunc[T]) *pagedList[T] {
	l := &pagedList[T]{env: env, query: q, fetch: fetch, height: 1}
	l.bind()
	return l
}

func (l *pagedList[T]) bind() {
	l.feed = feed.New(feed.Options[T]{
		Query:    l.query,
		Fetch:    l.fetch,
		PageSize: l.env.pageSize,
		Enabled:  true,
		OnChange: FeedRecorder(l.env.events),
	})
	l.sentinel = l.feed.Sentinel()
	l.cursor = 0
	l.err = nil
}

func (l *pagedList[T]) key() string { return l.feed.Key() }

// observe feeds the sentinel the visibility of the row after the last item
// and returns a fetch when it just came into view.
func (l *pagedList[T]) observe(rows int) tea.Cmd {
	_, last := window(l.cursor, rows, l.height)
	if !l.sentinel.Observe(feed.Visible(last, rows, l.env.lookahead)) {
		return nil
	}
	return l.fetchMore()
}

func (l *pagedList[T]) fetchMore() tea.Cmd {
	f, ctx := l.feed, l.env.ctx
	key := f.Key()
	return func() tea.Msg {
		return PageLoaded{Key: key, Err: f.FetchMore(ctx)}
	}
}

// landed applies a PageLoaded addressed to this list. rows is evaluated
// after the page was appended.
func (l *pagedList[T]) landed(msg PageLoaded, rows func() int) tea.Cmd {
	switch {
	case errors.Is(msg.Err, feed.ErrSuperseded):
		return nil
	case msg.Err != nil:
		l.err = msg.Err
		// Re-arm without observing: the next cursor move retries.
		l.sentinel.Rearm()
		return nil
	}
	l.err = nil
	if l.feed.IsFetchingMore() {
		// Another fetch owns the feed; its own message re-arms.
		return nil
	}
	n := rows()
	l.clamp(n)
	l.sentinel.Rearm()
	return l.observe(n)
}

// resort rebinds the feed to a new sort order, which resets it.
func (l *pagedList[T]) resort(sort []string) tea.Cmd {
	l.query = feed.Query{Target: l.query.Target, Sort: sort}
	l.feed.Activate(l.query, nil, true)
	l.sentinel = l.feed.Sentinel()
	l.cursor = 0
	l.err = nil
	return l.observe(0)
}

// reload drops everything and starts again from page 0.
func (l *pagedList[T]) reload() tea.Cmd {
	l.feed.Close()
	l.bind()
	return l.observe(0)
}

func (l *pagedList[T]) close() { l.feed.Close() }

func (l *pagedList[T]) move(delta, rows int) tea.Cmd {
	l.cursor += delta
	l.clamp(rows)
	return l.observe(rows)
}

func (l *pagedList[T]) jump(to, rows int) tea.Cmd {
	l.cursor = to
	l.clamp(rows)
	return l.observe(rows)
}

func (l *pagedList[T]) clamp(rows int) {
	if l.cursor >= rows {
		l.cursor = rows - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}

func (l *pagedList[T]) resize(height, rows int) tea.Cmd {
	if height < 1 {
		height = 1
	}
	l.height = height
	return l.observe(rows)
}

// window returns the first and last row index on screen when the cursor is
// kept in view. last is -1 for an empty list.
func window(cursor, rows, height int) (offset, last int) {
	if height < 1 {
		height = 1
	}
	if cursor >= height {
		offset = cursor - height + 1
	}
	last = offset + height
	if last > rows {
		last = rows
	}
	return offset, last - 1
}

// renderWindow joins the visible rows and, when there is room, the sentinel
// row describing what lies past the end of the list.
func renderWindow(lines []string, cursor, height int, f interface {
	HasMore() bool
	IsFetchingMore() bool
}, spin string) string {
	if height < 1 {
		height = 1
	}
	offset, last := window(cursor, len(lines), height)
	var b strings.Builder
	shown := 0
	for i := offset; i <= last; i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
		shown++
	}
	if shown < height {
		switch {
		case f.IsFetchingMore():
			b.WriteString(SentinelRow.Render(spin + " loading more..."))
			b.WriteString("\n")
		case f.HasMore():
			b.WriteString(SentinelRow.Render("more below"))
			b.WriteString("\n")
		case len(lines) == 0:
			b.WriteString(HelpStyle.Render("Nothing here yet."))
			b.WriteString("\n")
		default:
			b.WriteString(SentinelRow.Render("end of list"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// truncate shortens s to width runes, marking the cut with "...".
func truncate(s string, width int) string {
	if width <= 3 {
		width = 3
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

// row styles a list line by selection and read state.
func row(text string, selected, read bool, width int) string {
	style := NormalItem
	switch {
	case selected:
		style = SelectedItem
		if read {
			style = style.Foreground(lipgloss.Color("250")).Bold(false)
		}
	case read:
		style = ReadItem
	}
	if selected && width > 0 {
		style = style.Width(width)
	}
	return style.Render(text)
}

// RenderStatusBar renders the bottom bar: position on the left, key hints on
// the right.
func RenderStatusBar(left string, hints []string, width int) string {
	keys := make([]string, 0, len(hints))
	for _, h := range hints {
		k, desc, _ := strings.Cut(h, ":")
		keys = append(keys, StatusBarKey.Render(k)+StatusBarText.Render(":"+desc))
	}
	keyHints := strings.Join(keys, " ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(keyHints) - 2
	if padding < 1 {
		padding = 1
	}
	return StatusBar.Width(width).Render(left + strings.Repeat(" ", padding) + keyHints)
}

// position renders "3/45", using the backend total when it is larger.
func position(cursor, loaded, total int) string {
	if loaded == 0 {
		return "0/0"
	}
	if total < loaded {
		total = loaded
	}
	return fmt.Sprintf("%d/%d", cursor+1, total)
}
