package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/auth"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/otel"
	"github.com/abelbrown/sharkbox/internal/store"
)

// Config wires the App to the rest of the program.
type Config struct {
	Context context.Context
	Client  *api.Client
	Marks   *store.Store // optional

	// Session reports the current sign-in, nil when anonymous.
	Session func() *auth.Session
	Events  *otel.Logger
	Ring    *otel.RingBuffer

	PageSize  int
	Lookahead int
	Theme     string

	Start Start
}

// Start picks the screen opened on launch. Home is always underneath.
type Start struct {
	Box       string
	User      string
	ThreadID  int64
	CommentID int64
	Saved     bool
}

// App is the root Bubble Tea model: a stack of screens with a title bar on
// top and a status bar below.
type App struct {
	env     *Env
	ring    *otel.RingBuffer
	stack   []screen
	spinner spinner.Model
	user    string

	width        int
	height       int
	ready        bool
	debugVisible bool
}

// NewApp builds the screen stack for cfg.Start.
func NewApp(cfg Config) App {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	lookahead := cfg.Lookahead
	if lookahead <= 0 {
		lookahead = feed.DefaultLookahead
	}
	env := &Env{
		ctx:       ctx,
		client:    cfg.Client,
		marks:     cfg.Marks,
		session:   cfg.Session,
		events:    cfg.Events,
		pageSize:  pageSize,
		lookahead: lookahead,
		markdown:  newMarkdown(cfg.Theme),
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	a := App{env: env, ring: cfg.Ring, spinner: s}
	if sess := env.Session(); sess != nil {
		a.user = sess.Claims.Username()
	}

	a.stack = []screen{newHomeScreen(env)}
	st := cfg.Start
	switch {
	case st.ThreadID != 0:
		a.stack = append(a.stack, newThreadScreen(env, st.ThreadID, st.CommentID))
	case st.Box != "":
		a.stack = append(a.stack, newBoxScreen(env, st.Box, ""))
	case st.User != "":
		a.stack = append(a.stack, newUserScreen(env, st.User))
	case st.Saved:
		a.stack = append(a.stack, newSavedScreen(env))
	}
	return a
}

// Init starts the spinner and the bottom and top screens. Screens in between
// do not exist at launch.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick}
	for _, s := range a.stack {
		cmds = append(cmds, s.Init())
	}
	return tea.Batch(cmds...)
}

func (a App) top() screen { return a.stack[len(a.stack)-1] }

// Update routes keys to the top screen and every other message to all
// screens, so screens underneath see votes and marks made above them.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.ready = true
		cmds := make([]tea.Cmd, 0, len(a.stack))
		for _, s := range a.stack {
			cmds = append(cmds, s.Resize(a.width, a.contentHeight()))
		}
		return a, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.env.spin = a.spinner.View()
		return a, cmd

	case pushScreen:
		return a.push(msg.screen)

	case SessionChanged:
		a.user = msg.Username
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	cmds := make([]tea.Cmd, 0, len(a.stack))
	for _, s := range a.stack {
		cmds = append(cmds, s.Update(msg))
	}
	return a, tea.Batch(cmds...)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a.quit()
	}
	if a.top().Capturing() {
		return a, a.top().Update(msg)
	}

	switch key {
	case "q":
		return a.quit()
	case "?":
		a.debugVisible = !a.debugVisible
		return a, nil
	case "esc", "backspace":
		if a.debugVisible {
			a.debugVisible = false
			return a, nil
		}
		return a.pop()
	case "S":
		if _, ok := a.top().(*savedScreen); !ok {
			return a.push(newSavedScreen(a.env))
		}
		return a, nil
	}
	if a.debugVisible {
		return a, nil
	}
	return a, a.top().Update(msg)
}

func (a App) push(s screen) (tea.Model, tea.Cmd) {
	a.stack = append(a.stack, s)
	a.navigated("push")
	var resize tea.Cmd
	if a.ready {
		resize = s.Resize(a.width, a.contentHeight())
	}
	return a, tea.Batch(s.Init(), resize)
}

func (a App) pop() (tea.Model, tea.Cmd) {
	if len(a.stack) == 1 {
		return a, nil
	}
	a.top().Close()
	a.stack = a.stack[:len(a.stack)-1]
	a.navigated("pop")
	return a, nil
}

func (a App) quit() (tea.Model, tea.Cmd) {
	for _, s := range a.stack {
		s.Close()
	}
	return a, tea.Quit
}

func (a App) navigated(how string) {
	if a.env.events == nil {
		return
	}
	a.env.events.Emit(otel.Event{
		Level: otel.LevelDebug,
		Kind:  otel.KindNavigate,
		Comp:  "ui",
		Msg:   how + " " + a.top().Title(),
		Count: len(a.stack),
	})
}

// contentHeight is the room left between the title and status bars.
func (a App) contentHeight() int {
	return max(a.height-2, 1)
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debugVisible {
		overlay := debugOverlay(a.ring, a.env.events.Dropped(), a.width, a.height-1)
		if overlay == "" {
			overlay = HelpStyle.Render("no event ring attached")
		}
		body := lipgloss.NewStyle().Height(a.height - 1).MaxHeight(a.height - 1).Render(overlay)
		return body + "\n" + debugStatusBar(a.width)
	}

	top := a.top()
	h := a.contentHeight()

	// The error bar takes the last content line.
	errorBar := ""
	if err := top.Err(); err != nil {
		errorBar = ErrorStyle.Width(a.width).Render("Error: " + err.Error())
		h--
	}
	content := lipgloss.NewStyle().Height(h).MaxHeight(h).Render(strings.TrimRight(top.View(a.width, h), "\n"))

	sections := []string{a.titleBar(), content}
	if errorBar != "" {
		sections = append(sections, errorBar)
	}
	left := top.Status()
	if top.Busy() {
		left = a.spinner.View() + " " + left
	}
	sections = append(sections, RenderStatusBar(left, top.Hints(), a.width))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a App) titleBar() string {
	crumbs := make([]string, len(a.stack))
	for i, s := range a.stack {
		crumbs[i] = s.Title()
	}
	who := "anonymous"
	if a.user != "" {
		who = a.user
	}
	right := MetaItem.Render(who)
	left := "SHARKBOX  " + truncate(strings.Join(crumbs, " > "), max(a.width-lipgloss.Width(right)-14, 10))
	pad := max(a.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return TitleBar.Width(a.width).Render(left + strings.Repeat(" ", pad) + right)
}

// Depth returns the number of open screens.
func (a App) Depth() int { return len(a.stack) }

// Title returns the title of the top screen.
func (a App) Title() string { return a.top().Title() }

// User returns the signed-in username shown in the title bar.
func (a App) User() string { return a.user }
