package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/sharkbox/internal/model"
)

type composeMode int

const (
	composeNew composeMode = iota
	composeReply
	composeEdit
)

const composerLines = 5

// composer edits one comment below the thread.
type composer struct {
	mode   composeMode
	target model.Comment
	input  textarea.Model
	err    error
}

func newComposer(mode composeMode, target model.Comment, width int) *composer {
	ta := textarea.New()
	ta.ShowLineNumbers = false
	// Only key presses reach the composer, so a blinking cursor would freeze.
	ta.Cursor.SetMode(cursor.CursorStatic)
	ta.CharLimit = 10000
	ta.SetHeight(composerLines)
	ta.SetWidth(max(width-4, 20))
	switch mode {
	case composeReply:
		ta.Placeholder = "Reply to " + target.Username + "..."
	case composeEdit:
		ta.SetValue(target.Content)
	default:
		ta.Placeholder = "Write a comment..."
	}
	return &composer{mode: mode, target: target, input: ta}
}

func (c *composer) focus() tea.Cmd { return c.input.Focus() }

func (c *composer) update(msg tea.KeyMsg) tea.Cmd {
	c.err = nil
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return cmd
}

// request builds the payload to send. Edits carry only the new content.
func (c *composer) request() (model.CommentRequest, error) {
	req := model.CommentRequest{Content: strings.TrimSpace(c.input.Value())}
	if c.mode == composeReply && c.target.ID != 0 {
		parent := c.target.ID
		req.ParentID = &parent
	}
	return req, model.Validate(req)
}

func (c *composer) resize(width int) { c.input.SetWidth(max(width-4, 20)) }

// height counts the frame, the label line and the error line.
func (c *composer) height() int { return composerLines + 4 }

func (c *composer) label() string {
	switch c.mode {
	case composeReply:
		return "Reply to " + c.target.Username
	case composeEdit:
		return "Edit comment"
	}
	return "New comment"
}

func (c *composer) view(width int) string {
	var b strings.Builder
	b.WriteString(MetaItem.Render(c.label()))
	b.WriteString("\n")
	b.WriteString(c.input.View())
	if c.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(c.err.Error()))
	}
	return ComposerStyle.Width(max(width-2, 20)).Render(b.String()) + "\n"
}

func (c *composer) value() string { return c.input.Value() }
