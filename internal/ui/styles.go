package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorDanger    = lipgloss.Color("196") // Red
)

// SelectedItem style for the currently highlighted row.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected, unread rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// ReadItem style for threads that have been opened before.
var ReadItem = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// MetaItem style for dim metadata (ages, authors, counts).
var MetaItem = lipgloss.NewStyle().
	Foreground(colorMuted)

// BoxBadge style for box slugs shown next to threads.
var BoxBadge = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// TitleBar style for the screen title line.
var TitleBar = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// ScoreUp and ScoreDown color a score by the current user's vote.
var (
	ScoreUp   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	ScoreDown = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
)

// NewBadge marks threads with comments added since they were last read.
var NewBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// SavedMark is the bookmark glyph.
var SavedMark = lipgloss.NewStyle().
	Foreground(colorHighlight)

// SentinelRow style for the "loading more" and end-of-list rows.
var SentinelRow = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// NoticeStyle for transient confirmations ("comment posted").
var NoticeStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// ComposerStyle frames the comment editor.
var ComposerStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(0, 1)

// PreviewStyle frames the full text of the selected comment.
var PreviewStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder(), true, false, false, false).
	BorderForeground(colorMuted).
	Padding(0, 1)

// DebugPanel style for the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headings inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
