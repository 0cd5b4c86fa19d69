// Package ui provides the Bubble Tea TUI for sharkbox.
package ui

import (
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/store"
)

// PageLoaded is sent when a FetchMore started by a screen returns. Key is the
// feed identity at the time the fetch started; screens ignore other keys.
type PageLoaded struct {
	Key string
	Err error
}

// CaughtUp is sent when a deep-link catch-up finishes.
type CaughtUp struct {
	Key       string
	CommentID int64
	Found     bool
	Err       error
}

// ThreadLoaded carries the thread shown at the top of the thread screen.
type ThreadLoaded struct {
	ID     int64
	Thread model.Thread
	Err    error
}

// ThreadVoted is sent after a vote on a thread.
type ThreadVoted struct {
	Thread model.Thread
	Err    error
}

// CommentVoted is sent after a vote on a comment.
type CommentVoted struct {
	Comment model.Comment
	Err     error
}

// CommentSaved is sent after a comment was posted or edited.
type CommentSaved struct {
	Comment model.Comment
	Edited  bool
	Err     error
}

// MarksLoaded carries local read/saved marks for the rows of one feed.
type MarksLoaded struct {
	Key   string
	Marks map[string]store.Mark
	Err   error
}

// SavedLoaded carries the bookmark list.
type SavedLoaded struct {
	Marks []store.Mark
	Err   error
}

// MarkChanged is sent after a bookmark toggle or a read mark was stored.
type MarkChanged struct {
	Mark store.Mark
	Err  error
}

// SessionChanged is sent when the user signs in or out in another terminal.
type SessionChanged struct {
	Username string
	Subject  string
}

// pushScreen asks the App to open a new screen on top of the stack.
type pushScreen struct {
	screen screen
}
