// Package model defines the forum records exchanged with the backend.
package model

import (
	"strconv"
	"time"
)

// Access controls who can see a box.
type Access string

const (
	AccessPublic  Access = "PUBLIC"
	AccessPrivate Access = "PRIVATE"
)

// ThreadType describes how a thread's content is interpreted.
type ThreadType string

const (
	ThreadText  ThreadType = "TEXT"
	ThreadLink  ThreadType = "LINK"
	ThreadImage ThreadType = "IMAGE"
)

// Box is a community that holds threads.
type Box struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Access      Access    `json:"access,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ItemID implements feed.Item.
func (b Box) ItemID() string { return formatID(b.ID) }

// BoxRef is the abbreviated box embedded in a thread.
type BoxRef struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
}

// Thread is a post inside a box.
type Thread struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Type         ThreadType `json:"type,omitempty"`
	Description  string     `json:"description,omitempty"`
	Content      string     `json:"content,omitempty"`
	Box          *BoxRef    `json:"box,omitempty"`
	UserID       string     `json:"userId,omitempty"`
	Username     string     `json:"username,omitempty"`
	Upvotes      int        `json:"upvotes"`
	Downvotes    int        `json:"downvotes"`
	UserVote     *bool      `json:"userVote,omitempty"`
	CommentCount int        `json:"commentCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt,omitempty"`
}

// ItemID implements feed.Item.
func (t Thread) ItemID() string { return formatID(t.ID) }

// Score is upvotes minus downvotes.
func (t Thread) Score() int { return t.Upvotes - t.Downvotes }

// BoxSlug returns the slug of the owning box, or "" when the backend omitted it.
func (t Thread) BoxSlug() string {
	if t.Box == nil {
		return ""
	}
	return t.Box.Slug
}

// Comment is a reply in a thread, optionally nested under another comment.
type Comment struct {
	ID            int64     `json:"id"`
	ThreadID      int64     `json:"threadId"`
	ThreadTitle   string    `json:"threadTitle,omitempty"`
	ThreadBoxSlug string    `json:"threadBoxSlug,omitempty"`
	ParentID      *int64    `json:"parentId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	Username      string    `json:"username,omitempty"`
	Content       string    `json:"content"`
	Upvotes       int       `json:"upvotes"`
	Downvotes     int       `json:"downvotes"`
	UserVote      *bool     `json:"userVote,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// ItemID implements feed.Item.
func (c Comment) ItemID() string { return formatID(c.ID) }

// Score is upvotes minus downvotes.
func (c Comment) Score() int { return c.Upvotes - c.Downvotes }

// Edited reports whether the comment was changed after it was posted.
func (c Comment) Edited() bool {
	return !c.UpdatedAt.IsZero() && c.UpdatedAt.After(c.CreatedAt)
}

// ApplyVote updates counters the way the backend does: repeating a vote
// withdraws it and voting the other way moves it.
func ApplyVote(up, down *int, current **bool, isUp bool) {
	if *current != nil {
		if **current {
			*up--
		} else {
			*down--
		}
		if **current == isUp {
			*current = nil
			return
		}
	}
	if isUp {
		*up++
	} else {
		*down++
	}
	v := isUp
	*current = &v
}

// WithVote returns t as it looks after the current user votes.
func (t Thread) WithVote(isUp bool) Thread {
	ApplyVote(&t.Upvotes, &t.Downvotes, &t.UserVote, isUp)
	return t
}

// WithVote returns c as it looks after the current user votes.
func (c Comment) WithVote(isUp bool) Comment {
	ApplyVote(&c.Upvotes, &c.Downvotes, &c.UserVote, isUp)
	return c
}

// AuthConfig is what the backend advertises about its identity provider.
type AuthConfig struct {
	Authority string `json:"authority,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Realm     string `json:"realm,omitempty"`
}

// AnchorID is the deep-link anchor of a comment ("comment-<id>").
func AnchorID(id int64) string {
	return "comment-" + strconv.FormatInt(id, 10)
}

// ParseAnchor extracts the comment id from "comment-<id>" or a bare "<id>".
func ParseAnchor(anchor string) (int64, bool) {
	if len(anchor) > 0 && anchor[0] == '#' {
		anchor = anchor[1:]
	}
	const prefix = "comment-"
	if len(anchor) > len(prefix) && anchor[:len(prefix)] == prefix {
		anchor = anchor[len(prefix):]
	}
	id, err := strconv.ParseInt(anchor, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
