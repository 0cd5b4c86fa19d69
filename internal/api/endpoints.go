package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/page"
)

// Default sort orders for each collection.
var (
	BoxSort         = []string{page.Asc("name"), page.Asc("id")}
	ThreadSort      = []string{page.Desc("createdAt"), page.Desc("id")}
	CommentSort     = []string{page.Asc("createdAt"), page.Asc("id")}
	UserThreadSort  = []string{page.Desc("createdAt")}
	UserCommentSort = []string{page.Desc("createdAt")}
)

func idSegment(id int64) string { return strconv.FormatInt(id, 10) }

// Boxes

// Boxes fetches one page of boxes.
func (c *Client) Boxes(ctx context.Context, number, size int, sort []string) (page.Page[model.Box], error) {
	return getPage[model.Box](ctx, c, c.endpoint("v1", "box"), number, size, sort)
}

// AllBoxes fetches the box list without paging parameters.
func (c *Client) AllBoxes(ctx context.Context) ([]model.Box, error) {
	data, err := c.do(ctx, http.MethodGet, c.endpoint("v1", "box"), nil, nil)
	if err != nil {
		return nil, err
	}
	return page.Normalize[model.Box](data, 0, page.DefaultSize).Content, nil
}

// Box fetches one box by slug.
func (c *Client) Box(ctx context.Context, slug string) (model.Box, error) {
	var b model.Box
	err := c.getJSON(ctx, c.endpoint("v1", "box", slug), &b)
	return b, err
}

// CreateBox creates a box.
func (c *Client) CreateBox(ctx context.Context, req model.BoxRequest) (model.Box, error) {
	var b model.Box
	err := c.sendJSON(ctx, http.MethodPost, c.endpoint("v1", "box"), req, &b)
	return b, err
}

// UpdateBox replaces a box's editable fields.
func (c *Client) UpdateBox(ctx context.Context, slug string, req model.BoxRequest) (model.Box, error) {
	var b model.Box
	err := c.sendJSON(ctx, http.MethodPut, c.endpoint("v1", "box", slug), req, &b)
	return b, err
}

// Threads

// Threads fetches one page of a box's threads.
func (c *Client) Threads(ctx context.Context, slug string, number, size int, sort []string) (page.Page[model.Thread], error) {
	return getPage[model.Thread](ctx, c, c.endpoint("v1", "box", slug, "threads"), number, size, sort)
}

// Thread fetches one thread.
func (c *Client) Thread(ctx context.Context, id int64) (model.Thread, error) {
	var t model.Thread
	err := c.getJSON(ctx, c.endpoint("v1", "thread", idSegment(id)), &t)
	return t, err
}

// CreateThread posts a thread into a box.
func (c *Client) CreateThread(ctx context.Context, slug string, req model.ThreadRequest) (model.Thread, error) {
	var t model.Thread
	err := c.sendJSON(ctx, http.MethodPost, c.endpoint("v1", "box", slug, "thread"), req, &t)
	return t, err
}

// UpdateThread edits a thread.
func (c *Client) UpdateThread(ctx context.Context, id int64, req model.ThreadRequest) (model.Thread, error) {
	var t model.Thread
	err := c.sendJSON(ctx, http.MethodPut, c.endpoint("v1", "thread", idSegment(id)), req, &t)
	return t, err
}

// VoteThread casts an up or down vote. The returned thread is zero when the
// backend answers without a body.
func (c *Client) VoteThread(ctx context.Context, id int64, up bool) (model.Thread, error) {
	var t model.Thread
	err := c.sendJSON(ctx, http.MethodPatch, c.endpoint("v1", "thread", idSegment(id)), model.VoteRequest{IsUpvote: up}, &t)
	return t, err
}

// ThreadsByUser fetches one page of threads written by username.
func (c *Client) ThreadsByUser(ctx context.Context, username string, number, size int, sort []string) (page.Page[model.Thread], error) {
	return getPage[model.Thread](ctx, c, c.endpoint("v1", "user", username, "threads"), number, size, sort)
}

// Comments

// Comments fetches one page of a thread's comments.
func (c *Client) Comments(ctx context.Context, threadID int64, number, size int, sort []string) (page.Page[model.Comment], error) {
	return getPage[model.Comment](ctx, c, c.endpoint("v1", "comment", idSegment(threadID)), number, size, sort)
}

// CreateComment posts a comment, or a reply when req.ParentID is set.
func (c *Client) CreateComment(ctx context.Context, threadID int64, req model.CommentRequest) (model.Comment, error) {
	var cm model.Comment
	err := c.sendJSON(ctx, http.MethodPost, c.endpoint("v1", "comment", idSegment(threadID)), req, &cm)
	return cm, err
}

// UpdateComment edits a comment's content.
func (c *Client) UpdateComment(ctx context.Context, threadID, commentID int64, content string) (model.Comment, error) {
	var cm model.Comment
	path := c.endpoint("v1", "comment", idSegment(threadID), idSegment(commentID))
	err := c.sendJSON(ctx, http.MethodPut, path, model.CommentRequest{Content: content}, &cm)
	return cm, err
}

// VoteComment casts an up or down vote on a comment.
func (c *Client) VoteComment(ctx context.Context, threadID, commentID int64, up bool) (model.Comment, error) {
	var cm model.Comment
	path := c.endpoint("v1", "comment", idSegment(threadID), idSegment(commentID))
	err := c.sendJSON(ctx, http.MethodPatch, path, model.VoteRequest{IsUpvote: up}, &cm)
	return cm, err
}

// CommentsByUser fetches one page of comments written by username.
func (c *Client) CommentsByUser(ctx context.Context, username string, number, size int, sort []string) (page.Page[model.Comment], error) {
	return getPage[model.Comment](ctx, c, c.endpoint("v1", "user", username, "comments"), number, size, sort)
}

// AuthConfig asks the backend which identity provider to use.
func (c *Client) AuthConfig(ctx context.Context) (model.AuthConfig, error) {
	var ac model.AuthConfig
	err := c.getJSON(ctx, c.endpoint("v1", "auth", "config"), &ac)
	return ac, err
}
