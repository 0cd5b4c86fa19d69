package api

import (
	"context"

	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/page"
)

// Feed targets. A target plus a sort order is a feed identity.

func BoxesTarget() string { return "boxes" }

func ThreadsTarget(slug string) string { return "box:" + slug + ":threads" }

func CommentsTarget(threadID int64) string { return "thread:" + idSegment(threadID) + ":comments" }

func UserThreadsTarget(username string) string { return "user:" + username + ":threads" }

func UserCommentsTarget(username string) string { return "user:" + username + ":comments" }

// BoxesFeed binds Boxes to the feed fetch signature.
func BoxesFeed(c *Client) feed.FetchFunc[model.Box] {
	return c.Boxes
}

// ThreadsFeed binds Threads for one box.
func ThreadsFeed(c *Client, slug string) feed.FetchFunc[model.Thread] {
	return func(ctx context.Context, number, size int, sort []string) (page.Page[model.Thread], error) {
		return c.Threads(ctx, slug, number, size, sort)
	}
}

// CommentsFeed binds Comments for one thread.
func CommentsFeed(c *Client, threadID int64) feed.FetchFunc[model.Comment] {
	return func(ctx context.Context, number, size int, sort []string) (page.Page[model.Comment], error) {
		return c.Comments(ctx, threadID, number, size, sort)
	}
}

// UserThreadsFeed binds ThreadsByUser for one user.
func UserThreadsFeed(c *Client, username string) feed.FetchFunc[model.Thread] {
	return func(ctx context.Context, number, size int, sort []string) (page.Page[model.Thread], error) {
		return c.ThreadsByUser(ctx, username, number, size, sort)
	}
}

// UserCommentsFeed binds CommentsByUser for one user.
func UserCommentsFeed(c *Client, username string) feed.FetchFunc[model.Comment] {
	return func(ctx context.Context, number, size int, sort []string) (page.Page[model.Comment], error) {
		return c.CommentsByUser(ctx, username, number, size, sort)
	}
}
