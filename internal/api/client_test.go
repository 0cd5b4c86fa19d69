package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/forumtest"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/otel"
)

func newClient(t *testing.T, srv *forumtest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = srv.APIURL()
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 1000
		opts.Burst = 100
	}
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func seedBoxes(srv *forumtest.Server, n int) {
	for i := 1; i <= n; i++ {
		srv.AddBox(model.Box{ID: int64(i), Name: "box " + string(rune('a'+i%26)), Slug: "b" + idSegment(int64(i))})
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"})
	assert.Error(t, err)
}

func TestBoxesSendsPagingAndSort(t *testing.T) {
	srv := forumtest.New(t)
	seedBoxes(srv, 45)
	c := newClient(t, srv, Options{})

	p, err := c.Boxes(context.Background(), 2, 20, BoxSort)

	require.NoError(t, err)
	assert.Len(t, p.Content, 5)
	assert.True(t, p.IsLast())
	total, ok := p.Total()
	assert.True(t, ok)
	assert.EqualValues(t, 45, total)
	assert.Equal(t, []string{"GET /api/v1/box?page=2&size=20&sort=name%2Casc&sort=id%2Casc"}, srv.Requests())
}

func TestBareArrayIsNormalized(t *testing.T) {
	srv := forumtest.New(t)
	seedBoxes(srv, 7)
	srv.ServeBareArrays(true)
	c := newClient(t, srv, Options{})

	p, err := c.Boxes(context.Background(), 0, 20, nil)

	require.NoError(t, err)
	assert.Len(t, p.Content, 7)
	assert.True(t, p.IsLast())
	assert.Equal(t, 0, p.Number)
}

func TestFeedDrainsThreeServerPages(t *testing.T) {
	srv := forumtest.New(t)
	srv.AddBox(model.Box{Name: "Go", Slug: "go"})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		srv.AddThread("go", model.Thread{Title: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	c := newClient(t, srv, Options{})

	f := feed.New(feed.Options[model.Thread]{
		Query:   feed.Query{Target: ThreadsTarget("go"), Sort: ThreadSort},
		Fetch:   ThreadsFeed(c, "go"),
		Enabled: true,
	})
	ctx := context.Background()
	for f.HasMore() {
		require.NoError(t, f.FetchMore(ctx))
	}

	items := f.Items()
	require.Len(t, items, 45)
	assert.Equal(t, 45, f.Total())
	assert.True(t, items[0].CreatedAt.After(items[44].CreatedAt), "newest first")
	assert.Len(t, srv.Requests(), 3)
}

func TestTokenIsSentWhenAvailable(t *testing.T) {
	var got atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":1,"title":"x"}`))
	}))
	defer ts.Close()

	c, err := New(Options{BaseURL: ts.URL, Tokens: TokenFunc(func(context.Context) (string, error) { return "abc", nil })})
	require.NoError(t, err)
	_, err = c.Thread(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", got.Load())

	anon, err := New(Options{BaseURL: ts.URL, Tokens: TokenFunc(func(context.Context) (string, error) { return "", nil })})
	require.NoError(t, err)
	_, err = anon.Thread(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "", got.Load())
}

func TestTokenErrorFallsBackToAnonymous(t *testing.T) {
	srv := forumtest.New(t)
	srv.AddBox(model.Box{Name: "Go", Slug: "go"})
	c := newClient(t, srv, Options{Tokens: TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("refresh failed")
	})})

	_, err := c.Box(context.Background(), "go")
	assert.NoError(t, err)
}

func TestUnauthorizedWithTokenClearsSession(t *testing.T) {
	srv := forumtest.New(t)
	srv.RequireToken("good", "alice")
	srv.AddBox(model.Box{Name: "Go", Slug: "go"})
	var cleared atomic.Int32
	c := newClient(t, srv, Options{
		Tokens:         TokenFunc(func(context.Context) (string, error) { return "stale", nil }),
		OnUnauthorized: func() { cleared.Add(1) },
	})

	_, err := c.Box(context.Background(), "go")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 1, cleared.Load())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.True(t, se.Authenticated)
}

func TestUnauthorizedWithoutTokenKeepsSession(t *testing.T) {
	srv := forumtest.New(t)
	srv.RequireToken("good", "alice")
	srv.AddBox(model.Box{Name: "Go", Slug: "go"})
	var cleared atomic.Int32
	c := newClient(t, srv, Options{OnUnauthorized: func() { cleared.Add(1) }})

	_, err := c.CreateThread(context.Background(), "go", model.ThreadRequest{Title: "hi", Type: model.ThreadText})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, NeedsLogin(err))
	assert.Zero(t, cleared.Load())
}

func TestNotFound(t *testing.T) {
	srv := forumtest.New(t)
	c := newClient(t, srv, Options{})

	_, err := c.Thread(context.Background(), 404404)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "GET /v1/thread/404404: 404 Not Found")
}

func TestServerErrorIsStatusError(t *testing.T) {
	srv := forumtest.New(t)
	srv.FailNext(1)
	c := newClient(t, srv, Options{})

	_, err := c.Boxes(context.Background(), 0, 20, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Contains(t, se.Body, "unavailable")
}

func TestValidationHappensBeforeIO(t *testing.T) {
	srv := forumtest.New(t)
	c := newClient(t, srv, Options{})

	_, err := c.CreateComment(context.Background(), 1, model.CommentRequest{Content: ""})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, srv.Requests())
}

func TestWriteFlow(t *testing.T) {
	srv := forumtest.New(t)
	srv.RequireToken("tok", "alice")
	c := newClient(t, srv, Options{Tokens: TokenFunc(func(context.Context) (string, error) { return "tok", nil })})
	ctx := context.Background()

	box, err := c.CreateBox(ctx, model.BoxRequest{Name: "Go", Slug: "go", Access: model.AccessPublic})
	require.NoError(t, err)
	assert.Equal(t, "alice", box.Owner)

	box, err = c.UpdateBox(ctx, "go", model.BoxRequest{Name: "Golang", Slug: "go", Access: model.AccessPrivate})
	require.NoError(t, err)
	assert.Equal(t, "Golang", box.Name)

	th, err := c.CreateThread(ctx, "go", model.ThreadRequest{Title: "Generics", Type: model.ThreadText, Content: "body"})
	require.NoError(t, err)
	require.NotZero(t, th.ID)

	th, err = c.VoteThread(ctx, th.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, th.Score())

	th, err = c.UpdateThread(ctx, th.ID, model.ThreadRequest{Title: "Generics!", Type: model.ThreadText})
	require.NoError(t, err)
	assert.Equal(t, "Generics!", th.Title)

	root, err := c.CreateComment(ctx, th.ID, model.CommentRequest{Content: "first"})
	require.NoError(t, err)
	reply, err := c.CreateComment(ctx, th.ID, model.CommentRequest{Content: "reply", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	edited, err := c.UpdateComment(ctx, th.ID, root.ID, "first (edited)")
	require.NoError(t, err)
	assert.Equal(t, "first (edited)", edited.Content)
	assert.True(t, edited.Edited())

	voted, err := c.VoteComment(ctx, th.ID, reply.ID, false)
	require.NoError(t, err)
	assert.Equal(t, -1, voted.Score())

	comments, err := c.Comments(ctx, th.ID, 0, 20, CommentSort)
	require.NoError(t, err)
	assert.Len(t, comments.Content, 2)

	mine, err := c.ThreadsByUser(ctx, "alice", 0, 20, UserThreadSort)
	require.NoError(t, err)
	assert.Len(t, mine.Content, 1)

	myComments, err := c.CommentsByUser(ctx, "alice", 0, 20, UserCommentSort)
	require.NoError(t, err)
	assert.Len(t, myComments.Content, 2)
}

func TestSlugsAreEscaped(t *testing.T) {
	srv := forumtest.New(t)
	c := newClient(t, srv, Options{})

	_, _ = c.Box(context.Background(), "a/b")

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0], "GET /api/v1/box/a"), reqs[0])
	assert.NotContains(t, reqs[0], "/box/a/b")
}

func TestAllBoxesAndAuthConfig(t *testing.T) {
	srv := forumtest.New(t)
	seedBoxes(srv, 3)
	srv.SetAuthConfig(model.AuthConfig{Authority: "http://idp/realms/x", ClientID: "cli"})
	c := newClient(t, srv, Options{})
	ctx := context.Background()

	boxes, err := c.AllBoxes(ctx)
	require.NoError(t, err)
	assert.Len(t, boxes, 3)

	ac, err := c.AuthConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cli", ac.ClientID)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := forumtest.New(t)
	c := newClient(t, srv, Options{RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.AllBoxes(ctx)
	require.NoError(t, err, "first request uses the burst")
	_, err = c.AllBoxes(ctx)
	assert.Error(t, err)
	assert.Len(t, srv.Requests(), 1)
}

func TestRequestsAreRecordedAsEvents(t *testing.T) {
	srv := forumtest.New(t)
	srv.FailNext(1)
	ring := otel.NewRingBuffer(16)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)
	c := newClient(t, srv, Options{Events: events})
	ctx := context.Background()

	_, _ = c.AllBoxes(ctx)
	_, _ = c.AllBoxes(ctx)
	events.Close()

	stats := ring.Stats()
	assert.Equal(t, 1, stats[otel.KindAPIError])
	assert.Equal(t, 1, stats[otel.KindAPIRequest])
	last := ring.Last(1)[0]
	assert.Equal(t, "/v1/box", last.Path)
	assert.Equal(t, http.StatusOK, last.Status)
}

func TestTraceAddsRequestDetail(t *testing.T) {
	prev := otel.SetTraceEnabled(true)
	t.Cleanup(func() { otel.SetTraceEnabled(prev) })

	srv := forumtest.New(t)
	ring := otel.NewRingBuffer(16)
	events := otel.NewNullLogger()
	events.SetRingBuffer(ring)
	c := newClient(t, srv, Options{Events: events})

	_, err := c.Boxes(context.Background(), 1, 5, BoxSort)
	require.NoError(t, err)
	events.Close()

	last := ring.Last(1)[0]
	require.NotNil(t, last.Extra)
	assert.Equal(t, "page=1&size=5&sort=name%2Casc&sort=id%2Casc", last.Extra["query"])
	assert.Equal(t, false, last.Extra["auth"])

	otel.SetTraceEnabled(false)
	events = otel.NewNullLogger()
	events.SetRingBuffer(ring)
	c = newClient(t, srv, Options{Events: events})
	_, err = c.Boxes(context.Background(), 0, 5, BoxSort)
	require.NoError(t, err)
	events.Close()
	assert.Nil(t, ring.Last(1)[0].Extra)
}
