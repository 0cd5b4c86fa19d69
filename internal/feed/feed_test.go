package feed

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/sharkbox/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type rec struct {
	ID    int
	Title string
}

func (r rec) ItemID() string {
	if r.ID == 0 {
		return ""
	}
	return strconv.Itoa(r.ID)
}

// makePage cuts page number out of a collection of total records with ids 1..total.
func makePage(number, size, total int) page.Page[rec] {
	start := number * size
	end := min(start+size, total)
	content := []rec{}
	for i := start; i < end; i++ {
		content = append(content, rec{ID: i + 1})
	}
	last := end >= total
	t := int64(total)
	return page.Page[rec]{Content: content, Number: number, Size: size, Last: &last, TotalElements: &t}
}

type call struct {
	Number int
	Size   int
	Sort   []string
}

// backend records every fetch and answers with serve.
type backend struct {
	mu    sync.Mutex
	calls []call
	serve func(ctx context.Context, number, size int, sort []string) (page.Page[rec], error)
}

func (b *backend) fetch(ctx context.Context, number, size int, sort []string) (page.Page[rec], error) {
	b.mu.Lock()
	b.calls = append(b.calls, call{Number: number, Size: size, Sort: sort})
	b.mu.Unlock()
	return b.serve(ctx, number, size, sort)
}

func (b *backend) Calls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]call(nil), b.calls...)
}

func collection(total int) *backend {
	return &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		return makePage(number, size, total), nil
	}}
}

func newFeed(b *backend, size int, sort ...string) *Feed[rec] {
	return New(Options[rec]{
		Query:    Query{Target: "boxes", Sort: sort},
		Fetch:    b.fetch,
		PageSize: size,
		Enabled:  true,
	})
}

func ids(items []rec) []int {
	out := make([]int, len(items))
	for i, r := range items {
		out[i] = r.ID
	}
	return out
}

func TestThreePagesOfFortyFive(t *testing.T) {
	b := collection(45)
	f := newFeed(b, 20)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, f.FetchMore(ctx))
	}

	assert.Equal(t, 45, f.Len())
	assert.False(t, f.HasMore())
	assert.Equal(t, 45, f.Total())

	require.NoError(t, f.FetchMore(ctx))
	assert.Len(t, b.Calls(), 3, "exhausted feed must not fetch again")

	calls := b.Calls()
	for i, c := range calls {
		assert.Equal(t, i, c.Number)
		assert.Equal(t, 20, c.Size)
	}
}

func TestBareArrayIsSingleTerminalPage(t *testing.T) {
	raw := []byte(`[{"id":1},{"id":2},{"id":3},{"id":4},{"id":5}]`)
	type obj struct {
		ID int `json:"id"`
	}
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		p := page.Normalize[obj](raw, number, size)
		out := page.Page[rec]{Number: p.Number, Size: p.Size, Last: p.Last, TotalElements: p.TotalElements}
		for _, o := range p.Content {
			out.Content = append(out.Content, rec{ID: o.ID})
		}
		return out, nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	assert.Equal(t, 5, f.Len())
	assert.False(t, f.HasMore())

	require.NoError(t, f.FetchMore(ctx))
	assert.Len(t, b.Calls(), 1)
}

func TestOverlappingPagesAreDeduplicated(t *testing.T) {
	// Page boundaries shifted between requests: page 1 repeats ids 15..20.
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		from := 1
		if number == 1 {
			from = 15
		}
		var content []rec
		for id := from; id < from+size; id++ {
			content = append(content, rec{ID: id})
		}
		last := number == 1
		return page.Page[rec]{Content: content, Number: number, Size: size, Last: &last}, nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	require.NoError(t, f.FetchMore(ctx))

	got := ids(f.Items())
	require.Len(t, got, 34)
	for i, id := range got {
		assert.Equal(t, i+1, id, "first-seen order is kept")
	}
}

func TestItemsWithoutIDAreKeptOnce(t *testing.T) {
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		last := true
		return page.Page[rec]{
			Content: []rec{{Title: "a"}, {ID: 7}, {Title: "b"}, {ID: 7}, {Title: "c"}},
			Number:  number, Size: size, Last: &last,
		}, nil
	}}
	f := newFeed(b, 20)

	require.NoError(t, f.FetchMore(context.Background()))

	items := f.Items()
	require.Len(t, items, 4)
	assert.Equal(t, "a", items[0].Title)
	assert.Equal(t, 7, items[1].ID)
	assert.Equal(t, "b", items[2].Title)
	assert.Equal(t, "c", items[3].Title)
	assert.False(t, f.Contains(""))
}

func TestItemsGrowMonotonically(t *testing.T) {
	b := collection(95)
	f := newFeed(b, 10)
	ctx := context.Background()

	prev := []rec{}
	for f.HasMore() {
		require.NoError(t, f.FetchMore(ctx))
		cur := f.Items()
		require.GreaterOrEqual(t, len(cur), len(prev))
		assert.Equal(t, prev, cur[:len(prev)], "earlier items never move or vanish")
		prev = cur
	}
	assert.Len(t, prev, 95)
}

func TestFetchMoreIsSingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		close(entered)
		<-release
		return makePage(number, size, 100), nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- f.FetchMore(ctx) }()
	<-entered

	assert.True(t, f.IsFetchingMore())
	require.NoError(t, f.FetchMore(ctx), "second call while pending is a silent no-op")
	assert.Len(t, b.Calls(), 1)

	close(release)
	require.NoError(t, <-errc)
	assert.False(t, f.IsFetchingMore())
	assert.Equal(t, 20, f.Len())
	assert.Len(t, b.Calls(), 1)
}

func TestFailedFetchIsRetrySafe(t *testing.T) {
	boom := errors.New("backend down")
	fail := true
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		if number == 1 && fail {
			return page.Page[rec]{}, boom
		}
		return makePage(number, size, 60), nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	before := f.Items()

	err := f.FetchMore(ctx)
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, f.Err(), boom)
	assert.Equal(t, before, f.Items(), "failure leaves items untouched")
	assert.False(t, f.IsFetchingMore())
	next, more := f.Cursor()
	assert.Equal(t, 1, next)
	assert.True(t, more)

	fail = false
	require.NoError(t, f.FetchMore(ctx))
	assert.NoError(t, f.Err())
	assert.Equal(t, 40, f.Len())

	calls := b.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 1, calls[1].Number)
	assert.Equal(t, 1, calls[2].Number, "retry requests the same page")
}

func TestSortChangeResetsFeed(t *testing.T) {
	b := collection(50)
	f := newFeed(b, 20, "name,asc")
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	require.NoError(t, f.FetchMore(ctx))
	require.Equal(t, 40, f.Len())

	f.Activate(Query{Target: "boxes", Sort: []string{"name,desc"}}, nil, true)

	assert.Zero(t, f.Len())
	next, more := f.Cursor()
	assert.Zero(t, next)
	assert.True(t, more)
	assert.Empty(t, f.Pages())

	require.NoError(t, f.FetchMore(ctx))
	calls := b.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, 0, last.Number)
	assert.Equal(t, []string{"name,desc"}, last.Sort)
}

func TestSameIdentityResumes(t *testing.T) {
	b := collection(50)
	q := Query{Target: "box/go", Sort: []string{"createdAt,desc", "id,desc"}}
	f := New(Options[rec]{Query: q, Fetch: b.fetch, PageSize: 20, Enabled: true})
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	f.Activate(q, nil, false)
	require.NoError(t, f.FetchMore(ctx))
	assert.Len(t, b.Calls(), 1, "disabled feed does not fetch")
	assert.Equal(t, 20, f.Len(), "suspending keeps state")

	f.Activate(q, nil, true)
	require.NoError(t, f.FetchMore(ctx))
	assert.Equal(t, 40, f.Len())
	assert.Equal(t, 1, b.Calls()[1].Number)
}

func TestIdentityDoesNotCollide(t *testing.T) {
	a := Query{Target: "box:a|b:threads", Sort: []string{"x,asc"}}
	b := Query{Target: "box:a", Sort: []string{"b:threads", "x,asc"}}
	assert.NotEqual(t, a.Identity(), b.Identity())

	assert.NotEqual(t, Query{Target: "a"}.Identity(), Query{Target: "a", Sort: []string{""}}.Identity())
	assert.NotEqual(t, Query{Target: `a\`, Sort: []string{"b"}}.Identity(), Query{Target: `a\|b`}.Identity())
	assert.Equal(t, "boxes|name,asc|id,asc", Query{Target: "boxes", Sort: []string{"name,asc", "id,asc"}}.Identity())
}

func TestActivateResetsOnAmbiguousLookingQuery(t *testing.T) {
	be := collection(50)
	f := New(Options[rec]{Query: Query{Target: "box:a|b:threads", Sort: []string{"x,asc"}}, Fetch: be.fetch, PageSize: 20, Enabled: true})
	ctx := context.Background()
	require.NoError(t, f.FetchMore(ctx))
	require.Equal(t, 20, f.Len())

	f.Activate(Query{Target: "box:a", Sort: []string{"b:threads", "x,asc"}}, nil, true)
	assert.Zero(t, f.Len(), "a different query must reset the feed")
	require.NoError(t, f.FetchMore(ctx))
	assert.Equal(t, 0, be.Calls()[1].Number)
}

func TestPanickingFetchReleasesSlot(t *testing.T) {
	var n int
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		n++
		if n == 1 {
			panic("decoder blew up")
		}
		return makePage(number, size, 30), nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	err := f.FetchMore(ctx)
	require.ErrorIs(t, err, ErrFetchPanic)
	assert.Contains(t, err.Error(), "decoder blew up")
	assert.False(t, f.IsFetchingMore())
	assert.ErrorIs(t, f.Err(), ErrFetchPanic)
	assert.Zero(t, f.Len())

	require.NoError(t, f.FetchMore(ctx))
	assert.Len(t, b.Calls(), 2)
	assert.Equal(t, 0, b.Calls()[1].Number, "the failed page is retried")
	assert.Equal(t, 20, f.Len())
	assert.NoError(t, f.Err())
}

func TestDisabledUntilTargetKnown(t *testing.T) {
	b := collection(5)
	f := New(Options[rec]{Fetch: b.fetch})

	require.NoError(t, f.FetchMore(context.Background()))
	assert.Empty(t, b.Calls())
	assert.True(t, f.HasMore())

	f.Activate(Query{Target: "box/rust"}, nil, true)
	require.NoError(t, f.FetchMore(context.Background()))
	assert.Equal(t, 5, f.Len())
}

func TestLateResultAfterResetIsDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var sawCancel bool
	b := &backend{serve: func(ctx context.Context, number, size int, _ []string) (page.Page[rec], error) {
		entered <- struct{}{}
		<-release
		sawCancel = ctx.Err() != nil
		return makePage(number, size, 100), nil
	}}
	f := newFeed(b, 20, "name,asc")
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- f.FetchMore(ctx) }()
	<-entered

	f.Activate(Query{Target: "boxes", Sort: []string{"name,desc"}}, nil, true)
	assert.False(t, f.IsFetchingMore(), "reset forgets the superseded fetch")
	require.NoError(t, f.Wait(ctx), "waiters are released by the reset")

	close(release)
	require.ErrorIs(t, <-errc, ErrSuperseded)
	assert.True(t, sawCancel, "superseded fetch context is cancelled")
	assert.Zero(t, f.Len())
	assert.Empty(t, f.Pages())
}

func TestTotalPrefersFirstPageTotalElements(t *testing.T) {
	f := newFeed(collection(45), 20)
	require.NoError(t, f.FetchMore(context.Background()))
	assert.Equal(t, 45, f.Total())
	assert.Equal(t, 20, f.Len())

	noTotal := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		p := makePage(number, size, 45)
		p.TotalElements = nil
		return p, nil
	}}
	g := newFeed(noTotal, 20)
	require.NoError(t, g.FetchMore(context.Background()))
	assert.Equal(t, 20, g.Total())
}

func TestHasMoreSignals(t *testing.T) {
	yes, no := true, false
	total := func(n int64) *int64 { return &n }
	full := make([]rec, 20)
	short := make([]rec, 5)

	cases := []struct {
		name    string
		p       page.Page[rec]
		fetched int
		want    bool
	}{
		{"explicit last=false", page.Page[rec]{Content: short, Size: 20, Last: &no}, 5, true},
		{"full page", page.Page[rec]{Content: full, Size: 20, Last: &yes}, 20, true},
		{"fewer than total", page.Page[rec]{Content: short, Size: 20, Last: &yes, TotalElements: total(30)}, 5, true},
		{"short terminal page", page.Page[rec]{Content: short, Size: 20, Last: &yes, TotalElements: total(45)}, 45, false},
		{"no metadata, short", page.Page[rec]{Content: short}, 5, false},
		{"no size falls back to requested", page.Page[rec]{Content: full}, 20, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, hasMore(tc.p, 20, tc.fetched))
		})
	}
}

func TestFullFinalPageCostsOneEmptyFetch(t *testing.T) {
	// Backend omits last and totalElements and holds exactly two full pages.
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		p := makePage(number, size, 40)
		p.Last, p.TotalElements = nil, nil
		return p, nil
	}}
	f := newFeed(b, 20)
	ctx := context.Background()

	for f.HasMore() {
		require.NoError(t, f.FetchMore(ctx))
	}

	assert.Equal(t, 40, f.Len())
	assert.Len(t, b.Calls(), 3)
}

func TestCloseDetachesAndStops(t *testing.T) {
	b := collection(100)
	f := newFeed(b, 20)
	s := f.Sentinel()

	f.Close()

	assert.True(t, s.Detached())
	assert.False(t, f.HasMore())
	require.NoError(t, f.FetchMore(context.Background()))
	assert.Empty(t, b.Calls())
	assert.True(t, f.Sentinel().Detached(), "sentinels of a closed feed start detached")
}

func TestOnChangeReportsTransitions(t *testing.T) {
	var mu sync.Mutex
	var kinds []ChangeKind
	boom := errors.New("nope")
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		if number == 1 {
			return page.Page[rec]{}, boom
		}
		return makePage(number, size, 100), nil
	}}
	f := New(Options[rec]{
		Query:    Query{Target: "t"},
		Fetch:    b.fetch,
		PageSize: 20,
		Enabled:  true,
		OnChange: func(c Change) {
			mu.Lock()
			kinds = append(kinds, c.Kind)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	require.NoError(t, f.FetchMore(ctx))
	require.Error(t, f.FetchMore(ctx))
	f.Activate(Query{Target: "u"}, nil, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ChangeKind{ChangeFetch, ChangePage, ChangeFetch, ChangeError, ChangeReset}, kinds)
}

func TestWaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	b := &backend{serve: func(_ context.Context, number, size int, _ []string) (page.Page[rec], error) {
		close(entered)
		<-release
		return makePage(number, size, 10), nil
	}}
	f := newFeed(b, 20)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.FetchMore(context.Background())
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	close(release)
	<-done
	assert.NoError(t, f.Wait(context.Background()))
}
