// Package feed assembles a growing, de-duplicated list from a paged backend
// list endpoint.
//
// A Feed is bound to one query identity (a fetch target plus its sort order).
// Each FetchMore call requests the next page, appends the ids not seen yet and
// recomputes whether more pages may follow. Changing the identity discards
// everything and starts again at page 0.
//
// # Thread Safety
//
// All methods are safe for concurrent use. At most one page fetch is in flight
// per feed: FetchMore is a no-op while another call is still waiting for its
// page. A fetch that completes after the feed was reset or closed is dropped
// without touching the new state.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/sharkbox/internal/page"
	"github.com/google/uuid"
)

// ErrSuperseded is returned by FetchMore when the feed was reset or closed
// while the page was being fetched. The page was discarded.
var ErrSuperseded = errors.New("feed: superseded by reset")

// ErrFetchPanic wraps a panic raised by a FetchFunc. The feed treats it like
// any other failed fetch, so the page can be retried.
var ErrFetchPanic = errors.New("feed: fetch panicked")

// Item is a record with a stable id used for de-duplication.
// An empty id means the record has none; it is still kept, exactly once.
type Item interface {
	ItemID() string
}

// FetchFunc fetches one page. number is zero-based; sort entries have the form
// "field,asc" or "field,desc" and are passed through untouched.
type FetchFunc[T any] func(ctx context.Context, number, size int, sort []string) (page.Page[T], error)

// Query identifies a feed: what is listed and in which order.
type Query struct {
	Target string
	Sort   []string
}

var identityEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// Identity is the key that decides reset versus resume. Parts are joined
// with '|'; a '|' or '\' inside a part is backslash-escaped so distinct
// queries never share a key.
func (q Query) Identity() string {
	var b strings.Builder
	identityEscaper.WriteString(&b, q.Target)
	for _, s := range q.Sort {
		b.WriteByte('|')
		identityEscaper.WriteString(&b, s)
	}
	return b.String()
}

// Options configures a Feed.
type Options[T Item] struct {
	Query    Query
	Fetch    FetchFunc[T]
	PageSize int // defaults to page.DefaultSize
	Enabled  bool

	// OnChange is called after every state transition, outside the feed lock.
	OnChange func(Change)
}

// Feed is the paged aggregation state for one query identity.
type Feed[T Item] struct {
	mu       sync.Mutex
	query    Query
	key      string
	fetch    FetchFunc[T]
	size     int
	enabled  bool
	onChange func(Change)

	gen     uint64
	pages   []page.Page[T]
	items   []T
	seen    map[string]struct{}
	fetched int // content rows received, duplicates included
	cursor  int
	more    bool
	err     error

	inflight  chan struct{}
	cancel    context.CancelFunc
	sentinels []*Sentinel
	closed    bool
}

// New creates an idle feed. Nothing is fetched until FetchMore is called.
func New[T Item](opts Options[T]) *Feed[T] {
	size := opts.PageSize
	if size <= 0 {
		size = page.DefaultSize
	}
	f := &Feed[T]{
		fetch:    opts.Fetch,
		size:     size,
		enabled:  opts.Enabled,
		onChange: opts.OnChange,
	}
	f.resetLocked(opts.Query)
	return f
}

// Activate binds the feed to q. A different identity discards all pages and
// items and restarts at page 0; the same identity only updates enabled (and
// fetch, when non-nil), so re-enabling a suspended feed resumes it.
func (f *Feed[T]) Activate(q Query, fetch FetchFunc[T], enabled bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if fetch != nil {
		f.fetch = fetch
	}
	f.enabled = enabled

	reset := q.Identity() != f.key
	if reset {
		f.resetLocked(q)
	}
	key := f.key
	f.mu.Unlock()

	if reset {
		f.notify(Change{Kind: ChangeReset, Key: key})
	}
}

// resetLocked drops all state and binds q. Caller holds f.mu (or owns f).
func (f *Feed[T]) resetLocked(q Query) {
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if f.inflight != nil {
		close(f.inflight)
		f.inflight = nil
	}
	for _, s := range f.sentinels {
		s.Detach()
	}
	f.sentinels = nil

	f.query = Query{Target: q.Target, Sort: slices.Clone(q.Sort)}
	f.key = q.Identity()
	f.pages = nil
	f.items = nil
	f.seen = make(map[string]struct{})
	f.fetched = 0
	f.cursor = 0
	f.more = true
	f.err = nil
}

// Close tears the feed down: the in-flight fetch is cancelled and its result
// discarded, sentinels are detached and later FetchMore calls do nothing.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.resetLocked(f.query)
	f.closed = true
	f.mu.Unlock()
}

// FetchMore requests the next page and blocks until it lands.
//
// It does nothing (and returns nil) when the feed is disabled, closed,
// exhausted or already fetching. On failure the items are untouched, the same
// page index stays next in line and the error is both stored and returned.
func (f *Feed[T]) FetchMore(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || !f.enabled || !f.more || f.inflight != nil || f.fetch == nil {
		f.mu.Unlock()
		return nil
	}
	gen := f.gen
	key := f.key
	number := f.cursor
	size := f.size
	sort := slices.Clone(f.query.Sort)
	fetch := f.fetch

	fctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.inflight = done
	f.cancel = cancel
	f.mu.Unlock()

	f.notify(Change{Kind: ChangeFetch, Key: key, Page: number})

	start := time.Now()
	p, err := callFetch(fctx, fetch, number, size, sort)
	dur := time.Since(start)
	cancel()

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		f.notify(Change{Kind: ChangeDiscard, Key: key, Page: number, Dur: dur})
		return ErrSuperseded
	}
	f.inflight = nil
	f.cancel = nil
	close(done)

	if err != nil {
		f.err = err
		f.mu.Unlock()
		f.notify(Change{Kind: ChangeError, Key: key, Page: number, Err: err, Dur: dur})
		return fmt.Errorf("fetch page %d of %s: %w", number, key, err)
	}

	added := f.appendLocked(p, number)
	more := f.more
	f.mu.Unlock()

	f.notify(Change{Kind: ChangePage, Key: key, Page: number, Count: added, More: more, Dur: dur})
	return nil
}

// callFetch runs fetch and turns a panic into an error, so the in-flight slot
// is always released.
func callFetch[T any](ctx context.Context, fetch FetchFunc[T], number, size int, sort []string) (p page.Page[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	return fetch(ctx, number, size, sort)
}

// appendLocked records a landed page. Caller holds f.mu.
func (f *Feed[T]) appendLocked(p page.Page[T], number int) int {
	f.pages = append(f.pages, p)
	added := 0
	for _, it := range p.Content {
		id := it.ItemID()
		if id == "" {
			id = "synthetic:" + uuid.NewString()
		}
		if _, dup := f.seen[id]; dup {
			continue
		}
		f.seen[id] = struct{}{}
		f.items = append(f.items, it)
		added++
	}
	f.fetched += len(p.Content)
	f.cursor = number + 1
	f.more = hasMore(p, f.size, f.fetched)
	f.err = nil
	return added
}

// hasMore ORs three weak signals because backends omit some of them: an
// explicit last=false, a full page, or fewer rows fetched than totalElements.
// At the true end this costs at most one extra empty request.
func hasMore[T any](p page.Page[T], requested, fetched int) bool {
	size := p.Size
	if size <= 0 {
		size = requested
	}
	if p.Last != nil && !*p.Last {
		return true
	}
	if len(p.Content) == size {
		return true
	}
	if total, ok := p.Total(); ok && int64(fetched) < total {
		return true
	}
	return false
}

// Wait blocks until no fetch is in flight.
func (f *Feed[T]) Wait(ctx context.Context) error {
	f.mu.Lock()
	ch := f.inflight
	f.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items returns a copy of the de-duplicated items in arrival order.
func (f *Feed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Len returns the number of de-duplicated items.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Pages returns a copy of the pages fetched so far.
func (f *Feed[T]) Pages() []page.Page[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pages)
}

// Contains reports whether an item with the given id has been fetched.
func (f *Feed[T]) Contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[id]
	return ok
}

// Total is the first page's totalElements when the backend sent it, otherwise
// the number of items held.
func (f *Feed[T]) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalLocked()
}

func (f *Feed[T]) totalLocked() int {
	if len(f.pages) > 0 {
		if total, ok := f.pages[0].Total(); ok {
			return int(total)
		}
	}
	return len(f.items)
}

// HasMore reports whether the next page has not been proven absent.
func (f *Feed[T]) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.more && !f.closed
}

// IsFetchingMore reports whether a page fetch is in flight.
func (f *Feed[T]) IsFetchingMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight != nil
}

// Err returns the error of the last failed fetch, cleared by the next success.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Cursor returns the next page index and false once the feed is exhausted.
func (f *Feed[T]) Cursor() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor, f.more
}

// Query returns the query the feed is bound to.
func (f *Feed[T]) Query() Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Query{Target: f.query.Target, Sort: slices.Clone(f.query.Sort)}
}

// Key returns the identity of the bound query.
func (f *Feed[T]) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// State is a consistent snapshot of a feed.
type State[T any] struct {
	Key      string
	Items    []T
	Total    int
	Pages    int
	HasMore  bool
	Fetching bool
	Enabled  bool
	Err      error
}

// Snapshot returns every observable field under one lock.
func (f *Feed[T]) Snapshot() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State[T]{
		Key:      f.key,
		Items:    slices.Clone(f.items),
		Total:    f.totalLocked(),
		Pages:    len(f.pages),
		HasMore:  f.more && !f.closed,
		Fetching: f.inflight != nil,
		Enabled:  f.enabled,
		Err:      f.err,
	}
}

// Sentinel returns a continuation sentinel bound to this feed. It is detached
// automatically when the feed is reset or closed.
func (f *Feed[T]) Sentinel() *Sentinel {
	s := newSentinel(f)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.Detach()
		return s
	}
	f.sentinels = append(f.sentinels, s)
	return s
}

func (f *Feed[T]) notify(c Change) {
	if f.onChange != nil {
		f.onChange(c)
	}
}
