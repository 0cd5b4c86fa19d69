package feed

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultLookahead is how many rows before the end of a list the sentinel
// already counts as visible, so the next page is requested before the user
// reaches the bottom.
const DefaultLookahead = 5

// Continuer is the part of a feed a continuation trigger drives.
type Continuer interface {
	HasMore() bool
	FetchMore(ctx context.Context) error
}

// Sentinel turns a visibility signal into fetches: it fires once per
// hidden-to-visible transition while the feed has more pages. Any signal
// works (a viewport position, a timer, a key press); the sentinel only does
// the edge detection and the has-more guard. Single-flight is enforced by the
// feed itself.
type Sentinel struct {
	feed     Continuer
	mu       sync.Mutex
	visible  bool
	detached atomic.Bool
}

func newSentinel(c Continuer) *Sentinel {
	return &Sentinel{feed: c}
}

// NewSentinel creates a sentinel over any Continuer. Sentinels obtained from
// Feed.Sentinel are detached by resets; these are not.
func NewSentinel(c Continuer) *Sentinel {
	return newSentinel(c)
}

// Observe records the current visibility and reports whether the caller
// should fetch the next page now.
func (s *Sentinel) Observe(visible bool) bool {
	s.mu.Lock()
	rising := visible && !s.visible
	s.visible = visible
	s.mu.Unlock()

	if !rising || s.detached.Load() {
		return false
	}
	return s.feed.HasMore()
}

// Trigger is Observe followed by a synchronous FetchMore when it fires.
// It is the headless form, for callers with no event loop of their own.
func (s *Sentinel) Trigger(ctx context.Context, visible bool) (bool, error) {
	if !s.Observe(visible) {
		return false, nil
	}
	return true, s.feed.FetchMore(ctx)
}

// Rearm forgets the last visibility so a sentinel that is still on screen
// after a page landed fires again on the next Observe. This mirrors a fresh
// intersection observer reporting its initial state.
func (s *Sentinel) Rearm() {
	s.mu.Lock()
	s.visible = false
	s.mu.Unlock()
}

// Detach stops the sentinel from firing ever again.
func (s *Sentinel) Detach() {
	s.detached.Store(true)
}

// Detached reports whether the sentinel was detached.
func (s *Sentinel) Detached() bool {
	return s.detached.Load()
}

// Visible reports whether the sentinel row, which sits one past the last item,
// is within lookahead rows of the last rendered row. lastShown is the index of
// the last item on screen (-1 when nothing is shown).
func Visible(lastShown, length, lookahead int) bool {
	if lookahead < 0 {
		lookahead = 0
	}
	return length-1-lastShown <= lookahead
}
