package feed

import "context"

// MaxCatchUp bounds how many pages CatchUp will request for one target.
const MaxCatchUp = 10

// Seeker is the public surface CatchUp needs.
type Seeker interface {
	Continuer
	Contains(id string) bool
	Wait(ctx context.Context) error
}

// CatchUp fetches pages until an item with the given id is present, the feed
// runs out of pages, or limit iterations have passed (MaxCatchUp when limit is
// not positive). It is used to reach a deep-linked item that lives on a page
// not fetched yet. A fetch already in flight is waited for, not duplicated.
func CatchUp(ctx context.Context, s Seeker, id string, limit int) (bool, error) {
	if limit <= 0 {
		limit = MaxCatchUp
	}
	if s.Contains(id) {
		return true, nil
	}
	for range limit {
		if err := s.Wait(ctx); err != nil {
			return false, err
		}
		if s.Contains(id) {
			return true, nil
		}
		if !s.HasMore() {
			return false, nil
		}
		if err := s.FetchMore(ctx); err != nil {
			return false, err
		}
		if s.Contains(id) {
			return true, nil
		}
	}
	return false, nil
}
