package feed

import "time"

// ChangeKind identifies a feed state transition.
type ChangeKind int

const (
	ChangeFetch   ChangeKind = iota // a page fetch started
	ChangePage                      // a page landed and was appended
	ChangeError                     // a page fetch failed; state unchanged
	ChangeReset                     // the identity changed; everything was dropped
	ChangeDiscard                   // a superseded fetch finished and was ignored
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeFetch:
		return "fetch"
	case ChangePage:
		return "page"
	case ChangeError:
		return "error"
	case ChangeReset:
		return "reset"
	case ChangeDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Change describes one transition, passed to Options.OnChange.
type Change struct {
	Kind  ChangeKind
	Key   string // query identity the change belongs to
	Page  int
	Count int  // items appended (ChangePage)
	More  bool // hasMore after the page (ChangePage)
	Err   error
	Dur   time.Duration
}
