package ui

import (
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/otel"
)

// changeKinds maps feed transitions onto event kinds.
var changeKinds = map[feed.ChangeKind]otel.EventKind{
	feed.ChangeFetch:   otel.KindFeedFetch,
	feed.ChangePage:    otel.KindFeedPage,
	feed.ChangeError:   otel.KindFeedError,
	feed.ChangeReset:   otel.KindFeedReset,
	feed.ChangeDiscard: otel.KindFeedDiscard,
}

// FeedEvent converts a feed transition into an observability event.
func FeedEvent(c feed.Change) otel.Event {
	e := otel.Event{
		Level: otel.LevelDebug,
		Kind:  changeKinds[c.Kind],
		Comp:  "feed",
		Key:   c.Key,
		Page:  c.Page,
		Dur:   c.Dur,
	}
	switch c.Kind {
	case feed.ChangePage:
		e.Level = otel.LevelInfo
		e.Count = c.Count
		if !c.More {
			e.Msg = "exhausted"
		}
	case feed.ChangeError:
		e.Level = otel.LevelError
		if c.Err != nil {
			e.Err = c.Err.Error()
		}
	case feed.ChangeReset, feed.ChangeDiscard:
		e.Level = otel.LevelInfo
	}
	return e
}

// FeedRecorder returns an Options.OnChange hook emitting to events.
func FeedRecorder(events *otel.Logger) func(feed.Change) {
	if events == nil {
		return nil
	}
	return func(c feed.Change) { events.Emit(FeedEvent(c)) }
}
