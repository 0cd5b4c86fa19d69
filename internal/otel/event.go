// Package otel provides structured observability for sharkbox.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Rank orders levels by severity. Unknown levels rank as debug.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Paged feed events
	KindFeedFetch   EventKind = "feed.fetch"
	KindFeedPage    EventKind = "feed.page"
	KindFeedError   EventKind = "feed.error"
	KindFeedReset   EventKind = "feed.reset"
	KindFeedDiscard EventKind = "feed.discard"
	KindFeedCatchUp EventKind = "feed.catchup"

	// Backend calls
	KindAPIRequest EventKind = "api.request"
	KindAPIError   EventKind = "api.error"

	// Session events
	KindAuthLogin   EventKind = "auth.login"
	KindAuthRefresh EventKind = "auth.refresh"
	KindAuthClear   EventKind = "auth.clear"

	KindStoreError EventKind = "store.error"

	// UI events
	KindKeyPress   EventKind = "ui.key"
	KindNavigate   EventKind = "ui.navigate"
	KindViewRender EventKind = "ui.render"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Only emitted when SHARKBOX_TRACE is set
	KindMsgReceived EventKind = "trace.msg_received"
	KindMsgHandled  EventKind = "trace.msg_handled"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "feed", "api", "auth", "ui", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Key       string         `json:"key,omitempty"`        // feed identity, e.g. "boxes|name,asc|id,asc"
	Page      int            `json:"page,omitempty"`
	Method    string         `json:"method,omitempty"`
	Path      string         `json:"path,omitempty"`
	Status    int            `json:"status,omitempty"`
	Dur       time.Duration  `json:"-"`                // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// Duration returns Dur, falling back to DurMs for events decoded from disk.
func (e Event) Duration() time.Duration {
	if e.Dur > 0 {
		return e.Dur
	}
	return time.Duration(e.DurMs * float64(time.Millisecond))
}
