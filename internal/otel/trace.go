package otel

import (
	"os"
	"sync/atomic"
)

// trace is read on every API request; SHARKBOX_TRACE or --trace turns it on.
var trace atomic.Bool

func init() {
	trace.Store(os.Getenv("SHARKBOX_TRACE") != "")
}

// TraceEnabled reports whether events should carry request detail (query
// strings, whether a token was sent).
func TraceEnabled() bool {
	return trace.Load()
}

// SetTraceEnabled overrides the SHARKBOX_TRACE setting and returns the
// previous value.
func SetTraceEnabled(v bool) bool {
	return trace.Swap(v)
}
