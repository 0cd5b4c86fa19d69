package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means a signed-in request was rejected; the session has
	// been cleared through OnUnauthorized.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string

	// Authenticated is true when the request carried a bearer token.
	Authenticated bool
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		body := e.Body
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		msg += ": " + body
	}
	return msg
}

// Is maps status codes onto the package sentinels. A 401 only matches
// ErrUnauthorized when a token was sent; an anonymous 401 just means the
// endpoint needs a login.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized && e.Authenticated
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// NeedsLogin reports whether err is a 401 for an anonymous request.
func NeedsLogin(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized && !se.Authenticated
}
