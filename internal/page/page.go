// Package page defines the pageable list envelope returned by the forum backend
// and the normalizer that turns any list response into one.
//
// The backend speaks two shapes for list endpoints: a Spring-style pageable
// envelope ({content, number, size, last, totalElements}) and, for some
// endpoints, a bare JSON array. Normalize folds both into Page so callers never
// branch on the shape. Anything else becomes an empty terminal page.
package page

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
)

// DefaultSize is the page size used when a caller does not choose one.
const DefaultSize = 20

// Page is one fetch result from a paged list endpoint.
//
// Last and TotalElements are pointers: a backend that omits them is telling us
// something different from one that sends false or 0.
type Page[T any] struct {
	Content       []T    `json:"content"`
	Number        int    `json:"number"`
	Size          int    `json:"size"`
	Last          *bool  `json:"last,omitempty"`
	TotalElements *int64 `json:"totalElements,omitempty"`
}

// IsLast reports whether the page explicitly marks itself as terminal.
func (p Page[T]) IsLast() bool {
	return p.Last != nil && *p.Last
}

// Total returns totalElements and whether the backend sent it.
func (p Page[T]) Total() (int64, bool) {
	if p.TotalElements == nil {
		return 0, false
	}
	return *p.TotalElements, true
}

// FromSlice wraps a complete list as a single terminal page.
func FromSlice[T any](items []T, number, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	last := true
	total := int64(len(items))
	return Page[T]{
		Content:       items,
		Number:        number,
		Size:          size,
		Last:          &last,
		TotalElements: &total,
	}
}

// Empty returns the terminal page with no content.
func Empty[T any](number, size int) Page[T] {
	return FromSlice[T](nil, number, size)
}

// Normalize converts a raw list response body into a Page. It never fails:
//   - an object carrying a "content" key is decoded and passed through as sent;
//   - an array becomes a single terminal page holding every element;
//   - null, an empty body, scalars, objects without "content" and bodies that do
//     not decode into T all become an empty terminal page.
func Normalize[T any](raw []byte, number, size int) Page[T] {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return Empty[T](number, size)
	}

	switch body[0] {
	case '{':
		var probe struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(body, &probe); err != nil || probe.Content == nil {
			return Empty[T](number, size)
		}
		var p Page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return Empty[T](number, size)
		}
		if p.Content == nil {
			p.Content = []T{}
		}
		return p

	case '[':
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return Empty[T](number, size)
		}
		return FromSlice(items, number, size)
	}

	return Empty[T](number, size)
}

// Query builds the page/size/sort query parameters of a paged request.
// Sort entries are sent as repeated "sort" parameters in the given order.
func Query(number, size int, sort []string) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(number))
	v.Set("size", strconv.Itoa(size))
	for _, s := range sort {
		v.Add("sort", s)
	}
	return v
}

// Asc returns the sort entry "field,asc".
func Asc(field string) string { return field + ",asc" }

// Desc returns the sort entry "field,desc".
func Desc(field string) string { return field + ",desc" }
