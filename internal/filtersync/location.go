package filtersync

import (
	"context"
	"net/url"
	"sync"
)

// MemoryLocation is a Location held in memory. The HTTP layer seeds it from the
// request URL and reports the replaced query back to the browser.
type MemoryLocation struct {
	mu       sync.Mutex
	path     string
	query    url.Values
	replaces int
}

var _ Location = (*MemoryLocation)(nil)

// NewMemoryLocation returns a location at path with a copy of query.
func NewMemoryLocation(path string, query url.Values) *MemoryLocation {
	return &MemoryLocation{path: path, query: cloneValues(query)}
}

func (l *MemoryLocation) Query(_ context.Context) (url.Values, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.query), nil
}

func (l *MemoryLocation) Replace(_ context.Context, q url.Values) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = cloneValues(q)
	l.replaces++
	return nil
}

// URL renders the current path and query.
func (l *MemoryLocation) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := url.URL{Path: l.path, RawQuery: l.query.Encode()}
	return u.String()
}

// Replaces returns how many times the query was replaced.
func (l *MemoryLocation) Replaces() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaces
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
