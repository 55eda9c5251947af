// Package reports defines the outbound port for report data and the error it
// reports when a fetch fails.
package reports

import (
	"context"
	"fmt"

	"sitereports/internal/core"
)

// Fetcher loads the dataset for one tab under a filter. Implementations tolerate
// unknown site or supervisor ids by returning an empty dataset.
type Fetcher interface {
	Fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error)

func (fn FetcherFunc) Fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	return fn(ctx, tab, f)
}

// NetworkError is returned when a report could not be fetched: a transport
// failure, a non-2xx status or an undecodable body.
type NetworkError struct {
	Tab        core.Tab
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s report: status %d: %v", e.Tab, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s report: %v", e.Tab, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
