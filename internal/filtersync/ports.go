// Package filtersync keeps the report filter in step with the shareable URL
// query and the client's durable key/value storage. State only ever flows one
// way after mount: filter to URL and storage.
package filtersync

import (
	"context"
	"net/url"
)

// URL query parameters.
const (
	ParamTab        = "tab"
	ParamSite       = "site"
	ParamStartDate  = "startDate"
	ParamEndDate    = "endDate"
	ParamSupervisor = "supervisor"
)

// Storage keys, one per filter field.
const (
	KeyActiveTab  = "reports-active-tab"
	KeySite       = "reports-filter-site"
	KeyStartDate  = "reports-filter-startDate"
	KeyEndDate    = "reports-filter-endDate"
	KeySupervisor = "reports-filter-supervisor"
)

type (
	// Location is the address bar: a query string that can be read and replaced
	// in place without adding a history entry.
	Location interface {
		Query(ctx context.Context) (url.Values, error)
		Replace(ctx context.Context, q url.Values) error
	}

	// Storage is a string key/value store that survives reloads.
	Storage interface {
		Get(ctx context.Context, key string) (value string, ok bool, err error)
		Set(ctx context.Context, key, value string) error
	}
)

// Params returns the query parameters owned by the synchronizer.
func Params() []string {
	return []string{ParamTab, ParamSite, ParamStartDate, ParamEndDate, ParamSupervisor}
}

// Keys returns the storage keys owned by the synchronizer.
func Keys() []string {
	return []string{KeyActiveTab, KeySite, KeyStartDate, KeyEndDate, KeySupervisor}
}
