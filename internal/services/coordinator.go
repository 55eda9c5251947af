package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"sitereports/internal/cache"
	"sitereports/internal/core"
	applog "sitereports/internal/log"
	"sitereports/internal/reports"
)

var (
	// ErrStaleResponse is returned by Request when a newer request for the same
	// tab was issued before this one resolved. The result was dropped.
	ErrStaleResponse = errors.New("stale report response discarded")

	// ErrReportNotLoaded is returned when the visible data does not match the
	// current filter, so there is nothing consistent to export.
	ErrReportNotLoaded = errors.New("report not loaded for current filter")

	// ErrNotMounted is returned by session operations that need a mounted filter.
	ErrNotMounted = errors.New("reports session not mounted")
)

// TabState is what the screen shows for one tab.
type TabState struct {
	// Desired is the key of the most recent request for the tab.
	Desired core.Key
	Loading bool
	// Data is the last successfully applied dataset, kept across failures.
	Data    core.Dataset
	DataKey core.Key
	Err     *reports.NetworkError
}

// Fresh reports whether Data belongs to the desired key.
func (s TabState) Fresh() bool {
	return s.Data != nil && s.DataKey == s.Desired
}

// Coordinator fetches datasets per tab and guarantees only the response for a
// tab's latest request becomes visible. Superseded requests run to completion;
// their results fill the cache but are never shown.
type Coordinator struct {
	fetcher reports.Fetcher
	flight  singleflight.Group
	cache   cache.Cache[core.Dataset]

	mu   sync.Mutex
	tabs map[core.Tab]*TabState

	// beforeFlight, when set, runs after a cache miss and before the shared call.
	beforeFlight func(id string)
}

func NewCoordinator(fetcher reports.Fetcher) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		cache:   cache.NewSessionCache[core.Dataset](),
		tabs:    map[core.Tab]*TabState{},
	}
}

// Request makes (tab, f) the tab's desired key and resolves it from the
// session cache or the fetcher. It returns ErrStaleResponse when another
// request for the tab superseded this one, and *reports.NetworkError when the
// fetch failed; in that case the tab keeps its previous data.
func (c *Coordinator) Request(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	if !tab.IsValid() {
		return nil, core.ErrUnknownTab
	}
	key := f.Key(tab)
	id := key.String()

	c.mu.Lock()
	st := c.stateLocked(tab)
	st.Desired = key
	if ds, ok := c.cache.Get(id); ok {
		st.Loading = false
		st.Data = ds
		st.DataKey = key
		st.Err = nil
		c.mu.Unlock()
		slog.DebugContext(ctx, "Report served from session cache",
			applog.FieldComponent, applog.ComponentCoordinator,
			applog.FieldTab, tab, "key", id, applog.FieldCacheHit, true)
		return ds, nil
	}
	st.Loading = true
	c.mu.Unlock()

	ds, err := c.fetch(ctx, tab, f)

	c.mu.Lock()
	defer c.mu.Unlock()
	st = c.stateLocked(tab)
	if st.Desired != key {
		slog.DebugContext(ctx, "Discarded stale report response",
			applog.FieldComponent, applog.ComponentCoordinator,
			applog.FieldTab, tab, "key", id, "desired", st.Desired.String())
		return nil, ErrStaleResponse
	}
	st.Loading = false
	if err != nil {
		st.Err = asNetworkError(tab, err)
		return nil, st.Err
	}
	st.Data = ds
	st.DataKey = key
	st.Err = nil
	return ds, nil
}

// fetch coalesces identical in-flight keys and stores successes in the cache.
// The shared call is detached from the caller's cancellation so that one
// caller giving up does not fail the others.
func (c *Coordinator) fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	key := f.Key(tab)
	id := key.String()
	if c.beforeFlight != nil {
		c.beforeFlight(id)
	}
	v, err, shared := c.flight.Do(id, func() (interface{}, error) {
		// A call that finished since the caller's cache miss already stored the key.
		if ds, ok := c.cache.Get(id); ok {
			return ds, nil
		}
		ds, err := c.fetcher.Fetch(context.WithoutCancel(ctx), tab, f)
		if err != nil {
			return nil, err
		}
		c.cache.Set(id, ds)
		return ds, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Report fetch failed",
			applog.FieldComponent, applog.ComponentCoordinator, applog.FieldOperation, applog.OpFetch,
			applog.FieldTab, tab, "key", id, applog.FieldError, err)
		return nil, err
	}
	slog.DebugContext(ctx, "Report fetched",
		applog.FieldComponent, applog.ComponentCoordinator, applog.FieldOperation, applog.OpFetch,
		applog.FieldTab, tab, "key", id, "shared", shared, applog.FieldCacheHit, false,
		applog.FieldRows, v.(core.Dataset).Len())
	return v.(core.Dataset), nil
}

// Prefetch warms the cache for tabs under f concurrently. It never changes a
// tab's desired key or visible data.
func (c *Coordinator) Prefetch(ctx context.Context, f core.Filter, tabs ...core.Tab) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, tab := range tabs {
		if !tab.IsValid() {
			continue
		}
		if _, ok := c.cache.Get(f.Key(tab).String()); ok {
			continue
		}
		g.Go(func() error {
			_, err := c.fetch(gctx, tab, f)
			return err
		})
	}
	return g.Wait()
}

// State returns a copy of the tab's state.
func (c *Coordinator) State(tab core.Tab) TabState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.tabs[tab]; ok {
		return *st
	}
	return TabState{}
}

// Current returns the tab's visible dataset if it was fetched for f.
func (c *Coordinator) Current(tab core.Tab, f core.Filter) (core.Dataset, error) {
	st := c.State(tab)
	key := f.Key(tab)
	if st.Data == nil || st.DataKey != key || st.Desired != key {
		return nil, ErrReportNotLoaded
	}
	return st.Data, nil
}

// Cached reports how many datasets the session cache holds.
func (c *Coordinator) Cached() int {
	return c.cache.Size()
}

func (c *Coordinator) stateLocked(tab core.Tab) *TabState {
	st, ok := c.tabs[tab]
	if !ok {
		st = &TabState{}
		c.tabs[tab] = st
	}
	return st
}

func asNetworkError(tab core.Tab, err error) *reports.NetworkError {
	var netErr *reports.NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}
	return &reports.NetworkError{Tab: tab, Err: err}
}
