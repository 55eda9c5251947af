package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sitereports/internal/core"
	"sitereports/internal/reports"
)

// gatedFetcher blocks each fetch until its key is released, so tests control
// the order in which responses arrive.
type gatedFetcher struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
	calls   atomic.Int64
	fail    map[string]error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
		fail:    map[string]error{},
	}
}

func (g *gatedFetcher) gate(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[key]
	if !ok {
		ch = make(chan struct{})
		g.gates[key] = ch
	}
	return ch
}

func (g *gatedFetcher) release(key string) { close(g.gate(key)) }

func (g *gatedFetcher) Fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	g.calls.Add(1)
	key := f.Key(tab).String()
	g.started <- key
	<-g.gate(key)

	g.mu.Lock()
	err := g.fail[key]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// The dataset encodes its filter's start date so tests can tell responses apart.
	return core.WeeklyPayouts{Weeks: []core.WeekPayout{{WeekStart: f.StartDate, WeekEnd: f.EndDate, TotalWages: decimal.NewFromInt(1)}}}, nil
}

func filterStarting(day int) core.Filter {
	return core.Filter{
		Site:       core.All,
		Supervisor: core.All,
		StartDate:  core.NewDate(2025, 7, day),
		EndDate:    core.NewDate(2025, 7, 31),
		ActiveTab:  core.TabWeeklyPayouts,
	}
}

func startDateOf(ds core.Dataset) string {
	return ds.(core.WeeklyPayouts).Weeks[0].WeekStart.String()
}

type result struct {
	ds  core.Dataset
	err error
}

func waitStarted(t *testing.T, g *gatedFetcher) string {
	t.Helper()
	select {
	case k := <-g.started:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
		return ""
	}
}

func TestCoordinator_StaleResponseDiscarded(t *testing.T) {
	g := newGatedFetcher()
	c := NewCoordinator(g)
	tab := core.TabWeeklyPayouts
	k1, k2 := filterStarting(1), filterStarting(15)

	first := make(chan result, 1)
	go func() {
		ds, err := c.Request(context.Background(), tab, k1)
		first <- result{ds, err}
	}()
	key1 := waitStarted(t, g)

	second := make(chan result, 1)
	go func() {
		ds, err := c.Request(context.Background(), tab, k2)
		second <- result{ds, err}
	}()
	key2 := waitStarted(t, g)

	// k2 resolves first, then k1.
	g.release(key2)
	r2 := <-second
	if r2.err != nil {
		t.Fatalf("second request error = %v", r2.err)
	}
	g.release(key1)
	r1 := <-first
	if !errors.Is(r1.err, ErrStaleResponse) {
		t.Fatalf("first request error = %v, want ErrStaleResponse", r1.err)
	}

	st := c.State(tab)
	if !st.Fresh() || startDateOf(st.Data) != "2025-07-15" {
		t.Fatalf("visible data is not k2's: %+v", st)
	}
	if st.Loading {
		t.Error("tab still loading")
	}
	if c.Cached() != 2 {
		t.Errorf("expected both responses cached, got %d", c.Cached())
	}
}

func TestCoordinator_CacheHitAppliesSynchronously(t *testing.T) {
	g := newGatedFetcher()
	c := NewCoordinator(g)
	tab := core.TabWeeklyPayouts
	f := filterStarting(1)

	done := make(chan result, 1)
	go func() {
		ds, err := c.Request(context.Background(), tab, f)
		done <- result{ds, err}
	}()
	g.release(waitStarted(t, g))
	if r := <-done; r.err != nil {
		t.Fatalf("Request() error = %v", r.err)
	}

	// Toggle to another range and back; the return trip needs no fetch.
	go func() { _, _ = c.Request(context.Background(), tab, filterStarting(10)) }()
	g.release(waitStarted(t, g))

	ds, err := c.Request(context.Background(), tab, f)
	if err != nil {
		t.Fatalf("cached Request() error = %v", err)
	}
	if startDateOf(ds) != "2025-07-01" {
		t.Fatalf("wrong dataset from cache")
	}
	if n := g.calls.Load(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
	if got, err := c.Current(tab, f); err != nil || startDateOf(got) != "2025-07-01" {
		t.Fatalf("Current() = %v, %v", got, err)
	}
}

func TestCoordinator_FailureKeepsLastGoodData(t *testing.T) {
	g := newGatedFetcher()
	c := NewCoordinator(g)
	tab := core.TabWeeklyPayouts
	good, bad := filterStarting(1), filterStarting(20)

	done := make(chan result, 1)
	go func() {
		ds, err := c.Request(context.Background(), tab, good)
		done <- result{ds, err}
	}()
	g.release(waitStarted(t, g))
	<-done

	g.fail[bad.Key(tab).String()] = errors.New("502 bad gateway")
	go func() {
		ds, err := c.Request(context.Background(), tab, bad)
		done <- result{ds, err}
	}()
	g.release(waitStarted(t, g))
	r := <-done

	var netErr *reports.NetworkError
	if !errors.As(r.err, &netErr) {
		t.Fatalf("expected *reports.NetworkError, got %v", r.err)
	}
	st := c.State(tab)
	if st.Err == nil || st.Data == nil || startDateOf(st.Data) != "2025-07-01" {
		t.Fatalf("failure should keep previous data: %+v", st)
	}
	if st.Fresh() {
		t.Error("kept data must not count as fresh for the failed key")
	}
	if _, err := c.Current(tab, bad); !errors.Is(err, ErrReportNotLoaded) {
		t.Errorf("Current() for failed key = %v, want ErrReportNotLoaded", err)
	}
}

func TestCoordinator_TabsAreIndependent(t *testing.T) {
	g := newGatedFetcher()
	c := NewCoordinator(g)
	f := filterStarting(1)

	a := make(chan result, 1)
	b := make(chan result, 1)
	go func() {
		ds, err := c.Request(context.Background(), core.TabWeeklyPayouts, f)
		a <- result{ds, err}
	}()
	ka := waitStarted(t, g)
	go func() {
		ds, err := c.Request(context.Background(), core.TabMaterialCosts, f)
		b <- result{ds, err}
	}()
	kb := waitStarted(t, g)

	g.release(kb)
	g.release(ka)
	if r := <-a; r.err != nil {
		t.Fatalf("weekly payouts error = %v", r.err)
	}
	if r := <-b; r.err != nil {
		t.Fatalf("material costs error = %v", r.err)
	}
}

func TestCoordinator_CoalescesIdenticalKeys(t *testing.T) {
	g := newGatedFetcher()
	c := NewCoordinator(g)
	entered := make(chan string, 2)
	c.beforeFlight = func(id string) { entered <- id }
	f := filterStarting(1)

	request := func(results chan<- result) {
		ds, err := c.Request(context.Background(), core.TabWeeklyPayouts, f)
		results <- result{ds, err}
	}
	results := make(chan result, 2)
	go request(results)
	key := waitStarted(t, g)
	go request(results)

	// Both callers missed the cache while the first fetch is still gated.
	for i := 0; i < 2; i++ {
		select {
		case id := <-entered:
			if id != key {
				t.Fatalf("caller entered fetch for %q, want %q", id, key)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("second caller did not reach the shared fetch")
		}
	}
	g.release(key)
	for i := 0; i < 2; i++ {
		if r := <-results; r.err != nil {
			t.Fatalf("request %d error = %v", i, r.err)
		}
	}
	if n := g.calls.Load(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestCoordinator_PrefetchFillsCacheOnly(t *testing.T) {
	var calls atomic.Int64
	fetcher := reports.FetcherFunc(func(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
		calls.Add(1)
		ds, _ := core.NewDataset(tab)
		return core.Deref(ds), nil
	})
	c := NewCoordinator(fetcher)
	f := filterStarting(1)

	if err := c.Prefetch(context.Background(), f, core.Tabs()...); err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}
	if c.Cached() != 4 || calls.Load() != 4 {
		t.Fatalf("cached %d, fetched %d; want 4 and 4", c.Cached(), calls.Load())
	}
	if st := c.State(core.TabMaterialCosts); st.Data != nil {
		t.Fatal("prefetch must not change visible state")
	}

	if _, err := c.Request(context.Background(), core.TabMaterialCosts, f); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if calls.Load() != 4 {
		t.Fatal("request after prefetch should hit the cache")
	}
}

func TestCoordinator_UnknownTab(t *testing.T) {
	c := NewCoordinator(reports.FetcherFunc(func(context.Context, core.Tab, core.Filter) (core.Dataset, error) {
		t.Fatal("fetcher should not be called")
		return nil, nil
	}))
	if _, err := c.Request(context.Background(), "charts", filterStarting(1)); !errors.Is(err, core.ErrUnknownTab) {
		t.Fatalf("expected ErrUnknownTab, got %v", err)
	}
}
