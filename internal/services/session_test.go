package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sitereports/internal/aggregate"
	"sitereports/internal/amqp"
	"sitereports/internal/core"
	"sitereports/internal/export"
	"sitereports/internal/reports/memory"
	"sitereports/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ExportCompletedMessage
	err  error
}

func (p *recordingPublisher) PublishExportCompleted(_ context.Context, msg *amqp.ExportCompletedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func today() core.Date { return core.NewDate(2025, 7, 31) }

func payoutsStore() *memory.Store {
	return memory.New(core.WeeklyPayouts{Weeks: []core.WeekPayout{
		{WeekStart: core.NewDate(2025, 7, 1), WeekEnd: core.NewDate(2025, 7, 7), TotalWages: decimal.NewFromInt(1000), TotalAdvances: decimal.NewFromInt(200)},
		{WeekStart: core.NewDate(2025, 7, 8), WeekEnd: core.NewDate(2025, 7, 14), TotalWages: decimal.NewFromInt(1500), TotalAdvances: decimal.NewFromInt(100)},
	}})
}

func newTestSession(fetcherStore *memory.Store, prefs storage.Preferences, pub ExportPublisher) *Session {
	if prefs == nil {
		prefs = storage.NewMemoryPreferences()
	}
	return NewSession("client-1", NewCoordinator(fetcherStore), storage.ForClient(prefs, "client-1"), pub, today)
}

func TestSession_MountDefaultsAndCanonicalURL(t *testing.T) {
	s := newTestSession(payoutsStore(), nil, nil)

	v, err := s.Mount(context.Background(), "/reports", url.Values{"ref": {"email"}})
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	want := "/reports?endDate=2025-07-31&ref=email&site=all&startDate=2025-07-01&supervisor=all&tab=weekly-payouts"
	if v.URL != want {
		t.Errorf("URL = %s, want %s", v.URL, want)
	}
	if v.Loading || v.Error != "" || v.Data == nil {
		t.Fatalf("unexpected view: %+v", v)
	}
	sum, ok := v.Summary.(aggregate.PayoutTotals)
	if !ok {
		t.Fatalf("summary is %T", v.Summary)
	}
	if !sum.NetPayout.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("net payout = %s, want 2200", sum.NetPayout)
	}
}

func TestSession_MountRestoresStoredFilter(t *testing.T) {
	prefs := storage.NewMemoryPreferences()
	first := newTestSession(payoutsStore(), prefs, nil)
	if _, err := first.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}
	site := "site-north"
	if _, err := first.Apply(context.Background(), FilterUpdate{Site: &site}); err != nil {
		t.Fatal(err)
	}

	// A new session for the same client, as after a server restart.
	reloaded := newTestSession(payoutsStore(), prefs, nil)
	v, err := reloaded.Mount(context.Background(), "/reports", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Filter.Site != "site-north" {
		t.Fatalf("site = %q, want site-north", v.Filter.Site)
	}
}

func TestSession_ApplyNormalizesAndSkipsNoops(t *testing.T) {
	store := payoutsStore()
	s := newTestSession(store, nil, nil)
	if _, err := s.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}

	start, end, tab := "2025-07-20", "2025-07-10", "material-costs"
	v, err := s.Apply(context.Background(), FilterUpdate{StartDate: &start, EndDate: &end, Tab: &tab})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v.Filter.EndDate.String() != "2025-07-20" || v.Filter.ActiveTab != core.TabMaterialCosts {
		t.Fatalf("filter not normalized: %+v", v.Filter)
	}
	if !strings.Contains(v.URL, "endDate=2025-07-20") || !strings.Contains(v.URL, "tab=material-costs") {
		t.Errorf("URL not updated: %s", v.URL)
	}

	bogus := "nope"
	again, err := s.Apply(context.Background(), FilterUpdate{StartDate: &bogus})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !again.Filter.Equal(v.Filter) {
		t.Errorf("unparseable date changed the filter: %+v", again.Filter)
	}

	reset, err := s.Apply(context.Background(), FilterUpdate{Tab: &bogus})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if reset.Filter.ActiveTab != core.DefaultTab {
		t.Errorf("unknown tab = %q, want fallback to %q", reset.Filter.ActiveTab, core.DefaultTab)
	}
	if reset.Filter.StartDate.String() != "2025-07-20" || !strings.Contains(reset.URL, "tab=weekly-payouts") {
		t.Errorf("unexpected filter after unknown tab: %+v %s", reset.Filter, reset.URL)
	}
}

func TestSession_ExportUsesVisibleData(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSession(payoutsStore(), nil, pub)
	if _, err := s.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}

	file, err := s.Export(context.Background(), export.FormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if file.FileName != "weekly-payouts-2025-07-01-to-2025-07-31.csv" || file.Rows != 2 {
		t.Errorf("unexpected file %s with %d rows", file.FileName, file.Rows)
	}
	lines := strings.Split(strings.TrimSuffix(string(file.Content), "\n"), "\n")
	if len(lines) != 3 || lines[0] != "Week Period,Total Wages,Total Advances,Net Payout" {
		t.Fatalf("unexpected content:\n%s", file.Content)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("expected one export event, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.ClientID != "client-1" || msg.StartDate != "2025-07-01" || msg.Rows != 2 {
		t.Errorf("unexpected event %+v", msg)
	}
}

func TestSession_ExportEmptyAndPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := newTestSession(memory.New(), nil, pub)
	if _, err := s.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}

	_, err := s.Export(context.Background(), export.FormatCSV)
	var empty *export.EmptyDatasetError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyDatasetError, got %v", err)
	}

	s2 := newTestSession(payoutsStore(), nil, pub)
	if _, err := s2.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Export(context.Background(), export.FormatCSV); err != nil {
		t.Fatalf("publish failure must not fail the export: %v", err)
	}
}

func TestSession_FailureKeepsPreviousData(t *testing.T) {
	store := payoutsStore()
	s := newTestSession(store, nil, nil)
	if _, err := s.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}

	store.FailWith(core.TabWeeklyPayouts, errors.New("gateway timeout"))
	start := "2025-07-05"
	v, err := s.Apply(context.Background(), FilterUpdate{StartDate: &start})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v.Error == "" || v.Data == nil || !v.Outdated {
		t.Fatalf("expected error banner over previous data: %+v", v)
	}
	if _, err := s.Export(context.Background(), export.FormatCSV); !errors.Is(err, ErrReportNotLoaded) {
		t.Errorf("Export() over outdated data = %v, want ErrReportNotLoaded", err)
	}

	// Re-applying the same filter retries the fetch.
	store.FailWith(core.TabWeeklyPayouts, nil)
	v, err = s.Apply(context.Background(), FilterUpdate{StartDate: &start})
	if err != nil {
		t.Fatalf("retry Apply() error = %v", err)
	}
	if v.Error != "" || v.Outdated {
		t.Fatalf("retry did not recover: %+v", v)
	}
}

func TestSession_PrefetchServesTabSwitchFromCache(t *testing.T) {
	s := newTestSession(payoutsStore(), nil, nil)
	if _, err := s.Mount(context.Background(), "/reports", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Prefetch(context.Background()); err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}
	if got := s.coord.Cached(); got != len(core.Tabs()) {
		t.Fatalf("cached = %d, want %d", got, len(core.Tabs()))
	}
	if st := s.coord.State(core.TabDetailedLogs); st.Data != nil {
		t.Fatal("prefetch must not make data visible")
	}

	tab := string(core.TabDetailedLogs)
	v, err := s.Apply(context.Background(), FilterUpdate{Tab: &tab})
	if err != nil {
		t.Fatal(err)
	}
	if v.Loading || v.Data == nil {
		t.Fatalf("tab switch should be served from cache: %+v", v)
	}
}

func TestSession_NotMounted(t *testing.T) {
	s := newTestSession(payoutsStore(), nil, nil)
	if _, err := s.Apply(context.Background(), FilterUpdate{}); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Apply() = %v, want ErrNotMounted", err)
	}
	if _, err := s.Export(context.Background(), ""); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Export() = %v, want ErrNotMounted", err)
	}
	if err := s.Prefetch(context.Background()); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Prefetch() = %v, want ErrNotMounted", err)
	}
	if _, err := s.View(); !errors.Is(err, ErrNotMounted) {
		t.Errorf("View() = %v, want ErrNotMounted", err)
	}
}

func TestSessionRegistry_ReusesAndExpires(t *testing.T) {
	clock := time.Date(2025, 7, 31, 9, 0, 0, 0, time.UTC)
	r := NewSessionRegistry(payoutsStore(), storage.NewMemoryPreferences(), nil, SessionConfig{MaxSessions: 2, TTL: 30 * time.Minute, Today: today})
	r.SetClock(func() time.Time { return clock })

	a := r.Get("a")
	if r.Get("a") != a {
		t.Fatal("expected the same session for the same client")
	}
	r.Get("b")
	r.Get("c")
	if r.Len() != 2 {
		t.Fatalf("expected size bound 2, got %d", r.Len())
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("least recently used session should be evicted")
	}

	clock = clock.Add(31 * time.Minute)
	if removed := r.Cleaner().CleanExpired(); removed != 2 {
		t.Errorf("expected 2 expired sessions, got %d", removed)
	}
	if r.Len() != 0 {
		t.Errorf("expected no sessions, got %d", r.Len())
	}
}
