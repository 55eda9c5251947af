package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sitereports/internal/core"
	"sitereports/internal/reports"
)

func julyFilter() core.Filter {
	return core.Filter{
		Site:       core.All,
		Supervisor: core.All,
		StartDate:  core.NewDate(2025, 7, 1),
		EndDate:    core.NewDate(2025, 7, 31),
		ActiveTab:  core.TabWeeklyPayouts,
	}
}

func TestClient_RequestURL(t *testing.T) {
	c, err := New("https://api.example.com/v1/", time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name   string
		tab    core.Tab
		mutate func(f *core.Filter)
		want   string
	}{
		{
			name:   "all sites and supervisors",
			tab:    core.TabWeeklyPayouts,
			mutate: func(f *core.Filter) {},
			want:   "https://api.example.com/v1/reports/weekly-payouts?end_date=2025-07-31&start_date=2025-07-01",
		},
		{
			name:   "specific site and supervisor",
			tab:    core.TabSupervisorFlow,
			mutate: func(f *core.Filter) { f.Site = "s1"; f.Supervisor = "u7" },
			want:   "https://api.example.com/v1/reports/supervisor-flow?end_date=2025-07-31&site_id=s1&start_date=2025-07-01&supervisor_id=u7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := julyFilter()
			tt.mutate(&f)
			if got := c.RequestURL(tt.tab, f); got != tt.want {
				t.Errorf("RequestURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClient_FetchDecodesDataset(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"weeks":[
			{"weekStart":"2025-07-01","weekEnd":"2025-07-07","totalWages":1000,"totalAdvances":"200","netPayout":800},
			{"weekStart":"2025-07-08","weekEnd":"2025-07-14","totalWages":1500,"totalAdvances":"100","netPayout":1400}
		],"summary":{"totalWages":2500,"totalAdvances":300,"netPayout":2200}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second, WithToken("secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ds, err := c.Fetch(context.Background(), core.TabWeeklyPayouts, julyFilter())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	wp, ok := ds.(core.WeeklyPayouts)
	if !ok {
		t.Fatalf("Fetch() returned %T, want core.WeeklyPayouts", ds)
	}
	if wp.Len() != 2 {
		t.Fatalf("expected 2 weeks, got %d", wp.Len())
	}
	if !wp.Weeks[1].TotalAdvances.Equal(decimal.NewFromInt(100)) {
		t.Errorf("advances = %s, want 100", wp.Weeks[1].TotalAdvances)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/reports/weekly-payouts" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClient_FetchNon2xxIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), core.TabMaterialCosts, julyFilter())

	var netErr *reports.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *reports.NetworkError, got %v", err)
	}
	if netErr.StatusCode != http.StatusBadGateway || netErr.Tab != core.TabMaterialCosts {
		t.Errorf("unexpected error fields: %+v", netErr)
	}
}

func TestClient_FetchBadBodyIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entries": "nope"`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), core.TabDetailedLogs, julyFilter())

	var netErr *reports.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *reports.NetworkError, got %v", err)
	}
}

func TestClient_FetchUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(url, time.Second)
	_, err := c.Fetch(context.Background(), core.TabWeeklyPayouts, julyFilter())

	var netErr *reports.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *reports.NetworkError, got %v", err)
	}
	if netErr.StatusCode != 0 {
		t.Errorf("expected no status code, got %d", netErr.StatusCode)
	}
}

func TestNew_RejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com", time.Second); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
