package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"sitereports/internal/aggregate"
	"sitereports/internal/amqp"
	"sitereports/internal/core"
	"sitereports/internal/export"
	"sitereports/internal/filtersync"
	applog "sitereports/internal/log"
)

// ExportPublisher announces finished exports. *amqp.Client implements it.
type ExportPublisher interface {
	PublishExportCompleted(ctx context.Context, msg *amqp.ExportCompletedMessage) error
}

// FilterUpdate carries the fields a user changed. Nil fields keep their value;
// dates that do not parse are ignored and an unknown tab selects the default.
type FilterUpdate struct {
	Site       *string
	Supervisor *string
	StartDate  *string
	EndDate    *string
	Tab        *string
}

// View is what the reports screen renders for the active tab.
type View struct {
	Filter  core.Filter       `json:"filter"`
	URL     string            `json:"url"`
	Loading bool              `json:"loading"`
	Data    core.Dataset      `json:"data,omitempty"`
	Summary aggregate.Summary `json:"summary,omitempty"`
	// Error is the banner text of the last failed fetch; Data is then the
	// previous dataset, if any.
	Error string `json:"error,omitempty"`
	// Outdated is set when Data belongs to an earlier filter.
	Outdated bool `json:"outdated,omitempty"`
	// Superseded is set when a newer request replaced this one before it resolved.
	Superseded bool `json:"superseded,omitempty"`
}

// Session is one client's mounted reports screen: its filter, the
// synchronizer that persists it and the coordinator that fetches for it.
type Session struct {
	ID string

	coord     *Coordinator
	storage   filtersync.Storage
	publisher ExportPublisher
	today     func() core.Date

	mu     sync.Mutex
	loc    *filtersync.MemoryLocation
	syncer *filtersync.Synchronizer
	filter core.Filter
}

// NewSession creates an unmounted session. publisher may be nil.
func NewSession(id string, coord *Coordinator, storage filtersync.Storage, publisher ExportPublisher, today func() core.Date) *Session {
	if today == nil {
		today = func() core.Date { return core.DateOf(time.Now()) }
	}
	return &Session{
		ID:        id,
		coord:     coord,
		storage:   storage,
		publisher: publisher,
		today:     today,
	}
}

// Mount loads the filter for a page load at path?query, writes the resolved
// filter back to the URL and storage, and fetches the active tab. Each call is
// a fresh mount; the coordinator cache survives it.
func (s *Session) Mount(ctx context.Context, path string, query url.Values) (View, error) {
	s.mu.Lock()
	loc := filtersync.NewMemoryLocation(path, query)
	syncer := filtersync.New(loc, s.storage, filtersync.WithToday(s.today))
	f, err := syncer.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return View{}, fmt.Errorf("load filter: %w", err)
	}
	if f, err = syncer.Commit(ctx, f); err != nil {
		slog.WarnContext(ctx, "Failed to persist filter",
			applog.FieldComponent, applog.ComponentFilterSync, applog.FieldOperation, applog.OpCommit,
			applog.FieldClientID, s.ID, applog.FieldError, err)
	}
	s.loc, s.syncer, s.filter = loc, syncer, f
	s.mu.Unlock()

	return s.refresh(ctx, f), nil
}

// Apply merges u into the current filter and requests the active tab. An
// update that normalizes to the current filter writes nothing and only
// re-requests when the tab has no fresh data, which retries a failed fetch.
func (s *Session) Apply(ctx context.Context, u FilterUpdate) (View, error) {
	s.mu.Lock()
	if s.syncer == nil {
		s.mu.Unlock()
		return View{}, ErrNotMounted
	}
	next := core.Normalize(merge(s.filter, u))
	if next.Equal(s.filter) {
		f := s.filter
		s.mu.Unlock()
		if st := s.coord.State(f.ActiveTab); st.Fresh() || st.Loading {
			return s.view(f), nil
		}
		return s.refresh(ctx, f), nil
	}
	committed, err := s.syncer.Commit(ctx, next)
	if err != nil {
		slog.WarnContext(ctx, "Failed to persist filter",
			applog.FieldComponent, applog.ComponentFilterSync, applog.FieldOperation, applog.OpCommit,
			applog.FieldClientID, s.ID, applog.FieldError, err)
	}
	s.filter = committed
	s.mu.Unlock()

	return s.refresh(ctx, committed), nil
}

// Current returns the mounted filter and canonical URL.
func (s *Session) Current() (core.Filter, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncer == nil {
		return core.Filter{}, "", false
	}
	return s.filter, s.loc.URL(), true
}

// View renders the active tab without fetching.
func (s *Session) View() (View, error) {
	f, _, ok := s.Current()
	if !ok {
		return View{}, ErrNotMounted
	}
	return s.view(f), nil
}

// Prefetch warms the cache for the inactive tabs under the current filter so
// a later tab switch is served synchronously.
func (s *Session) Prefetch(ctx context.Context) error {
	f, _, ok := s.Current()
	if !ok {
		return ErrNotMounted
	}
	var tabs []core.Tab
	for _, tab := range core.Tabs() {
		if tab != f.ActiveTab {
			tabs = append(tabs, tab)
		}
	}
	err := s.coord.Prefetch(ctx, f, tabs...)
	slog.DebugContext(ctx, "Prefetched inactive tabs",
		applog.FieldComponent, applog.ComponentCoordinator, applog.FieldOperation, applog.OpPrefetch,
		applog.FieldClientID, s.ID, "cached", s.coord.Cached(), applog.FieldSuccess, err == nil)
	return err
}

// Export encodes the dataset currently shown for the active tab. Nothing is
// re-fetched: if the visible data does not belong to the current filter the
// export fails with ErrReportNotLoaded.
func (s *Session) Export(ctx context.Context, format string) (export.File, error) {
	f, _, ok := s.Current()
	if !ok {
		return export.File{}, ErrNotMounted
	}
	ds, err := s.coord.Current(f.ActiveTab, f)
	if err != nil {
		return export.File{}, err
	}
	job, err := export.Build(f.ActiveTab, f, ds)
	if err != nil {
		return export.File{}, err
	}
	file, err := export.EncodeAs(job, format)
	if err != nil {
		return export.File{}, err
	}

	s.publishExport(ctx, f, file, format)
	return file, nil
}

func (s *Session) publishExport(ctx context.Context, f core.Filter, file export.File, format string) {
	if s.publisher == nil {
		return
	}
	if format == "" {
		format = export.FormatCSV
	}
	msg := amqp.NewExportCompletedMessage(string(f.ActiveTab), file.FileName, format, file.Rows)
	msg.Site = f.Site
	msg.Supervisor = f.Supervisor
	msg.StartDate = f.StartDate.String()
	msg.EndDate = f.EndDate.String()
	msg.ClientID = s.ID
	if err := s.publisher.PublishExportCompleted(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish export event",
			applog.FieldComponent, applog.ComponentAMQP, applog.FieldOperation, applog.OpPublish,
			applog.FieldClientID, s.ID, applog.FieldFileName, file.FileName, applog.FieldError, err)
	}
}

func (s *Session) refresh(ctx context.Context, f core.Filter) View {
	_, err := s.coord.Request(ctx, f.ActiveTab, f)
	superseded := errors.Is(err, ErrStaleResponse)

	// The view always describes the latest filter, which may be newer than f.
	latest, _, _ := s.Current()
	v := s.view(latest)
	v.Superseded = superseded
	return v
}

func (s *Session) view(f core.Filter) View {
	st := s.coord.State(f.ActiveTab)
	s.mu.Lock()
	u := ""
	if s.loc != nil {
		u = s.loc.URL()
	}
	s.mu.Unlock()

	v := View{
		Filter:  f,
		URL:     u,
		Loading: st.Loading && st.Desired == f.Key(f.ActiveTab),
		Data:    st.Data,
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	if st.Data != nil {
		v.Outdated = st.DataKey != f.Key(f.ActiveTab)
		if sum, err := aggregate.Summarize(st.Data); err == nil {
			v.Summary = sum
		}
	}
	return v
}

func merge(f core.Filter, u FilterUpdate) core.Filter {
	if u.Site != nil {
		f.Site = strings.TrimSpace(*u.Site)
	}
	if u.Supervisor != nil {
		f.Supervisor = strings.TrimSpace(*u.Supervisor)
	}
	if u.StartDate != nil {
		if d, err := core.ParseDate(*u.StartDate); err == nil {
			f.StartDate = d
		}
	}
	if u.EndDate != nil {
		if d, err := core.ParseDate(*u.EndDate); err == nil {
			f.EndDate = d
		}
	}
	if u.Tab != nil {
		// Unknown names fall back to core.DefaultTab in Normalize, as on Load.
		f.ActiveTab = core.Tab(strings.TrimSpace(*u.Tab))
	}
	return f
}
