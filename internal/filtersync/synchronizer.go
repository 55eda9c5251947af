package filtersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"sitereports/internal/core"
	applog "sitereports/internal/log"
)

// Synchronizer binds one mounted reports screen to its Location and Storage.
type Synchronizer struct {
	loc   Location
	store Storage
	today func() core.Date

	mu        sync.Mutex
	mounted   bool
	state     core.Filter
	committed *core.Filter
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithToday overrides the clock used for the default date window.
func WithToday(today func() core.Date) Option {
	return func(s *Synchronizer) { s.today = today }
}

func New(loc Location, store Storage, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		loc:   loc,
		store: store,
		today: func() core.Date { return core.DateOf(time.Now()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load resolves the mounted filter field by field: URL query first, then
// storage, then the default. Values that do not parse count as absent. Only
// the first call reads; later calls return the mounted state.
func (s *Synchronizer) Load(ctx context.Context) (core.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return s.state, nil
	}

	q, err := s.loc.Query(ctx)
	if err != nil {
		return core.Filter{}, fmt.Errorf("read location: %w", err)
	}

	def := core.DefaultFilter(s.today())
	f := core.Filter{
		ActiveTab:  resolveTab(s.lookup(ctx, q, ParamTab, KeyActiveTab)),
		Site:       firstNonBlank(s.lookup(ctx, q, ParamSite, KeySite)),
		Supervisor: firstNonBlank(s.lookup(ctx, q, ParamSupervisor, KeySupervisor)),
		StartDate:  resolveDate(s.lookup(ctx, q, ParamStartDate, KeyStartDate)),
		EndDate:    resolveDate(s.lookup(ctx, q, ParamEndDate, KeyEndDate)),
	}
	f = complete(f, def)

	s.state = f
	s.mounted = true
	fields := applog.NewFields().
		WithComponent(applog.ComponentFilterSync).
		WithOperation(applog.OpLoad).
		WithFilter(string(f.ActiveTab), f.Site, f.Supervisor, f.StartDate.String(), f.EndDate.String())
	slog.DebugContext(ctx, "Filter loaded", fields.ToSlice()...)
	return f, nil
}

// Commit normalizes f and writes every field to the URL (replacing, never
// pushing) and to storage. Committing a state equal to the last committed one
// writes nothing. The normalized state is returned.
func (s *Synchronizer) Commit(ctx context.Context, f core.Filter) (core.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f = complete(f, core.DefaultFilter(s.today()))
	s.state = f
	s.mounted = true
	if s.committed != nil && s.committed.Equal(f) {
		return f, nil
	}

	var errs []error
	values := fieldValues(f)

	q, err := s.loc.Query(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("read location: %w", err))
	} else {
		for i, param := range Params() {
			q.Set(param, values[i])
		}
		if err := s.loc.Replace(ctx, q); err != nil {
			errs = append(errs, fmt.Errorf("replace location: %w", err))
		}
	}

	for i, key := range Keys() {
		if err := s.store.Set(ctx, key, values[i]); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", key, err))
		}
	}

	if len(errs) > 0 {
		return f, errors.Join(errs...)
	}
	committed := f
	s.committed = &committed
	return f, nil
}

// State returns the current in-memory filter and whether Load or Commit ran.
func (s *Synchronizer) State() (core.Filter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.mounted
}

// lookup returns the URL value and the stored value for one field, in that
// order. Storage failures are logged and treated as absent.
func (s *Synchronizer) lookup(ctx context.Context, q url.Values, param, key string) []string {
	candidates := []string{}
	if vals, ok := q[param]; ok && len(vals) > 0 {
		candidates = append(candidates, vals[0])
	}
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read stored filter value",
			applog.FieldComponent, applog.ComponentFilterSync, "key", key, applog.FieldError, err)
	} else if ok {
		candidates = append(candidates, v)
	}
	return candidates
}

// fieldValues lists f's fields in the order of Params and Keys.
func fieldValues(f core.Filter) []string {
	return []string{
		string(f.ActiveTab),
		f.Site,
		f.StartDate.String(),
		f.EndDate.String(),
		f.Supervisor,
	}
}

// complete fills absent fields from def and normalizes.
func complete(f, def core.Filter) core.Filter {
	if !f.ActiveTab.IsValid() {
		f.ActiveTab = def.ActiveTab
	}
	if strings.TrimSpace(f.Site) == "" {
		f.Site = def.Site
	}
	if strings.TrimSpace(f.Supervisor) == "" {
		f.Supervisor = def.Supervisor
	}
	if f.StartDate.IsZero() {
		f.StartDate = def.StartDate
	}
	if f.EndDate.IsZero() {
		f.EndDate = def.EndDate
	}
	return core.Normalize(f)
}

func resolveTab(candidates []string) core.Tab {
	for _, c := range candidates {
		if tab, err := core.ParseTab(c); err == nil {
			return tab
		}
	}
	return ""
}

func resolveDate(candidates []string) core.Date {
	for _, c := range candidates {
		if d, err := core.ParseDate(c); err == nil {
			return d
		}
	}
	return core.Date{}
}

func firstNonBlank(candidates []string) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return v
		}
	}
	return ""
}
