// Package memory serves report datasets from JSON fixtures, filtered the way
// the REST API filters them. It backs local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sitereports/internal/core"
	"sitereports/internal/reports"
)

type Store struct {
	mu       sync.RWMutex
	dir      string
	datasets map[core.Tab]core.Dataset
	failures map[core.Tab]error
}

var _ reports.Fetcher = (*Store)(nil)

// New returns a store seeded with the given unfiltered datasets.
func New(datasets ...core.Dataset) *Store {
	s := &Store{datasets: map[core.Tab]core.Dataset{}, failures: map[core.Tab]error{}}
	for _, ds := range datasets {
		s.datasets[ds.Tab()] = ds
	}
	return s
}

// NewFromDir returns a store that lazily reads <dir>/<tab>.json. A missing
// file serves an empty dataset.
func NewFromDir(dir string) *Store {
	s := New()
	s.dir = dir
	return s
}

// Put replaces the unfiltered dataset for its tab.
func (s *Store) Put(ds core.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.Tab()] = ds
}

// FailWith makes every fetch of tab fail with err until cleared with nil.
func (s *Store) FailWith(tab core.Tab, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, tab)
		return
	}
	s.failures[tab] = err
}

// Fetch returns the dataset for tab restricted to the filter's dates, site and supervisor.
func (s *Store) Fetch(ctx context.Context, tab core.Tab, f core.Filter) (core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, &reports.NetworkError{Tab: tab, Err: err}
	}
	if !tab.IsValid() {
		return nil, core.ErrUnknownTab
	}

	s.mu.RLock()
	failure := s.failures[tab]
	s.mu.RUnlock()
	if failure != nil {
		return nil, &reports.NetworkError{Tab: tab, Err: failure}
	}

	raw, err := s.load(tab)
	if err != nil {
		return nil, &reports.NetworkError{Tab: tab, Err: err}
	}
	if !f.AllSites() || !f.AllSupervisors() {
		known, err := s.knownIDs()
		if err != nil {
			return nil, &reports.NetworkError{Tab: tab, Err: err}
		}
		if !known.covers(f) {
			empty, _ := core.NewDataset(tab)
			raw = core.Deref(empty)
		}
	}

	switch ds := raw.(type) {
	case core.WeeklyPayouts:
		return filterWeeks(ds, f), nil
	case core.MaterialCosts:
		return filterMaterials(ds, f), nil
	case core.SupervisorFlow:
		return filterSupervisors(ds, f), nil
	case core.DetailedLogs:
		return filterLogs(ds, f), nil
	default:
		return nil, fmt.Errorf("unexpected dataset %T for %s", raw, tab)
	}
}

func (s *Store) load(tab core.Tab) (core.Dataset, error) {
	s.mu.RLock()
	ds, ok := s.datasets[tab]
	dir := s.dir
	s.mu.RUnlock()
	if ok {
		return ds, nil
	}

	empty, err := core.NewDataset(tab)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return core.Deref(empty), nil
	}

	data, err := os.ReadFile(filepath.Join(dir, string(tab)+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return core.Deref(empty), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	if err := json.Unmarshal(data, empty); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", tab, err)
	}
	ds = core.Deref(empty)

	s.mu.Lock()
	s.datasets[tab] = ds
	s.mu.Unlock()
	return ds, nil
}

// ids are the site and supervisor ids that appear anywhere in the fixtures.
// Weekly rows carry neither, so an id is known when any other report names it.
type ids struct {
	sites       map[string]bool
	supervisors map[string]bool
}

func (k ids) covers(f core.Filter) bool {
	return (f.AllSites() || k.sites[f.Site]) && (f.AllSupervisors() || k.supervisors[f.Supervisor])
}

func (s *Store) knownIDs() (ids, error) {
	k := ids{sites: map[string]bool{}, supervisors: map[string]bool{}}
	for _, tab := range core.Tabs() {
		ds, err := s.load(tab)
		if err != nil {
			return k, err
		}
		switch v := ds.(type) {
		case core.MaterialCosts:
			for _, c := range v.Categories {
				for _, it := range c.Items {
					k.sites[it.SiteID] = true
				}
			}
		case core.SupervisorFlow:
			for _, sup := range v.Supervisors {
				if sup.SupervisorID != "" {
					k.supervisors[sup.SupervisorID] = true
				}
				if sup.SupervisorEmail != "" {
					k.supervisors[sup.SupervisorEmail] = true
				}
				for _, tx := range sup.Transactions {
					k.sites[tx.Site] = true
				}
			}
		case core.DetailedLogs:
			for _, e := range v.Entries {
				k.sites[e.Site] = true
			}
		}
	}
	return k, nil
}

// Weekly rows are aggregates across sites, so past the id check only the date range applies.
// A week is kept when it overlaps the range.
func filterWeeks(ds core.WeeklyPayouts, f core.Filter) core.WeeklyPayouts {
	out := core.WeeklyPayouts{Weeks: []core.WeekPayout{}}
	for _, w := range ds.Weeks {
		if !f.EndDate.IsZero() && f.EndDate.Before(w.WeekStart) {
			continue
		}
		if !f.StartDate.IsZero() && w.WeekEnd.Before(f.StartDate) {
			continue
		}
		out.Weeks = append(out.Weeks, w)
		out.Summary.TotalWages = out.Summary.TotalWages.Add(w.TotalWages)
		out.Summary.TotalAdvances = out.Summary.TotalAdvances.Add(w.TotalAdvances)
	}
	out.Summary.NetPayout = out.Summary.TotalWages.Sub(out.Summary.TotalAdvances)
	return out
}

func filterMaterials(ds core.MaterialCosts, f core.Filter) core.MaterialCosts {
	out := core.MaterialCosts{Categories: []core.MaterialCategory{}}
	for _, c := range ds.Categories {
		cat := core.MaterialCategory{CategoryName: c.CategoryName}
		for _, it := range c.Items {
			if !f.Contains(it.Date) || !matches(f.Site, it.SiteID) {
				continue
			}
			cat.Items = append(cat.Items, it)
			cat.TotalSpent = cat.TotalSpent.Add(it.AmountSpent)
		}
		if len(cat.Items) == 0 {
			continue
		}
		out.Categories = append(out.Categories, cat)
		out.TotalSpent = out.TotalSpent.Add(cat.TotalSpent)
	}
	return out
}

// Supervisor totals are reported as fixtures carry them; only the
// transaction list is restricted. A supervisor whose transactions all fall
// outside the filter is dropped, and so is one without transactions when a
// single site is selected.
func filterSupervisors(ds core.SupervisorFlow, f core.Filter) core.SupervisorFlow {
	out := core.SupervisorFlow{Supervisors: []core.SupervisorBalance{}}
	for _, sup := range ds.Supervisors {
		if !f.AllSupervisors() && sup.SupervisorID != f.Supervisor && sup.SupervisorEmail != f.Supervisor {
			continue
		}
		kept := sup
		kept.Transactions = nil
		for _, tx := range sup.Transactions {
			if f.Contains(tx.Date) && matches(f.Site, tx.Site) {
				kept.Transactions = append(kept.Transactions, tx)
			}
		}
		if len(kept.Transactions) == 0 && (len(sup.Transactions) > 0 || !f.AllSites()) {
			continue
		}
		out.Supervisors = append(out.Supervisors, kept)
	}
	return out
}

func filterLogs(ds core.DetailedLogs, f core.Filter) core.DetailedLogs {
	out := core.DetailedLogs{
		Entries: []core.LogEntry{},
		Summary: core.LogSummary{ByType: map[core.LogType]core.TypeSummary{}},
	}
	for _, e := range ds.Entries {
		if !f.Contains(e.Date) || !matches(f.Site, e.Site) {
			continue
		}
		out.Entries = append(out.Entries, e)
		sum := out.Summary.ByType[e.Type]
		sum.Count++
		sum.Total = sum.Total.Add(e.AmountSpent)
		out.Summary.ByType[e.Type] = sum
	}
	out.Summary.TotalEntries = len(out.Entries)
	return out
}

func matches(want, got string) bool {
	return want == core.All || want == got
}
