package services

import (
	"log/slog"
	"sync"
	"time"

	"sitereports/internal/cache"
	"sitereports/internal/core"
	applog "sitereports/internal/log"
	"sitereports/internal/reports"
	"sitereports/internal/storage"
)

// SessionConfig bounds how many sessions are kept and for how long.
type SessionConfig struct {
	MaxSessions int
	TTL         time.Duration
	// Today overrides the clock for default date windows.
	Today func() core.Date
}

// SessionRegistry hands out one Session per client id. Idle sessions expire
// after TTL and the least recently used is dropped beyond MaxSessions; the
// client's stored preferences outlive both.
type SessionRegistry struct {
	fetcher   reports.Fetcher
	prefs     storage.Preferences
	publisher ExportPublisher
	today     func() core.Date

	mu       sync.Mutex
	sessions *cache.LRUCache[*Session]
}

// NewSessionRegistry creates a registry. publisher may be nil.
func NewSessionRegistry(fetcher reports.Fetcher, prefs storage.Preferences, publisher ExportPublisher, cfg SessionConfig) *SessionRegistry {
	sessions := cache.NewLRUCache[*Session](cfg.MaxSessions, cfg.TTL)
	sessions.OnEvict(func(id string, _ *Session) {
		slog.Debug("Reports session evicted", applog.FieldClientID, id)
	})
	return &SessionRegistry{
		fetcher:   fetcher,
		prefs:     prefs,
		publisher: publisher,
		today:     cfg.Today,
		sessions:  sessions,
	}
}

// Get returns the client's session, creating an unmounted one if needed.
func (r *SessionRegistry) Get(clientID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions.Get(clientID); ok {
		return s
	}
	s := NewSession(clientID, NewCoordinator(r.fetcher), storage.ForClient(r.prefs, clientID), r.publisher, r.today)
	r.sessions.Set(clientID, s)
	return s
}

// Lookup returns the client's session without creating one.
func (r *SessionRegistry) Lookup(clientID string) (*Session, bool) {
	return r.sessions.Get(clientID)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.sessions.Size()
}

// Cleaner exposes expiry so a cache.Manager can sweep idle sessions.
func (r *SessionRegistry) Cleaner() cache.Cleaner {
	return r.sessions
}

// SetClock replaces the registry's expiry clock.
func (r *SessionRegistry) SetClock(now func() time.Time) {
	r.sessions.SetClock(now)
}
