package backend

import (
	"context"
	"time"

	"sitereports/internal/reports"
	"sitereports/internal/services"
	"sitereports/internal/storage"
)

// CleanupFunc releases resources opened by the factory.
type CleanupFunc func() error

// Result bundles the collaborators the reports screen runs on.
type Result struct {
	Fetcher     reports.Fetcher
	Preferences storage.Preferences
	// Publisher is nil when AMQP is not configured or unreachable at startup.
	Publisher services.ExportPublisher
	// Ping checks the preferences store for readiness probes.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
	CreateFetcher(config Config) (reports.Fetcher, error)
}

// Config holds configuration for backend creation
type Config struct {
	Source SourceType

	// api source
	ReportsAPIURL     string
	ReportsAPIToken   string
	ReportsAPITimeout time.Duration

	// memory source
	DataDirectory string

	Preferences  PreferencesType
	SQLiteDBPath string

	// Optional export events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// SourceType selects where report datasets come from.
type SourceType string

// PreferencesType selects where filter preferences are persisted.
type PreferencesType string

const (
	APISource    SourceType = "api"
	MemorySource SourceType = "memory"

	SQLitePreferences PreferencesType = "sqlite"
	MemoryPreferences PreferencesType = "memory"
)

// String implements fmt.Stringer
func (s SourceType) String() string {
	return string(s)
}

// IsValid returns true if the source type is known
func (s SourceType) IsValid() bool {
	switch s {
	case APISource, MemorySource:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (p PreferencesType) String() string {
	return string(p)
}

// IsValid returns true if the preferences type is known
func (p PreferencesType) IsValid() bool {
	switch p {
	case SQLitePreferences, MemoryPreferences:
		return true
	default:
		return false
	}
}
