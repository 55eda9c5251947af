package backend

import (
	"fmt"
	"strings"

	"sitereports/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	source := SourceType(appConfig.DataSource)
	if !source.IsValid() {
		return Config{}, fmt.Errorf("invalid data source in config: %s", appConfig.DataSource)
	}
	prefs := PreferencesType(appConfig.PreferencesBackend)
	if !prefs.IsValid() {
		return Config{}, fmt.Errorf("invalid preferences backend in config: %s", appConfig.PreferencesBackend)
	}

	return Config{
		Source: source,

		ReportsAPIURL:     appConfig.ReportsAPIURL,
		ReportsAPIToken:   appConfig.ReportsAPIToken,
		ReportsAPITimeout: appConfig.ReportsAPITimeout,
		DataDirectory:     appConfig.MemoryDataDir,

		Preferences:  prefs,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Source.IsValid() {
		return fmt.Errorf("invalid data source: %s (must be one of %s)", c.Source, strings.Join(GetSourceTypeStrings(), ", "))
	}
	if !c.Preferences.IsValid() {
		return fmt.Errorf("invalid preferences backend: %s", c.Preferences)
	}

	switch c.Source {
	case APISource:
		if c.ReportsAPIURL == "" {
			return fmt.Errorf("reports API URL is required for api source")
		}
		if c.ReportsAPITimeout <= 0 {
			return fmt.Errorf("reports API timeout must be positive for api source")
		}
	case MemorySource:
		// DataDirectory defaults to "data"
	}

	if c.Preferences == SQLitePreferences && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite preferences")
	}
	// AMQP is optional, so we don't validate it

	return nil
}

// GetSourceTypes returns all valid data sources
func GetSourceTypes() []SourceType {
	return []SourceType{APISource, MemorySource}
}

// GetSourceTypeStrings returns all valid data source strings
func GetSourceTypeStrings() []string {
	types := GetSourceTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
