package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Report data source
	DataSource        string
	ReportsAPIURL     string
	ReportsAPIToken   string
	ReportsAPITimeout time.Duration
	MemoryDataDir     string

	// Filter preferences ("local storage")
	PreferencesBackend string
	SQLiteDBPath       string

	// AMQP (optional export events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sessions
	SessionTTL  time.Duration
	MaxSessions int

	// Extra proxy networks whose X-Forwarded-For is trusted
	TrustedProxies []string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataSource:        getEnv("DATA_SOURCE", "memory"),
		ReportsAPIURL:     getEnv("REPORTS_API_BASE_URL", ""),
		ReportsAPIToken:   getEnv("REPORTS_API_TOKEN", ""),
		ReportsAPITimeout: getEnvDuration("REPORTS_API_TIMEOUT", 10*time.Second),
		MemoryDataDir:     getEnv("MEMORY_DATA_DIR", "./data"),

		PreferencesBackend: getEnv("PREFERENCES_BACKEND", "sqlite"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/reports.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "sitereports"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_exports"),

		SessionTTL:  getEnvDuration("SESSION_TTL", 30*time.Minute),
		MaxSessions: getEnvInt("MAX_SESSIONS", 500),

		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataSource {
	case "api":
		if c.ReportsAPIURL == "" {
			errors = append(errors, "REPORTS_API_BASE_URL is required when using the api data source")
		} else if u, err := url.Parse(c.ReportsAPIURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid reports API URL '%s': %v", c.ReportsAPIURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid reports API URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
		if c.ReportsAPITimeout <= 0 {
			errors = append(errors, fmt.Sprintf("invalid reports API timeout %v: must be positive", c.ReportsAPITimeout))
		}
	case "memory":
		if c.MemoryDataDir == "" {
			errors = append(errors, "memory data directory cannot be empty when using the memory data source")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data source '%s': must be one of [api memory]", c.DataSource))
	}

	switch c.PreferencesBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite preferences")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid preferences backend '%s': must be one of [memory sqlite]", c.PreferencesBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 24 hours", c.SessionTTL))
	}

	if c.MaxSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid max sessions %d: must be at least 1", c.MaxSessions))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
