package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	applog "sitereports/internal/log"
)

const (
	getPreference = `SELECT value FROM report_preferences WHERE client_id = ? AND key = ?`

	upsertPreference = `INSERT INTO report_preferences (client_id, key, value, updated_at)
VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ Preferences = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	if clientID == "" {
		return "", false, ErrEmptyClientID
	}
	var value string
	err := r.db.QueryRowContext(ctx, getPreference, clientID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, clientID, key, value string) error {
	if clientID == "" {
		return ErrEmptyClientID
	}
	if _, err := r.db.ExecContext(ctx, upsertPreference, clientID, key, value); err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	slog.DebugContext(ctx, "Preference saved",
		applog.FieldComponent, applog.ComponentStorage, applog.FieldClientID, clientID, "key", key)
	return nil
}

