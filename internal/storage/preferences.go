// Package storage persists per-client report filter preferences, the durable
// half of the filter synchronizer.
package storage

import (
	"context"
	"errors"

	"sitereports/internal/filtersync"
)

// ErrEmptyClientID is returned when a preference is addressed without a client.
var ErrEmptyClientID = errors.New("empty client id")

// Preferences stores string values per client and key.
type Preferences interface {
	Get(ctx context.Context, clientID, key string) (value string, ok bool, err error)
	Set(ctx context.Context, clientID, key, value string) error
	Close() error
}

// ForClient scopes p to one client so it can back a filter synchronizer.
func ForClient(p Preferences, clientID string) filtersync.Storage {
	return clientStorage{prefs: p, clientID: clientID}
}

type clientStorage struct {
	prefs    Preferences
	clientID string
}

func (c clientStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return c.prefs.Get(ctx, c.clientID, key)
}

func (c clientStorage) Set(ctx context.Context, key, value string) error {
	return c.prefs.Set(ctx, c.clientID, key, value)
}
