package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/monitor-relay/internal/config"
	"github.com/mattjoyce/monitor-relay/internal/storage"
)

// ErrCorrupt marks a store whose contents could not be decoded. Readers treat
// it as empty state.
var ErrCorrupt = errors.New("state store is corrupt")

// Store is a flat string-to-string namespace shared with other writers.
// Set must preserve every key it does not touch.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set re-reads the current namespace, replaces key, and persists the result.
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Open returns the store selected by backend.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case config.BackendFile, "":
		return NewFileStore(path), nil
	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
