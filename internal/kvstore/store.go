// Package kvstore provides the pluggable key/value persistence adapter used
// by the draft store and submission queue. Keys are slash-separated logical
// paths ("drafts/<instanceID>", "queue/submissions"); values are opaque byte
// strings.
package kvstore

import (
	"fmt"
	"path/filepath"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// Store is the uniform contract all backends satisfy.
type Store interface {
	// Get returns the value for key. A missing key is (nil, false, nil),
	// not an error.
	Get(key string) ([]byte, bool, error)

	// Set creates or replaces the value for key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is a success.
	Delete(key string) error

	// List returns all keys with the given prefix, sorted. An empty prefix
	// lists every key.
	List(prefix string) ([]string, error)

	// Close releases backend resources. Idempotent.
	Close() error
}

// Open selects and initializes a backend from the config. The file and
// sqlite backends live under cfg.DataDir; the memory backend ignores it.
func Open(cfg types.Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case types.BackendMemory:
		return NewMemoryStore(), nil
	case types.BackendFile:
		return NewFileStore(filepath.Join(cfg.DataDir, "kv"))
	case types.BackendSQLite:
		return OpenSQLiteStore(filepath.Join(cfg.DataDir, "surveylens.db"))
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend)
	}
}
