package types

import "time"

// Config holds backend selection and tuning parameters for the collection
// core. Zero values fall back to the documented defaults at read time via the
// getter methods, so a partially filled Config from YAML is usable as-is.
type Config struct {
	Backend  string `json:"backend" yaml:"backend"`
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	MaxEdits int    `json:"max_edits" yaml:"max_edits"`

	// DebounceMillis is the draft save coalescing window in milliseconds.
	DebounceMillis int `json:"debounce_ms" yaml:"debounce_ms"`

	// EncryptDrafts controls whether draft records are passed through the
	// cipher before hitting the persistence adapter. Instance payloads are
	// always encrypted regardless of this setting.
	EncryptDrafts bool `json:"encrypt_drafts" yaml:"encrypt_drafts"`
}

// Supported persistence backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Tuning defaults.
const (
	DefaultMaxEdits = 100
	DefaultDebounce = 800 * time.Millisecond
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendMemory: true,
	BackendFile:   true,
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend != BackendMemory && c.DataDir == "" {
		return ErrDataDirEmpty
	}
	return nil
}

// GetMaxEdits returns the edit-history cap, defaulting to DefaultMaxEdits.
func (c Config) GetMaxEdits() int {
	if c.MaxEdits > 0 {
		return c.MaxEdits
	}
	return DefaultMaxEdits
}

// GetDebounce returns the draft save coalescing window, defaulting to
// DefaultDebounce.
func (c Config) GetDebounce() time.Duration {
	if c.DebounceMillis > 0 {
		return time.Duration(c.DebounceMillis) * time.Millisecond
	}
	return DefaultDebounce
}
