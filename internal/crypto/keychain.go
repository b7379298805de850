package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// masterKeyAlias is the secret store entry holding the hex-encoded master key.
const masterKeyAlias = "surveylens.master"

// masterKeySize is the master key length in bytes (256 bits).
const masterKeySize = 32

// SecretStore is the OS-backed secret storage the keychain materializes the
// master key from. Get returns (secret, found, error); a missing alias is not
// an error.
type SecretStore interface {
	Get(alias string) (string, bool, error)
	Set(alias, secret string) error
}

// Keychain lazily creates and caches the process-wide master key. The key is
// generated once, persisted through the secret store, and read-only
// thereafter; it is never handed to callers outside this package.
type Keychain struct {
	store SecretStore

	mu  sync.Mutex
	key []byte
}

// NewKeychain returns a Keychain over the given secret store.
func NewKeychain(store SecretStore) *Keychain {
	return &Keychain{store: store}
}

// MasterKey returns the cached master key, loading it from the secret store
// or creating and persisting a fresh 256-bit random key on first use. Secret
// store failure is fatal to the calling operation.
func (k *Keychain) MasterKey() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key != nil {
		return k.key, nil
	}

	secret, found, err := k.store.Get(masterKeyAlias)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrKeyStore, err)
	}
	if found {
		key, err := hex.DecodeString(secret)
		if err != nil || len(key) != masterKeySize {
			return nil, fmt.Errorf("%w: stored master key is corrupt", types.ErrKeyStore)
		}
		k.key = key
		return k.key, nil
	}

	key := make([]byte, masterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating master key: %w", err)
	}
	if err := k.store.Set(masterKeyAlias, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrKeyStore, err)
	}
	k.key = key
	return k.key, nil
}

// MemorySecretStore is an in-process SecretStore for tests and ephemeral use.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemorySecretStore returns an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{secrets: make(map[string]string)}
}

// Get returns the secret for alias if present.
func (s *MemorySecretStore) Get(alias string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[alias]
	return secret, ok, nil
}

// Set stores the secret under alias.
func (s *MemorySecretStore) Set(alias, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[alias] = secret
	return nil
}

// FileSecretStore keeps one secret per file under a directory, mode 0600.
// It stands in for the platform keystore on hosts without one.
type FileSecretStore struct {
	dir string
}

// NewFileSecretStore returns a store rooted at dir, creating it if needed.
func NewFileSecretStore(dir string) (*FileSecretStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating secret dir: %w", err)
	}
	return &FileSecretStore{dir: dir}, nil
}

// Get reads the secret file for alias. A missing file is (not found), not an
// error.
func (s *FileSecretStore) Get(alias string) (string, bool, error) {
	data, err := os.ReadFile(s.path(alias))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Set writes the secret file for alias with owner-only permissions.
func (s *FileSecretStore) Set(alias, secret string) error {
	return os.WriteFile(s.path(alias), []byte(secret), 0600)
}

func (s *FileSecretStore) path(alias string) string {
	return filepath.Join(s.dir, alias+".secret")
}
