// Shared helpers for surveylens CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/draft"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/queue"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/storage"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// app bundles the live collaborators behind every subcommand. The caller
// must defer close().
type app struct {
	cfg    types.Config
	kv     kvstore.Store
	cipher *crypto.Cipher
	store  *storage.Manager
	queue  *queue.Queue
}

// openApp resolves the data directory and wires the persistence adapter,
// keychain, storage manager, and submission queue over it.
func openApp() (*app, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfg := loadedConfig
	cfg.DataDir = dataDir
	if cfg.Backend == "" {
		cfg.Backend = defaultBackend
	}

	kv, err := kvstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	secrets, err := crypto.NewFileSecretStore(filepath.Join(dataDir, "keys"))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	cipher := crypto.NewCipher(crypto.NewKeychain(secrets))

	mgr, err := storage.NewManager(dataDir, cipher, nil)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &app{
		cfg:    cfg,
		kv:     kv,
		cipher: cipher,
		store:  mgr,
		queue:  queue.New(kv),
	}, nil
}

func (a *app) close() {
	a.kv.Close()
}

// openDraft opens the draft store for one instance with the configured
// tuning. CLI invocations are one-shot, so every mutation is followed by
// SaveNow rather than relying on the debounce timer.
func (a *app) openDraft(formID, instanceID string) (*draft.Store, error) {
	opts := draft.Options{
		Scheduler: draft.NewTimerScheduler(a.cfg.GetDebounce()),
		MaxEdits:  a.cfg.GetMaxEdits(),
	}
	if a.cfg.EncryptDrafts {
		opts.Cipher = a.cipher
	}
	return draft.Open(a.kv, formID, instanceID, opts)
}

// emit prints v as indented JSON when --json is set, otherwise calls plain.
func emit(v any, plain func()) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}

// parseValueArg interprets a command-line value: valid JSON is used as the
// structured value, anything else is taken as a raw string.
func parseValueArg(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
