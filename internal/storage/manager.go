package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// Manager owns the form/instance tree rooted at a data directory. It is
// constructed once at process start with an injected root, so tests isolate
// themselves with distinct roots. The file tree is authoritative; the
// in-memory form cache is strictly derived and rebuilt from the tree
// whenever the two could diverge.
type Manager struct {
	root   string
	cipher *crypto.Cipher
	logger *slog.Logger

	mu    sync.Mutex
	forms map[string]types.FormMetadata
}

// NewManager returns a manager over root, creating the canonical subtrees.
// Creating already-existing directories is a success.
func NewManager(root string, cipher *crypto.Cipher, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		root:   root,
		cipher: cipher,
		logger: logger,
		forms:  make(map[string]types.FormMetadata),
	}
	for _, dir := range []string{m.formsDir(), filepath.Join(root, instancesDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return m, nil
}

// SaveForm writes the form definition, its metadata side-file, and any media
// files, then refreshes the cache entry. The definition format is detected
// by sniffing the content.
func (m *Manager) SaveForm(meta types.FormMetadata, definition []byte, media map[string][]byte) error {
	if meta.FormID == "" {
		return fmt.Errorf("form id must not be empty")
	}
	format, err := sniffFormat(definition)
	if err != nil {
		return fmt.Errorf("saving form %s: %w", meta.FormID, err)
	}

	dir := m.formDir(meta.FormID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating form dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, definitionFileName(format)), definition); err != nil {
		return fmt.Errorf("writing definition: %w", err)
	}

	now := time.Now().UTC()
	meta.Hash = crypto.Hash(definition)
	// Re-downloading a form keeps the count of instances already saved
	// against it.
	meta.InstanceCount = 0
	if existing, err := m.FormMeta(meta.FormID); err == nil && existing != nil {
		meta.InstanceCount = existing.InstanceCount
	}
	meta.HasMedia = len(media) > 0
	meta.MediaCount = len(media)
	if meta.DownloadedAt.IsZero() {
		meta.DownloadedAt = now
	}
	meta.LastModified = now

	if len(media) > 0 {
		mediaDir := filepath.Join(dir, mediaDirName)
		if err := os.MkdirAll(mediaDir, 0755); err != nil {
			return fmt.Errorf("creating media dir: %w", err)
		}
		for name, content := range media {
			if err := writeFileAtomic(filepath.Join(mediaDir, name), content); err != nil {
				return fmt.Errorf("writing media %s: %w", name, err)
			}
		}
	}

	if err := m.writeFormMeta(meta); err != nil {
		return err
	}

	m.mu.Lock()
	m.forms[meta.FormID] = meta
	m.mu.Unlock()
	return nil
}

// FormMeta returns the metadata for formID, cache-first with a tree
// fallback that repopulates the cache on hit. Absence is (nil, nil).
func (m *Manager) FormMeta(formID string) (*types.FormMetadata, error) {
	m.mu.Lock()
	if meta, ok := m.forms[formID]; ok {
		m.mu.Unlock()
		return &meta, nil
	}
	m.mu.Unlock()

	meta, err := m.readFormMeta(m.formMetaPath(formID))
	if err != nil || meta == nil {
		return nil, err
	}

	m.mu.Lock()
	m.forms[formID] = *meta
	m.mu.Unlock()
	return meta, nil
}

// FormDefinition returns the raw definition content for formID, or
// (nil, nil) when the form is absent — an expected, checked condition.
func (m *Manager) FormDefinition(formID string) ([]byte, error) {
	if meta, err := m.FormMeta(formID); err != nil {
		return nil, err
	} else if meta == nil {
		return nil, nil
	}

	for _, name := range []string{"definition.json", "definition.xml"} {
		data, err := os.ReadFile(filepath.Join(m.formDir(formID), name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading definition for %s: %w", formID, err)
		}
	}
	return nil, nil
}

// ListForms returns all form metadata, sorted by form id. The cached list is
// served unless forceScan is set or the cache is empty; a scan walks the
// tree, migrates legacy entries found outside forms/ into place, and rebuilds
// the cache from what the tree actually holds.
func (m *Manager) ListForms(forceScan bool) ([]types.FormMetadata, error) {
	m.mu.Lock()
	if !forceScan && len(m.forms) > 0 {
		list := make([]types.FormMetadata, 0, len(m.forms))
		for _, meta := range m.forms {
			list = append(list, meta)
		}
		m.mu.Unlock()
		sort.Slice(list, func(i, j int) bool { return list[i].FormID < list[j].FormID })
		return list, nil
	}
	m.mu.Unlock()

	if err := m.migrateLegacyForms(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.formsDir())
	if err != nil {
		return nil, fmt.Errorf("scanning forms: %w", err)
	}

	scanned := make(map[string]types.FormMetadata)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := m.readFormMeta(filepath.Join(m.formsDir(), entry.Name(), metadataFileName))
		if err != nil || meta == nil {
			// Partially-written directory: skip it, never fail the scan.
			m.logger.Warn("skipping form entry without readable metadata",
				"dir", entry.Name(), "error", err)
			continue
		}
		scanned[meta.FormID] = *meta
	}

	m.mu.Lock()
	m.forms = scanned
	list := make([]types.FormMetadata, 0, len(scanned))
	for _, meta := range scanned {
		list = append(list, meta)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].FormID < list[j].FormID })
	return list, nil
}

// migrateLegacyForms reconciles form directories found directly under the
// data root (the layout of older releases) into the canonical forms/
// subtree. Migration is skipped when a canonical entry already exists, so a
// repeated scan never duplicates a form.
func (m *Manager) migrateLegacyForms() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("scanning data root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == formsDirName || name == instancesDirName || name[0] == '.' || name == "kv" {
			continue
		}
		legacyDir := filepath.Join(m.root, name)
		meta, err := m.readFormMeta(filepath.Join(legacyDir, metadataFileName))
		if err != nil || meta == nil || meta.FormID == "" {
			// Not a legacy form directory; leave it alone.
			continue
		}

		canonical := m.formDir(meta.FormID)
		if _, err := os.Stat(canonical); err == nil {
			m.logger.Warn("legacy form already exists canonically, leaving in place",
				"form_id", meta.FormID, "dir", name)
			continue
		}
		if err := os.Rename(legacyDir, canonical); err != nil {
			m.logger.Warn("migrating legacy form failed",
				"form_id", meta.FormID, "error", err)
			continue
		}
		m.logger.Info("migrated legacy form into canonical layout",
			"form_id", meta.FormID, "from", name)
	}
	return nil
}

// DeleteForm removes the form's definition tree, its entire instance tree,
// and the cache entry. Both removals must succeed; a partial deletion is a
// reported error, never a silent partial state.
func (m *Manager) DeleteForm(formID string) error {
	formErr := os.RemoveAll(m.formDir(formID))
	instErr := os.RemoveAll(m.instancesDir(formID))

	m.mu.Lock()
	delete(m.forms, formID)
	m.mu.Unlock()

	if formErr != nil || instErr != nil {
		return fmt.Errorf("%w: form=%v instances=%v",
			types.ErrPartialDelete, formErr, instErr)
	}
	return nil
}

// adjustInstanceCount shifts the owning form's instance count by delta,
// clamped at zero, updating both side-file and cache.
func (m *Manager) adjustInstanceCount(formID string, delta int) error {
	meta, err := m.FormMeta(formID)
	if err != nil {
		return err
	}
	if meta == nil {
		// Instances can outlive a deleted form's metadata; nothing to adjust.
		return nil
	}
	meta.InstanceCount += delta
	if meta.InstanceCount < 0 {
		meta.InstanceCount = 0
	}
	meta.LastModified = time.Now().UTC()
	if err := m.writeFormMeta(*meta); err != nil {
		return err
	}
	m.mu.Lock()
	m.forms[formID] = *meta
	m.mu.Unlock()
	return nil
}

func (m *Manager) writeFormMeta(meta types.FormMetadata) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding form metadata: %w", err)
	}
	if err := writeFileAtomic(m.formMetaPath(meta.FormID), raw); err != nil {
		return fmt.Errorf("writing form metadata: %w", err)
	}
	return nil
}

// readFormMeta reads a metadata side-file. A missing file is (nil, nil).
func (m *Manager) readFormMeta(path string) (*types.FormMetadata, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var meta types.FormMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &meta, nil
}
