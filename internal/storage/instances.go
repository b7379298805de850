package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/queue"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// SaveInstance encrypts payload and writes it with its metadata side-file
// and media. metaPartial is merged over an existing or default metadata
// record: non-zero fields win. Saving a new instance increments the owning
// form's instance count.
func (m *Manager) SaveInstance(formID, instanceID string, payload []byte, media map[string][]byte, metaPartial types.InstanceMetadata) error {
	if formID == "" || instanceID == "" {
		return fmt.Errorf("form id and instance id must not be empty")
	}

	dir := m.instanceDir(formID, instanceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating instance dir: %w", err)
	}

	existing, err := m.InstanceMeta(formID, instanceID)
	if err != nil {
		return err
	}

	token, err := m.cipher.Encrypt(string(payload))
	if err != nil {
		return fmt.Errorf("encrypting instance %s: %w", instanceID, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, payloadFileName), []byte(token)); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}

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

	meta := mergeInstanceMeta(existing, metaPartial, formID, instanceID, media)
	if err := m.writeInstanceMeta(meta); err != nil {
		return err
	}

	if existing == nil {
		if err := m.adjustInstanceCount(formID, +1); err != nil {
			return err
		}
	}
	return nil
}

// mergeInstanceMeta overlays the non-zero fields of partial on base (or a
// fresh default when base is nil).
func mergeInstanceMeta(base *types.InstanceMetadata, partial types.InstanceMetadata, formID, instanceID string, media map[string][]byte) types.InstanceMetadata {
	now := time.Now().UTC()

	meta := types.InstanceMetadata{
		InstanceID: instanceID,
		FormID:     formID,
		Status:     types.InstanceIncomplete,
		CreatedAt:  now,
		MediaFiles: []string{},
	}
	if base != nil {
		meta = *base
	}

	if partial.DisplayName != "" {
		meta.DisplayName = partial.DisplayName
	}
	if partial.FormVersion != "" {
		meta.FormVersion = partial.FormVersion
	}
	if partial.Status != "" {
		meta.Status = partial.Status
	}
	if partial.CanEditWhenComplete {
		meta.CanEditWhenComplete = true
	}

	for name := range media {
		found := false
		for _, existing := range meta.MediaFiles {
			if existing == name {
				found = true
				break
			}
		}
		if !found {
			meta.MediaFiles = append(meta.MediaFiles, name)
		}
	}
	sort.Strings(meta.MediaFiles)
	meta.HasMedia = len(meta.MediaFiles) > 0
	meta.UpdatedAt = now
	return meta
}

// InstanceData reads and decrypts the instance payload. When only the legacy
// unencrypted file exists it is returned as-is; the encrypted file is
// preferred when both are present. Absence is (nil, nil); a decryption
// failure is surfaced, never partial data.
func (m *Manager) InstanceData(formID, instanceID string) ([]byte, error) {
	dir := m.instanceDir(formID, instanceID)

	token, err := os.ReadFile(filepath.Join(dir, payloadFileName))
	if err == nil {
		plaintext, derr := m.cipher.Decrypt(string(token))
		if derr != nil {
			return nil, fmt.Errorf("instance %s: %w", instanceID, derr)
		}
		return []byte(plaintext), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading payload for %s: %w", instanceID, err)
	}

	legacy, err := os.ReadFile(filepath.Join(dir, legacyPayloadFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading legacy payload for %s: %w", instanceID, err)
	}
	return legacy, nil
}

// InstanceMeta returns the metadata side-file for an instance, or (nil, nil)
// when absent.
func (m *Manager) InstanceMeta(formID, instanceID string) (*types.InstanceMetadata, error) {
	raw, err := os.ReadFile(m.instanceMetaPath(formID, instanceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading instance metadata: %w", err)
	}
	var meta types.InstanceMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding instance metadata: %w", err)
	}
	return &meta, nil
}

// ListInstances returns metadata for every instance of formID, sorted by
// instance id. Entries with missing or unreadable metadata are skipped, not
// fatal: a half-written directory is a recoverable state.
func (m *Manager) ListInstances(formID string) ([]types.InstanceMetadata, error) {
	entries, err := os.ReadDir(m.instancesDir(formID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning instances of %s: %w", formID, err)
	}

	var list []types.InstanceMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := m.InstanceMeta(formID, entry.Name())
		if err != nil || meta == nil {
			m.logger.Warn("skipping instance entry without readable metadata",
				"form_id", formID, "dir", entry.Name(), "error", err)
			continue
		}
		list = append(list, *meta)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].InstanceID < list[j].InstanceID })
	return list, nil
}

// DeleteInstance removes the instance directory and decrements the owning
// form's instance count.
func (m *Manager) DeleteInstance(formID, instanceID string) error {
	existing, err := m.InstanceMeta(formID, instanceID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(m.instanceDir(formID, instanceID)); err != nil {
		return fmt.Errorf("deleting instance %s: %w", instanceID, err)
	}
	if existing != nil {
		return m.adjustInstanceCount(formID, -1)
	}
	return nil
}

// UpdateInstanceStatus transitions the instance's status and persists the
// side-file. Updating an absent instance is an error: status changes are
// explicit mutations, not best-effort.
func (m *Manager) UpdateInstanceStatus(formID, instanceID, status string) error {
	meta, err := m.InstanceMeta(formID, instanceID)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("instance %s/%s not found", formID, instanceID)
	}
	if err := meta.SetStatus(status); err != nil {
		return fmt.Errorf("instance %s: %w", instanceID, err)
	}
	return m.writeInstanceMeta(*meta)
}

// FinalizeInstance reads the saved payload back, stamps its integrity hash
// into the metadata, flips the status to complete, and enqueues the instance
// for submission. This is the sole bridge between storage and the queue.
func (m *Manager) FinalizeInstance(formID, instanceID string, q *queue.Queue) error {
	data, err := m.InstanceData(formID, instanceID)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("instance %s/%s has no payload", formID, instanceID)
	}

	meta, err := m.InstanceMeta(formID, instanceID)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("instance %s/%s not found", formID, instanceID)
	}

	meta.IntegrityHash = crypto.Hash(data)
	if meta.Status != types.InstanceComplete {
		if err := meta.SetStatus(types.InstanceComplete); err != nil {
			return fmt.Errorf("finalizing instance %s: %w", instanceID, err)
		}
	}
	if err := m.writeInstanceMeta(*meta); err != nil {
		return err
	}

	if err := q.Add(formID, instanceID, data); err != nil {
		return fmt.Errorf("enqueueing instance %s: %w", instanceID, err)
	}
	return nil
}

func (m *Manager) writeInstanceMeta(meta types.InstanceMetadata) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding instance metadata: %w", err)
	}
	if err := writeFileAtomic(m.instanceMetaPath(meta.FormID, meta.InstanceID), raw); err != nil {
		return fmt.Errorf("writing instance metadata: %w", err)
	}
	return nil
}
