package draft

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// draftKeyPrefix namespaces draft records in the persistence adapter.
// Records are keyed by instance id only; the form id lives in the meta block.
const draftKeyPrefix = "drafts/"

// Options configures a draft store. All fields are optional.
type Options struct {
	// Cipher, when set, encrypts the persisted draft record.
	Cipher *crypto.Cipher

	// Scheduler drives debounced saves. Defaults to a timer scheduler with
	// the config-default window.
	Scheduler Scheduler

	// Validator, when set, gates Finalize.
	Validator *Validator

	// MaxEdits caps the edit history. Defaults to types.DefaultMaxEdits.
	MaxEdits int

	Logger *slog.Logger
}

// Store holds the working state of one form instance. Callers serialize
// mutation calls themselves (single-screen editing); the internal mutex only
// guards against the debounce timer firing concurrently with a caller.
type Store struct {
	mu    sync.Mutex
	state string
	draft types.Draft

	kv       kvstore.Store
	cipher   *crypto.Cipher
	sched    Scheduler
	valid    *Validator
	maxEdits int
	logger   *slog.Logger
}

// Open loads the draft for instanceID from the persistence adapter, creating
// a fresh one (with a generated instance id when instanceID is empty) if none
// is stored. The returned store is active unless the persisted record was
// already finalized or submitted.
func Open(kv kvstore.Store, formID, instanceID string, opts Options) (*Store, error) {
	s := &Store{
		state:    types.DraftLoading,
		kv:       kv,
		cipher:   opts.Cipher,
		sched:    opts.Scheduler,
		valid:    opts.Validator,
		maxEdits: opts.MaxEdits,
		logger:   opts.Logger,
	}
	if s.sched == nil {
		s.sched = NewTimerScheduler(types.DefaultDebounce)
	}
	if s.maxEdits <= 0 {
		s.maxEdits = types.DefaultMaxEdits
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if instanceID == "" {
		instanceID = newInstanceID()
		s.draft = freshDraft(formID, instanceID)
		s.state = types.DraftActive
		return s, nil
	}

	record, found, err := kv.Get(draftKeyPrefix + instanceID)
	if err != nil {
		return nil, fmt.Errorf("loading draft %s: %w", instanceID, err)
	}
	if !found {
		s.draft = freshDraft(formID, instanceID)
		s.state = types.DraftActive
		return s, nil
	}

	if s.cipher != nil {
		plaintext, err := s.cipher.Decrypt(string(record))
		if err != nil {
			return nil, fmt.Errorf("decrypting draft %s: %w", instanceID, err)
		}
		record = []byte(plaintext)
	}
	if err := json.Unmarshal(record, &s.draft); err != nil {
		return nil, fmt.Errorf("decoding draft %s: %w", instanceID, err)
	}
	if s.draft.Data == nil {
		s.draft.Data = make(map[string]any)
	}

	switch {
	case s.draft.Meta.Submitted:
		s.state = types.DraftSubmitted
	case s.draft.Meta.Finalized:
		s.state = types.DraftFinalized
	default:
		s.state = types.DraftActive
	}
	return s, nil
}

func freshDraft(formID, instanceID string) types.Draft {
	now := time.Now().UTC()
	return types.Draft{
		Data: make(map[string]any),
		Meta: types.DraftMeta{
			FormID:     formID,
			InstanceID: instanceID,
			StartedAt:  now,
			Edits:      []types.EditEntry{},
		},
	}
}

// newInstanceID generates a UUID v7 instance id, falling back to v4.
func newInstanceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// State returns the current lifecycle state.
func (s *Store) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InstanceID returns the draft's instance id.
func (s *Store) InstanceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Meta.InstanceID
}

// GetField returns the value at path, or nil when absent. Pure read.
func (s *Store) GetField(path string) (any, error) {
	tokens, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return getPath(s.draft.Data, tokens), nil
}

// Data returns a decoded copy of the draft data.
func (s *Store) Data() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyData(s.draft.Data)
}

// Meta returns a copy of the draft meta block.
func (s *Store) Meta() types.DraftMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.draft.Meta
	meta.Edits = append([]types.EditEntry(nil), s.draft.Meta.Edits...)
	return meta
}

// UpdateField applies a structural update at path and schedules a debounced
// save. Setting a field to a deep-equal value is a no-op: no edit entry, no
// version bump, no save. Mutation on a non-active draft is a logged no-op.
func (s *Store) UpdateField(path string, value any) error {
	tokens, err := parsePath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mutableLocked("update field", path) {
		return nil
	}
	if s.applyLocked(path, tokens, value) {
		s.scheduleSaveLocked()
	}
	return nil
}

// UpdateFields applies a batch of path/value pairs, appending one edit entry
// per changed field and scheduling exactly one save for the whole batch.
func (s *Store) UpdateFields(fields map[string]any) error {
	parsed := make(map[string][]pathToken, len(fields))
	for path := range fields {
		tokens, err := parsePath(path)
		if err != nil {
			return err
		}
		parsed[path] = tokens
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mutableLocked("update fields", "") {
		return nil
	}
	changed := false
	for path, tokens := range parsed {
		if s.applyLocked(path, tokens, fields[path]) {
			changed = true
		}
	}
	if changed {
		s.scheduleSaveLocked()
	}
	return nil
}

// mutableLocked reports whether field mutation is allowed, logging a warning
// (never an error) when it is not.
func (s *Store) mutableLocked(op, path string) bool {
	if s.state == types.DraftActive {
		return true
	}
	s.logger.Warn("draft mutation ignored",
		"op", op, "path", path,
		"instance_id", s.draft.Meta.InstanceID, "state", s.state)
	return false
}

// applyLocked performs one field update, returning whether anything changed.
func (s *Store) applyLocked(path string, tokens []pathToken, value any) bool {
	old := getPath(s.draft.Data, tokens)
	if cmp.Equal(old, value) {
		return false
	}

	s.draft.Data = setPath(s.draft.Data, tokens, value)
	s.draft.Meta.Version++
	s.appendEditLocked(types.EditEntry{
		Path:     path,
		OldValue: old,
		NewValue: value,
		At:       time.Now().UTC(),
	})
	return true
}

// appendEditLocked appends to the audit trail, evicting the oldest entry
// once the cap is reached.
func (s *Store) appendEditLocked(entry types.EditEntry) {
	edits := append(s.draft.Meta.Edits, entry)
	if len(edits) > s.maxEdits {
		edits = edits[len(edits)-s.maxEdits:]
	}
	s.draft.Meta.Edits = edits
}

// scheduleSaveLocked (re)arms the debounce task. The task persists whatever
// the in-memory state is at fire time, so rapid edits coalesce into one
// write of the latest snapshot.
func (s *Store) scheduleSaveLocked() {
	s.sched.Schedule(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.persistLocked(); err != nil {
			// The in-memory edit is kept; the next mutation or explicit
			// save retries.
			s.logger.Warn("debounced draft save failed",
				"instance_id", s.draft.Meta.InstanceID, "error", err)
		}
	})
}

// SaveNow cancels any pending debounced save and persists synchronously.
// Call before any operation that needs a durability guarantee.
func (s *Store) SaveNow() error {
	s.sched.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked writes the draft record through the adapter, stamping SavedAt.
func (s *Store) persistLocked() error {
	s.draft.Meta.SavedAt = time.Now().UTC()
	record, err := json.Marshal(s.draft)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}
	if s.cipher != nil {
		token, err := s.cipher.Encrypt(string(record))
		if err != nil {
			return fmt.Errorf("encrypting draft: %w", err)
		}
		record = []byte(token)
	}
	if err := s.kv.Set(draftKeyPrefix+s.draft.Meta.InstanceID, record); err != nil {
		return fmt.Errorf("persisting draft: %w", err)
	}
	return nil
}

// Finalize validates the draft (when a rule set was supplied), locks it
// against further mutation, persists immediately, and returns the finalized
// snapshot. On validation failure a *ValidationError is returned and the
// draft stays active.
func (s *Store) Finalize() (types.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.DraftActive {
		if s.state == types.DraftLoading {
			return types.Draft{}, types.ErrDraftLoading
		}
		return types.Draft{}, types.ErrDraftLocked
	}

	if s.valid != nil {
		issues, err := s.valid.Validate(s.draft.Data)
		if err != nil {
			return types.Draft{}, err
		}
		if len(issues) > 0 {
			return types.Draft{}, &ValidationError{Issues: issues}
		}
	}

	// Durability gates the transition: the draft only locks once the
	// finalized record is on the adapter. A failed write leaves it active
	// and editable.
	s.sched.Cancel()
	prev := s.draft.Meta
	s.draft.Meta.Finalized = true
	if err := s.persistLocked(); err != nil {
		s.draft.Meta = prev
		return types.Draft{}, err
	}
	s.state = types.DraftFinalized
	return s.snapshotLocked(), nil
}

// MarkSubmitted flags the draft as submitted (implying finalized), stamps
// the sync time, and persists.
func (s *Store) MarkSubmitted() error {
	s.sched.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	prev := s.draft.Meta
	s.draft.Meta.Finalized = true
	s.draft.Meta.Submitted = true
	s.draft.Meta.LastSyncedAt = &now
	if err := s.persistLocked(); err != nil {
		s.draft.Meta = prev
		return err
	}
	s.state = types.DraftSubmitted
	return nil
}

// Clear discards the in-memory and persisted state, leaving an empty active
// draft under the same instance id.
func (s *Store) Clear() error {
	s.sched.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(draftKeyPrefix + s.draft.Meta.InstanceID); err != nil {
		return fmt.Errorf("clearing draft: %w", err)
	}
	s.draft = freshDraft(s.draft.Meta.FormID, s.draft.Meta.InstanceID)
	s.state = types.DraftActive
	return nil
}

// Reset discards all state like Clear and reinitializes under a fresh
// instance id.
func (s *Store) Reset() error {
	if err := s.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Meta.InstanceID = newInstanceID()
	s.draft.Meta.StartedAt = time.Now().UTC()
	return nil
}

// Export produces the submission-ready projection of the draft. Pure
// projection, no side effects.
func (s *Store) Export() types.ExportedInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.ExportedInstance{
		ID:      s.draft.Meta.InstanceID,
		FormID:  s.draft.Meta.FormID,
		Version: s.draft.Meta.Version,
		Data:    copyData(s.draft.Data),
		Meta: types.ExportedMeta{
			InstanceID: s.draft.Meta.InstanceID,
			TimeStart:  s.draft.Meta.StartedAt,
			TimeEnd:    s.draft.Meta.SavedAt,
			Finalized:  s.draft.Meta.Finalized,
			Submitted:  s.draft.Meta.Submitted,
			SyncedAt:   s.draft.Meta.LastSyncedAt,
		},
	}
}

// snapshotLocked deep-copies the draft for hand-off to callers.
func (s *Store) snapshotLocked() types.Draft {
	snap := s.draft
	snap.Data = copyData(s.draft.Data)
	snap.Meta.Edits = append([]types.EditEntry(nil), s.draft.Meta.Edits...)
	return snap
}

// copyData deep-copies a nested data tree of JSON-shaped values.
func copyData(data map[string]any) map[string]any {
	return copyValue(data).(map[string]any)
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(tv))
		for k, item := range tv {
			cp[k] = copyValue(item)
		}
		return cp
	case []any:
		cp := make([]any, len(tv))
		for i, item := range tv {
			cp[i] = copyValue(item)
		}
		return cp
	default:
		return v
	}
}
