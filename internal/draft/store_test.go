package draft

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// openTestDraft wires a draft store over a memory adapter with a manual
// scheduler so debounce behavior is deterministic.
func openTestDraft(t *testing.T, kv kvstore.Store, instanceID string, opts Options) (*Store, *ManualScheduler) {
	t.Helper()
	sched := &ManualScheduler{}
	opts.Scheduler = sched
	s, err := Open(kv, "f1", instanceID, opts)
	require.NoError(t, err)
	return s, sched
}

func TestOpenGeneratesInstanceID(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "", Options{})

	assert.NotEmpty(t, s.InstanceID())
	assert.Equal(t, types.DraftActive, s.State())
	assert.Equal(t, "f1", s.Meta().FormID)
}

func TestUpdateFieldAppendsEditAndSchedules(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, sched := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))

	meta := s.Meta()
	require.Len(t, meta.Edits, 1)
	assert.Equal(t, "name", meta.Edits[0].Path)
	assert.Nil(t, meta.Edits[0].OldValue)
	assert.Equal(t, "Ann", meta.Edits[0].NewValue)
	assert.Equal(t, 1, meta.Version)
	assert.True(t, sched.HasPending())
}

func TestUpdateFieldNoOpOnEqualValue(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, sched := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("household", map[string]any{"size": 3}))
	sched.Fire()
	scheduledBefore := sched.Scheduled

	// Deep-equal value: no edit entry, no version bump, no new save.
	require.NoError(t, s.UpdateField("household", map[string]any{"size": 3}))

	meta := s.Meta()
	assert.Len(t, meta.Edits, 1)
	assert.Equal(t, 1, meta.Version)
	assert.Equal(t, scheduledBefore, sched.Scheduled)
	assert.False(t, sched.HasPending())
}

func TestDebounceCoalescing(t *testing.T) {
	kv := &countingStore{Store: kvstore.NewMemoryStore()}
	s, sched := openTestDraft(t, kv, "i1", Options{})

	// N rapid updates inside the window.
	for _, v := range []string{"A", "An", "Ann"} {
		require.NoError(t, s.UpdateField("name", v))
	}
	assert.Zero(t, kv.sets, "nothing persisted before the window elapses")

	sched.Fire()

	// Exactly one write, reflecting the final state.
	assert.Equal(t, 1, kv.sets)
	reloaded, err := Open(kv, "f1", "i1", Options{Scheduler: &ManualScheduler{}})
	require.NoError(t, err)
	got, err := reloaded.GetField("name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got)
}

func TestUpdateFieldsBatchSchedulesOnce(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, sched := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateFields(map[string]any{
		"name": "Ann",
		"age":  30,
	}))

	meta := s.Meta()
	assert.Len(t, meta.Edits, 2)
	assert.Equal(t, 1, sched.Scheduled, "one save for the whole batch")

	// Unchanged values in a batch contribute no edits.
	require.NoError(t, s.UpdateFields(map[string]any{
		"name": "Ann",
		"age":  31,
	}))
	assert.Len(t, s.Meta().Edits, 3)
}

func TestEditHistoryCapEvictsOldest(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{MaxEdits: 5})

	for i := 0; i < 8; i++ {
		require.NoError(t, s.UpdateField("counter", i))
	}

	edits := s.Meta().Edits
	require.Len(t, edits, 5)
	// Oldest dropped: the retained entries are the most recent ones.
	assert.Equal(t, 3, edits[0].NewValue)
	assert.Equal(t, 7, edits[4].NewValue)
}

func TestSaveNowCancelsPendingDebounce(t *testing.T) {
	kv := &countingStore{Store: kvstore.NewMemoryStore()}
	s, sched := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	require.NoError(t, s.SaveNow())

	assert.Equal(t, 1, kv.sets)
	assert.False(t, sched.HasPending(), "pending debounce cancelled")

	// A later fire of an already-cancelled task writes nothing.
	sched.Fire()
	assert.Equal(t, 1, kv.sets)
}

func TestFinalizeLocksMutation(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	snap, err := s.Finalize()
	require.NoError(t, err)
	assert.True(t, snap.Meta.Finalized)
	assert.Equal(t, types.DraftFinalized, s.State())

	// Mutation after finalize is a warn-level no-op, not an error.
	require.NoError(t, s.UpdateField("name", "Changed"))
	got, err := s.GetField("name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got)

	// Finalizing again reports the lock.
	_, err = s.Finalize()
	assert.ErrorIs(t, err, types.ErrDraftLocked)
}

func TestFinalizeValidationFailureKeepsDraftActive(t *testing.T) {
	validator, err := NewValidator([]byte(`{
		"type": "object",
		"required": ["name", "age"],
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "integer", "minimum": 0}
		}
	}`))
	require.NoError(t, err)

	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{Validator: validator})
	require.NoError(t, s.UpdateField("name", "Ann"))

	_, err = s.Finalize()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 1)
	assert.Contains(t, verr.Error(), "age")
	assert.Equal(t, types.DraftActive, s.State())

	// Fixing the data lets finalize succeed.
	require.NoError(t, s.UpdateField("age", 30))
	_, err = s.Finalize()
	assert.NoError(t, err)
}

func TestMarkSubmitted(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	_, err := s.Finalize()
	require.NoError(t, err)
	require.NoError(t, s.MarkSubmitted())

	meta := s.Meta()
	assert.True(t, meta.Submitted)
	assert.True(t, meta.Finalized)
	assert.NotNil(t, meta.LastSyncedAt)
	assert.Equal(t, types.DraftSubmitted, s.State())
}

func TestExportProjection(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	_, err := s.Finalize()
	require.NoError(t, err)

	exported := s.Export()
	assert.Equal(t, "i1", exported.ID)
	assert.Equal(t, "f1", exported.FormID)
	assert.True(t, exported.Meta.Finalized)
	assert.Equal(t, map[string]any{"name": "Ann"}, exported.Data)

	// The projection is a copy; mutating it does not touch the draft.
	exported.Data["name"] = "tampered"
	got, err := s.GetField("name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got)
}

func TestResetGeneratesFreshInstance(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	require.NoError(t, s.SaveNow())
	require.NoError(t, s.Reset())

	assert.NotEqual(t, "i1", s.InstanceID())
	assert.Empty(t, s.Data())
	assert.Equal(t, types.DraftActive, s.State())

	// The old persisted record is gone.
	_, found, err := kv.Get("drafts/i1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPersistedRecordShape(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateField("name", "Ann"))
	require.NoError(t, s.SaveNow())

	raw, found, err := kv.Get("drafts/i1")
	require.NoError(t, err)
	require.True(t, found)

	var record map[string]any
	require.NoError(t, json.Unmarshal(raw, &record))
	data := record["data"].(map[string]any)
	meta := record["meta"].(map[string]any)
	assert.Equal(t, "Ann", data["name"])
	assert.Equal(t, "i1", meta["instanceId"])
	assert.Equal(t, "f1", meta["formId"])
	assert.Equal(t, false, meta["finalized"])
}

func TestRoundTripThroughStorage(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s, _ := openTestDraft(t, kv, "i1", Options{})

	require.NoError(t, s.UpdateFields(map[string]any{"name": "Ann", "age": 30}))
	require.NoError(t, s.SaveNow())

	reloaded, err := Open(kv, "f1", "i1", Options{Scheduler: &ManualScheduler{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "age": float64(30)}, reloaded.Data())
}

// countingStore counts Set calls through to the wrapped store.
func TestFinalizePersistFailureKeepsDraftActive(t *testing.T) {
	kv := &faultyStore{Store: kvstore.NewMemoryStore()}
	s, _ := openTestDraft(t, kv, "i1", Options{})
	require.NoError(t, s.UpdateField("name", "Ann"))

	kv.failSets = true
	_, err := s.Finalize()
	require.Error(t, err)

	// The draft stays active and editable; no finalized record was stored.
	assert.Equal(t, types.DraftActive, s.State())
	assert.False(t, s.Meta().Finalized)
	require.NoError(t, s.UpdateField("name", "Anna"))
	got, err := s.GetField("name")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got)

	// Once the adapter recovers, finalize goes through.
	kv.failSets = false
	_, err = s.Finalize()
	require.NoError(t, err)
	assert.Equal(t, types.DraftFinalized, s.State())
}

func TestMarkSubmittedPersistFailureRollsBack(t *testing.T) {
	kv := &faultyStore{Store: kvstore.NewMemoryStore()}
	s, _ := openTestDraft(t, kv, "i1", Options{})
	require.NoError(t, s.UpdateField("name", "Ann"))
	require.NoError(t, s.SaveNow())

	kv.failSets = true
	require.Error(t, s.MarkSubmitted())

	meta := s.Meta()
	assert.False(t, meta.Submitted)
	assert.False(t, meta.Finalized)
	assert.Nil(t, meta.LastSyncedAt)
	assert.Equal(t, types.DraftActive, s.State())
}

type countingStore struct {
	kvstore.Store
	sets int
}

func (s *countingStore) Set(key string, value []byte) error {
	s.sets++
	return s.Store.Set(key, value)
}

// faultyStore fails writes while failSets is set, simulating a transient
// adapter outage.
type faultyStore struct {
	kvstore.Store
	failSets bool
}

func (s *faultyStore) Set(key string, value []byte) error {
	if s.failSets {
		return errors.New("disk full")
	}
	return s.Store.Set(key, value)
}
