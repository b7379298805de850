package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/draft"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/queue"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// Full collection flow: edit a draft, save, reload, finalize, hand off to
// storage, finalize the instance, and observe the pending queue entry.
func TestCollectionFlowEndToEnd(t *testing.T) {
	m, _ := newTestManager(t)
	kv := kvstore.NewMemoryStore()
	q := queue.New(kv)

	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "f1", Title: "Census"}, []byte(`{}`), nil))

	d, err := draft.Open(kv, "f1", "i1", draft.Options{Scheduler: &draft.ManualScheduler{}})
	require.NoError(t, err)
	require.NoError(t, d.UpdateFields(map[string]any{"name": "Ann", "age": 30}))
	require.NoError(t, d.SaveNow())

	// Reload from storage: the persisted record reflects the edits.
	reloaded, err := draft.Open(kv, "f1", "i1", draft.Options{Scheduler: &draft.ManualScheduler{}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "age": float64(30)}, reloaded.Data())

	// Finalize locks the draft and flags the export.
	_, err = reloaded.Finalize()
	require.NoError(t, err)
	exported := reloaded.Export()
	assert.True(t, exported.Meta.Finalized)

	// Hand the payload to storage and bridge into the queue.
	payload, err := json.Marshal(exported)
	require.NoError(t, err)
	require.NoError(t, m.SaveInstance("f1", "i1", payload, nil, types.InstanceMetadata{
		DisplayName: "Ann",
		Status:      types.InstanceIncomplete,
	}))
	require.NoError(t, m.FinalizeInstance("f1", "i1", q))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "i1", pending[0].InstanceID)
	assert.Equal(t, "f1", pending[0].FormID)
	assert.Equal(t, types.SubmissionPending, pending[0].Status)

	// The stored payload round-trips through encryption untouched.
	stored, err := m.InstanceData("f1", "i1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(stored))
}
