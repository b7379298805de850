package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return New(kvstore.NewMemoryStore())
}

func TestAddAndPending(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Add("f1", "i1", []byte(`{"name":"Ann"}`)))
	require.NoError(t, q.Add("f1", "i2", []byte(`{"name":"Bob"}`)))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "i1", pending[0].InstanceID)
	assert.Equal(t, types.SubmissionPending, pending[0].Status)
	assert.Equal(t, crypto.Hash([]byte(`{"name":"Ann"}`)), pending[0].PayloadHash)
}

// Re-adding the same instance replaces its entry rather than duplicating it.
func TestAddIsIdempotentPerInstance(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Add("f1", "i1", []byte(`v1`)))
	require.NoError(t, q.Add("f1", "i1", []byte(`v2`)))

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := q.Get("i1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, crypto.Hash([]byte(`v2`)), entry.PayloadHash)
	assert.Equal(t, types.SubmissionPending, entry.Status)
}

// Re-finalizing a previously failed instance resets its bookkeeping.
func TestAddResetsFailedEntry(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Add("f1", "i1", []byte(`v1`)))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionFailed, "timeout"))

	require.NoError(t, q.Add("f1", "i1", []byte(`v2`)))

	entry, err := q.Get("i1")
	require.NoError(t, err)
	assert.Equal(t, types.SubmissionPending, entry.Status)
	assert.Zero(t, entry.RetryCount)
	assert.Empty(t, entry.Error)
}

func TestPendingExcludesSyncingAndSynced(t *testing.T) {
	q := newTestQueue(t)

	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Add("f1", fmt.Sprintf("i%d", i), []byte("p")))
	}
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i2", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i2", types.SubmissionSynced, ""))
	require.NoError(t, q.UpdateStatus("i3", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i3", types.SubmissionFailed, "boom"))

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "i3", pending[0].InstanceID) // failed needs redelivery
	assert.Equal(t, "i4", pending[1].InstanceID)
}

func TestUpdateStatusBookkeeping(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add("f1", "i1", []byte("p")))

	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionFailed, "503 from server"))

	entry, err := q.Get("i1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, "503 from server", entry.Error)
	assert.NotNil(t, entry.LastAttempt)

	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSynced, ""))

	entry, err = q.Get("i1")
	require.NoError(t, err)
	assert.Empty(t, entry.Error, "synced clears the recorded error")
}

func TestUpdateStatusUnknownIDIsNoOp(t *testing.T) {
	q := newTestQueue(t)
	assert.NoError(t, q.UpdateStatus("ghost", types.SubmissionSyncing, ""))
}

func TestUpdateStatusRejectsBadTransition(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add("f1", "i1", []byte("p")))

	err := q.UpdateStatus("i1", types.SubmissionSynced, "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestRemove(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add("f1", "i1", []byte("p")))

	require.NoError(t, q.Remove("i1"))
	entry, err := q.Get("i1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Removing an absent id succeeds silently.
	assert.NoError(t, q.Remove("i1"))
}

func TestClearSynced(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Add("f1", "i1", []byte("p")))
	require.NoError(t, q.Add("f1", "i2", []byte("p")))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSyncing, ""))
	require.NoError(t, q.UpdateStatus("i1", types.SubmissionSynced, ""))

	removed, err := q.ClearSynced()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Two concurrent adds for different instances must both survive.
func TestConcurrentAddsDoNotClobber(t *testing.T) {
	q := newTestQueue(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, q.Add("f1", fmt.Sprintf("i%d", i), []byte("p")))
		}(i)
	}
	wg.Wait()

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

// The queue survives process restarts through its persisted list.
func TestQueueDurability(t *testing.T) {
	kv := kvstore.NewMemoryStore()

	q1 := New(kv)
	require.NoError(t, q1.Add("f1", "i1", []byte("p")))

	q2 := New(kv)
	pending, err := q2.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "i1", pending[0].InstanceID)
}
