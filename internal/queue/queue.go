// Package queue implements the durable submission queue: bookkeeping of
// which finalized instances still need network delivery, independent of the
// draft lifecycle.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/kvstore"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// queueKey holds the whole queue as one ordered JSON list. The persisted
// list is the single source of truth; every mutation is load-mutate-persist
// under the mutex so concurrent callers never clobber each other's entries.
const queueKey = "queue/submissions"

// Queue owns submission entries keyed by instance id.
type Queue struct {
	mu sync.Mutex
	kv kvstore.Store
}

// New returns a queue persisted through the given adapter.
func New(kv kvstore.Store) *Queue {
	return &Queue{kv: kv}
}

// Add computes the payload hash and upserts a pending entry for instanceID,
// replacing any prior entry for the same id. Re-adding after a fix resets
// status, error, and retry bookkeeping.
func (q *Queue) Add(formID, instanceID string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return err
	}

	entry := types.SubmissionEntry{
		InstanceID:  instanceID,
		FormID:      formID,
		Status:      types.SubmissionPending,
		PayloadHash: crypto.Hash(payload),
		CreatedAt:   time.Now().UTC(),
	}

	replaced := false
	for i := range entries {
		if entries[i].InstanceID == instanceID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return q.persistLocked(entries)
}

// Pending returns the entries still needing a delivery attempt (status
// pending or failed), in list order.
func (q *Queue) Pending() ([]types.SubmissionEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return nil, err
	}
	var pending []types.SubmissionEntry
	for _, e := range entries {
		if e.NeedsDelivery() {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Get returns the entry for instanceID, or (nil, nil) when absent.
func (q *Queue) Get(instanceID string) (*types.SubmissionEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].InstanceID == instanceID {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

// UpdateStatus transitions the entry for instanceID. Failed transitions
// record errMsg and bump the retry count; synced clears any prior error.
// Updating an id with no entry is a silent no-op: it may have been pruned.
func (q *Queue) UpdateStatus(instanceID, status, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].InstanceID != instanceID {
			continue
		}
		if err := entries[i].Transition(status, errMsg); err != nil {
			return fmt.Errorf("entry %s: %w", instanceID, err)
		}
		return q.persistLocked(entries)
	}
	return nil
}

// Remove deletes the entry for instanceID outright. Used after a confirmed
// durable remote acknowledgment when no history should be retained.
func (q *Queue) Remove(instanceID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.InstanceID != instanceID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return q.persistLocked(kept)
}

// ClearSynced prunes all terminal synced entries, bounding storage growth.
// It returns the number of entries removed.
func (q *Queue) ClearSynced() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Status != types.SubmissionSynced {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, q.persistLocked(kept)
}

// Len returns the number of entries in the queue.
func (q *Queue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.loadLocked()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (q *Queue) loadLocked() ([]types.SubmissionEntry, error) {
	raw, found, err := q.kv.Get(queueKey)
	if err != nil {
		return nil, fmt.Errorf("loading submission queue: %w", err)
	}
	if !found {
		return nil, nil
	}
	var entries []types.SubmissionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding submission queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) persistLocked(entries []types.SubmissionEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding submission queue: %w", err)
	}
	if err := q.kv.Set(queueKey, raw); err != nil {
		return fmt.Errorf("persisting submission queue: %w", err)
	}
	return nil
}
