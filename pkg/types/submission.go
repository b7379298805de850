package types

import "time"

// Submission queue entry statuses. Entries progress pending → syncing →
// {synced | failed}; failed entries return to syncing on retry. Synced is
// terminal and eligible for pruning.
const (
	SubmissionPending = "pending"
	SubmissionSyncing = "syncing"
	SubmissionSynced  = "synced"
	SubmissionFailed  = "failed"
)

// validSubmissionStatuses is the set of recognized entry status values.
var validSubmissionStatuses = map[string]bool{
	SubmissionPending: true,
	SubmissionSyncing: true,
	SubmissionSynced:  true,
	SubmissionFailed:  true,
}

// submissionTransitions maps a status to the statuses reachable from it.
var submissionTransitions = map[string]map[string]bool{
	SubmissionPending: {SubmissionSyncing: true},
	SubmissionSyncing: {SubmissionSynced: true, SubmissionFailed: true},
	SubmissionFailed:  {SubmissionSyncing: true},
}

// SubmissionEntry is one row of the durable submission queue, keyed by
// instance id. Re-adding an instance replaces its entry.
type SubmissionEntry struct {
	InstanceID  string     `json:"instanceId"`
	FormID      string     `json:"formId"`
	Status      string     `json:"status"`
	PayloadHash string     `json:"payloadHash"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NeedsDelivery reports whether the entry still requires an upload attempt.
func (e *SubmissionEntry) NeedsDelivery() bool {
	return e.Status == SubmissionPending || e.Status == SubmissionFailed
}

// Transition moves the entry to the given status. Failed transitions record
// errMsg and bump RetryCount; synced clears any recorded error. Setting the
// current status is an idempotent success.
func (e *SubmissionEntry) Transition(status, errMsg string) error {
	if !validSubmissionStatuses[status] {
		return ErrInvalidStatus
	}
	if status != e.Status && !submissionTransitions[e.Status][status] {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	switch status {
	case SubmissionSyncing:
		e.LastAttempt = &now
	case SubmissionFailed:
		e.Error = errMsg
		e.RetryCount++
	case SubmissionSynced:
		e.Error = ""
	}
	e.Status = status
	return nil
}
