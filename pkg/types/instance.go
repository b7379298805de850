package types

import "time"

// Instance statuses. An instance progresses incomplete, complete, then
// submitted; submission_failed records a failed delivery attempt and moves
// to submitted when a later retry lands. Only submitted is terminal.
const (
	InstanceIncomplete       = "incomplete"
	InstanceComplete         = "complete"
	InstanceSubmitted        = "submitted"
	InstanceSubmissionFailed = "submission_failed"
)

// validInstanceStatuses is the set of recognized instance status values.
var validInstanceStatuses = map[string]bool{
	InstanceIncomplete:       true,
	InstanceComplete:         true,
	InstanceSubmitted:        true,
	InstanceSubmissionFailed: true,
}

// instanceTransitions maps a status to the statuses reachable from it.
var instanceTransitions = map[string]map[string]bool{
	InstanceIncomplete:       {InstanceComplete: true},
	InstanceComplete:         {InstanceSubmitted: true, InstanceSubmissionFailed: true},
	InstanceSubmissionFailed: {InstanceSubmitted: true},
}

// InstanceMetadata is the per-instance side-file written next to a saved
// submission payload.
type InstanceMetadata struct {
	InstanceID          string     `json:"instanceId"`
	FormID              string     `json:"formId"`
	FormVersion         string     `json:"formVersion"`
	DisplayName         string     `json:"displayName"`
	Status              string     `json:"status"`
	IntegrityHash       string     `json:"integrityHash,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	SubmittedAt         *time.Time `json:"submittedAt,omitempty"`
	CanEditWhenComplete bool       `json:"canEditWhenComplete"`
	HasMedia            bool       `json:"hasMedia"`
	MediaFiles          []string   `json:"mediaFiles"`
}

// SetStatus transitions the instance to the given status. Setting the
// current status is an idempotent success. SubmittedAt is stamped exactly
// when the status becomes submitted and cleared otherwise, preserving the
// submittedAt-iff-submitted invariant.
func (m *InstanceMetadata) SetStatus(status string) error {
	if !validInstanceStatuses[status] {
		return ErrInvalidStatus
	}
	if status != m.Status && !instanceTransitions[m.Status][status] {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	m.Status = status
	m.UpdatedAt = now
	if status == InstanceSubmitted {
		m.SubmittedAt = &now
	} else {
		m.SubmittedAt = nil
	}
	return nil
}
