package types

import "time"

// Draft runtime states. A draft progresses through these states during its
// lifecycle; only an active draft accepts field mutation.
const (
	DraftLoading   = "loading"
	DraftActive    = "active"
	DraftFinalized = "finalized"
	DraftSubmitted = "submitted"
)

// EditEntry records a single field change in the draft's append-only audit
// trail. The trail is capped; oldest entries are dropped first.
type EditEntry struct {
	Path     string    `json:"path"`
	OldValue any       `json:"oldValue"`
	NewValue any       `json:"newValue"`
	At       time.Time `json:"at"`
}

// DraftMeta is the bookkeeping block of a persisted draft record.
type DraftMeta struct {
	SavedAt      time.Time   `json:"savedAt"`
	Finalized    bool        `json:"finalized"`
	Submitted    bool        `json:"submitted"`
	Edits        []EditEntry `json:"edits"`
	Version      int         `json:"version"`
	FormID       string      `json:"formId"`
	InstanceID   string      `json:"instanceId"`
	StartedAt    time.Time   `json:"startedAt"`
	LastSyncedAt *time.Time  `json:"lastSyncedAt,omitempty"`
}

// Draft is the persisted working state of one form instance. Data holds
// arbitrary nested values addressed by field paths such as "items[2].name".
type Draft struct {
	Data map[string]any `json:"data"`
	Meta DraftMeta      `json:"meta"`
}

// Locked reports whether the draft no longer accepts field mutation.
func (d *Draft) Locked() bool {
	return d.Meta.Finalized || d.Meta.Submitted
}

// ExportedInstance is the submission-ready projection of a finalized draft.
type ExportedInstance struct {
	ID      string         `json:"id"`
	FormID  string         `json:"formId"`
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
	Meta    ExportedMeta   `json:"meta"`
}

// ExportedMeta mirrors the meta block carried on an exported instance.
type ExportedMeta struct {
	InstanceID string     `json:"instanceID"`
	TimeStart  time.Time  `json:"timeStart"`
	TimeEnd    time.Time  `json:"timeEnd"`
	Finalized  bool       `json:"finalized"`
	Submitted  bool       `json:"submitted"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
}
