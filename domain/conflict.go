package domain

// ConflictType classifies a failed version-gated mutation.
type ConflictType string

const (
	ConflictMoveEdit ConflictType = "move+edit"
	ConflictMoveMove ConflictType = "move+move"
	ConflictReorder  ConflictType = "reorder"
)

// ConflictResolution describes a mutation that lost a version race. Task holds
// the server's current copy so the losing client can rebase or merge.
type ConflictResolution struct {
	Resolved     bool         `json:"resolved"`
	Task         Task         `json:"task"`
	ConflictType ConflictType `json:"conflictType"`
	Message      string       `json:"message,omitempty"`
}
