package domain

// CreateTaskPayload is the body of a create-task request. Order is optional;
// when absent the task is appended to the end of its column.
type CreateTaskPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Column      Column   `json:"column"`
	Order       *float64 `json:"order,omitempty"`
}

// UpdateTaskPayload is the body of an update-task request. Version is the
// optimistic-lock token the client last observed.
type UpdateTaskPayload struct {
	ID          string   `json:"id"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Column      *Column  `json:"column,omitempty"`
	Order       *float64 `json:"order,omitempty"`
	Version     int64    `json:"version"`
}

// Fields extracts the partial field set carried by the payload.
func (p UpdateTaskPayload) Fields() TaskFields {
	return TaskFields{
		Title:       p.Title,
		Description: p.Description,
		Column:      p.Column,
		Order:       p.Order,
	}
}

// MoveTaskPayload is the body of a move-task request. NewOrder is optional;
// when absent the task is appended to the end of the destination column.
type MoveTaskPayload struct {
	ID        string   `json:"id"`
	NewColumn Column   `json:"newColumn"`
	NewOrder  *float64 `json:"newOrder,omitempty"`
	Version   int64    `json:"version"`
}

// ReorderTaskPayload is the body of a reorder-task request.
type ReorderTaskPayload struct {
	TaskID   string  `json:"taskId"`
	NewOrder float64 `json:"newOrder"`
	Version  int64   `json:"version"`
}

// DeleteTaskPayload is the body of a delete-task request.
type DeleteTaskPayload struct {
	ID string `json:"id"`
}

// ResolveConflictPayload is the body of a resolve-conflict request.
// ClientUpdates holds the fields the losing client still wants applied.
type ResolveConflictPayload struct {
	TaskID        string     `json:"taskId"`
	ClientVersion int64      `json:"clientVersion"`
	ClientUpdates TaskFields `json:"clientUpdates"`
}
