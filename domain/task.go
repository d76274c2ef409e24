package domain

import "time"

// Column identifies one of the fixed board columns.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "in-progress"
	ColumnDone       Column = "done"
)

// Valid reports whether c names a known board column.
func (c Column) Valid() bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnDone:
		return true
	}
	return false
}

// Task represents a single board item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Column      Column    `json:"column"`
	Order       float64   `json:"order"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskFields carries a partial update of a task's mutable fields.
// A nil pointer leaves the corresponding field unchanged.
type TaskFields struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Column      *Column  `json:"column,omitempty"`
	Order       *float64 `json:"order,omitempty"`
}

// Empty reports whether no field is set.
func (f TaskFields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.Column == nil && f.Order == nil
}
