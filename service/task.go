// Package service orchestrates board mutations: it translates requested
// changes into version-checked store operations, computes missing ordering
// values, and normalizes version races into conflict descriptors.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taskboard-api/domain"
	"taskboard-api/fracindex"
	"taskboard-api/storage"
)

// Store is the slice of the task store the mutation service depends on.
type Store interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	GetByID(ctx context.Context, id string) (domain.Task, error)
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Update(ctx context.Context, id string, fields domain.TaskFields, expectedVersion int64) (domain.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	MaxOrderInColumn(ctx context.Context, column domain.Column) (float64, error)
}

// Result is the normalized outcome of a version-gated mutation. Exactly one
// of Task and Conflict is set on a decided attempt; both nil means the target
// no longer exists, which is benign and produces no notification.
type Result struct {
	Task     *domain.Task
	Conflict *domain.ConflictResolution
}

// TaskService performs all board mutations against the backing store.
type TaskService struct {
	store Store
}

// NewTaskService creates a TaskService using the provided store.
func NewTaskService(store Store) *TaskService {
	return &TaskService{store: store}
}

// GetAll returns the current board snapshot ordered by (column, order).
func (s *TaskService) GetAll(ctx context.Context) ([]domain.Task, error) {
	return s.store.GetAll(ctx)
}

// Create persists a new task at version 1. When the payload carries no order
// the task is appended after the column's last element, or seeded when the
// column is empty.
func (s *TaskService) Create(ctx context.Context, p domain.CreateTaskPayload) (domain.Task, error) {
	var order float64
	if p.Order != nil {
		order = *p.Order
	} else {
		max, err := s.store.MaxOrderInColumn(ctx, p.Column)
		if err != nil {
			return domain.Task{}, err
		}
		if max == 0 {
			order = fracindex.GenerateBetween(nil, nil)
		} else {
			order = fracindex.GenerateBetween(&max, nil)
		}
	}

	return s.store.Create(ctx, domain.Task{
		ID:          uuid.NewString(),
		Title:       p.Title,
		Description: p.Description,
		Column:      p.Column,
		Order:       order,
		Version:     1,
	})
}

// Update applies a partial edit under the optimistic-lock discipline. A stale
// client version is detected before any write is attempted; a race lost at
// the store's compare-and-swap is reported the same way, with the reloaded
// server copy.
func (s *TaskService) Update(ctx context.Context, p domain.UpdateTaskPayload) (Result, error) {
	current, err := s.store.GetByID(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if current.Version != p.Version {
		return conflict(current, domain.ConflictMoveEdit, "Task was modified by another user"), nil
	}

	updated, err := s.store.Update(ctx, p.ID, p.Fields(), p.Version)
	if err != nil {
		return s.normalizeUpdateError(ctx, p.ID, domain.ConflictMoveEdit, "Task was modified by another user", err)
	}
	return Result{Task: &updated}, nil
}

// Move relocates a task to another column. When the payload carries no order
// the destination position is recomputed from the latest snapshot of the
// target column, excluding the moving task itself.
func (s *TaskService) Move(ctx context.Context, p domain.MoveTaskPayload) (Result, error) {
	current, err := s.store.GetByID(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if current.Version != p.Version {
		return conflict(current, domain.ConflictMoveMove, "Task was moved by another user"), nil
	}

	var newOrder float64
	if p.NewOrder != nil {
		newOrder = *p.NewOrder
	} else {
		tasks, err := s.store.GetAll(ctx)
		if err != nil {
			return Result{}, err
		}
		var last *float64
		for i := range tasks {
			if tasks[i].Column == p.NewColumn && tasks[i].ID != p.ID {
				last = &tasks[i].Order
			}
		}
		newOrder = fracindex.GenerateBetween(last, nil)
	}

	column := p.NewColumn
	updated, err := s.store.Update(ctx, p.ID, domain.TaskFields{Column: &column, Order: &newOrder}, p.Version)
	if err != nil {
		return s.normalizeUpdateError(ctx, p.ID, domain.ConflictMoveMove, "Task was moved by another user", err)
	}
	return Result{Task: &updated}, nil
}

// Reorder changes only a task's position within its column.
func (s *TaskService) Reorder(ctx context.Context, p domain.ReorderTaskPayload) (Result, error) {
	current, err := s.store.GetByID(ctx, p.TaskID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if current.Version != p.Version {
		return conflict(current, domain.ConflictReorder, "Task order was changed by another user"), nil
	}

	order := p.NewOrder
	updated, err := s.store.Update(ctx, p.TaskID, domain.TaskFields{Order: &order}, p.Version)
	if err != nil {
		return s.normalizeUpdateError(ctx, p.TaskID, domain.ConflictReorder, "Task order was changed by another user", err)
	}
	return Result{Task: &updated}, nil
}

// Delete removes a task without any version check: deletion always wins over
// concurrent edits. It reports whether a task was actually removed.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// ResolveConflict performs the deterministic server-wins merge: the client's
// non-placement fields are kept, but the server's current column and order win
// whenever the client disagrees. The commit uses the current server version,
// so this call is allowed to succeed where a blind retry would conflict again.
func (s *TaskService) ResolveConflict(ctx context.Context, p domain.ResolveConflictPayload) (domain.Task, error) {
	current, err := s.store.GetByID(ctx, p.TaskID)
	if err != nil {
		return domain.Task{}, err
	}

	merged := p.ClientUpdates
	if merged.Column != nil && *merged.Column != current.Column {
		merged.Column = nil
	}
	if merged.Order != nil && *merged.Order != current.Order {
		merged.Order = nil
	}

	return s.store.Update(ctx, p.TaskID, merged, current.Version)
}

// RebalanceColumn re-assigns integer-spaced order values across a column whose
// fractional indices have degenerated below the rebalance threshold. It is an
// explicit maintenance operation, not an inline side effect of writes. It
// reports whether anything changed; a version race during the sweep aborts it.
func (s *TaskService) RebalanceColumn(ctx context.Context, column domain.Column) (bool, error) {
	tasks, err := s.store.GetAll(ctx)
	if err != nil {
		return false, err
	}

	var columnTasks []domain.Task
	var orders []float64
	for _, t := range tasks {
		if t.Column == column {
			columnTasks = append(columnTasks, t)
			orders = append(orders, t.Order)
		}
	}

	if !fracindex.NeedsRebalance(orders) {
		return false, nil
	}

	// GetAll returns the column sorted ascending and Rebalance preserves
	// relative order, so index i is the task's final rank.
	rebalanced := fracindex.Rebalance(orders)
	for i, t := range columnTasks {
		if t.Order == rebalanced[i] {
			continue
		}
		order := rebalanced[i]
		if _, err := s.store.Update(ctx, t.ID, domain.TaskFields{Order: &order}, t.Version); err != nil {
			return false, fmt.Errorf("rebalancing column %s at task %s: %w", column, t.ID, err)
		}
	}
	return true, nil
}

func (s *TaskService) normalizeUpdateError(ctx context.Context, id string, kind domain.ConflictType, msg string, err error) (Result, error) {
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between the version check and the write.
		return Result{}, nil
	}
	if !errors.Is(err, storage.ErrVersionConflict) {
		return Result{}, err
	}

	latest, lerr := s.store.GetByID(ctx, id)
	if errors.Is(lerr, storage.ErrNotFound) {
		return Result{}, nil
	}
	if lerr != nil {
		return Result{}, lerr
	}
	return conflict(latest, kind, msg), nil
}

func conflict(task domain.Task, kind domain.ConflictType, msg string) Result {
	return Result{Conflict: &domain.ConflictResolution{
		Task:         task,
		ConflictType: kind,
		Message:      msg,
	}}
}
