package api

import (
	"context"

	"taskboard-api/domain"
	"taskboard-api/service"
)

// TaskMutator abstracts the mutation service for the hub and HTTP handlers.
type TaskMutator interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, p domain.CreateTaskPayload) (domain.Task, error)
	Update(ctx context.Context, p domain.UpdateTaskPayload) (service.Result, error)
	Move(ctx context.Context, p domain.MoveTaskPayload) (service.Result, error)
	Reorder(ctx context.Context, p domain.ReorderTaskPayload) (service.Result, error)
	Delete(ctx context.Context, id string) (bool, error)
	ResolveConflict(ctx context.Context, p domain.ResolveConflictPayload) (domain.Task, error)
	RebalanceColumn(ctx context.Context, column domain.Column) (bool, error)
}

// Pinger is implemented by stores that can report backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}
