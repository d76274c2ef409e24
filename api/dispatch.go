package api

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"

	"taskboard-api/domain"
	"taskboard-api/service"
	"taskboard-api/storage"
)

// handleMessage decodes one inbound frame and dispatches it. Invalid frames,
// rejected payloads and storage faults go back to the requester alone; only
// applied mutations are broadcast.
func (h *Hub) handleMessage(c *client, data []byte) {
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil || env.Type == "" {
		h.sendError(c, "invalid message format")
		return
	}

	m := newMutationMetrics(h.logger, env.Type, c.user.ID)
	switch env.Type {
	case msgCreateTask:
		h.handleCreateTask(c, env.Payload, m)
	case msgUpdateTask:
		h.handleUpdateTask(c, env.Payload, m)
	case msgMoveTask:
		h.handleMoveTask(c, env.Payload, m)
	case msgReorderTask:
		h.handleReorderTask(c, env.Payload, m)
	case msgDeleteTask:
		h.handleDeleteTask(c, env.Payload, m)
	case msgResolveConflict:
		h.handleResolveConflict(c, env.Payload, m)
	default:
		m.SetOutcome("rejected")
		h.sendError(c, "unknown message type: "+env.Type)
	}
	m.Log()
}

func (h *Hub) handleCreateTask(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.CreateTaskPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid create-task payload")
		return
	}
	if p.Title == "" {
		m.SetOutcome("rejected")
		h.sendError(c, "title is required")
		return
	}
	if !p.Column.Valid() {
		m.SetOutcome("rejected")
		h.sendError(c, "unknown column: "+string(p.Column))
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	task, err := h.tasks.Create(ctx, p)
	if err != nil {
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("create task: %v", err)
		h.sendError(c, "failed to create task")
		return
	}
	m.SetOutcome("applied")
	h.broadcastAll(msgTaskCreated, taskPayload{Task: task, UserID: c.user.ID})
}

func (h *Hub) handleUpdateTask(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.UpdateTaskPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid update-task payload")
		return
	}
	if p.ID == "" || p.Version < 1 {
		m.SetOutcome("rejected")
		h.sendError(c, "task id and version are required")
		return
	}
	if p.Column != nil && !p.Column.Valid() {
		m.SetOutcome("rejected")
		h.sendError(c, "unknown column: "+string(*p.Column))
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	res, err := h.tasks.Update(ctx, p)
	if err != nil {
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("update task %s: %v", p.ID, err)
		h.sendError(c, "failed to update task")
		return
	}
	h.deliverResult(c, raw, res, msgTaskUpdated, m)
}

func (h *Hub) handleMoveTask(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.MoveTaskPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid move-task payload")
		return
	}
	if p.ID == "" || p.Version < 1 {
		m.SetOutcome("rejected")
		h.sendError(c, "task id and version are required")
		return
	}
	if !p.NewColumn.Valid() {
		m.SetOutcome("rejected")
		h.sendError(c, "unknown column: "+string(p.NewColumn))
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	res, err := h.tasks.Move(ctx, p)
	if err != nil {
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("move task %s: %v", p.ID, err)
		h.sendError(c, "failed to move task")
		return
	}
	h.deliverResult(c, raw, res, msgTaskMoved, m)
}

func (h *Hub) handleReorderTask(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.ReorderTaskPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid reorder-task payload")
		return
	}
	if p.TaskID == "" || p.Version < 1 {
		m.SetOutcome("rejected")
		h.sendError(c, "task id and version are required")
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	res, err := h.tasks.Reorder(ctx, p)
	if err != nil {
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("reorder task %s: %v", p.TaskID, err)
		h.sendError(c, "failed to reorder task")
		return
	}
	h.deliverResult(c, raw, res, msgTaskReordered, m)
}

func (h *Hub) handleDeleteTask(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.DeleteTaskPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid delete-task payload")
		return
	}
	if p.ID == "" {
		m.SetOutcome("rejected")
		h.sendError(c, "task id is required")
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	deleted, err := h.tasks.Delete(ctx, p.ID)
	if err != nil {
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("delete task %s: %v", p.ID, err)
		h.sendError(c, "failed to delete task")
		return
	}
	if !deleted {
		m.SetOutcome("noop")
		return
	}
	m.SetOutcome("applied")
	h.broadcastAll(msgTaskDeleted, taskDeletedPayload{TaskID: p.ID, UserID: c.user.ID})
}

func (h *Hub) handleResolveConflict(c *client, raw sonic.NoCopyRawMessage, m *mutationMetrics) {
	var p domain.ResolveConflictPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		m.SetOutcome("rejected")
		h.sendError(c, "invalid resolve-conflict payload")
		return
	}
	if p.TaskID == "" {
		m.SetOutcome("rejected")
		h.sendError(c, "task id is required")
		return
	}

	ctx, cancel := h.requestContext()
	defer cancel()
	task, err := h.tasks.ResolveConflict(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.SetOutcome("rejected")
			h.sendError(c, "task not found")
			return
		}
		m.SetError(err)
		h.logger.WithField("user", c.user.ID).Errorf("resolve conflict %s: %v", p.TaskID, err)
		h.sendError(c, "failed to resolve conflict")
		return
	}
	m.SetOutcome("applied")
	h.broadcastAll(msgTaskUpdated, taskPayload{Task: task, UserID: c.user.ID})
}

// deliverResult routes a gated mutation outcome: conflicts go to the
// requester alone, applied mutations are broadcast, benign no-ops are silent.
func (h *Hub) deliverResult(c *client, raw sonic.NoCopyRawMessage, res service.Result, broadcastType string, m *mutationMetrics) {
	switch {
	case res.Conflict != nil:
		m.SetConflict(res.Conflict.ConflictType)
		h.sendTo(c, msgConflictDetected, conflictPayload{Conflict: *res.Conflict, OriginalPayload: raw})
	case res.Task != nil:
		m.SetOutcome("applied")
		h.broadcastAll(broadcastType, taskPayload{Task: *res.Task, UserID: c.user.ID})
	default:
		m.SetOutcome("noop")
	}
}

// requestContext bounds a mutation independently of the websocket lifetime;
// a disconnect mid-flight must not abort the write.
func (h *Hub) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
