package api

import (
	"github.com/bytedance/sonic"

	"taskboard-api/domain"
)

const inboundMaxSize = 64 * 1024 // 64 KiB

// Inbound message types (client -> server).
const (
	msgCreateTask      = "create-task"
	msgUpdateTask      = "update-task"
	msgMoveTask        = "move-task"
	msgReorderTask     = "reorder-task"
	msgDeleteTask      = "delete-task"
	msgResolveConflict = "resolve-conflict"
)

// Outbound message types (server -> client).
const (
	msgConnected        = "connected"
	msgTasksLoaded      = "tasks-loaded"
	msgTaskCreated      = "task-created"
	msgTaskUpdated      = "task-updated"
	msgTaskMoved        = "task-moved"
	msgTaskReordered    = "task-reordered"
	msgTaskDeleted      = "task-deleted"
	msgUserJoined       = "user-joined"
	msgUserLeft         = "user-left"
	msgUsersUpdated     = "users-updated"
	msgConflictDetected = "conflict-detected"
	msgError            = "error"
)

// envelope frames every inbound message: one {type, payload} object per frame.
type envelope struct {
	Type    string                 `json:"type"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

// outbound frames every server-sent message. Timestamp is a monotonic stamp
// letting clients order frames that arrive over different connections.
type outbound struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type connectedPayload struct {
	User  domain.User   `json:"user"`
	Tasks []domain.Task `json:"tasks"`
}

type tasksLoadedPayload struct {
	Tasks []domain.Task `json:"tasks"`
}

type taskPayload struct {
	Task   domain.Task `json:"task"`
	UserID string      `json:"userId"`
}

type taskDeletedPayload struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId"`
}

type userJoinedPayload struct {
	User domain.User `json:"user"`
}

type userLeftPayload struct {
	UserID string `json:"userId"`
}

type usersUpdatedPayload struct {
	Users []domain.User `json:"users"`
}

type conflictPayload struct {
	Conflict        domain.ConflictResolution `json:"conflict"`
	OriginalPayload sonic.NoCopyRawMessage    `json:"originalPayload"`
}

type errorPayload struct {
	Message string `json:"message"`
}
