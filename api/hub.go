package api

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// userColors is the fixed palette participants are assigned from.
var userColors = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8", "#F7DC6F", "#BB8FCE"}

const requestTimeout = 15 * time.Second

// Hub tracks connected participants, dispatches their mutation requests and
// fans resulting board changes out. The registry is internally synchronized;
// no caller holds a client reference across a suspension point.
type Hub struct {
	tasks  TaskMutator
	bridge *Bridge
	logger *log.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a Hub. bridge may be nil for single-instance deployments.
func NewHub(tasks TaskMutator, bridge *Bridge, logger *log.Logger) *Hub {
	return &Hub{
		tasks:   tasks,
		bridge:  bridge,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// HandleConnection owns the websocket for its whole lifetime and returns once
// the peer goes away. A disconnect mid-mutation does not roll anything back;
// the remaining participants still receive the broadcast.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	user := domain.User{
		ID:          uuid.NewString(),
		Color:       userColors[rand.Intn(len(userColors))],
		ConnectedAt: time.Now().UTC(),
	}
	user.Name = "User " + user.ID[:8]

	c := newClient(h, conn, user)

	// Handshake frames are queued before the client joins the registry, so
	// no concurrent broadcast can reach the new connection ahead of them.
	h.sendTo(c, msgConnected, connectedPayload{User: user, Tasks: []domain.Task{}})

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	tasks, err := h.tasks.GetAll(ctx)
	cancel()
	if err != nil {
		h.logger.WithField("user", user.ID).Errorf("initial snapshot: %v", err)
		h.sendError(c, "failed to load tasks")
	} else {
		h.sendTo(c, msgTasksLoaded, tasksLoadedPayload{Tasks: tasks})
	}

	h.register(c)
	go c.writePump()

	h.broadcastOthers(user.ID, msgUserJoined, userJoinedPayload{User: user})
	h.sendTo(c, msgUsersUpdated, usersUpdatedPayload{Users: h.Users()})
	h.logger.WithField("user", user.ID).Info("participant connected")

	c.readPump()

	h.unregister(c)
	h.broadcastLocal(msgUserLeft, userLeftPayload{UserID: user.ID})
	h.logger.WithField("user", user.ID).Info("participant disconnected")
}

// Users returns a snapshot of the connected participants, oldest first.
func (h *Hub) Users() []domain.User {
	h.mu.RLock()
	users := make([]domain.User, 0, len(h.clients))
	for _, c := range h.clients {
		users = append(users, c.user)
	}
	h.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if !users[i].ConnectedAt.Equal(users[j].ConnectedAt) {
			return users[i].ConnectedAt.Before(users[j].ConnectedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// DeliverRemote fans a frame published by another instance out to the local
// participants. It is the bridge subscriber's delivery callback.
func (h *Hub) DeliverRemote(data []byte) {
	h.deliverLocal(data)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.user.ID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.user.ID]; ok {
		delete(h.clients, c.user.ID)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) sendTo(c *client, msgType string, payload any) {
	data, err := encodeFrame(msgType, payload)
	if err != nil {
		h.logger.Errorf("encode %s: %v", msgType, err)
		return
	}
	c.enqueue(data)
}

func (h *Hub) sendError(c *client, message string) {
	h.sendTo(c, msgError, errorPayload{Message: message})
}

// broadcastAll delivers to every local participant, the requester included,
// and forwards the frame to other instances when a bridge is configured.
func (h *Hub) broadcastAll(msgType string, payload any) {
	data, err := encodeFrame(msgType, payload)
	if err != nil {
		h.logger.Errorf("encode %s: %v", msgType, err)
		return
	}
	h.deliverLocal(data)
	if h.bridge != nil {
		h.bridge.Publish(context.Background(), data)
	}
}

// broadcastLocal is broadcastAll without cross-instance forwarding; presence
// messages stay on the instance that owns the connection.
func (h *Hub) broadcastLocal(msgType string, payload any) {
	data, err := encodeFrame(msgType, payload)
	if err != nil {
		h.logger.Errorf("encode %s: %v", msgType, err)
		return
	}
	h.deliverLocal(data)
}

func (h *Hub) broadcastOthers(excludeUserID string, msgType string, payload any) {
	data, err := encodeFrame(msgType, payload)
	if err != nil {
		h.logger.Errorf("encode %s: %v", msgType, err)
		return
	}
	h.mu.RLock()
	for id, c := range h.clients {
		if id != excludeUserID {
			c.enqueue(data)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) deliverLocal(data []byte) {
	h.mu.RLock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
	h.mu.RUnlock()
}

func encodeFrame(msgType string, payload any) ([]byte, error) {
	return sonic.Marshal(outbound{
		Type:      msgType,
		Payload:   payload,
		Timestamp: nextTimestamp(),
	})
}
