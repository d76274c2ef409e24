package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskboard-api/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendBufferSize = 64
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	user domain.User
	send chan []byte

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, user domain.User) *client {
	return &client{
		hub:  h,
		conn: conn,
		user: user,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue never blocks. A participant that cannot drain its buffer is
// disconnected rather than left with silently missing frames; the reconnect
// handshake delivers a fresh snapshot.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.WithField("user", c.user.ID).Warn("outbound buffer full, disconnecting slow consumer")
		c.close()
	}
}

// close tears down the transport. The read pump observes the closed
// connection and the hub deregisters the client through the normal
// disconnect path.
func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// readPump pulls inbound frames off the connection and hands them to the hub
// until the peer disconnects or misses the pong deadline.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(inboundMaxSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.WithField("user", c.user.ID).Debugf("read: %v", err)
			}
			return
		}
		c.hub.handleMessage(c, data)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with periodic pings. It exits when the hub closes the send channel
// or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
