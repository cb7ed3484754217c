package server

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type client struct {
	userID string
	conn   connLike
	hub    *Hub

	sendMu     sync.Mutex
	send       chan []byte
	sendClosed bool
}

type connLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// enqueue hands one frame to the write pump. Returns false when the
// client has been shut down or its buffer is full; the frame is dropped
// either way. Enqueue and shutdown share a lock so a frame can never be
// sent on a closed channel, no matter which goroutine delivers it.
func (c *client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, stopping the write
// pump, and tears down the connection. Safe to call more than once.
func (c *client) shutdown() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()
	_ = c.conn.Close()
}

func (c *client) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.hub.unregister <- c
			return
		}
		var f chat.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.hub.frames <- inboundFrame{from: c, frame: f}
	}
}

func (c *client) writePump() {
	for data := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
	}
}
