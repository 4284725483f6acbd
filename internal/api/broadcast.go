package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster fans envelopes out to websocket clients. A client whose
// buffer is full is disconnected rather than slowing the publisher.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	logger  *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

// AddClient registers conn and queues first as its initial message.
func (b *Broadcaster) AddClient(conn *websocket.Conn, first Envelope) *client {
	c := newClient(conn)
	if data, err := json.Marshal(first); err == nil {
		c.send <- data
	}

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

// RemoveClient unregisters c and closes its connection.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Broadcast sends env to every client without blocking.
func (b *Broadcaster) Broadcast(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("failed to encode envelope", zap.String("type", env.Type), zap.Error(err))
		return
	}

	// Sends happen under the read lock so no client is closed mid-send.
	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("event stream client too slow, disconnecting",
			zap.String("remote", c.conn.RemoteAddr().String()))
		b.RemoveClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
