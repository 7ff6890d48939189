package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Hub fan-outs broadcast events to connected relay clients. Responses to
// requests never pass through here; only server-initiated events do.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast sends an event to every client except origin, dropping slow
// consumers. origin may be nil to reach everyone.
func (h *Hub) Broadcast(event Event, origin *client) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c == origin {
			continue
		}
		if !c.enqueue(data) {
			go h.removeClient(c)
		}
	}
}

// register adds a new client to the hub.
func (h *Hub) register(conn wsConn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// removeClient removes a client from broadcast fan-out. The send channel
// is never closed: late responses from in-flight dispatches may still try
// to queue, and the write loop exits through its context instead.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

type wsConn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Close(status websocket.StatusCode, reason string) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

// client is one connected relay peer. All writes to the socket funnel
// through the send channel so responses and broadcasts never interleave
// mid-frame.
type client struct {
	conn wsConn
	send chan []byte
}

// enqueue queues a frame, reporting false when the client is too slow.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// respond queues a response frame. Unlike broadcasts, a response must
// not be dropped: block until the write queue drains or ctx ends.
func (c *client) respond(ctx context.Context, resp Response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	_ = c.conn.Close(status, reason)
}
