package relay

import (
	"context"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// keepalive pings the peer until ctx ends so idle overlay connections
// survive aggressive middleboxes.
func keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

// clientSlots caps concurrent relay connections. A max of zero or less
// means unlimited.
type clientSlots struct {
	max int64
	n   atomic.Int64
}

func newClientSlots(max int) *clientSlots {
	return &clientSlots{max: int64(max)}
}

func (s *clientSlots) take() bool {
	if s.max <= 0 {
		return true
	}
	if s.n.Add(1) > s.max {
		s.n.Add(-1)
		return false
	}
	return true
}

func (s *clientSlots) give() {
	if s.max <= 0 {
		return
	}
	s.n.Add(-1)
}
