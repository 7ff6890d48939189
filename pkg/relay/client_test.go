package relay

import (
	"testing"
	"time"
)

func TestFailPending_DeliversFailure(t *testing.T) {
	c := &Client{
		pending: make(map[string]chan Response),
		events:  make(chan Event, 1),
	}
	ch := make(chan Response, 1)
	c.pending["waiting"] = ch

	c.failPending()

	select {
	case resp := <-ch:
		if resp.Success {
			t.Error("in-flight call should fail on connection loss")
		}
		if resp.ID != "waiting" {
			t.Errorf("ID = %q, want %q", resp.ID, "waiting")
		}
	default:
		t.Fatal("pending call never received the failure response")
	}

	if _, open := <-c.events; open {
		t.Error("events channel should be closed after teardown")
	}
}

func TestFailPending_AbandonedResponseSlot(t *testing.T) {
	c := &Client{
		pending: make(map[string]chan Response),
		events:  make(chan Event, 1),
	}

	// A response was delivered but the caller left Call via its context
	// without draining the slot.
	ch := make(chan Response, 1)
	ch <- Response{ID: "abandoned", Success: true}
	c.pending["abandoned"] = ch

	done := make(chan struct{})
	go func() {
		c.failPending()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("failPending blocked on a full pending slot")
	}

	c.mu.Lock()
	remaining := len(c.pending)
	closed := c.closed
	c.mu.Unlock()
	if remaining != 0 {
		t.Errorf("pending entries remaining = %d, want 0", remaining)
	}
	if !closed {
		t.Error("client should be marked closed")
	}
}
