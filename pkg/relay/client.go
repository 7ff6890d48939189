package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"

	wserrors "github.com/webstickynotes/websticky/pkg/errors"
)

// Client is the unprivileged end of the relay. It can only act by
// sending envelopes; every Call blocks until the daemon's matching
// response arrives.
type Client struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	events chan Event
}

// Dial connects to a relay server at wsURL (ws://host:port/ws).
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, wserrors.Wrap(err, wserrors.ErrCodeRelayUnavailable, "failed to reach the relay").
			WithUserMessage("The websticky daemon is not running. Start it with: websticky serve")
	}
	conn.SetReadLimit(maxWSReadBytes)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		cancel:  cancel,
		pending: make(map[string]chan Response),
		events:  make(chan Event, 64),
	}
	go c.readLoop(runCtx)
	return c, nil
}

// Call sends one request and waits for its response. data may be nil.
func (c *Client) Call(ctx context.Context, msgType MessageType, data any) (Response, error) {
	var payload json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return Response{}, wserrors.Wrap(err, wserrors.ErrCodeInvalidInput, "failed to encode request data")
		}
		payload = encoded
	}

	req := Request{
		ID:   ulid.Make().String(),
		Type: msgType,
		Data: payload,
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, wserrors.New(wserrors.ErrCodeRelayUnavailable, "relay connection is closed")
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	encoded, err := json.Marshal(req)
	if err != nil {
		return Response{}, wserrors.Wrap(err, wserrors.ErrCodeInvalidInput, "failed to encode envelope")
	}
	if err := c.conn.Write(ctx, websocket.MessageText, encoded); err != nil {
		return Response{}, wserrors.Wrap(err, wserrors.ErrCodeRelayUnavailable, "failed to send request")
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, wserrors.Wrap(ctx.Err(), wserrors.ErrCodeRelayUnavailable, "no response before deadline")
	}
}

// Events returns the stream of server-initiated broadcasts. The channel
// is buffered; a reader that falls far behind loses events rather than
// stalling the connection.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close tears the connection down and fails any in-flight calls.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.failPending()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		if f.Success != nil {
			// Response: route to the waiting call, if it is still there.
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				var body any
				if len(f.Data) > 0 {
					body = f.Data
				}
				ch <- Response{ID: f.ID, Success: *f.Success, Data: body, Error: f.Error}
			}
			continue
		}

		// Event: fan out without blocking the reader.
		var body any
		if len(f.Data) > 0 {
			body = f.Data
		}
		select {
		case c.events <- Event{Type: f.Type, Data: body}:
		default:
		}
	}
}

// failPending unblocks every in-flight Call after the connection dies.
// Sends are non-blocking: a slot already holding a delivered response
// that the caller abandoned must not wedge teardown under c.mu.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		select {
		case ch <- Response{ID: id, Success: false, Error: "relay connection lost"}:
		default:
		}
		delete(c.pending, id)
	}
	close(c.events)
}

// DecodeData unmarshals a response or event payload into out. The relay
// carries payloads as raw JSON so each caller decides the concrete type.
func DecodeData(data any, out any) error {
	raw, ok := data.(json.RawMessage)
	if !ok {
		encoded, err := json.Marshal(data)
		if err != nil {
			return wserrors.Wrap(err, wserrors.ErrCodeRelayProtocol, "payload is not decodable")
		}
		raw = encoded
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return wserrors.Wrap(err, wserrors.ErrCodeRelayProtocol, "payload shape mismatch")
	}
	return nil
}
