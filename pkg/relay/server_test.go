package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/webstickynotes/websticky/pkg/auth"
	"github.com/webstickynotes/websticky/pkg/notes"
)

func startRelay(t *testing.T, s *Server) string {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialRelay(t *testing.T, wsURL string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRelayRoundTrip(t *testing.T) {
	s := newTestServer(&fakeAuthService{session: &auth.Session{User: &auth.UserInfo{Email: "jo@example.com"}}}, &fakeRouter{}, &fakeTunnel{})
	wsURL := startRelay(t, s)
	client := dialRelay(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, TypeCheckAuth, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("Error = %q", resp.Error)
	}

	var session auth.Session
	if err := DecodeData(resp.Data, &session); err != nil {
		t.Fatalf("DecodeData() error = %v", err)
	}
	if session.User == nil || session.User.Email != "jo@example.com" {
		t.Errorf("session = %+v", session)
	}
}

func TestRelayExactlyOneResponsePerRequest(t *testing.T) {
	s := newTestServer(&fakeAuthService{}, &fakeRouter{}, &fakeTunnel{})
	wsURL := startRelay(t, s)
	client := dialRelay(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Interleave several requests; each must come back matched.
	for i := 0; i < 5; i++ {
		resp, err := client.Call(ctx, TypeCreateNote, notes.Note{Title: "A"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if !resp.Success {
			t.Fatalf("Error = %q", resp.Error)
		}
	}

	// No stray frames should be waiting as events.
	select {
	case ev := <-client.Events():
		t.Errorf("unexpected event for the requesting client: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayBroadcastExcludesSender(t *testing.T) {
	s := newTestServer(&fakeAuthService{}, &fakeRouter{}, &fakeTunnel{})
	wsURL := startRelay(t, s)
	sender := dialRelay(t, wsURL)
	observer := dialRelay(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := sender.Call(ctx, TypeFocusNote, map[string]string{"noteId": "n1"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("Error = %q", resp.Error)
	}

	select {
	case ev := <-observer.Events():
		if ev.Type != TypeFocusNote {
			t.Errorf("event type = %v", ev.Type)
		}
		var payload map[string]string
		if err := DecodeData(ev.Data, &payload); err != nil {
			t.Fatalf("DecodeData() error = %v", err)
		}
		if payload["noteId"] != "n1" {
			t.Errorf("payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("observer never received the broadcast")
	}

	select {
	case ev := <-sender.Events():
		t.Errorf("sender must not receive its own broadcast, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayRejectsDisallowedOrigin(t *testing.T) {
	s := newTestServer(&fakeAuthService{}, &fakeRouter{}, &fakeTunnel{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRelayConnectionCap(t *testing.T) {
	s := NewServer(Config{MaxClients: 1}, &fakeAuthService{}, &fakeRouter{}, &fakeTunnel{}, nil, nil)
	wsURL := startRelay(t, s)
	_ = dialRelay(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, wsURL); err == nil {
		t.Error("second client should be rejected by the connection cap")
	}
}

func TestRelayHealthz(t *testing.T) {
	s := newTestServer(&fakeAuthService{}, &fakeRouter{}, &fakeTunnel{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
