package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webstickynotes/websticky/pkg/errors"
)

// scriptedProbe returns nil for misses-1 calls, then a session with a user.
type scriptedProbe struct {
	calls   atomic.Int64
	resolve int64 // call number that returns a user; 0 never resolves
	panicOn int64 // call number that panics; 0 never panics
}

func (p *scriptedProbe) CheckSession(ctx context.Context) *Session {
	n := p.calls.Add(1)
	if p.panicOn != 0 && n == p.panicOn {
		panic("probe blew up")
	}
	if p.resolve != 0 && n >= p.resolve {
		return &Session{User: &UserInfo{Email: "jo@example.com", Name: "Jo"}}
	}
	return nil
}

type fakeSurface struct {
	opens   atomic.Int64
	closes  atomic.Int64
	openErr error
	lastURL string
}

func (s *fakeSurface) Open(url string) error {
	s.opens.Add(1)
	s.lastURL = url
	return s.openErr
}

func (s *fakeSurface) Close() error {
	s.closes.Add(1)
	return nil
}

func TestHandshakeResolvesOnNthPoll(t *testing.T) {
	probe := &scriptedProbe{resolve: 3}
	surface := &fakeSurface{}
	h := NewHandshake(probe, surface, 5*time.Millisecond, time.Second, nil)

	start := time.Now()
	session, err := h.Run(context.Background(), "http://provider.test/auth/signin")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if session.User == nil || session.User.Email != "jo@example.com" {
		t.Errorf("session = %+v", session)
	}

	if got := probe.calls.Load(); got != 3 {
		t.Errorf("probe calls = %d, want 3", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("handshake took %v, should resolve within a few poll intervals", elapsed)
	}
	if got := surface.closes.Load(); got != 1 {
		t.Errorf("surface closed %d times, want exactly 1", got)
	}
	if surface.lastURL != "http://provider.test/auth/signin" {
		t.Errorf("surface opened at %q", surface.lastURL)
	}
}

func TestHandshakeTimesOut(t *testing.T) {
	probe := &scriptedProbe{} // never resolves
	surface := &fakeSurface{}
	const timeout = 60 * time.Millisecond
	h := NewHandshake(probe, surface, 10*time.Millisecond, timeout, nil)

	start := time.Now()
	_, err := h.Run(context.Background(), "http://provider.test/auth/signin")
	elapsed := time.Since(start)

	if !errors.IsCode(err, errors.ErrCodeAuthLoginTimeout) {
		t.Fatalf("error = %v, want AUTH_LOGIN_TIMEOUT", err)
	}
	if elapsed < timeout {
		t.Errorf("timed out after %v, before the %v ceiling", elapsed, timeout)
	}
	if got := surface.closes.Load(); got != 1 {
		t.Errorf("surface closed %d times, want exactly 1", got)
	}
}

// hangingProbe blocks until its context ends, like a transport stuck at
// its own timeout.
type hangingProbe struct{}

func (hangingProbe) CheckSession(ctx context.Context) *Session {
	<-ctx.Done()
	return nil
}

func TestHandshakeTimeoutBoundWithHungProbe(t *testing.T) {
	surface := &fakeSurface{}
	const (
		interval = 20 * time.Millisecond
		timeout  = 80 * time.Millisecond
	)
	h := NewHandshake(hangingProbe{}, surface, interval, timeout, nil)

	start := time.Now()
	_, err := h.Run(context.Background(), "http://provider.test/auth/signin")
	elapsed := time.Since(start)

	if !errors.IsCode(err, errors.ErrCodeAuthLoginTimeout) {
		t.Fatalf("error = %v, want AUTH_LOGIN_TIMEOUT", err)
	}
	// A probe that never answers must not delay the transition beyond the
	// ceiling plus roughly one poll interval.
	if elapsed > timeout+3*interval {
		t.Errorf("timed out after %v with a hung probe, want within %v", elapsed, timeout+interval)
	}
	if got := surface.closes.Load(); got != 1 {
		t.Errorf("surface closed %d times, want exactly 1", got)
	}
}

func TestHandshakeSurvivesProbePanic(t *testing.T) {
	probe := &scriptedProbe{panicOn: 1, resolve: 2}
	surface := &fakeSurface{}
	h := NewHandshake(probe, surface, 5*time.Millisecond, time.Second, nil)

	session, err := h.Run(context.Background(), "http://provider.test/auth/signin")
	if err != nil {
		t.Fatalf("a probe failure must not end the loop, got %v", err)
	}
	if session.User == nil {
		t.Error("expected a resolved session after the failed poll")
	}
}

func TestHandshakeSurfaceOpenFailureIsFatal(t *testing.T) {
	probe := &scriptedProbe{resolve: 1}
	surface := &fakeSurface{openErr: context.DeadlineExceeded}
	h := NewHandshake(probe, surface, 5*time.Millisecond, time.Second, nil)

	_, err := h.Run(context.Background(), "http://provider.test/auth/signin")
	if !errors.IsCode(err, errors.ErrCodeAuthSurface) {
		t.Fatalf("error = %v, want AUTH_SURFACE", err)
	}
	if probe.calls.Load() != 0 {
		t.Error("polling must not start when the surface cannot open")
	}
}

func TestHandshakeCancel(t *testing.T) {
	probe := &scriptedProbe{} // never resolves
	surface := &fakeSurface{}
	h := NewHandshake(probe, surface, 5*time.Millisecond, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := h.Run(ctx, "http://provider.test/auth/signin")
	if err == nil {
		t.Fatal("expected an error on cancellation")
	}
	if got := surface.closes.Load(); got != 1 {
		t.Errorf("surface closed %d times, want exactly 1", got)
	}
}
