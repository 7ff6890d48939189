package auth

import (
	"context"
	"time"

	"github.com/webstickynotes/websticky/pkg/errors"
	"github.com/webstickynotes/websticky/pkg/logging"
)

// Handshake turns the provider's interactive sign-in page into an
// awaitable result: open a surface, poll the session probe on a fixed
// cadence, and resolve on the first probe that carries a user identity.
//
// Known limitation: a surface the user closes by hand is not detected;
// polling simply runs on until the ceiling.
type Handshake struct {
	probe    Prober
	surface  Surface
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger
}

// NewHandshake builds a handshake with the given poll cadence and
// ceiling. Zero durations fall back to 1s / 5m.
func NewHandshake(probe Prober, surface Surface, interval, timeout time.Duration, logger *logging.Logger) *Handshake {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handshake{
		probe:    probe,
		surface:  surface,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes one login attempt against signinURL and blocks until a
// session with a user appears, the ceiling elapses, or ctx is canceled.
// The surface is closed exactly once on every exit path.
func (h *Handshake) Run(ctx context.Context, signinURL string) (*Session, error) {
	if err := h.surface.Open(signinURL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthSurface, "failed to open login surface")
	}

	h.logger.Info(logging.CategoryAuth, "handshake.polling", "login surface open, polling for session", map[string]any{
		"interval": h.interval.String(),
		"timeout":  h.timeout.String(),
	})

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(h.timeout)
	defer deadline.Stop()

	closeSurface := func() {
		// The user may have closed the popup already; a failed close is
		// not an error.
		if err := h.surface.Close(); err != nil {
			h.logger.Debug(logging.CategoryAuth, "handshake.close", "surface close failed", map[string]any{"error": err.Error()})
		}
	}

	for {
		select {
		case <-ticker.C:
			// Cap each probe at one poll interval so a hung transport
			// cannot push the timeout transition past the ceiling.
			pollCtx, cancel := context.WithTimeout(ctx, h.interval)
			session := h.poll(pollCtx)
			cancel()
			if session == nil || session.User == nil {
				continue
			}
			closeSurface()
			h.logger.Info(logging.CategoryAuth, "handshake.resolved", "session established", map[string]any{"email": session.User.Email})
			return session, nil

		case <-deadline.C:
			closeSurface()
			return nil, errors.New(errors.ErrCodeAuthLoginTimeout, "no session appeared before the login deadline").
				WithContext("timeout", h.timeout.String()).
				WithUserMessage("Sign-in timed out. Run login again and complete the sign-in in your browser.")

		case <-ctx.Done():
			closeSurface()
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeAuthLoginTimeout, "login canceled")
		}
	}
}

// poll performs one probe tick; any panic from a substituted prober is
// swallowed and counted as a miss so the loop survives it.
func (h *Handshake) poll(ctx context.Context) (session *Session) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn(logging.CategoryAuth, "handshake.probe_panic", "session probe panicked", map[string]any{"panic": r})
			session = nil
		}
	}()
	return h.probe.CheckSession(ctx)
}
