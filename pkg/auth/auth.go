package auth

import (
	"context"
	"io"
	"net/http"

	"github.com/webstickynotes/websticky/pkg/errors"
	"github.com/webstickynotes/websticky/pkg/logging"
)

// Facade is the single authority on authentication state. Every storage
// routing decision goes through IsAuthenticated; Login and Logout are
// the only state transitions this side of the provider.
type Facade struct {
	probe     Prober
	handshake *Handshake
	client    *http.Client
	authBase  string
	logger    *logging.Logger
}

// NewFacade composes the probe and handshake into the facade. client
// must share the cookie jar with the probe so a freshly established
// session is immediately visible.
func NewFacade(probe Prober, handshake *Handshake, client *http.Client, authBase string, logger *logging.Logger) *Facade {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Facade{
		probe:     probe,
		handshake: handshake,
		client:    client,
		authBase:  authBase,
		logger:    logger,
	}
}

// Login runs the interactive handshake and returns the signed-in user.
func (f *Facade) Login(ctx context.Context) (UserInfo, error) {
	session, err := f.handshake.Run(ctx, f.authBase+"/auth/signin")
	if err != nil {
		return UserInfo{}, err
	}

	// The handshake only resolves on a session with a user, but the
	// provider could have dropped it between the resolving probe and
	// now. Re-check rather than hand back a half-valid identity.
	if session == nil || session.User == nil {
		return UserInfo{}, errors.New(errors.ErrCodeAuthNoSession, "no user session found after login")
	}

	f.logger.Info(logging.CategoryAuth, "login.success", "user signed in", map[string]any{"email": session.User.Email})
	return *session.User, nil
}

// Logout asks the provider to end the session.
func (f *Facade) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.authBase+"/auth/signout", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAuthLogoutFailed, "failed to build signout request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAuthLogoutFailed, "signout request failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.ErrCodeAuthLogoutFailed, "provider rejected signout").
			WithContext("status", resp.StatusCode)
	}

	f.logger.Info(logging.CategoryAuth, "logout.success", "session ended", nil)
	return nil
}

// IsAuthenticated reports whether a valid session with a user identity
// is present right now. It never fails: any probe error reads as false,
// which degrades note routing to local storage instead of breaking it.
func (f *Facade) IsAuthenticated(ctx context.Context) bool {
	session := f.probe.CheckSession(ctx)
	return session != nil && session.User != nil
}

// CurrentSession exposes the probe result for callers that need the user
// identity as well as the boolean (the relay's CHECK_AUTH reply).
func (f *Facade) CurrentSession(ctx context.Context) *Session {
	return f.probe.CheckSession(ctx)
}
