package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/webstickynotes/websticky/pkg/logging"
)

// Prober reports whether the provider currently holds a valid session.
type Prober interface {
	// CheckSession returns the current session, or nil when there is
	// none or the check could not complete. It never returns an error:
	// probing is a routing input and must not crash a poller.
	CheckSession(ctx context.Context) *Session
}

// HTTPProbe asks the provider's session endpoint, with ambient cookies
// attached by the shared HTTP client. Stateless; every call re-checks.
type HTTPProbe struct {
	authBase string
	client   *http.Client
	logger   *logging.Logger
}

// NewHTTPProbe returns a probe against authBase using client. The client
// must carry the cookie jar shared with the login flow.
func NewHTTPProbe(authBase string, client *http.Client, logger *logging.Logger) *HTTPProbe {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HTTPProbe{authBase: authBase, client: client, logger: logger}
}

// CheckSession performs one best-effort session read.
func (p *HTTPProbe) CheckSession(ctx context.Context) *Session {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authBase+"/auth/session", nil)
	if err != nil {
		p.logger.Debug(logging.CategoryAuth, "probe.request", "failed to build session request", map[string]any{"error": err.Error()})
		return nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug(logging.CategoryAuth, "probe.transport", "session probe failed", map[string]any{"error": err.Error()})
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Debug(logging.CategoryAuth, "probe.status", "session probe non-success", map[string]any{"status": resp.StatusCode})
		return nil
	}

	var wire sessionWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		p.logger.Debug(logging.CategoryAuth, "probe.decode", "session body undecodable", map[string]any{"error": err.Error()})
		return nil
	}

	return wire.toSession()
}
