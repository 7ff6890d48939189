package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/webstickynotes/websticky/pkg/auth"
	"github.com/webstickynotes/websticky/pkg/logging"
	"github.com/webstickynotes/websticky/pkg/notes"
)

const maxWSReadBytes = 64 << 10

// AuthService is the slice of the auth facade the relay dispatches to.
type AuthService interface {
	Login(ctx context.Context) (auth.UserInfo, error)
	Logout(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	CurrentSession(ctx context.Context) *auth.Session
}

// Tunnel forwards a raw API_REQUEST to the remote service.
type Tunnel interface {
	Do(ctx context.Context, method, endpoint string, body any, params url.Values) (json.RawMessage, error)
}

// Config controls the relay server behavior.
type Config struct {
	BindAddress    string
	AllowedOrigins []string
	MaxClients     int
}

// Server hosts the privileged end of the relay: a WebSocket endpoint
// that receives typed envelopes, performs the real auth/storage/network
// work, and answers each request with exactly one response.
type Server struct {
	cfg        Config
	auth       AuthService
	router     notes.Backend
	tunnel     Tunnel
	hub        *Hub
	slots      *clientSlots
	httpServer *http.Server
	logger     *log.Logger
	events     *logging.Logger
}

// NewServer constructs a relay server around its collaborators. router
// is the storage router; tunnel is the remote client for non-note API
// calls.
func NewServer(cfg Config, authSvc AuthService, router notes.Backend, tunnel Tunnel, events *logging.Logger, logger *log.Logger) *Server {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1:4519"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 32
	}
	if events == nil {
		events = logging.NewNopLogger()
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:    cfg,
		auth:   authSvc,
		router: router,
		tunnel: tunnel,
		hub:    NewHub(),
		slots:  newClientSlots(cfg.MaxClients),
		logger: logger,
		events: events,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving the relay until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Printf("relay listening on %s", s.cfg.BindAddress)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.isOriginAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if !s.slots.take() {
		http.Error(w, "too many relay clients", http.StatusServiceUnavailable)
		return
	}
	defer s.slots.give()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checked above
	})
	if err != nil {
		s.logger.Printf("relay websocket accept failed: %v", err)
		return
	}
	conn.SetReadLimit(maxWSReadBytes)

	cl := s.hub.register(conn)
	ctx, cancel := context.WithCancel(r.Context())
	go keepalive(ctx, conn)

	go func() {
		if err := cl.writeLoop(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("relay write error: %v", err)
		}
		cancel()
	}()

	s.readLoop(ctx, cl)

	cancel()
	s.hub.removeClient(cl)
	cl.close(websocket.StatusNormalClosure, "shutdown")
}

// readLoop decodes request envelopes and dispatches each on its own
// goroutine, so a slow login poll never blocks the next request. The
// response is written whenever the work completes; the connection (the
// "channel" of the protocol) stays open throughout.
func (s *Server) readLoop(ctx context.Context, cl *client) {
	for {
		_, data, err := cl.conn.Read(ctx)
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			cl.respond(ctx, Response{Success: false, Error: "malformed envelope"})
			continue
		}
		if !knownTypes[req.Type] {
			cl.respond(ctx, Response{ID: req.ID, Success: false, Error: "unknown message type"})
			continue
		}

		go func(req Request) {
			resp := s.dispatch(ctx, cl, req)
			resp.ID = req.ID
			if !cl.respond(ctx, resp) && ctx.Err() == nil {
				s.logger.Printf("relay dropped response for %s %s", req.Type, req.ID)
			}
		}(req)
	}
}

// isOriginAllowed accepts requests with no Origin header (native
// clients) or an origin matching the allow-list by scheme and host.
func (s *Server) isOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	for _, allowed := range s.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if strings.EqualFold(allowedURL.Scheme, parsed.Scheme) &&
			strings.EqualFold(allowedURL.Hostname(), parsed.Hostname()) {
			return true
		}
	}
	return false
}
