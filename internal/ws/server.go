// Package ws is the WebSocket transport adapter: it upgrades HTTP requests
// from charge points, negotiates the OCPP subprotocol, runs the endpoint's
// authentication pipeline before upgrading, and moves frames between the
// sockets and the protocol engine.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/voltgrid/ocppd/internal/config"
	"github.com/voltgrid/ocppd/internal/endpoint"
)

var errConnClosed = errors.New("ws: connection closed")

// Server accepts charge point connections and implements the
// endpoint.Transport contract.
type Server struct {
	cfg      *config.Config
	endpoint *endpoint.Endpoint
	upgrader websocket.Upgrader
	server   *http.Server

	conns     sync.Map // clientID → *conn
	connCount atomic.Int64

	mu      sync.Mutex
	running bool
}

// NewServer wires a transport to the endpoint. CheckOrigin accepts every
// origin: charge points are not browsers and send no Origin header.
func NewServer(cfg *config.Config, ep *endpoint.Endpoint) *Server {
	s := &Server{
		cfg:      cfg,
		endpoint: ep,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	ep.SetTransport(s)
	return s
}

// Start listens and serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("ws: server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.endpoint.Emit(endpoint.EventServerStarting, endpoint.EventData{})

	mux := http.NewServeMux()
	route := strings.TrimSuffix(s.cfg.Path, "/") + "/"
	mux.HandleFunc(route, s.handleUpgrade)
	s.server = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("ws: listen %s: %w", s.cfg.Addr, err)
	}

	s.endpoint.SetListening(true)
	s.endpoint.Emit(endpoint.EventServerListening, endpoint.EventData{})
	slog.Info("server listening", "addr", s.cfg.Addr, "path", route,
		"protocols", s.cfg.Protocols)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	})
	return g.Wait()
}

// Stop shuts the server down: stop accepting, drop every session, close
// every socket.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.endpoint.Emit(endpoint.EventServerStopping, endpoint.EventData{})
	s.endpoint.SetListening(false)

	s.conns.Range(func(key, value any) bool {
		c := value.(*conn)
		if err := s.endpoint.DropSession(ctx, c.clientID, false); err != nil {
			slog.Warn("drop session on shutdown failed", "client", c.clientID, "error", err)
		}
		c.close(websocket.CloseGoingAway, "server shutting down")
		return true
	})

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.endpoint.Emit(endpoint.EventServerStopped, endpoint.EventData{})
	return err
}

// handleUpgrade authenticates the charge point and, on acceptance, upgrades
// the connection with the negotiated subprotocol.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientID := s.clientIDFromPath(r.URL.Path)
	if clientID == "" {
		http.Error(w, "missing charge point id", http.StatusNotFound)
		return
	}

	if s.cfg.MaxConnections > 0 && s.connCount.Load() >= int64(s.cfg.MaxConnections) {
		slog.Warn("rejecting connection: connection limit reached",
			"client", clientID, "max", s.cfg.MaxConnections)
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	auth := &endpoint.AuthRequest{
		ClientID:   clientID,
		Protocols:  websocket.Subprotocols(r),
		RemoteAddr: r.RemoteAddr,
	}
	if _, password, ok := r.BasicAuth(); ok {
		auth.Password = []byte(password)
	}
	if r.TLS != nil {
		auth.CertPresented = len(r.TLS.PeerCertificates) > 0
		auth.CertVerified = len(r.TLS.VerifiedChains) > 0
	}

	accepted, protocol, status, err := s.endpoint.Authenticate(r.Context(), auth)
	if err != nil {
		slog.Error("authentication failed", "client", clientID, "error", err)
		http.Error(w, "authentication error", http.StatusInternalServerError)
		return
	}
	if !accepted {
		http.Error(w, http.StatusText(status), status)
		return
	}

	up := s.upgrader
	up.Subprotocols = []string{protocol}
	wsConn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; roll the session back.
		slog.Warn("upgrade failed after accept", "client", clientID, "error", err)
		s.endpoint.DropSession(context.WithoutCancel(r.Context()), clientID, false)
		return
	}

	var limiter *rate.Limiter
	if s.cfg.RateLimit.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(s.cfg.RateLimit.RPM)/60.0),
			max(s.cfg.RateLimit.Burst, 1))
	}

	c := newConn(clientID, protocol, wsConn, s, limiter)
	s.conns.Store(clientID, c)
	s.connCount.Add(1)
	slog.Info("charge point connected", "client", clientID,
		"protocol", protocol, "remote", r.RemoteAddr)

	go c.run(context.Background())
}

// connClosed is called when a connection's read pump exits.
func (s *Server) connClosed(ctx context.Context, c *conn) {
	if _, loaded := s.conns.LoadAndDelete(c.clientID); loaded {
		s.connCount.Add(-1)
	}
	c.close(websocket.CloseNormalClosure, "")
	if err := s.endpoint.DropSession(ctx, c.clientID, false); err != nil {
		slog.Warn("drop session failed", "client", c.clientID, "error", err)
	}
}

// clientIDFromPath extracts the charge point id from the request path, the
// element after the configured route prefix.
func (s *Server) clientIDFromPath(path string) string {
	prefix := strings.TrimSuffix(s.cfg.Path, "/")
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// --- endpoint.Transport ---

// Send writes an encoded frame to the named client's connection.
func (s *Server) Send(ctx context.Context, clientID string, data []byte) error {
	v, ok := s.conns.Load(clientID)
	if !ok {
		return fmt.Errorf("ws: no connection for %s", clientID)
	}
	return v.(*conn).enqueue(ctx, data)
}

// Disconnect closes the client's connection with the given close code.
func (s *Server) Disconnect(clientID string, code int, reason string) {
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	if v, ok := s.conns.Load(clientID); ok {
		v.(*conn).close(code, reason)
	}
}

// Connected reports whether the client has a live socket.
func (s *Server) Connected(clientID string) bool {
	_, ok := s.conns.Load(clientID)
	return ok
}
