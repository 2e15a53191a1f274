package endpoint

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/internal/credentials"
)

// AuthRequest is the request value the authentication chain processes. It is
// built by the transport before any session exists. Exactly one of Accept or
// Reject takes effect; later conflicting calls are handler-ordering errors,
// logged and ignored.
type AuthRequest struct {
	ClientID   string
	Protocols  []string // subprotocols offered by the charge point
	RemoteAddr string

	// Password is the basic-auth secret presented on the upgrade request,
	// nil when none was sent.
	Password []byte

	// CertPresented / CertVerified report client-certificate state when the
	// transport terminates TLS.
	CertPresented bool
	CertVerified  bool

	mu       sync.Mutex
	decided  bool
	accepted bool
	protocol string
	status   int
}

// Accept settles the attempt with the given negotiated subprotocol.
func (a *AuthRequest) Accept(protocol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decided {
		slog.Error("auth handler ordering error: Accept after decision",
			"client", a.ClientID, "accepted", a.accepted)
		return
	}
	a.decided = true
	a.accepted = true
	a.protocol = protocol
}

// Reject settles the attempt with the given HTTP status code.
func (a *AuthRequest) Reject(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decided {
		slog.Error("auth handler ordering error: Reject after decision",
			"client", a.ClientID, "accepted", a.accepted)
		return
	}
	a.decided = true
	a.accepted = false
	a.status = status
}

// forceReject overrides any prior decision. Reserved for the dispatch
// boundary: a chain fault must never let a half-processed attempt through,
// even when a handler already accepted it.
func (a *AuthRequest) forceReject(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decided = true
	a.accepted = false
	a.protocol = ""
	a.status = status
}

// Decided reports whether a handler has settled the attempt.
func (a *AuthRequest) Decided() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decided
}

// Result returns the settled outcome.
func (a *AuthRequest) Result() (accepted bool, protocol string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepted, a.protocol, a.status
}

// rejectDuplicateSession refuses a connection while an active session for the
// same charge point id exists and has not yet timed out.
func rejectDuplicateSession(e *Endpoint) chain.Handler[*AuthRequest] {
	return chain.Func[*AuthRequest](func(ctx context.Context, a *AuthRequest) error {
		s, ok, err := e.store.Get(ctx, a.ClientID)
		if err != nil {
			slog.Error("session lookup failed during auth", "client", a.ClientID, "error", err)
			a.Reject(http.StatusInternalServerError)
			return chain.ErrStop
		}
		if ok && s.Active() {
			slog.Warn("rejecting connection: session already active", "client", a.ClientID)
			a.Reject(http.StatusForbidden)
			return chain.ErrStop
		}
		return nil
	})
}

// basicAuth verifies the presented password against the credential resolver.
func basicAuth(resolver credentials.Resolver) chain.Handler[*AuthRequest] {
	return chain.Func[*AuthRequest](func(ctx context.Context, a *AuthRequest) error {
		if a.Password == nil {
			slog.Warn("rejecting connection: basic auth required but absent", "client", a.ClientID)
			a.Reject(http.StatusUnauthorized)
			return chain.ErrStop
		}
		secret, ok, err := resolver.Lookup(ctx, a.ClientID)
		if err != nil {
			slog.Error("credential lookup failed", "client", a.ClientID, "error", err)
			a.Reject(http.StatusInternalServerError)
			return chain.ErrStop
		}
		if !ok || subtle.ConstantTimeCompare(a.Password, []byte(secret)) != 1 {
			slog.Warn("rejecting connection: bad credentials", "client", a.ClientID)
			a.Reject(http.StatusUnauthorized)
			return chain.ErrStop
		}
		return nil
	})
}

// certificateAuth requires a verified client certificate.
func certificateAuth() chain.Handler[*AuthRequest] {
	return chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		if !a.CertPresented || !a.CertVerified {
			slog.Warn("rejecting connection: client certificate missing or unverified",
				"client", a.ClientID, "presented", a.CertPresented)
			a.Reject(http.StatusUnauthorized)
			return chain.ErrStop
		}
		return nil
	})
}

// defaultDecision is the auth suffix: an attempt no handler settled is
// accepted on the first offered subprotocol the endpoint is configured for,
// or rejected 400 when there is no overlap.
func defaultDecision(e *Endpoint) chain.Handler[*AuthRequest] {
	return chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		if a.Decided() {
			return nil
		}
		for _, offered := range a.Protocols {
			if slices.Contains(e.protocols, offered) {
				a.Accept(offered)
				return nil
			}
		}
		slog.Warn("rejecting connection: no common subprotocol",
			"client", a.ClientID, "offered", a.Protocols, "supported", e.protocols)
		a.Reject(http.StatusBadRequest)
		return nil
	})
}

// armWatchdog schedules the session timeout watchdog for accepted attempts.
// It is part of the auth suffix so every accepted session gets one.
func armWatchdog(e *Endpoint) chain.Handler[*AuthRequest] {
	return chain.Func[*AuthRequest](func(_ context.Context, a *AuthRequest) error {
		if accepted, _, _ := a.Result(); accepted {
			e.armWatchdog(a.ClientID)
		}
		return nil
	})
}
