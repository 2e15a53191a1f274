// Package session holds per-charge-point protocol state: the pending call in
// each direction, activity timestamps, and the store abstraction the endpoint
// keeps sessions in.
package session

import (
	"sync"
	"time"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Session is the server-side state for one connected charge point. All field
// access goes through methods; a single mutex linearizes readers and writers
// of the same session (the watchdog and the message pipeline may race
// otherwise). Different sessions are fully independent.
type Session struct {
	mu sync.Mutex

	clientID string
	protocol string
	active   bool

	pendingInbound  *ocpp.Call // charge point CALL awaiting our response
	pendingOutbound *ocpp.Call // our CALL awaiting the charge point's response

	createdAt      time.Time
	lastInboundAt  time.Time
	lastOutboundAt time.Time
}

// New creates an active session for the given client using the negotiated
// subprotocol.
func New(clientID, protocol string) *Session {
	now := time.Now()
	return &Session{
		clientID:      clientID,
		protocol:      protocol,
		active:        true,
		createdAt:     now,
		lastInboundAt: now,
	}
}

func (s *Session) ClientID() string { return s.clientID }
func (s *Session) Protocol() string { return s.protocol }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Active reports whether the session still represents a live connection.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Deactivate marks the session inactive. It returns false when the session
// was already inactive, making repeated drops detectable and idempotent.
func (s *Session) Deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.active = false
	return true
}

// PendingInbound returns the charge point CALL currently awaiting a local
// response, or nil.
func (s *Session) PendingInbound() *ocpp.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingInbound
}

// SetPendingInbound records the inbound CALL awaiting our response. Passing
// nil clears it.
func (s *Session) SetPendingInbound(c *ocpp.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingInbound = c
}

// PendingOutbound returns the locally-initiated CALL awaiting the charge
// point's response, or nil.
func (s *Session) PendingOutbound() *ocpp.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingOutbound
}

// SetPendingOutbound records the outbound CALL awaiting a remote response.
// Passing nil clears it.
func (s *Session) SetPendingOutbound(c *ocpp.Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOutbound = c
}

// TouchInbound updates the inbound liveness timestamp.
func (s *Session) TouchInbound(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInboundAt = t
}

// TouchOutbound updates the outbound liveness timestamp.
func (s *Session) TouchOutbound(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOutboundAt = t
}

// LastInboundAt reports when the charge point was last heard from.
func (s *Session) LastInboundAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInboundAt
}

// LastOutboundAt reports when a message was last sent to the charge point.
func (s *Session) LastOutboundAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutboundAt
}

// Snapshot is the serializable view of a session used by remote stores.
// Pending call bindings are process-local and are not part of it.
type Snapshot struct {
	ClientID       string    `json:"client_id"`
	Protocol       string    `json:"protocol"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	LastInboundAt  time.Time `json:"last_inbound_at"`
	LastOutboundAt time.Time `json:"last_outbound_at"`
}

// Snapshot captures the current serializable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ClientID:       s.clientID,
		Protocol:       s.protocol,
		Active:         s.active,
		CreatedAt:      s.createdAt,
		LastInboundAt:  s.lastInboundAt,
		LastOutboundAt: s.lastOutboundAt,
	}
}
