// Package endpoint wires the protocol engine together: it owns the session
// store, assembles the authentication, inbound and outbound handler chains
// around their mandatory stages, and converts chain faults into wire
// responses. The transport hands it raw frames and an authentication request
// per connection attempt; everything else happens here.
package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/internal/credentials"
	"github.com/voltgrid/ocppd/internal/schema"
	"github.com/voltgrid/ocppd/internal/session"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Transport is the contract a concrete transport (the WebSocket server)
// satisfies for the endpoint.
type Transport interface {
	// Send writes an encoded frame to the named client's connection.
	Send(ctx context.Context, clientID string, data []byte) error
	// Disconnect closes the client's connection.
	Disconnect(clientID string, status int, reason string)
	// Connected reports whether the client currently has a connection.
	Connected(clientID string) bool
}

// DefaultSessionTimeout applies when the configuration does not set one.
const DefaultSessionTimeout = 60 * time.Second

// Options configures an Endpoint. Zero fields take defaults.
type Options struct {
	Store           session.Store
	Protocols       []string // accepted subprotocols; default ocpp.Subprotocols()
	ActionsAllowed  []string // nil allows every action
	SessionTimeout  time.Duration
	BasicAuth       bool
	CertificateAuth bool
	Credentials     credentials.Resolver // required when BasicAuth is set
	Validator       schema.Validator     // default schema.Noop
}

// Endpoint is the protocol orchestrator. One endpoint serves many sessions.
type Endpoint struct {
	store          session.Store
	protocols      []string
	allow          *allowList
	sessionTimeout time.Duration

	authChain     *chain.Chain[*AuthRequest]
	inboundChain  *chain.Chain[*MessageContext]
	outboundChain *chain.Chain[*MessageContext]

	transport atomic.Pointer[transportBox]
	listening atomic.Bool

	wd     *watchdogs
	events *hub
}

// transportBox keeps the interface value addressable for atomic.Pointer.
type transportBox struct{ t Transport }

// New builds an endpoint and its three chains with the built-in prefix and
// suffix stages in place.
func New(opts Options) *Endpoint {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	if opts.Protocols == nil {
		opts.Protocols = ocpp.Subprotocols()
	}
	if opts.Validator == nil {
		opts.Validator = schema.Noop{}
	}
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}

	e := &Endpoint{
		store:          opts.Store,
		protocols:      opts.Protocols,
		allow:          newAllowList(opts.ActionsAllowed),
		sessionTimeout: opts.SessionTimeout,
		wd:             newWatchdogs(),
		events:         newHub(),
	}

	authPrefix := []chain.Handler[*AuthRequest]{rejectDuplicateSession(e)}
	if opts.CertificateAuth {
		authPrefix = append(authPrefix, certificateAuth())
	}
	if opts.BasicAuth {
		authPrefix = append(authPrefix, basicAuth(opts.Credentials))
	}
	e.authChain = chain.New(authPrefix,
		[]chain.Handler[*AuthRequest]{defaultDecision(e), armWatchdog(e)})

	e.inboundChain = chain.New(
		[]chain.Handler[*MessageContext]{
			inboundSynchronicity(),
			inboundAllowList(e.allow),
			validateStage(opts.Validator, ocpp.Inbound),
			inboundBookkeeping(),
		},
		[]chain.Handler[*MessageContext]{defaultResponder()},
	)

	e.outboundChain = chain.New(
		[]chain.Handler[*MessageContext]{
			outboundAllowList(e.allow),
			outboundSynchronicity(),
			validateStage(opts.Validator, ocpp.Outbound),
			outboundBookkeeping(),
		},
		[]chain.Handler[*MessageContext]{e.transportSend()},
	)

	return e
}

// SetTransport attaches the concrete transport. Must be called before the
// endpoint can send.
func (e *Endpoint) SetTransport(t Transport) {
	e.transport.Store(&transportBox{t: t})
}

func (e *Endpoint) getTransport() Transport {
	if box := e.transport.Load(); box != nil {
		return box.t
	}
	return nil
}

// SetListening flips the endpoint's accepting state; the transport calls it
// around start/stop.
func (e *Endpoint) SetListening(on bool) { e.listening.Store(on) }

// Listening reports whether the transport is accepting connections.
func (e *Endpoint) Listening() bool { return e.listening.Load() }

// Store exposes the session store to the transport and the CLI.
func (e *Endpoint) Store() session.Store { return e.store }

// Protocols returns the accepted subprotocols, most preferred first.
func (e *Endpoint) Protocols() []string { return e.protocols }

// SetAllowedActions swaps the action allow-list at runtime (config reload).
// Passing nil allows every action.
func (e *Endpoint) SetAllowedActions(actions []string) { e.allow.replace(actions) }

// Handle appends a caller-supplied inbound handler between the built-in
// stages. The returned function removes it.
func (e *Endpoint) Handle(h chain.Handler[*MessageContext]) (remove func()) {
	return e.inboundChain.Append(h)
}

// HandleOutbound appends a caller-supplied outbound handler.
func (e *Endpoint) HandleOutbound(h chain.Handler[*MessageContext]) (remove func()) {
	return e.outboundChain.Append(h)
}

// HandleAuth appends a caller-supplied authentication handler.
func (e *Endpoint) HandleAuth(h chain.Handler[*AuthRequest]) (remove func()) {
	return e.authChain.Append(h)
}

// Subscribe registers an event handler for one event.
func (e *Endpoint) Subscribe(ev Event, fn EventHandler) { e.events.subscribe(ev, fn) }

// SubscribeAll registers an event handler for every event.
func (e *Endpoint) SubscribeAll(fn EventHandler) { e.events.subscribeAll(fn) }

// Emit publishes an event; the transport uses it for server lifecycle events.
func (e *Endpoint) Emit(ev Event, data EventData) { e.events.emit(ev, data) }

// Authenticate runs the authentication pipeline for a connection attempt.
// On acceptance a session is created and stored; on rejection the transport
// must refuse the upgrade with the returned status code.
func (e *Endpoint) Authenticate(ctx context.Context, a *AuthRequest) (accepted bool, protocol string, status int, err error) {
	e.events.emit(EventClientConnecting, EventData{ClientID: a.ClientID})

	if err := e.authChain.Run(ctx, a); err != nil {
		// Fail closed: an accept from a handler that ran before the fault is
		// void, since the suffix stages (watchdog arming included) never ran.
		slog.Error("authentication chain fault, rejecting", "client", a.ClientID, "error", err)
		a.forceReject(500)
	}

	accepted, protocol, status = a.Result()
	if !accepted {
		e.events.emit(EventClientRejected, EventData{ClientID: a.ClientID, Status: status})
		return false, "", status, nil
	}

	s := session.New(a.ClientID, protocol)
	if err := e.store.Set(ctx, a.ClientID, s); err != nil {
		e.wd.disarm(a.ClientID)
		e.events.emit(EventClientRejected, EventData{ClientID: a.ClientID, Status: 500})
		return false, "", 500, err
	}
	e.events.emit(EventClientConnected, EventData{ClientID: a.ClientID, Protocol: protocol})
	return true, protocol, 0, nil
}

// HandleFrame decodes a raw frame from the transport and dispatches it.
// Frames that cannot be decoded are answered with a CALLERROR; when no
// message id is recoverable a synthetic one is generated so the charge point
// still receives a response.
func (e *Endpoint) HandleFrame(ctx context.Context, clientID string, data []byte) {
	msg, err := ocpp.Unmarshal(data)
	if err != nil {
		var de *ocpp.DecodeError
		if errors.As(err, &de) {
			id := de.MessageID
			if id == "" {
				id = uuid.NewString()
			}
			slog.Warn("malformed frame", "client", clientID, "code", de.Code,
				"detail", de.Description)
			e.sendDirect(ctx, clientID, ocpp.NewCallError(id, de.Code, de.Description))
			return
		}
		slog.Error("frame decode fault", "client", clientID, "error", err)
		return
	}
	e.HandleInbound(ctx, clientID, msg)
}

// HandleInbound runs a typed inbound message through the inbound chain. A
// CallError raised by any stage is sent back to the charge point; any other
// fault is logged and the message dropped so one bad message cannot kill the
// connection.
func (e *Endpoint) HandleInbound(ctx context.Context, clientID string, msg ocpp.Message) {
	s, ok, err := e.store.Get(ctx, clientID)
	if err != nil {
		slog.Error("session lookup failed", "client", clientID, "error", err)
		return
	}
	if !ok || !s.Active() {
		slog.Warn("dropping message: no active session", "client", clientID,
			"type", msg.Type().String(), "id", msg.ID())
		return
	}

	if call, isCall := msg.(*ocpp.Call); isCall {
		// The binding outlives the read-loop context so handlers may respond
		// asynchronously.
		bindCtx := context.WithoutCancel(ctx)
		call.BindResponse(func(resp ocpp.Message) error {
			return e.Send(bindCtx, clientID, resp)
		})
	}

	e.events.emit(EventMessageReceived, EventData{ClientID: clientID, Message: msg})

	mc := &MessageContext{ClientID: clientID, Session: s, Message: msg, Endpoint: e}
	if err := e.inboundChain.Run(ctx, mc); err != nil {
		var ce *ocpp.CallError
		if errors.As(err, &ce) {
			// A fault raised after bookkeeping registered the call must also
			// release the pending slot it occupies.
			if call := mc.Call(); call != nil && s.PendingInbound() == call {
				s.SetPendingInbound(nil)
				if serr := e.store.Set(ctx, clientID, s); serr != nil {
					slog.Error("session persist failed", "client", clientID, "error", serr)
				}
			}
			e.sendDirect(ctx, clientID, ce)
			return
		}
		slog.Error("inbound chain fault, message dropped",
			"client", clientID, "type", msg.Type().String(), "id", msg.ID(), "error", err)
	}
}

// Send runs an outbound message through the outbound chain and onto the
// wire. It is a logged no-op when the endpoint is not listening or the
// recipient has no active session. Synchronicity and allow-list stages may
// refuse the send; the refusal is returned to the caller.
func (e *Endpoint) Send(ctx context.Context, clientID string, msg ocpp.Message) error {
	if !e.listening.Load() {
		slog.Warn("send ignored: endpoint is not listening", "client", clientID,
			"type", msg.Type().String(), "id", msg.ID())
		return nil
	}
	s, ok, err := e.store.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if !ok || !s.Active() {
		slog.Warn("send ignored: no active session", "client", clientID,
			"type", msg.Type().String(), "id", msg.ID())
		return nil
	}

	mc := &MessageContext{ClientID: clientID, Session: s, Message: msg, Endpoint: e}
	return e.outboundChain.Run(ctx, mc)
}

// transportSend is the terminal outbound suffix stage: encode, write,
// confirm.
func (e *Endpoint) transportSend() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(ctx context.Context, mc *MessageContext) error {
		t := e.getTransport()
		if t == nil {
			return errors.New("endpoint: no transport attached")
		}
		data, err := ocpp.Marshal(mc.Message)
		if err != nil {
			return err
		}
		if err := t.Send(ctx, mc.ClientID, data); err != nil {
			return err
		}
		ocpp.MarkSent(mc.Message)
		e.events.emit(EventMessageSent, EventData{ClientID: mc.ClientID, Message: mc.Message})
		return nil
	})
}

// sendDirect writes an engine-generated error response straight to the
// transport, bypassing the outbound chain: protocol-violation answers must
// reach the wire even though they would themselves violate the outbound
// synchronicity rules.
func (e *Endpoint) sendDirect(ctx context.Context, clientID string, msg ocpp.Message) {
	t := e.getTransport()
	if t == nil {
		slog.Warn("cannot send error response: no transport", "client", clientID)
		return
	}
	data, err := ocpp.Marshal(msg)
	if err != nil {
		slog.Error("marshal error response failed", "client", clientID, "error", err)
		return
	}
	if err := t.Send(ctx, clientID, data); err != nil {
		slog.Warn("write error response failed", "client", clientID, "error", err)
		return
	}
	ocpp.MarkSent(msg)
	e.events.emit(EventMessageSent, EventData{ClientID: clientID, Message: msg})
}

// DropSession marks the session inactive, cancels its watchdog, removes it
// from the store and fires client_disconnected exactly once. Repeated drops
// are no-ops. With force set the transport connection is closed too.
func (e *Endpoint) DropSession(ctx context.Context, clientID string, force bool) error {
	s, ok, err := e.store.Get(ctx, clientID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("drop ignored: no session", "client", clientID)
		return nil
	}
	if !s.Deactivate() {
		slog.Debug("drop ignored: session already inactive", "client", clientID)
		return nil
	}

	e.wd.disarm(clientID)
	if err := e.store.Set(ctx, clientID, nil); err != nil {
		slog.Error("session delete failed", "client", clientID, "error", err)
	}
	if force {
		if t := e.getTransport(); t != nil && t.Connected(clientID) {
			t.Disconnect(clientID, 1000, "session closed")
		}
	}
	e.events.emit(EventClientDisconnected, EventData{ClientID: clientID})
	return nil
}
