// Package ocpp defines the OCPP-J wire protocol: the three message kinds
// (CALL, CALLRESULT, CALLERROR), the RPC error taxonomy, and the array frame
// codec. It is importable by clients and test harnesses as well as the server.
package ocpp

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	TypeCall       MessageType = 2
	TypeCallResult MessageType = 3
	TypeCallError  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case TypeCall:
		return "CALL"
	case TypeCallResult:
		return "CALLRESULT"
	case TypeCallError:
		return "CALLERROR"
	}
	return "UNKNOWN"
}

// Direction tags a message as received from the charge point or produced
// locally for sending.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Message is the closed set of OCPP-J envelope kinds. The concrete types are
// *Call, *CallResult and *CallError; dispatch is by type switch.
type Message interface {
	ID() string
	Type() MessageType
	Direction() Direction
	// CreatedAt is set when the message is decoded (inbound) or constructed
	// (outbound).
	CreatedAt() time.Time
	// SentAt reports the send-confirmation time on outbound messages. The
	// zero time means not yet sent.
	SentAt() time.Time

	markSent(t time.Time)
}

// meta carries the fields shared by every message kind.
type meta struct {
	id        string
	typ       MessageType
	dir       Direction
	createdAt time.Time

	mu     sync.Mutex
	sentAt time.Time
}

func newMeta(id string, typ MessageType, dir Direction) meta {
	return meta{id: id, typ: typ, dir: dir, createdAt: time.Now()}
}

func (m *meta) ID() string           { return m.id }
func (m *meta) Type() MessageType    { return m.typ }
func (m *meta) Direction() Direction { return m.dir }
func (m *meta) CreatedAt() time.Time { return m.createdAt }

func (m *meta) SentAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentAt
}

func (m *meta) markSent(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sentAt.IsZero() {
		m.sentAt = t
	}
}

// MarkSent records the send confirmation on an outbound message. Repeated
// calls keep the first timestamp.
func MarkSent(msg Message) { msg.markSent(time.Now()) }

// Response-binding faults. These are programming errors local to the server,
// never sent on the wire.
var (
	ErrNoResponseBinding    = errors.New("ocpp: call has no response binding")
	ErrResponseAlreadySent  = errors.New("ocpp: call was already responded to")
	ErrNoResponseHandler    = errors.New("ocpp: call has no response handler")
	ErrResponseAlreadyTaken = errors.New("ocpp: response handler already invoked")
)

// ResponseFunc delivers an outbound response produced for an inbound Call.
type ResponseFunc func(Message) error

// Call is a CALL message in either direction.
//
// An inbound Call owns a response binding: at most one CALLRESULT or CALLERROR
// may be produced for it. An outbound Call owns a response handler invoked
// exactly once when the correlated response arrives from the charge point.
type Call struct {
	meta
	Action  string
	Payload json.RawMessage

	bmu       sync.Mutex
	respond   ResponseFunc // inbound only
	responded bool
	onResp    func(Message) // outbound only
	delivered bool
}

// NewCall creates an outbound CALL.
func NewCall(id, action string, payload json.RawMessage) *Call {
	return &Call{meta: newMeta(id, TypeCall, Outbound), Action: action, Payload: payload}
}

// NewInboundCall creates an inbound CALL, normally via Unmarshal.
func NewInboundCall(id, action string, payload json.RawMessage) *Call {
	return &Call{meta: newMeta(id, TypeCall, Inbound), Action: action, Payload: payload}
}

// BindResponse installs the one-shot response sink for an inbound Call. The
// endpoint installs this before the call enters the inbound chain.
func (c *Call) BindResponse(fn ResponseFunc) {
	c.bmu.Lock()
	defer c.bmu.Unlock()
	c.respond = fn
}

// Respond sends a CALLRESULT for this inbound Call through its binding.
func (c *Call) Respond(payload json.RawMessage) error {
	return c.sendResponse(NewCallResult(c.id, payload))
}

// RespondError sends a CALLERROR for this inbound Call through its binding.
// The error id is forced to the call's id.
func (c *Call) RespondError(code ErrorCode, description string) error {
	return c.sendResponse(NewCallError(c.id, code, description))
}

func (c *Call) sendResponse(msg Message) error {
	c.bmu.Lock()
	if c.respond == nil {
		c.bmu.Unlock()
		return ErrNoResponseBinding
	}
	if c.responded {
		c.bmu.Unlock()
		return ErrResponseAlreadySent
	}
	c.responded = true
	fn := c.respond
	c.bmu.Unlock()
	return fn(msg)
}

// Responded reports whether a response has already been produced.
func (c *Call) Responded() bool {
	c.bmu.Lock()
	defer c.bmu.Unlock()
	return c.responded
}

// OnResponse installs the handler invoked when the correlated CALLRESULT or
// CALLERROR arrives for this outbound Call.
func (c *Call) OnResponse(fn func(Message)) {
	c.bmu.Lock()
	defer c.bmu.Unlock()
	c.onResp = fn
}

// DeliverResponse hands the correlated response to the registered handler,
// at most once.
func (c *Call) DeliverResponse(msg Message) error {
	c.bmu.Lock()
	if c.delivered {
		c.bmu.Unlock()
		return ErrResponseAlreadyTaken
	}
	c.delivered = true
	fn := c.onResp
	c.bmu.Unlock()
	if fn == nil {
		return ErrNoResponseHandler
	}
	fn(msg)
	return nil
}

// CallResult is a CALLRESULT message correlated to a prior CALL by id.
type CallResult struct {
	meta
	Payload json.RawMessage
}

// NewCallResult creates an outbound CALLRESULT.
func NewCallResult(id string, payload json.RawMessage) *CallResult {
	return &CallResult{meta: newMeta(id, TypeCallResult, Outbound), Payload: payload}
}

// NewInboundCallResult creates an inbound CALLRESULT, normally via Unmarshal.
func NewInboundCallResult(id string, payload json.RawMessage) *CallResult {
	return &CallResult{meta: newMeta(id, TypeCallResult, Inbound), Payload: payload}
}

// CallError is a CALLERROR message. It implements error so handlers can raise
// it to abort chain processing; the endpoint converts it into a wire response.
type CallError struct {
	meta
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

// NewInboundCallError creates an inbound CALLERROR, normally via Unmarshal.
func NewInboundCallError(id string, code ErrorCode, description string, details json.RawMessage) *CallError {
	return &CallError{
		meta:        newMeta(id, TypeCallError, Inbound),
		Code:        code,
		Description: description,
		Details:     details,
	}
}
