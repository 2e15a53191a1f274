package endpoint

import (
	"sync"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Event names emitted by the endpoint and the transport.
type Event string

const (
	EventClientConnecting   Event = "client_connecting"
	EventClientConnected    Event = "client_connected"
	EventClientRejected     Event = "client_rejected"
	EventClientDisconnected Event = "client_disconnected"
	EventMessageSent        Event = "message_sent"
	EventMessageReceived    Event = "message_received"
	EventServerStarting     Event = "server_starting"
	EventServerListening    Event = "server_listening"
	EventServerStopping     Event = "server_stopping"
	EventServerStopped      Event = "server_stopped"
)

// EventData is the payload delivered to event subscribers. Fields are set
// where they apply: Message for message_* events, Status for client_rejected,
// Protocol for client_connected.
type EventData struct {
	ClientID string
	Message  ocpp.Message
	Status   int
	Protocol string
}

// EventHandler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type EventHandler func(Event, EventData)

// hub is the subscriber registry events fan out through.
type hub struct {
	mu   sync.RWMutex
	subs map[Event][]EventHandler
	all  []EventHandler
}

func newHub() *hub {
	return &hub{subs: make(map[Event][]EventHandler)}
}

func (h *hub) subscribe(ev Event, fn EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ev] = append(h.subs[ev], fn)
}

func (h *hub) subscribeAll(fn EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, fn)
}

func (h *hub) emit(ev Event, data EventData) {
	h.mu.RLock()
	handlers := append(append([]EventHandler(nil), h.subs[ev]...), h.all...)
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev, data)
	}
}
