package endpoint

import (
	"github.com/voltgrid/ocppd/internal/session"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// MessageContext is the request value the inbound and outbound chains
// process. The message is exclusively owned by the running chain; the session
// is shared with the watchdog and guarded by its own mutex.
type MessageContext struct {
	ClientID string
	Session  *session.Session
	Message  ocpp.Message
	Endpoint *Endpoint
}

// Call returns the message as a *ocpp.Call, or nil when it is a response.
func (mc *MessageContext) Call() *ocpp.Call {
	c, _ := mc.Message.(*ocpp.Call)
	return c
}
