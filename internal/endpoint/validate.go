package endpoint

import (
	"context"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/internal/schema"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// validateStage checks message payloads against the protocol-version schema
// set. CALL payloads validate as requests for their own action; CALLRESULT
// payloads validate as responses for the action of the pending call in the
// opposite direction (the only call the result can correlate to, given the
// synchronicity stage ran first). CALLERROR details are free-form.
func validateStage(v schema.Validator, dir ocpp.Direction) chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		proto := mc.Session.Protocol()

		switch msg := mc.Message.(type) {
		case *ocpp.Call:
			return v.Validate(msg.ID(), msg.Action, msg.Payload, proto, schema.Request)
		case *ocpp.CallResult:
			var pending *ocpp.Call
			if dir == ocpp.Inbound {
				pending = mc.Session.PendingOutbound()
			} else {
				pending = mc.Session.PendingInbound()
			}
			if pending == nil {
				return nil
			}
			return v.Validate(msg.ID(), pending.Action, msg.Payload, proto, schema.Response)
		}
		return nil
	})
}

// defaultResponder is the inbound suffix: a CALL that survived the whole
// chain without anyone producing (or taking ownership of) a response is
// answered NotImplemented. Handlers that respond asynchronously signal
// ownership by stopping the chain.
func defaultResponder() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		call := mc.Call()
		if call == nil || call.Responded() {
			return nil
		}
		return call.RespondError(ocpp.ErrNotImplemented,
			"Action "+call.Action+" is not supported")
	})
}
