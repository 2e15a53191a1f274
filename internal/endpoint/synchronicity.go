package endpoint

import (
	"context"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// inboundSynchronicity enforces the one-call-in-flight invariant for messages
// arriving from the charge point:
//
//  1. a response whose id differs from the pending outbound call is a
//     ProtocolError (id mismatch);
//  2. a response with no outbound call pending is a ProtocolError
//     (unsolicited);
//  3. a CALL while a prior inbound CALL is unanswered is a ProtocolError.
//
// The raised CallError is answered on the wire by the dispatch boundary; the
// pending state is left untouched so the original call stays correlatable.
func inboundSynchronicity() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		msg := mc.Message
		isCall := msg.Type() == ocpp.TypeCall

		if out := mc.Session.PendingOutbound(); out != nil {
			if !isCall && msg.ID() != out.ID() {
				return ocpp.ProtocolErrorf(msg.ID(),
					"response id %q does not match pending call id %q", msg.ID(), out.ID())
			}
		} else if !isCall {
			return ocpp.ProtocolErrorf(msg.ID(),
				"unsolicited %s: no call is pending", msg.Type())
		}

		if isCall && mc.Session.PendingInbound() != nil {
			return ocpp.ProtocolErrorf(msg.ID(),
				"received %s while call %q is still unanswered",
				mc.Call().Action, mc.Session.PendingInbound().ID())
		}
		return nil
	})
}

// outboundSynchronicity applies the symmetric checks to locally-initiated
// sends. Enforcement is strict: a violating send is rejected with a
// CallError returned to the caller and nothing is written to the wire. (An
// older lineage of this engine only warned here; that behavior is
// deprecated.)
func outboundSynchronicity() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		msg := mc.Message
		isCall := msg.Type() == ocpp.TypeCall

		if in := mc.Session.PendingInbound(); in != nil {
			if !isCall && msg.ID() != in.ID() {
				return ocpp.ProtocolErrorf(msg.ID(),
					"response id %q does not match pending inbound call id %q", msg.ID(), in.ID())
			}
		} else if !isCall {
			return ocpp.ProtocolErrorf(msg.ID(),
				"unsolicited outbound %s: no inbound call is pending", msg.Type())
		}

		if isCall && mc.Session.PendingOutbound() != nil {
			return ocpp.ProtocolErrorf(msg.ID(),
				"cannot send %s: call %q is still awaiting a response",
				mc.Call().Action, mc.Session.PendingOutbound().ID())
		}
		return nil
	})
}
