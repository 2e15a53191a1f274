package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// inboundBookkeeping runs after synchronicity validation and keeps the
// session's pending-call state current for messages from the charge point:
// a correlated response clears the pending outbound call and is delivered to
// its response handler; a fresh CALL becomes the pending inbound call. The
// liveness timestamp is always updated and the session persisted.
func inboundBookkeeping() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(ctx context.Context, mc *MessageContext) error {
		msg := mc.Message

		switch msg.Type() {
		case ocpp.TypeCall:
			if mc.Session.PendingInbound() == nil {
				mc.Session.SetPendingInbound(mc.Call())
			}
		case ocpp.TypeCallResult, ocpp.TypeCallError:
			if out := mc.Session.PendingOutbound(); out != nil && out.ID() == msg.ID() {
				mc.Session.SetPendingOutbound(nil)
				if err := out.DeliverResponse(msg); err != nil {
					if errors.Is(err, ocpp.ErrNoResponseHandler) {
						slog.Warn("response arrived for call without a handler",
							"client", mc.ClientID, "id", msg.ID())
					} else {
						slog.Error("response delivery fault",
							"client", mc.ClientID, "id", msg.ID(), "error", err)
					}
				}
			}
		}

		mc.Session.TouchInbound(time.Now())
		if err := mc.Endpoint.store.Set(ctx, mc.ClientID, mc.Session); err != nil {
			slog.Error("session persist failed", "client", mc.ClientID, "error", err)
		}
		return nil
	})
}

// outboundBookkeeping is the symmetric stage for locally-initiated sends:
// a response to the charge point clears the pending inbound call, a fresh
// CALL becomes the pending outbound call.
func outboundBookkeeping() chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(ctx context.Context, mc *MessageContext) error {
		msg := mc.Message

		switch msg.Type() {
		case ocpp.TypeCall:
			if mc.Session.PendingOutbound() == nil {
				mc.Session.SetPendingOutbound(mc.Call())
			}
		case ocpp.TypeCallResult, ocpp.TypeCallError:
			if in := mc.Session.PendingInbound(); in != nil && in.ID() == msg.ID() {
				mc.Session.SetPendingInbound(nil)
			}
		}

		mc.Session.TouchOutbound(time.Now())
		if err := mc.Endpoint.store.Set(ctx, mc.ClientID, mc.Session); err != nil {
			slog.Error("session persist failed", "client", mc.ClientID, "error", err)
		}
		return nil
	})
}
