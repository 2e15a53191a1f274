package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// allowList is the configured set of permitted actions. A nil set permits
// every action; the set can be swapped at runtime by the config watcher.
type allowList struct {
	mu  sync.RWMutex
	set map[string]struct{} // nil means allow all
}

func newAllowList(actions []string) *allowList {
	al := &allowList{}
	al.replace(actions)
	return al
}

func (al *allowList) replace(actions []string) {
	var set map[string]struct{}
	if actions != nil {
		set = make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
	}
	al.mu.Lock()
	al.set = set
	al.mu.Unlock()
}

func (al *allowList) allowed(action string) bool {
	al.mu.RLock()
	defer al.mu.RUnlock()
	if al.set == nil {
		return true
	}
	_, ok := al.set[action]
	return ok
}

// inboundAllowList answers a CALL for an unconfigured action with a
// NotImplemented CallError. Repeated attempts get the same answer.
func inboundAllowList(al *allowList) chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		call := mc.Call()
		if call == nil || al.allowed(call.Action) {
			return nil
		}
		return ocpp.NewCallError(call.ID(), ocpp.ErrNotImplemented,
			fmt.Sprintf("Action %s is not supported", call.Action))
	})
}

// outboundAllowList drops a locally-initiated CALL for an unconfigured
// action before it reaches the wire. The server must never emit a request
// the protocol configuration disallows.
func outboundAllowList(al *allowList) chain.Handler[*MessageContext] {
	return chain.Func[*MessageContext](func(_ context.Context, mc *MessageContext) error {
		call := mc.Call()
		if call == nil || al.allowed(call.Action) {
			return nil
		}
		slog.Warn("dropping outbound call: action not in allow-list",
			"client", mc.ClientID, "action", call.Action, "id", call.ID())
		return chain.ErrStop
	})
}
