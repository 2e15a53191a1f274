package endpoint

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// watchdogs tracks the per-session timeout tasks so they can be cancelled
// when a session is dropped.
type watchdogs struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newWatchdogs() *watchdogs {
	return &watchdogs{cancels: make(map[string]context.CancelFunc)}
}

// arm starts (or restarts) the watchdog for a client id.
func (w *watchdogs) arm(clientID string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	if prev, ok := w.cancels[clientID]; ok {
		prev()
	}
	w.cancels[clientID] = cancel
	w.mu.Unlock()
	go run(ctx)
}

// disarm cancels the watchdog for a client id, if one is running.
func (w *watchdogs) disarm(clientID string) {
	w.mu.Lock()
	cancel, ok := w.cancels[clientID]
	if ok {
		delete(w.cancels, clientID)
	}
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// armWatchdog runs a recurring check that drops the session once it has been
// silent for longer than the configured session timeout. The task exits when
// disarmed or when the session disappears.
func (e *Endpoint) armWatchdog(clientID string) {
	if e.sessionTimeout <= 0 {
		return
	}
	interval := e.sessionTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	e.wd.arm(clientID, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s, ok, err := e.store.Get(ctx, clientID)
				if err != nil {
					slog.Error("watchdog session lookup failed", "client", clientID, "error", err)
					continue
				}
				if !ok || !s.Active() {
					return
				}
				if time.Since(s.LastInboundAt()) > e.sessionTimeout {
					slog.Info("session timed out", "client", clientID,
						"timeout", e.sessionTimeout)
					// Dropping disarms this watchdog, which cancels ctx; the
					// store delete must not run on the cancelled context.
					if err := e.DropSession(context.WithoutCancel(ctx), clientID, true); err != nil {
						slog.Error("watchdog drop failed", "client", clientID, "error", err)
					}
					return
				}
			}
		}
	})
}
