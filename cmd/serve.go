package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/voltgrid/ocppd/internal/chain"
	"github.com/voltgrid/ocppd/internal/config"
	"github.com/voltgrid/ocppd/internal/credentials"
	"github.com/voltgrid/ocppd/internal/endpoint"
	"github.com/voltgrid/ocppd/internal/schema"
	"github.com/voltgrid/ocppd/internal/session"
	"github.com/voltgrid/ocppd/internal/ws"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the OCPP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log.Level)
			return serve(cmd.Context(), cfg)
		},
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store session.Store = session.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = session.NewRedisStore(rdb, cfg.Redis.Prefix, 2*cfg.SessionTimeoutDuration())
		slog.Info("using redis session store", "addr", cfg.Redis.Addr)
	}

	var validator schema.Validator = schema.Noop{}
	if cfg.SchemaValidation {
		v, err := schema.NewDirValidator(cfg.SchemaDir, cfg.SchemaStrict)
		if err != nil {
			return err
		}
		validator = v
		slog.Info("schema validation enabled", "dir", cfg.SchemaDir, "strict", cfg.SchemaStrict)
	}

	var resolver credentials.Resolver
	if cfg.BasicAuth {
		if cfg.Postgres.DSN != "" {
			pg, err := credentials.NewPostgres(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pg.Close()
			resolver = pg
			slog.Info("using postgres credential resolver")
		} else {
			resolver = credentials.Static(cfg.Credentials)
		}
	}

	var actions []string
	if len(cfg.ActionsAllowed) > 0 {
		actions = cfg.ActionsAllowed
	}

	ep := endpoint.New(endpoint.Options{
		Store:           store,
		Protocols:       cfg.Protocols,
		ActionsAllowed:  actions,
		SessionTimeout:  cfg.SessionTimeoutDuration(),
		BasicAuth:       cfg.BasicAuth,
		CertificateAuth: cfg.CertificateAuth,
		Credentials:     resolver,
		Validator:       validator,
	})
	registerCoreActions(ep)

	ep.SubscribeAll(func(ev endpoint.Event, data endpoint.EventData) {
		slog.Debug("event", "event", string(ev), "client", data.ClientID)
	})

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			return err
		}
		watcher.OnChange(func(next *config.Config) {
			if len(next.ActionsAllowed) > 0 {
				ep.SetAllowedActions(next.ActionsAllowed)
			} else {
				ep.SetAllowedActions(nil)
			}
			slog.Info("applied reloaded action allow-list",
				"actions", len(next.ActionsAllowed))
		})
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	return ws.NewServer(cfg, ep).Start(ctx)
}

// registerCoreActions installs responders for the protocol-level actions
// every central system answers: Heartbeat and BootNotification.
func registerCoreActions(ep *endpoint.Endpoint) {
	ep.Handle(chain.Func[*endpoint.MessageContext](
		func(_ context.Context, mc *endpoint.MessageContext) error {
			call := mc.Call()
			if call == nil {
				return nil
			}
			switch call.Action {
			case ocpp.ActionHeartbeat:
				payload, _ := json.Marshal(map[string]string{
					"currentTime": ocpp.ISOTime(time.Now()),
				})
				if err := call.Respond(payload); err != nil {
					return err
				}
				return chain.ErrStop

			case ocpp.ActionBootNotification:
				payload, _ := json.Marshal(map[string]any{
					"status":      "Accepted",
					"currentTime": ocpp.ISOTime(time.Now()),
					"interval":    300,
				})
				if err := call.Respond(payload); err != nil {
					return err
				}
				return chain.ErrStop
			}
			return nil
		}))
}
