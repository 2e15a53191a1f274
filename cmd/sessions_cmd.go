package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/voltgrid/ocppd/internal/config"
	"github.com/voltgrid/ocppd/internal/session"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect charge point sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions recorded in the Redis store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(cmd.Context())
			if err != nil {
				return err
			}
			snaps, err := store.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			printSnapshots(snaps, jsonOutput)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [charge-point-id]",
		Short: "Remove a session record from the Redis store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSessionStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Set(cmd.Context(), args[0], nil); err != nil {
				return err
			}
			fmt.Printf("Deleted session record: %s\n", args[0])
			return nil
		},
	}
}

// openSessionStore connects to the Redis store configured for the server.
// Session inspection across processes requires Redis; the in-memory store is
// not reachable from a second process.
func openSessionStore(ctx context.Context) (*session.RedisStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("sessions: no redis store configured; the in-memory store is not inspectable")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("sessions: redis %s: %w", cfg.Redis.Addr, err)
	}
	return session.NewRedisStore(rdb, cfg.Redis.Prefix, 2*cfg.SessionTimeoutDuration()), nil
}

func printSnapshots(snaps []session.Snapshot, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(snaps, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(snaps) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CHARGE POINT\tPROTOCOL\tACTIVE\tCONNECTED\tLAST HEARD\n")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
			s.ClientID,
			s.Protocol,
			s.Active,
			s.CreatedAt.Format(time.DateTime),
			s.LastInboundAt.Format(time.DateTime),
		)
	}
	tw.Flush()
}
