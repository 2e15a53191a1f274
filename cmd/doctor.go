package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/voltgrid/ocppd/internal/config"
	"github.com/voltgrid/ocppd/pkg/ocpp"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backing-service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) error {
	fmt.Println("ocppd doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	fmt.Printf("  Config:   %s", configLabel())
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println(" (FAILED)")
		fmt.Printf("    %s\n", err)
		return fmt.Errorf("configuration is not loadable")
	}
	fmt.Println(" (OK)")
	fmt.Printf("  Listen:   %s%s\n", cfg.Addr, cfg.Path)
	fmt.Printf("  Protocols: %v\n", cfg.Protocols)

	ok := checkSchemas(cfg)
	ok = checkRedis(ctx, cfg) && ok
	ok = checkPostgres(ctx, cfg) && ok

	fmt.Println()
	if !ok {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Println("All checks passed.")
	return nil
}

func configLabel() string {
	if configPath == "" {
		return "(built-in defaults)"
	}
	return configPath
}

func checkSchemas(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("  Schemas:")
	if !cfg.SchemaValidation {
		fmt.Println("    validation disabled")
		return true
	}
	if _, err := os.Stat(cfg.SchemaDir); err != nil {
		fmt.Printf("    %s (NOT FOUND)\n", cfg.SchemaDir)
		return false
	}
	ok := true
	for _, proto := range cfg.Protocols {
		dir := filepath.Join(cfg.SchemaDir, ocpp.VersionGroup(proto))
		if _, err := os.Stat(dir); err != nil {
			fmt.Printf("    %s (MISSING for %s)\n", dir, proto)
			ok = false
			continue
		}
		fmt.Printf("    %s (OK)\n", dir)
	}
	return ok
}

func checkRedis(ctx context.Context, cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("  Redis:")
	if cfg.Redis.Addr == "" {
		fmt.Println("    not configured (in-memory session store)")
		return true
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		fmt.Printf("    %s (UNREACHABLE: %s)\n", cfg.Redis.Addr, err)
		return false
	}
	fmt.Printf("    %s (OK)\n", cfg.Redis.Addr)
	return true
}

func checkPostgres(ctx context.Context, cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("  Postgres:")
	if cfg.Postgres.DSN == "" {
		fmt.Println("    not configured (static credentials)")
		return true
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pool, err := pgxpool.New(pingCtx, cfg.Postgres.DSN)
	if err != nil {
		fmt.Printf("    DSN invalid: %s\n", err)
		return false
	}
	defer pool.Close()
	if err := pool.Ping(pingCtx); err != nil {
		fmt.Printf("    UNREACHABLE: %s\n", err)
		return false
	}
	fmt.Println("    OK")
	return true
}
