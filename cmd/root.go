package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ocppd",
		Short: "OCPP central-system protocol runtime",
		Long: "ocppd is a server-side runtime for the Open Charge Point Protocol:\n" +
			"it accepts charge point connections over WebSocket, enforces the\n" +
			"OCPP-J call/response rules, and routes messages through extensible\n" +
			"handler pipelines.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (yaml or json5)")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
