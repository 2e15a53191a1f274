package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

// Version is stamped by the build.
var Version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and supported protocols",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ocppd %s (protocols: %v)\n", Version, ocpp.Subprotocols())
		},
	}
}
