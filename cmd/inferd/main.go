// Inferd is the adaptive behavioral inference daemon.
//
// It keeps per-agent beliefs, runs hypothesis experiments, tracks trust and
// puzzle skill, and proposes what to explore next. The engine is served over
// HTTP (inferd serve) or as an MCP server on stdio (inferd mcp).
//
// Configuration is loaded from ~/.config/inferd/config.yaml and INFERD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon
//	inferd serve
//
//	# Run as an MCP server for an agent host
//	inferd mcp
//
//	# Apply storage migrations and print the schema version
//	inferd migrate
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "inferd",
		Short: "Adaptive behavioral inference daemon",
		Long: `inferd maintains Bayesian beliefs about agents, runs hypothesis
experiments against them, and exposes the engine over HTTP or MCP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/inferd/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inferd by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
