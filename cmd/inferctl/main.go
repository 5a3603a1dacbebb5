// Package main implements the inferctl CLI for manual operations against the
// inferd HTTP server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL string
		token     string
	)
	cl := &client{}

	root := &cobra.Command{
		Use:   "inferctl",
		Short: "CLI for inferd HTTP server operations",
		Long: `inferctl is a command-line interface for the inferd HTTP server.
It inspects snapshots, drives experiments and missions, and checks trust.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cl.baseURL = serverURL
			cl.token = token
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9191", "inferd server URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("INFERD_API_TOKEN"), "API bearer token")

	root.AddCommand(newHealthCmd(cl))
	root.AddCommand(newScrubCmd(cl))
	root.AddCommand(newSnapshotCmd(cl))
	root.AddCommand(newExperimentCmd(cl))
	root.AddCommand(newMissionCmd(cl))
	root.AddCommand(newTrustCmd(cl))
	root.AddCommand(newProposeCmd(cl))
	root.AddCommand(newWatchCmd(cl))
	return root
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func newHealthCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check inferd server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp healthResponse
			if err := cl.do(cmd.Context(), "GET", "/health", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", cl.baseURL)
			return nil
		},
	}
}

type scrubRequest struct {
	Content string `json:"content"`
}

type scrubResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules"`
}

func newScrubCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "scrub [file]",
		Short: "Scrub secrets from a file or stdin",
		Long: `Scrub secrets from a file or stdin using the inferd server.

Examples:
  # Scrub a file
  inferctl scrub notes.txt

  # Scrub from stdin
  cat transcript.log | inferctl scrub -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				content, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}
			if len(content) == 0 {
				return fmt.Errorf("no content to scrub")
			}

			var resp scrubResponse
			if err := cl.do(cmd.Context(), "POST", "/api/v1/scrub", scrubRequest{Content: string(content)}, &resp); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), resp.Content)
			if resp.FindingsCount > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[inferctl] Scrubbed %d secret(s)\n", resp.FindingsCount)
			}
			return nil
		},
	}
}
