package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inferd/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdio",
		Long: `Run the engine as a Model Context Protocol server over stdin/stdout.
Logs go to stderr because stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runMCP(ctx)
		},
	}
}

func runMCP(ctx context.Context) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    a.cfg.MCP.Name,
		Version: a.cfg.MCP.Version,
		Logger:  a.logger.Underlying().Named("mcp"),
	}, a.engine)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "inferd %s mcp stdio mode started\n", version)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
