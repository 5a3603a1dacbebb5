package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inferd/internal/monitor"
)

func newWatchCmd(cl *client) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <agent>",
		Short: "Live dashboard of an agent's trust, beliefs and exploration queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %v", interval)
			}
			fetcher := monitor.NewClient(cl.baseURL, cl.token)
			model := monitor.NewModel(fetcher.BaseURL(), args[0], fetcher, interval)

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(os.Stderr))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
