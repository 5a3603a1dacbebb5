package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func agentPath(agent string, parts ...string) string {
	p := "/api/v1/agents/" + url.PathEscape(agent)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// fetch performs a request and prints the raw JSON response.
func fetch(cmd *cobra.Command, cl *client, method, path string, body any) error {
	var out json.RawMessage
	if err := cl.do(cmd.Context(), method, path, body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func newSnapshotCmd(cl *client) *cobra.Command {
	var (
		prefix string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "snapshot [agent]",
		Short: "Show beliefs for one agent, or for every agent when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/snapshot"
			if len(args) == 1 {
				path = agentPath(args[0], "snapshot")
			}
			q := url.Values{}
			if prefix != "" {
				q.Set("prefix", prefix)
			}
			if limit > 0 {
				q.Set("history_limit", strconv.Itoa(limit))
			}
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return fetch(cmd, cl, "GET", path, nil)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only summaries whose id starts with prefix")
	cmd.Flags().IntVar(&limit, "history-limit", 0, "maximum history entries")
	return cmd
}

func newExperimentCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"exp"},
		Short:   "Manage hypothesis experiments",
	}

	var (
		id, expType, task, criteria string
		traits                      []string
	)
	initCmd := &cobra.Command{
		Use:   "init <agent> <hypothesis>",
		Short: "Open a hypothesis experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, cl, "POST", agentPath(args[0], "experiments"), map[string]any{
				"id":               id,
				"hypothesis":       args[1],
				"task":             task,
				"experiment_type":  expType,
				"success_criteria": criteria,
				"traits":           traits,
			})
		},
	}
	initCmd.Flags().StringVar(&id, "id", "", "experiment id (generated when empty)")
	initCmd.Flags().StringVar(&expType, "type", "", "experiment type")
	initCmd.Flags().StringVar(&task, "task", "", "task the hypothesis belongs to")
	initCmd.Flags().StringVar(&criteria, "criteria", "", "success criteria")
	initCmd.Flags().StringSliceVar(&traits, "trait", nil, "trait tag (repeatable)")

	var (
		result, text string
		score        float64
	)
	observeCmd := &cobra.Command{
		Use:   "observe <agent> <experiment>",
		Short: "Record an observation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"result": result, "text": text}
			if cmd.Flags().Changed("score") {
				body["score"] = score
			}
			return fetch(cmd, cl, "POST", agentPath(args[0], "experiments", url.PathEscape(args[1]), "observations"), body)
		},
	}
	observeCmd.Flags().StringVar(&result, "result", "", "success, fail or neutral")
	observeCmd.Flags().StringVar(&text, "text", "", "free-text observation")
	observeCmd.Flags().Float64Var(&score, "score", 0, "score in [0,1]")

	var resolution string
	resolveCmd := &cobra.Command{
		Use:   "resolve <agent> <experiment> <success|failure|abandoned>",
		Short: "Resolve an experiment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"outcome": args[2], "resolution": resolution}
			if cmd.Flags().Changed("score") {
				body["final_score"] = score
			}
			return fetch(cmd, cl, "POST", agentPath(args[0], "experiments", url.PathEscape(args[1]), "resolve"), body)
		},
	}
	resolveCmd.Flags().StringVar(&resolution, "note", "", "resolution note")
	resolveCmd.Flags().Float64Var(&score, "score", 0, "final score in [0,1]")

	var active bool
	listCmd := &cobra.Command{
		Use:   "list <agent>",
		Short: "List an agent's experiments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := agentPath(args[0], "experiments")
			if active {
				path += "?active=true"
			}
			return fetch(cmd, cl, "GET", path, nil)
		},
	}
	listCmd.Flags().BoolVar(&active, "active", false, "only active experiments")

	getCmd := &cobra.Command{
		Use:   "get <agent> <experiment>",
		Short: "Show one experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, cl, "GET", agentPath(args[0], "experiments", url.PathEscape(args[1])), nil)
		},
	}

	cmd.AddCommand(initCmd, observeCmd, resolveCmd, listCmd, getCmd)
	return cmd
}

func newMissionCmd(cl *client) *cobra.Command {
	var (
		missionID string
		score     float64
	)
	cmd := &cobra.Command{
		Use:   "mission <agent> <type> <completed|failed|expired|open>",
		Short: "Record a mission outcome",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"mission_id":   missionID,
				"mission_type": args[1],
				"status":       args[2],
			}
			if cmd.Flags().Changed("score") {
				body["score"] = score
			}
			return fetch(cmd, cl, "POST", agentPath(args[0], "missions"), body)
		},
	}
	cmd.Flags().StringVar(&missionID, "id", "", "mission id")
	cmd.Flags().Float64Var(&score, "score", 0, "score in [0,1]")
	return cmd
}

func newTrustCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust <agent>",
		Short: "Show an agent's trust state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, cl, "GET", agentPath(args[0], "trust"), nil)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "heartbeat <agent>",
		Short: "Send a heartbeat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, cl, "POST", agentPath(args[0], "trust", "heartbeat"), nil)
		},
	})

	var reason string
	evolve := &cobra.Command{
		Use:   "evolve <agent> <delta>",
		Short: "Apply a raw trust delta",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			return fetch(cmd, cl, "POST", agentPath(args[0], "trust", "evolve"), map[string]any{
				"delta":  delta,
				"reason": reason,
			})
		},
	}
	evolve.Flags().StringVar(&reason, "reason", "manual", "reason recorded in history")

	cmd.AddCommand(evolve)
	return cmd
}

func newProposeCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "propose <agent>",
		Short: "Propose the next experiment type to explore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, cl, "GET", agentPath(args[0], "exploration", "next"), nil)
		},
	}
}
