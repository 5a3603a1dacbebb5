package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/mission"
	"github.com/fyrsmithlabs/inferd/internal/variable"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

// agentScoped is implemented by every tool input.
type agentScoped interface {
	agent() string
}

// addTool registers a tool that validates the agent id, tags the context
// and records invocation metrics around run.
func addTool[In agentScoped, Out any](s *Server, name, description string, run func(context.Context, In) (Out, error)) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			start := time.Now()
			var zero Out

			agentID := in.agent()
			if err := logging.ValidateID(agentID, "agent_id"); err != nil {
				s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
				return nil, zero, err
			}
			ctx = logging.WithAgentID(ctx, agentID)

			out, err := run(ctx, in)
			s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
			if err != nil {
				s.logger.Warn("tool call failed",
					zap.String("tool", name),
					zap.String("agent_id", agentID),
					zap.Error(err))
				return nil, zero, err
			}
			return nil, out, nil
		})
}

func (s *Server) registerTools() {
	addTool(s, "experiment_initialize",
		"Open a hypothesis experiment for an agent. Re-initializing an existing id returns it unchanged.",
		s.experimentInitialize)
	addTool(s, "experiment_observe",
		"Record an observation (success, fail or neutral, with an optional score) against an active experiment.",
		s.experimentObserve)
	addTool(s, "experiment_resolve",
		"Resolve an active experiment as success, failure or abandoned.",
		s.experimentResolve)
	addTool(s, "mission_record",
		"Record a mission outcome and return the updated per-type mission belief.",
		s.missionRecord)
	addTool(s, "snapshot_get",
		"Return the agent's beliefs, global traits, exploration queue and recent history.",
		s.snapshotGet)
	addTool(s, "exploration_propose",
		"Propose the next experiment type to explore. Failure rates are computed unless given.",
		s.explorationPropose)
	addTool(s, "trust_heartbeat",
		"Record a heartbeat. Applies inactivity decay and reports whether the heartbeat seeded, credited or was gated.",
		s.trustHeartbeat)
}

// ===== experiment tools =====

type experimentInitializeInput struct {
	AgentID         string   `json:"agent_id" jsonschema:"agent identifier"`
	ExperimentID    string   `json:"experiment_id,omitempty" jsonschema:"experiment id, generated when empty"`
	Hypothesis      string   `json:"hypothesis" jsonschema:"the claim being tested"`
	Task            string   `json:"task,omitempty" jsonschema:"task the hypothesis belongs to"`
	Title           string   `json:"title,omitempty" jsonschema:"short title"`
	ExperimentType  string   `json:"experiment_type,omitempty" jsonschema:"experiment type, defaults to general"`
	SuccessCriteria string   `json:"success_criteria,omitempty" jsonschema:"what counts as success"`
	Traits          []string `json:"traits,omitempty" jsonschema:"trait tags updated when the experiment resolves"`
}

func (in experimentInitializeInput) agent() string { return in.AgentID }

type experimentObserveInput struct {
	AgentID      string            `json:"agent_id" jsonschema:"agent identifier"`
	ExperimentID string            `json:"experiment_id" jsonschema:"experiment id"`
	Text         string            `json:"text,omitempty" jsonschema:"free-text observation, scrubbed of secrets"`
	Result       string            `json:"result,omitempty" jsonschema:"success, fail or neutral"`
	Score        *float64          `json:"score,omitempty" jsonschema:"score in [0,1]"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"extra key/value pairs"`
}

func (in experimentObserveInput) agent() string { return in.AgentID }

type experimentResolveInput struct {
	AgentID      string   `json:"agent_id" jsonschema:"agent identifier"`
	ExperimentID string   `json:"experiment_id" jsonschema:"experiment id"`
	Outcome      string   `json:"outcome" jsonschema:"success, failure or abandoned"`
	FinalScore   *float64 `json:"final_score,omitempty" jsonschema:"final score in [0,1]"`
	Resolution   string   `json:"resolution,omitempty" jsonschema:"closing note, scrubbed of secrets"`
}

func (in experimentResolveInput) agent() string { return in.AgentID }

type experimentOutput struct {
	ID                 string   `json:"id"`
	AgentID            string   `json:"agent_id"`
	ExperimentType     string   `json:"experiment_type"`
	State              string   `json:"state"`
	Hypothesis         string   `json:"hypothesis,omitempty"`
	Traits             []string `json:"traits,omitempty"`
	SuccessProbability float64  `json:"success_probability"`
	CredibleLo         float64  `json:"credible_lo"`
	CredibleHi         float64  `json:"credible_hi"`
	EvidenceCount      int      `json:"evidence_count"`
}

func toExperimentOutput(exp *experiment.Experiment) experimentOutput {
	out := experimentOutput{
		ID:             exp.ID,
		AgentID:        exp.AgentID,
		ExperimentType: exp.Type,
		State:          string(exp.State),
		Hypothesis:     exp.Hypothesis,
		Traits:         exp.Traits,
	}
	if exp.Summary != nil {
		out.SuccessProbability = exp.Summary.SuccessProbability
		out.CredibleLo = exp.Summary.CredibleInterval.Lo
		out.CredibleHi = exp.Summary.CredibleInterval.Hi
		out.EvidenceCount = exp.Summary.EvidenceCount
	}
	return out
}

func (s *Server) experimentInitialize(ctx context.Context, in experimentInitializeInput) (experimentOutput, error) {
	exp, err := s.engine.InitializeHypothesis(ctx, experiment.InitRequest{
		AgentID:         in.AgentID,
		ExperimentID:    in.ExperimentID,
		Hypothesis:      in.Hypothesis,
		Task:            in.Task,
		Title:           in.Title,
		ExperimentType:  in.ExperimentType,
		SuccessCriteria: in.SuccessCriteria,
		Traits:          in.Traits,
	})
	if err != nil {
		return experimentOutput{}, err
	}
	return toExperimentOutput(exp), nil
}

func (s *Server) experimentObserve(ctx context.Context, in experimentObserveInput) (experimentOutput, error) {
	if in.ExperimentID == "" {
		return experimentOutput{}, fmt.Errorf("experiment_id is required")
	}
	exp, err := s.engine.RecordObservation(ctx, experiment.ObservationRequest{
		AgentID:      in.AgentID,
		ExperimentID: in.ExperimentID,
		Text:         in.Text,
		Result:       belief.Outcome(in.Result),
		Score:        in.Score,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return experimentOutput{}, err
	}
	return toExperimentOutput(exp), nil
}

func (s *Server) experimentResolve(ctx context.Context, in experimentResolveInput) (experimentOutput, error) {
	if in.ExperimentID == "" {
		return experimentOutput{}, fmt.Errorf("experiment_id is required")
	}
	exp, err := s.engine.ResolveHypothesis(ctx, experiment.ResolveRequest{
		AgentID:      in.AgentID,
		ExperimentID: in.ExperimentID,
		Outcome:      belief.Outcome(in.Outcome),
		FinalScore:   in.FinalScore,
		Resolution:   in.Resolution,
	})
	if err != nil {
		return experimentOutput{}, err
	}
	return toExperimentOutput(exp), nil
}

// ===== mission =====

type missionRecordInput struct {
	AgentID       string   `json:"agent_id" jsonschema:"agent identifier"`
	MissionID     string   `json:"mission_id,omitempty" jsonschema:"mission id"`
	MissionType   string   `json:"mission_type" jsonschema:"mission type"`
	Status        string   `json:"status" jsonschema:"completed, failed, expired or open"`
	Score         *float64 `json:"score,omitempty" jsonschema:"score in [0,1]"`
	MinEvidence   int      `json:"min_evidence,omitempty" jsonschema:"evidence items the mission required"`
	PayloadLength int      `json:"payload_length,omitempty" jsonschema:"submitted payload length in characters"`
	CreatedAt     string   `json:"created_at,omitempty" jsonschema:"RFC3339 creation time"`
	ResolvedAt    string   `json:"resolved_at,omitempty" jsonschema:"RFC3339 resolution time"`
}

func (in missionRecordInput) agent() string { return in.AgentID }

type missionOutput struct {
	MissionType        string  `json:"mission_type"`
	SuccessProbability float64 `json:"success_probability"`
	CredibleLo         float64 `json:"credible_lo"`
	CredibleHi         float64 `json:"credible_hi"`
	EvidenceCount      int     `json:"evidence_count"`
}

func (s *Server) missionRecord(ctx context.Context, in missionRecordInput) (missionOutput, error) {
	if in.MissionType == "" {
		return missionOutput{}, fmt.Errorf("mission_type is required")
	}
	report := mission.Report{
		MissionID:     in.MissionID,
		MissionType:   in.MissionType,
		Status:        mission.Status(in.Status),
		Score:         in.Score,
		MinEvidence:   in.MinEvidence,
		PayloadLength: in.PayloadLength,
	}
	if in.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, in.CreatedAt)
		if err != nil {
			return missionOutput{}, fmt.Errorf("created_at: %w", err)
		}
		report.CreatedAt = t
	}
	if in.ResolvedAt != "" {
		t, err := time.Parse(time.RFC3339, in.ResolvedAt)
		if err != nil {
			return missionOutput{}, fmt.Errorf("resolved_at: %w", err)
		}
		report.ResolvedAt = &t
	}

	summary, err := s.engine.RecordMissionOutcome(ctx, in.AgentID, report)
	if err != nil {
		return missionOutput{}, err
	}
	return missionOutput{
		MissionType:        in.MissionType,
		SuccessProbability: summary.SuccessProbability,
		CredibleLo:         summary.CredibleInterval.Lo,
		CredibleHi:         summary.CredibleInterval.Hi,
		EvidenceCount:      summary.EvidenceCount,
	}, nil
}

// ===== snapshot =====

type snapshotGetInput struct {
	AgentID      string `json:"agent_id" jsonschema:"agent identifier"`
	Prefix       string `json:"prefix,omitempty" jsonschema:"only summaries whose id starts with this prefix"`
	HistoryLimit int    `json:"history_limit,omitempty" jsonschema:"maximum history entries"`
}

func (in snapshotGetInput) agent() string { return in.AgentID }

type summaryOutput struct {
	ID                 string             `json:"id"`
	Status             string             `json:"status"`
	Outcome            string             `json:"outcome,omitempty"`
	SuccessProbability float64            `json:"success_probability"`
	CredibleLo         float64            `json:"credible_lo"`
	CredibleHi         float64            `json:"credible_hi"`
	EvidenceCount      int                `json:"evidence_count"`
	Estimates          map[string]float64 `json:"estimates,omitempty"`
}

type traitOutput struct {
	Mean          float64 `json:"mean"`
	CredibleLo    float64 `json:"credible_lo"`
	CredibleHi    float64 `json:"credible_hi"`
	EvidenceCount int     `json:"evidence_count"`
}

type historyOutput struct {
	TargetID string   `json:"target_id"`
	Kind     string   `json:"kind"`
	At       string   `json:"at"`
	Outcome  string   `json:"outcome,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	Text     string   `json:"text,omitempty"`
}

type snapshotOutput struct {
	Summaries    []summaryOutput         `json:"summaries"`
	GlobalTraits map[string]traitOutput  `json:"global_traits"`
	Queue        []exploration.Candidate `json:"queue"`
	History      []historyOutput         `json:"history"`
	GeneratedAt  string                  `json:"generated_at"`
}

func (s *Server) snapshotGet(ctx context.Context, in snapshotGetInput) (snapshotOutput, error) {
	if in.HistoryLimit < 0 {
		return snapshotOutput{}, fmt.Errorf("history_limit must be non-negative")
	}
	snap, err := s.engine.GetSnapshot(ctx, engine.SnapshotRequest{
		AgentID:      in.AgentID,
		Prefix:       in.Prefix,
		HistoryLimit: in.HistoryLimit,
	})
	if err != nil {
		return snapshotOutput{}, err
	}

	out := snapshotOutput{
		Summaries:    make([]summaryOutput, 0, len(snap.Summaries)),
		GlobalTraits: make(map[string]traitOutput, len(snap.GlobalTraits)),
		Queue:        snap.Queue,
		History:      make([]historyOutput, 0, len(snap.History)),
		GeneratedAt:  snap.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, sum := range snap.Summaries {
		view := summaryOutput{
			ID:                 sum.ID,
			Status:             string(sum.Status),
			Outcome:            string(sum.Outcome),
			SuccessProbability: sum.SuccessProbability,
			CredibleLo:         sum.CredibleInterval.Lo,
			CredibleHi:         sum.CredibleInterval.Hi,
			EvidenceCount:      sum.EvidenceCount,
		}
		if len(sum.Variables) > 0 {
			view.Estimates = make(map[string]float64, len(sum.Variables))
			for name, v := range sum.Variables {
				view.Estimates[name] = variable.PointEstimate(v)
			}
		}
		out.Summaries = append(out.Summaries, view)
	}
	for name, tr := range snap.GlobalTraits {
		out.GlobalTraits[name] = traitOutput{
			Mean:          tr.Mean,
			CredibleLo:    tr.CredibleInterval.Lo,
			CredibleHi:    tr.CredibleInterval.Hi,
			EvidenceCount: tr.EvidenceCount,
		}
	}
	for _, h := range snap.History {
		out.History = append(out.History, historyOutput{
			TargetID: h.TargetID,
			Kind:     string(h.Kind),
			At:       h.At.UTC().Format(time.RFC3339),
			Outcome:  string(h.Outcome),
			Score:    h.Score,
			Text:     h.Text,
		})
	}
	if out.Queue == nil {
		out.Queue = []exploration.Candidate{}
	}
	return out, nil
}

// ===== exploration =====

type explorationProposeInput struct {
	AgentID            string   `json:"agent_id" jsonschema:"agent identifier"`
	MissionFailureRate *float64 `json:"mission_failure_rate,omitempty" jsonschema:"override the computed mission failure rate"`
	PuzzleFailureRate  *float64 `json:"puzzle_failure_rate,omitempty" jsonschema:"override the computed puzzle failure rate"`
}

func (in explorationProposeInput) agent() string { return in.AgentID }

type proposeOutput struct {
	Found     bool                   `json:"found"`
	Candidate *exploration.Candidate `json:"candidate,omitempty"`
}

func (s *Server) explorationPropose(ctx context.Context, in explorationProposeInput) (proposeOutput, error) {
	var override *exploration.Context
	if in.MissionFailureRate != nil || in.PuzzleFailureRate != nil {
		computed, err := s.engine.FailureContext(ctx, in.AgentID)
		if err != nil {
			return proposeOutput{}, err
		}
		if in.MissionFailureRate != nil {
			computed.MissionFailureRate = *in.MissionFailureRate
		}
		if in.PuzzleFailureRate != nil {
			computed.PuzzleFailureRate = *in.PuzzleFailureRate
		}
		override = &computed
	}

	cand, err := s.engine.ProposeNext(ctx, in.AgentID, override)
	if err != nil {
		return proposeOutput{}, err
	}
	return proposeOutput{Found: cand != nil, Candidate: cand}, nil
}

// ===== trust =====

type trustHeartbeatInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent identifier"`
}

func (in trustHeartbeatInput) agent() string { return in.AgentID }

type heartbeatOutput struct {
	Result          string  `json:"result"`
	RawScore        float64 `json:"raw_score"`
	Layer           int     `json:"layer"`
	PendingCeremony *int    `json:"pending_ceremony,omitempty"`
}

func (s *Server) trustHeartbeat(ctx context.Context, in trustHeartbeatInput) (heartbeatOutput, error) {
	state, result, err := s.engine.Heartbeat(ctx, in.AgentID)
	if err != nil {
		return heartbeatOutput{}, err
	}
	return heartbeatOutput{
		Result:          result,
		RawScore:        state.RawScore,
		Layer:           state.Layer,
		PendingCeremony: state.PendingCeremony,
	}, nil
}
