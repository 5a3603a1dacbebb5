// Package experiment runs hypothesis experiments on top of the belief store.
// An experiment opens as active, collects observations, and resolves once to
// success, failure or abandoned.
package experiment

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/belief"
)

// State represents the lifecycle state of an experiment.
type State string

const (
	StateActive          State = "active"
	StateResolvedSuccess State = "resolved_success"
	StateResolvedFailure State = "resolved_failure"
	StateAbandoned       State = "abandoned"
)

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[State][]State{
	StateActive:          {StateResolvedSuccess, StateResolvedFailure, StateAbandoned},
	StateResolvedSuccess: {}, // terminal
	StateResolvedFailure: {}, // terminal
	StateAbandoned:       {}, // terminal
}

// CanTransitionTo checks if a transition from current state to target is valid.
func (s State) CanTransitionTo(target State) bool {
	allowed, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateResolvedSuccess || s == StateResolvedFailure || s == StateAbandoned
}

// StateFor maps a resolution outcome to the terminal state it produces.
func StateFor(outcome belief.Outcome) State {
	switch {
	case outcome.IsSuccess():
		return StateResolvedSuccess
	case outcome.IsFailure():
		return StateResolvedFailure
	default:
		return StateAbandoned
	}
}

// StateOf derives the experiment state from its Summary.
func StateOf(s *belief.Summary) State {
	switch s.Status {
	case belief.StatusAbandoned:
		return StateAbandoned
	case belief.StatusResolved:
		if s.Outcome.IsSuccess() {
			return StateResolvedSuccess
		}
		return StateResolvedFailure
	default:
		return StateActive
	}
}

// Metadata keys stored on experiment Summaries.
const (
	MetaHypothesis      = "hypothesis"
	MetaTask            = "task"
	MetaTitle           = "title"
	MetaType            = "experiment_type"
	MetaSuccessCriteria = "success_criteria"
	MetaTraits          = "traits"
	MetaExperimentID    = "experiment_id"
)

// DefaultType is used when an experiment is opened without a type.
const DefaultType = "general"

// TypesSummaryID accumulates type-level statistics across experiments.
var TypesSummaryID = belief.GlobalTraitID("experiment_types")

const (
	VarTypes             = "types"
	resolutionTurnPrefix = "resolution_turns:"
)

// ResolutionVariable names the time_to_event variable tracking how many
// observation turns experiments of a type take to resolve.
func ResolutionVariable(experimentType string) string {
	return resolutionTurnPrefix + experimentType
}

// Experiment is the lifecycle view of an experiment Summary.
type Experiment struct {
	ID              string          `json:"id"`
	AgentID         string          `json:"agent_id"`
	Hypothesis      string          `json:"hypothesis,omitempty"`
	Task            string          `json:"task,omitempty"`
	Title           string          `json:"title,omitempty"`
	Type            string          `json:"experiment_type"`
	SuccessCriteria string          `json:"success_criteria,omitempty"`
	Traits          []string        `json:"traits,omitempty"`
	State           State           `json:"state"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	Summary         *belief.Summary `json:"summary"`
}

// FromSummary builds the experiment view of an experiment Summary.
func FromSummary(s *belief.Summary) *Experiment {
	md := s.Metadata
	exp := &Experiment{
		ID:              strings.TrimPrefix(s.ID, belief.ExperimentPrefix),
		AgentID:         s.AgentID,
		Hypothesis:      md[MetaHypothesis],
		Task:            md[MetaTask],
		Title:           md[MetaTitle],
		Type:            md[MetaType],
		SuccessCriteria: md[MetaSuccessCriteria],
		Traits:          splitTraits(md[MetaTraits]),
		State:           StateOf(s),
		CreatedAt:       s.CreatedAt,
		ResolvedAt:      s.ResolvedAt,
		Summary:         s,
	}
	return exp
}

// InitRequest opens a hypothesis.
type InitRequest struct {
	AgentID         string
	ExperimentID    string
	Hypothesis      string
	Task            string
	Title           string
	ExperimentType  string
	SuccessCriteria string
	Traits          []string
}

// ObservationRequest records one observation against an experiment.
type ObservationRequest struct {
	AgentID      string
	ExperimentID string
	Text         string
	Result       belief.Outcome
	Score        *float64
	Metadata     map[string]string
}

// ResolveRequest closes an experiment.
type ResolveRequest struct {
	AgentID      string
	ExperimentID string
	Outcome      belief.Outcome
	FinalScore   *float64
	Resolution   string
}

func normalizeTraits(traits []string) []string {
	seen := make(map[string]bool, len(traits))
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func splitTraits(raw string) []string {
	if raw == "" {
		return nil
	}
	return normalizeTraits(strings.Split(raw, ","))
}
