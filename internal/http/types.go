package http

import (
	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules"`
}

// InitializeRequest opens a hypothesis.
type InitializeRequest struct {
	ID              string   `json:"id,omitempty"`
	Hypothesis      string   `json:"hypothesis"`
	Task            string   `json:"task,omitempty"`
	Title           string   `json:"title,omitempty"`
	ExperimentType  string   `json:"experiment_type"`
	SuccessCriteria string   `json:"success_criteria,omitempty"`
	Traits          []string `json:"traits,omitempty"`
}

// ObservationRequest records evidence against an experiment.
type ObservationRequest struct {
	Text     string            `json:"text,omitempty"`
	Result   belief.Outcome    `json:"result,omitempty"`
	Score    *float64          `json:"score,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResolveRequest closes an experiment.
type ResolveRequest struct {
	Outcome    belief.Outcome `json:"outcome"`
	FinalScore *float64       `json:"final_score,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
}

// EvolveRequest applies a raw trust delta.
type EvolveRequest struct {
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

// TrustEventRequest applies the delta for a named event.
type TrustEventRequest struct {
	Event trust.EventKind `json:"event"`
	Score *float64        `json:"score,omitempty"`
}

// HeartbeatResponse is the response body for POST .../trust/heartbeat.
type HeartbeatResponse struct {
	Result string       `json:"result"`
	State  *trust.State `json:"state"`
}

// CeremonyResponse is the response body for a ceremony completion.
type CeremonyResponse struct {
	Cleared bool         `json:"cleared"`
	State   *trust.State `json:"state"`
}

// PuzzleCheckRequest asks whether a planned puzzle suits the agent.
type PuzzleCheckRequest struct {
	PuzzleType string   `json:"puzzle_type"`
	Difficulty float64  `json:"difficulty"`
	Components []string `json:"components,omitempty"`
}

// BonusResponse is the response body for GET .../exploration/bonus.
type BonusResponse struct {
	ExperimentType string  `json:"experiment_type"`
	Bonus          float64 `json:"bonus"`
}

// ProposeResponse wraps the next candidate, which is null when nothing
// qualifies.
type ProposeResponse struct {
	Candidate *exploration.Candidate `json:"candidate"`
	Context   exploration.Context    `json:"context"`
}
