package belief

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Id prefixes.
const (
	ExperimentPrefix  = "experiment:"
	MissionTypePrefix = "mission:type:"
	GlobalTraitPrefix = "global:trait:"
)

// ExperimentID returns the Summary id for an experiment.
func ExperimentID(id string) string { return ExperimentPrefix + id }

// MissionTypeID returns the Summary id for a mission type.
func MissionTypeID(missionType string) string { return MissionTypePrefix + missionType }

// GlobalTraitID returns the Summary id for a global trait.
func GlobalTraitID(name string) string { return GlobalTraitPrefix + name }

// TraitName strips the global trait prefix, reporting whether it was present.
func TraitName(id string) (string, bool) {
	if !strings.HasPrefix(id, GlobalTraitPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, GlobalTraitPrefix), true
}

// Status is the lifecycle state of a Summary.
type Status string

const (
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusAbandoned Status = "abandoned"
)

// ValidTransitions defines allowed status transitions.
var ValidTransitions = map[Status][]Status{
	StatusActive:    {StatusResolved, StatusAbandoned},
	StatusResolved:  {}, // terminal
	StatusAbandoned: {}, // terminal
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusAbandoned
}

// Outcome is the result carried by an Observation or a resolution.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFail      Outcome = "fail"
	OutcomeNeutral   Outcome = "neutral"
	OutcomeFailure   Outcome = "failure"
	OutcomeAbandoned Outcome = "abandoned"
)

// IsSuccess reports whether o counts as a success.
func (o Outcome) IsSuccess() bool { return o == OutcomeSuccess }

// IsFailure reports whether o counts as a failure. Both spellings are accepted
// because upstream producers use either.
func (o Outcome) IsFailure() bool { return o == OutcomeFail || o == OutcomeFailure }

// Summary is the aggregate belief state for one entity of one agent.
type Summary struct {
	AgentID            string                       `json:"agent_id"`
	ID                 string                       `json:"id"`
	Status             Status                       `json:"status"`
	Outcome            Outcome                      `json:"outcome,omitempty"`
	Resolution         string                       `json:"resolution,omitempty"`
	Variables          map[string]variable.Variable `json:"variables"`
	SuccessProbability float64                      `json:"success_probability"`
	CredibleInterval   variable.Interval            `json:"credible_interval"`
	EvidenceCount      int                          `json:"evidence_count"`
	Metadata           map[string]string            `json:"metadata,omitempty"`
	CreatedAt          time.Time                    `json:"created_at"`
	UpdatedAt          time.Time                    `json:"updated_at"`
	ResolvedAt         *time.Time                   `json:"resolved_at,omitempty"`
	Version            int64                        `json:"version"`
}

// NewSummary creates an active Summary with no variables.
func NewSummary(agentID, id string, now time.Time) *Summary {
	return &Summary{
		AgentID:            agentID,
		ID:                 id,
		Status:             StatusActive,
		Variables:          map[string]variable.Variable{},
		SuccessProbability: 0.5,
		CredibleInterval:   variable.UnitInterval,
		Metadata:           map[string]string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Clone returns a deep copy of s.
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	out := *s
	out.Variables = make(map[string]variable.Variable, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v.Clone()
	}
	out.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	if s.ResolvedAt != nil {
		at := *s.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

// Variable returns the named variable.
func (s *Summary) Variable(name string) (variable.Variable, bool) {
	v, ok := s.Variables[name]
	return v, ok
}

// Estimate returns the point estimate of the named variable, or fallback.
func (s *Summary) Estimate(name string, fallback float64) float64 {
	v, ok := s.Variables[name]
	if !ok {
		return fallback
	}
	return variable.PointEstimate(v)
}

// Observation is one piece of upstream evidence addressed to a Summary.
type Observation struct {
	TargetID     string            `json:"target_id"`
	Timestamp    time.Time         `json:"timestamp"`
	Outcome      Outcome           `json:"outcome,omitempty"`
	Score        *float64          `json:"score,omitempty"`
	FreeformText string            `json:"freeform_text,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// HistoryKind classifies history entries.
type HistoryKind string

const (
	HistoryObservation HistoryKind = "observation"
	HistoryResolution  HistoryKind = "resolution"
	HistoryRejected    HistoryKind = "rejected"
)

// HistoryEntry is one row of the append-only audit log.
type HistoryEntry struct {
	ID       string            `json:"id"`
	AgentID  string            `json:"agent_id"`
	TargetID string            `json:"target_id"`
	Kind     HistoryKind       `json:"kind"`
	At       time.Time         `json:"at"`
	Outcome  Outcome           `json:"outcome,omitempty"`
	Score    *float64          `json:"score,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Applied  bool              `json:"applied"`
}

// ScopeFilter narrows a snapshot. Zero values match everything.
type ScopeFilter struct {
	AgentID string
	Prefix  string
}

// Matches reports whether s falls inside the filter.
func (f ScopeFilter) Matches(s *Summary) bool {
	if f.AgentID != "" && s.AgentID != f.AgentID {
		return false
	}
	return strings.HasPrefix(s.ID, f.Prefix)
}

// TraitEstimate is a folded global trait.
type TraitEstimate struct {
	Mean             float64           `json:"mean"`
	CredibleInterval variable.Interval `json:"credible_interval"`
	EvidenceCount    int               `json:"evidence_count"`
}

// SnapshotResult is the read-only view returned by Snapshot.
type SnapshotResult struct {
	Summaries    []*Summary               `json:"summaries"`
	GlobalTraits map[string]TraitEstimate `json:"global_traits"`
}
