// Package mission turns mission outcomes reported by the mission subsystem
// into evidence on per-type Summaries.
package mission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Status is the state a mission was reported in.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusOpen      Status = "open"
)

// Variable names on mission:type:* Summaries.
const (
	VarSuccess         = "success"
	VarScore           = "score"
	VarMinEvidence     = "min_evidence"
	VarResolutionHours = "resolution_hours"
	VarPayloadBand     = "payload_band"
)

// payloadBands are the upper bounds, in characters, of payload bands 0..2.
// Anything longer falls into band 3.
var payloadBands = []int{200, 800, 2000}

// PayloadBand returns the ordinal band of a payload length.
func PayloadBand(length int) int {
	for i, bound := range payloadBands {
		if length < bound {
			return i
		}
	}
	return len(payloadBands)
}

// Report is a mission outcome from the mission subsystem.
type Report struct {
	MissionID     string     `json:"mission_id,omitempty"`
	MissionType   string     `json:"mission_type"`
	Status        Status     `json:"status"`
	Score         *float64   `json:"score,omitempty"`
	MinEvidence   int        `json:"min_evidence"`
	PayloadLength int        `json:"payload_length"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// Recorder applies mission reports to the belief store.
type Recorder struct {
	beliefs  *belief.Service
	halfLife time.Duration
	logger   *zap.Logger
}

// NewRecorder creates a Recorder. halfLife decays the per-type variables;
// zero disables decay.
func NewRecorder(beliefs *belief.Service, halfLife time.Duration, logger *zap.Logger) (*Recorder, error) {
	if beliefs == nil {
		return nil, fmt.Errorf("belief service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{beliefs: beliefs, halfLife: halfLife, logger: logger}, nil
}

// Record applies one mission report to mission:type:<type>. A single report
// touches the success, score, minimum evidence, resolution time and payload
// band variables.
func (r *Recorder) Record(ctx context.Context, agentID string, report Report) (*belief.Summary, error) {
	missionType := strings.TrimSpace(report.MissionType)
	if missionType == "" {
		missionType = "unknown"
	}
	now := r.beliefs.Now()

	obs := belief.Observation{
		Timestamp: now,
		Score:     report.Score,
		Metadata: map[string]string{
			"mission_id": report.MissionID,
			"status":     string(report.Status),
		},
	}
	switch report.Status {
	case StatusCompleted:
		obs.Outcome = belief.OutcomeSuccess
	case StatusFailed, StatusExpired:
		obs.Outcome = belief.OutcomeFail
	}

	summary, err := r.beliefs.ApplyObservation(ctx, agentID, belief.MissionTypeID(missionType), obs, r.bindings(report, now))
	if err != nil {
		return nil, fmt.Errorf("record mission %s: %w", missionType, err)
	}

	r.logger.Debug("mission outcome recorded",
		zap.String("agent_id", agentID),
		zap.String("mission_type", missionType),
		zap.String("status", string(report.Status)),
		zap.Float64("success_probability", summary.SuccessProbability))
	return summary, nil
}

func (r *Recorder) bindings(report Report, now time.Time) []belief.Binding {
	minEvidence := float64(report.MinEvidence)
	band := PayloadBand(report.PayloadLength)

	hours, censored, known := resolutionHours(report, now)

	return []belief.Binding{
		belief.Bind(variable.Spec{Name: VarSuccess, Family: variable.FamilyBinary, HalfLife: r.halfLife},
			belief.OutcomeBinding(VarSuccess).Extract),
		belief.Bind(variable.Spec{Name: VarScore, Family: variable.FamilyContinuous01, HalfLife: r.halfLife},
			belief.ScoreBinding(VarScore).Extract),
		belief.Bind(variable.Spec{Name: VarMinEvidence, Family: variable.FamilyCount, HalfLife: r.halfLife},
			func(belief.Observation) (variable.Evidence, bool) {
				if report.MinEvidence < 0 {
					return variable.Evidence{}, false
				}
				return variable.Evidence{Count: &minEvidence}, true
			}),
		belief.Bind(variable.Spec{Name: VarResolutionHours, Family: variable.FamilyTimeToEvent, HalfLife: r.halfLife},
			func(belief.Observation) (variable.Evidence, bool) {
				if !known {
					return variable.Evidence{}, false
				}
				return variable.Evidence{Duration: &hours, Censored: censored}, true
			}),
		belief.Bind(variable.Spec{Name: VarPayloadBand, Family: variable.FamilyOrdinal, Levels: len(payloadBands) + 1, HalfLife: r.halfLife},
			func(belief.Observation) (variable.Evidence, bool) {
				if report.PayloadLength <= 0 {
					return variable.Evidence{}, false
				}
				return variable.Evidence{Level: &band}, true
			}),
	}
}

// resolutionHours returns the time a mission took, and whether it is a
// censored exposure (the mission never resolved).
func resolutionHours(report Report, now time.Time) (hours float64, censored, known bool) {
	if report.CreatedAt.IsZero() {
		return 0, false, false
	}
	end := now
	censored = true
	if report.ResolvedAt != nil && report.Status != StatusExpired && report.Status != StatusOpen {
		end = *report.ResolvedAt
		censored = false
	}
	if end.Before(report.CreatedAt) {
		return 0, false, false
	}
	return end.Sub(report.CreatedAt).Hours(), censored, true
}

// FailureRate returns one minus the pooled success probability across every
// mission type of the agent, or 0 when there is no mission evidence.
func (r *Recorder) FailureRate(ctx context.Context, agentID string) (float64, error) {
	summaries, err := r.beliefs.List(ctx, belief.ScopeFilter{AgentID: agentID, Prefix: belief.MissionTypePrefix})
	if err != nil {
		return 0, err
	}
	now := r.beliefs.Now()
	pooled := make(map[string]variable.Variable)
	for _, s := range summaries {
		for name, v := range s.Variables {
			pooled[s.ID+"/"+name] = variable.Decay(v, now)
		}
	}
	if belief.SuccessMass(pooled) <= 0 {
		return 0, nil
	}
	p, _ := belief.PooledSuccess(pooled, r.beliefs.CredibleLevel())
	return 1 - p, nil
}
