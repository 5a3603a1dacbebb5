// Package exploration proposes which kind of experiment to run next, favouring
// types the engine knows least about.
package exploration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Config controls candidate generation and scoring.
type Config struct {
	// KnownTypes are always candidates, even before any experiment of that
	// type has run.
	KnownTypes []string `koanf:"known_types"`
	// FailureLinkedTypes are hypothesised to explain mission or puzzle
	// failure and get boosted when failure rates are high.
	FailureLinkedTypes []string `koanf:"failure_linked_types"`
	// FailureBoost multiplies the failure rate in the boost factor.
	FailureBoost float64 `koanf:"failure_boost"`
	// MinScore is the score a candidate needs to be proposed.
	MinScore float64 `koanf:"min_score"`
}

// DefaultConfig returns the default exploration configuration.
func DefaultConfig() Config {
	return Config{
		KnownTypes:         []string{"compliance", "curiosity", "persistence", "risk", "social"},
		FailureLinkedTypes: []string{"compliance", "persistence"},
		FailureBoost:       1,
		MinScore:           0.05,
	}
}

// Context carries the signals that shift exploration priorities.
type Context struct {
	MissionFailureRate float64 `json:"mission_failure_rate"`
	PuzzleFailureRate  float64 `json:"puzzle_failure_rate"`
}

// Candidate is a ranked experiment type.
type Candidate struct {
	ExperimentType string  `json:"experiment_type"`
	Bonus          float64 `json:"bonus"`
	Score          float64 `json:"score"`
	EvidenceCount  float64 `json:"evidence_count"`
	Reason         string  `json:"reason"`
}

// ActiveTypeSource reports experiment types that are currently running.
type ActiveTypeSource interface {
	ActiveTypes(ctx context.Context, agentID string) (map[string]bool, error)
}

// Scheduler ranks experiment types.
type Scheduler struct {
	beliefs *belief.Service
	active  ActiveTypeSource
	cfg     Config
	linked  map[string]bool
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. active may be nil, in which case no type
// is skipped for having a running experiment.
func NewScheduler(beliefs *belief.Service, active ActiveTypeSource, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if beliefs == nil {
		return nil, fmt.Errorf("belief service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	linked := make(map[string]bool, len(cfg.FailureLinkedTypes))
	for _, t := range cfg.FailureLinkedTypes {
		linked[normalize(t)] = true
	}
	return &Scheduler{beliefs: beliefs, active: active, cfg: cfg, linked: linked, logger: logger}, nil
}

// Bonus maps an evidence count to an exploration bonus in (0,1]: 1 for an
// unseen type, falling toward 0 as evidence accumulates.
func Bonus(evidence float64) float64 {
	if evidence < 0 || math.IsNaN(evidence) {
		evidence = 0
	}
	return 1 / math.Sqrt(1+evidence)
}

// ExplorationBonus returns the bonus of one experiment type.
func (s *Scheduler) ExplorationBonus(ctx context.Context, agentID, experimentType string) (float64, error) {
	counts, err := s.typeCounts(ctx, agentID)
	if err != nil {
		return 0, err
	}
	return Bonus(counts[normalize(experimentType)]), nil
}

// Queue ranks every qualifying candidate, best first.
func (s *Scheduler) Queue(ctx context.Context, agentID string, c Context) ([]Candidate, error) {
	counts, err := s.typeCounts(ctx, agentID)
	if err != nil {
		return nil, err
	}
	running := map[string]bool{}
	if s.active != nil {
		running, err = s.active.ActiveTypes(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("list active experiment types: %w", err)
		}
	}

	types := map[string]bool{}
	for _, t := range s.cfg.KnownTypes {
		types[normalize(t)] = true
	}
	for t := range counts {
		types[t] = true
	}

	failure := math.Max(variable.ClampUnit(c.MissionFailureRate), variable.ClampUnit(c.PuzzleFailureRate))

	out := make([]Candidate, 0, len(types))
	for t := range types {
		if t == "" || running[t] {
			continue
		}
		n := counts[t]
		cand := Candidate{
			ExperimentType: t,
			Bonus:          Bonus(n),
			EvidenceCount:  n,
		}
		cand.Score = cand.Bonus
		cand.Reason = fmt.Sprintf("%s has %.0f prior experiments", t, n)
		if s.linked[t] && failure > 0 {
			cand.Score *= 1 + s.cfg.FailureBoost*failure
			cand.Reason += fmt.Sprintf("; boosted by recent failure rate %.2f", failure)
		}
		if cand.Score < s.cfg.MinScore {
			continue
		}
		out = append(out, cand)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ExperimentType < out[j].ExperimentType
	})
	return out, nil
}

// ProposeNext returns the best candidate, or nil when nothing qualifies.
func (s *Scheduler) ProposeNext(ctx context.Context, agentID string, c Context) (*Candidate, error) {
	queue, err := s.Queue(ctx, agentID, c)
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		s.logger.Debug("no exploration candidate qualifies", zap.String("agent_id", agentID))
		return nil, nil
	}
	best := queue[0]
	return &best, nil
}

func (s *Scheduler) typeCounts(ctx context.Context, agentID string) (map[string]float64, error) {
	if agentID == "" {
		return nil, belief.ErrEmptyAgentID
	}
	summary, err := s.beliefs.Get(ctx, agentID, experiment.TypesSummaryID)
	if errors.Is(err, belief.ErrNotFound) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	v, ok := summary.Variables[experiment.VarTypes]
	if !ok {
		return map[string]float64{}, nil
	}
	counts := make(map[string]float64)
	for _, label := range variable.Labels(v) {
		counts[label] = variable.LabelCount(v, label)
	}
	return counts, nil
}

func normalize(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
