package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Config tunes how experiments feed the belief store.
type Config struct {
	// ObservationHalfLife decays experiment result and score variables.
	ObservationHalfLife time.Duration `koanf:"observation_half_life"`
	// TraitHalfLife decays global trait variables.
	TraitHalfLife time.Duration `koanf:"trait_half_life"`
	// TraitPrecision is the precision of one resolved experiment's evidence
	// about a tagged trait.
	TraitPrecision float64 `koanf:"trait_precision"`
}

// DefaultConfig returns the default experiment configuration.
func DefaultConfig() Config {
	return Config{
		TraitHalfLife:  30 * 24 * time.Hour,
		TraitPrecision: 1,
	}
}

// Lifecycle opens, observes and resolves experiments.
type Lifecycle struct {
	beliefs *belief.Service
	cfg     Config
	logger  *zap.Logger
}

// NewLifecycle creates an experiment lifecycle over a belief service.
func NewLifecycle(beliefs *belief.Service, cfg Config, logger *zap.Logger) (*Lifecycle, error) {
	if beliefs == nil {
		return nil, fmt.Errorf("belief service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TraitPrecision <= 0 {
		cfg.TraitPrecision = 1
	}
	return &Lifecycle{beliefs: beliefs, cfg: cfg, logger: logger}, nil
}

func (l *Lifecycle) bindings() []belief.Binding {
	return []belief.Binding{
		belief.OutcomeBinding(belief.VarResult).WithHalfLife(l.cfg.ObservationHalfLife),
		belief.ScoreBinding(belief.VarScore).WithHalfLife(l.cfg.ObservationHalfLife),
	}
}

// InitializeHypothesis opens an experiment. A missing id gets a generated
// one. Opening an experiment that already exists returns it unchanged; only
// the first open counts toward the type statistics.
func (l *Lifecycle) InitializeHypothesis(ctx context.Context, req InitRequest) (*Experiment, error) {
	if req.AgentID == "" {
		return nil, belief.ErrEmptyAgentID
	}
	if req.ExperimentID == "" {
		req.ExperimentID = uuid.NewString()
	}
	expType := strings.TrimSpace(req.ExperimentType)
	if expType == "" {
		expType = DefaultType
	}

	md := map[string]string{
		MetaExperimentID:    req.ExperimentID,
		MetaHypothesis:      req.Hypothesis,
		MetaTask:            req.Task,
		MetaTitle:           req.Title,
		MetaType:            expType,
		MetaSuccessCriteria: req.SuccessCriteria,
		MetaTraits:          strings.Join(normalizeTraits(req.Traits), ","),
	}

	summary, created, err := l.beliefs.EnsureWithMetadata(ctx, req.AgentID, belief.ExperimentID(req.ExperimentID), md)
	if err != nil {
		return nil, fmt.Errorf("ensure experiment %s: %w", req.ExperimentID, err)
	}
	if !created {
		l.logger.Debug("experiment already initialized",
			zap.String("agent_id", req.AgentID),
			zap.String("experiment_id", req.ExperimentID))
		return FromSummary(summary), nil
	}

	seed := belief.Observation{
		FreeformText: "experiment opened",
		Metadata:     map[string]string{MetaExperimentID: req.ExperimentID, MetaType: expType},
	}
	if _, err := l.beliefs.ApplyObservation(ctx, req.AgentID, TypesSummaryID, seed, []belief.Binding{
		belief.LabelBinding(VarTypes, expType),
		belief.Bind(variable.Spec{Name: ResolutionVariable(expType), Family: variable.FamilyTimeToEvent}, nil),
	}); err != nil {
		return nil, fmt.Errorf("seed experiment type %s: %w", expType, err)
	}

	l.logger.Info("experiment initialized",
		zap.String("agent_id", req.AgentID),
		zap.String("experiment_id", req.ExperimentID),
		zap.String("experiment_type", expType),
		zap.Strings("traits", normalizeTraits(req.Traits)))
	return FromSummary(summary), nil
}

// RecordObservation appends an observation to an experiment. A result
// updates the binary variable and a score updates the continuous one. Each
// observation on an active experiment also adds one censored turn to its
// type's time-to-resolution variable.
func (l *Lifecycle) RecordObservation(ctx context.Context, req ObservationRequest) (*Experiment, error) {
	if req.AgentID == "" {
		return nil, belief.ErrEmptyAgentID
	}
	if req.ExperimentID == "" {
		return nil, belief.ErrEmptySummaryID
	}

	before, err := l.beliefs.Ensure(ctx, req.AgentID, belief.ExperimentID(req.ExperimentID))
	if err != nil {
		return nil, fmt.Errorf("ensure experiment %s: %w", req.ExperimentID, err)
	}

	obs := belief.Observation{
		Outcome:      req.Result,
		Score:        req.Score,
		FreeformText: req.Text,
		Metadata:     req.Metadata,
	}
	summary, err := l.beliefs.ApplyObservation(ctx, req.AgentID, before.ID, obs, l.bindings())
	if err != nil {
		return nil, fmt.Errorf("record observation on %s: %w", req.ExperimentID, err)
	}

	if !before.Status.IsTerminal() {
		if err := l.recordTurn(ctx, req.AgentID, req.ExperimentID, before.Metadata[MetaType], true); err != nil {
			return nil, err
		}
	}
	return FromSummary(summary), nil
}

// Resolve closes an experiment and feeds the outcome into every global trait
// the experiment is tagged with. Resolving a closed experiment changes
// nothing. Unrecognised outcomes are treated as abandoned.
func (l *Lifecycle) Resolve(ctx context.Context, req ResolveRequest) (*Experiment, error) {
	if req.AgentID == "" {
		return nil, belief.ErrEmptyAgentID
	}
	if req.ExperimentID == "" {
		return nil, belief.ErrEmptySummaryID
	}

	outcome := normalizeOutcome(req.Outcome)
	if outcome != req.Outcome && req.Outcome != belief.OutcomeFail {
		l.logger.Warn("unrecognised experiment outcome, treating as abandoned",
			zap.String("agent_id", req.AgentID),
			zap.String("experiment_id", req.ExperimentID),
			zap.String("outcome", string(req.Outcome)))
	}

	before, err := l.beliefs.Ensure(ctx, req.AgentID, belief.ExperimentID(req.ExperimentID))
	if err != nil {
		return nil, fmt.Errorf("ensure experiment %s: %w", req.ExperimentID, err)
	}
	from := StateOf(before)
	to := StateFor(outcome)

	summary, err := l.beliefs.Resolve(ctx, req.AgentID, before.ID, belief.ResolveRequest{
		Outcome:    outcome,
		FinalScore: req.FinalScore,
		Resolution: req.Resolution,
		Metadata:   map[string]string{MetaExperimentID: req.ExperimentID},
	}, l.bindings())
	if err != nil {
		return nil, fmt.Errorf("resolve experiment %s: %w", req.ExperimentID, err)
	}
	if !from.CanTransitionTo(to) {
		return FromSummary(summary), nil
	}

	if to != StateAbandoned {
		if err := l.recordTurn(ctx, req.AgentID, req.ExperimentID, before.Metadata[MetaType], false); err != nil {
			return nil, err
		}
		if err := l.feedTraits(ctx, req.AgentID, req.ExperimentID, splitTraits(before.Metadata[MetaTraits]), to, req.FinalScore); err != nil {
			return nil, err
		}
	}

	l.logger.Info("experiment resolved",
		zap.String("agent_id", req.AgentID),
		zap.String("experiment_id", req.ExperimentID),
		zap.String("state", string(to)))
	return FromSummary(summary), nil
}

// Get returns an experiment without creating it.
func (l *Lifecycle) Get(ctx context.Context, agentID, experimentID string) (*Experiment, error) {
	summary, err := l.beliefs.Get(ctx, agentID, belief.ExperimentID(experimentID))
	if err != nil {
		return nil, err
	}
	return FromSummary(summary), nil
}

// List returns an agent's experiments, optionally only active ones.
func (l *Lifecycle) List(ctx context.Context, agentID string, activeOnly bool) ([]*Experiment, error) {
	summaries, err := l.beliefs.List(ctx, belief.ScopeFilter{AgentID: agentID, Prefix: belief.ExperimentPrefix})
	if err != nil {
		return nil, err
	}
	out := make([]*Experiment, 0, len(summaries))
	for _, s := range summaries {
		exp := FromSummary(s)
		if activeOnly && exp.State.IsTerminal() {
			continue
		}
		out = append(out, exp)
	}
	return out, nil
}

// ActiveTypes returns the set of experiment types with an open experiment.
func (l *Lifecycle) ActiveTypes(ctx context.Context, agentID string) (map[string]bool, error) {
	active, err := l.List(ctx, agentID, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(active))
	for _, exp := range active {
		if exp.Type != "" {
			out[exp.Type] = true
		}
	}
	return out, nil
}

func (l *Lifecycle) recordTurn(ctx context.Context, agentID, experimentID, expType string, censored bool) error {
	if expType == "" {
		return nil
	}
	one := 1.0
	binding := belief.Bind(
		variable.Spec{Name: ResolutionVariable(expType), Family: variable.FamilyTimeToEvent},
		func(belief.Observation) (variable.Evidence, bool) {
			return variable.Evidence{Duration: &one, Censored: censored}, true
		},
	)
	obs := belief.Observation{
		FreeformText: "experiment turn",
		Metadata:     map[string]string{MetaExperimentID: experimentID, MetaType: expType},
	}
	if _, err := l.beliefs.ApplyObservation(ctx, agentID, TypesSummaryID, obs, []belief.Binding{binding}); err != nil {
		return fmt.Errorf("record resolution turn for %s: %w", expType, err)
	}
	return nil
}

func (l *Lifecycle) feedTraits(ctx context.Context, agentID, experimentID string, traits []string, state State, finalScore *float64) error {
	value := 0.0
	if state == StateResolvedSuccess {
		value = 1
	}
	if finalScore != nil {
		value = variable.ClampUnit(*finalScore)
	}

	spec := variable.Spec{Name: belief.VarTrait, HalfLife: l.cfg.TraitHalfLife}
	for _, trait := range traits {
		obs := belief.Observation{
			Score:    &value,
			Metadata: map[string]string{MetaExperimentID: experimentID},
		}
		if _, err := l.beliefs.ApplyObservation(ctx, agentID, belief.GlobalTraitID(trait), obs,
			[]belief.Binding{belief.TraitBinding(spec, l.cfg.TraitPrecision)}); err != nil {
			return fmt.Errorf("update trait %s: %w", trait, err)
		}
	}
	return nil
}

func normalizeOutcome(o belief.Outcome) belief.Outcome {
	switch {
	case o.IsSuccess():
		return belief.OutcomeSuccess
	case o.IsFailure():
		return belief.OutcomeFailure
	default:
		return belief.OutcomeAbandoned
	}
}

// IsNotFound reports whether err means the experiment does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, belief.ErrNotFound)
}
