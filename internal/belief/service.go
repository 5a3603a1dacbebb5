package belief

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// Service manages Summaries on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	level  float64
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock used for timestamps and decay.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCredibleLevel sets the posterior mass of reported credible intervals.
func WithCredibleLevel(level float64) Option {
	return func(s *Service) {
		if level > 0 && level < 1 {
			s.level = level
		}
	}
}

// NewService creates a belief service.
func NewService(store Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("belief store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		level:  variable.DefaultCredibleLevel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// CredibleLevel returns the configured interval mass.
func (s *Service) CredibleLevel() float64 {
	return s.level
}

// Ensure fetches the Summary, creating an active empty one if it does not
// exist. It is the only way Summaries come into existence.
func (s *Service) Ensure(ctx context.Context, agentID, id string) (*Summary, error) {
	summary, _, err := s.EnsureWithMetadata(ctx, agentID, id, nil)
	return summary, err
}

// EnsureWithMetadata is Ensure with metadata applied only when the Summary is
// created. The boolean reports whether this call created it.
func (s *Service) EnsureWithMetadata(ctx context.Context, agentID, id string, metadata map[string]string) (*Summary, bool, error) {
	if agentID == "" {
		return nil, false, ErrEmptyAgentID
	}
	if id == "" {
		return nil, false, ErrEmptySummaryID
	}

	existing, err := s.store.GetSummary(ctx, agentID, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, persistErr("get summary", err)
	}

	summary := NewSummary(agentID, id, s.now())
	for k, v := range metadata {
		summary.Metadata[k] = v
	}
	if err := s.store.PutSummary(ctx, summary); err != nil {
		if errors.Is(err, ErrConflict) {
			// Created concurrently; take theirs.
			existing, getErr := s.store.GetSummary(ctx, agentID, id)
			if getErr != nil {
				return nil, false, persistErr("get summary", getErr)
			}
			return existing, false, nil
		}
		return nil, false, persistErr("create summary", err)
	}

	SummariesCreated.Inc()
	s.logger.Debug("summary created",
		zap.String("agent_id", agentID),
		zap.String("summary_id", id))
	return summary, true, nil
}

// Get returns a stored Summary without creating it.
func (s *Service) Get(ctx context.Context, agentID, id string) (*Summary, error) {
	summary, err := s.store.GetSummary(ctx, agentID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, persistErr("get summary", err)
	}
	return summary, nil
}

// List returns stored Summaries matching filter without decay.
func (s *Service) List(ctx context.Context, filter ScopeFilter) ([]*Summary, error) {
	summaries, err := s.store.ListSummaries(ctx, filter)
	if err != nil {
		return nil, persistErr("list summaries", err)
	}
	return summaries, nil
}

// ApplyObservation routes obs through bindings into the Summary's variables.
//
// The observation is always appended to history. Against a terminal Summary
// nothing else happens. Otherwise all variables are decayed to now, each
// binding that finds evidence updates its variable, and EvidenceCount grows
// by one if anything changed.
func (s *Service) ApplyObservation(ctx context.Context, agentID, id string, obs Observation, bindings []Binding) (*Summary, error) {
	summary, err := s.Ensure(ctx, agentID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	obs.TargetID = id
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}

	if summary.Status.IsTerminal() {
		s.logger.Warn("observation against terminal summary",
			zap.String("agent_id", agentID),
			zap.String("summary_id", id),
			zap.String("status", string(summary.Status)),
			zap.Error(ErrInvalidTransition))
		if err := s.appendHistory(ctx, agentID, HistoryRejected, obs, false); err != nil {
			return nil, err
		}
		ObservationsTotal.WithLabelValues(namespaceOf(id), "false").Inc()
		return summary, nil
	}

	applied := s.apply(summary, obs, bindings, now)
	if applied {
		summary.EvidenceCount++
	}
	summary.UpdatedAt = now
	s.recompute(summary)

	if err := s.store.PutSummary(ctx, summary); err != nil {
		return nil, persistErr("put summary", err)
	}
	if err := s.appendHistory(ctx, agentID, HistoryObservation, obs, applied); err != nil {
		return nil, err
	}

	ObservationsTotal.WithLabelValues(namespaceOf(id), strconv.FormatBool(applied)).Inc()
	s.logger.Debug("observation applied",
		zap.String("agent_id", agentID),
		zap.String("summary_id", id),
		zap.Bool("applied", applied),
		zap.Int("evidence_count", summary.EvidenceCount),
		zap.Float64("success_probability", summary.SuccessProbability))
	return summary, nil
}

// ResolveRequest describes a terminal outcome.
type ResolveRequest struct {
	Outcome    Outcome
	FinalScore *float64
	Resolution string
	Metadata   map[string]string
}

// Resolve applies one last observation for the terminal outcome, then moves
// the Summary to resolved (success or failure) or abandoned. Resolving a
// terminal Summary is logged and recorded in history but changes nothing.
func (s *Service) Resolve(ctx context.Context, agentID, id string, req ResolveRequest, bindings []Binding) (*Summary, error) {
	summary, err := s.Ensure(ctx, agentID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	target := StatusResolved
	obs := Observation{
		TargetID:     id,
		Timestamp:    now,
		Score:        req.FinalScore,
		FreeformText: req.Resolution,
		Metadata:     req.Metadata,
	}
	switch {
	case req.Outcome == OutcomeAbandoned:
		target = StatusAbandoned
		obs.Outcome = OutcomeNeutral
	case req.Outcome.IsSuccess():
		obs.Outcome = OutcomeSuccess
	default:
		obs.Outcome = OutcomeFail
	}

	if !summary.Status.CanTransitionTo(target) {
		s.logger.Warn("resolve against terminal summary",
			zap.String("agent_id", agentID),
			zap.String("summary_id", id),
			zap.String("status", string(summary.Status)),
			zap.String("requested", string(target)),
			zap.Error(ErrInvalidTransition))
		if err := s.appendHistory(ctx, agentID, HistoryRejected, obs, false); err != nil {
			return nil, err
		}
		return summary, nil
	}

	applied := s.apply(summary, obs, bindings, now)
	if applied {
		summary.EvidenceCount++
	}
	s.recompute(summary)
	summary.Status = target
	summary.Outcome = req.Outcome
	if req.Outcome == OutcomeFail {
		summary.Outcome = OutcomeFailure
	}
	summary.Resolution = req.Resolution
	summary.UpdatedAt = now
	summary.ResolvedAt = &now

	if err := s.store.PutSummary(ctx, summary); err != nil {
		return nil, persistErr("put summary", err)
	}
	if err := s.appendHistory(ctx, agentID, HistoryResolution, obs, applied); err != nil {
		return nil, err
	}

	ResolutionsTotal.WithLabelValues(string(target)).Inc()
	s.logger.Info("summary resolved",
		zap.String("agent_id", agentID),
		zap.String("summary_id", id),
		zap.String("status", string(target)),
		zap.String("outcome", string(summary.Outcome)),
		zap.Float64("success_probability", summary.SuccessProbability))
	return summary, nil
}

// SetMetadata merges metadata into an existing Summary. Variables are not
// touched, so this is allowed on terminal Summaries too.
func (s *Service) SetMetadata(ctx context.Context, agentID, id string, metadata map[string]string) (*Summary, error) {
	summary, err := s.Ensure(ctx, agentID, id)
	if err != nil {
		return nil, err
	}
	for k, v := range metadata {
		summary.Metadata[k] = v
	}
	summary.UpdatedAt = s.now()
	if err := s.store.PutSummary(ctx, summary); err != nil {
		return nil, persistErr("put summary", err)
	}
	return summary, nil
}

// Snapshot returns decayed copies of the matching Summaries and the folded
// global traits. Nothing is written back.
//
// When the filter spans several agents, traits with the same name are
// combined weighted by their precision.
func (s *Service) Snapshot(ctx context.Context, filter ScopeFilter, now time.Time) (*SnapshotResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	summaries, err := s.store.ListSummaries(ctx, filter)
	if err != nil {
		return nil, persistErr("list summaries", err)
	}

	type acc struct {
		weighted, precision float64
		evidence            int
	}
	traits := map[string]*acc{}

	for _, summary := range summaries {
		for name, v := range summary.Variables {
			summary.Variables[name] = variable.Decay(v, now)
		}
		s.recompute(summary)

		name, ok := TraitName(summary.ID)
		if !ok {
			continue
		}
		v, ok := summary.Variables[VarTrait]
		if !ok {
			continue
		}
		ls, ok := v.Stats.(variable.LatentStats)
		if !ok {
			continue
		}
		a := traits[name]
		if a == nil {
			a = &acc{}
			traits[name] = a
		}
		a.weighted += ls.Mean * ls.Precision
		a.precision += ls.Precision
		a.evidence += summary.EvidenceCount
	}

	result := &SnapshotResult{
		Summaries:    summaries,
		GlobalTraits: make(map[string]TraitEstimate, len(traits)),
	}
	for name, a := range traits {
		if a.precision <= 0 {
			continue
		}
		folded := variable.Variable{
			Name:   VarTrait,
			Family: variable.FamilyLatentTrait,
			Stats:  variable.LatentStats{Mean: a.weighted / a.precision, Precision: a.precision},
		}
		result.GlobalTraits[name] = TraitEstimate{
			Mean:             variable.PointEstimate(folded),
			CredibleInterval: variable.CredibleInterval(folded, s.level),
			EvidenceCount:    a.evidence,
		}
	}
	return result, nil
}

// History returns the audit log for an agent, optionally narrowed to one
// target id or an id prefix ending in ':'.
func (s *Service) History(ctx context.Context, agentID, targetID string, limit int) ([]HistoryEntry, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	entries, err := s.store.ListHistory(ctx, agentID, targetID, limit)
	if err != nil {
		return nil, persistErr("list history", err)
	}
	return entries, nil
}

// apply decays every variable to now and routes obs through bindings.
func (s *Service) apply(summary *Summary, obs Observation, bindings []Binding, now time.Time) bool {
	for name, v := range summary.Variables {
		summary.Variables[name] = variable.Decay(v, now)
	}

	applied := false
	for _, b := range bindings {
		v, ok := summary.Variables[b.Spec.Name]
		if !ok {
			created, err := variable.New(b.Spec)
			if err != nil {
				s.logger.Warn("skipping invalid variable spec",
					zap.String("summary_id", summary.ID),
					zap.String("variable", b.Spec.Name),
					zap.Error(err))
				continue
			}
			v = created
			v.LastUpdatedAt = now
		}
		if b.Extract != nil {
			if ev, ok := b.Extract(obs); ok {
				ev.At = now
				var changed bool
				v, changed = variable.Update(v, ev)
				applied = applied || changed
			}
		}
		summary.Variables[b.Spec.Name] = v
	}
	return applied
}

func (s *Service) recompute(summary *Summary) {
	summary.SuccessProbability, summary.CredibleInterval = PooledSuccess(summary.Variables, s.level)
}

// PooledSuccess combines the binary and continuous_01 variables of a Summary
// into one success probability. Each posterior mean is weighted by its
// evidence mass, which is the same as pooling their Beta pseudo-counts. With
// no evidence the result is 0.5 over [0,1].
func PooledSuccess(vars map[string]variable.Variable, level float64) (float64, variable.Interval) {
	alpha, beta := pooledBeta(vars)
	if alpha+beta <= 0 {
		return 0.5, variable.UnitInterval
	}
	return alpha / (alpha + beta), variable.BetaInterval(alpha, beta, level)
}

// SuccessMass returns the pseudo-trial mass behind PooledSuccess.
func SuccessMass(vars map[string]variable.Variable) float64 {
	alpha, beta := pooledBeta(vars)
	return alpha + beta
}

func pooledBeta(vars map[string]variable.Variable) (alpha, beta float64) {
	for _, v := range vars {
		if !v.Family.IsSuccessLike() {
			continue
		}
		if b, ok := v.Stats.(variable.BetaStats); ok {
			alpha += b.Alpha
			beta += b.Beta
		}
	}
	return alpha, beta
}

func (s *Service) appendHistory(ctx context.Context, agentID string, kind HistoryKind, obs Observation, applied bool) error {
	entry := HistoryEntry{
		ID:       uuid.NewString(),
		AgentID:  agentID,
		TargetID: obs.TargetID,
		Kind:     kind,
		At:       obs.Timestamp,
		Outcome:  obs.Outcome,
		Score:    obs.Score,
		Text:     obs.FreeformText,
		Metadata: obs.Metadata,
		Applied:  applied,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return persistErr("append history", err)
	}
	return nil
}
