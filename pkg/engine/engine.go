package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/events"
	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/mission"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/internal/skill"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// Config configures every subsystem of the engine.
type Config struct {
	CredibleLevel   float64
	MissionHalfLife time.Duration
	// HistoryLimit caps the history returned with a snapshot; 0 returns all.
	HistoryLimit int

	Experiment  experiment.Config
	Trust       trust.Config
	Skill       skill.Config
	Exploration exploration.Config
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CredibleLevel:   0.95,
		MissionHalfLife: 30 * 24 * time.Hour,
		HistoryLimit:    50,
		Experiment:      experiment.DefaultConfig(),
		Trust:           trust.DefaultConfig(),
		Skill:           skill.DefaultConfig(),
		Exploration:     exploration.DefaultConfig(),
	}
}

// Stores are the persistence backends. storage.SQLiteStore implements all
// three.
type Stores struct {
	Beliefs belief.Store
	Trust   trust.Store
	Skills  skill.Store
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	now            func() time.Time
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	scrubber       secrets.Scrubber
	publisher      events.Publisher
}

// WithClock injects the wall clock used for decay and heartbeat gating.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithScrubber redacts secrets from observation and resolution text before
// it is stored. The default keeps text unchanged.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *options) { o.scrubber = s }
}

// WithPublisher emits state changes. The default discards them.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Engine is the adaptive inference engine.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	scrubber secrets.Scrubber
	events   events.Publisher
	now      func() time.Time

	beliefs     *belief.Service
	experiments *experiment.Lifecycle
	missions    *mission.Recorder
	trust       *trust.Engine
	skills      *skill.Engine
	scheduler   *exploration.Scheduler

	tracer trace.Tracer
	inst   *instruments

	mu    sync.Mutex
	locks map[string]*agentLock
}

// agentLock is dropped from the map once no caller holds or waits on it.
type agentLock struct {
	mu   sync.Mutex
	refs int
}

// New wires an Engine over the given stores.
func New(stores Stores, cfg Config, opts ...Option) (*Engine, error) {
	if stores.Beliefs == nil || stores.Trust == nil || stores.Skills == nil {
		return nil, errors.New("engine: all stores are required")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.scrubber == nil {
		o.scrubber = secrets.Nop{}
	}
	if o.publisher == nil {
		o.publisher = events.Nop{}
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	meter := o.meterProvider.Meter(instrumentationName)

	beliefs, err := belief.NewService(stores.Beliefs, o.logger.Named("belief"),
		belief.WithClock(o.now), belief.WithCredibleLevel(cfg.CredibleLevel))
	if err != nil {
		return nil, fmt.Errorf("belief service: %w", err)
	}
	experiments, err := experiment.NewLifecycle(beliefs, cfg.Experiment, o.logger.Named("experiment"))
	if err != nil {
		return nil, fmt.Errorf("experiment lifecycle: %w", err)
	}
	missions, err := mission.NewRecorder(beliefs, cfg.MissionHalfLife, o.logger.Named("mission"))
	if err != nil {
		return nil, fmt.Errorf("mission recorder: %w", err)
	}

	trustMetrics, err := trust.NewMetrics(meter)
	if err != nil {
		o.logger.Warn("trust metrics unavailable", zap.Error(err))
	}
	trustEngine, err := trust.NewEngine(stores.Trust, cfg.Trust, o.logger.Named("trust"),
		trust.WithClock(o.now), trust.WithMetrics(trustMetrics))
	if err != nil {
		return nil, fmt.Errorf("trust engine: %w", err)
	}

	skills, err := skill.NewEngine(stores.Skills, cfg.Skill, o.logger.Named("skill"))
	if err != nil {
		return nil, fmt.Errorf("skill engine: %w", err)
	}
	skills.SetClock(o.now)

	scheduler, err := exploration.NewScheduler(beliefs, experiments, cfg.Exploration, o.logger.Named("exploration"))
	if err != nil {
		return nil, fmt.Errorf("exploration scheduler: %w", err)
	}

	inst, err := newInstruments(meter)
	if err != nil {
		o.logger.Warn("engine metrics unavailable", zap.Error(err))
	}

	return &Engine{
		cfg:         cfg,
		logger:      o.logger,
		scrubber:    o.scrubber,
		events:      o.publisher,
		now:         o.now,
		beliefs:     beliefs,
		experiments: experiments,
		missions:    missions,
		trust:       trustEngine,
		skills:      skills,
		scheduler:   scheduler,
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		inst:        inst,
		locks:       make(map[string]*agentLock),
	}, nil
}

// NewInMemory returns an Engine over fresh in-memory stores.
func NewInMemory(cfg Config, opts ...Option) (*Engine, error) {
	return New(InMemoryStores(), cfg, opts...)
}

// InMemoryStores returns fresh process-local stores.
func InMemoryStores() Stores {
	return Stores{
		Beliefs: belief.NewInMemoryStore(),
		Trust:   trust.NewInMemoryStore(),
		Skills:  skill.NewInMemoryStore(),
	}
}

// lock serializes mutations for one agent and returns the unlock function.
func (e *Engine) lock(agentID string) func() {
	e.mu.Lock()
	l, ok := e.locks[agentID]
	if !ok {
		l = &agentLock{}
		e.locks[agentID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, agentID)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) log(ctx context.Context) *zap.Logger {
	return e.logger.With(logging.ContextFields(ctx)...)
}

func (e *Engine) scrub(ctx context.Context, text string) string {
	res := e.scrubber.Scrub(text)
	if res.Redacted() {
		e.log(ctx).Warn("redacted secrets from free text", zap.Int("findings", len(res.Findings)))
	}
	return res.Text
}

// InitializeHypothesis opens an experiment. Re-initializing an existing id
// returns it unchanged.
func (e *Engine) InitializeHypothesis(ctx context.Context, req experiment.InitRequest) (exp *experiment.Experiment, err error) {
	ctx, o := e.startOp(ctx, "InitializeHypothesis", req.AgentID,
		attribute.String("experiment.type", req.ExperimentType))
	defer func() { o.end(ctx, err) }()
	defer e.lock(req.AgentID)()

	exp, err = e.experiments.InitializeHypothesis(logging.WithAgentID(ctx, req.AgentID), req)
	if err == nil {
		e.publish(ctx, events.KindExperimentOpened, exp.AgentID, exp.ID, map[string]any{
			"experiment_type": exp.Type,
			"hypothesis":      exp.Hypothesis,
		})
	}
	return exp, err
}

// RecordObservation adds evidence to an experiment, creating it when
// unknown. Observations against resolved experiments are recorded in history
// and otherwise ignored.
func (e *Engine) RecordObservation(ctx context.Context, req experiment.ObservationRequest) (exp *experiment.Experiment, err error) {
	ctx, o := e.startOp(ctx, "RecordObservation", req.AgentID,
		attribute.String("experiment.id", req.ExperimentID))
	defer func() { o.end(ctx, err) }()
	defer e.lock(req.AgentID)()

	req.Text = e.scrub(ctx, req.Text)
	return e.experiments.RecordObservation(logging.WithAgentID(ctx, req.AgentID), req)
}

// ResolveHypothesis closes an experiment and feeds its tagged traits.
func (e *Engine) ResolveHypothesis(ctx context.Context, req experiment.ResolveRequest) (exp *experiment.Experiment, err error) {
	ctx, o := e.startOp(ctx, "ResolveHypothesis", req.AgentID,
		attribute.String("experiment.id", req.ExperimentID),
		attribute.String("outcome", string(req.Outcome)))
	defer func() { o.end(ctx, err) }()
	defer e.lock(req.AgentID)()

	req.Resolution = e.scrub(ctx, req.Resolution)
	exp, err = e.experiments.Resolve(logging.WithAgentID(ctx, req.AgentID), req)
	if err == nil {
		e.publish(ctx, events.KindExperimentResolved, exp.AgentID, exp.ID, map[string]any{
			"experiment_type":     exp.Type,
			"state":               string(exp.State),
			"success_probability": exp.Summary.SuccessProbability,
		})
	}
	return exp, err
}

// GetExperiment returns one experiment.
func (e *Engine) GetExperiment(ctx context.Context, agentID, experimentID string) (exp *experiment.Experiment, err error) {
	ctx, o := e.startOp(ctx, "GetExperiment", agentID)
	defer func() { o.end(ctx, err) }()

	return e.experiments.Get(ctx, agentID, experimentID)
}

// ListExperiments returns an agent's experiments.
func (e *Engine) ListExperiments(ctx context.Context, agentID string, activeOnly bool) (exps []*experiment.Experiment, err error) {
	ctx, o := e.startOp(ctx, "ListExperiments", agentID)
	defer func() { o.end(ctx, err) }()

	return e.experiments.List(ctx, agentID, activeOnly)
}

// RecordMissionOutcome folds a mission report into its mission type summary.
func (e *Engine) RecordMissionOutcome(ctx context.Context, agentID string, report mission.Report) (s *belief.Summary, err error) {
	ctx, o := e.startOp(ctx, "RecordMissionOutcome", agentID,
		attribute.String("mission.type", report.MissionType),
		attribute.String("mission.status", string(report.Status)))
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	s, err = e.missions.Record(logging.WithAgentID(ctx, agentID), agentID, report)
	if err == nil {
		e.publish(ctx, events.KindMissionRecorded, agentID, report.MissionType, map[string]any{
			"mission_id":          report.MissionID,
			"status":              string(report.Status),
			"success_probability": s.SuccessProbability,
		})
	}
	return s, err
}

// EvolveTrust adds delta to the agent's trust score.
func (e *Engine) EvolveTrust(ctx context.Context, agentID string, delta float64, reason string) (s *trust.State, err error) {
	ctx, o := e.startOp(ctx, "EvolveTrust", agentID, attribute.String("reason", reason))
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	return e.watchTrust(ctx, agentID, func() (*trust.State, error) {
		return e.trust.Evolve(ctx, agentID, delta, reason)
	})
}

// RecordTrustEvent applies the delta table for a named event.
func (e *Engine) RecordTrustEvent(ctx context.Context, agentID string, kind trust.EventKind, score *float64) (s *trust.State, err error) {
	ctx, o := e.startOp(ctx, "RecordTrustEvent", agentID, attribute.String("event", string(kind)))
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	return e.watchTrust(ctx, agentID, func() (*trust.State, error) {
		return e.trust.RecordEvent(ctx, agentID, kind, score)
	})
}

// GetTrustState returns the agent's trust state without mutating it.
func (e *Engine) GetTrustState(ctx context.Context, agentID string) (s *trust.State, err error) {
	ctx, o := e.startOp(ctx, "GetTrustState", agentID)
	defer func() { o.end(ctx, err) }()

	return e.trust.GetState(ctx, agentID)
}

// RecordActivity stamps the agent's last activity time.
func (e *Engine) RecordActivity(ctx context.Context, agentID string) (s *trust.State, err error) {
	ctx, o := e.startOp(ctx, "RecordActivity", agentID)
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	return e.trust.RecordActivity(ctx, agentID)
}

// Heartbeat seeds or credits trust under the activity gate. The string is
// one of trust.HeartbeatSeeded, HeartbeatCredited or HeartbeatGated.
func (e *Engine) Heartbeat(ctx context.Context, agentID string) (s *trust.State, result string, err error) {
	ctx, o := e.startOp(ctx, "Heartbeat", agentID)
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	s, err = e.watchTrust(ctx, agentID, func() (*trust.State, error) {
		var herr error
		s, result, herr = e.trust.Heartbeat(ctx, agentID)
		return s, herr
	})
	return s, result, err
}

// MarkCeremonyComplete clears a pending ceremony for layer.
func (e *Engine) MarkCeremonyComplete(ctx context.Context, agentID string, layer int) (s *trust.State, cleared bool, err error) {
	ctx, o := e.startOp(ctx, "MarkCeremonyComplete", agentID, attribute.Int("layer", layer))
	defer func() { o.end(ctx, err) }()
	defer e.lock(agentID)()

	return e.trust.MarkCeremonyComplete(ctx, agentID, layer)
}

// RecordPuzzleAttempt updates the rating of the puzzle's track.
func (e *Engine) RecordPuzzleAttempt(ctx context.Context, req skill.AttemptRequest) (res *skill.AttemptResult, err error) {
	ctx, o := e.startOp(ctx, "RecordPuzzleAttempt", req.AgentID,
		attribute.String("puzzle.type", req.PuzzleType),
		attribute.Bool("puzzle.solved", req.Solved))
	defer func() { o.end(ctx, err) }()
	defer e.lock(req.AgentID)()

	res, err = e.skills.RecordAttempt(ctx, req)
	if err == nil {
		e.publish(ctx, events.KindSkillRated, req.AgentID, string(res.Track), map[string]any{
			"puzzle_type": req.PuzzleType,
			"solved":      req.Solved,
			"old_rating":  res.OldRating,
			"new_rating":  res.NewRating,
		})
	}
	return res, err
}

// CheckPuzzleAppropriate judges a planned puzzle against the agent's rating.
func (e *Engine) CheckPuzzleAppropriate(ctx context.Context, agentID, puzzleType string, difficulty float64, components []string) (res *skill.Appropriateness, err error) {
	ctx, o := e.startOp(ctx, "CheckPuzzleAppropriate", agentID, attribute.String("puzzle.type", puzzleType))
	defer func() { o.end(ctx, err) }()

	return e.skills.CheckAppropriate(ctx, agentID, puzzleType, difficulty, components)
}

// Recommend suggests the next puzzle type and difficulty.
func (e *Engine) Recommend(ctx context.Context, agentID string) (rec *skill.Recommendation, err error) {
	ctx, o := e.startOp(ctx, "Recommend", agentID)
	defer func() { o.end(ctx, err) }()

	return e.skills.Recommend(ctx, agentID)
}

// SkillRatings returns the agent's rating per track.
func (e *Engine) SkillRatings(ctx context.Context, agentID string) (ratings map[skill.Track]float64, err error) {
	ctx, o := e.startOp(ctx, "SkillRatings", agentID)
	defer func() { o.end(ctx, err) }()

	return e.skills.Ratings(ctx, agentID)
}

// ExplorationBonus returns the bonus in [0,1] for an experiment type.
func (e *Engine) ExplorationBonus(ctx context.Context, agentID, experimentType string) (bonus float64, err error) {
	ctx, o := e.startOp(ctx, "ExplorationBonus", agentID, attribute.String("experiment.type", experimentType))
	defer func() { o.end(ctx, err) }()

	return e.scheduler.ExplorationBonus(ctx, agentID, experimentType)
}

// ProposeNext returns the best exploration candidate or nil. A nil c is
// replaced by the failure rates computed from the agent's own missions and
// puzzles.
func (e *Engine) ProposeNext(ctx context.Context, agentID string, c *exploration.Context) (cand *exploration.Candidate, err error) {
	ctx, o := e.startOp(ctx, "ProposeNext", agentID)
	defer func() { o.end(ctx, err) }()

	fc, err := e.resolveContext(ctx, agentID, c)
	if err != nil {
		return nil, err
	}
	return e.scheduler.ProposeNext(ctx, agentID, fc)
}

// FailureContext computes the agent's mission and puzzle failure rates.
func (e *Engine) FailureContext(ctx context.Context, agentID string) (exploration.Context, error) {
	missionRate, err := e.missions.FailureRate(ctx, agentID)
	if err != nil {
		return exploration.Context{}, fmt.Errorf("mission failure rate: %w", err)
	}
	puzzleRate, err := e.skills.FailureRate(ctx, agentID, e.cfg.Skill.FailureWindow)
	if err != nil {
		return exploration.Context{}, fmt.Errorf("puzzle failure rate: %w", err)
	}
	return exploration.Context{MissionFailureRate: missionRate, PuzzleFailureRate: puzzleRate}, nil
}

func (e *Engine) resolveContext(ctx context.Context, agentID string, c *exploration.Context) (exploration.Context, error) {
	if c != nil {
		return *c, nil
	}
	return e.FailureContext(ctx, agentID)
}
