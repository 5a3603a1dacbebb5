package trust

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config tunes heartbeat gating and inactivity decay.
type Config struct {
	// HeartbeatSeed is credited on the first heartbeat of a new agent.
	HeartbeatSeed float64 `koanf:"heartbeat_seed"`
	// HeartbeatCredit is credited by later heartbeats that pass the gate.
	HeartbeatCredit float64 `koanf:"heartbeat_credit"`
	// HeartbeatMinInterval is the minimum time since the last trust update
	// before a heartbeat may credit again.
	HeartbeatMinInterval time.Duration `koanf:"heartbeat_min_interval"`
	// InactivityGrace is how long an agent may be idle before decay starts.
	InactivityGrace time.Duration `koanf:"inactivity_grace"`
	// InactivityDecayPerDay is subtracted per idle day after the grace period.
	InactivityDecayPerDay float64 `koanf:"inactivity_decay_per_day"`
}

// DefaultConfig returns the default trust configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatSeed:         0.02,
		HeartbeatCredit:       0.002,
		HeartbeatMinInterval:  time.Hour,
		InactivityGrace:       7 * 24 * time.Hour,
		InactivityDecayPerDay: 0.005,
	}
}

// Heartbeat results.
const (
	HeartbeatSeeded   = "seeded"
	HeartbeatCredited = "credited"
	HeartbeatGated    = "gated"
)

// Engine applies trust updates on top of a Store.
type Engine struct {
	store   Store
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics attaches OpenTelemetry metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a trust engine.
func NewEngine(store Store, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("trust store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: store, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GetState returns the agent's trust state, or the zero state for unseen
// agents. It never persists anything.
func (e *Engine) GetState(ctx context.Context, agentID string) (*State, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	s, err := e.store.GetState(ctx, agentID)
	if errors.Is(err, ErrNotFound) {
		return NewState(agentID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trust state: %w", err)
	}
	return s, nil
}

// Evolve adds delta to the agent's score.
func (e *Engine) Evolve(ctx context.Context, agentID string, delta float64, reason string) (*State, error) {
	s, err := e.GetState(ctx, agentID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	e.decay(s, now)
	e.evolve(ctx, s, delta, reason, now)
	if err := e.put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordEvent computes the delta for an event and applies it. Positive
// events also count as activity. Unknown kinds are logged and ignored.
func (e *Engine) RecordEvent(ctx context.Context, agentID string, kind EventKind, score *float64) (*State, error) {
	delta, ok := ComputeDelta(kind, score)
	if !ok {
		e.logger.Warn("unknown trust event kind",
			zap.String("agent_id", agentID),
			zap.String("kind", string(kind)))
		return e.GetState(ctx, agentID)
	}

	s, err := e.GetState(ctx, agentID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	e.decay(s, now)
	if delta > 0 {
		s.LastActivityAt = now
	}
	e.evolve(ctx, s, delta, string(kind), now)
	if err := e.put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordActivity stamps the agent's last activity. The score is untouched.
func (e *Engine) RecordActivity(ctx context.Context, agentID string) (*State, error) {
	s, err := e.GetState(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.LastActivityAt = e.now()
	if err := e.put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Heartbeat is called whenever a personalization context is built. A new
// agent is seeded once. Afterwards a heartbeat credits only when the minimum
// interval has passed since the last trust update and there has been activity
// since the last credited heartbeat; otherwise it changes nothing.
func (e *Engine) Heartbeat(ctx context.Context, agentID string) (*State, string, error) {
	s, err := e.GetState(ctx, agentID)
	if err != nil {
		return nil, "", err
	}
	now := e.now()
	decayed := e.decay(s, now)

	result := HeartbeatGated
	switch {
	case s.IsNew():
		e.evolve(ctx, s, e.cfg.HeartbeatSeed, "heartbeat_seed", now)
		s.LastHeartbeatAt = now
		result = HeartbeatSeeded
	case now.Sub(s.LastTrustUpdateAt) >= e.cfg.HeartbeatMinInterval && s.LastActivityAt.After(s.LastHeartbeatAt):
		e.evolve(ctx, s, e.cfg.HeartbeatCredit, "heartbeat", now)
		s.LastHeartbeatAt = now
		result = HeartbeatCredited
	}

	e.metrics.RecordHeartbeat(ctx, result)
	if result == HeartbeatGated && !decayed {
		return s, result, nil
	}
	if err := e.put(ctx, s); err != nil {
		return nil, "", err
	}
	return s, result, nil
}

// MarkCeremonyComplete clears the pending ceremony if it is for layer. Any
// other call is a no-op. The boolean reports whether anything was cleared.
func (e *Engine) MarkCeremonyComplete(ctx context.Context, agentID string, layer int) (*State, bool, error) {
	s, err := e.GetState(ctx, agentID)
	if err != nil {
		return nil, false, err
	}
	if s.PendingCeremony == nil || *s.PendingCeremony != layer {
		e.logger.Debug("ceremony completion ignored",
			zap.String("agent_id", agentID),
			zap.Int("layer", layer))
		return s, false, nil
	}
	s.PendingCeremony = nil
	if err := e.put(ctx, s); err != nil {
		return nil, false, err
	}
	e.logger.Info("trust ceremony completed",
		zap.String("agent_id", agentID),
		zap.Int("layer", layer))
	return s, true, nil
}

func (e *Engine) evolve(ctx context.Context, s *State, delta float64, reason string, now time.Time) {
	from, to := s.apply(delta, reason, now)
	e.metrics.RecordDelta(ctx, reason, delta, from, to)
	if to != from {
		e.logger.Info("trust layer changed",
			zap.String("agent_id", s.AgentID),
			zap.Int("from", from),
			zap.Int("to", to),
			zap.Float64("raw_score", s.RawScore),
			zap.String("reason", reason))
	}
}

// decay lowers the score of an idle agent, never below the threshold of
// its current layer. It reports whether the state changed.
func (e *Engine) decay(s *State, now time.Time) bool {
	if e.cfg.InactivityDecayPerDay <= 0 || s.LastActivityAt.IsZero() {
		return false
	}
	idleFrom := s.LastActivityAt.Add(e.cfg.InactivityGrace)
	if !now.After(idleFrom) {
		return false
	}
	from := idleFrom
	if s.LastDecayAt.After(from) {
		from = s.LastDecayAt
	}
	days := now.Sub(from).Hours() / 24
	if days <= 0 {
		return false
	}

	s.LastDecayAt = now
	floor := Thresholds[s.Layer]
	next := math.Max(floor, s.RawScore-days*e.cfg.InactivityDecayPerDay)
	amount := s.RawScore - next
	if amount <= 0 {
		return true
	}
	s.RawScore = next
	s.History = append(s.History, Delta{Delta: -amount, Reason: "inactivity_decay", At: now, Score: s.RawScore})
	e.logger.Debug("trust decayed for inactivity",
		zap.String("agent_id", s.AgentID),
		zap.Float64("amount", amount),
		zap.Float64("raw_score", s.RawScore))
	return true
}

func (e *Engine) put(ctx context.Context, s *State) error {
	if err := e.store.PutState(ctx, s); err != nil {
		return fmt.Errorf("put trust state: %w", err)
	}
	return nil
}
