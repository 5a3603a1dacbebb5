package skill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes rating updates and the difficulty checks.
type Config struct {
	// Scale stretches the rating gap inside the expected-score curve.
	Scale float64 `koanf:"scale"`
	// K is the Elo K-factor.
	K float64 `koanf:"k"`
	// Margin is how far above the rating a difficulty may go before it is
	// flagged as too hard.
	Margin float64 `koanf:"margin"`
	// MinSample is the number of attempts before a type counts as a
	// strength or weakness.
	MinSample int `koanf:"min_sample"`
	// StrengthRate and WeaknessRate bound per-type solve rates.
	StrengthRate float64 `koanf:"strength_rate"`
	WeaknessRate float64 `koanf:"weakness_rate"`
	// AvoidAfter is the number of unsolved attempts after which a type is
	// avoided.
	AvoidAfter int `koanf:"avoid_after"`
	// DefaultType and DefaultDifficulty are recommended to new players.
	DefaultType       string  `koanf:"default_type"`
	DefaultDifficulty float64 `koanf:"default_difficulty"`
	// FailureWindow is how many recent attempts feed the puzzle failure
	// rate used for exploration; 0 uses every attempt.
	FailureWindow int `koanf:"failure_window"`
}

// DefaultConfig returns the default skill configuration.
func DefaultConfig() Config {
	return Config{
		Scale:             4,
		K:                 0.05,
		Margin:            0.2,
		MinSample:         2,
		StrengthRate:      0.6,
		WeaknessRate:      0.4,
		AvoidAfter:        3,
		DefaultType:       "cipher",
		DefaultDifficulty: 0.3,
		FailureWindow:     10,
	}
}

// Engine updates ratings and answers difficulty questions.
type Engine struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a skill engine.
func NewEngine(store Store, cfg Config, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("skill store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.MinSample <= 0 {
		cfg.MinSample = def.MinSample
	}
	if cfg.AvoidAfter <= 0 {
		cfg.AvoidAfter = def.AvoidAfter
	}
	if cfg.DefaultType == "" {
		cfg.DefaultType = def.DefaultType
	}
	return &Engine{store: store, cfg: cfg, logger: logger, now: time.Now}, nil
}

// SetClock overrides the wall clock.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Expected is the probability of solving a puzzle of the given difficulty
// at the given rating.
func Expected(rating, difficulty, scale float64) float64 {
	return 1 / (1 + math.Pow(10, (difficulty-rating)*scale))
}

// RecordAttempt updates the track rating and appends the attempt record.
// The record is kept whether or not the puzzle was solved.
func (e *Engine) RecordAttempt(ctx context.Context, req AttemptRequest) (*AttemptResult, error) {
	if req.AgentID == "" {
		return nil, ErrEmptyAgentID
	}
	track, known := TrackFor(req.PuzzleType)
	if !known {
		UnknownPuzzleTypes.Inc()
		e.logger.Warn("unknown puzzle type, rating as logic",
			zap.String("agent_id", req.AgentID),
			zap.String("puzzle_type", req.PuzzleType))
	}
	difficulty := clampUnit(req.Difficulty)
	now := e.now()

	rating, err := e.rating(ctx, req.AgentID, track)
	if err != nil {
		return nil, err
	}

	actual := 0.0
	if req.Solved {
		actual = 1
	}
	old := rating.Rating
	rating.Rating = clampUnit(old + e.cfg.K*(actual-Expected(old, difficulty, e.cfg.Scale)))
	rating.Attempts++
	rating.UpdatedAt = now

	// The attempt is recorded before the rating moves, so a failed rating
	// write never leaves a rating change without its record.
	rec := AttemptRecord{
		ID:           uuid.NewString(),
		AgentID:      req.AgentID,
		PuzzleID:     req.PuzzleID,
		PuzzleType:   normalizeType(req.PuzzleType),
		Track:        track,
		Difficulty:   difficulty,
		Solved:       req.Solved,
		AttemptsUsed: req.AttemptsUsed,
		RatingBefore: old,
		RatingAfter:  rating.Rating,
		At:           now,
	}
	if err := e.store.AppendAttempt(ctx, rec); err != nil {
		return nil, fmt.Errorf("append puzzle attempt: %w", err)
	}
	if err := e.store.PutRating(ctx, rating); err != nil {
		return nil, fmt.Errorf("put skill rating: %w", err)
	}

	change := rating.Rating - old
	AttemptsTotal.WithLabelValues(string(track), strconv.FormatBool(req.Solved)).Inc()
	RatingChange.WithLabelValues(string(track)).Observe(change)
	e.logger.Debug("puzzle attempt recorded",
		zap.String("agent_id", req.AgentID),
		zap.String("puzzle_id", req.PuzzleID),
		zap.String("track", string(track)),
		zap.Bool("solved", req.Solved),
		zap.Float64("old_rating", old),
		zap.Float64("new_rating", rating.Rating))

	return &AttemptResult{Track: track, OldRating: old, NewRating: rating.Rating, Change: change}, nil
}

// Ratings returns the agent's rating on every track, including unrated
// tracks at InitialRating.
func (e *Engine) Ratings(ctx context.Context, agentID string) (map[Track]float64, error) {
	stored, err := e.store.ListRatings(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list skill ratings: %w", err)
	}
	out := make(map[Track]float64, len(Tracks))
	for _, t := range Tracks {
		out[t] = InitialRating
	}
	for _, r := range stored {
		out[r.Track] = r.Rating
	}
	return out, nil
}

// Attempts returns the agent's attempt records, oldest first.
func (e *Engine) Attempts(ctx context.Context, agentID string) ([]AttemptRecord, error) {
	attempts, err := e.store.ListAttempts(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list puzzle attempts: %w", err)
	}
	return attempts, nil
}

// CheckAppropriate judges whether a puzzle suits the agent. components lists
// sub-skill puzzle types embedded in a composite puzzle.
func (e *Engine) CheckAppropriate(ctx context.Context, agentID, puzzleType string, difficulty float64, components []string) (*Appropriateness, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	puzzleType = normalizeType(puzzleType)
	track, _ := TrackFor(puzzleType)
	difficulty = clampUnit(difficulty)

	ratings, err := e.Ratings(ctx, agentID)
	if err != nil {
		return nil, err
	}
	attempts, err := e.Attempts(ctx, agentID)
	if err != nil {
		return nil, err
	}
	stats := statsByType(attempts)
	rating := ratings[track]

	res := &Appropriateness{Track: track, Rating: rating, Warnings: []string{}, Suggestions: []string{}}

	if difficulty > rating+e.cfg.Margin {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Difficulty %.2f is significantly above the player's %s rating (%.2f)", difficulty, track, rating))
		res.Suggestions = append(res.Suggestions, fmt.Sprintf(
			"Lower the difficulty to around %.2f", rating))
	}

	st := stats[puzzleType]
	switch {
	case st.attempts == 0:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Player has never attempted a %s puzzle", puzzleType))
		res.Suggestions = append(res.Suggestions, fmt.Sprintf(
			"Introduce %s puzzles with extra hints", puzzleType))
	case st.attempts >= e.cfg.AvoidAfter && st.solves == 0:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"Player attempted %d %s puzzles but solved none", st.attempts, puzzleType))
		res.Suggestions = append(res.Suggestions, "Try a different puzzle type or offer a walkthrough")
	}

	for _, component := range components {
		component = normalizeType(component)
		if component == "" || component == puzzleType {
			continue
		}
		if stats[component].solves == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"Player has never solved a %s puzzle, which this puzzle embeds", component))
			res.Suggestions = append(res.Suggestions, fmt.Sprintf(
				"Give a standalone %s puzzle first", component))
		}
	}

	res.Appropriate = len(res.Warnings) == 0
	return res, nil
}

// Recommend suggests the next puzzle type and difficulty.
func (e *Engine) Recommend(ctx context.Context, agentID string) (*Recommendation, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}
	attempts, err := e.Attempts(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return &Recommendation{
			RecommendedType:       e.cfg.DefaultType,
			RecommendedDifficulty: e.cfg.DefaultDifficulty,
			Reasoning:             fmt.Sprintf("New player with no puzzle history; start with an easy %s puzzle", e.cfg.DefaultType),
			AvoidTypes:            []string{},
			PlayerStrengths:       []string{},
			PlayerWeaknesses:      []string{},
		}, nil
	}

	ratings, err := e.Ratings(ctx, agentID)
	if err != nil {
		return nil, err
	}
	stats := statsByType(attempts)

	rec := &Recommendation{AvoidTypes: []string{}, PlayerStrengths: []string{}, PlayerWeaknesses: []string{}}
	avoid := map[string]bool{}
	var weak []string
	for _, t := range sortedTypes(stats) {
		st := stats[t]
		if st.attempts >= e.cfg.AvoidAfter && st.solves == 0 {
			rec.AvoidTypes = append(rec.AvoidTypes, t)
			avoid[t] = true
		}
		if st.attempts < e.cfg.MinSample {
			continue
		}
		rate := st.rate()
		if rate >= e.cfg.StrengthRate {
			rec.PlayerStrengths = append(rec.PlayerStrengths, t)
		}
		if rate <= e.cfg.WeaknessRate {
			rec.PlayerWeaknesses = append(rec.PlayerWeaknesses, t)
			if !avoid[t] {
				weak = append(weak, t)
			}
		}
	}
	sort.SliceStable(rec.PlayerStrengths, func(i, j int) bool {
		return stats[rec.PlayerStrengths[i]].rate() > stats[rec.PlayerStrengths[j]].rate()
	})
	sort.SliceStable(weak, func(i, j int) bool {
		return stats[weak[i]].rate() < stats[weak[j]].rate()
	})

	if len(weak) > 0 {
		rec.RecommendedType = weak[0]
		rec.Reasoning = fmt.Sprintf("Practise %s: solved %d of %d attempts", weak[0], stats[weak[0]].solves, stats[weak[0]].attempts)
	} else {
		rec.RecommendedType = e.leastPractised(stats, avoid)
		rec.Reasoning = fmt.Sprintf("Broaden skills with %s, the least practised puzzle type", rec.RecommendedType)
	}
	track, _ := TrackFor(rec.RecommendedType)
	rec.RecommendedDifficulty = ratings[track]
	return rec, nil
}

// FailureRate is the share of the agent's last window attempts that were
// not solved, or 0 without attempts.
func (e *Engine) FailureRate(ctx context.Context, agentID string, window int) (float64, error) {
	attempts, err := e.Attempts(ctx, agentID)
	if err != nil {
		return 0, err
	}
	if window > 0 && len(attempts) > window {
		attempts = attempts[len(attempts)-window:]
	}
	if len(attempts) == 0 {
		return 0, nil
	}
	failed := 0
	for _, a := range attempts {
		if !a.Solved {
			failed++
		}
	}
	return float64(failed) / float64(len(attempts)), nil
}

func (e *Engine) rating(ctx context.Context, agentID string, track Track) (*Rating, error) {
	r, err := e.store.GetRating(ctx, agentID, track)
	if errors.Is(err, ErrNotFound) {
		return &Rating{AgentID: agentID, Track: track, Rating: InitialRating}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill rating: %w", err)
	}
	return r, nil
}

func (e *Engine) leastPractised(stats map[string]typeStats, avoid map[string]bool) string {
	candidates := make([]string, 0, len(PuzzleTypeToTrack))
	for t := range PuzzleTypeToTrack {
		if !avoid[t] {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return e.cfg.DefaultType
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := stats[candidates[i]].attempts, stats[candidates[j]].attempts
		if a != b {
			return a < b
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0]
}

type typeStats struct {
	attempts int
	solves   int
}

func (s typeStats) rate() float64 {
	if s.attempts == 0 {
		return 0
	}
	return float64(s.solves) / float64(s.attempts)
}

func statsByType(attempts []AttemptRecord) map[string]typeStats {
	out := map[string]typeStats{}
	for _, a := range attempts {
		st := out[a.PuzzleType]
		st.attempts++
		if a.Solved {
			st.solves++
		}
		out[a.PuzzleType] = st
	}
	return out
}

func sortedTypes(stats map[string]typeStats) []string {
	out := make([]string, 0, len(stats))
	for t := range stats {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
