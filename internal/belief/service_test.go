package belief

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *fakeClock                   { return &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)} }
func scorePtr(f float64) *float64            { return &f }
func defaultBindings() []Binding             { return []Binding{OutcomeBinding(VarResult), ScoreBinding(VarScore)} }

func newTestService(t *testing.T) (*Service, *InMemoryStore, *fakeClock) {
	t.Helper()
	store := NewInMemoryStore()
	clock := newClock()
	svc, err := NewService(store, nil, WithClock(clock.Now))
	require.NoError(t, err)
	return svc, store, clock
}

func TestNewService_NilStore(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}

func TestEnsure(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "agent-1", ExperimentID("e1"))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, first.Status)
	assert.Empty(t, first.Variables)
	assert.Equal(t, int64(1), first.Version)

	second, err := svc.Ensure(ctx, "agent-1", ExperimentID("e1"))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, int64(1), second.Version)

	_, err = svc.Ensure(ctx, "", "x")
	assert.ErrorIs(t, err, ErrEmptyAgentID)
	_, err = svc.Ensure(ctx, "agent-1", "")
	assert.ErrorIs(t, err, ErrEmptySummaryID)
}

func TestEnsureWithMetadata_OnlyOnCreate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	s, created, err := svc.EnsureWithMetadata(ctx, "a", ExperimentID("e"), map[string]string{"title": "first"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", s.Metadata["title"])

	s, created, err = svc.EnsureWithMetadata(ctx, "a", ExperimentID("e"), map[string]string{"title": "second"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", s.Metadata["title"])
}

func TestApplyObservation_BinarySuccessProbability(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := ExperimentID("e1")

	var s *Summary
	var err error
	for _, o := range []Outcome{OutcomeSuccess, OutcomeSuccess, OutcomeFail} {
		s, err = svc.ApplyObservation(ctx, "a", id, Observation{Outcome: o}, defaultBindings())
		require.NoError(t, err)
	}

	assert.InDelta(t, 2.0/3.0, s.SuccessProbability, 1e-9)
	assert.Equal(t, 3, s.EvidenceCount)
	assert.Less(t, s.CredibleInterval.Lo, s.SuccessProbability)
	assert.Greater(t, s.CredibleInterval.Hi, s.SuccessProbability)
}

func TestApplyObservation_IntervalBracketsExtremes(t *testing.T) {
	ctx := context.Background()

	t.Run("three successes", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		var s *Summary
		var err error
		for i := 0; i < 3; i++ {
			s, err = svc.ApplyObservation(ctx, "a", ExperimentID("e1"),
				Observation{Outcome: OutcomeSuccess}, defaultBindings())
			require.NoError(t, err)
		}
		assert.Equal(t, 1.0, s.SuccessProbability)
		assert.LessOrEqual(t, s.CredibleInterval.Lo, s.SuccessProbability)
		assert.GreaterOrEqual(t, s.CredibleInterval.Hi, s.SuccessProbability)
	})

	t.Run("zero score", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		s, err := svc.ApplyObservation(ctx, "a", ExperimentID("e1"),
			Observation{Score: scorePtr(0)}, defaultBindings())
		require.NoError(t, err)
		assert.Equal(t, 0.0, s.SuccessProbability)
		assert.LessOrEqual(t, s.CredibleInterval.Lo, s.SuccessProbability)
		assert.GreaterOrEqual(t, s.CredibleInterval.Hi, s.SuccessProbability)
	})
}

func TestApplyObservation_ContinuousScore(t *testing.T) {
	svc, _, _ := newTestService(t)
	s, err := svc.ApplyObservation(context.Background(), "a", ExperimentID("e1"),
		Observation{Score: scorePtr(0.82)}, defaultBindings())
	require.NoError(t, err)
	assert.InDelta(t, 0.82, s.SuccessProbability, 1e-9)
}

func TestApplyObservation_EvidenceWeightedBlend(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := MissionTypeID("recon")

	// One binary success (mass 1) and two 0.4 scores (mass 2).
	_, err := svc.ApplyObservation(ctx, "a", id, Observation{Outcome: OutcomeSuccess}, defaultBindings())
	require.NoError(t, err)
	_, err = svc.ApplyObservation(ctx, "a", id, Observation{Score: scorePtr(0.4)}, defaultBindings())
	require.NoError(t, err)
	s, err := svc.ApplyObservation(ctx, "a", id, Observation{Score: scorePtr(0.4)}, defaultBindings())
	require.NoError(t, err)

	want := (1.0*1 + 0.4*2) / 3
	assert.InDelta(t, want, s.SuccessProbability, 1e-9)
}

func TestApplyObservation_NoEvidenceKeepsCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	s, err := svc.ApplyObservation(context.Background(), "a", ExperimentID("e"),
		Observation{FreeformText: "player hesitated"}, defaultBindings())
	require.NoError(t, err)
	assert.Equal(t, 0, s.EvidenceCount)
	assert.Equal(t, 0.5, s.SuccessProbability)
	assert.Equal(t, variable.UnitInterval, s.CredibleInterval)
	assert.Contains(t, s.Variables, VarResult, "declared variables exist at their prior")
}

func TestResolve_FreezesVariables(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := ExperimentID("e1")

	_, err := svc.ApplyObservation(ctx, "a", id, Observation{Outcome: OutcomeSuccess}, defaultBindings())
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, "a", id, ResolveRequest{
		Outcome:    OutcomeSuccess,
		FinalScore: scorePtr(0.88),
		Resolution: "player complied",
	}, defaultBindings())
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, OutcomeSuccess, resolved.Outcome)
	require.NotNil(t, resolved.ResolvedAt)

	before, err := svc.History(ctx, "a", id, 0)
	require.NoError(t, err)

	after, err := svc.ApplyObservation(ctx, "a", id, Observation{Outcome: OutcomeFail, Score: scorePtr(0)}, defaultBindings())
	require.NoError(t, err)
	assert.Equal(t, resolved.Variables, after.Variables)
	assert.Equal(t, resolved.EvidenceCount, after.EvidenceCount)

	history, err := svc.History(ctx, "a", id, 0)
	require.NoError(t, err)
	assert.Len(t, history, len(before)+1)
	assert.Equal(t, HistoryRejected, history[len(history)-1].Kind)
	assert.False(t, history[len(history)-1].Applied)

	again, err := svc.Resolve(ctx, "a", id, ResolveRequest{Outcome: OutcomeAbandoned}, defaultBindings())
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, again.Status)
}

func TestResolve_Abandoned(t *testing.T) {
	svc, _, _ := newTestService(t)
	s, err := svc.Resolve(context.Background(), "a", ExperimentID("e"), ResolveRequest{Outcome: OutcomeAbandoned}, defaultBindings())
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, s.Status)
	assert.Equal(t, 0, s.EvidenceCount, "neutral outcome without score carries no evidence")
}

func TestSnapshot_DecayIsReadOnly(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	id := ExperimentID("e1")
	bindings := []Binding{Bind(variable.Spec{Name: VarResult, Family: variable.FamilyBinary, HalfLife: time.Hour}, OutcomeBinding(VarResult).Extract)}

	for i := 0; i < 4; i++ {
		_, err := svc.ApplyObservation(ctx, "a", id, Observation{Outcome: OutcomeSuccess}, bindings)
		require.NoError(t, err)
	}

	clock.Advance(2 * time.Hour)
	snap, err := svc.Snapshot(ctx, ScopeFilter{AgentID: "a"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, snap.Summaries, 1)

	decayed := snap.Summaries[0]
	assert.InDelta(t, 1.0, decayed.Variables[VarResult].Stats.(variable.BetaStats).Alpha, 1e-9)
	assert.Equal(t, 4, decayed.EvidenceCount)
	assert.Greater(t, decayed.CredibleInterval.Hi-decayed.CredibleInterval.Lo, 0.0)

	stored, err := store.GetSummary(ctx, "a", id)
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.Variables[VarResult].Stats.(variable.BetaStats).Alpha)
}

func TestSnapshot_FiltersAndTraits(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	trait := TraitBinding(variable.Spec{Name: VarTrait}, 1)

	_, err := svc.ApplyObservation(ctx, "a", GlobalTraitID("compliance"), Observation{Score: scorePtr(1)}, []Binding{trait})
	require.NoError(t, err)
	_, err = svc.ApplyObservation(ctx, "a", ExperimentID("e1"), Observation{Outcome: OutcomeSuccess}, defaultBindings())
	require.NoError(t, err)
	_, err = svc.ApplyObservation(ctx, "b", ExperimentID("e2"), Observation{Outcome: OutcomeSuccess}, defaultBindings())
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, ScopeFilter{AgentID: "a"}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, snap.Summaries, 2)
	require.Contains(t, snap.GlobalTraits, "compliance")
	assert.InDelta(t, 0.75, snap.GlobalTraits["compliance"].Mean, 1e-9)

	snap, err = svc.Snapshot(ctx, ScopeFilter{Prefix: ExperimentPrefix}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, snap.Summaries, 2)
	assert.Empty(t, snap.GlobalTraits)
}

type failingStore struct {
	*InMemoryStore
	err error
}

func (f *failingStore) PutSummary(context.Context, *Summary) error { return f.err }

func TestPersistenceErrorsPropagate(t *testing.T) {
	boom := errors.New("disk full")
	svc, err := NewService(&failingStore{InMemoryStore: NewInMemoryStore(), err: boom}, nil)
	require.NoError(t, err)

	_, err = svc.ApplyObservation(context.Background(), "a", ExperimentID("e"), Observation{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsPersistence(err))
}

func TestSummaryJSONRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := MissionTypeID("recon")
	bindings := append(defaultBindings(),
		Bind(variable.Spec{Name: "band", Family: variable.FamilyOrdinal, Levels: 4}, func(Observation) (variable.Evidence, bool) {
			lvl := 2
			return variable.Evidence{Level: &lvl}, true
		}),
		LabelBinding("kind", "stealth"),
	)

	s, err := svc.ApplyObservation(ctx, "a", id, Observation{Outcome: OutcomeSuccess, Score: scorePtr(0.7)}, bindings)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded Summary
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, s.EvidenceCount, decoded.EvidenceCount)
	assert.Equal(t, s.SuccessProbability, decoded.SuccessProbability)
	require.Len(t, decoded.Variables, len(s.Variables))
	for name, v := range s.Variables {
		got := decoded.Variables[name]
		assert.Equal(t, v.Stats, got.Stats, name)
		assert.Equal(t, variable.PointEstimate(v), variable.PointEstimate(got), name)
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusActive.CanTransitionTo(StatusResolved))
	assert.True(t, StatusActive.CanTransitionTo(StatusAbandoned))
	assert.False(t, StatusResolved.CanTransitionTo(StatusActive))
	assert.False(t, StatusAbandoned.CanTransitionTo(StatusResolved))
	assert.True(t, StatusResolved.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
}

func TestInMemoryStore_VersionConflict(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	s := NewSummary("a", "x", time.Now())
	require.NoError(t, store.PutSummary(ctx, s))

	stale := NewSummary("a", "x", time.Now())
	assert.ErrorIs(t, store.PutSummary(ctx, stale), ErrConflict)
}

func TestMatchTarget(t *testing.T) {
	assert.True(t, MatchTarget("experiment:1", ""))
	assert.True(t, MatchTarget("experiment:1", "experiment:"))
	assert.True(t, MatchTarget("experiment:1", "experiment:1"))
	assert.False(t, MatchTarget("experiment:12", "experiment:1"))
}
