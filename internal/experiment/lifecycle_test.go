package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

func scorePtr(f float64) *float64 { return &f }

func newTestLifecycle(t *testing.T) (*Lifecycle, *belief.Service) {
	t.Helper()
	beliefs, err := belief.NewService(belief.NewInMemoryStore(), nil)
	require.NoError(t, err)
	l, err := NewLifecycle(beliefs, DefaultConfig(), nil)
	require.NoError(t, err)
	return l, beliefs
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateActive, StateResolvedSuccess, true},
		{StateActive, StateResolvedFailure, true},
		{StateActive, StateAbandoned, true},
		{StateResolvedSuccess, StateActive, false},
		{StateResolvedFailure, StateAbandoned, false},
		{StateAbandoned, StateResolvedSuccess, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.False(t, StateActive.IsTerminal())
	assert.True(t, StateAbandoned.IsTerminal())
}

func TestInitializeHypothesis(t *testing.T) {
	l, beliefs := newTestLifecycle(t)
	ctx := context.Background()

	exp, err := l.InitializeHypothesis(ctx, InitRequest{
		AgentID:         "agent-1",
		ExperimentID:    "e1",
		Hypothesis:      "player follows direct orders",
		Task:            "deliver the package",
		Title:           "Obedience",
		ExperimentType:  "compliance",
		SuccessCriteria: "package delivered unopened",
		Traits:          []string{"Compliance", " curiosity ", "compliance"},
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", exp.ID)
	assert.Equal(t, StateActive, exp.State)
	assert.Equal(t, "compliance", exp.Type)
	assert.Equal(t, []string{"compliance", "curiosity"}, exp.Traits)

	types, err := beliefs.Get(ctx, "agent-1", TypesSummaryID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, variable.LabelCount(types.Variables[VarTypes], "compliance"))

	// Re-initializing does not double count the type.
	_, err = l.InitializeHypothesis(ctx, InitRequest{AgentID: "agent-1", ExperimentID: "e1", ExperimentType: "compliance"})
	require.NoError(t, err)
	types, err = beliefs.Get(ctx, "agent-1", TypesSummaryID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, variable.LabelCount(types.Variables[VarTypes], "compliance"))
}

func TestInitializeHypothesis_GeneratesID(t *testing.T) {
	l, _ := newTestLifecycle(t)
	exp, err := l.InitializeHypothesis(context.Background(), InitRequest{AgentID: "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, exp.ID)
	assert.Equal(t, DefaultType, exp.Type)

	_, err = l.InitializeHypothesis(context.Background(), InitRequest{})
	assert.ErrorIs(t, err, belief.ErrEmptyAgentID)
}

func TestRecordObservation(t *testing.T) {
	l, beliefs := newTestLifecycle(t)
	ctx := context.Background()
	_, err := l.InitializeHypothesis(ctx, InitRequest{AgentID: "a", ExperimentID: "e1", ExperimentType: "risk"})
	require.NoError(t, err)

	exp, err := l.RecordObservation(ctx, ObservationRequest{AgentID: "a", ExperimentID: "e1", Text: "took the shortcut", Result: belief.OutcomeSuccess})
	require.NoError(t, err)
	_, err = l.RecordObservation(ctx, ObservationRequest{AgentID: "a", ExperimentID: "e1", Text: "hesitated", Score: scorePtr(0.5)})
	require.NoError(t, err)
	exp, err = l.Get(ctx, "a", "e1")
	require.NoError(t, err)

	assert.Equal(t, 2, exp.Summary.EvidenceCount)
	assert.InDelta(t, 0.75, exp.Summary.SuccessProbability, 1e-9)

	types, err := beliefs.Get(ctx, "a", TypesSummaryID)
	require.NoError(t, err)
	turns := types.Variables[ResolutionVariable("risk")].Stats.(variable.SurvivalStats)
	assert.Equal(t, 2.0, turns.Censored)
	assert.Equal(t, 0.0, turns.Events)
}

func TestResolve_ThenObserveDoesNotMutate(t *testing.T) {
	l, beliefs := newTestLifecycle(t)
	ctx := context.Background()
	_, err := l.InitializeHypothesis(ctx, InitRequest{AgentID: "a", ExperimentID: "e1", ExperimentType: "compliance", Traits: []string{"compliance"}})
	require.NoError(t, err)
	_, err = l.RecordObservation(ctx, ObservationRequest{AgentID: "a", ExperimentID: "e1", Result: belief.OutcomeSuccess})
	require.NoError(t, err)

	resolved, err := l.Resolve(ctx, ResolveRequest{AgentID: "a", ExperimentID: "e1", Outcome: belief.OutcomeSuccess, FinalScore: scorePtr(0.88), Resolution: "delivered"})
	require.NoError(t, err)
	assert.Equal(t, StateResolvedSuccess, resolved.State)
	require.NotNil(t, resolved.ResolvedAt)

	historyBefore, err := beliefs.History(ctx, "a", belief.ExperimentID("e1"), 0)
	require.NoError(t, err)

	after, err := l.RecordObservation(ctx, ObservationRequest{AgentID: "a", ExperimentID: "e1", Result: belief.OutcomeFail, Score: scorePtr(0.1)})
	require.NoError(t, err)
	assert.Equal(t, resolved.Summary.Variables, after.Summary.Variables)
	assert.Equal(t, StateResolvedSuccess, after.State)

	historyAfter, err := beliefs.History(ctx, "a", belief.ExperimentID("e1"), 0)
	require.NoError(t, err)
	assert.Len(t, historyAfter, len(historyBefore)+1)

	trait, err := beliefs.Get(ctx, "a", belief.GlobalTraitID("compliance"))
	require.NoError(t, err)
	assert.InDelta(t, (0.5+0.88)/2, trait.Estimate(belief.VarTrait, 0), 1e-9)

	types, err := beliefs.Get(ctx, "a", TypesSummaryID)
	require.NoError(t, err)
	turns := types.Variables[ResolutionVariable("compliance")].Stats.(variable.SurvivalStats)
	assert.Equal(t, 1.0, turns.Events)
	assert.Equal(t, 1.0, turns.Censored, "the post-resolution observation adds no turn")

	// A second resolve is a no-op and does not feed traits again.
	_, err = l.Resolve(ctx, ResolveRequest{AgentID: "a", ExperimentID: "e1", Outcome: belief.OutcomeFailure})
	require.NoError(t, err)
	trait, err = beliefs.Get(ctx, "a", belief.GlobalTraitID("compliance"))
	require.NoError(t, err)
	assert.Equal(t, 1, trait.EvidenceCount)
}

func TestResolve_OutcomeMapping(t *testing.T) {
	tests := []struct {
		outcome belief.Outcome
		want    State
	}{
		{belief.OutcomeSuccess, StateResolvedSuccess},
		{belief.OutcomeFailure, StateResolvedFailure},
		{belief.OutcomeFail, StateResolvedFailure},
		{belief.OutcomeAbandoned, StateAbandoned},
		{"shrug", StateAbandoned},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			l, _ := newTestLifecycle(t)
			exp, err := l.Resolve(context.Background(), ResolveRequest{AgentID: "a", ExperimentID: "e", Outcome: tt.outcome})
			require.NoError(t, err)
			assert.Equal(t, tt.want, exp.State)
		})
	}
}

func TestResolve_FailureFeedsZero(t *testing.T) {
	l, beliefs := newTestLifecycle(t)
	ctx := context.Background()
	_, err := l.InitializeHypothesis(ctx, InitRequest{AgentID: "a", ExperimentID: "e", Traits: []string{"analytical"}})
	require.NoError(t, err)
	_, err = l.Resolve(ctx, ResolveRequest{AgentID: "a", ExperimentID: "e", Outcome: belief.OutcomeFailure})
	require.NoError(t, err)

	trait, err := beliefs.Get(ctx, "a", belief.GlobalTraitID("analytical"))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, trait.Estimate(belief.VarTrait, 0), 1e-9)
}

func TestActiveTypes(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	_, err := l.InitializeHypothesis(ctx, InitRequest{AgentID: "a", ExperimentID: "e1", ExperimentType: "risk"})
	require.NoError(t, err)
	_, err = l.InitializeHypothesis(ctx, InitRequest{AgentID: "a", ExperimentID: "e2", ExperimentType: "social"})
	require.NoError(t, err)
	_, err = l.Resolve(ctx, ResolveRequest{AgentID: "a", ExperimentID: "e2", Outcome: belief.OutcomeSuccess})
	require.NoError(t, err)

	active, err := l.ActiveTypes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"risk": true}, active)
}
