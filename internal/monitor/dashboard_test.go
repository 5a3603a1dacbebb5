package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/trust"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

type stubFetcher struct {
	view *AgentView
	err  error
}

func (s stubFetcher) Fetch(context.Context, string) (*AgentView, error) {
	return s.view, s.err
}

func sampleView() *AgentView {
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	pending := 2
	return &AgentView{
		Summaries: []SummaryView{
			{ID: "e1", Status: belief.StatusActive, SuccessProbability: 0.62,
				CredibleInterval: variable.Interval{Lo: 0.41, Hi: 0.8}, EvidenceCount: 5},
			{ID: "e2", Status: belief.StatusResolved, Outcome: belief.OutcomeSuccess,
				SuccessProbability: 0.9, CredibleInterval: variable.Interval{Lo: 0.7, Hi: 0.97}, EvidenceCount: 12},
		},
		Queue: []exploration.Candidate{
			{ExperimentType: "compliance", Score: 0.42, Reason: "untested"},
		},
		GeneratedAt: at,
		Trust: trust.State{
			AgentID:         "agent-1",
			RawScore:        0.31,
			Layer:           2,
			PendingCeremony: &pending,
			LastHeartbeatAt: at.Add(-5 * time.Minute),
			History: []trust.Delta{
				{Delta: 0.26, Reason: "seed", Score: 0.26},
				{Delta: 0.05, Reason: "heartbeat", Score: 0.31},
			},
		},
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)
	assert.Equal(t, "agent-1", model.agentID)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
	assert.Nil(t, model.view)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	m := updated.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestModel_Update_RefreshKey(t *testing.T) {
	view := sampleView()
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{view: view}, 5*time.Second)

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})

	m := updated.(Model)
	assert.False(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, viewMsg(view), cmd())
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)

	updated, cmd := model.Update(tickMsg(time.Now()))

	assert.False(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_ViewMsg(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)
	model.err = fmt.Errorf("stale")

	updated, cmd := model.Update(viewMsg(sampleView()))

	m := updated.(Model)
	assert.Nil(t, cmd)
	assert.Nil(t, m.err)
	require.NotNil(t, m.view)
	assert.False(t, m.lastUpdate.IsZero())
	// First poll backfills from history, then appends the current score.
	assert.Equal(t, []float64{0.26, 0.31, 0.31}, m.scores)

	updated, _ = m.Update(viewMsg(sampleView()))
	assert.Len(t, updated.(Model).scores, 4)
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)

	updated, cmd := model.Update(errMsg(fmt.Errorf("connection refused")))

	m := updated.(Model)
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithAgent(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)
	updated, _ := model.Update(viewMsg(sampleView()))

	view := updated.(Model).View()

	assert.Contains(t, view, "inferd Monitor")
	assert.Contains(t, view, "agent-1")
	assert.Contains(t, view, "L2 CEREMONY PENDING")
	assert.Contains(t, view, "0.310 (+0.050)")
	assert.Contains(t, view, "L3 at 0.45")
	assert.Contains(t, view, "5m ago")
	assert.Contains(t, view, "e1")
	assert.Contains(t, view, "62.0%")
	assert.Contains(t, view, "[0.41, 0.80]")
	assert.Contains(t, view, "n=12")
	assert.Contains(t, view, "compliance")
	assert.Contains(t, view, "untested")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot load agent state")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:9191")
	assert.Contains(t, view, "[r] retry")
}

func TestModel_View_NoData(t *testing.T) {
	model := NewModel("http://localhost:9191", "agent-1", stubFetcher{}, 5*time.Second)

	view := model.View()

	assert.Contains(t, view, "inferd Monitor")
	assert.Contains(t, view, "waiting for first poll")
	assert.Contains(t, view, "[q]")
}

func TestLayerFraction(t *testing.T) {
	tests := []struct {
		name  string
		state trust.State
		want  float64
	}{
		{"at threshold", trust.State{Layer: 1, RawScore: 0.10}, 0},
		{"midway", trust.State{Layer: 1, RawScore: 0.175}, 0.5},
		{"below floor", trust.State{Layer: 2, RawScore: 0.2}, 0},
		{"max layer", trust.State{Layer: trust.MaxLayer, RawScore: 0.95}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, layerFraction(tt.state), 1e-9)
		})
	}
}

func TestAppendToHistory(t *testing.T) {
	var h []float64
	for i := 0; i < historySize+5; i++ {
		h = appendToHistory(h, float64(i))
	}
	assert.Len(t, h, historySize)
	assert.Equal(t, float64(5), h[0])
}
