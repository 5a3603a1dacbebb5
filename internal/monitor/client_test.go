package monitor

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/experiment"
	inferhttp "github.com/fyrsmithlabs/inferd/internal/http"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.NewInMemory(engine.DefaultConfig())
	require.NoError(t, err)
	srv, err := inferhttp.NewServer(eng, secrets.Nop{}, zap.NewNop(), &inferhttp.Config{APIToken: token})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts, eng
}

func TestClient_Fetch(t *testing.T) {
	ts, eng := newTestServer(t, "secret")
	ctx := context.Background()

	_, err := eng.InitializeHypothesis(ctx, experiment.InitRequest{
		AgentID:        "agent-1",
		ExperimentID:   "e1",
		Hypothesis:     "follows orders",
		ExperimentType: "compliance",
	})
	require.NoError(t, err)
	_, err = eng.EvolveTrust(ctx, "agent-1", 0.3, "test")
	require.NoError(t, err)

	client := NewClient(ts.URL, "secret")
	assert.Equal(t, ts.URL, client.BaseURL())

	view, err := client.Fetch(ctx, "agent-1")
	require.NoError(t, err)

	assert.Equal(t, "agent-1", view.Trust.AgentID)
	assert.InDelta(t, 0.3, view.Trust.RawScore, 1e-9)
	assert.Equal(t, 2, view.Trust.Layer)
	require.NotEmpty(t, view.Trust.History)

	ids := make([]string, 0, len(view.Summaries))
	for _, s := range view.Summaries {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, belief.ExperimentID("e1"))
	assert.False(t, view.GeneratedAt.IsZero())
}

func TestClient_Fetch_Unauthorized(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	_, err := NewClient(ts.URL, "").Fetch(context.Background(), "agent-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code")
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	ts, _ := newTestServer(t, "")
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, "").Fetch(context.Background(), "agent-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
