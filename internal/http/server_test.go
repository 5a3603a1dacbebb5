package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/internal/skill"
	"github.com/fyrsmithlabs/inferd/internal/trust"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeScrubber struct{}

func (fakeScrubber) Scrub(text string) secrets.Result {
	res := secrets.Result{Text: text, Findings: []secrets.Finding{}}
	if strings.Contains(text, "hunter2") {
		res.Text = strings.ReplaceAll(text, "hunter2", "[REDACTED:password]")
		res.Findings = append(res.Findings, secrets.Finding{RuleID: "password", Line: 1})
	}
	return res
}

func setupTestServer(t *testing.T, cfg *Config, opts ...Option) *Server {
	t.Helper()
	eng, err := engine.NewInMemory(engine.DefaultConfig(),
		engine.WithClock(func() time.Time { return testNow }),
		engine.WithScrubber(fakeScrubber{}),
	)
	require.NoError(t, err)
	s, err := newServer(eng, fakeScrubber{}, zap.NewNop(), cfg, noop.NewMeterProvider().Meter("test"), opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	eng, err := engine.NewInMemory(engine.DefaultConfig())
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(eng, nil, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(eng, nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := setupTestServer(t, nil)
		rec := do(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	})

	t.Run("degraded when a dependency fails", func(t *testing.T) {
		s := setupTestServer(t, nil, WithHealthCheck(func(context.Context) error {
			return errors.New("database is locked")
		}))
		rec := do(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "database is locked", resp.Error)
	})
}

func TestHandleScrub(t *testing.T) {
	s := setupTestServer(t, nil)

	t.Run("redacts", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/scrub", ScrubRequest{Content: "password hunter2"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ScrubResponse](t, rec)
		assert.Equal(t, "password [REDACTED:password]", resp.Content)
		assert.Equal(t, 1, resp.FindingsCount)
		assert.Equal(t, []string{"password"}, resp.Rules)
	})

	t.Run("empty content", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/scrub", ScrubRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "content field is required")
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scrub", strings.NewReader("invalid json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExperimentRoutes(t *testing.T) {
	s := setupTestServer(t, nil)
	score := 0.8

	rec := do(t, s, http.MethodPost, "/api/v1/agents/agent-1/experiments", InitializeRequest{
		ID:             "e1",
		Hypothesis:     "explores when bored",
		ExperimentType: "curiosity",
		Traits:         []string{"curiosity"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exp := decode[experiment.Experiment](t, rec)
	assert.Equal(t, "e1", exp.ID)
	assert.Equal(t, experiment.StateActive, exp.State)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/agent-1/experiments/e1/observations", ObservationRequest{
		Text:  "opened every drawer, password hunter2",
		Score: &score,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[experiment.Experiment](t, rec).Summary.EvidenceCount)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/agent-1/experiments?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]experiment.Experiment](t, rec), 1)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/agent-1/experiments/e1/resolve", ResolveRequest{Outcome: "success", FinalScore: &score})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, experiment.StateResolvedSuccess, decode[experiment.Experiment](t, rec).State)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/agent-1/experiments/e1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/agent-1/experiments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/agent-1/snapshot?history_limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[engine.Snapshot](t, rec)
	assert.Contains(t, snap.GlobalTraits, "curiosity")
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotEmpty(t, snap.History)
}

func TestSnapshotRoutes(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[engine.Snapshot](t, rec)
	assert.Empty(t, snap.Summaries)
	assert.Empty(t, snap.Queue)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/snapshot?history_limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/snapshot?mission_failure_rate=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/bad%20id/snapshot", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissionRoute(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/agents/a/missions", map[string]any{
		"mission_type": "courier",
		"status":       "failed",
		"min_evidence": 1,
		"created_at":   testNow.Add(-time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/missions", map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/exploration/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProposeResponse](t, rec)
	require.NotNil(t, resp.Candidate)
	assert.Greater(t, resp.Context.MissionFailureRate, 0.0)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/exploration/next?mission_failure_rate=0&puzzle_failure_rate=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[ProposeResponse](t, rec).Context.MissionFailureRate)
}

func TestTrustRoutes(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/agents/a/trust/heartbeat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trust.HeartbeatSeeded, decode[HeartbeatResponse](t, rec).Result)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/evolve", EvolveRequest{Delta: 0.5})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[trust.State](t, rec)
	assert.InDelta(t, 0.52, st.RawScore, 1e-9)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/events", TrustEventRequest{Event: trust.EventSessionComplete})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/events", TrustEventRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/ceremonies/x/complete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/trust/ceremonies/9/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[CeremonyResponse](t, rec).Cleared)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSkillRoutes(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/agents/a/puzzles/attempts", skill.AttemptRequest{
		AgentID:    "ignored",
		PuzzleID:   "p1",
		PuzzleType: "stego",
		Difficulty: 0.4,
		Solved:     true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, skill.TrackPerception, decode[skill.AttemptResult](t, rec).Track)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ratings := decode[map[skill.Track]float64](t, rec)
	assert.Greater(t, ratings[skill.TrackPerception], skill.InitialRating)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/ignored/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, skill.InitialRating, decode[map[skill.Track]float64](t, rec)[skill.TrackPerception])

	rec = do(t, s, http.MethodPost, "/api/v1/agents/a/puzzles/check", PuzzleCheckRequest{PuzzleType: "cipher", Difficulty: 0.95})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[skill.Appropriateness](t, rec).Appropriate)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/puzzles/recommendation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[skill.Recommendation](t, rec).RecommendedType)
}

func TestExplorationBonusRoute(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/agents/a/exploration/bonus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/exploration/bonus?type=risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BonusResponse](t, rec)
	assert.Equal(t, "risk", resp.ExperimentType)
	assert.Equal(t, 1.0, resp.Bonus)
}

func TestAPIToken(t *testing.T) {
	s := setupTestServer(t, &Config{Host: "localhost", Port: 9191, APIToken: "s3cret"})

	rec := do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing key")

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil, echo.HeaderAuthorization, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil, echo.HeaderAuthorization, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestRateLimit(t *testing.T) {
	s := setupTestServer(t, &Config{Host: "localhost", Port: 9191, RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/v1/agents/a/trust", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/agents/a/experiments/e1/observations", ObservationRequest{Result: "success"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inferd_belief_observations_total")
}
