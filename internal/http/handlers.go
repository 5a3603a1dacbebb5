package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/mission"
	"github.com/fyrsmithlabs/inferd/internal/skill"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (s *Server) handleInitialize(c echo.Context) error {
	var req InitializeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	exp, err := s.engine.InitializeHypothesis(c.Request().Context(), experiment.InitRequest{
		AgentID:         c.Param("agent"),
		ExperimentID:    req.ID,
		Hypothesis:      req.Hypothesis,
		Task:            req.Task,
		Title:           req.Title,
		ExperimentType:  req.ExperimentType,
		SuccessCriteria: req.SuccessCriteria,
		Traits:          req.Traits,
	})
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	exps, err := s.engine.ListExperiments(c.Request().Context(), c.Param("agent"), activeOnly)
	if err != nil {
		return s.toHTTPError(err)
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	return c.JSON(http.StatusOK, exps)
}

func (s *Server) handleGetExperiment(c echo.Context) error {
	exp, err := s.engine.GetExperiment(c.Request().Context(), c.Param("agent"), c.Param("id"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, exp)
}

func (s *Server) handleObserve(c echo.Context) error {
	var req ObservationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	exp, err := s.engine.RecordObservation(c.Request().Context(), experiment.ObservationRequest{
		AgentID:      c.Param("agent"),
		ExperimentID: c.Param("id"),
		Text:         req.Text,
		Result:       req.Result,
		Score:        req.Score,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, exp)
}

func (s *Server) handleResolve(c echo.Context) error {
	var req ResolveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	exp, err := s.engine.ResolveHypothesis(c.Request().Context(), experiment.ResolveRequest{
		AgentID:      c.Param("agent"),
		ExperimentID: c.Param("id"),
		Outcome:      req.Outcome,
		FinalScore:   req.FinalScore,
		Resolution:   req.Resolution,
	})
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, exp)
}

func (s *Server) handleMission(c echo.Context) error {
	var report mission.Report
	if err := bind(c, &report); err != nil {
		return err
	}
	if report.MissionType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mission_type is required")
	}
	summary, err := s.engine.RecordMissionOutcome(c.Request().Context(), c.Param("agent"), report)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// handleSnapshot serves both the per-agent and the cross-agent snapshot.
func (s *Server) handleSnapshot(c echo.Context) error {
	req := engine.SnapshotRequest{
		AgentID: c.Param("agent"),
		Prefix:  c.QueryParam("prefix"),
	}
	if raw := c.QueryParam("history_limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "history_limit must be a non-negative integer")
		}
		req.HistoryLimit = n
	}
	fc, err := failureContext(c)
	if err != nil {
		return err
	}
	req.Context = fc

	snap, err := s.engine.GetSnapshot(c.Request().Context(), req)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleTrustState(c echo.Context) error {
	st, err := s.engine.GetTrustState(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleTrustEvolve(c echo.Context) error {
	var req EvolveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	st, err := s.engine.EvolveTrust(c.Request().Context(), c.Param("agent"), req.Delta, req.Reason)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleTrustEvent(c echo.Context) error {
	var req TrustEventRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event is required")
	}
	st, err := s.engine.RecordTrustEvent(c.Request().Context(), c.Param("agent"), req.Event, req.Score)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleTrustActivity(c echo.Context) error {
	st, err := s.engine.RecordActivity(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleHeartbeat(c echo.Context) error {
	st, result, err := s.engine.Heartbeat(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, HeartbeatResponse{Result: result, State: st})
}

func (s *Server) handleCeremony(c echo.Context) error {
	layer, err := strconv.Atoi(c.Param("layer"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "layer must be an integer")
	}
	st, cleared, err := s.engine.MarkCeremonyComplete(c.Request().Context(), c.Param("agent"), layer)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, CeremonyResponse{Cleared: cleared, State: st})
}

func (s *Server) handleSkills(c echo.Context) error {
	ratings, err := s.engine.SkillRatings(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ratings)
}

func (s *Server) handlePuzzleAttempt(c echo.Context) error {
	var req skill.AttemptRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.AgentID = c.Param("agent")
	res, err := s.engine.RecordPuzzleAttempt(c.Request().Context(), req)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handlePuzzleCheck(c echo.Context) error {
	var req PuzzleCheckRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.engine.CheckPuzzleAppropriate(c.Request().Context(), c.Param("agent"), req.PuzzleType, req.Difficulty, req.Components)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleRecommend(c echo.Context) error {
	rec, err := s.engine.Recommend(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleBonus(c echo.Context) error {
	expType := c.QueryParam("type")
	if expType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type query parameter is required")
	}
	bonus, err := s.engine.ExplorationBonus(c.Request().Context(), c.Param("agent"), expType)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, BonusResponse{ExperimentType: expType, Bonus: bonus})
}

func (s *Server) handleProposeNext(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent")

	fc, err := failureContext(c)
	if err != nil {
		return err
	}
	if fc == nil {
		computed, err := s.engine.FailureContext(ctx, agentID)
		if err != nil {
			return s.toHTTPError(err)
		}
		fc = &computed
	}

	cand, err := s.engine.ProposeNext(ctx, agentID, fc)
	if err != nil {
		return s.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ProposeResponse{Candidate: cand, Context: *fc})
}

// failureContext reads mission_failure_rate and puzzle_failure_rate query
// parameters. It returns nil when neither is present.
func failureContext(c echo.Context) (*exploration.Context, error) {
	missionRate, puzzleRate := c.QueryParam("mission_failure_rate"), c.QueryParam("puzzle_failure_rate")
	if missionRate == "" && puzzleRate == "" {
		return nil, nil
	}
	fc := &exploration.Context{}
	for _, p := range []struct {
		raw string
		dst *float64
	}{{missionRate, &fc.MissionFailureRate}, {puzzleRate, &fc.PuzzleFailureRate}} {
		if p.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(p.raw, 64)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "failure rates must be numbers")
		}
		*p.dst = v
	}
	return fc, nil
}
