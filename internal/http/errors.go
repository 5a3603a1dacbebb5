package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/skill"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// requireAgent rejects malformed :agent path parameters.
func requireAgent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := logging.ValidateID(c.Param("agent"), "agent id"); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return next(c)
	}
}

// toHTTPError maps engine errors to status codes.
func (s *Server) toHTTPError(err error) error {
	switch {
	case errors.Is(err, belief.ErrEmptyAgentID),
		errors.Is(err, belief.ErrEmptySummaryID),
		errors.Is(err, trust.ErrEmptyAgentID),
		errors.Is(err, skill.ErrEmptyAgentID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, belief.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, belief.ErrConflict), errors.Is(err, trust.ErrConflict), errors.Is(err, skill.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case belief.IsPersistence(err):
		s.logger.Error("storage failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
