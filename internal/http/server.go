// Package http exposes the inference engine over a JSON HTTP API.
package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

// Server provides HTTP endpoints for inferd.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	scrubber secrets.Scrubber
	logger   *zap.Logger
	config   *Config
	health   func(context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// APIToken, when non-empty, is required as a bearer token on /api.
	APIToken string
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a dependency probe to GET /health.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// NewServer creates a new HTTP server.
func NewServer(eng *engine.Engine, scrubber secrets.Scrubber, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	return newServer(eng, scrubber, logger, cfg, otel.Meter(httpInstrumentationName), opts...)
}

func newServer(eng *engine.Engine, scrubber secrets.Scrubber, logger *zap.Logger, cfg *Config, meter metric.Meter, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if scrubber == nil {
		scrubber = secrets.Nop{}
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	e.Use(newHTTPMetrics(meter, logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		engine:   eng,
		scrubber: scrubber,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// requestContext copies the request id into the request context so engine
// logs carry it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.config.RateLimit > 0 {
		v1.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: newLimiterStore(s.config.RateLimit, s.config.RateBurst, time.Hour),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
		}))
	}
	if s.config.APIToken != "" {
		token := []byte(s.config.APIToken)
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
			},
		}))
	}

	v1.POST("/scrub", s.handleScrub)
	v1.GET("/snapshot", s.handleSnapshot)

	a := v1.Group("/agents/:agent", requireAgent)
	a.GET("/snapshot", s.handleSnapshot)

	a.POST("/experiments", s.handleInitialize)
	a.GET("/experiments", s.handleListExperiments)
	a.GET("/experiments/:id", s.handleGetExperiment)
	a.POST("/experiments/:id/observations", s.handleObserve)
	a.POST("/experiments/:id/resolve", s.handleResolve)

	a.POST("/missions", s.handleMission)

	a.GET("/trust", s.handleTrustState)
	a.POST("/trust/evolve", s.handleTrustEvolve)
	a.POST("/trust/events", s.handleTrustEvent)
	a.POST("/trust/activity", s.handleTrustActivity)
	a.POST("/trust/heartbeat", s.handleHeartbeat)
	a.POST("/trust/ceremonies/:layer/complete", s.handleCeremony)

	a.GET("/skills", s.handleSkills)
	a.POST("/puzzles/attempts", s.handlePuzzleAttempt)
	a.POST("/puzzles/check", s.handlePuzzleCheck)
	a.GET("/puzzles/recommendation", s.handleRecommend)

	a.GET("/exploration/bonus", s.handleBonus)
	a.GET("/exploration/next", s.handleProposeNext)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	res := s.scrubber.Scrub(req.Content)
	rules := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		rules = append(rules, f.RuleID)
	}
	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       res.Text,
		FindingsCount: len(res.Findings),
		Rules:         rules,
	})
}
