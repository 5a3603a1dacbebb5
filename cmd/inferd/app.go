package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/inferd/internal/config"
	"github.com/fyrsmithlabs/inferd/internal/events"
	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/internal/storage"
	"github.com/fyrsmithlabs/inferd/internal/telemetry"
	"github.com/fyrsmithlabs/inferd/pkg/engine"
)

// app holds everything a command needs once initialized.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     *storage.SQLiteStore
	scrubber  secrets.Scrubber
	publisher events.Publisher
	engine    *engine.Engine
}

// loadConfig loads and validates configuration. In stdio mode logs are
// forced onto stderr.
func loadConfig(stdio bool) (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if stdio {
		cfg.Logging.Output.Stdout = false
		cfg.Logging.Output.Stderr = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the file configuration onto the engine.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		CredibleLevel:   cfg.Belief.CredibleLevel,
		MissionHalfLife: cfg.Belief.MissionHalfLife,
		HistoryLimit:    cfg.Belief.HistoryLimit,
		Experiment:      cfg.Experiment,
		Trust:           cfg.Trust,
		Skill:           cfg.Skill,
		Exploration:     cfg.Exploration,
	}
}

// newApp initializes telemetry, logging, storage, the scrubber and the
// engine, in that order. Callers must Close the result.
func newApp(ctx context.Context, stdio bool) (*app, error) {
	cfg, err := loadConfig(stdio)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", h.Reasons))
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	stores, err := a.openStores(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.scrubber, err = secrets.New(cfg.Secrets, logger.Underlying().Named("secrets"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize scrubber: %w", err)
	}
	if r, ok := a.scrubber.(*secrets.Reloader); ok {
		if err := r.Start(ctx); err != nil {
			logger.Warn(ctx, "allowlist watch disabled", zap.Error(err))
		}
	}

	a.publisher, err = events.NewPublisher(cfg.Events, logger.Underlying().Named("events"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	a.engine, err = engine.New(stores, engineConfig(cfg),
		engine.WithLogger(logger.Underlying()),
		engine.WithScrubber(a.scrubber),
		engine.WithPublisher(a.publisher),
		engine.WithTracerProvider(tel.TracerProvider()),
		engine.WithMeterProvider(tel.MeterProvider()),
	)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	logger.Info(ctx, "inferd initialized",
		zap.String("version", version),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Bool("scrubbing", cfg.Secrets.Enabled),
		zap.Bool("events", cfg.Events.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled))
	return a, nil
}

func (a *app) openStores(ctx context.Context) (engine.Stores, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn(ctx, "using in-memory storage; state is lost on exit")
		return engine.InMemoryStores(), nil
	}

	path, err := config.ExpandPath(a.cfg.Storage.Path)
	if err != nil {
		return engine.Stores{}, err
	}
	store, err := storage.Open(ctx, path)
	if err != nil {
		return engine.Stores{}, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	a.store = store
	a.logger.Info(ctx, "storage opened", zap.String("path", path))
	return engine.Stores{Beliefs: store, Trust: store, Skills: store}, nil
}

// healthCheck probes the database when one is open.
func (a *app) healthCheck(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Ping(ctx)
}

// Close releases the publisher and storage, flushes telemetry and syncs the
// logger.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if r, ok := a.scrubber.(*secrets.Reloader); ok {
		r.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error(ctx, "shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync()
}
