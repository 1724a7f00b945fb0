package main

import (
	"errors"
	"fmt"

	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/schoolfeedback/feedbackd/internal/handlers"
	"github.com/schoolfeedback/feedbackd/internal/middleware"
	"github.com/schoolfeedback/feedbackd/internal/models"
	"github.com/schoolfeedback/feedbackd/internal/services"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db              *gorm.DB
	submissionLog   *services.SubmissionLogService
	feedbackHandler *handlers.FeedbackHandler
	healthHandler   *handlers.HealthHandler
	limiter         *middleware.RateLimiter
}

// bootstrap initializes all application dependencies: database, services,
// schedulers. A missing provider key is not fatal; the processor answers
// submissions with the matching error instead.
func bootstrap(cfg *config.Config) (*appServices, error) {
	if err := cfg.ValidateRuntime(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &appServices{}
	var recorder services.SubmissionRecorder = services.NopRecorder{}
	var pinger handlers.Pinger

	if cfg.Database.Enabled {
		db, err := models.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.db = db
		app.submissionLog = services.NewSubmissionLogService(db, &cfg.Database)
		if err := app.submissionLog.StartCleanupScheduler(); err != nil {
			logger.Warn().Err(err).Msg("[Bootstrap] Failed to start submission log cleanup")
		}
		recorder = app.submissionLog
		pinger = app.submissionLog
	}

	feedbackService, err := services.NewFeedbackService(cfg, recorder)
	var configErr error
	if err != nil {
		var missing *config.MissingSecretError
		if !errors.As(err, &missing) {
			app.shutdown()
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		logger.Warn().Str("env", missing.EnvVar).
			Msgf("[Bootstrap] %s, submissions will be rejected", missing.Error())
		configErr = err
	}

	app.feedbackHandler = handlers.NewFeedbackHandler(feedbackService, configErr, cfg.Server.BackLink).
		WithRecorder(recorder)
	app.healthHandler = handlers.NewHealthHandler(pinger, app.feedbackHandler, cfg.LLM.Provider, cfg.Mail.Provider)

	if cfg.RateLimit.Enabled {
		app.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	logger.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.ResolvedModel()).
		Str("mail_provider", cfg.Mail.Provider).
		Bool("database", cfg.Database.Enabled).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Msg("[Bootstrap] Services initialized")

	return app, nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.submissionLog != nil {
		s.submissionLog.StopCleanupScheduler()
	}
	if s.db != nil {
		if err := models.Close(s.db); err != nil {
			logger.Warn().Err(err).Msg("[Bootstrap] Failed to close database")
		}
	}
}
