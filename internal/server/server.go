// Package server is the composition root: it builds every dependency from
// config, wires handlers to routes and owns the process lifecycle.
//
// DEPENDENCY FLOW:
//
//	config → sqlite.DB → repositories → services → handlers → chi routes
//
// Each layer receives only what it needs. Services get repository
// interfaces, handlers get services, and nothing below this package knows
// how anything else was constructed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/broadcast"
	"github.com/sakif/learnmade/internal/config"
	"github.com/sakif/learnmade/internal/email"
	"github.com/sakif/learnmade/internal/handler"
	"github.com/sakif/learnmade/internal/observability"
	"github.com/sakif/learnmade/internal/ratelimit"
	sqliteRepo "github.com/sakif/learnmade/internal/repository/sqlite"
	"github.com/sakif/learnmade/internal/service"
	"github.com/sakif/learnmade/internal/storage"
)

// Server owns the long-lived resources. Start closes them on the way out.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler http.Handler

	db       *sqliteRepo.DB
	runner   *background.Runner
	redis    *ratelimit.RedisCounter // nil when rate limiting is off
	uploader *storage.GCSUploader    // nil when uploads are off
	tracing  observability.ShutdownFunc
}

// New builds the whole application from cfg. Optional integrations (Redis,
// GCS, GitHub, tracing) are skipped when their config is empty.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		runner:  background.NewRunner(logger, background.DefaultTimeout, background.DefaultMaxConcurrent),
		tracing: func(context.Context) error { return nil },
	}

	if err := s.build(ctx); err != nil {
		s.closeResources(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	cfg := s.cfg

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	tracing, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	s.tracing = tracing

	// The gateway client is built per use, so a missing API key only
	// disables mail instead of blocking startup.
	emailCfg := email.Config{
		APIKey:  cfg.Email.APIKey,
		BaseURL: cfg.Email.BaseURL,
		From:    cfg.Email.From,
		Timeout: cfg.Email.Timeout,
	}
	newSender := func() (email.Sender, error) {
		return email.NewClient(emailCfg, s.logger)
	}
	if cfg.Email.APIKey == "" {
		s.logger.Warn("EMAIL_API_KEY not set: welcome and broadcast emails will fail and be logged")
	}

	composer := email.NewComposer(cfg.Server.PublicURL)
	guard := auth.NewGuard(s.db.Users())

	subscriptions := service.NewSubscriptionService(s.db.Subscribers(), guard, tokens, composer, newSender, s.runner, s.logger)
	dispatcher := broadcast.NewDispatcher(s.db.Subscribers(), tokens, composer, newSender, s.runner, cfg.Email.BatchSize, s.logger)

	deps := Deps{
		Logger:         s.logger,
		DB:             s.db,
		Tokens:         tokens,
		Courses:        service.NewCourseService(s.db.Courses(), guard, dispatcher, s.runner, s.logger),
		Subscriptions:  subscriptions,
		Accounts:       service.NewAuthService(s.db.Users(), tokens, auth.NewPasswordService(), subscriptions, cfg.Auth.AdminEmail, s.logger),
		Analytics:      service.NewAnalyticsService(s.db.Visits(), s.db.Subscribers(), guard, s.logger),
		SecureCookies:  cfg.SecureCookies(),
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Tracing:        cfg.Tracing.Enabled,
	}

	if cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub credentials not set: GitHub sign-in disabled")
	}

	if cfg.RateLimit.RedisURL != "" {
		counter, err := ratelimit.NewRedisCounter(cfg.RateLimit.RedisURL)
		if err != nil {
			// Same fail-open stance as the limiter itself.
			s.logger.Warn("rate limiting disabled", slog.String("error", err.Error()))
		} else {
			s.redis = counter
			deps.Limiter = ratelimit.New(counter, cfg.RateLimit.Max, cfg.RateLimit.Window, s.logger)
		}
	}

	if cfg.Storage.Bucket != "" {
		uploader, err := storage.NewGCSUploader(ctx, storage.Config{
			Bucket: cfg.Storage.Bucket,
			Prefix: cfg.Storage.Prefix,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("creating uploader: %w", err)
		}
		s.uploader = uploader
		deps.Media = service.NewMediaService(uploader, guard, s.logger)
	}

	s.handler = NewRouter(deps)
	return nil
}

// Handler is the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down in order:
// stop accepting requests, drain background tasks, flush spans, close
// Redis and the database.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("url", s.cfg.Server.PublicURL),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.closeResources(ctx)

	if runErr == nil {
		s.logger.Info("server stopped gracefully")
	}
	return runErr
}

// Close releases everything New acquired. Tests use it instead of Start.
func (s *Server) Close(ctx context.Context) {
	s.closeResources(ctx)
}

func (s *Server) closeResources(ctx context.Context) {
	if err := s.runner.Wait(ctx); err != nil {
		s.logger.Warn("background tasks still running at shutdown", slog.String("error", err.Error()))
	}
	if err := s.tracing(ctx); err != nil {
		s.logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if s.uploader != nil {
		if err := s.uploader.Close(); err != nil {
			s.logger.Warn("closing storage client", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

var _ handler.GitHubOAuth = (*auth.GitHubProvider)(nil)
