// Package server is the composition root: it builds every dependency from
// Config, mounts the routes and runs the HTTP server until a shutdown signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/dreams-saver/internal/auth"
	"github.com/sakif/dreams-saver/internal/billing/stripe"
	"github.com/sakif/dreams-saver/internal/generator"
	"github.com/sakif/dreams-saver/internal/generator/gemini"
	"github.com/sakif/dreams-saver/internal/handler"
	"github.com/sakif/dreams-saver/internal/metrics"
	"github.com/sakif/dreams-saver/internal/middleware"
	"github.com/sakif/dreams-saver/internal/notify"
	"github.com/sakif/dreams-saver/internal/notify/sendgrid"
	"github.com/sakif/dreams-saver/internal/repository"
	"github.com/sakif/dreams-saver/internal/repository/postgres"
	sqliteRepo "github.com/sakif/dreams-saver/internal/repository/sqlite"
	"github.com/sakif/dreams-saver/internal/service"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration. Empty credentials switch the matching
// feature off rather than failing startup.
type Config struct {
	Port int

	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret string
	JWKSURL   string
	JWTIssuer string

	GeminiAPIKey          string
	GeminiModel           string
	GenerationTimeout     time.Duration
	GenerationConcurrency int

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	AppURL              string

	SendGridAPIKey  string
	NotifyFromEmail string

	InsightRatePerMinute int
	AdminTokenHash       string
}

// Server owns the router and every resource that must be released on
// shutdown.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	closers []io.Closer
}

// New wires the dependency graph:
//
//	store → AccountService → DreamService, InsightService, BillingService → handlers
//
// Services receive repository interfaces; handlers receive services.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
		closers: []io.Closer{store},
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(ctx context.Context, cfg Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "", DriverSQLite:
		return sqliteRepo.New(cfg.DBPath)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func (s *Server) verifier() (auth.Verifier, error) {
	if s.config.JWKSURL != "" {
		return auth.NewJWKSVerifier(s.config.JWKSURL, s.config.JWTIssuer)
	}
	if s.config.JWTSecret == "" {
		return nil, errors.New("either SUPABASE_JWKS_URL or SUPABASE_JWT_SECRET must be set")
	}
	return auth.NewTokenService(s.config.JWTSecret, s.config.JWTIssuer)
}

func (s *Server) generator(ctx context.Context) generator.Generator {
	if s.config.GeminiAPIKey == "" {
		s.logger.Warn("GEMINI_API_KEY not set, insight generation is disabled")
		return generator.Unavailable{}
	}

	gcfg := gemini.DefaultConfig()
	gcfg.APIKey = s.config.GeminiAPIKey
	if s.config.GeminiModel != "" {
		gcfg.Model = s.config.GeminiModel
	}
	if s.config.GenerationTimeout > 0 {
		gcfg.Timeout = s.config.GenerationTimeout
	}

	client, err := gemini.New(ctx, gcfg, s.logger)
	if err != nil {
		s.logger.Warn("Gemini client unavailable, insight generation is disabled",
			slog.String("error", err.Error()),
		)
		return generator.Unavailable{}
	}
	s.closers = append(s.closers, client)
	return generator.Bounded(client, s.config.GenerationConcurrency)
}

func (s *Server) notifier() notify.Notifier {
	if s.config.SendGridAPIKey == "" {
		return notify.Nop{}
	}
	n, err := sendgrid.New(s.config.SendGridAPIKey, s.config.NotifyFromEmail, s.logger)
	if err != nil {
		s.logger.Warn("SendGrid notifier unavailable, subscription emails are disabled",
			slog.String("error", err.Error()),
		)
		return notify.Nop{}
	}
	return n
}

// setupRoutes configures middleware and routes.
//
//	GET    /healthz                        → liveness
//	GET    /metrics                        → Prometheus
//	POST   /webhooks/stripe                → billing events (signature checked)
//	GET    /api/me                         → account + usage
//	GET    /api/dreams                     → list dreams
//	POST   /api/dreams                     → create dream
//	GET    /api/dreams/{id}                → get dream
//	DELETE /api/dreams/{id}                → delete dream
//	GET    /api/tags                       → list tags
//	POST   /api/dreams/{id}/insight        → request insight (rate limited)
//	GET    /api/dreams/{id}/insight        → stored insight
//	POST   /api/billing/checkout           → checkout session
//	POST   /api/billing/portal             → customer portal session
//	POST   /api/admin/accounts/backfill    → repair null counters (admin)
func (s *Server) setupRoutes(ctx context.Context) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger, s.metrics))

	verifier, err := s.verifier()
	if err != nil {
		return fmt.Errorf("configuring authentication: %w", err)
	}

	accountService := service.NewAccountService(s.store, s.logger)
	dreamService := service.NewDreamService(s.store, s.store, s.store, s.logger)
	insightService := service.NewInsightService(s.store, accountService, s.generator(ctx), s.metrics, s.logger)

	accountHandler := handler.NewAccountHandler(accountService, s.logger)
	dreamHandler := handler.NewDreamHandler(dreamService, insightService, s.logger)

	var billingHandler *handler.BillingHandler
	if s.config.StripeSecretKey != "" {
		provider, err := stripe.New(stripe.Config{
			SecretKey:     s.config.StripeSecretKey,
			WebhookSecret: s.config.StripeWebhookSecret,
			PriceID:       s.config.StripePriceID,
			AppURL:        s.config.AppURL,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("configuring stripe: %w", err)
		}
		billingService := service.NewBillingService(provider, accountService, s.store, s.notifier(), s.metrics, s.logger)
		billingHandler = handler.NewBillingHandler(billingService, s.logger)
	} else {
		s.logger.Warn("STRIPE_SECRET_KEY not set, billing routes are disabled")
	}

	s.limiter = middleware.NewRateLimiter(s.config.InsightRatePerMinute, s.config.InsightRatePerMinute, middleware.UserKey, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	if billingHandler != nil {
		s.router.Post("/webhooks/stripe", billingHandler.HandleWebhook)
	}

	if s.config.AdminTokenHash == "" {
		s.logger.Warn("ADMIN_TOKEN_HASH not set, admin routes are disabled")
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.config.AdminTokenHash != "" {
			r.With(auth.AdminGuard(auth.NewPasswordService(), s.config.AdminTokenHash)).
				Post("/admin/accounts/backfill", accountHandler.HandleBackfill)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(verifier, s.logger))
			r.Use(middleware.Provision(accountService, s.logger))

			r.Get("/me", accountHandler.HandleMe)

			r.Get("/dreams", dreamHandler.HandleList)
			r.Post("/dreams", dreamHandler.HandleCreate)
			r.Get("/dreams/{id}", dreamHandler.HandleGet)
			r.Delete("/dreams/{id}", dreamHandler.HandleDelete)
			r.Get("/tags", dreamHandler.HandleListTags)

			r.With(s.limiter.Handler).Post("/dreams/{id}/insight", dreamHandler.HandleRequestInsight)
			r.Get("/dreams/{id}/insight", dreamHandler.HandleGetInsight)

			if billingHandler != nil {
				r.Post("/billing/checkout", billingHandler.HandleCheckout)
				r.Post("/billing/portal", billingHandler.HandlePortal)
			}
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Error("closing resource", slog.String("error", err.Error()))
		}
	}
}

// Start runs the HTTP server and blocks until SIGINT/SIGTERM or a listen
// error. In-flight requests get 30 seconds to finish; the generator client
// and the database are closed afterwards.
func (s *Server) Start() error {
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
