// Package server is the composition root: it opens storage, builds the
// workspace session, and wires every handler onto one chi router.
//
// ROUTE STRUCTURE:
//
//	GET    /health
//	GET    /metrics                          (metrics.enabled)
//	/api/snippets, /api/export, /api/import, /api/format
//	/api/backups/...
//	/api/session/...
//	/auth/github/login, /auth/github/callback, /auth/logout, /api/me   (auth configured)
//	/api/billing/checkout, /webhooks/stripe                            (billing configured)
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → Metrics → Recoverer. Recoverer sits
// innermost so a panic is still logged and counted as a 500.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/sql-snippets/internal/archive"
	"github.com/sakif/sql-snippets/internal/auth"
	"github.com/sakif/sql-snippets/internal/autosave"
	"github.com/sakif/sql-snippets/internal/billing"
	"github.com/sakif/sql-snippets/internal/config"
	"github.com/sakif/sql-snippets/internal/editor"
	"github.com/sakif/sql-snippets/internal/format"
	"github.com/sakif/sql-snippets/internal/handler"
	"github.com/sakif/sql-snippets/internal/metrics"
	"github.com/sakif/sql-snippets/internal/middleware"
	"github.com/sakif/sql-snippets/internal/service"
	"github.com/sakif/sql-snippets/internal/workspace"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and every resource behind it. Close releases them.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	storage *Storage
	codec   *archive.Codec
	session *workspace.Session
	metrics metrics.Recorder

	closeOnce sync.Once
	closeErr  error
}

// New opens storage and wires the routes. The session opens the most
// recently modified snippet.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := OpenStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := build(cfg, logger, st, autosave.RealClock())
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, logger *slog.Logger, st *Storage, clock autosave.Clock) (*Server, error) {
	codec, err := archive.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Metrics.Enabled, reg)

	theme, err := editor.ParseTheme(cfg.Editor.Theme)
	if err != nil {
		codec.Close()
		return nil, fmt.Errorf("server: %w", err)
	}
	formatter := format.NewCached(format.New(), cfg.Format.CacheSizeMB*1024*1024)
	session := workspace.New(st.Store, formatter, clock, workspace.Config{
		Autosave: autosave.Config{
			Debounce:       cfg.Autosave.Debounce,
			BackupInterval: cfg.Autosave.BackupInterval,
		},
		Theme: theme,
	}, logger, m)
	session.Open(context.Background())

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		storage: st,
		codec:   codec,
		session: session,
		metrics: m,
	}
	if err := s.setupRoutes(formatter, reg); err != nil {
		s.release()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes(formatter format.Formatter, reg *prometheus.Registry) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if p, ok := s.metrics.(*metrics.Prometheus); ok {
		s.router.Handle("/metrics", p.Handler())
	}

	st := s.storage.Store
	snippets := handler.NewSnippetHandler(st, s.codec, s.logger)
	backups := handler.NewBackupHandler(st, s.logger)
	formatH := handler.NewFormatHandler(formatter, s.metrics)
	sessionH := handler.NewSessionHandler(s.session, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snippets", snippets.HandleList)
		r.Post("/snippets", snippets.HandleCreate)
		r.Get("/snippets/{id}", snippets.HandleGetByID)
		r.Put("/snippets/{id}", snippets.HandleUpdate)
		r.Delete("/snippets/{id}", snippets.HandleDelete)
		r.Get("/export", snippets.HandleExport)
		r.Post("/import", snippets.HandleImport)
		r.Post("/format", formatH.HandleFormat)

		r.Get("/backups", backups.HandleList)
		r.Get("/backups/{id}", backups.HandleGet)
		r.Delete("/backups/{id}", backups.HandleDelete)
		r.Post("/backups/{id}/recover", backups.HandleRecover)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionH.HandleStatus)
			r.Post("/new", sessionH.HandleNew)
			r.Post("/select/{id}", sessionH.HandleSelect)
			r.Put("/text", sessionH.HandleText)
			r.Put("/name", sessionH.HandleName)
			r.Put("/selection", sessionH.HandleSelection)
			r.Post("/save", sessionH.HandleSave)
			r.Post("/delete", sessionH.HandleDelete)
			r.Post("/format", sessionH.HandleFormat)
			r.Post("/revert", sessionH.HandleRevert)
			r.Post("/recover/{id}", sessionH.HandleRecover)
			r.Post("/theme", sessionH.HandleTheme)
			r.Get("/copy", sessionH.HandleCopy)
			r.Get("/highlight", sessionH.HandleHighlight)
		})
	})

	if !s.config.AuthEnabled() {
		s.logger.Warn("auth not configured: login and billing routes are disabled")
		return nil
	}
	return s.setupAccountRoutes()
}

// setupAccountRoutes wires GitHub login and, when configured, Stripe billing.
func (s *Server) setupAccountRoutes() error {
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret)
	if err != nil {
		return err
	}
	authSvc := service.NewAuthService(s.storage.DB, tokens, s.logger)
	provider := auth.NewGitHubProvider(s.config.Auth.GitHubClientID, s.config.Auth.GitHubClientSecret, s.config.CallbackURL())
	authH := handler.NewAuthHandler(provider, authSvc, s.config.Server.SecureCookie, s.logger)

	s.router.Get("/auth/github/login", authH.HandleGitHubLogin)
	s.router.Get("/auth/github/callback", authH.HandleGitHubCallback)
	s.router.Post("/auth/logout", authH.HandleLogout)
	s.router.With(auth.RequireAuth(tokens)).Get("/api/me", authH.HandleMe)

	if !s.config.BillingEnabled() {
		return nil
	}
	processor, err := billing.NewStripe(billing.StripeConfig{
		SecretKey:     s.config.Billing.StripeSecretKey,
		PriceID:       s.config.Billing.StripePriceID,
		WebhookSecret: s.config.Billing.StripeWebhookSecret,
	})
	if err != nil {
		return err
	}
	billingH := handler.NewBillingHandler(
		service.NewBillingService(s.storage.DB, processor, s.logger),
		s.config.Billing.ReturnURL,
		s.logger,
	)
	s.router.With(auth.RequireAuth(tokens)).Post("/api/billing/checkout", billingH.HandleCheckout)
	s.router.Post("/webhooks/stripe", billingH.HandleWebhook)
	return nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully and
// releases every resource.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.Storage.DBPath),
			slog.Bool("ephemeral", s.config.Storage.Ephemeral),
			slog.Bool("metrics", s.config.Metrics.Enabled),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close cancels pending auto-save timers and closes storage. Later calls
// return the first result.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.release()
		s.closeErr = s.storage.Close()
	})
	return s.closeErr
}

// release stops the session and the codec but leaves storage open.
func (s *Server) release() {
	s.session.Close()
	s.codec.Close()
}
