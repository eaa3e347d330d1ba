// Package server wires handlers, middleware, and routes, and owns the HTTP
// server lifecycle. It is the composition root: every dependency is
// assembled here, so main.go stays minimal and the rest of the codebase
// receives its collaborators instead of constructing them.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/execbox/internal/auth"
	"github.com/sakif/execbox/internal/handler"
	"github.com/sakif/execbox/internal/middleware"
	sqliteRepo "github.com/sakif/execbox/internal/repository/sqlite"
	"github.com/sakif/execbox/internal/sandbox"
	"github.com/sakif/execbox/internal/service"
)

// Config holds server configuration, loaded from flags/env in main.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// GitHub OAuth app credentials. Leaving them empty disables login; the
	// execution API still works anonymously.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Sandbox configures the execution chain. Zero value gets defaults.
	Sandbox sandbox.Config

	// PreferLocal makes every request skip the sandbox tiers — for trusted
	// single-user deployments where the isolation overhead isn't wanted.
	PreferLocal bool
}

// Server bundles the router with the resources it owns: the database and
// the sandbox chain, both of which need explicit shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	chain  *sandbox.Chain
}

// New assembles the full dependency graph:
//
//	sqlite.DB → RunRepository/UserRepository
//	sandbox.Chain → RunService → handlers
//
// Handlers receive service interfaces, services receive repository
// interfaces; nothing reaches past its own layer.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	chain := sandbox.New(cfg.Sandbox, logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		chain:  chain,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and routes.
//
// Route map:
//
//	GET    /                    → tier status page (HTML)
//	POST   /api/execute         → run code through the chain
//	GET    /api/tiers           → tier availability (JSON)
//	POST   /api/tiers/refresh   → force an availability re-probe
//	GET    /api/runs            → execution history        [auth]
//	GET    /api/runs/{id}       → one run                  [auth]
//	DELETE /api/runs/{id}       → delete a run             [auth]
//	GET    /api/me              → current user             [auth]
//	GET    /auth/github/login   → start OAuth flow
//	GET    /auth/github/callback→ finish OAuth flow
//	POST   /auth/logout         → clear session cookie
func (s *Server) setupRoutes() error {
	// Middleware order matters: request ID first, recovery before anything
	// that can panic, logging around the actual handler.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	secret := s.config.JWTSecret
	if secret == "" {
		// Ephemeral secret: the server still works, but sessions won't
		// survive a restart.
		secret = randomSecret()
		s.logger.Warn("JWT_SECRET not set, using an ephemeral secret")
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	runService := service.NewRunService(s.chain, s.db, s.logger)
	authService := service.NewAuthService(s.db, tokens, s.logger)

	executeHandler := handler.NewExecuteHandler(runService,
		sandbox.Policy{PreferLocal: s.config.PreferLocal}, s.logger)
	runHandler := handler.NewRunHandler(runService, s.logger)
	tierHandler := handler.NewTierHandler(runService, s.logger)

	statusHandler, err := handler.NewStatusHandler(runService, s.logger)
	if err != nil {
		return fmt.Errorf("creating status handler: %w", err)
	}
	s.router.Get("/", statusHandler.HandleStatus)

	// Execution requires a session when we can actually hand sessions out
	// (explicit secret + working login). Otherwise it stays open and a valid
	// session just attributes the run.
	executeAuth := auth.OptionalAuth(tokens)
	if s.config.JWTSecret != "" && s.config.GitHubClientID != "" {
		executeAuth = auth.RequireAuth(tokens)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.With(executeAuth).Post("/execute", executeHandler.HandleExecute)

		r.Get("/tiers", tierHandler.HandleList)
		r.Post("/tiers/refresh", tierHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/runs", runHandler.HandleList)
			r.Get("/runs/{id}", runHandler.HandleGetByID)
			r.Delete("/runs/{id}", runHandler.HandleDelete)
		})
	})

	if s.config.GitHubClientID != "" {
		github := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		authHandler := handler.NewAuthHandler(github, authService, s.logger)

		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)
		s.router.With(auth.RequireAuth(tokens)).Get("/api/me", authHandler.HandleMe)
	} else {
		s.logger.Warn("GitHub OAuth not configured, login disabled")
	}

	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing means the host is broken
	}
	return hex.EncodeToString(b)
}

// Start runs the HTTP server until a signal arrives, then shuts down
// gracefully: stop accepting connections, drain in-flight requests, stop the
// sandbox chain (background prober, container pool), close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	// Background availability prober keeps the Docker verdict warm.
	s.chain.Start()
	defer s.chain.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // executions can take the full wall-clock budget
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
