// Package server wires handlers, middleware, and routes together and owns
// the HTTP server lifecycle. main.go stays minimal; everything the server
// needs arrives through Config.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/flat-swap/internal/auth"
	"github.com/sakif/flat-swap/internal/handler"
	"github.com/sakif/flat-swap/internal/middleware"
	sqliteRepo "github.com/sakif/flat-swap/internal/repository/sqlite"
	"github.com/sakif/flat-swap/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port         int
	DBPath       string
	AuthDomain   string        // identity provider domain, e.g. dev-xyz.us.auth0.com
	AuthAudience string        // expected aud claim on access tokens
	JWKSCacheTTL time.Duration // 0 uses auth.DefaultKeyTTL
}

// Server represents the HTTP server and all its dependencies.
// It owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server, assembling the dependency chain:
// sqlite.DB → repositories → services → handlers → routes. The token
// verifier reads provider keys through a TTL cache so request handling
// does not hit the JWKS endpoint every time.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	keys := auth.NewKeyCache(auth.NewFetcher(s.config.AuthDomain), s.config.JWKSCacheTTL)
	verifier := auth.NewVerifier(keys, s.config.AuthDomain, s.config.AuthAudience)

	identityService := service.NewIdentityService(s.db, s.logger)
	userService := service.NewUserService(s.db, s.db, s.logger)
	listingService := service.NewListingService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	listingHandler := handler.NewListingHandler(listingService, s.logger)

	requireAuth := auth.Require(verifier, identityService, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public listing reads — anyone can browse.
		r.Get("/listings", listingHandler.HandleList)
		r.Get("/listings/{id}", listingHandler.HandleGet)

		// Everything else requires a verified bearer token.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/me", authHandler.HandleMe)
			r.Get("/auth/verify", authHandler.HandleVerify)

			r.Get("/users", userHandler.HandleList)
			r.Get("/users/{id}", userHandler.HandleGet)
			r.Put("/users/{id}", userHandler.HandleUpdate)
			r.Delete("/users/{id}", userHandler.HandleDelete)

			r.Post("/listings", listingHandler.HandleCreate)
			r.Get("/listings/my-listings", listingHandler.HandleListMine)
			r.Put("/listings/{id}", listingHandler.HandleUpdate)
			r.Delete("/listings/{id}", listingHandler.HandleDelete)
		})
	})
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests for up to 30s,
// close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("authDomain", s.config.AuthDomain),
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

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
