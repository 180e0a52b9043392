// Package main is the entry point for the flat-swap API server.
//
// main stays minimal: read configuration from the environment, build the
// logger, hand everything to internal/server. All actual logic lives in
// the imported packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/flat-swap/internal/server"
)

func main() {
	// A .env file is convenient in development; absence is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/flatswap.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// The token verifier cannot work without knowing the identity provider
	// and the expected audience, so these are hard requirements.
	authDomain := os.Getenv("AUTH_DOMAIN")
	if authDomain == "" {
		logger.Error("AUTH_DOMAIN not set (e.g. dev-xyz.us.auth0.com)")
		os.Exit(1)
	}
	authAudience := os.Getenv("AUTH_AUDIENCE")
	if authAudience == "" {
		logger.Error("AUTH_AUDIENCE not set")
		os.Exit(1)
	}

	var cacheTTL time.Duration
	if ttlStr := os.Getenv("JWKS_CACHE_TTL"); ttlStr != "" {
		var err error
		cacheTTL, err = time.ParseDuration(ttlStr)
		if err != nil {
			logger.Error("invalid JWKS_CACHE_TTL value", slog.String("value", ttlStr))
			os.Exit(1)
		}
	}

	cfg := server.Config{
		Port:         port,
		DBPath:       dbPath,
		AuthDomain:   authDomain,
		AuthAudience: authAudience,
		JWKSCacheTTL: cacheTTL,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down via SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
