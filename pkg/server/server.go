// Package server provides the public entry point for initializing the
// UL builder gateway.
//
// This package exists in pkg/ (not internal/) so that the desktop
// wrapper and integration tests can compose the full gateway without
// reaching into internal packages.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shirisha-ilura/UL/internal/api"
	"github.com/shirisha-ilura/UL/internal/api/handlers"
	"github.com/shirisha-ilura/UL/internal/api/middleware"
	"github.com/shirisha-ilura/UL/internal/architect"
	"github.com/shirisha-ilura/UL/internal/build"
	"github.com/shirisha-ilura/UL/internal/catalog"
	"github.com/shirisha-ilura/UL/internal/config"
	"github.com/shirisha-ilura/UL/internal/notify"
	"github.com/shirisha-ilura/UL/internal/sessions"
	"github.com/shirisha-ilura/UL/internal/store"
	"github.com/shirisha-ilura/UL/internal/telemetry"
	"github.com/shirisha-ilura/UL/pkg/contracts"
)

// Config is the public configuration for the gateway server.
type Config struct {
	Port         int
	Version      string
	ArchitectURL string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized UL builder gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the build registry (in-memory with a JSON snapshot).
	Store contracts.Store

	// Manager orchestrates the live build sessions. Exposed so embedders
	// can drive builds programmatically.
	Manager *build.Manager

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		ArchitectURL: cfg.Architect.BaseURL,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all gateway components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	// Build internal config from public config
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}
	if pubCfg.ArchitectURL != "" {
		cfg.Architect.BaseURL = pubCfg.ArchitectURL
	}

	// Initialize telemetry
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Build registry: in-memory with a JSON snapshot, zero configuration
	dataStore := store.NewMemoryStore()
	log.Info().Msg("✅ Build registry initialized")

	// Architect Service transport. A failed probe is not fatal: the
	// service may come up after the gateway does.
	archClient := architect.NewClient(cfg.Architect.BaseURL, cfg.Architect.Timeout)
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := archClient.Health(probeCtx); err != nil {
		log.Warn().Err(err).Str("url", cfg.Architect.BaseURL).Msg("Architect service not reachable yet")
	} else {
		log.Info().Str("url", cfg.Architect.BaseURL).Msg("✅ Architect service reachable")
	}
	cancel()

	// Webhook notifications (optional)
	var notifier contracts.Notifier
	if svc := notify.NewService(cfg.Notify.WebhookURLs, cfg.Notify.Secret); svc.Channels() > 0 {
		notifier = svc
		log.Info().Int("channels", svc.Channels()).Msg("✅ Webhook notifications enabled")
	}

	// Build orchestration
	manager := build.NewManager(
		archClient,
		dataStore,
		notifier,
		catalog.New(),
		time.Duration(cfg.Progress.TickMillis)*time.Millisecond,
		cfg.Progress.TicksPerStep,
	)
	log.Info().Msg("✅ Build manager initialized")

	// Post-build test chat sessions
	sessionStore := sessions.NewMemorySessionStore()

	// Handlers + API router
	auth := middleware.NewAPIKeyAuth(cfg.APIKeys)
	if auth.Enabled() {
		log.Info().Msg("✅ API key auth enabled")
	}
	h := handlers.New(manager, archClient, sessionStore)
	router := api.NewRouter(cfg, h, auth)

	srv := &Server{
		Handler: router,
		Store:   dataStore,
		Manager: manager,
		Config:  pubCfg,
		Port:    cfg.Port,
	}
	srv.ShutdownFunc = func(ctx context.Context) error {
		manager.Close()
		return shutdown(ctx)
	}
	return srv, nil
}
