// Package server exposes the scanning pipeline over HTTP: scan
// endpoints under /v1, health and info probes, and a WebSocket feed of
// detection events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/llm-shield/shield/internal/cache"
	"github.com/llm-shield/shield/internal/config"
	"github.com/llm-shield/shield/internal/events"
	"github.com/llm-shield/shield/internal/logger"
	"github.com/llm-shield/shield/internal/pipeline"
	"github.com/llm-shield/shield/internal/store"
)

// Server represents the scan API server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	shield  *pipeline.Shield
	cache   *cache.ResultCache
	store   *store.Store
	hub     *events.Hub
	limiter *rateLimiter
	router  *mux.Router
	server  *http.Server

	started         time.Time
	totalScans      atomic.Int64
	totalDetections atomic.Int64
}

// New creates a new scan API server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	// Create scanning pipeline
	shield, err := pipeline.New(cfg.Pipeline, log.WithComponent("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Create event hub
	hub := events.NewHub(&events.HubConfig{
		BroadcastDetections:   cfg.WebSocket.BroadcastDetections,
		BroadcastSystemStatus: cfg.WebSocket.BroadcastSystemStatus,
		BroadcastConnections:  cfg.WebSocket.BroadcastConnections,
	}, log.WithComponent("events").Logger)

	// Create result cache. A zero TTL disables caching, which is how
	// the strict preset opts out unless default_ttl overrides it.
	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		if ttl := resolveCacheTTL(cfg); ttl > 0 {
			resultCache, err = cache.New(&cache.Config{
				RedisURL:       cfg.Cache.RedisURL,
				KeyPrefix:      cfg.Cache.KeyPrefix,
				DefaultTTL:     ttl,
				MaxConnections: cfg.Cache.MaxConnections,
				MinIdleConns:   cfg.Cache.MinIdleConns,
			}, log.WithComponent("cache").Logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create result cache: %w", err)
			}
		}
	}

	// Create event store
	var eventStore *store.Store
	if cfg.Store.Enabled {
		eventStore, err = store.NewStore(&store.Config{
			DatabaseURL:     cfg.Store.DatabaseURL,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		}, log.WithComponent("store").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event store: %w", err)
		}
	}

	// Create rate limiter
	var limiter *rateLimiter
	if cfg.RateLimit.Enabled {
		limiter = newRateLimiter(cfg.RateLimit, log.WithComponent("ratelimit").Logger)
	}

	server := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		shield:  shield,
		cache:   resultCache,
		store:   eventStore,
		hub:     hub,
		limiter: limiter,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket endpoint for the dashboard event feed
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")
	}

	// Scan API
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/info", s.handleInfo).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")
	api.HandleFunc("/scan/prompt", s.handleScanPrompt).Methods("POST")
	api.HandleFunc("/scan/output", s.handleScanOutput).Methods("POST")
	api.HandleFunc("/scan/batch", s.handleScanBatch).Methods("POST")
	api.HandleFunc("/scan", s.handleScanPair).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting scan API server",
		zap.String("host", s.config.Server.Host),
		zap.Int("port", s.config.Server.Port),
		zap.String("preset", s.config.Pipeline.Preset),
		zap.Strings("input_scanners", s.shield.InputScanners()),
		zap.Strings("output_scanners", s.shield.OutputScanners()),
	)

	// Start event hub in a separate goroutine
	go s.hub.Run()

	// Periodic system status broadcast
	if s.config.WebSocket.Enabled && s.config.WebSocket.BroadcastSystemStatus {
		go s.broadcastStatusLoop()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes backends
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scan API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close result cache", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close event store", zap.Error(err))
		}
	}

	return nil
}

// resolveCacheTTL picks the result cache TTL. An explicit default_ttl
// wins; otherwise the preset's caching policy applies.
func resolveCacheTTL(cfg *config.Config) time.Duration {
	if cfg.Cache.DefaultTTL > 0 {
		return cfg.Cache.DefaultTTL
	}

	preset, err := pipeline.ParsePreset(cfg.Pipeline.Preset)
	if err != nil {
		return 0
	}
	return preset.CacheTTL()
}

// broadcastStatusLoop periodically publishes a system status event.
func (s *Server) broadcastStatusLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := s.hub.GetStats()
		s.hub.BroadcastEvent(events.Event{
			Type:      events.EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data: events.SystemStatusEvent{
				Status:           "healthy",
				Uptime:           time.Since(s.started).Round(time.Second).String(),
				TotalScans:       s.totalScans.Load(),
				TotalDetections:  s.totalDetections.Load(),
				ConnectedClients: int(stats.ActiveConnections),
			},
		})
	}
}
