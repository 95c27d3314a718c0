// Package api serves the read-only HTTP API and the dashboard WebSocket
// stream. It never mutates engine state: every handler reads snapshots.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"prediction-engine/internal/config"
	"prediction-engine/internal/leaderboard"
	"prediction-engine/internal/obs"
	"prediction-engine/pkg/types"
)

// EngineView is the read surface the handlers need from the engine.
type EngineView interface {
	AgentTrades(agent types.AgentID) ([]types.Trade, error)
	Summaries(window leaderboard.Window) ([]leaderboard.AgentSummary, error)
	Consensus() []types.ConsensusRecord
	Profiles() []types.AgentProfile
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg     config.APIConfig
	engine  EngineView
	metrics *obs.Metrics
	hub     *Hub
	logger  *slog.Logger
	http    *http.Server
}

func NewServer(cfg config.APIConfig, engine EngineView, metrics *obs.Metrics, hub *Hub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		metrics: metrics,
		hub:     hub,
		logger:  logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/agents/summary", s.handleAgentsSummary)
		r.Get("/agents/{agentId}/trades", s.handleAgentTrades)
		r.Get("/consensus", s.handleConsensus)
	})
	if hub != nil {
		r.Get("/ws", s.handleWebSocket)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("api listening", "addr", s.http.Addr)
	if s.hub != nil {
		go s.hub.Run()
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
