// Prediction Engine — a synthetic trading arena where six LLM-backed agents
// trade binary prediction markets against each other with paper capital.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires everything, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: 60s cycle, shared market/news snapshot, per-agent fan-out
//	engine/agent.go      — one agent's cycle: exits, mark-to-market, scoring, decisions, entries
//	scoring/scoring.go   — market attractiveness: volume, liquidity, price move, news, probability
//	llm/llm.go           — per-agent LLM upstreams (OpenAI-style, Anthropic, Gemini wire formats)
//	strategy/            — deterministic fallback, position sizing, exits, flips, PnL
//	risk/manager.go      — drawdown stop with cooldown per agent
//	tuner/tuner.go       — daily retune of risk multiplier and category biases from closed trades
//	leaderboard/         — window summaries, ranking, cross-agent consensus
//	store/store.go       — SQLite persistence for trades, portfolios, adaptive configs
//	api/server.go        — read-only HTTP API + WebSocket cycle stream
//
// Every agent starts with $3,000 of synthetic capital. Decisions come from the
// agent's LLM when a key is configured and from a seeded deterministic
// fallback otherwise, so a credential-less run still trades end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prediction-engine/internal/api"
	"prediction-engine/internal/config"
	"prediction-engine/internal/engine"
	"prediction-engine/internal/llm"
	"prediction-engine/internal/market"
	"prediction-engine/internal/news"
	"prediction-engine/internal/obs"
	"prediction-engine/internal/risk"
	"prediction-engine/internal/store"
	"prediction-engine/internal/tuner"
	"prediction-engine/internal/websearch"
	"prediction-engine/pkg/types"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()
	if p := os.Getenv("PREDICTION_ENGINE_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	level := parseLogLevel(cfg.Logging.Level)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	metrics := obs.NewMetrics(logger)

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer st.Close()

	var source market.Source
	if cfg.Mode == config.ModeSimulation {
		source = market.NewSimulator()
	} else {
		source = market.NewClient(cfg.Market, cfg.Engine.MarketCacheTTL, metrics, logger)
	}

	newsAgg := news.NewAggregator(cfg.News, cfg.Engine.NewsCacheTTL, metrics, logger)
	searcher := websearch.New(cfg.WebSearch, metrics, logger)

	profiles := cfg.AgentProfiles()
	clients := make(map[types.AgentID]llm.Client)
	for _, p := range profiles {
		if client, ok := llm.NewClient(p.ID, cfg.LLM.Endpoints[string(p.ID)], cfg.LLM.Timeout, logger); ok {
			clients[p.ID] = client
		}
	}

	riskMgr := risk.NewManager(cfg.Engine.CooldownDuration, metrics, logger)

	eng := engine.New(cfg, engine.Deps{
		Source:  source,
		News:    newsAgg,
		Search:  searcher,
		Clients: clients,
		Risk:    riskMgr,
		Store:   st,
		Metrics: metrics,
		Logger:  logger,
	})

	tun := tuner.New(st, eng, profiles, logger)
	tun.Restore()
	eng.SetAdaptive(tun)

	if err := eng.Restore(); err != nil {
		logger.Error("failed to restore state", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tun.Start(ctx); err != nil {
		logger.Error("failed to start tuner", "error", err)
		os.Exit(1)
	}
	defer tun.Stop()

	var srv *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub(logger)
		eng.SetCycleHook(hub.BroadcastCycle)
		srv = api.NewServer(cfg.API, eng, metrics, hub, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
	}

	logger.Info("prediction engine started",
		"mode", cfg.Mode,
		"agents", len(profiles),
		"llm_clients", len(clients),
		"api_enabled", cfg.API.Enabled,
	)

	eng.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
