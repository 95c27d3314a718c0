// Package engine runs the trading loop: every interval it snapshots markets
// and news once, then evaluates all six agents in parallel against the shared
// snapshot. At most one cycle is in flight; ticks arriving mid-cycle are
// counted and dropped.
//
// An agent failing its cycle never blocks the others — its error is captured
// in the cycle record and the next tick retries from scratch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"prediction-engine/internal/config"
	"prediction-engine/internal/leaderboard"
	"prediction-engine/internal/llm"
	"prediction-engine/internal/market"
	"prediction-engine/internal/news"
	"prediction-engine/internal/obs"
	"prediction-engine/internal/risk"
	"prediction-engine/internal/store"
	"prediction-engine/internal/websearch"
	"prediction-engine/pkg/types"
)

// AdaptiveSource supplies per-agent adaptive configs. The tuner implements
// it; nil configs mean defaults.
type AdaptiveSource interface {
	Current(agent types.AgentID) *types.AdaptiveConfig
}

// neutralAdaptive stands in before the tuner is wired (tests, first boot).
type neutralAdaptive struct{}

func (neutralAdaptive) Current(types.AgentID) *types.AdaptiveConfig { return nil }

// Engine owns portfolios, open trades, and the cycle scheduler.
type Engine struct {
	cfg      *config.Config
	profiles []types.AgentProfile

	source    market.Source
	news      *news.Aggregator
	search    *websearch.Searcher
	clients   map[types.AgentID]llm.Client
	decisions *llm.DecisionCache
	adaptive  AdaptiveSource
	riskMgr   *risk.Manager
	store     *store.Store
	metrics   *obs.Metrics
	logger    *slog.Logger
	now       func() time.Time

	trades *tradeCache

	// portfolios are the live working copies, owned by their agent goroutine
	// while a cycle runs. snapshots hold the last successfully persisted state
	// and are the only thing the read side ever sees.
	mu         sync.RWMutex
	portfolios map[types.AgentID]*types.AgentPortfolio
	snapshots  map[types.AgentID]*types.AgentPortfolio
	openTrades map[string]types.Trade // keyed by types.TradeKey
	categories map[string]types.Category
	cycleIndex int

	inFlight atomic.Bool
	onCycle  func(obs.CycleRecord)
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Source   market.Source
	News     *news.Aggregator
	Search   *websearch.Searcher
	Clients  map[types.AgentID]llm.Client
	Adaptive AdaptiveSource
	Risk     *risk.Manager
	Store    *store.Store
	Metrics  *obs.Metrics
	Logger   *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Engine {
	adaptive := deps.Adaptive
	if adaptive == nil {
		adaptive = neutralAdaptive{}
	}
	clients := deps.Clients
	if clients == nil {
		clients = make(map[types.AgentID]llm.Client)
	}

	e := &Engine{
		cfg:        cfg,
		profiles:   cfg.AgentProfiles(),
		source:     deps.Source,
		news:       deps.News,
		search:     deps.Search,
		clients:    clients,
		decisions:  llm.NewDecisionCache(cfg.Engine.DecisionCacheTTL),
		adaptive:   adaptive,
		riskMgr:    deps.Risk,
		store:      deps.Store,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "engine"),
		now:        time.Now,
		trades:     newTradeCache(cfg.Engine.TradeCacheTTL),
		portfolios: make(map[types.AgentID]*types.AgentPortfolio),
		snapshots:  make(map[types.AgentID]*types.AgentPortfolio),
		openTrades: make(map[string]types.Trade),
		categories: make(map[string]types.Category),
	}
	for _, p := range e.profiles {
		e.portfolios[p.ID] = types.NewPortfolio(p.ID)
		e.snapshots[p.ID] = types.NewPortfolio(p.ID)
	}
	return e
}

// Restore rebuilds portfolios and open trades from the store so a restart
// resumes where the previous process stopped.
func (e *Engine) Restore() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, profile := range e.profiles {
		p, err := e.store.LoadPortfolio(profile.ID)
		if err != nil {
			return err
		}
		if p != nil {
			e.portfolios[profile.ID] = p
			e.snapshots[profile.ID] = p.Clone()
			e.riskMgr.Restore(p)
		}
	}

	open, err := e.store.LoadOpenTrades()
	if err != nil {
		return err
	}
	for _, t := range open {
		e.openTrades[types.TradeKey(t.AgentID, t.MarketID)] = t
	}

	e.logger.Info("state restored", "open_trades", len(open))
	return nil
}

// Run executes one cycle immediately, then on every tick. Blocks until ctx
// is canceled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("engine started",
		"mode", e.cfg.Mode,
		"interval", e.cfg.Engine.Interval,
		"agents", len(e.enabledProfiles()))

	e.tick(ctx)

	ticker := time.NewTicker(e.cfg.Engine.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick starts a cycle unless one is already in flight.
func (e *Engine) tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.RecordSkippedTick()
		e.logger.Warn("cycle still in flight, tick skipped")
		return
	}
	defer e.inFlight.Store(false)
	e.runCycle(ctx)
}

// runCycle fetches the shared snapshots and fans out to the agents.
func (e *Engine) runCycle(ctx context.Context) {
	start := e.now()

	markets := e.source.FetchAllMarkets(ctx)
	articles := e.news.FetchLatestNews(ctx)

	byID := make(map[string]types.Market, len(markets))
	probs := make(map[string]float64, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
		probs[m.ID] = m.Probability
	}

	e.mu.Lock()
	for _, m := range markets {
		e.categories[m.ID] = m.Category
	}
	cycle := e.cycleIndex
	e.cycleIndex++
	e.mu.Unlock()

	snap := cycleSnapshot{
		cycle:    cycle,
		markets:  markets,
		articles: articles,
		byID:     byID,
		probs:    probs,
	}

	enabled := e.enabledProfiles()
	records := make([]obs.AgentCycleRecord, len(enabled))

	g, gctx := errgroup.WithContext(ctx)
	for i, profile := range enabled {
		g.Go(func() error {
			records[i] = e.runAgentCycle(gctx, profile, snap)
			return nil // agent failures live in the record, never here
		})
	}
	g.Wait()

	e.decisions.Sweep()
	rec := obs.CycleRecord{
		StartedAt:  start,
		DurationMs: e.now().Sub(start).Milliseconds(),
		Markets:    len(markets),
		News:       len(articles),
		Agents:     records,
	}
	e.metrics.RecordCycle(rec)
	if e.onCycle != nil {
		e.onCycle(rec)
	}
}

func (e *Engine) enabledProfiles() []types.AgentProfile {
	var out []types.AgentProfile
	for _, p := range e.profiles {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// SetAdaptive wires the tuner in after construction; the tuner itself needs
// the engine as its portfolio view, so the two are linked in two steps.
func (e *Engine) SetAdaptive(src AdaptiveSource) {
	if src != nil {
		e.adaptive = src
	}
}

// SetCycleHook registers a callback invoked after every completed cycle,
// used to feed the dashboard stream. Must be set before Run.
func (e *Engine) SetCycleHook(fn func(obs.CycleRecord)) {
	e.onCycle = fn
}

// ————————————————————————————————————————————————————————————————————————
// Read side
// ————————————————————————————————————————————————————————————————————————

// PortfolioSnapshot returns a deep copy of the agent's last persisted
// portfolio state. In-flight cycle changes are never visible here.
func (e *Engine) PortfolioSnapshot(agent types.AgentID) *types.AgentPortfolio {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.snapshots[agent]
	if !ok {
		return nil
	}
	return p.Clone()
}

// MarketCategories returns a copy of the engine's market-to-category map.
func (e *Engine) MarketCategories() map[string]types.Category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]types.Category, len(e.categories))
	for k, v := range e.categories {
		out[k] = v
	}
	return out
}

// AgentTrades returns an agent's full trade history, oldest first, through
// the trade cache.
func (e *Engine) AgentTrades(agent types.AgentID) ([]types.Trade, error) {
	e.mu.RLock()
	p, ok := e.snapshots[agent]
	var openIDs []string
	if ok {
		for id := range p.OpenPositions {
			openIDs = append(openIDs, id)
		}
	}
	e.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if cached, hit := e.trades.get(agent, openIDs); hit {
		e.metrics.CacheHit("trades")
		return cached, nil
	}
	e.metrics.CacheMiss("trades")

	trades, err := e.store.LoadTrades(agent, time.Time{})
	if err != nil {
		return nil, err
	}
	e.trades.put(agent, openIDs, trades)
	return trades, nil
}

// Summaries builds the leaderboard for one window.
func (e *Engine) Summaries(window leaderboard.Window) ([]leaderboard.AgentSummary, error) {
	now := e.now()
	since := window.Since(now)
	categories := e.MarketCategories()

	var summaries []leaderboard.AgentSummary
	for _, profile := range e.profiles {
		p := e.PortfolioSnapshot(profile.ID)
		if p == nil {
			continue
		}
		closed, err := e.store.ClosedTradesSince(profile.ID, since)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, leaderboard.Summarize(window, p, closed, categories, now))
	}
	return leaderboard.Rank(summaries), nil
}

// Consensus aggregates current open positions across all agents.
func (e *Engine) Consensus() []types.ConsensusRecord {
	e.mu.RLock()
	portfolios := make([]*types.AgentPortfolio, 0, len(e.snapshots))
	for _, p := range e.snapshots {
		portfolios = append(portfolios, p.Clone())
	}
	trades := make(map[string]types.Trade, len(e.openTrades))
	for k, v := range e.openTrades {
		trades[k] = v
	}
	e.mu.RUnlock()

	questions := make(map[string]string)
	for _, m := range e.source.FetchAllMarkets(context.Background()) {
		questions[m.ID] = m.Question
	}
	return leaderboard.BuildConsensus(portfolios, trades, questions)
}

// Profiles returns a copy of the configured agent roster.
func (e *Engine) Profiles() []types.AgentProfile {
	out := make([]types.AgentProfile, len(e.profiles))
	copy(out, e.profiles)
	return out
}

// persistAgent writes the portfolio after a cycle. A failure here means the
// agent's cycle rolls back and the next tick retries.
func (e *Engine) persistAgent(p *types.AgentPortfolio) error {
	if err := e.store.SavePortfolio(p); err != nil {
		return fmt.Errorf("persist portfolio %s: %w", p.AgentID, err)
	}
	return nil
}

// publishSnapshot installs the agent's post-cycle state as the read-side
// view. Only called after the cycle's writes all reached the store.
func (e *Engine) publishSnapshot(agent types.AgentID, p *types.AgentPortfolio) {
	e.mu.Lock()
	e.snapshots[agent] = p.Clone()
	e.mu.Unlock()
}

// openTradesFor copies the agent's open trade rows, for checkpointing.
func (e *Engine) openTradesFor(agent types.AgentID) map[string]types.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]types.Trade)
	for key, tr := range e.openTrades {
		if tr.AgentID == agent {
			out[key] = tr
		}
	}
	return out
}

// rollbackAgent discards the cycle's in-memory changes so the next cycle
// retries from the last persisted state. The snapshot is left untouched.
func (e *Engine) rollbackAgent(agent types.AgentID, checkpoint *types.AgentPortfolio, savedOpen map[string]types.Trade) {
	e.mu.Lock()
	e.portfolios[agent] = checkpoint
	for key, tr := range e.openTrades {
		if tr.AgentID == agent {
			delete(e.openTrades, key)
		}
	}
	for key, tr := range savedOpen {
		e.openTrades[key] = tr
	}
	e.mu.Unlock()

	e.trades.invalidate(agent)
	e.riskMgr.Restore(checkpoint)
	e.logger.Warn("agent cycle rolled back", "agent", agent)
}
