package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"prediction-engine/internal/config"
	"prediction-engine/internal/llm"
	"prediction-engine/internal/news"
	"prediction-engine/internal/obs"
	"prediction-engine/internal/risk"
	"prediction-engine/internal/store"
	"prediction-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves a fixed market snapshot, optionally blocking to simulate
// a slow upstream.
type fakeSource struct {
	mu      sync.Mutex
	markets []types.Market
	block   chan struct{}
}

func (f *fakeSource) FetchAllMarkets(ctx context.Context) []types.Market {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Market, len(f.markets))
	copy(out, f.markets)
	return out
}

func (f *fakeSource) setMarkets(markets []types.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = markets
}

// panicClient simulates a broken model integration for one agent.
type panicClient struct{ agent types.AgentID }

func (c *panicClient) AgentID() types.AgentID { return c.agent }

func (c *panicClient) Decide(context.Context, llm.DecisionRequest) (types.TradeDecision, error) {
	panic("model integration broken")
}

func testConfig(t *testing.T, enabled ...types.AgentID) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Mode: config.ModeSimulation,
		Engine: config.EngineConfig{
			Interval:         time.Minute,
			MarketCacheTTL:   time.Minute,
			NewsCacheTTL:     5 * time.Minute,
			DecisionCacheTTL: 5 * time.Minute,
			TradeCacheTTL:    30 * time.Second,
			FlipConfidence:   0.60,
			PositionTimeout:  72 * time.Hour,
			CooldownDuration: 24 * time.Hour,
		},
		Agents: make(map[string]config.AgentOverride),
	}

	on := make(map[types.AgentID]bool, len(enabled))
	for _, a := range enabled {
		on[a] = true
	}
	for _, a := range types.AllAgents() {
		flag := on[a]
		cfg.Agents[string(a)] = config.AgentOverride{Enabled: &flag}
	}
	return cfg
}

func testEngine(t *testing.T, cfg *config.Config, src *fakeSource, clients map[types.AgentID]llm.Client) *Engine {
	t.Helper()
	metrics := obs.NewMetrics(testLogger())
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"), testLogger())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(cfg, Deps{
		Source:  src,
		News:    news.NewAggregator(config.NewsConfig{Timeout: time.Second}, cfg.Engine.NewsCacheTTL, metrics, testLogger()),
		Clients: clients,
		Risk:    risk.NewManager(cfg.Engine.CooldownDuration, metrics, testLogger()),
		Store:   st,
		Metrics: metrics,
		Logger:  testLogger(),
	})
}

func cryptoMarket(id string, prob float64) types.Market {
	return types.Market{
		ID:           id,
		Question:     "Will Bitcoin reach $100k?",
		Category:     types.CategoryCrypto,
		VolumeUSD:    400_000,
		LiquidityUSD: 120_000,
		Probability:  prob,
		Status:       types.MarketActive,
	}
}

func TestColdStartOpensTrade(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok)
	src := &fakeSource{markets: []types.Market{cryptoMarket("m1", 0.55)}}
	e := testEngine(t, cfg, src, nil)

	e.runCycle(context.Background())

	p := e.PortfolioSnapshot(types.AgentGrok)
	if len(p.OpenPositions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(p.OpenPositions))
	}
	pos := p.OpenPositions["m1"]
	if pos.SizeUSD <= 0 || pos.SizeUSD > 600 {
		t.Errorf("size = %v, must be positive and under the 20%% cap of 600", pos.SizeUSD)
	}
	if p.CurrentCapitalUSD != types.StartingCapitalUSD {
		t.Errorf("capital must not move on open, got %v", p.CurrentCapitalUSD)
	}

	trades, err := e.AgentTrades(types.AgentGrok)
	if err != nil {
		t.Fatalf("AgentTrades: %v", err)
	}
	if len(trades) != 1 || trades[0].Status != types.TradeOpen || trades[0].Seed == "" {
		t.Errorf("persisted trade = %+v", trades)
	}
}

func TestTakeProfitRealizesGain(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok)
	src := &fakeSource{markets: []types.Market{cryptoMarket("m1", 0.55)}}
	e := testEngine(t, cfg, src, nil)

	e.runCycle(context.Background())
	p := e.PortfolioSnapshot(types.AgentGrok)
	if len(p.OpenPositions) != 1 {
		t.Fatalf("setup: no position opened")
	}
	side := p.OpenPositions["m1"].Side

	// Drive the market through the matching exit threshold.
	if side == types.SideYes {
		src.setMarkets([]types.Market{cryptoMarket("m1", 0.90)})
	} else {
		src.setMarkets([]types.Market{cryptoMarket("m1", 0.10)})
	}
	e.runCycle(context.Background())

	p = e.PortfolioSnapshot(types.AgentGrok)
	trades, _ := e.AgentTrades(types.AgentGrok)
	var closed *types.Trade
	for i := range trades {
		if trades[i].Status == types.TradeClosed {
			closed = &trades[i]
		}
	}
	if closed == nil || closed.ExitReason != types.ExitTakeProfit {
		t.Fatalf("expected a take-profit close, trades = %+v", trades)
	}
	if closed.PnLUSD == nil || *closed.PnLUSD <= 0 {
		t.Errorf("take profit pnl = %v, want positive", closed.PnLUSD)
	}
	if p.CurrentCapitalUSD <= types.StartingCapitalUSD {
		t.Errorf("capital = %v, want above starting after take profit", p.CurrentCapitalUSD)
	}
}

func TestAgentFailureIsolated(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok, types.AgentDeepSeek)
	src := &fakeSource{markets: []types.Market{cryptoMarket("m1", 0.55)}}
	clients := map[types.AgentID]llm.Client{
		types.AgentGrok: &panicClient{agent: types.AgentGrok},
	}
	e := testEngine(t, cfg, src, clients)

	e.runCycle(context.Background())

	rec := e.metrics.LastCycle()
	if rec == nil || len(rec.Agents) != 2 {
		t.Fatalf("cycle record = %+v", rec)
	}

	var grok, deepseek *obs.AgentCycleRecord
	for i := range rec.Agents {
		switch rec.Agents[i].AgentID {
		case types.AgentGrok:
			grok = &rec.Agents[i]
		case types.AgentDeepSeek:
			deepseek = &rec.Agents[i]
		}
	}
	if grok == nil || grok.Error == "" {
		t.Errorf("broken agent must carry its error: %+v", grok)
	}
	if deepseek == nil || deepseek.Error != "" {
		t.Errorf("healthy agent must be untouched: %+v", deepseek)
	}
	if p := e.PortfolioSnapshot(types.AgentDeepSeek); len(p.OpenPositions) != 1 {
		t.Errorf("healthy agent should have traded, positions = %d", len(p.OpenPositions))
	}
}

func TestTickSkipsWhileCycleInFlight(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok)
	src := &fakeSource{block: make(chan struct{})}
	e := testEngine(t, cfg, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.tick(ctx)
		close(done)
	}()

	// Wait for the first tick to claim the in-flight slot.
	for !e.inFlight.Load() {
		time.Sleep(time.Millisecond)
	}

	e.tick(ctx)
	e.tick(ctx)
	if got := e.metrics.TicksSkipped(); got != 2 {
		t.Errorf("skipped ticks = %d, want 2", got)
	}

	close(src.block)
	<-done

	e.tick(ctx)
	if got := e.metrics.CyclesRun(); got != 2 {
		t.Errorf("cycles run = %d, want 2", got)
	}
}

func TestRestoreRebuildsState(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok)
	src := &fakeSource{markets: []types.Market{cryptoMarket("m1", 0.55)}}

	metrics := obs.NewMetrics(testLogger())
	dbPath := filepath.Join(t.TempDir(), "engine.db")
	st, err := store.Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	deps := Deps{
		Source:  src,
		News:    news.NewAggregator(config.NewsConfig{Timeout: time.Second}, time.Minute, metrics, testLogger()),
		Risk:    risk.NewManager(24*time.Hour, metrics, testLogger()),
		Store:   st,
		Metrics: metrics,
		Logger:  testLogger(),
	}

	first := New(cfg, deps)
	first.runCycle(context.Background())
	wantEquity := first.PortfolioSnapshot(types.AgentGrok).Equity()
	st.Close()

	st2, err := store.Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st2.Close()
	deps.Store = st2

	second := New(cfg, deps)
	if err := second.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	p := second.PortfolioSnapshot(types.AgentGrok)
	if len(p.OpenPositions) != 1 {
		t.Fatalf("restored positions = %d, want 1", len(p.OpenPositions))
	}
	if p.Equity() != wantEquity {
		t.Errorf("restored equity = %v, want %v", p.Equity(), wantEquity)
	}

	second.mu.RLock()
	n := len(second.openTrades)
	second.mu.RUnlock()
	if n != 1 {
		t.Errorf("restored open trades = %d, want 1", n)
	}
}

func TestReadSideIsolatedFromCycles(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok, types.AgentDeepSeek)
	src := &fakeSource{markets: []types.Market{
		cryptoMarket("m1", 0.55),
		cryptoMarket("m2", 0.48),
	}}
	e := testEngine(t, cfg, src, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			e.runCycle(context.Background())
		}
	}()

	// Hammer the read side while cycles run. Every snapshot must be an
	// internally consistent persisted state, never a half-updated portfolio.
	for {
		select {
		case <-done:
			return
		default:
		}
		for _, agent := range []types.AgentID{types.AgentGrok, types.AgentDeepSeek} {
			p := e.PortfolioSnapshot(agent)
			if p == nil {
				t.Fatalf("snapshot missing for %s", agent)
			}
			want := types.StartingCapitalUSD + p.RealizedPnLUSD
			if math.Abs(p.CurrentCapitalUSD-want) > 1e-6 {
				t.Fatalf("inconsistent snapshot for %s: capital %v, realized %v", agent, p.CurrentCapitalUSD, p.RealizedPnLUSD)
			}
		}
		e.Consensus()
		e.MarketCategories()
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, types.AgentGrok)
	src := &fakeSource{markets: []types.Market{cryptoMarket("m1", 0.55)}}

	metrics := obs.NewMetrics(testLogger())
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"), testLogger())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	e := New(cfg, Deps{
		Source:  src,
		News:    news.NewAggregator(config.NewsConfig{Timeout: time.Second}, time.Minute, metrics, testLogger()),
		Risk:    risk.NewManager(24*time.Hour, metrics, testLogger()),
		Store:   st,
		Metrics: metrics,
		Logger:  testLogger(),
	})

	// Kill the store so every trade write fails mid-cycle.
	st.Close()
	e.runCycle(context.Background())

	rec := e.metrics.LastCycle()
	if rec == nil || len(rec.Agents) != 1 || rec.Agents[0].Error == "" {
		t.Fatalf("failed persistence must surface in the record: %+v", rec)
	}
	if rec.Agents[0].NewTrades != 0 || rec.Agents[0].ClosedTrades != 0 {
		t.Errorf("rolled-back cycle must report no trades: %+v", rec.Agents[0])
	}

	// In-memory state did not advance: the next cycle retries from scratch.
	p := e.PortfolioSnapshot(types.AgentGrok)
	if len(p.OpenPositions) != 0 {
		t.Errorf("positions = %d, want 0 after rollback", len(p.OpenPositions))
	}
	if p.CurrentCapitalUSD != types.StartingCapitalUSD {
		t.Errorf("capital = %v, want untouched %v", p.CurrentCapitalUSD, types.StartingCapitalUSD)
	}
	e.mu.RLock()
	open := len(e.openTrades)
	live := e.portfolios[types.AgentGrok]
	e.mu.RUnlock()
	if open != 0 {
		t.Errorf("open trades = %d, want 0 after rollback", open)
	}
	if len(live.OpenPositions) != 0 || live.CurrentCapitalUSD != types.StartingCapitalUSD {
		t.Errorf("live portfolio advanced despite persist failure: %+v", live)
	}
}

func TestTradeCacheSemantics(t *testing.T) {
	t.Parallel()
	c := newTradeCache(30 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	trades := []types.Trade{{ID: "t1", MarketID: "m1"}}
	c.put(types.AgentGrok, []string{"m2", "m1"}, trades)

	// Order of the requested ids must not matter.
	if got, ok := c.get(types.AgentGrok, []string{"m1", "m2"}); !ok || len(got) != 1 {
		t.Fatal("sorted market-id equality must hit")
	}
	// A different market set misses.
	if _, ok := c.get(types.AgentGrok, []string{"m1"}); ok {
		t.Error("changed market set must miss")
	}
	// Expiry.
	base = base.Add(31 * time.Second)
	if _, ok := c.get(types.AgentGrok, []string{"m1", "m2"}); ok {
		t.Error("expired entry must miss")
	}

	// A young empty set is distrusted, an old one is honored.
	base = time.Now()
	c.put(types.AgentGPT5, nil, []types.Trade{})
	if _, ok := c.get(types.AgentGPT5, nil); ok {
		t.Error("empty set younger than the grace window must miss")
	}
	base = base.Add(11 * time.Second)
	if _, ok := c.get(types.AgentGPT5, nil); !ok {
		t.Error("empty set past the grace window must hit")
	}
}
