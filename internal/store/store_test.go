package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"prediction-engine/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "engine.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openTrade(id string, agent types.AgentID, openedAt time.Time) types.Trade {
	return types.Trade{
		ID:               id,
		AgentID:          agent,
		MarketID:         "m-" + id,
		Side:             types.SideYes,
		SizeUSD:          120,
		EntryProbability: 0.55,
		EntryScore:       42,
		Confidence:       0.7,
		Status:           types.TradeOpen,
		OpenedAt:         openedAt,
		Reasoning:        []string{"high trading volume"},
		Seed:             string(agent) + ":m-" + id + ":0",
	}
}

func TestSaveTradeRoundTrip(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	opened := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	tr := openTrade("t1", types.AgentGrok, opened)
	if err := s.SaveTrade(tr); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	got, err := s.LoadTrades(types.AgentGrok, time.Time{})
	if err != nil {
		t.Fatalf("LoadTrades: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("trades = %d, want 1", len(got))
	}
	g := got[0]
	if g.ID != tr.ID || g.Side != tr.Side || g.Status != types.TradeOpen ||
		g.PnLUSD != nil || !g.OpenedAt.Equal(opened) {
		t.Errorf("round trip mismatch: %+v", g)
	}
	if len(g.Reasoning) != 1 || g.Reasoning[0] != "high trading volume" {
		t.Errorf("reasoning = %v", g.Reasoning)
	}
}

func TestSaveTradeIdempotentAndTerminalClose(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	opened := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	tr := openTrade("t1", types.AgentGrok, opened)
	if err := s.SaveTrade(tr); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveTrade(tr); err != nil {
		t.Fatalf("idempotent resave: %v", err)
	}

	pnl := 40.0
	closedAt := opened.Add(6 * time.Hour)
	tr.Status = types.TradeClosed
	tr.PnLUSD = &pnl
	tr.ClosedAt = &closedAt
	tr.ExitReason = types.ExitTakeProfit
	if err := s.SaveTrade(tr); err != nil {
		t.Fatalf("close save: %v", err)
	}

	// Reopening a closed trade must be rejected.
	reopen := openTrade("t1", types.AgentGrok, opened)
	if err := s.SaveTrade(reopen); err == nil {
		t.Fatal("reopening a CLOSED trade must fail")
	}

	got, _ := s.LoadTrades(types.AgentGrok, time.Time{})
	if len(got) != 1 || got[0].Status != types.TradeClosed || *got[0].PnLUSD != 40 {
		t.Errorf("closed trade not preserved: %+v", got)
	}
}

func TestLoadTradesWindowAndOrder(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveTrade(openTrade(id, types.AgentGPT5, base.AddDate(0, 0, i*10))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := s.LoadTrades(types.AgentGPT5, base.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("LoadTrades: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("windowed trades wrong: %+v", got)
	}

	// Other agents are not visible.
	if other, _ := s.LoadTrades(types.AgentQwen, time.Time{}); len(other) != 0 {
		t.Errorf("cross-agent leak: %+v", other)
	}
}

func TestClosedTradesSince(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	open := openTrade("open", types.AgentClaude, base)
	s.SaveTrade(open)

	closed := openTrade("closed", types.AgentClaude, base)
	pnl := -15.0
	closedAt := base.AddDate(0, 0, 2)
	closed.Status = types.TradeClosed
	closed.PnLUSD = &pnl
	closed.ClosedAt = &closedAt
	closed.ExitReason = types.ExitStopLoss
	s.SaveTrade(closed)

	got, err := s.ClosedTradesSince(types.AgentClaude, base)
	if err != nil {
		t.Fatalf("ClosedTradesSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "closed" {
		t.Errorf("closed window = %+v, want only the closed trade", got)
	}

	openOnly, _ := s.LoadOpenTrades()
	if len(openOnly) != 1 || openOnly[0].ID != "open" {
		t.Errorf("LoadOpenTrades = %+v", openOnly)
	}
}

func TestPortfolioRoundTrip(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	p := types.NewPortfolio(types.AgentGemini)
	p.CurrentCapitalUSD = 3040
	p.RealizedPnLUSD = 40
	p.MaxEquityUSD = 3100
	until := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	p.CooldownUntil = &until
	p.OpenPositions["m1"] = types.Position{
		MarketID: "m1", Side: types.SideNo, SizeUSD: 75,
		EntryProbability: 0.45, Category: types.CategoryTech,
	}

	if err := s.SavePortfolio(p); err != nil {
		t.Fatalf("SavePortfolio: %v", err)
	}

	got, err := s.LoadPortfolio(types.AgentGemini)
	if err != nil {
		t.Fatalf("LoadPortfolio: %v", err)
	}
	if got.CurrentCapitalUSD != 3040 || got.RealizedPnLUSD != 40 {
		t.Errorf("capital round trip: %+v", got)
	}
	if got.CooldownUntil == nil || !got.CooldownUntil.Equal(until) {
		t.Errorf("cooldown round trip: %v", got.CooldownUntil)
	}
	if pos, ok := got.OpenPositions["m1"]; !ok || pos.Side != types.SideNo {
		t.Errorf("positions round trip: %+v", got.OpenPositions)
	}

	if missing, err := s.LoadPortfolio(types.AgentQwen); err != nil || missing != nil {
		t.Errorf("missing portfolio: %v, %v", missing, err)
	}
}

func TestAdaptiveConfigRoundTrip(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	c := types.AdaptiveConfig{
		AgentID:        types.AgentDeepSeek,
		RiskMultiplier: 0.75,
		CategoryBias: map[types.Category]float64{
			types.CategoryCrypto:  1.3,
			types.CategoryScience: 0.7,
		},
		ComputedAt: time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC),
	}
	if err := s.SaveAdaptiveConfig(c); err != nil {
		t.Fatalf("SaveAdaptiveConfig: %v", err)
	}

	got, err := s.LoadAdaptiveConfig(types.AgentDeepSeek)
	if err != nil {
		t.Fatalf("LoadAdaptiveConfig: %v", err)
	}
	if got.RiskMultiplier != 0.75 || got.CategoryBias[types.CategoryCrypto] != 1.3 {
		t.Errorf("adaptive round trip: %+v", got)
	}
	if !got.ComputedAt.Equal(c.ComputedAt) {
		t.Errorf("computed_at = %v", got.ComputedAt)
	}

	if missing, err := s.LoadAdaptiveConfig(types.AgentQwen); err != nil || missing != nil {
		t.Errorf("missing config: %v, %v", missing, err)
	}
}
