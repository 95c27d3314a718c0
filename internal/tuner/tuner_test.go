package tuner

import (
	"math"
	"testing"
	"time"

	"prediction-engine/pkg/types"
)

// closedSeq builds a chronological closed-trade path; each trade closes one
// minute after the previous.
func closedSeq(pnls map[string]float64, order []string) []types.Trade {
	base := time.Now().Add(-time.Hour)
	out := make([]types.Trade, 0, len(order))
	for i, marketID := range order {
		pnl := pnls[marketID]
		at := base.Add(time.Duration(i) * time.Minute)
		out = append(out, types.Trade{
			MarketID: marketID,
			Status:   types.TradeClosed,
			PnLUSD:   &pnl,
			OpenedAt: at.Add(-2 * time.Hour),
			ClosedAt: &at,
		})
	}
	return out
}

func closed(marketID string, pnl float64) types.Trade {
	return closedSeq(map[string]float64{marketID: pnl}, []string{marketID})[0]
}

func TestWindowDrawdownFollowsPath(t *testing.T) {
	t.Parallel()

	// Equity runs 3000 -> 5000 -> 3100: dip of 1900 off a 5000 peak.
	trades := closedSeq(map[string]float64{"up": 2000, "down": -1900}, []string{"up", "down"})
	if dd := windowDrawdown(trades); math.Abs(dd-0.38) > 1e-9 {
		t.Errorf("drawdown = %v, want 0.38", dd)
	}

	if dd := windowDrawdown(nil); dd != 0 {
		t.Errorf("empty window drawdown = %v, want 0", dd)
	}

	// A monotone gain never dips.
	gains := closedSeq(map[string]float64{"a": 100, "b": 200}, []string{"a", "b"})
	if dd := windowDrawdown(gains); dd != 0 {
		t.Errorf("gain-only drawdown = %v, want 0", dd)
	}
}

func TestRetuneCutsAfterLosses(t *testing.T) {
	t.Parallel()
	now := time.Now()

	// -10% of 3000 is -300; one trade at -301 crosses the cut threshold.
	cfg := Retune(nil, types.AgentGrok, []types.Trade{closed("m1", -301)}, nil, now)
	if math.Abs(cfg.RiskMultiplier-0.75) > 1e-9 {
		t.Errorf("multiplier = %v, want 0.75 after heavy losses", cfg.RiskMultiplier)
	}

	// A deep dip within the window cuts even when the window nets positive:
	// +2000 then -1900 is a 38% dip off the 5000 peak with pnl +100.
	dip := closedSeq(map[string]float64{"up": 2000, "down": -1900}, []string{"up", "down"})
	cfg = Retune(nil, types.AgentGrok, dip, nil, now)
	if math.Abs(cfg.RiskMultiplier-0.75) > 1e-9 {
		t.Errorf("multiplier = %v, want 0.75 on 38%% windowed drawdown", cfg.RiskMultiplier)
	}
}

func TestRetuneIgnoresDrawdownOutsideWindow(t *testing.T) {
	t.Parallel()
	now := time.Now()

	// An agent that crashed months ago but has an empty 30-day window must
	// hold its multiplier; only trades inside the window count.
	cfg := types.AdaptiveConfig{AgentID: types.AgentGrok, RiskMultiplier: 1.0}
	for i := 0; i < 6; i++ {
		cfg = Retune(&cfg, types.AgentGrok, nil, nil, now)
	}
	if math.Abs(cfg.RiskMultiplier-1.0) > 1e-9 {
		t.Errorf("multiplier = %v after 6 empty-window runs, want 1.0", cfg.RiskMultiplier)
	}
}

func TestRetuneGrowsAfterGains(t *testing.T) {
	t.Parallel()
	now := time.Now()

	// +25% of 3000 is +750; a clean +800 with no dip grows.
	cfg := Retune(nil, types.AgentGrok, []types.Trade{closed("m1", 800)}, nil, now)
	if math.Abs(cfg.RiskMultiplier-1.10) > 1e-9 {
		t.Errorf("multiplier = %v, want 1.10 after strong gains", cfg.RiskMultiplier)
	}

	// Strong gains reached through a 28% dip do not grow:
	// 3000 -> 5000 -> 3600 -> 3800.
	rocky := closedSeq(
		map[string]float64{"up": 2000, "down": -1400, "rec": 200},
		[]string{"up", "down", "rec"},
	)
	cfg = Retune(nil, types.AgentGrok, rocky, nil, now)
	if math.Abs(cfg.RiskMultiplier-1.0) > 1e-9 {
		t.Errorf("multiplier = %v, want unchanged 1.0", cfg.RiskMultiplier)
	}
}

func TestRetuneCompoundsAndClamps(t *testing.T) {
	t.Parallel()
	now := time.Now()

	prev := &types.AdaptiveConfig{AgentID: types.AgentGrok, RiskMultiplier: 0.6}
	cfg := Retune(prev, types.AgentGrok, []types.Trade{closed("m1", -400)}, nil, now)
	if math.Abs(cfg.RiskMultiplier-0.5) > 1e-9 {
		t.Errorf("multiplier = %v, want clamp at 0.5 (0.6*0.75=0.45)", cfg.RiskMultiplier)
	}

	prev = &types.AdaptiveConfig{AgentID: types.AgentGrok, RiskMultiplier: 1.45}
	cfg = Retune(prev, types.AgentGrok, []types.Trade{closed("m1", 800)}, nil, now)
	if math.Abs(cfg.RiskMultiplier-1.5) > 1e-9 {
		t.Errorf("multiplier = %v, want clamp at 1.5", cfg.RiskMultiplier)
	}
}

func TestRetuneCategoryBias(t *testing.T) {
	t.Parallel()
	now := time.Now()
	categories := map[string]types.Category{
		"crypto1": types.CategoryCrypto,
		"crypto2": types.CategoryCrypto,
		"pol1":    types.CategoryPolitics,
	}
	trades := closedSeq(
		map[string]float64{
			"crypto1": 60,
			"crypto2": 40,   // crypto avg +50 -> bias 1 + (50/50)*0.3 = 1.3
			"pol1":    -100, // avg -100 -> 1 - 0.6 clamps to 0.7
			"unknown": 10,   // avg +10 under Other -> 1.06
		},
		[]string{"crypto1", "crypto2", "pol1", "unknown"},
	)

	cfg := Retune(nil, types.AgentGrok, trades, categories, now)
	if math.Abs(cfg.CategoryBias[types.CategoryCrypto]-1.3) > 1e-9 {
		t.Errorf("crypto bias = %v, want 1.3", cfg.CategoryBias[types.CategoryCrypto])
	}
	if math.Abs(cfg.CategoryBias[types.CategoryPolitics]-0.7) > 1e-9 {
		t.Errorf("politics bias = %v, want clamp 0.7", cfg.CategoryBias[types.CategoryPolitics])
	}
	if math.Abs(cfg.CategoryBias[types.CategoryOther]-1.06) > 1e-9 {
		t.Errorf("other bias = %v, want 1.06", cfg.CategoryBias[types.CategoryOther])
	}
}

func TestRetuneFlatHistoryIsNeutral(t *testing.T) {
	t.Parallel()
	cfg := Retune(nil, types.AgentQwen, nil, nil, time.Now())
	if cfg.RiskMultiplier != 1.0 {
		t.Errorf("multiplier = %v, want 1.0", cfg.RiskMultiplier)
	}
	if len(cfg.CategoryBias) != 0 {
		t.Errorf("bias = %v, want empty", cfg.CategoryBias)
	}
	if cfg.Multiplier() != 1.0 || cfg.BiasFor(types.CategoryCrypto) != 1.0 {
		t.Error("neutral config must act as identity")
	}
}
