// Package tuner is the slow feedback loop: once a day it reads each agent's
// last 30 days of closed trades and adjusts a risk multiplier and per-category
// score bias. The engine reads the current config through an atomic snapshot;
// a tuning run never blocks a trading cycle.
package tuner

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"prediction-engine/internal/determinism"
	"prediction-engine/internal/store"
	"prediction-engine/pkg/types"
)

const (
	lookback = 30 * 24 * time.Hour

	riskMultiplierMin = 0.5
	riskMultiplierMax = 1.5
	categoryBiasMin   = 0.7
	categoryBiasMax   = 1.3

	// Loss and drawdown thresholds driving the multiplier.
	cutDrawdown     = 0.35
	cutPnLPct       = -0.10
	growPnLPct      = 0.25
	growMaxDrawdown = 0.25
)

// MarketView is what the tuner needs from the engine: the market-to-category
// mapping used to attribute closed trades.
type MarketView interface {
	MarketCategories() map[string]types.Category
}

// Tuner owns the adaptive configs and the daily schedule.
type Tuner struct {
	store    *store.Store
	markets  MarketView
	profiles []types.AgentProfile
	schedule *cron.Cron
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	configs map[types.AgentID]types.AdaptiveConfig
}

func New(st *store.Store, markets MarketView, profiles []types.AgentProfile, logger *slog.Logger) *Tuner {
	return &Tuner{
		store:    st,
		markets:  markets,
		profiles: profiles,
		schedule: cron.New(),
		logger:   logger.With("component", "tuner"),
		now:      time.Now,
		configs:  make(map[types.AgentID]types.AdaptiveConfig),
	}
}

// Restore loads persisted adaptive configs so a restart does not reset the
// feedback loop.
func (t *Tuner) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.profiles {
		cfg, err := t.store.LoadAdaptiveConfig(p.ID)
		if err != nil {
			t.logger.Warn("adaptive config restore failed", "agent", p.ID, "error", err)
			continue
		}
		if cfg != nil {
			t.configs[p.ID] = *cfg
		}
	}
}

// Start schedules the daily tuning run. The first run happens on schedule,
// not at startup; fresh processes inherit persisted configs via Restore.
func (t *Tuner) Start(ctx context.Context) error {
	_, err := t.schedule.AddFunc("@daily", func() { t.RunOnce(ctx) })
	if err != nil {
		return err
	}
	t.schedule.Start()
	return nil
}

// Stop halts the schedule and waits for an in-flight run.
func (t *Tuner) Stop() {
	<-t.schedule.Stop().Done()
}

// Current returns the agent's adaptive config, or nil when the tuner has
// never produced one (all defaults apply).
func (t *Tuner) Current(agent types.AgentID) *types.AdaptiveConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cfg, ok := t.configs[agent]
	if !ok {
		return nil
	}
	return &cfg
}

// RunOnce tunes every enabled agent and persists the results.
func (t *Tuner) RunOnce(ctx context.Context) {
	now := t.now()
	categories := t.markets.MarketCategories()

	for _, profile := range t.profiles {
		if !profile.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		closed, err := t.store.ClosedTradesSince(profile.ID, now.Add(-lookback))
		if err != nil {
			t.logger.Warn("tuning skipped", "agent", profile.ID, "error", err)
			continue
		}

		next := Retune(t.Current(profile.ID), profile.ID, closed, categories, now)

		t.mu.Lock()
		t.configs[profile.ID] = next
		t.mu.Unlock()

		if err := t.store.SaveAdaptiveConfig(next); err != nil {
			t.logger.Warn("adaptive config save failed", "agent", profile.ID, "error", err)
		}
		t.logger.Info("agent retuned",
			"agent", profile.ID,
			"risk_multiplier", next.RiskMultiplier,
			"closed_trades", len(closed))
	}
}

// Retune computes the next adaptive config from the previous one and the
// 30-day closed-trade window. Drawdown is the worst post-peak dip of the
// window's realized-PnL path, not the portfolio's lifetime figure: an old
// crash must not keep cutting the multiplier forever. Pure function; the
// schedule is just plumbing.
func Retune(
	prev *types.AdaptiveConfig,
	agent types.AgentID,
	closed []types.Trade,
	categories map[string]types.Category,
	now time.Time,
) types.AdaptiveConfig {
	mult := 1.0
	if prev != nil {
		mult = prev.Multiplier()
	}
	drawdown := windowDrawdown(closed)

	var pnl float64
	categoryPnL := make(map[types.Category]float64)
	categoryCount := make(map[types.Category]int)
	for _, tr := range closed {
		if tr.PnLUSD == nil {
			continue
		}
		pnl += *tr.PnLUSD
		cat, ok := categories[tr.MarketID]
		if !ok {
			cat = types.CategoryOther
		}
		categoryPnL[cat] += *tr.PnLUSD
		categoryCount[cat]++
	}
	pnlPct := pnl / types.StartingCapitalUSD

	switch {
	case drawdown > cutDrawdown || pnlPct < cutPnLPct:
		mult *= 0.75
	case pnlPct > growPnLPct && drawdown < growMaxDrawdown:
		mult *= 1.10
	}
	mult = determinism.Clamp(mult, riskMultiplierMin, riskMultiplierMax)

	bias := make(map[types.Category]float64, len(categoryPnL))
	for cat, total := range categoryPnL {
		avgPerTrade := total / float64(categoryCount[cat])
		bias[cat] = determinism.Clamp(1+(avgPerTrade/50)*0.3, categoryBiasMin, categoryBiasMax)
	}

	return types.AdaptiveConfig{
		AgentID:        agent,
		RiskMultiplier: mult,
		CategoryBias:   bias,
		ComputedAt:     now,
	}
}

// windowDrawdown walks the window's realized-PnL path in close order and
// returns the worst dip below the running peak as a fraction of that peak.
func windowDrawdown(closed []types.Trade) float64 {
	path := make([]types.Trade, 0, len(closed))
	for _, tr := range closed {
		if tr.PnLUSD != nil && tr.ClosedAt != nil {
			path = append(path, tr)
		}
	}
	sort.SliceStable(path, func(i, j int) bool {
		return path[i].ClosedAt.Before(*path[j].ClosedAt)
	})

	equity := types.StartingCapitalUSD
	peak := equity
	worst := 0.0
	for _, tr := range path {
		equity += *tr.PnLUSD
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
