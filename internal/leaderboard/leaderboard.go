// Package leaderboard aggregates closed trades into per-agent performance
// summaries and cross-agent consensus records.
//
// Summaries are computed over time windows (all-time, 30d, 7d, 24h) from the
// trade history; consensus reads only currently open positions.
package leaderboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"prediction-engine/pkg/types"
)

// Window selects the closed-trade range a summary covers.
type Window string

const (
	WindowAll Window = "all"
	Window30d Window = "30d"
	Window7d  Window = "7d"
	Window24h Window = "24h"
)

// AllWindows returns the supported windows in display order.
func AllWindows() []Window {
	return []Window{WindowAll, Window30d, Window7d, Window24h}
}

// Since converts a window to its cutoff instant. The all-time window maps to
// the zero time.
func (w Window) Since(now time.Time) time.Time {
	switch w {
	case Window30d:
		return now.AddDate(0, 0, -30)
	case Window7d:
		return now.AddDate(0, 0, -7)
	case Window24h:
		return now.Add(-24 * time.Hour)
	default:
		return time.Time{}
	}
}

// AgentSummary is one leaderboard row.
type AgentSummary struct {
	AgentID           types.AgentID `json:"agent_id"`
	FrontendID        string        `json:"frontend_id"`
	Window            Window        `json:"window"`
	EquityUSD         float64       `json:"equity_usd"`
	RealizedPnLUSD    float64       `json:"realized_pnl_usd"`
	PnLPct            float64       `json:"pnl_pct"`
	WinRate           float64       `json:"win_rate"`
	TradesCount       int           `json:"trades_count"`
	OpenPositions     int           `json:"open_positions"`
	BestCategory      string        `json:"best_category,omitempty"`
	WorstCategory     string        `json:"worst_category,omitempty"`
	AvgHoldingMinutes float64       `json:"avg_holding_minutes"`
	MaxDrawdownPct    float64       `json:"max_drawdown_pct"`
	InCooldown        bool          `json:"in_cooldown"`
}

// Summarize builds one agent's leaderboard row from its closed trades in the
// window plus the live portfolio. The trades slice must already be filtered
// to the window; categories maps market ids to their category.
func Summarize(
	window Window,
	portfolio *types.AgentPortfolio,
	closed []types.Trade,
	categories map[string]types.Category,
	now time.Time,
) AgentSummary {
	s := AgentSummary{
		AgentID:        portfolio.AgentID,
		FrontendID:     portfolio.AgentID.FrontendID(),
		Window:         window,
		EquityUSD:      portfolio.Equity(),
		OpenPositions:  len(portfolio.OpenPositions),
		MaxDrawdownPct: portfolio.MaxDrawdownPct,
		InCooldown:     portfolio.CooldownUntil != nil && portfolio.CooldownUntil.After(now),
	}

	var (
		wins          int
		holdingTotal  time.Duration
		categoryPnL   = make(map[types.Category]float64)
		categoryTrade = make(map[types.Category]int)
	)
	for _, t := range closed {
		if t.PnLUSD == nil || t.ClosedAt == nil {
			continue
		}
		s.TradesCount++
		s.RealizedPnLUSD += *t.PnLUSD
		if *t.PnLUSD > 0 {
			wins++
		}
		holdingTotal += t.ClosedAt.Sub(t.OpenedAt)

		cat, ok := categories[t.MarketID]
		if !ok {
			cat = types.CategoryOther
		}
		categoryPnL[cat] += *t.PnLUSD
		categoryTrade[cat]++
	}

	if s.TradesCount > 0 {
		s.WinRate = float64(wins) / float64(s.TradesCount)
		s.AvgHoldingMinutes = holdingTotal.Minutes() / float64(s.TradesCount)
	}
	s.PnLPct = s.RealizedPnLUSD / types.StartingCapitalUSD * 100

	s.BestCategory, s.WorstCategory = extremeCategories(categoryPnL)
	return s
}

// extremeCategories picks the best- and worst-performing categories by PnL.
// Ties break alphabetically so output is stable.
func extremeCategories(pnl map[types.Category]float64) (best, worst string) {
	if len(pnl) == 0 {
		return "", ""
	}
	cats := make([]types.Category, 0, len(pnl))
	for c := range pnl {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	bestCat, worstCat := cats[0], cats[0]
	for _, c := range cats[1:] {
		if pnl[c] > pnl[bestCat] {
			bestCat = c
		}
		if pnl[c] < pnl[worstCat] {
			worstCat = c
		}
	}
	return string(bestCat), string(worstCat)
}

// Describe renders one agent's standing as a sentence for the summary API.
func Describe(name string, s AgentSummary) string {
	if name == "" {
		name = string(s.AgentID)
	}
	direction := "up"
	if s.RealizedPnLUSD < 0 {
		direction = "down"
	}
	line := fmt.Sprintf("%s is %s $%.2f (%+.1f%%) with a %.0f%% win rate over %d closed trades and %d open positions",
		name, direction, math.Abs(s.RealizedPnLUSD), s.PnLPct, s.WinRate*100, s.TradesCount, s.OpenPositions)
	if s.InCooldown {
		line += ", cooling down after a drawdown stop"
	}
	return line + "."
}

// Rank sorts summaries by realized PnL descending, ties by win rate then id.
func Rank(summaries []AgentSummary) []AgentSummary {
	out := make([]AgentSummary, len(summaries))
	copy(out, summaries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RealizedPnLUSD != out[j].RealizedPnLUSD {
			return out[i].RealizedPnLUSD > out[j].RealizedPnLUSD
		}
		if out[i].WinRate != out[j].WinRate {
			return out[i].WinRate > out[j].WinRate
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}
