package strategy

import (
	"time"

	"prediction-engine/pkg/types"
)

// OpenPosition records a new position in the portfolio. Capital does not
// move on open; stakes are synthetic and only realized PnL changes capital.
func OpenPosition(p *types.AgentPortfolio, trade types.Trade, category types.Category) {
	p.OpenPositions[trade.MarketID] = types.Position{
		MarketID:         trade.MarketID,
		Side:             trade.Side,
		SizeUSD:          trade.SizeUSD,
		EntryProbability: trade.EntryProbability,
		EntryScore:       trade.EntryScore,
		OpenedAt:         trade.OpenedAt,
		Category:         category,
	}
	p.LastUpdated = trade.OpenedAt
}

// ClosePosition realizes a position's PnL into capital and removes it.
// Returns the realized amount.
func ClosePosition(p *types.AgentPortfolio, marketID string, exitProbability float64, now time.Time) (float64, bool) {
	pos, ok := p.OpenPositions[marketID]
	if !ok {
		return 0, false
	}
	pnl := PnL(pos.Side, pos.EntryProbability, exitProbability, pos.SizeUSD)
	p.CurrentCapitalUSD += pnl
	p.RealizedPnLUSD += pnl
	delete(p.OpenPositions, marketID)
	p.LastUpdated = now
	return pnl, true
}

// MarkToMarket recomputes unrealized PnL from current probabilities and
// advances the equity high-water mark and max drawdown. Markets missing from
// the snapshot keep their entry mark.
func MarkToMarket(p *types.AgentPortfolio, probabilities map[string]float64, now time.Time) {
	var unrealized float64
	for _, pos := range p.OpenPositions {
		current, ok := probabilities[pos.MarketID]
		if !ok {
			continue
		}
		unrealized += PnL(pos.Side, pos.EntryProbability, current, pos.SizeUSD)
	}
	p.UnrealizedPnLUSD = unrealized

	equity := p.Equity()
	if equity > p.MaxEquityUSD {
		p.MaxEquityUSD = equity
	}
	if dd := Drawdown(p); dd > p.MaxDrawdownPct {
		p.MaxDrawdownPct = dd
	}
	p.LastUpdated = now
}

// Drawdown is the fractional fall from the equity high-water mark.
func Drawdown(p *types.AgentPortfolio) float64 {
	if p.MaxEquityUSD <= 0 {
		return 0
	}
	dd := (p.MaxEquityUSD - p.Equity()) / p.MaxEquityUSD
	if dd < 0 {
		return 0
	}
	return dd
}
