package strategy

import (
	"prediction-engine/pkg/types"
)

// Exposure caps as fractions of current capital.
const (
	maxSingleMarketPct = 0.20
	maxCategoryPct     = 0.40
	minPositionPct     = 0.01
)

// baseRiskPct maps risk appetite to the fraction of capital staked per trade
// before confidence and personality shaping.
func baseRiskPct(risk types.RiskLevel) float64 {
	switch risk {
	case types.RiskHigh:
		return 0.04
	case types.RiskLow:
		return 0.015
	default:
		return 0.025
	}
}

// maxTotalExposurePct caps total open exposure by risk appetite.
func maxTotalExposurePct(risk types.RiskLevel) float64 {
	switch risk {
	case types.RiskHigh:
		return 0.70
	case types.RiskLow:
		return 0.50
	default:
		return 0.60
	}
}

// PositionSize computes the stake for a prospective entry. The raw size is
// capital × base risk × adaptive multiplier × confidence weight × personality
// multiplier, then trimmed to fit the single-market, category, and total
// exposure caps. Returns false when the trimmed size falls under 1% of
// capital: positions that small are noise.
func PositionSize(
	m types.ScoredMarket,
	decision types.TradeDecision,
	profile types.AgentProfile,
	adaptive *types.AdaptiveConfig,
	portfolio *types.AgentPortfolio,
	sizeMultiplier float64,
) (float64, bool) {
	capital := portfolio.CurrentCapitalUSD
	if capital <= 0 {
		return 0, false
	}

	confWeight := 0.5 + decision.Confidence/2
	size := capital * baseRiskPct(profile.Risk) * adaptive.Multiplier() * confWeight * sizeMultiplier

	if limit := capital * maxSingleMarketPct; size > limit {
		size = limit
	}
	if room := capital*maxCategoryPct - portfolio.CategoryExposureUSD(m.Category); size > room {
		size = room
	}
	if room := capital*maxTotalExposurePct(profile.Risk) - portfolio.OpenExposureUSD(); size > room {
		size = room
	}

	if size < capital*minPositionPct {
		return 0, false
	}
	return size, true
}
