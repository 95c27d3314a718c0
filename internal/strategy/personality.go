package strategy

import (
	"time"

	"prediction-engine/internal/determinism"
	"prediction-engine/pkg/types"
)

// Personality rule thresholds.
const (
	momentumProbBand  = 0.10 // |p - 0.5| within this counts as contested
	momentumMinMove   = 0.05
	crowdedThreshold  = 0.80
	crowdedNewsScore  = 15.0
	nearTermHorizon   = 7 * 24 * time.Hour
	sizeMultiplierMin = 0.5
	sizeMultiplierMax = 1.5

	momentumBoost    = 1.20
	crowdedReduction = 0.80
	nearTermBoost    = 1.15

	momentumConfDelta = 0.05
	crowdedConfDelta  = -0.05
	nearTermConfDelta = 0.03
)

// PersonalityEffect is the combined output of the rules that fired for one
// prospective entry. Rules are pure functions of the market context; they
// compound multiplicatively on size and additively on confidence, and each
// one leaves a note for the trade's reasoning.
type PersonalityEffect struct {
	ConfidenceDelta float64
	SizeMultiplier  float64
	Notes           []string
}

// Personality evaluates the rules against one scored market.
//
// Three rules today:
//  1. contested Crypto/Tech markets with real 24h momentum get a confidence
//     and size boost;
//  2. one-sided Politics markets under heavy news coverage get reduced on
//     both axes (the crowd has already moved);
//  3. Sports markets resolving within a week get a moderate boost.
func Personality(m types.ScoredMarket, now time.Time) PersonalityEffect {
	eff := PersonalityEffect{SizeMultiplier: 1.0}

	move := m.PriceChange24h
	if move < 0 {
		move = -move
	}
	dist := m.Probability - 0.5
	if dist < 0 {
		dist = -dist
	}

	if (m.Category == types.CategoryCrypto || m.Category == types.CategoryTech) &&
		dist <= momentumProbBand && move >= momentumMinMove {
		eff.ConfidenceDelta += momentumConfDelta
		eff.SizeMultiplier *= momentumBoost
		eff.Notes = append(eff.Notes, "personality: momentum in a contested market")
	}

	if m.Category == types.CategoryPolitics &&
		(m.Probability >= crowdedThreshold || m.Probability <= 1-crowdedThreshold) &&
		m.Components.News >= crowdedNewsScore {
		eff.ConfidenceDelta += crowdedConfDelta
		eff.SizeMultiplier *= crowdedReduction
		eff.Notes = append(eff.Notes, "personality: crowded one-sided market, trimming")
	}

	if m.Category == types.CategorySports &&
		!m.EndDate.IsZero() && m.EndDate.Sub(now) <= nearTermHorizon {
		eff.ConfidenceDelta += nearTermConfDelta
		eff.SizeMultiplier *= nearTermBoost
		eff.Notes = append(eff.Notes, "personality: near-term resolution")
	}

	eff.SizeMultiplier = determinism.Clamp(eff.SizeMultiplier, sizeMultiplierMin, sizeMultiplierMax)
	return eff
}

// Shape applies the effect to a decision and returns the shaped copy. The
// input is never mutated: cached decisions are shared across cycles. The
// shifted confidence stays inside [0, 1].
func (e PersonalityEffect) Shape(d types.TradeDecision) types.TradeDecision {
	shaped := d
	shaped.Confidence = determinism.Clamp(d.Confidence+e.ConfidenceDelta, 0, 1)
	if len(e.Notes) > 0 {
		reasoning := make([]string, 0, len(d.Reasoning)+len(e.Notes))
		reasoning = append(reasoning, d.Reasoning...)
		reasoning = append(reasoning, e.Notes...)
		shaped.Reasoning = reasoning
	}
	return shaped
}
