// Package strategy holds the decision, sizing, and position-lifecycle rules
// shared by all agents.
//
// The deterministic fallback stands in whenever an agent's model is
// unavailable; it is a pure function of the seed, the scored market, and the
// profile, so replays and simulations reproduce exactly.
package strategy

import (
	"prediction-engine/internal/determinism"
	"prediction-engine/pkg/types"
)

const (
	fallbackMinConfidence = 0.40
	fallbackMaxConfidence = 0.95
	confidenceJitterSpan  = 0.10
)

// FallbackDecision produces a trade decision without a model. Side selection
// leans with the market: a YES-leaning market takes YES 60% of the time,
// a NO-leaning one 40%. Confidence starts from the score and is shaped by
// the agent's risk appetite plus a small seeded jitter.
func FallbackDecision(seed string, m types.ScoredMarket, profile types.AgentProfile) types.TradeDecision {
	yesThreshold := 0.4
	if m.Probability > 0.5 {
		yesThreshold = 0.6
	}

	side := types.SideNo
	if determinism.Draw01(seed) < yesThreshold {
		side = types.SideYes
	}

	confidence := m.Score / 100
	switch profile.Risk {
	case types.RiskHigh:
		confidence = min(confidence*1.10, fallbackMaxConfidence)
	case types.RiskLow:
		confidence = max(confidence*0.90, fallbackMinConfidence)
	}

	jitter := (determinism.Draw01(seed+":jitter") - 0.5) * confidenceJitterSpan
	confidence = determinism.Clamp(confidence+jitter, fallbackMinConfidence, fallbackMaxConfidence)

	return types.TradeDecision{
		Side:       side,
		Confidence: confidence,
		Reasoning:  fallbackReasoning(m),
	}
}

// fallbackReasoning names the components that carried the score, strongest
// signals first, at most three lines.
func fallbackReasoning(m types.ScoredMarket) []string {
	var lines []string
	c := m.Components

	if c.Volume >= 20 {
		lines = append(lines, "high trading volume")
	}
	if c.News >= 12.5 {
		lines = append(lines, "elevated news coverage")
	}
	if c.PriceMovement >= 7.5 {
		lines = append(lines, "strong 24h price movement")
	}
	if c.Probability >= 7 {
		lines = append(lines, "market near maximum uncertainty")
	}
	if c.Liquidity >= 15 {
		lines = append(lines, "deep liquidity")
	}

	if len(lines) == 0 {
		lines = []string{"composite score above entry threshold"}
	}
	if len(lines) > 3 {
		lines = lines[:3]
	}
	return lines
}
