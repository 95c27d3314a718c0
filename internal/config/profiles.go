package config

import "prediction-engine/pkg/types"

// DefaultAgentProfiles returns the fixed six-agent roster. Each agent has a
// distinct risk level, category focus, and scoring weights; these shape both
// candidate filtering and the weighted score.
func DefaultAgentProfiles() []types.AgentProfile {
	return []types.AgentProfile{
		{
			ID:              types.AgentGrok,
			DisplayName:     "Grok 4",
			Risk:            types.RiskHigh,
			MinVolume:       50_000,
			MinLiquidity:    10_000,
			MaxTrades:       5,
			FocusCategories: []types.Category{types.CategoryCrypto, types.CategoryTech},
			Weights: types.ScoreWeights{
				Volume: 1.3, Liquidity: 1.0, PriceMovement: 1.4, News: 0.9, Probability: 1.0,
			},
			Enabled: true,
		},
		{
			ID:              types.AgentGPT5,
			DisplayName:     "GPT-5",
			Risk:            types.RiskMedium,
			MinVolume:       75_000,
			MinLiquidity:    20_000,
			MaxTrades:       4,
			FocusCategories: []types.Category{types.CategoryPolitics, types.CategoryEconomy},
			Weights: types.ScoreWeights{
				Volume: 1.0, Liquidity: 1.2, PriceMovement: 0.9, News: 1.3, Probability: 1.1,
			},
			Enabled: true,
		},
		{
			ID:              types.AgentDeepSeek,
			DisplayName:     "DeepSeek V3",
			Risk:            types.RiskHigh,
			MinVolume:       40_000,
			MinLiquidity:    8_000,
			MaxTrades:       6,
			FocusCategories: []types.Category{types.CategoryCrypto, types.CategoryScience},
			Weights: types.ScoreWeights{
				Volume: 1.1, Liquidity: 0.8, PriceMovement: 1.5, News: 1.0, Probability: 0.9,
			},
			Enabled: true,
		},
		{
			ID:              types.AgentGemini,
			DisplayName:     "Gemini 2.5",
			Risk:            types.RiskMedium,
			MinVolume:       60_000,
			MinLiquidity:    15_000,
			MaxTrades:       5,
			FocusCategories: []types.Category{types.CategoryTech, types.CategoryEntertainment},
			Weights: types.ScoreWeights{
				Volume: 1.0, Liquidity: 1.0, PriceMovement: 1.1, News: 1.2, Probability: 1.0,
			},
			Enabled: true,
		},
		{
			ID:              types.AgentClaude,
			DisplayName:     "Claude 4.5",
			Risk:            types.RiskLow,
			MinVolume:       100_000,
			MinLiquidity:    30_000,
			MaxTrades:       3,
			FocusCategories: []types.Category{types.CategoryPolitics, types.CategoryScience},
			Weights: types.ScoreWeights{
				Volume: 1.2, Liquidity: 1.4, PriceMovement: 0.7, News: 1.1, Probability: 1.2,
			},
			Enabled: true,
		},
		{
			ID:              types.AgentQwen,
			DisplayName:     "Qwen 2.5",
			Risk:            types.RiskLow,
			MinVolume:       80_000,
			MinLiquidity:    25_000,
			MaxTrades:       4,
			FocusCategories: []types.Category{types.CategorySports, types.CategoryEconomy},
			Weights: types.ScoreWeights{
				Volume: 1.1, Liquidity: 1.3, PriceMovement: 0.8, News: 1.0, Probability: 1.3,
			},
			Enabled: true,
		},
	}
}

// ProfileByID returns the profile for one agent from a roster.
func ProfileByID(profiles []types.AgentProfile, id types.AgentID) (types.AgentProfile, bool) {
	for _, p := range profiles {
		if p.ID == id {
			return p, true
		}
	}
	return types.AgentProfile{}, false
}
