package market

import (
	"context"
	"fmt"
	"time"

	"prediction-engine/internal/determinism"
	"prediction-engine/pkg/types"
)

// simQuestions seeds the simulation universe. Categories are chosen so every
// agent's focus list has candidates.
var simQuestions = []struct {
	question string
	category types.Category
}{
	{"Will Bitcoin close above $150k this quarter?", types.CategoryCrypto},
	{"Will Ethereum flip Bitcoin by market cap this year?", types.CategoryCrypto},
	{"Will a spot Solana ETF be approved this year?", types.CategoryCrypto},
	{"Will the incumbent party win the next national election?", types.CategoryPolitics},
	{"Will the spending bill pass before the deadline?", types.CategoryPolitics},
	{"Will the home team win the championship final?", types.CategorySports},
	{"Will the title race be decided before the last matchday?", types.CategorySports},
	{"Will a frontier lab release a new flagship model this quarter?", types.CategoryTech},
	{"Will global chip sales set a record this year?", types.CategoryTech},
	{"Will the central bank cut rates at the next meeting?", types.CategoryEconomy},
	{"Will inflation print below 3 percent next month?", types.CategoryEconomy},
	{"Will the crewed lunar mission launch on schedule?", types.CategoryScience},
	{"Will this year be the hottest on record?", types.CategoryScience},
	{"Will the sequel break the opening-weekend record?", types.CategoryEntertainment},
	{"Will the streaming deal be announced this month?", types.CategoryEntertainment},
	{"Will the ceasefire hold through the end of the month?", types.CategoryOther},
}

// Simulator is a deterministic market source for credential-less runs.
// Market fundamentals are fixed per id; probabilities drift per 5-minute
// bucket through the same primitives that drive trading decisions, so a
// simulation run is fully reproducible.
type Simulator struct {
	now func() time.Time
}

// NewSimulator creates a simulation market source.
func NewSimulator() *Simulator {
	return &Simulator{now: time.Now}
}

// FetchAllMarkets generates the simulated market set for the current time
// bucket. It never fails.
func (s *Simulator) FetchAllMarkets(_ context.Context) []types.Market {
	bucket := s.now().Unix() / 300

	markets := make([]types.Market, 0, len(simQuestions))
	for i, q := range simQuestions {
		id := fmt.Sprintf("sim-%03d", i)

		base := 0.25 + 0.5*determinism.Draw01(id+":base")
		drift := (determinism.Draw01(fmt.Sprintf("%s:p:%d", id, bucket)) - 0.5) * 0.3
		prev := (determinism.Draw01(fmt.Sprintf("%s:p:%d", id, bucket-288)) - 0.5) * 0.3

		markets = append(markets, types.Market{
			ID:             id,
			Question:       q.question,
			Category:       q.category,
			VolumeUSD:      30_000 + 270_000*determinism.Draw01(id+":vol"),
			LiquidityUSD:   8_000 + 92_000*determinism.Draw01(id+":liq"),
			Probability:    determinism.Clamp(base+drift, 0.02, 0.98),
			PriceChange24h: determinism.Clamp(drift-prev, -1, 1),
			Status:         types.MarketActive,
		})
	}
	return markets
}
