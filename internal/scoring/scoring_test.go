package scoring

import (
	"math"
	"testing"
	"time"

	"prediction-engine/pkg/types"
)

func baseProfile() types.AgentProfile {
	return types.AgentProfile{
		ID:           types.AgentGrok,
		MinVolume:    50_000,
		MinLiquidity: 10_000,
		MaxTrades:    2,
		Weights: types.ScoreWeights{
			Volume: 1, Liquidity: 1, PriceMovement: 1, News: 1, Probability: 1,
		},
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()
	got := Keywords("Will Bitcoin reach $100k before the end of this year?")
	want := map[string]bool{"bitcoin": true, "100k": true}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
	for _, kw := range got {
		if !want[kw] {
			t.Errorf("unexpected keyword %q", kw)
		}
	}
}

func TestRecencyWeight(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 1.0},
		{3 * time.Hour, 0.7},
		{12 * time.Hour, 0.4},
		{48 * time.Hour, 0.25},
		{100 * time.Hour, 0.1},
	}
	for _, tc := range cases {
		if got := RecencyWeight(now.Add(-tc.age), now); got != tc.want {
			t.Errorf("RecencyWeight(age=%v) = %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestSourceWeight(t *testing.T) {
	t.Parallel()
	cases := []struct {
		source string
		want   float64
	}{
		{"Reuters", 1.0},
		{"Bloomberg Markets", 1.0},
		{"CNBC", 0.8},
		{"The Guardian", 0.8},
		{"Random Blog", 0.5},
	}
	for _, tc := range cases {
		if got := SourceWeight(tc.source); got != tc.want {
			t.Errorf("SourceWeight(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestComponentsFormulas(t *testing.T) {
	t.Parallel()
	now := time.Now()
	m := types.Market{
		Question:       "Will Bitcoin reach $100k?",
		VolumeUSD:      50_000,  // half saturation -> 15
		LiquidityUSD:   100_000, // above saturation -> 20
		Probability:    0.5,     // maximal uncertainty -> 10
		PriceChange24h: 0.05,    // half saturation -> 7.5
	}

	c := Components(m, nil, now)
	if math.Abs(c.Volume-15) > 1e-9 {
		t.Errorf("volume = %v, want 15", c.Volume)
	}
	if math.Abs(c.Liquidity-20) > 1e-9 {
		t.Errorf("liquidity = %v, want 20", c.Liquidity)
	}
	if math.Abs(c.PriceMovement-7.5) > 1e-9 {
		t.Errorf("priceMovement = %v, want 7.5", c.PriceMovement)
	}
	if c.News != 0 {
		t.Errorf("news = %v, want 0 without articles", c.News)
	}
	if math.Abs(c.Probability-10) > 1e-9 {
		t.Errorf("probability = %v, want max 10 at p=0.5", c.Probability)
	}
}

func TestProbScoreMaxOnlyAtHalf(t *testing.T) {
	t.Parallel()
	now := time.Now()
	for _, p := range []float64{0.0, 0.2, 0.49, 0.5, 0.51, 0.8, 1.0} {
		c := Components(types.Market{Probability: p}, nil, now)
		if p == 0.5 && math.Abs(c.Probability-10) > 1e-9 {
			t.Errorf("prob score at 0.5 = %v, want 10", c.Probability)
		}
		if p != 0.5 && c.Probability >= 10 {
			t.Errorf("prob score at %v = %v, must be below 10", p, c.Probability)
		}
	}
}

func TestNewsScoreWeighted(t *testing.T) {
	t.Parallel()
	now := time.Now()
	m := types.Market{Question: "Will Bitcoin reach $100k?"}
	articles := []types.NewsArticle{
		{Title: "Bitcoin surges", Source: "Reuters", PublishedAt: now.Add(-30 * time.Minute)},     // 1.0*1.0
		{Title: "bitcoin falls back", Source: "Some Blog", PublishedAt: now.Add(-12 * time.Hour)}, // 0.4*0.5
		{Title: "Unrelated story", Source: "Reuters", PublishedAt: now},                           // no match
	}

	c := Components(m, articles, now)
	want := math.Min(1.2/6.0, 1) * 25
	if math.Abs(c.News-want) > 1e-9 {
		t.Errorf("news = %v, want %v", c.News, want)
	}
}

func TestScoreWeightingAndBias(t *testing.T) {
	t.Parallel()
	now := time.Now()
	m := types.Market{
		Category:     types.CategoryCrypto,
		VolumeUSD:    200_000,
		LiquidityUSD: 100_000,
		Probability:  0.5,
	}
	profile := baseProfile()

	// Equal weights: score is the mean of components.
	base := Score(m, nil, profile, nil, now)
	wantBase := (30.0 + 20.0 + 0 + 0 + 10.0) / 5.0
	if math.Abs(base.Score-wantBase) > 1e-9 {
		t.Fatalf("equal-weight score = %v, want %v", base.Score, wantBase)
	}

	adaptive := &types.AdaptiveConfig{
		AgentID:      profile.ID,
		CategoryBias: map[types.Category]float64{types.CategoryCrypto: 1.3},
	}
	biased := Score(m, nil, profile, adaptive, now)
	if math.Abs(biased.Score-wantBase*1.3) > 1e-9 {
		t.Errorf("biased score = %v, want %v", biased.Score, wantBase*1.3)
	}
}

func TestFilterCandidates(t *testing.T) {
	t.Parallel()
	profile := baseProfile()
	profile.FocusCategories = []types.Category{types.CategoryCrypto}

	mk := func(id string, cat types.Category, vol, liq float64, status types.MarketStatus) types.Market {
		return types.Market{ID: id, Category: cat, VolumeUSD: vol, LiquidityUSD: liq, Status: status}
	}

	universe := []types.Market{
		mk("c1", types.CategoryCrypto, 60_000, 20_000, types.MarketActive),
		mk("c2", types.CategoryCrypto, 80_000, 15_000, types.MarketActive),
		mk("c3", types.CategoryCrypto, 90_000, 15_000, types.MarketActive),
		mk("c4", types.CategoryCrypto, 90_000, 15_000, types.MarketActive),
		mk("p1", types.CategoryPolitics, 500_000, 90_000, types.MarketActive),
		mk("lowvol", types.CategoryCrypto, 10_000, 20_000, types.MarketActive),
		mk("resolved", types.CategoryCrypto, 90_000, 90_000, types.MarketResolved),
	}

	// Four focused candidates >= 2*maxTrades: only focus categories survive.
	got := FilterCandidates(universe, profile)
	if len(got) != 4 {
		t.Fatalf("focused candidates = %d, want 4", len(got))
	}
	for _, m := range got {
		if m.Category != types.CategoryCrypto {
			t.Errorf("non-focus market %s leaked into focused set", m.ID)
		}
	}

	// Thin focus set falls back to the whole filtered universe.
	thin := []types.Market{
		mk("c1", types.CategoryCrypto, 60_000, 20_000, types.MarketActive),
		mk("p1", types.CategoryPolitics, 500_000, 90_000, types.MarketActive),
		mk("p2", types.CategoryPolitics, 400_000, 80_000, types.MarketActive),
	}
	got = FilterCandidates(thin, profile)
	if len(got) != 3 {
		t.Errorf("fallback candidates = %d, want all 3 passing markets", len(got))
	}
}

func TestRankByScoreDescending(t *testing.T) {
	t.Parallel()
	now := time.Now()
	profile := baseProfile()
	markets := []types.Market{
		{ID: "low", VolumeUSD: 10_000, Probability: 0.9},
		{ID: "high", VolumeUSD: 500_000, LiquidityUSD: 200_000, Probability: 0.5},
		{ID: "mid", VolumeUSD: 100_000, Probability: 0.7},
	}

	ranked := RankByScore(markets, nil, profile, nil, now)
	if len(ranked) != 3 || ranked[0].ID != "high" {
		t.Fatalf("ranked order wrong: %v", ids(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("not descending at %d", i)
		}
	}
}

func ids(scored []types.ScoredMarket) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.ID
	}
	return out
}
