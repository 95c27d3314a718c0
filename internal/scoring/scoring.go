// Package scoring turns a market, the current news set, and an agent
// profile into a weighted score.
//
// Everything in this package is a pure function of its inputs: the same
// market, news, profile, and clock always produce the same ScoredMarket.
// The five components have fixed maxima (30/20/15/25/10) so agent weights
// are comparable across components.
package scoring

import (
	"sort"
	"strings"
	"time"

	"prediction-engine/pkg/types"
)

// Component maxima. Weights multiply these, then the total is normalized by
// the weight sum.
const (
	maxVolumeScore        = 30.0
	maxLiquidityScore     = 20.0
	maxPriceMovementScore = 15.0
	maxNewsScore          = 25.0
	maxProbScore          = 10.0

	// newsSaturation is the raw contribution at which newsScore maxes out.
	newsSaturation = 6.0
)

// stopwords excluded from market-question keyword extraction.
var stopwords = map[string]bool{
	"will": true, "that": true, "this": true, "with": true, "from": true,
	"have": true, "been": true, "what": true, "when": true, "where": true,
	"which": true, "would": true, "could": true, "should": true, "there": true,
	"their": true, "about": true, "above": true, "after": true, "before": true,
	"more": true, "than": true, "then": true, "them": true, "they": true,
	"does": true, "happen": true, "become": true, "reach": true, "year": true,
	"month": true, "week": true, "time": true, "next": true, "into": true,
}

// Keywords extracts the searchable tokens from a market question: words of
// length >= 4, lowercased, minus the stopword list.
func Keywords(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	var keywords []string
	seen := make(map[string]bool)
	for _, w := range fields {
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// RecencyWeight discounts an article's contribution by age.
func RecencyWeight(publishedAt, now time.Time) float64 {
	age := now.Sub(publishedAt)
	switch {
	case age < time.Hour:
		return 1.0
	case age < 6*time.Hour:
		return 0.7
	case age < 24*time.Hour:
		return 0.4
	case age < 72*time.Hour:
		return 0.25
	default:
		return 0.1
	}
}

// Source tiers. The allowlists are fixed; anything unlisted is long tail.
var (
	topTierSources = []string{
		"reuters", "bloomberg", "associated press", "financial times",
		"wall street journal",
	}
	majorSources = []string{
		"cnbc", "bbc", "cnn", "new york times", "the guardian",
		"washington post", "forbes", "axios", "politico",
	}
)

// SourceWeight maps an article source to its quality tier weight:
// top tier 1.0, major 0.8, long tail 0.5.
func SourceWeight(source string) float64 {
	s := strings.ToLower(source)
	for _, t := range topTierSources {
		if strings.Contains(s, t) {
			return 1.0
		}
	}
	for _, m := range majorSources {
		if strings.Contains(s, m) {
			return 0.8
		}
	}
	return 0.5
}

// NewsIntensity sums recency- and source-weighted contributions of every
// article mentioning one of the market's keywords.
func NewsIntensity(question string, articles []types.NewsArticle, now time.Time) float64 {
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return 0
	}

	var total float64
	for _, a := range articles {
		if articleMatches(a, keywords) {
			total += RecencyWeight(a.PublishedAt, now) * SourceWeight(a.Source)
		}
	}
	return total
}

func articleMatches(a types.NewsArticle, keywords []string) bool {
	text := strings.ToLower(a.Title + " " + a.Description)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// MatchingArticles returns up to limit articles relevant to the question,
// best (most keyword hits, then most recent) first. Used to build LLM context.
func MatchingArticles(question string, articles []types.NewsArticle, limit int) []types.NewsArticle {
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return nil
	}

	type ranked struct {
		article types.NewsArticle
		hits    int
	}
	var matched []ranked
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Description)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, ranked{article: a, hits: hits})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].hits != matched[j].hits {
			return matched[i].hits > matched[j].hits
		}
		return matched[i].article.PublishedAt.After(matched[j].article.PublishedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]types.NewsArticle, len(matched))
	for i, m := range matched {
		out[i] = m.article
	}
	return out
}

// Components computes the five raw component scores for a market.
func Components(m types.Market, articles []types.NewsArticle, now time.Time) types.ScoreComponents {
	volume := min(m.VolumeUSD/100_000, 1) * maxVolumeScore
	liquidity := min(m.LiquidityUSD/50_000, 1) * maxLiquidityScore

	move := m.PriceChange24h
	if move < 0 {
		move = -move
	}
	priceMovement := min(move*10, 1) * maxPriceMovementScore

	news := min(NewsIntensity(m.Question, articles, now)/newsSaturation, 1) * maxNewsScore

	dist := m.Probability - 0.5
	if dist < 0 {
		dist = -dist
	}
	prob := (1 - 2*dist) * maxProbScore

	return types.ScoreComponents{
		Volume:        volume,
		Liquidity:     liquidity,
		PriceMovement: priceMovement,
		News:          news,
		Probability:   prob,
	}
}

// Score computes the agent-weighted score for one market, including the
// adaptive category bias when present.
func Score(m types.Market, articles []types.NewsArticle, profile types.AgentProfile, adaptive *types.AdaptiveConfig, now time.Time) types.ScoredMarket {
	comps := Components(m, articles, now)

	w := profile.Weights
	raw := comps.Volume*w.Volume +
		comps.Liquidity*w.Liquidity +
		comps.PriceMovement*w.PriceMovement +
		comps.News*w.News +
		comps.Probability*w.Probability

	final := 0.0
	if sum := w.Sum(); sum > 0 {
		final = raw / sum
	}
	final *= adaptive.BiasFor(m.Category)

	return types.ScoredMarket{Market: m, Score: final, Components: comps}
}

// FilterCandidates selects the agent's candidate markets: ACTIVE with
// sufficient volume and liquidity. Focus categories are preferred; the full
// universe is only used when the focused set is thinner than 2×maxTrades.
func FilterCandidates(markets []types.Market, profile types.AgentProfile) []types.Market {
	var passed []types.Market
	for _, m := range markets {
		if m.Status != types.MarketActive {
			continue
		}
		if m.VolumeUSD < profile.MinVolume || m.LiquidityUSD < profile.MinLiquidity {
			continue
		}
		passed = append(passed, m)
	}

	if len(profile.FocusCategories) == 0 {
		return passed
	}

	focus := make(map[types.Category]bool, len(profile.FocusCategories))
	for _, c := range profile.FocusCategories {
		focus[c] = true
	}
	var focused []types.Market
	for _, m := range passed {
		if focus[m.Category] {
			focused = append(focused, m)
		}
	}

	if len(focused) >= 2*profile.MaxTrades {
		return focused
	}
	return passed
}

// RankByScore scores all candidates for an agent and sorts them descending.
func RankByScore(markets []types.Market, articles []types.NewsArticle, profile types.AgentProfile, adaptive *types.AdaptiveConfig, now time.Time) []types.ScoredMarket {
	scored := make([]types.ScoredMarket, 0, len(markets))
	for _, m := range markets {
		scored = append(scored, Score(m, articles, profile, adaptive, now))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
