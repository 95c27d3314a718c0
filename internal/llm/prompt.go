package llm

import (
	"fmt"
	"strings"
	"time"

	"prediction-engine/pkg/types"
)

const systemPrompt = `You are a trading analyst for binary prediction markets. ` +
	`Given one market with its score breakdown, recent news, and optional web search ` +
	`results, decide which side to take. Reply with a single JSON object and nothing ` +
	`else: {"side":"YES"|"NO","confidence":0.0-1.0,"reasoning":["...","...","..."]}. ` +
	`At most 3 reasoning entries.`

const (
	maxPromptNews   = 5
	maxPromptSearch = 3
)

// BuildPrompt renders the market context as a deterministic prompt. The same
// request always produces byte-identical text, which keeps the decision cache
// and any upstream prompt caching effective.
func BuildPrompt(req DecisionRequest) string {
	var b strings.Builder
	m := req.Market

	fmt.Fprintf(&b, "Market: %s\n", m.Question)
	fmt.Fprintf(&b, "Category: %s\n", m.Category)
	fmt.Fprintf(&b, "Current YES probability: %.4f\n", m.Probability)
	fmt.Fprintf(&b, "24h price change: %+.4f\n", m.PriceChange24h)
	fmt.Fprintf(&b, "Volume: %.0f USD, Liquidity: %.0f USD\n", m.VolumeUSD, m.LiquidityUSD)
	fmt.Fprintf(&b, "Composite score: %.2f (volume %.1f, liquidity %.1f, movement %.1f, news %.1f, uncertainty %.1f)\n",
		m.Score, m.Components.Volume, m.Components.Liquidity,
		m.Components.PriceMovement, m.Components.News, m.Components.Probability)
	if !m.EndDate.IsZero() {
		fmt.Fprintf(&b, "Resolves: %s\n", m.EndDate.UTC().Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "\nYour trading style: %s risk, focus on %s.\n",
		req.Profile.Risk, joinCategories(req.Profile.FocusCategories))

	if len(req.News) > 0 {
		b.WriteString("\nRecent news:\n")
		for i, a := range req.News {
			if i == maxPromptNews {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", a.Source, a.Title)
		}
	}

	if len(req.Search) > 0 {
		b.WriteString("\nWeb search:\n")
		for i, r := range req.Search {
			if i == maxPromptSearch {
				break
			}
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
		}
	}

	b.WriteString("\nDecide the side and confidence. JSON only.")
	return b.String()
}

func joinCategories(cats []types.Category) string {
	if len(cats) == 0 {
		return "all categories"
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
