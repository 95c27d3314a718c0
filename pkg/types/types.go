// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — agents, markets,
// news articles, trades, portfolios, and consensus records. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// AgentID identifies one of the six fixed trading agents.
type AgentID string

const (
	AgentGrok     AgentID = "GROK_4"
	AgentGPT5     AgentID = "GPT_5"
	AgentDeepSeek AgentID = "DEEPSEEK_V3"
	AgentGemini   AgentID = "GEMINI_2_5"
	AgentClaude   AgentID = "CLAUDE_4_5"
	AgentQwen     AgentID = "QWEN_2_5"
)

// AllAgents returns the closed agent roster in a stable order.
func AllAgents() []AgentID {
	return []AgentID{AgentGrok, AgentGPT5, AgentDeepSeek, AgentGemini, AgentClaude, AgentQwen}
}

// frontendIDs is the bidirectional contract between frontend agent slugs
// and internal agent identifiers.
var frontendIDs = map[string]AgentID{
	"grok":     AgentGrok,
	"gpt5":     AgentGPT5,
	"deepseek": AgentDeepSeek,
	"gemini":   AgentGemini,
	"claude":   AgentClaude,
	"qwen":     AgentQwen,
}

// AgentFromFrontendID resolves a frontend slug like "grok" to its internal
// AgentID. The second return is false for unknown slugs.
func AgentFromFrontendID(slug string) (AgentID, bool) {
	id, ok := frontendIDs[slug]
	return id, ok
}

// FrontendID returns the frontend slug for an agent ("" if the agent is
// outside the closed roster).
func (a AgentID) FrontendID() string {
	for slug, id := range frontendIDs {
		if id == a {
			return slug
		}
	}
	return ""
}

// RiskLevel buckets an agent's appetite for position size and confidence.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Side is the direction of a binary-market position.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Direction returns +1 for YES and -1 for NO, the sign used in PnL math.
func (s Side) Direction() float64 {
	if s == SideYes {
		return 1
	}
	return -1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Category is the closed set of market categories.
type Category string

const (
	CategoryPolitics      Category = "Politics"
	CategoryCrypto        Category = "Crypto"
	CategorySports        Category = "Sports"
	CategoryTech          Category = "Tech"
	CategoryEconomy       Category = "Economy"
	CategoryScience       Category = "Science"
	CategoryEntertainment Category = "Entertainment"
	CategoryOther         Category = "Other"
)

// AllCategories returns every category including Other.
func AllCategories() []Category {
	return []Category{
		CategoryPolitics, CategoryCrypto, CategorySports, CategoryTech,
		CategoryEconomy, CategoryScience, CategoryEntertainment, CategoryOther,
	}
}

// MarketStatus is the upstream lifecycle state of a market.
type MarketStatus string

const (
	MarketActive   MarketStatus = "ACTIVE"
	MarketResolved MarketStatus = "RESOLVED"
	MarketFrozen   MarketStatus = "FROZEN"
	MarketInvalid  MarketStatus = "INVALID"
)

// TradeStatus is the lifecycle state of a synthetic trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// ExitReason tags why a trade was closed.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "TP"
	ExitStopLoss      ExitReason = "SL"
	ExitTimeout       ExitReason = "TIMEOUT"
	ExitScoreDecay    ExitReason = "SCORE_DECAY"
	ExitMarketInvalid ExitReason = "MARKET_INVALID"
	ExitResolved      ExitReason = "RESOLVED"
	ExitFlip          ExitReason = "FLIP"
	ExitManual        ExitReason = "MANUAL"
)

// ————————————————————————————————————————————————————————————————————————
// Agents
// ————————————————————————————————————————————————————————————————————————

// ScoreWeights holds an agent's per-component scoring weights. All weights
// must be positive; the weighted score is normalized by their sum.
type ScoreWeights struct {
	Volume        float64 `mapstructure:"volume" json:"volume"`
	Liquidity     float64 `mapstructure:"liquidity" json:"liquidity"`
	PriceMovement float64 `mapstructure:"price_movement" json:"price_movement"`
	News          float64 `mapstructure:"news" json:"news"`
	Probability   float64 `mapstructure:"probability" json:"probability"`
}

// Sum returns the total of all weights.
func (w ScoreWeights) Sum() float64 {
	return w.Volume + w.Liquidity + w.PriceMovement + w.News + w.Probability
}

// AgentProfile is an agent's static configuration: risk appetite, market
// filters, category focus, and scoring weights. Loaded at startup and
// immutable during a cycle.
type AgentProfile struct {
	ID              AgentID      `json:"id"`
	DisplayName     string       `json:"display_name"`
	Risk            RiskLevel    `json:"risk"`
	MinVolume       float64      `json:"min_volume"`
	MinLiquidity    float64      `json:"min_liquidity"`
	MaxTrades       int          `json:"max_trades"`
	FocusCategories []Category   `json:"focus_categories"`
	Weights         ScoreWeights `json:"weights"`
	Enabled         bool         `json:"enabled"`
}

// AdaptiveConfig is the tuner's slow feedback loop: a risk multiplier and
// per-category score bias learned from the agent's last 30 days of closed
// trades.
type AdaptiveConfig struct {
	AgentID        AgentID              `json:"agent_id"`
	RiskMultiplier float64              `json:"risk_multiplier"`
	CategoryBias   map[Category]float64 `json:"category_bias"`
	ComputedAt     time.Time            `json:"computed_at"`
}

// BiasFor returns the bias multiplier for a category, defaulting to 1.0.
// Safe to call on a nil config.
func (c *AdaptiveConfig) BiasFor(cat Category) float64 {
	if c == nil || c.CategoryBias == nil {
		return 1.0
	}
	if b, ok := c.CategoryBias[cat]; ok {
		return b
	}
	return 1.0
}

// Multiplier returns the risk multiplier, defaulting to 1.0 on a nil config.
func (c *AdaptiveConfig) Multiplier() float64 {
	if c == nil || c.RiskMultiplier == 0 {
		return 1.0
	}
	return c.RiskMultiplier
}

// ————————————————————————————————————————————————————————————————————————
// Markets and news
// ————————————————————————————————————————————————————————————————————————

// Market is the normalized view of one external binary market.
type Market struct {
	ID             string       `json:"id"`
	Question       string       `json:"question"`
	Category       Category     `json:"category"`
	VolumeUSD      float64      `json:"volume_usd"`
	LiquidityUSD   float64      `json:"liquidity_usd"`
	Probability    float64      `json:"probability"`      // current YES probability in [0,1]
	PriceChange24h float64      `json:"price_change_24h"` // in [-1,1]
	Status         MarketStatus `json:"status"`
	Outcome        *Side        `json:"outcome,omitempty"` // set when RESOLVED and the upstream exposes it
	EndDate        time.Time    `json:"end_date,omitzero"`
}

// NewsArticle is the unified shape all news providers map into.
// ID is providerName:url; articles are deduplicated across providers by
// normalized lowercased title.
type NewsArticle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	SourceAPI   string    `json:"source_api"`
}

// SearchResult is one web-search hit used to enrich LLM context.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"` // capped at 150 chars by the adapter
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// ScoreComponents breaks a market score into its five weighted parts.
// Each component lies in a fixed range so agent weights are comparable:
// volume ≤ 30, liquidity ≤ 20, price movement ≤ 15, news ≤ 25, probability ≤ 10.
type ScoreComponents struct {
	Volume        float64 `json:"volume"`
	Liquidity     float64 `json:"liquidity"`
	PriceMovement float64 `json:"price_movement"`
	News          float64 `json:"news"`
	Probability   float64 `json:"probability"`
}

// ScoredMarket is a market plus its per-agent weighted score.
type ScoredMarket struct {
	Market
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"components"`
}

// ————————————————————————————————————————————————————————————————————————
// Decisions, trades, portfolios
// ————————————————————————————————————————————————————————————————————————

// TradeDecision is the outcome of the LLM (or deterministic fallback) for
// one (agent, market) pair.
type TradeDecision struct {
	Side       Side     `json:"side"`
	Confidence float64  `json:"confidence"` // in [0,1]
	Reasoning  []string `json:"reasoning"`  // at most 3 short lines
}

// Trade is one synthetic position lifetime. CLOSED is terminal; PnLUSD is
// nil exactly while the trade is OPEN and set exactly once on close.
type Trade struct {
	ID               string      `json:"id"`
	AgentID          AgentID     `json:"agent_id"`
	MarketID         string      `json:"market_id"`
	Side             Side        `json:"side"`
	SizeUSD          float64     `json:"size_usd"`
	EntryProbability float64     `json:"entry_probability"`
	EntryScore       float64     `json:"entry_score"`
	Confidence       float64     `json:"confidence"`
	Status           TradeStatus `json:"status"`
	PnLUSD           *float64    `json:"pnl_usd,omitempty"`
	OpenedAt         time.Time   `json:"opened_at"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty"`
	ExitReason       ExitReason  `json:"exit_reason,omitempty"`
	Reasoning        []string    `json:"reasoning"`
	Seed             string      `json:"seed"`
}

// TradeKey is the idempotency key for an open trade: one live position per
// (agent, market) pair.
func TradeKey(agent AgentID, marketID string) string {
	return fmt.Sprintf("%s:%s", agent, marketID)
}

// Position is the open-trade view carried inside a portfolio.
type Position struct {
	MarketID         string    `json:"market_id"`
	Side             Side      `json:"side"`
	SizeUSD          float64   `json:"size_usd"`
	EntryProbability float64   `json:"entry_probability"`
	EntryScore       float64   `json:"entry_score"`
	OpenedAt         time.Time `json:"opened_at"`
	Category         Category  `json:"category"`
}

// StartingCapitalUSD is every agent's synthetic bankroll.
const StartingCapitalUSD = 3000.0

// AgentPortfolio is an agent's synthetic capital and open positions.
// Invariants: CurrentCapitalUSD == StartingCapitalUSD + RealizedPnLUSD,
// MaxEquityUSD is monotonically nondecreasing, and at most one position
// exists per market.
type AgentPortfolio struct {
	AgentID            AgentID             `json:"agent_id"`
	StartingCapitalUSD float64             `json:"starting_capital_usd"`
	CurrentCapitalUSD  float64             `json:"current_capital_usd"`
	RealizedPnLUSD     float64             `json:"realized_pnl_usd"`
	UnrealizedPnLUSD   float64             `json:"unrealized_pnl_usd"`
	MaxEquityUSD       float64             `json:"max_equity_usd"`
	MaxDrawdownPct     float64             `json:"max_drawdown_pct"`
	OpenPositions      map[string]Position `json:"open_positions"`
	CooldownUntil      *time.Time          `json:"cooldown_until,omitempty"`
	LastUpdated        time.Time           `json:"last_updated"`
}

// NewPortfolio creates a fresh portfolio with the standard starting capital.
func NewPortfolio(agent AgentID) *AgentPortfolio {
	return &AgentPortfolio{
		AgentID:            agent,
		StartingCapitalUSD: StartingCapitalUSD,
		CurrentCapitalUSD:  StartingCapitalUSD,
		MaxEquityUSD:       StartingCapitalUSD,
		OpenPositions:      make(map[string]Position),
	}
}

// Equity is capital plus unrealized PnL — the mark-to-market account value.
func (p *AgentPortfolio) Equity() float64 {
	return p.CurrentCapitalUSD + p.UnrealizedPnLUSD
}

// OpenExposureUSD sums the size of all open positions.
func (p *AgentPortfolio) OpenExposureUSD() float64 {
	var total float64
	for _, pos := range p.OpenPositions {
		total += pos.SizeUSD
	}
	return total
}

// CategoryExposureUSD sums open position sizes in one category.
func (p *AgentPortfolio) CategoryExposureUSD(cat Category) float64 {
	var total float64
	for _, pos := range p.OpenPositions {
		if pos.Category == cat {
			total += pos.SizeUSD
		}
	}
	return total
}

// Clone returns a deep copy. The scheduler hands clones to read-side
// consumers so in-flight cycle state never leaks.
func (p *AgentPortfolio) Clone() *AgentPortfolio {
	cp := *p
	cp.OpenPositions = make(map[string]Position, len(p.OpenPositions))
	for k, v := range p.OpenPositions {
		cp.OpenPositions[k] = v
	}
	if p.CooldownUntil != nil {
		t := *p.CooldownUntil
		cp.CooldownUntil = &t
	}
	return &cp
}

// ————————————————————————————————————————————————————————————————————————
// Aggregation
// ————————————————————————————————————————————————————————————————————————

// ConsensusRecord summarizes agent positioning on one market.
type ConsensusRecord struct {
	MarketID      string  `json:"market_id"`
	Question      string  `json:"question"`
	Yes           int     `json:"yes"`
	No            int     `json:"no"`
	Side          Side    `json:"side"`      // majority side
	Agreement     float64 `json:"agreement"` // max(yes,no)/(yes+no)
	AvgConfidence float64 `json:"avg_confidence"`
	Conflict      bool    `json:"conflict"` // agreement < 0.60 with both sides populated
}
