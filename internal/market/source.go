// Package market pulls binary markets from the external prediction-market
// API and normalizes them into the internal Market shape.
//
// The client keeps a 60-second freshness window: within the window,
// FetchAllMarkets returns the cached list by identity without touching the
// network. On refresh it pages through the upstream (bounded), drops
// malformed records (counted, never raised), and maps raw category strings
// onto the closed Category set. If the upstream fails, the last successful
// cache is returned — possibly stale — and the failure is recorded; with no
// cache at all, the result is an empty list.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"prediction-engine/internal/config"
	"prediction-engine/internal/determinism"
	"prediction-engine/internal/obs"
	"prediction-engine/pkg/types"
)

// Source is what the scheduler consumes. Errors never escape: the adapter
// degrades to stale or empty data on its own.
type Source interface {
	FetchAllMarkets(ctx context.Context) []types.Market
}

// rawMarket is the JSON shape returned by the upstream markets endpoint.
// Numeric fields are pointers so "missing" is distinguishable from zero.
type rawMarket struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	Category       string   `json:"category"`
	VolumeUSD      *float64 `json:"volumeUsd"`
	LiquidityUSD   *float64 `json:"liquidityUsd"`
	Probability    *float64 `json:"currentProbability"`
	PriceChange24h *float64 `json:"priceChange24h"`
	Status         string   `json:"status"`
	Outcome        *string  `json:"resolvedOutcome"`
	EndDate        string   `json:"endDate"`
}

// Client fetches and caches markets from the live upstream.
type Client struct {
	http    *resty.Client
	cfg     config.MarketConfig
	ttl     time.Duration
	metrics *obs.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	cached    []types.Market
	fetchedAt time.Time
}

// NewClient creates a market source client.
func NewClient(cfg config.MarketConfig, ttl time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("X-API-KEY", cfg.APIKey).
		SetHeader("X-API-SECRET", cfg.Secret).
		SetHeader("X-API-PASSPHRASE", cfg.Passphrase)

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With("component", "market-source"),
		now:     time.Now,
	}
}

// FetchAllMarkets returns the current market set, honoring the freshness
// window and degrading to the stale cache on upstream failure.
func (c *Client) FetchAllMarkets(ctx context.Context) []types.Market {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		c.metrics.CacheHit("market")
		return c.cached
	}
	c.metrics.CacheMiss("market")

	raws, err := c.fetchPages(ctx)
	if err != nil {
		c.metrics.AdapterFailure("market", err)
		if c.cached != nil {
			c.logger.Warn("market refresh failed, serving stale cache",
				"error", err, "age", c.now().Sub(c.fetchedAt))
			return c.cached
		}
		return []types.Market{}
	}
	c.metrics.AdapterSuccess("market")

	markets, rejects := normalize(raws)
	c.metrics.RecordRejects("market", rejects)

	c.cached = markets
	c.fetchedAt = c.now()

	c.logger.Info("markets refreshed", "total", len(markets), "rejected", rejects)
	return c.cached
}

func (c *Client) fetchPages(ctx context.Context) ([]rawMarket, error) {
	var all []rawMarket
	for page := 0; page < c.cfg.MaxPages; page++ {
		var batch []rawMarket
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(c.cfg.PageLimit),
				"offset": strconv.Itoa(page * c.cfg.PageLimit),
				"active": "true",
			}).
			SetResult(&batch).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page %d: %w", page, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("fetch markets page %d: status %d", page, resp.StatusCode())
		}

		all = append(all, batch...)
		if len(batch) < c.cfg.PageLimit {
			break
		}
	}
	return all, nil
}

// normalize converts raw records to Markets, dropping any record missing
// one of {id, question, volumeUsd, currentProbability}. The drop count is
// returned, not raised.
func normalize(raws []rawMarket) ([]types.Market, int) {
	markets := make([]types.Market, 0, len(raws))
	rejects := 0

	for _, r := range raws {
		if r.ID == "" || r.Question == "" || r.VolumeUSD == nil || r.Probability == nil {
			rejects++
			continue
		}

		m := types.Market{
			ID:          r.ID,
			Question:    r.Question,
			Category:    MapCategory(r.Category),
			VolumeUSD:   *r.VolumeUSD,
			Probability: determinism.Clamp(*r.Probability, 0, 1),
			Status:      mapStatus(r.Status),
		}
		if m.VolumeUSD < 0 {
			m.VolumeUSD = 0
		}
		if r.LiquidityUSD != nil && *r.LiquidityUSD > 0 {
			m.LiquidityUSD = *r.LiquidityUSD
		}
		if r.PriceChange24h != nil {
			m.PriceChange24h = determinism.Clamp(*r.PriceChange24h, -1, 1)
		}
		if r.Outcome != nil {
			switch *r.Outcome {
			case "YES", "yes":
				s := types.SideYes
				m.Outcome = &s
			case "NO", "no":
				s := types.SideNo
				m.Outcome = &s
			}
		}
		if r.EndDate != "" {
			if t, err := time.Parse(time.RFC3339, r.EndDate); err == nil {
				m.EndDate = t
			}
		}

		markets = append(markets, m)
	}

	return markets, rejects
}

func mapStatus(raw string) types.MarketStatus {
	switch raw {
	case "", "active", "open", "ACTIVE":
		return types.MarketActive
	case "resolved", "closed", "RESOLVED":
		return types.MarketResolved
	case "frozen", "paused", "FROZEN":
		return types.MarketFrozen
	default:
		return types.MarketInvalid
	}
}

// Invalidate drops the cache so the next fetch hits the upstream.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.fetchedAt = time.Time{}
}
