// Package news fans out to the configured news providers, normalizes their
// payloads, deduplicates by title, and caches the merged set.
//
// Provider failures are isolated: each provider runs in its own goroutine
// with the shared per-request timeout, and a failing provider only removes
// its own contribution. Only when every provider fails does the aggregator
// degrade to the stale cache (or an empty list).
package news

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"prediction-engine/internal/config"
	"prediction-engine/internal/obs"
	"prediction-engine/pkg/types"
)

// Aggregator merges all configured providers behind a single cache with a
// 5-minute freshness window.
type Aggregator struct {
	providers []Provider
	ttl       time.Duration
	timeout   time.Duration
	metrics   *obs.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	cached    []types.NewsArticle
	fetchedAt time.Time
}

// NewAggregator builds the aggregator from config. Providers without keys
// are silently skipped; an engine with zero providers serves empty news.
func NewAggregator(cfg config.NewsConfig, ttl time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Aggregator {
	var providers []Provider
	for _, pc := range cfg.Providers {
		if p, ok := NewProvider(pc, cfg.Timeout); ok {
			providers = append(providers, p)
		}
	}

	logger = logger.With("component", "news")
	logger.Info("news providers configured", "enabled", len(providers), "declared", len(cfg.Providers))

	return &Aggregator{
		providers: providers,
		ttl:       ttl,
		timeout:   cfg.Timeout,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// FetchLatestNews returns the deduplicated article set, honoring the
// freshness window and degrading to the stale cache when every provider
// fails.
func (a *Aggregator) FetchLatestNews(ctx context.Context) []types.NewsArticle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && a.now().Sub(a.fetchedAt) < a.ttl {
		a.metrics.CacheHit("news")
		return a.cached
	}
	a.metrics.CacheMiss("news")

	if len(a.providers) == 0 {
		return []types.NewsArticle{}
	}

	results := make([][]types.NewsArticle, len(a.providers))
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	var failMu sync.Mutex
	for i, p := range a.providers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			articles, err := p.Fetch(pctx)
			if err != nil {
				a.metrics.AdapterFailure("news:"+p.Name(), err)
				failMu.Lock()
				failures++
				failMu.Unlock()
				return nil // isolate: one provider never poisons the rest
			}
			a.metrics.AdapterSuccess("news:" + p.Name())
			results[i] = articles
			return nil
		})
	}
	g.Wait()

	if failures == len(a.providers) {
		if a.cached != nil {
			a.logger.Warn("all news providers failed, serving stale cache",
				"age", a.now().Sub(a.fetchedAt))
			return a.cached
		}
		return []types.NewsArticle{}
	}

	merged := dedupe(results)
	a.cached = merged
	a.fetchedAt = a.now()

	a.logger.Info("news refreshed", "articles", len(merged), "providers_failed", failures)
	return a.cached
}

// dedupe merges provider results preserving provider order, keeping the
// first occurrence of each normalized (lowercased, trimmed) title.
func dedupe(results [][]types.NewsArticle) []types.NewsArticle {
	seen := make(map[string]bool)
	var merged []types.NewsArticle
	for _, batch := range results {
		for _, article := range batch {
			key := strings.ToLower(strings.TrimSpace(article.Title))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, article)
		}
	}
	if merged == nil {
		merged = []types.NewsArticle{}
	}
	return merged
}

// Invalidate drops the cache so the next fetch hits the providers.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
	a.fetchedAt = time.Time{}
}
