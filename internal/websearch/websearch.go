// Package websearch enriches LLM context with a bounded web search.
//
// Two providers are supported — SerpAPI and Google Custom Search — tried in
// that order. The adapter never fails its caller: missing credentials or
// upstream errors yield an empty result list. Results are capped at 5 and
// snippets at 150 characters.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"prediction-engine/internal/config"
	"prediction-engine/internal/obs"
	"prediction-engine/pkg/types"
)

const (
	maxResults    = 5
	maxSnippetLen = 150
	callTimeout   = 5 * time.Second
)

// Searcher performs per-market contextual web searches.
type Searcher struct {
	cfg     config.WebSearchConfig
	serp    *resty.Client
	google  *resty.Client
	metrics *obs.Metrics
	logger  *slog.Logger
}

// New creates a searcher. With no credentials configured, SearchWeb returns
// empty results without logging per call.
func New(cfg config.WebSearchConfig, metrics *obs.Metrics, logger *slog.Logger) *Searcher {
	s := &Searcher{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "websearch"),
	}
	if cfg.SerpAPIKey != "" {
		s.serp = resty.New().SetBaseURL("https://serpapi.com").SetTimeout(callTimeout)
	}
	if cfg.GoogleCSEKey != "" && cfg.GoogleCSEEngineID != "" {
		s.google = resty.New().SetBaseURL("https://www.googleapis.com").SetTimeout(callTimeout)
	}
	if s.serp == nil && s.google == nil {
		logger.Info("web search disabled: no credentials configured")
	}
	return s
}

// Enabled reports whether any search provider is configured.
func (s *Searcher) Enabled() bool {
	return s.serp != nil || s.google != nil
}

// SearchWeb returns at most 5 results for the query. It never returns an
// error: failures degrade to an empty list.
func (s *Searcher) SearchWeb(ctx context.Context, query string) []types.SearchResult {
	if s.serp != nil {
		results, err := s.searchSerp(ctx, query)
		if err == nil {
			s.metrics.AdapterSuccess("websearch")
			return results
		}
		s.metrics.AdapterFailure("websearch", err)
	}
	if s.google != nil {
		results, err := s.searchGoogle(ctx, query)
		if err == nil {
			s.metrics.AdapterSuccess("websearch")
			return results
		}
		s.metrics.AdapterFailure("websearch", err)
	}
	return []types.SearchResult{}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
		Source  string `json:"source"`
	} `json:"organic_results"`
}

func (s *Searcher) searchSerp(ctx context.Context, query string) ([]types.SearchResult, error) {
	var body serpResponse
	resp, err := s.serp.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"api_key": s.cfg.SerpAPIKey,
			"num":     "5",
		}).
		SetResult(&body).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("serpapi: status %d", resp.StatusCode())
	}

	results := make([]types.SearchResult, 0, maxResults)
	for _, r := range body.OrganicResults {
		if len(results) == maxResults {
			break
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			Snippet: truncate(r.Snippet, maxSnippetLen),
			URL:     r.Link,
			Source:  r.Source,
		})
	}
	return results, nil
}

type googleCSEResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		Link        string `json:"link"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

func (s *Searcher) searchGoogle(ctx context.Context, query string) ([]types.SearchResult, error) {
	var body googleCSEResponse
	resp, err := s.google.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":   query,
			"key": s.cfg.GoogleCSEKey,
			"cx":  s.cfg.GoogleCSEEngineID,
			"num": "5",
		}).
		SetResult(&body).
		Get("/customsearch/v1")
	if err != nil {
		return nil, fmt.Errorf("google cse: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("google cse: status %d", resp.StatusCode())
	}

	results := make([]types.SearchResult, 0, maxResults)
	for _, r := range body.Items {
		if len(results) == maxResults {
			break
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			Snippet: truncate(r.Snippet, maxSnippetLen),
			URL:     r.Link,
			Source:  r.DisplayLink,
		})
	}
	return results, nil
}

// truncate caps a snippet at n characters without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
