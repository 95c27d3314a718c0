package news

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"prediction-engine/internal/config"
	"prediction-engine/pkg/types"
)

// Provider is one configured news upstream. Each adapter owns its raw JSON
// shape and maps it into the unified NewsArticle at the boundary.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]types.NewsArticle, error)
}

// NewProvider builds the adapter for a configured provider. The second
// return is false when the provider is unknown or has no API key (disabled,
// not an error).
func NewProvider(cfg config.NewsProviderConfig, timeout time.Duration) (Provider, bool) {
	if cfg.APIKey == "" {
		return nil, false
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout)

	switch cfg.Name {
	case "newsapi":
		return &newsAPIProvider{client: client, key: cfg.APIKey}, true
	case "gnews":
		return &gnewsProvider{client: client, key: cfg.APIKey}, true
	case "newsdata":
		return &newsdataProvider{client: client, key: cfg.APIKey}, true
	case "currents":
		return &currentsProvider{client: client, key: cfg.APIKey}, true
	case "mediastack":
		return &mediastackProvider{client: client, key: cfg.APIKey}, true
	default:
		return nil, false
	}
}

func fetchJSON[T any](ctx context.Context, client *resty.Client, path string, params map[string]string, out *T) error {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// articleID builds the unified article id: providerName:url.
func articleID(provider, url string) string {
	return provider + ":" + url
}

// ————————————————————————————————————————————————————————————————————————
// newsapi.org
// ————————————————————————————————————————————————————————————————————————

type newsAPIProvider struct {
	client *resty.Client
	key    string
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (p *newsAPIProvider) Name() string { return "newsapi" }

func (p *newsAPIProvider) Fetch(ctx context.Context) ([]types.NewsArticle, error) {
	var body newsAPIResponse
	err := fetchJSON(ctx, p.client, "/v2/top-headlines", map[string]string{
		"apiKey":   p.key,
		"language": "en",
		"pageSize": "50",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}

	out := make([]types.NewsArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		out = append(out, types.NewsArticle{
			ID:          articleID(p.Name(), a.URL),
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			PublishedAt: published,
			URL:         a.URL,
			SourceAPI:   p.Name(),
		})
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// gnews.io
// ————————————————————————————————————————————————————————————————————————

type gnewsProvider struct {
	client *resty.Client
	key    string
}

type gnewsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (p *gnewsProvider) Name() string { return "gnews" }

func (p *gnewsProvider) Fetch(ctx context.Context) ([]types.NewsArticle, error) {
	var body gnewsResponse
	err := fetchJSON(ctx, p.client, "/api/v4/top-headlines", map[string]string{
		"apikey": p.key,
		"lang":   "en",
		"max":    "50",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("gnews: %w", err)
	}

	out := make([]types.NewsArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		out = append(out, types.NewsArticle{
			ID:          articleID(p.Name(), a.URL),
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			PublishedAt: published,
			URL:         a.URL,
			SourceAPI:   p.Name(),
		})
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// newsdata.io
// ————————————————————————————————————————————————————————————————————————

type newsdataProvider struct {
	client *resty.Client
	key    string
}

type newsdataResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Link        string   `json:"link"`
		PubDate     string   `json:"pubDate"`
		SourceID    string   `json:"source_id"`
		Creator     []string `json:"creator"`
	} `json:"results"`
}

func (p *newsdataProvider) Name() string { return "newsdata" }

func (p *newsdataProvider) Fetch(ctx context.Context) ([]types.NewsArticle, error) {
	var body newsdataResponse
	err := fetchJSON(ctx, p.client, "/api/1/latest", map[string]string{
		"apikey":   p.key,
		"language": "en",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("newsdata: %w", err)
	}

	out := make([]types.NewsArticle, 0, len(body.Results))
	for _, a := range body.Results {
		if a.Title == "" || a.Link == "" {
			continue
		}
		// newsdata uses "2006-01-02 15:04:05", not RFC3339.
		published, _ := time.Parse("2006-01-02 15:04:05", a.PubDate)
		out = append(out, types.NewsArticle{
			ID:          articleID(p.Name(), a.Link),
			Title:       a.Title,
			Description: a.Description,
			Source:      a.SourceID,
			PublishedAt: published,
			URL:         a.Link,
			SourceAPI:   p.Name(),
		})
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// currentsapi.services
// ————————————————————————————————————————————————————————————————————————

type currentsProvider struct {
	client *resty.Client
	key    string
}

type currentsResponse struct {
	News []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Published   string `json:"published"`
		Author      string `json:"author"`
	} `json:"news"`
}

func (p *currentsProvider) Name() string { return "currents" }

func (p *currentsProvider) Fetch(ctx context.Context) ([]types.NewsArticle, error) {
	var body currentsResponse
	err := fetchJSON(ctx, p.client, "/v1/latest-news", map[string]string{
		"apiKey":   p.key,
		"language": "en",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("currents: %w", err)
	}

	out := make([]types.NewsArticle, 0, len(body.News))
	for _, a := range body.News {
		if a.Title == "" || a.URL == "" {
			continue
		}
		// currents appends a numeric offset: "2026-01-02 15:04:05 +0000".
		published, _ := time.Parse("2006-01-02 15:04:05 -0700", a.Published)
		out = append(out, types.NewsArticle{
			ID:          articleID(p.Name(), a.URL),
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Author,
			PublishedAt: published,
			URL:         a.URL,
			SourceAPI:   p.Name(),
		})
	}
	return out, nil
}

// ————————————————————————————————————————————————————————————————————————
// mediastack.com
// ————————————————————————————————————————————————————————————————————————

type mediastackProvider struct {
	client *resty.Client
	key    string
}

type mediastackResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Source      string `json:"source"`
	} `json:"data"`
}

func (p *mediastackProvider) Name() string { return "mediastack" }

func (p *mediastackProvider) Fetch(ctx context.Context) ([]types.NewsArticle, error) {
	var body mediastackResponse
	err := fetchJSON(ctx, p.client, "/v1/news", map[string]string{
		"access_key": p.key,
		"languages":  "en",
		"limit":      "50",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("mediastack: %w", err)
	}

	out := make([]types.NewsArticle, 0, len(body.Data))
	for _, a := range body.Data {
		if a.Title == "" || a.URL == "" {
			continue
		}
		published, _ := time.Parse("2006-01-02T15:04:05-07:00", a.PublishedAt)
		out = append(out, types.NewsArticle{
			ID:          articleID(p.Name(), a.URL),
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source,
			PublishedAt: published,
			URL:         a.URL,
			SourceAPI:   p.Name(),
		})
	}
	return out, nil
}
