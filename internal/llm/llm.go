// Package llm holds the per-agent model clients.
//
// Each agent maps to one upstream provider. Three wire styles cover the
// roster: the OpenAI chat-completions shape (xAI, OpenAI, DeepSeek,
// DashScope), the Anthropic messages shape, and the Gemini generateContent
// shape. A client with no API key is never constructed; callers treat a
// missing client the same as ErrUnavailable and fall through to the
// deterministic decision path.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"prediction-engine/internal/config"
	"prediction-engine/pkg/types"
)

// ErrUnavailable signals that the model could not produce a usable decision
// this cycle: transport failure, non-200 status, timeout, or an unparseable
// reply. The caller falls back; it never retries within a cycle.
var ErrUnavailable = errors.New("llm unavailable")

// DecisionRequest carries everything a model sees for one market.
type DecisionRequest struct {
	Market  types.ScoredMarket
	News    []types.NewsArticle
	Search  []types.SearchResult
	Profile types.AgentProfile
}

// Client produces a trade decision for one agent.
type Client interface {
	AgentID() types.AgentID
	Decide(ctx context.Context, req DecisionRequest) (types.TradeDecision, error)
}

type wireStyle int

const (
	styleOpenAI wireStyle = iota
	styleAnthropic
	styleGemini
)

// endpointDefaults gives each agent its provider's base URL, model name, and
// wire style. Config may override base URL and model but not the style.
var endpointDefaults = map[types.AgentID]struct {
	baseURL string
	model   string
	style   wireStyle
}{
	types.AgentGrok:     {"https://api.x.ai", "grok-4", styleOpenAI},
	types.AgentGPT5:     {"https://api.openai.com", "gpt-5", styleOpenAI},
	types.AgentDeepSeek: {"https://api.deepseek.com", "deepseek-chat", styleOpenAI},
	types.AgentGemini:   {"https://generativelanguage.googleapis.com", "gemini-2.5-pro", styleGemini},
	types.AgentClaude:   {"https://api.anthropic.com", "claude-sonnet-4-5", styleAnthropic},
	types.AgentQwen:     {"https://dashscope.aliyuncs.com/compatible-mode", "qwen-max", styleOpenAI},
}

// client is the shared implementation; the wire style picks request/response
// shapes.
type client struct {
	agent  types.AgentID
	model  string
	apiKey string
	style  wireStyle
	http   *resty.Client
	logger *slog.Logger
}

// NewClient builds the client for one agent. Returns false when the agent
// has no API key configured.
func NewClient(agent types.AgentID, cfg config.LLMEndpointConfig, timeout time.Duration, logger *slog.Logger) (Client, bool) {
	if cfg.APIKey == "" {
		return nil, false
	}
	def, ok := endpointDefaults[agent]
	if !ok {
		return nil, false
	}

	baseURL := def.baseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	model := def.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &client{
		agent:  agent,
		model:  model,
		apiKey: cfg.APIKey,
		style:  def.style,
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		logger: logger.With("component", "llm", "agent", agent),
	}, true
}

func (c *client) AgentID() types.AgentID { return c.agent }

// Decide sends the prompt and parses the reply. One attempt only: the cycle
// cadence is the retry loop.
func (c *client) Decide(ctx context.Context, req DecisionRequest) (types.TradeDecision, error) {
	prompt := BuildPrompt(req)

	var raw string
	var err error
	switch c.style {
	case styleAnthropic:
		raw, err = c.callAnthropic(ctx, prompt)
	case styleGemini:
		raw, err = c.callGemini(ctx, prompt)
	default:
		raw, err = c.callOpenAI(ctx, prompt)
	}
	if err != nil {
		c.logger.Warn("model call failed", "market", req.Market.ID, "error", err)
		return types.TradeDecision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	decision, err := ExtractDecision(raw)
	if err != nil {
		c.logger.Warn("model reply unparseable", "market", req.Market.ID, "error", err)
		return types.TradeDecision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decision, nil
}

// ————————————————————————————————————————————————————————————————————————
// OpenAI-compatible chat completions (xAI, OpenAI, DeepSeek, DashScope)
// ————————————————————————————————————————————————————————————————————————

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) callOpenAI(ctx context.Context, prompt string) (string, error) {
	var body openAIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(openAIRequest{
			Model: c.model,
			Messages: []openAIMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.2,
		}).
		SetResult(&body).
		Post("/v1/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}
	if len(body.Choices) == 0 {
		return "", errors.New("empty choices")
	}
	return body.Choices[0].Message.Content, nil
}

// ————————————————————————————————————————————————————————————————————————
// Anthropic messages
// ————————————————————————————————————————————————————————————————————————

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *client) callAnthropic(ctx context.Context, prompt string) (string, error) {
	var body anthropicResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(anthropicRequest{
			Model:     c.model,
			MaxTokens: 1024,
			System:    systemPrompt,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		}).
		SetResult(&body).
		Post("/v1/messages")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}
	if len(body.Content) == 0 {
		return "", errors.New("empty content")
	}
	return body.Content[0].Text, nil
}

// ————————————————————————————————————————————————————————————————————————
// Gemini generateContent
// ————————————————————————————————————————————————————————————————————————

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *client) callGemini(ctx context.Context, prompt string) (string, error) {
	var body geminiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(geminiRequest{
			Contents: []geminiContent{
				{Parts: []geminiPart{{Text: systemPrompt + "\n\n" + prompt}}},
			},
		}).
		SetResult(&body).
		Post("/v1beta/models/" + c.model + ":generateContent")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode())
	}
	if len(body.Candidates) == 0 || len(body.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty candidates")
	}
	return body.Candidates[0].Content.Parts[0].Text, nil
}
