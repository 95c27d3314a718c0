// Package config defines all configuration for the prediction engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// credentials and mode flags overridable via environment variables.
//
// Two env conventions are honored: the engine's public knobs use the
// PREDICTION_ENGINE_* names (mode, debug, interval), while upstream
// credentials use their provider-native variables (OPENAI_API_KEY,
// SERPAPI_KEY, …). Presence of a provider key enables that provider;
// absence disables it without error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"prediction-engine/pkg/types"
)

// Mode selects where market data comes from.
const (
	ModeLive       = "live"
	ModeSimulation = "simulation"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode      string                   `mapstructure:"mode"`
	Debug     bool                     `mapstructure:"debug"`
	Engine    EngineConfig             `mapstructure:"engine"`
	Market    MarketConfig             `mapstructure:"market"`
	News      NewsConfig               `mapstructure:"news"`
	WebSearch WebSearchConfig          `mapstructure:"web_search"`
	LLM       LLMConfig                `mapstructure:"llm"`
	Store     StoreConfig              `mapstructure:"store"`
	API       APIConfig                `mapstructure:"api"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Agents    map[string]AgentOverride `mapstructure:"agents"`
}

// EngineConfig tunes the trading cycle and its layered caches.
//
//   - Interval: cycle cadence (default 60s). Overridable via
//     PREDICTION_ENGINE_INTERVAL_MS.
//   - MarketCacheTTL / NewsCacheTTL / DecisionCacheTTL / TradeCacheTTL:
//     the freshness windows that double as the engine's only rate limiting.
//   - FlipConfidence: minimum opposite-side confidence to flip a position.
//   - PositionTimeout: close positions older than this.
//   - CooldownDuration: how long a drawdown stop blocks new entries.
//   - CloseFrozen: flat-close FROZEN markets instead of holding them.
type EngineConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MarketCacheTTL   time.Duration `mapstructure:"market_cache_ttl"`
	NewsCacheTTL     time.Duration `mapstructure:"news_cache_ttl"`
	DecisionCacheTTL time.Duration `mapstructure:"decision_cache_ttl"`
	TradeCacheTTL    time.Duration `mapstructure:"trade_cache_ttl"`
	FlipConfidence   float64       `mapstructure:"flip_confidence"`
	PositionTimeout  time.Duration `mapstructure:"position_timeout"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
	CloseFrozen      bool          `mapstructure:"close_frozen"`
}

// MarketConfig holds the prediction-market source endpoint and credentials.
// MaxPages × PageLimit bounds one refresh (default 5 × 1000).
type MarketConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
	MaxPages   int    `mapstructure:"max_pages"`
	PageLimit  int    `mapstructure:"page_limit"`
}

// NewsProviderConfig configures one news upstream. A provider with an empty
// APIKey is disabled.
type NewsProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// NewsConfig lists the configured news providers and the per-provider
// request timeout.
type NewsConfig struct {
	Providers []NewsProviderConfig `mapstructure:"providers"`
	Timeout   time.Duration        `mapstructure:"timeout"`
}

// WebSearchConfig holds optional web-search credentials. Both providers may
// be absent; search then returns empty results without error.
type WebSearchConfig struct {
	SerpAPIKey        string `mapstructure:"serpapi_key"`
	GoogleCSEKey      string `mapstructure:"google_cse_key"`
	GoogleCSEEngineID string `mapstructure:"google_cse_engine_id"`
}

// LLMEndpointConfig configures one agent's LLM upstream. An endpoint with an
// empty APIKey disables the LLM path for that agent (the deterministic
// fallback takes over).
type LLMEndpointConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// LLMConfig maps agent ids to their endpoints.
type LLMConfig struct {
	Timeout   time.Duration                `mapstructure:"timeout"`
	Endpoints map[string]LLMEndpointConfig `mapstructure:"endpoints"`
}

// StoreConfig sets where the SQLite database lives.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig controls the read-only HTTP API.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AgentOverride carries runtime overrides for one agent profile. Pointer
// fields distinguish "not set" from zero values.
type AgentOverride struct {
	Enabled      *bool    `mapstructure:"enabled"`
	MaxTrades    *int     `mapstructure:"max_trades"`
	MinVolume    *float64 `mapstructure:"min_volume"`
	MinLiquidity *float64 `mapstructure:"min_liquidity"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PRED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Missing file is fine: defaults + env cover a credential-less run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeLive)
	v.SetDefault("engine.interval", "60s")
	v.SetDefault("engine.market_cache_ttl", "60s")
	v.SetDefault("engine.news_cache_ttl", "5m")
	v.SetDefault("engine.decision_cache_ttl", "5m")
	v.SetDefault("engine.trade_cache_ttl", "30s")
	v.SetDefault("engine.flip_confidence", 0.60)
	v.SetDefault("engine.position_timeout", "72h")
	v.SetDefault("engine.cooldown_duration", "24h")
	v.SetDefault("engine.close_frozen", false)
	v.SetDefault("market.max_pages", 5)
	v.SetDefault("market.page_limit", 1000)
	v.SetDefault("news.timeout", "10s")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("store.path", "data/engine.db")
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// applyEnvOverrides maps provider-native and PREDICTION_ENGINE_* env vars
// onto the config. Credentials set in the environment always win over YAML.
func applyEnvOverrides(cfg *Config) {
	if mode := os.Getenv("PREDICTION_ENGINE_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if dbg := os.Getenv("PREDICTION_ENGINE_DEBUG"); dbg != "" {
		cfg.Debug = dbg == "true" || dbg == "1"
	}
	if ms := os.Getenv("PREDICTION_ENGINE_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.Engine.Interval = time.Duration(n) * time.Millisecond
		}
	}

	if key := os.Getenv("PRED_MARKET_API_KEY"); key != "" {
		cfg.Market.APIKey = key
	}
	if secret := os.Getenv("PRED_MARKET_SECRET"); secret != "" {
		cfg.Market.Secret = secret
	}
	if pass := os.Getenv("PRED_MARKET_PASSPHRASE"); pass != "" {
		cfg.Market.Passphrase = pass
	}

	for i := range cfg.News.Providers {
		p := &cfg.News.Providers[i]
		if key := os.Getenv(newsKeyEnv(p.Name)); key != "" {
			p.APIKey = key
		}
	}

	if key := os.Getenv("SERPAPI_KEY"); key != "" {
		cfg.WebSearch.SerpAPIKey = key
	}
	if key := os.Getenv("GOOGLE_CSE_KEY"); key != "" {
		cfg.WebSearch.GoogleCSEKey = key
	}
	if id := os.Getenv("GOOGLE_CSE_ENGINE_ID"); id != "" {
		cfg.WebSearch.GoogleCSEEngineID = id
	}

	for agent, env := range llmKeyEnvs {
		if key := os.Getenv(env); key != "" {
			ep := cfg.LLM.Endpoints[string(agent)]
			ep.APIKey = key
			if cfg.LLM.Endpoints == nil {
				cfg.LLM.Endpoints = make(map[string]LLMEndpointConfig)
			}
			cfg.LLM.Endpoints[string(agent)] = ep
		}
	}
}

// llmKeyEnvs maps each agent identity to its provider's native key variable.
var llmKeyEnvs = map[types.AgentID]string{
	types.AgentGrok:     "XAI_API_KEY",
	types.AgentGPT5:     "OPENAI_API_KEY",
	types.AgentDeepSeek: "DEEPSEEK_API_KEY",
	types.AgentGemini:   "GEMINI_API_KEY",
	types.AgentClaude:   "ANTHROPIC_API_KEY",
	types.AgentQwen:     "DASHSCOPE_API_KEY",
}

// newsKeyEnv maps a provider name to its key variable, e.g. "newsapi" →
// NEWSAPI_API_KEY.
func newsKeyEnv(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// Validate checks value ranges. Missing credentials are not errors — they
// disable the corresponding feature.
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeSimulation {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeLive, ModeSimulation, c.Mode)
	}
	if c.Engine.Interval <= 0 {
		return fmt.Errorf("engine.interval must be > 0")
	}
	if c.Engine.FlipConfidence < 0 || c.Engine.FlipConfidence > 1 {
		return fmt.Errorf("engine.flip_confidence must be in [0,1]")
	}
	if c.Market.MaxPages <= 0 || c.Market.MaxPages > 5 {
		return fmt.Errorf("market.max_pages must be in [1,5]")
	}
	if c.Market.PageLimit <= 0 || c.Market.PageLimit > 1000 {
		return fmt.Errorf("market.page_limit must be in [1,1000]")
	}
	if len(c.News.Providers) > 5 {
		return fmt.Errorf("at most 5 news providers are supported, got %d", len(c.News.Providers))
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port")
	}
	for id := range c.LLM.Endpoints {
		if !knownAgent(types.AgentID(id)) {
			return fmt.Errorf("llm.endpoints: unknown agent %q", id)
		}
	}
	return nil
}

func knownAgent(id types.AgentID) bool {
	for _, a := range types.AllAgents() {
		if a == id {
			return true
		}
	}
	return false
}

// AgentProfiles returns the default roster merged with any overrides from
// the config file. Profiles are immutable for the lifetime of the process.
func (c *Config) AgentProfiles() []types.AgentProfile {
	profiles := DefaultAgentProfiles()
	for i := range profiles {
		ov, ok := c.Agents[string(profiles[i].ID)]
		if !ok {
			continue
		}
		if ov.Enabled != nil {
			profiles[i].Enabled = *ov.Enabled
		}
		if ov.MaxTrades != nil {
			profiles[i].MaxTrades = *ov.MaxTrades
		}
		if ov.MinVolume != nil {
			profiles[i].MinVolume = *ov.MinVolume
		}
		if ov.MinLiquidity != nil {
			profiles[i].MinLiquidity = *ov.MinLiquidity
		}
	}
	return profiles
}
