// Package config loads the orchestrator's YAML + env configuration,
// grounded on internal/config/config.go:'s a defaulted struct,
// optional config.yaml overlay, then env-var overrides, generalized here
// from per-agent provider config to this system's DB/broker/LLM-resolver/
// notifier configuration.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelDef describes one built-in model choice for a provider.
type ModelDef struct {
	ID   string
	Desc string
}

// BuiltinModels is the single source of truth for default model ids per
// LLM provider, consulted when a config omits an explicit model.
var BuiltinModels = map[string][]ModelDef{
	"google": {
		{ID: "gemini-2.5-pro", Desc: "Strong reasoning, complex STEM tasks"},
		{ID: "gemini-2.5-flash", Desc: "Fast, cost-effective"},
	},
	"anthropic": {
		{ID: "claude-sonnet-4-5-20250929", Desc: "Balanced performance"},
		{ID: "claude-haiku-4-5-20251001", Desc: "Fast, cost-effective"},
	},
	"openai": {
		{ID: "gpt-4o", Desc: "Versatile, multimodal"},
		{ID: "gpt-4o-mini", Desc: "Fast, cost-effective"},
	},
	"openrouter": {
		{ID: "anthropic/claude-sonnet-4-5-20250929", Desc: "Claude Sonnet (via OpenRouter)"},
		{ID: "meta-llama/llama-3.1-70b-instruct", Desc: "Llama 3.1 70B"},
	},
}

// ProviderConfig holds one LLM provider's credentials/endpoint overrides.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects and configures the active LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "google", "anthropic", "openai", "openrouter"
	Model    string `yaml:"model"`

	FallbackProviders       []string `yaml:"fallback_providers"`
	FailoverThreshold       int      `yaml:"failover_threshold"`        // default 5
	FailoverCooldownSeconds int      `yaml:"failover_cooldown_seconds"` // default 300
}

// BrokerConfig selects the durable broker backend.
type BrokerConfig struct {
	Backend   string `yaml:"backend"` // "memory" or "redis"
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// SchedulerConfig tunes the admission/review producer loops.
type SchedulerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"` // default 5
	DispatchLimit       int `yaml:"dispatch_limit"`        // default 100
	StaleAfterMinutes   int `yaml:"stale_after_minutes"`   // default 20
}

// NotifierConfig selects how the engine reaches the external session
// service: at most one of HTTP or Telegram is normally
// configured, but both can run side by side.
type NotifierConfig struct {
	HTTPBaseURL   string `yaml:"http_base_url"`
	HTTPAPIKeyEnv string `yaml:"http_api_key_env"` // env var name holding the bearer token
}

// TelegramConfig configures the Telegram notifier/channel binding.
type TelegramConfig struct {
	TokenEnv string `yaml:"token_env"` // env var name holding the bot token
	Enabled  bool   `yaml:"enabled"`
}

// ChannelsConfig groups conversational channel bindings.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// MCPServerConfig describes one MCP tool server the llm.ToolProvider can
// resolve mcp_server_infos entries against.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url,omitempty"`
	Transport string            `yaml:"transport,omitempty"` // "stdio" (default) or "sse"
	Enabled   bool              `yaml:"enabled"`
}

// MCPConfig lists the globally-known MCP servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// Config is the orchestrator's full runtime configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	DBPath string `yaml:"db_path"`

	Broker    BrokerConfig    `yaml:"broker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	LLM       LLMConfig                 `yaml:"llm"`
	Providers map[string]ProviderConfig `yaml:"providers"`

	Notifier NotifierConfig `yaml:"notifier"`
	Channels ChannelsConfig `yaml:"channels"`
	MCP      MCPConfig      `yaml:"mcp"`

	NeedsGenesis bool `yaml:"-"`
}

// LLMProviderAPIKey returns the configured API key for provider, env
// overrides taking precedence over config.yaml.
func (c Config) LLMProviderAPIKey(provider string) string {
	envMap := map[string]string{
		"google":     "GOOGLE_API_KEY",
		"anthropic":  "ANTHROPIC_API_KEY",
		"openai":     "OPENAI_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	}
	if envVar, ok := envMap[provider]; ok {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	if c.Providers != nil {
		if p, ok := c.Providers[provider]; ok {
			return p.APIKey
		}
	}
	return ""
}

// ResolveLLMConfig returns the effective (provider, model, apiKey) triple,
// falling back to BuiltinModels when no model is configured.
func (c Config) ResolveLLMConfig() (provider, model, apiKey string) {
	provider = c.LLM.Provider
	if provider == "" {
		provider = "google"
	}
	model = c.LLM.Model
	if model == "" {
		if models, ok := BuiltinModels[provider]; ok && len(models) > 0 {
			model = models[0].ID
		}
	}
	apiKey = c.LLMProviderAPIKey(provider)
	return provider, model, apiKey
}

// Fingerprint is a stable hash of the config fields that change an
// already-running process's observable behavior, used to decide whether a
// hot-reload actually warrants re-wiring collaborators.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|db=%s|broker=%s:%s|provider=%s|model=%s|poll=%d|stale=%d",
		c.BindAddr, c.LogLevel, c.DBPath, c.Broker.Backend, c.Broker.RedisAddr,
		c.LLM.Provider, c.LLM.Model, c.Scheduler.PollIntervalSeconds, c.Scheduler.StaleAfterMinutes)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		BindAddr: "127.0.0.1:18790",
		LogLevel: "info",
		DBPath:   "", // resolved by store.DefaultDBPath when empty
		Broker: BrokerConfig{
			Backend: "memory",
		},
		Scheduler: SchedulerConfig{
			PollIntervalSeconds: 5,
			DispatchLimit:       100,
			StaleAfterMinutes:   20,
		},
		LLM: LLMConfig{
			Provider:                "google",
			FailoverThreshold:       5,
			FailoverCooldownSeconds: int((5 * time.Minute).Seconds()),
		},
	}
}

// HomeDir resolves the directory holding config.yaml, overridable via
// TASKORC_HOME, consistent with store.DefaultDBPath's ~/.taskorc default.
func HomeDir() string {
	if override := os.Getenv("TASKORC_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskorc")
}

// Load reads config.yaml (if present) under HomeDir, applies env
// overrides, and normalizes defaults.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create taskorc home: %w", err)
	}

	configPath := ConfigPath(cfg.HomeDir)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.NeedsGenesis = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18790"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Broker.Backend == "" {
		cfg.Broker.Backend = "memory"
	}
	if cfg.Scheduler.PollIntervalSeconds <= 0 {
		cfg.Scheduler.PollIntervalSeconds = 5
	}
	if cfg.Scheduler.DispatchLimit <= 0 {
		cfg.Scheduler.DispatchLimit = 100
	}
	if cfg.Scheduler.StaleAfterMinutes <= 0 {
		cfg.Scheduler.StaleAfterMinutes = 20
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "google"
	}
	if cfg.LLM.FailoverThreshold <= 0 {
		cfg.LLM.FailoverThreshold = 5
	}
	if cfg.LLM.FailoverCooldownSeconds <= 0 {
		cfg.LLM.FailoverCooldownSeconds = int((5 * time.Minute).Seconds())
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TASKORC_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("TASKORC_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("TASKORC_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("TASKORC_BROKER_BACKEND"); raw != "" {
		cfg.Broker.Backend = raw
	}
	if raw := os.Getenv("TASKORC_REDIS_ADDR"); raw != "" {
		cfg.Broker.RedisAddr = raw
	}
	if raw := os.Getenv("TASKORC_SCHEDULER_POLL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Scheduler.PollIntervalSeconds = v
		}
	}
	if raw := os.Getenv("TASKORC_SCHEDULER_STALE_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Scheduler.StaleAfterMinutes = v
		}
	}
	if raw := os.Getenv("TASKORC_LLM_PROVIDER"); raw != "" {
		cfg.LLM.Provider = raw
	}
	if raw := os.Getenv("TASKORC_LLM_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("TASKORC_NOTIFIER_HTTP_BASE_URL"); raw != "" {
		cfg.Notifier.HTTPBaseURL = raw
	}
	if raw := os.Getenv("TELEGRAM_TOKEN_ENV"); raw != "" {
		cfg.Channels.Telegram.TokenEnv = raw
	}
}
