package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed explicitly into constructors; core logic never reads
// process state on its own.
type Config struct {
	Product string        `yaml:"product" mapstructure:"product"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Apps    AppsConfig    `yaml:"apps" mapstructure:"apps"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Pulse   PulseConfig   `yaml:"pulse" mapstructure:"pulse"`
	Email   EmailConfig   `yaml:"email" mapstructure:"email"`
	Notion  NotionConfig  `yaml:"notion" mapstructure:"notion"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Pricing PricingConfig `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// AppsConfig identifies the products whose reviews are pulled.
type AppsConfig struct {
	PlayStoreID string `yaml:"play_store_id" mapstructure:"play_store_id"`
	AppStoreID  string `yaml:"app_store_id" mapstructure:"app_store_id"`
	Country     string `yaml:"country" mapstructure:"country"`
	PlayCount   int    `yaml:"play_count" mapstructure:"play_count"`
	AppPages    int    `yaml:"app_pages" mapstructure:"app_pages"`
}

// LLMConfig selects and configures the language-model provider.
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	AnthropicKey   string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	GeminiKey      string `yaml:"gemini_key" mapstructure:"gemini_key"`
	GeminiModel    string `yaml:"gemini_model" mapstructure:"gemini_model"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Key returns the API key for the configured provider.
func (c LLMConfig) Key() string {
	if c.Provider == "gemini" {
		return c.GeminiKey
	}
	return c.AnthropicKey
}

// Model returns the model ID for the configured provider.
func (c LLMConfig) Model() string {
	if c.Provider == "gemini" {
		return c.GeminiModel
	}
	return c.AnthropicModel
}

// PulseConfig holds the analysis knobs. Batch size and sample cap are cost
// and latency controls, not correctness parameters.
type PulseConfig struct {
	WindowWeeks     int    `yaml:"window_weeks" mapstructure:"window_weeks"`
	MaxThemes       int    `yaml:"max_themes" mapstructure:"max_themes"`
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	TopThemes       int    `yaml:"top_themes" mapstructure:"top_themes"`
	QuotesPerTheme  int    `yaml:"quotes_per_theme" mapstructure:"quotes_per_theme"`
	SampleCap       int    `yaml:"sample_cap" mapstructure:"sample_cap"`
	ActionTemplates string `yaml:"action_templates" mapstructure:"action_templates"`
}

// EmailConfig holds Resend delivery settings.
type EmailConfig struct {
	ResendKey string   `yaml:"resend_key" mapstructure:"resend_key"`
	From      string   `yaml:"from" mapstructure:"from"`
	To        []string `yaml:"to" mapstructure:"to"`
}

// NotionConfig holds the optional Notion delivery settings.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ParentPage string `yaml:"parent_page" mapstructure:"parent_page"`
}

// RetryConfig holds retry knobs for external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig holds per-provider, per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("product", "Our App")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "pulse.db")
	v.SetDefault("apps.country", "us")
	v.SetDefault("apps.play_count", 200)
	v.SetDefault("apps.app_pages", 3)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.gemini_model", "gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("pulse.window_weeks", 12)
	v.SetDefault("pulse.max_themes", 5)
	v.SetDefault("pulse.batch_size", 20)
	v.SetDefault("pulse.concurrency", 4)
	v.SetDefault("pulse.top_themes", 3)
	v.SetDefault("pulse.quotes_per_theme", 3)
	v.SetDefault("pulse.sample_cap", 100)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
