package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scentdesk/fragrance-cli/internal/ledger"
	"github.com/scentdesk/fragrance-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OpenAI    ProviderKeys    `yaml:"openai" mapstructure:"openai"`
	Anthropic ProviderKeys    `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    ProviderKeys    `yaml:"gemini" mapstructure:"gemini"`
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Limits    ledger.Limits   `yaml:"limits" mapstructure:"limits"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Feedback  FeedbackConfig  `yaml:"feedback" mapstructure:"feedback"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderKeys holds one AI backend's credentials and model choice.
type ProviderKeys struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ProviderConfig configures provider selection and the retry policy shared
// by every adapter.
type ProviderConfig struct {
	Default         string `yaml:"default" mapstructure:"default"`
	RetryAttempts   int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseMs     int    `yaml:"retry_base_ms" mapstructure:"retry_base_ms"`
	RetryMaxDelayMs int    `yaml:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms"`
}

// Backoff converts the retry settings to the adapter-level policy.
func (p ProviderConfig) Backoff() resilience.BackoffConfig {
	return resilience.BackoffConfig{
		MaxAttempts: p.RetryAttempts,
		BaseDelay:   time.Duration(p.RetryBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(p.RetryMaxDelayMs) * time.Millisecond,
	}
}

// PricingConfig points at an optional per-model rate override file.
type PricingConfig struct {
	RatesFile string `yaml:"rates_file" mapstructure:"rates_file"`
}

// CacheConfig configures the in-memory result cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// BatchConfig configures batch request handling.
type BatchConfig struct {
	MaxItems       int     `yaml:"max_items" mapstructure:"max_items"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// FeedbackConfig configures prompt steering from past feedback.
type FeedbackConfig struct {
	FewShotCount int `yaml:"few_shot_count" mapstructure:"few_shot_count"`
	PatternCount int `yaml:"pattern_count" mapstructure:"pattern_count"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings a given mode depends on. Mode is "resolve"
// for direct CLI operations or "serve" for the HTTP server.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "resolve":
		if c.OpenAI.Key == "" && c.Anthropic.Key == "" && c.Gemini.Key == "" {
			problems = append(problems, "at least one provider key is required (openai.key, anthropic.key, or gemini.key)")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Limits.DailyLimitUSD < 0 || c.Limits.MonthlyLimitUSD < 0 || c.Limits.RequestsPerHour < 0 {
		problems = append(problems, "limits values must be >= 0")
	}
	w := c.Limits.Weights
	if w.Confidence < 0 || w.DataMatch < 0 || w.Latency < 0 || w.Reliability < 0 {
		problems = append(problems, "limits.efficiency_weights values must be >= 0")
	}
	if c.Batch.MaxItems < 1 || c.Batch.MaxItems > 50 {
		problems = append(problems, "batch.max_items must be between 1 and 50")
	}
	if c.Batch.Workers < 1 || c.Batch.Workers > 32 {
		problems = append(problems, "batch.workers must be between 1 and 32")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FRAGRANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "fragrance.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	// Empty-string defaults register the secret keys with viper so that
	// AutomaticEnv can populate them without a config file.
	v.SetDefault("openai.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("pricing.rates_file", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("provider.default", "openai")
	v.SetDefault("provider.retry_attempts", 3)
	v.SetDefault("provider.retry_base_ms", 2000)
	v.SetDefault("provider.retry_max_delay_ms", 8000)
	v.SetDefault("limits.daily_limit_usd", 1.0)
	v.SetDefault("limits.monthly_limit_usd", 10.0)
	v.SetDefault("limits.requests_per_hour", 60)
	v.SetDefault("cache.ttl_minutes", 15)
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("batch.max_items", 10)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.rate_per_second", 0)
	v.SetDefault("feedback.few_shot_count", 3)
	v.SetDefault("feedback.pattern_count", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
