package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "LEADS"

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Cost      CostConfig      `yaml:"cost" mapstructure:"cost"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion API credentials and the lead database.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
	// StalenessDays is how old a completed enrichment may get before the
	// candidate is due again.
	StalenessDays int     `yaml:"staleness_days" mapstructure:"staleness_days"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExtractConfig configures fact extraction.
type ExtractConfig struct {
	// Backend is "anthropic" or "gemini".
	Backend       string  `yaml:"backend" mapstructure:"backend"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxInputChars int     `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	OutputTokens  int64   `yaml:"output_tokens" mapstructure:"output_tokens"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// CrawlConfig configures the crawl phase.
type CrawlConfig struct {
	MaxPages     int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth     int      `yaml:"max_depth" mapstructure:"max_depth"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPageChars int      `yaml:"max_page_chars" mapstructure:"max_page_chars"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	Patterns     []string `yaml:"patterns" mapstructure:"patterns"`
}

// CostConfig configures the per-run budget.
type CostConfig struct {
	CeilingUSD   float64                 `yaml:"ceiling_usd" mapstructure:"ceiling_usd"`
	Buffer       float64                 `yaml:"buffer" mapstructure:"buffer"`
	ObserveEvery int                     `yaml:"observe_every" mapstructure:"observe_every"`
	Rates        map[string]ModelPricing `yaml:"rates" mapstructure:"rates"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ScoringConfig configures inline scoring and its circuit breaker.
type ScoringConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs      int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int  `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// BatchConfig configures the worker pool.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment. Values from
// the environment override the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lead-enrichment.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("notion.staleness_days", 30)
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("notion.max_attempts", 3)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("extract.backend", "anthropic")
	v.SetDefault("extract.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.max_input_chars", 8000)
	v.SetDefault("extract.output_tokens", 300)
	v.SetDefault("extract.max_tokens", 1024)
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("crawl.max_pages", 5)
	v.SetDefault("crawl.max_depth", 1)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.max_page_chars", 10000)
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; LeadEnrichmentBot/1.0)")
	v.SetDefault("cost.ceiling_usd", 1.00)
	v.SetDefault("cost.buffer", 0.10)
	v.SetDefault("cost.observe_every", 10)
	v.SetDefault("scoring.enabled", true)
	v.SetDefault("scoring.timeout_secs", 5)
	v.SetDefault("scoring.failure_threshold", 5)
	v.SetDefault("scoring.reset_timeout_secs", 60)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("metrics.addr", "")
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

// Validate checks the settings needed by mode: "enrich", "rescore" or
// "runs". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "enrich":
		errs = append(errs, c.validateNotion()...)
		errs = append(errs, c.validateBackend()...)
		errs = append(errs, c.validateStore()...)
		if c.Cost.CeilingUSD <= 0 {
			errs = append(errs, "cost.ceiling_usd must be > 0")
		}
		if c.Cost.Buffer < 0 || c.Cost.Buffer > 1 {
			errs = append(errs, "cost.buffer must be between 0 and 1")
		}
		if c.Crawl.MaxPages < 1 {
			errs = append(errs, "crawl.max_pages must be >= 1")
		}
	case "rescore":
		errs = append(errs, c.validateNotion()...)
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		errs = append(errs, "batch.concurrency must be between 1 and 50")
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "json" && f != "console" {
		errs = append(errs, "log.format must be json or console")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateNotion() []string {
	var errs []string
	if c.Notion.Token == "" {
		errs = append(errs, "notion.token is required")
	}
	if c.Notion.LeadDB == "" {
		errs = append(errs, "notion.lead_db is required")
	}
	if c.Notion.StalenessDays < 1 {
		errs = append(errs, "notion.staleness_days must be >= 1")
	}
	return errs
}

func (c *Config) validateBackend() []string {
	switch strings.ToLower(c.Extract.Backend) {
	case "", "anthropic":
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required"}
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return []string{"gemini.key is required"}
		}
	default:
		return []string{"extract.backend must be anthropic or gemini"}
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch strings.ToLower(c.Store.Driver) {
	case "", "sqlite":
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	}
	return []string{"store.driver must be sqlite or postgres"}
}

// Masked returns a copy with credentials replaced, for display.
func (c *Config) Masked() Config {
	out := *c
	out.Notion.Token = mask(out.Notion.Token)
	out.Anthropic.Key = mask(out.Anthropic.Key)
	out.Gemini.Key = mask(out.Gemini.Key)
	if strings.Contains(out.Store.DatabaseURL, "@") {
		out.Store.DatabaseURL = maskURL(out.Store.DatabaseURL)
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL hides the userinfo of a connection string.
func maskURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if scheme < 0 || at < scheme {
		return "****"
	}
	return u[:scheme+3] + "****" + u[at:]
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
