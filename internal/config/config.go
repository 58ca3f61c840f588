package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Mentha scan engine.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Analysis  AnalysisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ProvidersConfig holds credentials and model selection for each answer engine.
// Engines without an API key are simply not registered; scans targeting them
// fail fast with a credential error.
type ProvidersConfig struct {
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Gemini     GeminiConfig
	Perplexity PerplexityConfig
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type PerplexityConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
	JitterMax    time.Duration // upper bound for per-keyword fire offset
	LockTTL      time.Duration
}

type DispatchConfig struct {
	Workers        int
	AttemptTimeout time.Duration
	// MaxRetries bounds transient-failure retries after the first attempt.
	MaxRetries     int
	RetryBaseDelay time.Duration
	ProviderRPS    float64 // per-provider requests per second
	ProviderBurst  int
}

type AnalysisConfig struct {
	Judge       string // "heuristic" or "llm"
	JudgeEngine string // engine used when Judge is "llm"
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("MENTHA_PORT", 8080),
			Env:  envString("MENTHA_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
			Gemini: GeminiConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			},
			Perplexity: PerplexityConfig{
				APIKey:  os.Getenv("PERPLEXITY_API_KEY"),
				Model:   envString("PERPLEXITY_MODEL", "sonar"),
				BaseURL: envString("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:      envBool("MENTHA_SCHEDULER_ENABLED", true),
			TickInterval: envDuration("MENTHA_SCHEDULER_TICK", time.Minute),
			JitterMax:    envDuration("MENTHA_SCHEDULER_JITTER_MAX", 59*time.Minute),
			LockTTL:      envDuration("MENTHA_SCHEDULER_LOCK_TTL", 55*time.Second),
		},
		Dispatch: DispatchConfig{
			Workers:        envInt("MENTHA_DISPATCH_WORKERS", 5),
			AttemptTimeout: envDurationSecs("MENTHA_DISPATCH_TIMEOUT_SECS", 30*time.Second),
			MaxRetries:     envInt("MENTHA_DISPATCH_MAX_RETRIES", 3),
			RetryBaseDelay: envDurationSecs("MENTHA_DISPATCH_RETRY_BASE_SECS", 2*time.Second),
			ProviderRPS:    envFloat("MENTHA_DISPATCH_PROVIDER_RPS", 2),
			ProviderBurst:  envInt("MENTHA_DISPATCH_PROVIDER_BURST", 5),
		},
		Analysis: AnalysisConfig{
			Judge:       envString("MENTHA_ANALYSIS_JUDGE", "heuristic"),
			JudgeEngine: envString("MENTHA_ANALYSIS_JUDGE_ENGINE", "openai"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	for _, p := range []struct{ name, base string }{
		{"OPENAI_BASE_URL", c.Providers.OpenAI.BaseURL},
		{"ANTHROPIC_BASE_URL", c.Providers.Anthropic.BaseURL},
		{"GEMINI_BASE_URL", c.Providers.Gemini.BaseURL},
		{"PERPLEXITY_BASE_URL", c.Providers.Perplexity.BaseURL},
	} {
		if !strings.HasPrefix(p.base, "http://") && !strings.HasPrefix(p.base, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", p.name, p.base)
		}
	}

	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("MENTHA_SCHEDULER_TICK must be positive")
	}
	if c.Scheduler.JitterMax < 0 {
		return fmt.Errorf("MENTHA_SCHEDULER_JITTER_MAX must not be negative")
	}

	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("MENTHA_DISPATCH_WORKERS must be positive")
	}
	if c.Dispatch.MaxRetries <= 0 {
		return fmt.Errorf("MENTHA_DISPATCH_MAX_RETRIES must be positive")
	}

	if c.Analysis.Judge != "heuristic" && c.Analysis.Judge != "llm" {
		return fmt.Errorf("MENTHA_ANALYSIS_JUDGE must be heuristic or llm; got %q", c.Analysis.Judge)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
