package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is built once per process and never mutated afterwards.
type Config struct {
	Provider          string        `mapstructure:"provider"`
	ModelEndpoint     string        `mapstructure:"model_endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens"`
	MaxTokensPerChunk int           `mapstructure:"max_tokens_per_chunk"`
	ChunkOverlap      int           `mapstructure:"chunk_overlap"`
	MaxRetryAttempts  int           `mapstructure:"max_retry_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffJitter     time.Duration `mapstructure:"backoff_jitter"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	TokensPerMinute   int           `mapstructure:"tokens_per_minute"`
	Concurrency       int           `mapstructure:"concurrency"`
	ChunkFanout       int           `mapstructure:"chunk_fanout"`
	ExtractionSchema  string        `mapstructure:"extraction_schema"`
	ConflictPolicy    string        `mapstructure:"conflict_policy"`
	ForcedChunkFactor float64       `mapstructure:"forced_chunk_penalty"`
	CacheRedisAddr    string        `mapstructure:"cache_redis_addr"`
	OutputDir         string        `mapstructure:"output_dir"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`

	Schema recordModel.Schema `mapstructure:"-"`
}

type LoadOptions struct {
	ConfigFile string
	EnvFile    string
	Flags      *pflag.FlagSet
	// SkipValidation is for commands that never call the model, such as
	// printing the schema. The schema file itself is still validated.
	SkipValidation bool
}

var defaults = map[string]any{
	"provider":             ProviderOpenAI,
	"model_endpoint":       "https://api.openai.com/v1",
	"api_key":              "",
	"model":                "gpt-4o",
	"temperature":          0.0,
	"max_output_tokens":    800,
	"max_tokens_per_chunk": 3000,
	"chunk_overlap":        150,
	"max_retry_attempts":   5,
	"backoff_base":         time.Second,
	"backoff_max":          30 * time.Second,
	"backoff_multiplier":   2.0,
	"backoff_jitter":       500 * time.Millisecond,
	"request_timeout":      60 * time.Second,
	"requests_per_minute":  500,
	"tokens_per_minute":    200000,
	"concurrency":          4,
	"chunk_fanout":         4,
	"extraction_schema":    "",
	"conflict_policy":      PolicyHighestConfidence,
	"forced_chunk_penalty": 0.8,
	"cache_redis_addr":     "",
	"output_dir":           "./output",
	"log_level":            "info",
	"log_format":           "text",
	"metrics_addr":         "",
}

// flag name -> config key
var flagKeys = map[string]string{
	"provider":     "provider",
	"endpoint":     "model_endpoint",
	"model":        "model",
	"max-tokens":   "max_tokens_per_chunk",
	"overlap":      "chunk_overlap",
	"retries":      "max_retry_attempts",
	"concurrency":  "concurrency",
	"schema":       "extraction_schema",
	"policy":       "conflict_policy",
	"cache-redis":  "cache_redis_addr",
	"output":       "output_dir",
	"log-level":    "log_level",
	"log-format":   "log_format",
	"metrics-addr": "metrics_addr",
}

// Load resolves configuration from defaults, an optional YAML file, a .env
// file, BIDEXTRACT_* environment variables and finally command-line flags.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DotEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, failure.New(failure.ConfigError, "config.load", fmt.Errorf("read %s: %w", envFile, err))
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, failure.New(failure.ConfigError, "config.load", fmt.Errorf("error reading config file: %w", err))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, failure.New(failure.ConfigError, "config.load", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, failure.New(failure.ConfigError, "config.load", fmt.Errorf("error unmarshaling config: %w", err))
	}

	if cfg.ExtractionSchema != "" {
		schema, err := recordModel.LoadSchema(cfg.ExtractionSchema)
		if err != nil {
			return nil, failure.New(failure.ConfigError, "config.load", err)
		}
		cfg.Schema = schema
	} else {
		cfg.Schema = recordModel.DefaultSchema()
	}

	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything that can be checked without network access.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Provider {
	case ProviderOpenAI:
		if u, err := url.Parse(c.ModelEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
			add("model_endpoint %q is not an absolute URL", c.ModelEndpoint)
		}
	case ProviderGemini:
	default:
		add("provider %q is not supported (openai, gemini)", c.Provider)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		add("api_key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		add("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		add("temperature must be within [0,2]")
	}
	if c.MaxOutputTokens <= 0 {
		add("max_output_tokens must be positive")
	}
	if c.MaxTokensPerChunk <= 0 {
		add("max_tokens_per_chunk must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxTokensPerChunk {
		add("chunk_overlap must be within [0, max_tokens_per_chunk)")
	}
	if c.MaxRetryAttempts < 1 {
		add("max_retry_attempts must be at least 1")
	}
	if c.BackoffBase < 0 || c.BackoffMax < c.BackoffBase {
		add("backoff_max must be >= backoff_base >= 0")
	}
	if c.BackoffMultiplier < 1 {
		add("backoff_multiplier must be >= 1")
	}
	if c.BackoffJitter < 0 {
		add("backoff_jitter must not be negative")
	}
	if c.RequestTimeout <= 0 {
		add("request_timeout must be positive")
	}
	if c.RequestsPerMinute <= 0 || c.TokensPerMinute <= 0 {
		add("requests_per_minute and tokens_per_minute must be positive")
	}
	if c.Concurrency < 1 || c.ChunkFanout < 1 {
		add("concurrency and chunk_fanout must be at least 1")
	}
	if c.ConflictPolicy != PolicyHighestConfidence && c.ConflictPolicy != PolicyEarliest {
		add("conflict_policy %q is not supported (%s, %s)", c.ConflictPolicy, PolicyHighestConfidence, PolicyEarliest)
	}
	if c.ForcedChunkFactor <= 0 || c.ForcedChunkFactor > 1 {
		add("forced_chunk_penalty must be within (0,1]")
	}
	if err := c.Schema.Validate(); err != nil {
		add("extraction schema: %v", err)
	}

	if len(problems) > 0 {
		return failure.New(failure.ConfigError, "config.validate", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}
