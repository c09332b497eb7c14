// Package config loads gateway configuration from a YAML file with
// environment-variable expansion, overlays the recognized environment
// variables, and validates the result. Validation failures are fatal:
// the process must refuse to start rather than run half-configured.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Config holds all gateway configuration.
type Config struct {
	Listen        string `yaml:"listen"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`
	CacheDir      string `yaml:"cache_dir"`
	AllowedOrigin string `yaml:"allowed_origin"`
	DBPath        string `yaml:"db_path"`

	Dataset   DatasetConfig      `yaml:"dataset"`
	Inference InferenceConfig    `yaml:"inference"`
	Retrieval RetrievalConfig    `yaml:"retrieval"`
	Ask       AskConfig          `yaml:"ask"`
	Cache     CacheConfig        `yaml:"cache"`
	Budget    BudgetConfig       `yaml:"budget"`
	Audit     models.AuditConfig `yaml:"audit"`
	Health    HealthConfig       `yaml:"health"`
}

// DatasetConfig points at the external data provider (PostgREST-style
// REST store). Table carries the collection identifier explicitly; it
// has no default because a wrong guess here fails silently at query
// time instead of loudly at startup.
type DatasetConfig struct {
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Table      string        `yaml:"table"`
	PageSize   int           `yaml:"page_size"`
	MaxRows    int           `yaml:"max_rows"`
	Timeout    time.Duration `yaml:"timeout"`
}

// InferenceConfig defines the external inference provider.
// Provider is "openai" (default) or "anthropic".
type InferenceConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig controls how context rows are selected for a prompt.
// Mode is "keyword" (default) or "semantic".
type RetrievalConfig struct {
	Mode           string  `yaml:"mode"`
	TopK           int     `yaml:"top_k"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MinSimilarity  float32 `yaml:"min_similarity"`
}

// AskConfig bounds the /ask endpoint. MaxQuestionLen counts runes.
// RateLimit is requests per second; zero disables the limiter.
type AskConfig struct {
	MaxQuestionLen int     `yaml:"max_question_len"`
	RateLimit      float64 `yaml:"rate_limit"`
	RateBurst      int     `yaml:"rate_burst"`
}

// CacheConfig controls the answer cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// BudgetConfig controls token budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// HealthConfig bounds dependency probes so /health answers within a
// fixed budget even when a provider hangs.
type HealthConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Default returns a Config with sensible defaults. Credentials and the
// dataset table are deliberately absent; Validate rejects them missing.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		Environment: "development",
		LogLevel:    "info",
		CacheDir:    "cache",
		DBPath:      "responsa.db",
		Dataset: DatasetConfig{
			PageSize: 1000,
			Timeout:  8 * time.Second,
		},
		Inference: InferenceConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Mode:           "keyword",
			TopK:           8,
			EmbeddingModel: "text-embedding-3-small",
			MinSimilarity:  0.7,
		},
		Ask: AskConfig{
			MaxQuestionLen: 2000,
			RateBurst:      5,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "responsa-audit.db",
			RetentionDays: 30,
			Include:       []string{"questions"},
			MaxBodySize:   4096,
		},
		Health: HealthConfig{
			ProbeTimeout: 2 * time.Second,
		},
	}
}

// Load reads a YAML config file, expands ${VAR} references, overlays
// the recognized environment variables, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfig, "config.load", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fault.Wrap(fault.KindConfig, "config.load", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from defaults plus environment variables
// alone, for deployments that carry no config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Local returns defaults overlaid with environment variables, without
// validating provider credentials. Operator commands that only open
// local databases use it so they work outside a fully configured
// deployment.
func Local() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays recognized environment variables. Environment wins
// over file values so containerized deployments can override without
// editing the mounted config.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Listen, "RESPONSA_LISTEN")
	set(&c.Environment, "RESPONSA_ENVIRONMENT")
	set(&c.LogLevel, "RESPONSA_LOG_LEVEL")
	set(&c.CacheDir, "RESPONSA_CACHE_DIR")
	set(&c.AllowedOrigin, "RESPONSA_ALLOWED_ORIGIN")
	set(&c.Dataset.Table, "RESPONSA_DATASET_TABLE")
	set(&c.Dataset.URL, "SUPABASE_URL")
	set(&c.Dataset.ServiceKey, "SUPABASE_SERVICE_ROLE_KEY")

	switch c.Inference.Provider {
	case "anthropic":
		set(&c.Inference.APIKey, "ANTHROPIC_API_KEY")
	default:
		set(&c.Inference.APIKey, "OPENAI_API_KEY")
	}
}

// Validate enforces fail-fast startup: every required credential and
// identifier must be present, every bound positive.
func (c *Config) Validate() error {
	missing := func(field string) error {
		return fault.Newf(fault.KindConfig, "config.validate", "%s is required", field)
	}
	if c.Dataset.URL == "" {
		return missing("dataset.url (SUPABASE_URL)")
	}
	if c.Dataset.ServiceKey == "" {
		return missing("dataset.service_key (SUPABASE_SERVICE_ROLE_KEY)")
	}
	if c.Dataset.Table == "" {
		return missing("dataset.table (RESPONSA_DATASET_TABLE)")
	}
	if c.Inference.APIKey == "" {
		return missing("inference.api_key (OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}
	switch c.Inference.Provider {
	case "openai", "anthropic":
	default:
		return fault.Newf(fault.KindConfig, "config.validate", "unknown inference provider %q", c.Inference.Provider)
	}
	switch c.Retrieval.Mode {
	case "keyword", "semantic":
	default:
		return fault.Newf(fault.KindConfig, "config.validate", "unknown retrieval mode %q", c.Retrieval.Mode)
	}
	if c.Dataset.PageSize <= 0 {
		return fault.Newf(fault.KindConfig, "config.validate", "dataset.page_size must be positive, got %d", c.Dataset.PageSize)
	}
	if c.Dataset.Timeout <= 0 || c.Inference.Timeout <= 0 || c.Health.ProbeTimeout <= 0 {
		return fault.New(fault.KindConfig, "config.validate", "timeouts must be positive")
	}
	if c.Ask.MaxQuestionLen <= 0 {
		return fault.Newf(fault.KindConfig, "config.validate", "ask.max_question_len must be positive, got %d", c.Ask.MaxQuestionLen)
	}
	if c.Retrieval.TopK <= 0 {
		return fault.Newf(fault.KindConfig, "config.validate", "retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	for _, p := range c.Budget.Policies {
		switch p.Period {
		case models.BudgetDaily, models.BudgetMonthly:
		default:
			return fault.Newf(fault.KindConfig, "config.validate", "unknown budget period %q", p.Period)
		}
		if p.MaxTokens <= 0 {
			return fault.Newf(fault.KindConfig, "config.validate", "budget max_tokens must be positive, got %d", p.MaxTokens)
		}
	}
	return nil
}

// EnsureCacheDir creates the cache directory and verifies it is
// writable. Called at startup so a misconfigured mount fails fast
// instead of surfacing as a StorageError on the first reload.
func (c *Config) EnsureCacheDir() error {
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return fault.Wrap(fault.KindConfig, "config.cachedir", err)
	}
	probe := filepath.Join(c.CacheDir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fault.Wrap(fault.KindConfig, "config.cachedir", err)
	}
	return os.Remove(probe)
}

// AnswerCachePath is the SQLite answer cache location inside CacheDir.
func (c *Config) AnswerCachePath() string {
	return filepath.Join(c.CacheDir, "answers.db")
}

// IndexPath is the persisted retrieval index location inside CacheDir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.CacheDir, "index")
}

// SlogLevel parses LogLevel into a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Production reports whether the environment name selects production
// behavior (JSON logs).
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Redacted returns a copy safe for logging, with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Dataset.ServiceKey = mask(out.Dataset.ServiceKey)
	out.Inference.APIKey = mask(out.Inference.APIKey)
	return out
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// String implements fmt.Stringer for debug logging without leaking
// credentials.
func (c *Config) String() string {
	r := c.Redacted()
	return fmt.Sprintf("listen=%s env=%s provider=%s model=%s table=%s retrieval=%s",
		r.Listen, r.Environment, r.Inference.Provider, r.Inference.Model, r.Dataset.Table, r.Retrieval.Mode)
}
