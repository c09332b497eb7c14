package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// clearEnv pins every recognized variable to empty so host environment
// cannot leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RESPONSA_LISTEN", "RESPONSA_ENVIRONMENT", "RESPONSA_LOG_LEVEL",
		"RESPONSA_CACHE_DIR", "RESPONSA_ALLOWED_ORIGIN", "RESPONSA_DATASET_TABLE",
		"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func validYAML() string {
	return `
listen: ":9090"
environment: production
dataset:
  url: https://example.supabase.co
  service_key: ${TEST_SERVICE_KEY}
  table: government_decisions
  page_size: 500
inference:
  provider: openai
  api_key: sk-test-123
  model: gpt-4o
cache:
  enabled: true
  ttl: 30m
budget:
  enabled: true
  policies:
    - max_tokens: 500000
      period: daily
`
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Dataset.PageSize != 1000 {
		t.Errorf("expected page size 1000, got %d", cfg.Dataset.PageSize)
	}
	if cfg.Retrieval.Mode != "keyword" {
		t.Errorf("expected keyword retrieval, got %s", cfg.Retrieval.Mode)
	}
	if cfg.Retrieval.MinSimilarity != 0.7 {
		t.Errorf("expected 0.7 similarity floor, got %v", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Dataset.Table != "" {
		t.Errorf("table must have no default, got %q", cfg.Dataset.Table)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SERVICE_KEY", "service-role-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML()), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Dataset.ServiceKey != "service-role-secret" {
		t.Errorf("env var not expanded: got %s", cfg.Dataset.ServiceKey)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Dataset.PageSize != 500 {
		t.Errorf("expected page size 500, got %d", cfg.Dataset.PageSize)
	}
	if !cfg.Budget.Enabled {
		t.Error("expected budget enabled")
	}
	if len(cfg.Budget.Policies) != 1 || cfg.Budget.Policies[0].MaxTokens != 500000 {
		t.Errorf("budget policies not loaded: %+v", cfg.Budget.Policies)
	}
	if !cfg.Production() {
		t.Error("environment=production should report Production()")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
	if fault.KindOf(err) != fault.KindConfig {
		t.Errorf("expected config kind, got %v", fault.KindOf(err))
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SERVICE_KEY", "from-file")
	t.Setenv("RESPONSA_LISTEN", ":7070")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "from-env")
	t.Setenv("RESPONSA_DATASET_TABLE", "decisions_v2")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML()), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("env listen should win, got %s", cfg.Listen)
	}
	if cfg.Dataset.ServiceKey != "from-env" {
		t.Errorf("env service key should win, got %s", cfg.Dataset.ServiceKey)
	}
	if cfg.Dataset.Table != "decisions_v2" {
		t.Errorf("env table should win, got %s", cfg.Dataset.Table)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Dataset.URL = "https://example.supabase.co"
		cfg.Dataset.ServiceKey = "key"
		cfg.Dataset.Table = "decisions"
		cfg.Inference.APIKey = "sk-test"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Dataset.URL = "" }, "dataset.url"},
		{"missing service key", func(c *Config) { c.Dataset.ServiceKey = "" }, "dataset.service_key"},
		{"missing table", func(c *Config) { c.Dataset.Table = "" }, "dataset.table"},
		{"missing api key", func(c *Config) { c.Inference.APIKey = "" }, "inference.api_key"},
		{"bad provider", func(c *Config) { c.Inference.Provider = "cohere" }, "provider"},
		{"bad retrieval mode", func(c *Config) { c.Retrieval.Mode = "hybrid" }, "retrieval mode"},
		{"zero page size", func(c *Config) { c.Dataset.PageSize = 0 }, "page_size"},
		{"zero question len", func(c *Config) { c.Ask.MaxQuestionLen = 0 }, "max_question_len"},
		{"bad budget period", func(c *Config) {
			c.Budget.Policies = append(c.Budget.Policies, models.BudgetPolicy{Period: "weekly", MaxTokens: 100})
		}, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if fault.KindOf(err) != fault.KindConfig {
				t.Errorf("expected config kind, got %v", fault.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEnsureCacheDir(t *testing.T) {
	cfg := Default()
	cfg.CacheDir = filepath.Join(t.TempDir(), "nested", "cache")

	if err := cfg.EnsureCacheDir(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(cfg.CacheDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
	if got := cfg.AnswerCachePath(); filepath.Dir(got) != cfg.CacheDir {
		t.Errorf("answer cache outside cache dir: %s", got)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.LogLevel = tt.in
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Dataset.ServiceKey = "service-role-abcdefgh"
	cfg.Inference.APIKey = "sk-live-secret"

	r := cfg.Redacted()
	if strings.Contains(r.Dataset.ServiceKey, "abcdefgh") {
		t.Errorf("service key leaked: %s", r.Dataset.ServiceKey)
	}
	if strings.Contains(r.Inference.APIKey, "secret") {
		t.Errorf("api key leaked: %s", r.Inference.APIKey)
	}
	if cfg.Inference.APIKey != "sk-live-secret" {
		t.Error("Redacted must not mutate the original")
	}
}
