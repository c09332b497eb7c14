package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/responsa-ai/responsa/pkg/audit"
	"github.com/responsa-ai/responsa/pkg/budget"
	sqlitecache "github.com/responsa-ai/responsa/pkg/cache/sqlite"
	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/dataset"
	"github.com/responsa-ai/responsa/pkg/engine"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/inference"
	"github.com/responsa-ai/responsa/pkg/metric"
	"github.com/responsa-ai/responsa/pkg/retrieval"
	"github.com/responsa-ai/responsa/pkg/usage"
)

// loadConfig resolves the validated config for commands that reach the
// providers. Without a file, configuration comes from the environment.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

// localConfig resolves config for commands that only open local
// databases; credentials are not required.
func localConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Local(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger. Production environments log
// JSON; everything else gets readable text. Logs go to stderr so the
// MCP stdio channel stays clean.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.Production() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

// buildEngine wires the engine and its collaborators from config. The
// returned cleanup closes everything that was opened, in reverse order.
func buildEngine(cfg *config.Config, log *slog.Logger, m *metric.Metrics) (*engine.Engine, func(), error) {
	if err := cfg.EnsureCacheDir(); err != nil {
		return nil, nil, err
	}

	data := dataset.New(cfg.Dataset)
	provider, err := inference.New(cfg.Inference)
	if err != nil {
		return nil, nil, err
	}
	index, err := buildIndex(cfg, provider)
	if err != nil {
		return nil, nil, err
	}

	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	tr, err := usage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, tr)

	opts := engine.Options{
		Tracker: tr,
		Metrics: m,
		Logger:  log,
		Version: version,
	}

	if cfg.Cache.Enabled {
		c, err := sqlitecache.New(cfg.AnswerCachePath(), cfg.Cache.TTL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, c)
		opts.Cache = c
	}
	if cfg.Budget.Enabled {
		opts.Enforcer = budget.New(cfg.Budget.Policies, tr)
	}
	if cfg.Audit.Enabled {
		aud, err := audit.New(cfg.Audit)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, aud)
		opts.Auditor = aud
	}

	eng := engine.New(cfg, data, provider, index, opts)
	return eng, cleanup, nil
}

// buildIndex selects the retrieval index. Semantic mode needs an
// embedding-capable provider, which today means OpenAI.
func buildIndex(cfg *config.Config, provider inference.Provider) (retrieval.Index, error) {
	if cfg.Retrieval.Mode != "semantic" {
		return retrieval.NewKeyword(), nil
	}
	oa, ok := provider.(*inference.OpenAI)
	if !ok {
		return nil, fault.New(fault.KindConfig, "setup.index",
			"semantic retrieval requires the openai provider for embeddings")
	}
	return retrieval.NewSemantic(cfg.IndexPath(), oa.WithEmbeddingModel(cfg.Retrieval.EmbeddingModel), cfg.Retrieval.MinSimilarity)
}
