// Package engine orchestrates a question through the gateway: validate,
// enforce budget, consult the answer cache, load the dataset snapshot,
// retrieve context rows, call the inference provider, and record the
// exchange. The in-memory snapshot, the answer cache, and the retrieval
// index form one cached state; Reload drops all three under the write
// lock, so any request observing the reload response also observes the
// cleared state.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/responsa-ai/responsa/pkg/audit"
	"github.com/responsa-ai/responsa/pkg/budget"
	sqlitecache "github.com/responsa-ai/responsa/pkg/cache/sqlite"
	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/dataset"
	"github.com/responsa-ai/responsa/pkg/inference"
	"github.com/responsa-ai/responsa/pkg/metric"
	"github.com/responsa-ai/responsa/pkg/models"
	"github.com/responsa-ai/responsa/pkg/retrieval"
	"github.com/responsa-ai/responsa/pkg/usage"
)

// DataProvider is the slice of the dataset client the engine needs.
type DataProvider interface {
	FetchAll(ctx context.Context) (*dataset.Snapshot, error)
	Count(ctx context.Context) (int, error)
	Probe(ctx context.Context) error
	Table() string
}

// InferenceProvider is the slice of the inference client the engine needs.
type InferenceProvider interface {
	Complete(ctx context.Context, system, user string) (*inference.Result, error)
	Probe(ctx context.Context) error
	Model() string
	Name() string
}

// Options carries the optional collaborators. Any field may be left
// nil; the engine degrades to answering without the corresponding
// concern.
type Options struct {
	Cache    *sqlitecache.Cache
	Tracker  usage.Tracker
	Enforcer *budget.Enforcer
	Auditor  *audit.Logger
	Metrics  *metric.Metrics
	Logger   *slog.Logger
	Version  string
}

// Engine answers questions about one dataset through one inference
// provider.
type Engine struct {
	cfg      *config.Config
	data     DataProvider
	provider InferenceProvider
	index    retrieval.Index

	cache    *sqlitecache.Cache
	tracker  usage.Tracker
	enforcer *budget.Enforcer
	auditor  *audit.Logger
	metrics  *metric.Metrics
	log      *slog.Logger
	version  string

	mu   sync.RWMutex
	snap *dataset.Snapshot
}

// New wires an Engine from its required collaborators plus Options.
func New(cfg *config.Config, data DataProvider, provider InferenceProvider, index retrieval.Index, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		data:     data,
		provider: provider,
		index:    index,
		cache:    opts.Cache,
		tracker:  opts.Tracker,
		enforcer: opts.Enforcer,
		auditor:  opts.Auditor,
		metrics:  opts.Metrics,
		log:      log,
		version:  opts.Version,
	}
}

// ensureSnapshot returns the loaded snapshot, fetching the dataset and
// building the retrieval index on first use after startup or reload.
// The write lock is held across the fetch so concurrent first requests
// trigger exactly one load.
func (e *Engine) ensureSnapshot(ctx context.Context) (*dataset.Snapshot, error) {
	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap != nil {
		return e.snap, nil
	}

	start := time.Now()
	snap, err := e.data.FetchAll(ctx)
	if err != nil {
		e.metrics.RecordUpstreamError(models.DependencyData)
		return nil, err
	}
	if err := e.index.Build(ctx, snap); err != nil {
		return nil, err
	}
	e.snap = snap
	e.metrics.SetDatasetRows(snap.RowCount())
	e.log.Info("dataset loaded",
		"table", e.data.Table(),
		"rows", snap.RowCount(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return snap, nil
}

// Stats describes the loaded dataset, loading it first if needed.
// The sample record is withheld in production environments.
func (e *Engine) Stats(ctx context.Context) (*models.StatsSnapshot, error) {
	snap, err := e.ensureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := &models.StatsSnapshot{
		RowCount:    snap.RowCount(),
		LastUpdated: snap.FetchedAt,
		Columns:     snap.Columns,
		DataTypes:   snap.DataTypes(),
		Table:       e.data.Table(),
		Environment: e.cfg.Environment,
	}
	if !e.cfg.Production() {
		out.SampleRecord = snap.Sample()
	}
	return out, nil
}

// Reload drops the snapshot, the answer cache, and the retrieval index.
// It touches no upstream service and is idempotent: clearing an already
// empty state succeeds. The next request re-derives everything from the
// provider.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snap = nil
	if e.cache != nil {
		if err := e.cache.Clear(false); err != nil {
			return err
		}
	}
	if err := e.index.Clear(); err != nil {
		return err
	}
	e.metrics.SetDatasetRows(0)
	e.metrics.RecordReload()
	e.log.InfoContext(ctx, "cached state cleared")
	return nil
}

// Count compares the provider's live row count with the loaded
// snapshot.
func (e *Engine) Count(ctx context.Context) (*models.CountReport, error) {
	snap, err := e.ensureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	providerCount, err := e.data.Count(ctx)
	if err != nil {
		e.metrics.RecordUpstreamError(models.DependencyData)
		return nil, err
	}
	return &models.CountReport{
		ProviderCount: providerCount,
		LoadedCount:   snap.RowCount(),
		AllLoaded:     snap.RowCount() == providerCount,
	}, nil
}

// UsageSummary aggregates recorded usage since the given time. Returns
// nothing when tracking is disabled.
func (e *Engine) UsageSummary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	if e.tracker == nil {
		return nil, nil
	}
	return e.tracker.Summary(ctx, since)
}

// AuditSearch queries the audit trail. Returns nothing when auditing is
// disabled.
func (e *Engine) AuditSearch(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	if e.auditor == nil {
		return nil, nil
	}
	return e.auditor.Query(ctx, opts)
}

// CacheStats reports answer cache counters. Zero when caching is
// disabled.
func (e *Engine) CacheStats() (models.CacheStats, error) {
	if e.cache == nil {
		return models.CacheStats{}, nil
	}
	return e.cache.Stats()
}

// BudgetStatus reports consumption against each configured policy.
func (e *Engine) BudgetStatus(ctx context.Context) ([]models.BudgetStatus, error) {
	if e.enforcer == nil {
		return nil, nil
	}
	return e.enforcer.Status(ctx)
}

// Model returns the configured inference model identifier.
func (e *Engine) Model() string { return e.provider.Model() }

// ProviderName returns the inference provider type.
func (e *Engine) ProviderName() string { return e.provider.Name() }

// Version returns the build version string.
func (e *Engine) Version() string { return e.version }

// Table returns the dataset collection identifier.
func (e *Engine) Table() string { return e.data.Table() }

type ctxKey int

const requestIDKey ctxKey = 0

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the correlation ID, or "" when absent.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func ensureRequestID(ctx context.Context) context.Context {
	if RequestIDFrom(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}
