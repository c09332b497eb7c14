package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Health probes both dependencies in parallel and composes the report.
// It never returns an error: an unreachable dependency shows up as a
// degraded status, and the shared probe timeout bounds the whole call
// even when a provider hangs.
func (e *Engine) Health(ctx context.Context) *models.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Health.ProbeTimeout)
	defer cancel()

	var dataStatus, inferenceStatus models.DependencyStatus
	var g errgroup.Group
	g.Go(func() error {
		dataStatus = probe(ctx, e.data.Probe)
		return nil
	})
	g.Go(func() error {
		inferenceStatus = probe(ctx, e.provider.Probe)
		return nil
	})
	_ = g.Wait()

	status := models.StatusHealthy
	if dataStatus.Status != models.StatusUp || inferenceStatus.Status != models.StatusUp {
		status = models.StatusDegraded
	}

	e.mu.RLock()
	snap := e.snap
	e.mu.RUnlock()

	report := &models.HealthReport{
		Status:        status,
		Environment:   e.cfg.Environment,
		Version:       e.version,
		DatasetLoaded: snap != nil,
		Dependencies: map[string]models.DependencyStatus{
			models.DependencyData:      dataStatus,
			models.DependencyInference: inferenceStatus,
		},
	}
	if snap != nil {
		report.RowCount = snap.RowCount()
	}
	return report
}

func probe(ctx context.Context, fn func(context.Context) error) models.DependencyStatus {
	start := time.Now()
	err := fn(ctx)
	st := models.DependencyStatus{
		Status:    models.StatusUp,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		st.Status = models.StatusDown
		st.Error = fault.Message(err)
	}
	return st
}
