package engine

import (
	"context"
	"testing"
	"time"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
	"github.com/responsa-ai/responsa/pkg/retrieval"
)

func TestHealthAllUp(t *testing.T) {
	data := &fakeData{rows: decisionRows()}
	prov := &fakeInference{}
	e := testEngine(t, data, prov, Options{Version: "1.2.3"})

	rep := e.Health(context.Background())
	if rep.Status != models.StatusHealthy {
		t.Errorf("expected healthy, got %s", rep.Status)
	}
	if rep.Version != "1.2.3" || rep.Environment != "test" {
		t.Errorf("unexpected report %+v", rep)
	}
	for _, dep := range []string{models.DependencyData, models.DependencyInference} {
		st, ok := rep.Dependencies[dep]
		if !ok {
			t.Fatalf("missing dependency %s", dep)
		}
		if st.Status != models.StatusUp {
			t.Errorf("%s: expected up, got %s", dep, st.Status)
		}
		if st.Error != "" {
			t.Errorf("%s: unexpected error %q", dep, st.Error)
		}
	}
}

func TestHealthDegradedWhenInferenceDown(t *testing.T) {
	data := &fakeData{rows: decisionRows()}
	prov := &fakeInference{probeErr: fault.New(fault.KindInference, "fake.probe", "invalid api key")}
	e := testEngine(t, data, prov, Options{})

	rep := e.Health(context.Background())
	if rep.Status != models.StatusDegraded {
		t.Errorf("expected degraded, got %s", rep.Status)
	}
	inf := rep.Dependencies[models.DependencyInference]
	if inf.Status != models.StatusDown || inf.Error == "" {
		t.Errorf("expected inference down with detail, got %+v", inf)
	}
	if rep.Dependencies[models.DependencyData].Status != models.StatusUp {
		t.Error("data dependency should stay up")
	}
}

func TestHealthBoundedWhenProviderHangs(t *testing.T) {
	data := &fakeData{rows: decisionRows()}
	prov := &fakeInference{probeWait: 10 * time.Second}
	cfg := testConfig()
	cfg.Health.ProbeTimeout = 100 * time.Millisecond
	e := New(cfg, data, prov, retrieval.NewKeyword(), Options{})

	start := time.Now()
	rep := e.Health(context.Background())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("health took %v with a hanging provider", elapsed)
	}
	if rep.Status != models.StatusDegraded {
		t.Errorf("expected degraded, got %s", rep.Status)
	}
	if rep.Dependencies[models.DependencyInference].Status != models.StatusDown {
		t.Error("hanging probe should report down")
	}
}

func TestHealthReflectsSnapshotState(t *testing.T) {
	data := &fakeData{rows: decisionRows()}
	prov := &fakeInference{answer: "3."}
	e := testEngine(t, data, prov, Options{})
	ctx := context.Background()

	rep := e.Health(ctx)
	if rep.DatasetLoaded || rep.RowCount != 0 {
		t.Errorf("expected unloaded state, got %+v", rep)
	}
	// Probing must not force a load.
	if data.fetches != 0 {
		t.Errorf("health triggered %d dataset fetches", data.fetches)
	}

	if _, err := e.Ask(ctx, "how many?"); err != nil {
		t.Fatal(err)
	}

	rep = e.Health(ctx)
	if !rep.DatasetLoaded || rep.RowCount != 3 {
		t.Errorf("expected loaded snapshot in report, got %+v", rep)
	}
}
