package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/dataset"
	"github.com/responsa-ai/responsa/pkg/engine"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/inference"
	"github.com/responsa-ai/responsa/pkg/metric"
	"github.com/responsa-ai/responsa/pkg/models"
	"github.com/responsa-ai/responsa/pkg/retrieval"
)

type stubData struct {
	rows     []dataset.Record
	fetchErr error
	probeErr error
	fetches  int
}

func (f *stubData) FetchAll(ctx context.Context) (*dataset.Snapshot, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	copied := make([]dataset.Record, len(f.rows))
	copy(copied, f.rows)
	return &dataset.Snapshot{
		Rows:      copied,
		Columns:   []string{"id", "title", "year"},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *stubData) Count(ctx context.Context) (int, error) { return len(f.rows), nil }
func (f *stubData) Probe(ctx context.Context) error        { return f.probeErr }
func (f *stubData) Table() string                          { return "decisions" }

type stubInference struct {
	answer      string
	completeErr error
	probeErr    error
	calls       int
}

func (f *stubInference) Complete(ctx context.Context, system, user string) (*inference.Result, error) {
	f.calls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &inference.Result{
		Text:  f.answer,
		Usage: models.Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60},
	}, nil
}

func (f *stubInference) Probe(ctx context.Context) error { return f.probeErr }
func (f *stubInference) Model() string                   { return "test-model" }
func (f *stubInference) Name() string                    { return "stub" }

func gwRows() []dataset.Record {
	return []dataset.Record{
		{"id": float64(1), "title": "Education budget increase", "year": float64(2023)},
		{"id": float64(2), "title": "Hospital construction in the north", "year": float64(2022)},
		{"id": float64(3), "title": "הרחבת תקציב החינוך", "year": float64(2023)},
	}
}

func newGateway(t *testing.T, data *stubData, prov *stubInference, mut func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Dataset.Table = "decisions"
	cfg.Health.ProbeTimeout = 500 * time.Millisecond
	if mut != nil {
		mut(cfg)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metric.New()
	eng := engine.New(cfg, data, prov, retrieval.NewKeyword(), engine.Options{Metrics: m, Logger: log})
	srv := httptest.NewServer(New(cfg, eng, m, log))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func wantError(t *testing.T, resp *http.Response, status int, kind fault.Kind) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	var envelope models.ErrorResponse
	readJSON(t, resp, &envelope)
	if envelope.Error.Kind != string(kind) {
		t.Errorf("expected kind %s, got %q", kind, envelope.Error.Kind)
	}
	if envelope.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}

func TestAskRoundTrip(t *testing.T) {
	prov := &stubInference{answer: "There are 3 decisions."}
	srv := newGateway(t, &stubData{rows: gwRows()}, prov, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": "How many decisions?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected json content type, got %q", ct)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected request id header on response")
	}
	var body models.AskResponse
	readJSON(t, resp, &body)
	if body.Answer != prov.answer {
		t.Errorf("unexpected answer %q", body.Answer)
	}
}

func TestAskMalformedJSON(t *testing.T) {
	prov := &stubInference{answer: "unused"}
	srv := newGateway(t, &stubData{rows: gwRows()}, prov, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": `)
	wantError(t, resp, http.StatusBadRequest, fault.KindInvalidInput)
	if prov.calls != 0 {
		t.Errorf("provider called %d times for malformed body", prov.calls)
	}
}

func TestAskWhitespaceQuestion(t *testing.T) {
	prov := &stubInference{answer: "unused"}
	data := &stubData{rows: gwRows()}
	srv := newGateway(t, data, prov, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": "   \t  "}`)
	wantError(t, resp, http.StatusBadRequest, fault.KindInvalidInput)
	if prov.calls != 0 || data.fetches != 0 {
		t.Errorf("providers reached for blank question: inference=%d data=%d", prov.calls, data.fetches)
	}
}

func TestAskDataFailure(t *testing.T) {
	data := &stubData{fetchErr: fault.New(fault.KindUpstream, "dataset.fetch", "connection refused")}
	srv := newGateway(t, data, &stubInference{answer: "unused"}, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": "anything?"}`)
	wantError(t, resp, http.StatusBadGateway, fault.KindUpstream)
}

func TestAskInferenceFailure(t *testing.T) {
	prov := &stubInference{completeErr: fault.New(fault.KindInference, "openai.complete", "invalid api key")}
	srv := newGateway(t, &stubData{rows: gwRows()}, prov, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": "how many?"}`)
	wantError(t, resp, http.StatusInternalServerError, fault.KindInference)
}

func TestAskBodyTooLarge(t *testing.T) {
	prov := &stubInference{answer: "unused"}
	srv := newGateway(t, &stubData{rows: gwRows()}, prov, nil)

	huge := `{"question": "` + strings.Repeat("x", maxAskBody+1024) + `"}`
	resp := postJSON(t, srv.URL+"/ask", huge)
	wantError(t, resp, http.StatusBadRequest, fault.KindInvalidInput)
	if prov.calls != 0 {
		t.Error("provider called for oversized body")
	}
}

func TestHealthDegradedStillOK(t *testing.T) {
	data := &stubData{rows: gwRows(), probeErr: fault.New(fault.KindUpstream, "dataset.probe", "connection refused")}
	prov := &stubInference{probeErr: fault.New(fault.KindInference, "openai.probe", "invalid api key")}
	srv := newGateway(t, data, prov, nil)

	resp := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must answer 200 even when degraded, got %d", resp.StatusCode)
	}
	var rep models.HealthReport
	readJSON(t, resp, &rep)
	if rep.Status != models.StatusDegraded {
		t.Errorf("expected degraded, got %q", rep.Status)
	}
	for _, dep := range []string{models.DependencyData, models.DependencyInference} {
		st, ok := rep.Dependencies[dep]
		if !ok {
			t.Fatalf("missing dependency %q in report", dep)
		}
		if st.Status != models.StatusDown || st.Error == "" {
			t.Errorf("dependency %q: expected down with error, got %+v", dep, st)
		}
	}
}

func TestRootAliasServesHealth(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{}, nil)

	for _, path := range []string{"/health", "/"} {
		resp := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
		var rep models.HealthReport
		readJSON(t, resp, &rep)
		if rep.Status != models.StatusHealthy {
			t.Errorf("GET %s: expected healthy, got %q", path, rep.Status)
		}
		if len(rep.Dependencies) != 2 {
			t.Errorf("GET %s: expected both dependencies, got %v", path, rep.Dependencies)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{}, nil)

	resp := get(t, srv.URL+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var st models.StatsSnapshot
	readJSON(t, resp, &st)
	if st.RowCount != 3 || st.Table != "decisions" {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.LastUpdated.IsZero() {
		t.Error("expected last_updated to be set")
	}
}

func TestStatsFailure(t *testing.T) {
	data := &stubData{fetchErr: fault.New(fault.KindUpstream, "dataset.fetch", "status 503")}
	srv := newGateway(t, data, &stubInference{}, nil)

	resp := get(t, srv.URL+"/stats")
	wantError(t, resp, http.StatusBadGateway, fault.KindUpstream)
}

func TestReloadEndpoint(t *testing.T) {
	data := &stubData{rows: gwRows()}
	srv := newGateway(t, data, &stubInference{}, nil)

	if resp := get(t, srv.URL+"/stats"); resp.StatusCode != http.StatusOK {
		t.Fatalf("stats before reload: %d", resp.StatusCode)
	} else {
		resp.Body.Close()
	}

	data.rows = append(data.rows, dataset.Record{"id": float64(4), "title": "New decision", "year": float64(2024)})

	// Reload twice; dropping already-empty state must succeed.
	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/reload", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reload #%d: expected 200, got %d", i+1, resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if got := strings.TrimSpace(string(raw)); got != `{"status":"ok"}` {
			t.Errorf("reload #%d: unexpected body %s", i+1, got)
		}
	}

	resp := get(t, srv.URL+"/stats")
	var st models.StatsSnapshot
	readJSON(t, resp, &st)
	if st.RowCount != 4 {
		t.Errorf("expected fresh snapshot with 4 rows after reload, got %d", st.RowCount)
	}
}

func TestReloadRequiresPost(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{}, nil)

	resp := get(t, srv.URL+"/reload")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /reload, got %d", resp.StatusCode)
	}
}

func TestCountEndpoint(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{}, nil)

	resp := get(t, srv.URL+"/count")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rep models.CountReport
	readJSON(t, resp, &rep)
	if rep.ProviderCount != 3 || rep.LoadedCount != 3 || !rep.AllLoaded {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{answer: "3."}, nil)

	resp := postJSON(t, srv.URL+"/ask", `{"question": "How many?"}`)
	resp.Body.Close()

	resp = get(t, srv.URL+"/metrics")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(raw)
	for _, metricName := range []string{"responsa_http_requests_total", "responsa_dataset_rows", "go_goroutines"} {
		if !strings.Contains(body, metricName) {
			t.Errorf("metrics output missing %s", metricName)
		}
	}
}

func TestCORS(t *testing.T) {
	const origin = "https://app.example.org"
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{answer: "3."}, func(cfg *config.Config) {
		cfg.AllowedOrigin = origin
	})

	t.Run("preflight allowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/ask", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204 preflight, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != origin {
			t.Errorf("expected allow-origin %q, got %q", origin, got)
		}
		if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
			t.Error("expected POST in allowed methods")
		}
	})

	t.Run("simple request allowed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/ask", strings.NewReader(`{"question":"how many?"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != origin {
			t.Errorf("expected allow-origin %q, got %q", origin, got)
		}
	})

	t.Run("disallowed origin gets no headers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/ask", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow-origin for foreign origin, got %q", got)
		}
	})
}

func TestRateLimit(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{answer: "3."}, func(cfg *config.Config) {
		cfg.Ask.RateLimit = 1
		cfg.Ask.RateBurst = 1
	})

	resp := postJSON(t, srv.URL+"/ask", `{"question": "first?"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request should pass, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/ask", `{"question": "second?"}`)
	wantError(t, resp, http.StatusTooManyRequests, fault.KindRateLimited)
}

func TestUnknownPath(t *testing.T) {
	srv := newGateway(t, &stubData{rows: gwRows()}, &stubInference{}, nil)

	resp := get(t, srv.URL+"/nope")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
