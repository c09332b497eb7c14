// Package gateway is the HTTP surface of the service. It owns routing,
// CORS, rate limiting, request correlation, and the translation of
// classified errors into the JSON error envelope; all question
// semantics live in the engine.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/engine"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/metric"
	"github.com/responsa-ai/responsa/pkg/models"
)

// maxAskBody bounds the /ask request body. Questions are short; anything
// near this size is hostile or broken.
const maxAskBody = 64 << 10

// Server serves the gateway HTTP API.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	metrics *metric.Metrics
	log     *slog.Logger
	limiter *rate.Limiter
	router  chi.Router
}

// New wires the router and middleware around an engine.
func New(cfg *config.Config, eng *engine.Engine, m *metric.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		metrics: m,
		log:     log,
	}
	if cfg.Ask.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Ask.RateLimit), cfg.Ask.RateBurst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleHealth)
	r.Post("/ask", s.handleAsk)
	r.Get("/stats", s.handleStats)
	r.Post("/reload", s.handleReload)
	r.Get("/count", s.handleCount)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", "addr", s.cfg.Listen, "environment", s.cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("gateway shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// handleHealth always answers 200; degradation lives in the body.
// GET / serves the same report for platform probes that only know the
// root path.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Health(r.Context()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.writeError(w, r, fault.New(fault.KindRateLimited, "gateway.ask", "too many requests"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAskBody)
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fault.New(fault.KindInvalidInput, "gateway.ask", "body must be JSON with a question field"))
		return
	}

	ctx := engine.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	resp, err := s.engine.Ask(ctx, req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ReloadResponse{Status: "ok"})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.Count(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response write failed", "error", err)
	}
}

// writeError translates a classified error into the envelope. Internal
// detail is logged, the client sees the sanitized message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	status := fault.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "kind", kind, "error", err)
	} else {
		s.log.WarnContext(r.Context(), "request rejected",
			"path", r.URL.Path, "kind", kind, "error", err)
	}
	s.writeJSON(w, status, models.ErrorResponse{Error: models.ErrorBody{
		Kind:    string(kind),
		Message: fault.Message(err),
	}})
}
