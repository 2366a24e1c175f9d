// Package ops serves operational endpoints: Prometheus metrics and health.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats reports registry sizes.
type Stats interface {
	Counts() (clans, players int)
	Pending() int
}

// Check pings one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Handler serves /metrics and /healthz.
type Handler struct {
	stats    Stats
	gatherer prometheus.Gatherer
	checks   map[string]Check
	timeout  time.Duration
}

// New creates a handler. checks are keyed by dependency name.
func New(stats Stats, gatherer prometheus.Gatherer, checks map[string]Check) *Handler {
	return &Handler{
		stats:    stats,
		gatherer: gatherer,
		checks:   checks,
		timeout:  2 * time.Second,
	}
}

// Register mounts the endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", h.HandleHealth)
}

// Router returns a chi router with the endpoints mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Clans   int               `json:"clans"`
	Players int               `json:"players"`
	Pending int               `json:"pending_writes"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HandleHealth handles GET /healthz. Any failing check yields 503.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	resp.Clans, resp.Players = h.stats.Counts()
	resp.Pending = h.stats.Pending()

	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("writing health response", "error", err)
	}
}

// NewServer builds an HTTP server with sane defaults.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
