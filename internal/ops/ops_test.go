package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	clans, players, pending int
}

func (s fakeStats) Counts() (int, int) { return s.clans, s.players }
func (s fakeStats) Pending() int       { return s.pending }

func TestHandleHealth_OK(t *testing.T) {
	h := New(fakeStats{clans: 2, players: 5, pending: 1}, prometheus.NewRegistry(), map[string]Check{
		"postgres": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Clans)
	assert.Equal(t, 5, resp.Players)
	assert.Equal(t, 1, resp.Pending)
	assert.Equal(t, map[string]string{"postgres": "ok"}, resp.Checks)
}

func TestHandleHealth_FailingCheck(t *testing.T) {
	h := New(fakeStats{}, prometheus.NewRegistry(), map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
	assert.Equal(t, "ok", resp.Checks["postgres"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "clanreg_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := New(fakeStats{}, reg, nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clanreg_test_total 1")
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv) }()

	cancel()
	assert.NoError(t, <-done)
}
