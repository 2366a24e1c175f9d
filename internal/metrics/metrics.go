package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics provides observability for the clan registry.
type Metrics struct {
	Operations      *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistRetried  prometheus.Counter
	PendingWrites   prometheus.Gauge
	Clans           prometheus.Gauge
	Players         prometheus.Gauge
}

// New registers all registry metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clanreg_operations_total",
			Help: "Registry mutations by operation and result",
		}, []string{"op", "result"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clanreg_persist_failures_total",
			Help: "Failed durable store calls by store operation",
		}, []string{"op"}),
		PersistRetried: f.NewCounter(prometheus.CounterOpts{
			Name: "clanreg_persist_retried_total",
			Help: "Queued writes that succeeded on retry",
		}),
		PendingWrites: f.NewGauge(prometheus.GaugeOpts{
			Name: "clanreg_pending_writes",
			Help: "Writes waiting for a retry",
		}),
		Clans: f.NewGauge(prometheus.GaugeOpts{
			Name: "clanreg_clans",
			Help: "Clans held in memory",
		}),
		Players: f.NewGauge(prometheus.GaugeOpts{
			Name: "clanreg_players",
			Help: "Player records held in memory",
		}),
	}
}

// ObserveOperation counts one registry mutation.
func (m *Metrics) ObserveOperation(op, result string) {
	m.Operations.WithLabelValues(op, result).Inc()
}

// ObservePersistFailure counts one failed store call.
func (m *Metrics) ObservePersistFailure(op string) {
	m.PersistFailures.WithLabelValues(op).Inc()
}

// SetSizes records the in-memory entity counts.
func (m *Metrics) SetSizes(clans, players int) {
	m.Clans.Set(float64(clans))
	m.Players.Set(float64(players))
}
