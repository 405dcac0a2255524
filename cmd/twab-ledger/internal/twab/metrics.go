package twab

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	transitions   *prometheus.CounterVec
	observations  *prometheus.CounterVec
	queryDuration *prometheus.SummaryVec
}

func newMetrics(namespace string, registry prometheus.Registerer) *metrics {
	m := &metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "twab", Name: "transitions_total",
			Help: "committed ledger transitions by operation",
		}, []string{"op"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "twab", Name: "observations_total",
			Help: "observations appended to a ring, or compacted into the newest one",
		}, []string{"type"}),
		queryDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace, Subsystem: "twab", Name: "query_duration_seconds",
			Help:       "ledger query durations, sliding window = 10m",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"query"}),
	}
	if registry != nil {
		registry.MustRegister(m.transitions, m.observations, m.queryDuration)
	}
	return m
}

func (m *metrics) observe(op string, tx *writeTx) {
	m.transitions.WithLabelValues(op).Inc()
	m.observations.WithLabelValues("appended").Add(float64(tx.appended))
	m.observations.WithLabelValues("compacted").Add(float64(tx.compacted))
}

func (m *metrics) observeQuery(query string, startTime time.Time) {
	m.queryDuration.WithLabelValues(query).Observe(time.Since(startTime).Seconds())
}
