package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for ledger mutations.
type Metrics struct {
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livrocaixa_ledger_operations_total",
		Help: "Ledger mutations partitioned by operation and outcome kind.",
	}, []string{"op", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livrocaixa_ledger_conflict_retries_total",
		Help: "Ledger transactions replayed after losing a concurrency race.",
	}, []string{"op"})
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(operations, retries)
	return &Metrics{operations: operations, retries: retries}
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}
