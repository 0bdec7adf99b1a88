package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	operations *prometheus.CounterVec
	funded     prometheus.Counter
	disbursed  prometheus.Counter
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_operations_total",
				Help: "Count of escrow program operations by instruction and result code.",
			}, []string{"op", "result"}),
			funded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_funded_amount_total",
				Help: "Token units credited to jobs by successful FundJob executions.",
			}),
			disbursed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_disbursed_amount_total",
				Help: "Token units released by successful DisburseFunds executions.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.funded,
			escrowRegistry.disbursed,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *EscrowMetrics) ObserveFunded(amount uint64) {
	if m == nil {
		return
	}
	m.funded.Add(float64(amount))
}

func (m *EscrowMetrics) ObserveDisbursed(amount uint64) {
	if m == nil {
		return
	}
	m.disbursed.Add(float64(amount))
}
