package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RuntimeMetrics struct {
	transactions *prometheus.CounterVec
	duration     prometheus.Histogram
	instructions *prometheus.CounterVec
	invocations  *prometheus.CounterVec
}

var (
	runtimeOnce     sync.Once
	runtimeRegistry *RuntimeMetrics
)

func Runtime() *RuntimeMetrics {
	runtimeOnce.Do(func() {
		runtimeRegistry = &RuntimeMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "runtime_transactions_total",
				Help: "Count of processed transactions by outcome.",
			}, []string{"status"}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "runtime_transaction_duration_seconds",
				Help:    "Wall time spent executing a transaction.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "runtime_instructions_total",
				Help: "Count of top-level instructions by program and outcome.",
			}, []string{"program", "status"}),
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "runtime_cross_program_invocations_total",
				Help: "Count of cross-program invocations by callee and signing mode.",
			}, []string{"program", "signed"}),
		}
		prometheus.MustRegister(
			runtimeRegistry.transactions,
			runtimeRegistry.duration,
			runtimeRegistry.instructions,
			runtimeRegistry.invocations,
		)
	})
	return runtimeRegistry
}

func (m *RuntimeMetrics) ObserveTransaction(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.transactions.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *RuntimeMetrics) ObserveInstruction(program, status string) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(program, status).Inc()
}

func (m *RuntimeMetrics) ObserveInvocation(program string, signed bool) {
	if m == nil {
		return
	}
	label := "false"
	if signed {
		label = "true"
	}
	m.invocations.WithLabelValues(program, label).Inc()
}
