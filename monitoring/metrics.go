package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records marketplace operations. It satisfies the observer the
// marketplace service reports to.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	sideEffectErrors  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_operations_total",
				Help: "Total marketplace operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketplace_operation_duration_seconds",
				Help:    "Duration of marketplace operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),

		sideEffectErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_side_effect_failures_total",
				Help: "Post-commit side effects that failed",
			},
			[]string{"effect"},
		),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) SideEffectFailed(effect string) {
	m.sideEffectErrors.WithLabelValues(effect).Inc()
}
