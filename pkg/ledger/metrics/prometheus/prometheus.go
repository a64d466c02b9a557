package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements ledger.Metrics using Prometheus.
type Metrics struct {
	debitsTotal      *prometheus.CounterVec
	refundsTotal     *prometheus.CounterVec
	storeErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		debitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_debits_total",
			Help:      "Total number of generation credit debit attempts.",
		}, []string{"status"}),

		refundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_refunds_total",
			Help:      "Total number of compensating credit refunds.",
		}, []string{"status"}),

		storeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_store_errors_total",
			Help:      "Total number of ledger storage failures.",
		}, []string{"operation"}),
	}
}

// RecordDebit implements ledger.Metrics.
func (m *Metrics) RecordDebit(status string) {
	m.debitsTotal.WithLabelValues(status).Inc()
}

// RecordRefund implements ledger.Metrics.
func (m *Metrics) RecordRefund(status string) {
	m.refundsTotal.WithLabelValues(status).Inc()
}

// RecordStoreError implements ledger.Metrics.
func (m *Metrics) RecordStoreError(operation string) {
	m.storeErrorsTotal.WithLabelValues(operation).Inc()
}
