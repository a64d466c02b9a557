package ledger

// Metrics defines the interface for tracking ledger operations.
// All methods are optional - the service gracefully handles nil metrics.
type Metrics interface {
	// RecordDebit records a generation credit debit attempt.
	// status: "success", "insufficient", or "error"
	RecordDebit(status string)

	// RecordRefund records a compensating credit refund.
	// status: "success" or "error"
	RecordRefund(status string)

	// RecordStoreError records a storage failure by operation name.
	RecordStoreError(operation string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordDebit(_ string)      {}
func (n *NoopMetrics) RecordRefund(_ string)     {}
func (n *NoopMetrics) RecordStoreError(_ string) {}
