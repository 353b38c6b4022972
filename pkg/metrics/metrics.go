package metrics

import "time"

// Recorder receives aggregation and execution events. Labels commonly carry
// "provider" and "chain".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

const (
	QuoteSucceeded   = "quote_succeeded"
	QuoteFailed      = "quote_failed"
	RoundDiscarded   = "round_discarded"
	QuoteLatency     = "quote"
	ApprovalSent     = "approval_sent"
	TransactionSent  = "transaction_sent"
	TransactionError = "transaction_failed"
)
