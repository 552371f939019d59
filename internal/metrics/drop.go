package metrics

import "stakeflow/logger"

// DropMetric identifies the metric name emitted when buffered messages are dropped.
type DropMetric string

const (
	// DropMetricRetryExpired records retry messages discarded because their TTL elapsed.
	DropMetricRetryExpired DropMetric = "retry_messages_expired"
	// DropMetricRetryCapacity records retry messages evicted to make room for newer ones.
	DropMetricRetryCapacity DropMetric = "retry_messages_evicted"
)

// EmitDropMetric logs and emits a metric representing a dropped message. The
// metric value is always incremented by one so callers should invoke this helper
// for each dropped message.
func EmitDropMetric(log *logger.Log, metric DropMetric, transactionID string) {
	fields := logger.Fields{}
	if transactionID != "" {
		fields["transaction_id"] = transactionID
	}

	EmitMetric(log, "retry_buffer", string(metric), 1, "counter", fields)
}
