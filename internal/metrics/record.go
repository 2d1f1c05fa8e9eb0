package metrics

import (
	"strconv"
	"time"
)

// ObserveLedgerOperation records one usage ledger call.
func ObserveLedgerOperation(backend, op, outcome string, d time.Duration) {
	LedgerOperationDuration.WithLabelValues(backend, op).Observe(d.Seconds())
	LedgerOperationsTotal.WithLabelValues(backend, op, outcome).Inc()
}

// ConsumeRecorded records the outcome of a quota consumption.
// outcome is one of "ok", "unlimited", "exhausted", "unavailable", "invalid".
func ConsumeRecorded(resource, outcome string) {
	ConsumeTotal.WithLabelValues(resource, outcome).Inc()
}

// CapabilityChecked records a capability lookup.
func CapabilityChecked(capability string, allowed bool) {
	CapabilityChecksTotal.WithLabelValues(capability, strconv.FormatBool(allowed)).Inc()
}

// NotificationEmitted records a threshold event.
func NotificationEmitted(resource, kind string) {
	QuotaNotificationsTotal.WithLabelValues(resource, kind).Inc()
}

// NotificationDelivered records a successful delivery.
func NotificationDelivered(sink string) {
	NotificationDeliveriesTotal.WithLabelValues(sink, "delivered").Inc()
}

// NotificationFailed records a delivery that gave up.
func NotificationFailed(sink string) {
	NotificationDeliveriesTotal.WithLabelValues(sink, "failed").Inc()
}

// NotificationRetried records a delivery retry attempt.
func NotificationRetried(sink string) {
	NotificationRetriesTotal.WithLabelValues(sink).Inc()
}
