package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/metrics"
)

// Instrumented records latency and outcome of every call to the wrapped
// ledger under the given backend label.
type Instrumented struct {
	next    Ledger
	backend string
}

// WithMetrics wraps l with Prometheus instrumentation.
func WithMetrics(l Ledger, backend string) *Instrumented {
	return &Instrumented{next: l, backend: backend}
}

// CurrentConsumption implements Ledger.
func (i *Instrumented) CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error) {
	start := time.Now()
	n, err := i.next.CurrentConsumption(ctx, accountID, kind, periodStart)
	metrics.ObserveLedgerOperation(i.backend, "current_consumption", outcome(err), time.Since(start))
	return n, err
}

// TryIncrement implements Ledger.
func (i *Instrumented) TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error) {
	start := time.Now()
	n, err := i.next.TryIncrement(ctx, accountID, kind, periodStart, amount, limit)
	metrics.ObserveLedgerOperation(i.backend, "try_increment", outcome(err), time.Since(start))
	return n, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrWouldExceedQuota):
		return "would_exceed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
