// Package ledger contains the usage ledger the entitlement engine consumes:
// the per-account, per-resource consumption counters for a billing period.
//
// The ledger owns all mutable usage state. Its one required primitive is an
// atomic check-and-increment, so two concurrent requests for the last unit
// of a quota cannot both succeed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// ErrWouldExceedQuota is returned by TryIncrement when adding amount would
// take consumption past the limit. Nothing is consumed in that case.
var ErrWouldExceedQuota = errors.New("ledger: increment would exceed quota")

// Ledger is the usage ledger contract.
//
// A record that does not exist yet reads as zero consumption. Periods are
// identified by their start; rolling over to a new period starts a new
// record rather than resetting the old one.
type Ledger interface {
	// CurrentConsumption returns how much of kind the account has consumed
	// in the period starting at periodStart.
	CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error)

	// TryIncrement atomically adds amount to the account's consumption if
	// the result stays within limit, and returns the new consumption.
	// limit must be finite.
	TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error)
}

// PeriodStart returns the start of the billing period containing t: the
// first instant of its calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the first instant after the period starting at start.
func PeriodEnd(start time.Time) time.Time {
	return PeriodStart(start).AddDate(0, 1, 0)
}

func checkIncrement(amount int64, limit domain.Quota) error {
	if amount < 1 {
		return errors.New("ledger: amount must be positive")
	}
	if limit < 0 {
		return errors.New("ledger: limit must be finite")
	}
	if amount > int64(limit) {
		return ErrWouldExceedQuota
	}
	return nil
}
