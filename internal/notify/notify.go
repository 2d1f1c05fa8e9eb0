// Package notify derives quota alerts ("2 scans left") and delivers them to
// notification sinks.
//
// The Notifier is pure and stateless: callers pass the balance before and
// after a consumption and get at most one event per threshold crossing.
// Delivery is asynchronous through a Dispatcher.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// DefaultThreshold is the low-quota threshold for kinds without one.
const DefaultThreshold int64 = 2

// Kind classifies an event.
type Kind string

const (
	KindLow       Kind = "low"
	KindExhausted Kind = "exhausted"
)

// Event is one quota alert.
type Event struct {
	ID        uuid.UUID           `json:"id"`
	AccountID string              `json:"accountId"`
	Email     string              `json:"-"`
	Resource  domain.ResourceKind `json:"resource"`
	Kind      Kind                `json:"kind"`
	Remaining domain.Quota        `json:"remaining"`
	Limit     domain.Quota        `json:"limit"`
	Tier      domain.Tier         `json:"tier"`
	At        time.Time           `json:"at"`
}

// Notifier evaluates threshold crossings.
type Notifier struct {
	thresholds map[domain.ResourceKind]int64
}

// NewNotifier returns a Notifier with per-kind thresholds. Kinds missing
// from thresholds use DefaultThreshold.
func NewNotifier(thresholds map[domain.ResourceKind]int64) *Notifier {
	t := make(map[domain.ResourceKind]int64, len(thresholds))
	for k, v := range thresholds {
		t[k] = v
	}
	return &Notifier{thresholds: t}
}

// Threshold returns the low-quota threshold for kind.
func (n *Notifier) Threshold(kind domain.ResourceKind) int64 {
	if v, ok := n.thresholds[kind]; ok {
		return v
	}
	return DefaultThreshold
}

// Evaluate compares the balance before and after a change. It reports an
// exhausted event when current reaches zero from a non-zero balance, and a
// low event when current enters (0, threshold] from above it. Unlimited and
// unchanged balances never produce events.
func (n *Notifier) Evaluate(kind domain.ResourceKind, previous, current domain.Quota) (Kind, bool) {
	if current.IsUnlimited() || current == previous {
		return "", false
	}
	if current == 0 {
		return KindExhausted, true
	}

	threshold := n.Threshold(kind)
	inBand := func(q domain.Quota) bool {
		return !q.IsUnlimited() && q > 0 && int64(q) <= threshold
	}
	if inBand(current) && !inBand(previous) && (previous.IsUnlimited() || previous > current) {
		return KindLow, true
	}
	return "", false
}

// PreviousRemaining reconstructs the balance before a successful
// consumption of amount left remaining.
func PreviousRemaining(remaining domain.Quota, amount int64) domain.Quota {
	if remaining.IsUnlimited() {
		return domain.Unlimited
	}
	return remaining + domain.Quota(amount)
}

// NewEvent builds an event for an evaluated crossing.
func NewEvent(accountID, email string, tier domain.Tier, status domain.QuotaStatus, kind Kind, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		AccountID: accountID,
		Email:     email,
		Resource:  status.Resource,
		Kind:      kind,
		Remaining: status.Remaining,
		Limit:     status.Limit,
		Tier:      tier,
		At:        at,
	}
}

// ParseThresholds parses "ai_scan=2,api_call=50".
func ParseThresholds(s string) (map[domain.ResourceKind]int64, error) {
	out := make(map[domain.ResourceKind]int64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("threshold %q: want kind=value", part)
		}
		kind, ok := domain.ParseResourceKind(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("threshold %q: unknown resource kind", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("threshold %q: value must be a non-negative integer", part)
		}
		out[kind] = n
	}
	return out, nil
}
