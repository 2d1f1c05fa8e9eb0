package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Quota is a per-period allowance or a remaining balance. A negative value
// is never a count; Unlimited is the only negative value in use.
type Quota int64

// Unlimited is a sentinel value indicating no limit on a resource.
const Unlimited Quota = -1

const unlimitedLabel = "unlimited"

// IsUnlimited returns true if q represents unlimited.
func (q Quota) IsUnlimited() bool {
	return q == Unlimited
}

// String renders the quota for logs and display.
func (q Quota) String() string {
	if q.IsUnlimited() {
		return unlimitedLabel
	}
	return strconv.FormatInt(int64(q), 10)
}

// MarshalJSON encodes Unlimited as the string "unlimited" and finite values as numbers.
func (q Quota) MarshalJSON() ([]byte, error) {
	if q.IsUnlimited() {
		return json.Marshal(unlimitedLabel)
	}
	return json.Marshal(int64(q))
}

// UnmarshalJSON accepts a non-negative number or "unlimited".
func (q *Quota) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		return q.parse(label)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quota must be a number or %q", unlimitedLabel)
	}
	return q.set(n)
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (q *Quota) UnmarshalYAML(node *yaml.Node) error {
	return q.parse(node.Value)
}

// MarshalYAML mirrors MarshalJSON.
func (q Quota) MarshalYAML() (interface{}, error) {
	if q.IsUnlimited() {
		return unlimitedLabel, nil
	}
	return int64(q), nil
}

func (q *Quota) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedLabel) {
		*q = Unlimited
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("quota must be a number or %q, got %q", unlimitedLabel, s)
	}
	return q.set(n)
}

func (q *Quota) set(n int64) error {
	if n < 0 {
		return fmt.Errorf("quota must not be negative, got %d", n)
	}
	*q = Quota(n)
	return nil
}

// QuotaStatus is the limit and remaining balance of one resource kind.
type QuotaStatus struct {
	Resource  ResourceKind `json:"resource"`
	Limit     Quota        `json:"limit"`
	Remaining Quota        `json:"remaining"`
}

// Exhausted reports whether a finite quota has nothing left.
func (s QuotaStatus) Exhausted() bool {
	return !s.Remaining.IsUnlimited() && s.Remaining == 0
}

// RemainingFor computes the balance of a finite limit after consumed units.
// Over-consumption (possible after a tier downgrade) clamps to zero.
func RemainingFor(limit Quota, consumed int64) Quota {
	if limit.IsUnlimited() {
		return Unlimited
	}
	left := int64(limit) - consumed
	if left < 0 {
		return 0
	}
	return Quota(left)
}

// UsageRecord is the ledger's view of one account's consumption of one
// resource kind within a billing period.
type UsageRecord struct {
	AccountID   string
	Resource    ResourceKind
	PeriodStart time.Time
	Consumed    int64
}
