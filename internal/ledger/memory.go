package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

type memoryKey struct {
	accountID string
	kind      domain.ResourceKind
	period    int64
}

// Memory is an in-process Ledger. It is the development backend and the
// reference for the persistent ones; counters are lost on restart.
type Memory struct {
	mu     sync.Mutex
	counts map[memoryKey]int64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{counts: make(map[memoryKey]int64)}
}

func keyFor(accountID string, kind domain.ResourceKind, periodStart time.Time) memoryKey {
	return memoryKey{accountID: accountID, kind: kind, period: PeriodStart(periodStart).Unix()}
}

// CurrentConsumption implements Ledger.
func (m *Memory) CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[keyFor(accountID, kind, periodStart)], nil
}

// TryIncrement implements Ledger.
func (m *Memory) TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error) {
	if err := checkIncrement(amount, limit); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Compare against the headroom; current+amount can overflow.
	key := keyFor(accountID, kind, periodStart)
	current := m.counts[key]
	if amount > int64(limit)-current {
		return 0, ErrWouldExceedQuota
	}
	m.counts[key] = current + amount
	return current + amount, nil
}

// Set overwrites a counter. It exists for seeding development data and
// tests; the engine never calls it.
func (m *Memory) Set(accountID string, kind domain.ResourceKind, periodStart time.Time, consumed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[keyFor(accountID, kind, periodStart)] = consumed
}
