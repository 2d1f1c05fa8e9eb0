package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pixeldraft/internal"
	"github.com/DukeRupert/pixeldraft/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var october = time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)

func TestPeriodStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"mid month", time.Date(2026, 10, 15, 13, 4, 5, 0, time.UTC), october},
		{"first instant", october, october},
		{"last instant", time.Date(2026, 10, 31, 23, 59, 59, 0, time.UTC), october},
		{"other zone", time.Date(2026, 11, 1, 1, 0, 0, 0, time.FixedZone("CET", 2*3600)), october},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodStart(tt.in))
		})
	}
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), PeriodEnd(october))
}

// testLedgerContract exercises the behaviour every backend must share.
func testLedgerContract(t *testing.T, l Ledger) {
	ctx := context.Background()

	t.Run("missing record reads as zero", func(t *testing.T) {
		n, err := l.CurrentConsumption(ctx, uuid.NewString(), domain.ResourceAIScan, october)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("increments up to the limit", func(t *testing.T) {
		acct := uuid.NewString()
		for i := int64(1); i <= 3; i++ {
			n, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 1, 3)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
		_, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 1, 3)
		assert.ErrorIs(t, err, ErrWouldExceedQuota)

		n, err := l.CurrentConsumption(ctx, acct, domain.ResourceAIScan, october)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("overshoot consumes nothing", func(t *testing.T) {
		acct := uuid.NewString()
		_, err := l.TryIncrement(ctx, acct, domain.ResourceGenerationExport, october, 4, 5)
		require.NoError(t, err)

		_, err = l.TryIncrement(ctx, acct, domain.ResourceGenerationExport, october, 2, 5)
		assert.ErrorIs(t, err, ErrWouldExceedQuota)

		n, err := l.CurrentConsumption(ctx, acct, domain.ResourceGenerationExport, october)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("first increment above limit creates nothing", func(t *testing.T) {
		acct := uuid.NewString()
		_, err := l.TryIncrement(ctx, acct, domain.ResourceAPICall, october, 1, 0)
		assert.ErrorIs(t, err, ErrWouldExceedQuota)

		n, err := l.CurrentConsumption(ctx, acct, domain.ResourceAPICall, october)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("periods and kinds are independent", func(t *testing.T) {
		acct := uuid.NewString()
		november := PeriodEnd(october)

		_, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 2, 2)
		require.NoError(t, err)

		n, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, november, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = l.CurrentConsumption(ctx, acct, domain.ResourceAPICall, october)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("huge amounts cannot wrap the counter", func(t *testing.T) {
		acct := uuid.NewString()
		_, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 1, 10)
		require.NoError(t, err)

		for _, amount := range []int64{math.MaxInt64, math.MaxInt64 - 1, 10} {
			_, err = l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, amount, 10)
			assert.ErrorIs(t, err, ErrWouldExceedQuota, "amount %d", amount)
		}

		n, err := l.CurrentConsumption(ctx, acct, domain.ResourceAIScan, october)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		// The remaining headroom is still spendable, and nothing beyond it.
		n, err = l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 9, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
		_, err = l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 1, 10)
		assert.ErrorIs(t, err, ErrWouldExceedQuota)
	})

	t.Run("rejects bad arguments", func(t *testing.T) {
		_, err := l.TryIncrement(ctx, uuid.NewString(), domain.ResourceAIScan, october, 0, 10)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrWouldExceedQuota))

		_, err = l.TryIncrement(ctx, uuid.NewString(), domain.ResourceAIScan, october, 1, domain.Unlimited)
		assert.Error(t, err)
	})

	t.Run("concurrent increments never pass the limit", func(t *testing.T) {
		acct := uuid.NewString()
		const workers = 16
		const limit = 5

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.TryIncrement(ctx, acct, domain.ResourceAIScan, october, 1, limit)
				if err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrWouldExceedQuota)
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, ok)
		n, err := l.CurrentConsumption(ctx, acct, domain.ResourceAIScan, october)
		require.NoError(t, err)
		assert.Equal(t, int64(limit), n)
	})
}

func TestMemoryLedger(t *testing.T) {
	testLedgerContract(t, NewMemory())
}

func TestMemoryLedger_Set(t *testing.T) {
	m := NewMemory()
	m.Set("acct", domain.ResourceAIScan, october.Add(48*time.Hour), 8)

	n, err := m.CurrentConsumption(context.Background(), "acct", domain.ResourceAIScan, october)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func TestMemoryLedger_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().TryIncrement(ctx, "acct", domain.ResourceAIScan, october, 1, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteLedger(t *testing.T) {
	db, err := internal.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, internal.RunMigrations(db, "sqlite3"))

	l, err := NewSQLLedger(db, DialectSQLite, testLogger)
	require.NoError(t, err)
	testLedgerContract(t, l)
}

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := internal.OpenPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, internal.RunMigrations(db, "postgres"))

	l, err := NewSQLLedger(db, DialectPostgres, testLogger)
	require.NoError(t, err)
	testLedgerContract(t, l)
}

func TestRedisLedger(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := OpenRedis(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	testLedgerContract(t, NewRedisLedger(client, "pixeldraft-test-"+uuid.NewString(), testLogger))
}

func TestNewSQLLedger_UnknownDialect(t *testing.T) {
	_, err := NewSQLLedger(nil, "oracle", testLogger)
	assert.Error(t, err)
}

func TestInstrumented_PassesThrough(t *testing.T) {
	l := WithMetrics(NewMemory(), "memory")
	n, err := l.TryIncrement(context.Background(), "acct", domain.ResourceAIScan, october, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = l.TryIncrement(context.Background(), "acct", domain.ResourceAIScan, october, 1, 1)
	assert.ErrorIs(t, err, ErrWouldExceedQuota)
}
