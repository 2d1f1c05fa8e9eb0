package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/ledger"
)

var now = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

// countingLedger records calls and delegates to an in-memory ledger.
type countingLedger struct {
	next  ledger.Ledger
	calls atomic.Int64
}

func (l *countingLedger) CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error) {
	l.calls.Add(1)
	return l.next.CurrentConsumption(ctx, accountID, kind, periodStart)
}

func (l *countingLedger) TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error) {
	l.calls.Add(1)
	return l.next.TryIncrement(ctx, accountID, kind, periodStart, amount, limit)
}

// downLedger fails every call.
type downLedger struct{}

func (downLedger) CurrentConsumption(context.Context, string, domain.ResourceKind, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func (downLedger) TryIncrement(context.Context, string, domain.ResourceKind, time.Time, int64, domain.Quota) (int64, error) {
	return 0, errors.New("connection refused")
}

// hangingLedger blocks until the caller gives up.
type hangingLedger struct{}

func (hangingLedger) CurrentConsumption(ctx context.Context, _ string, _ domain.ResourceKind, _ time.Time) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (hangingLedger) TryIncrement(ctx context.Context, _ string, _ domain.ResourceKind, _ time.Time, _ int64, _ domain.Quota) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func newResolver(t *testing.T, l ledger.Ledger, dev *DevMode) *Resolver {
	t.Helper()
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	r, err := NewResolver(Config{
		Catalog:       cat,
		Ledger:        l,
		DevMode:       dev,
		LedgerTimeout: 50 * time.Millisecond,
		Now:           func() time.Time { return now },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func TestNewResolver_RequiresCollaborators(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)

	_, err = NewResolver(Config{Ledger: ledger.NewMemory()})
	assert.Error(t, err)
	_, err = NewResolver(Config{Catalog: cat})
	assert.Error(t, err)
}

func TestHasCapability_MatchesCatalogForEveryTier(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	r := newResolver(t, downLedger{}, nil)

	for _, tier := range domain.AllTiers() {
		ec := r.ForAccount("acct", tier, "")
		for _, capability := range domain.AllCapabilities() {
			want := cat.DefinitionFor(tier).HasCapability(capability)
			assert.Equal(t, want, ec.HasCapability(capability), "tier %s capability %s", tier, capability)
		}
		assert.False(t, ec.HasCapability("time_travel"))
	}
}

func TestUnlimited_NeverTouchesLedger(t *testing.T) {
	l := &countingLedger{next: ledger.NewMemory()}
	ec := newResolver(t, l, nil).ForAccount("acct", domain.TierBusiness, "")

	for i := 0; i < 100; i++ {
		remaining, err := ec.Consume(context.Background(), domain.ResourceAIScan, 50)
		require.NoError(t, err)
		assert.True(t, remaining.IsUnlimited())
	}
	status, err := ec.QuotaStatus(context.Background(), domain.ResourceGenerationExport)
	require.NoError(t, err)
	assert.True(t, status.Limit.IsUnlimited())
	assert.True(t, status.Remaining.IsUnlimited())

	assert.Equal(t, int64(0), l.calls.Load())
}

func TestUnlimited_SurvivesLedgerOutage(t *testing.T) {
	ec := newResolver(t, downLedger{}, nil).ForAccount("acct", domain.TierPro, "")

	remaining, err := ec.Consume(context.Background(), domain.ResourceGenerationExport, 1)
	require.NoError(t, err)
	assert.True(t, remaining.IsUnlimited())
}

func TestSetOverride_InertWhenDevModeOff(t *testing.T) {
	ec := newResolver(t, ledger.NewMemory(), NewDevMode(false)).ForAccount("acct", domain.TierStarter, "")

	ec.SetOverride(domain.TierBusiness)

	assert.Equal(t, domain.TierStarter, ec.EffectiveTier())
	assert.False(t, ec.IsSimulated())
	assert.False(t, ec.HasCapability(domain.CapabilityTeamManagement))
	assert.Equal(t, domain.Tier(""), ec.Override())
}

func TestSetOverride_AppliesWhenDevModeOn(t *testing.T) {
	dev := NewDevMode(true)
	ec := newResolver(t, ledger.NewMemory(), dev).ForAccount("acct", domain.TierStarter, "")

	ec.SetOverride(domain.TierBusiness)
	assert.Equal(t, domain.TierBusiness, ec.EffectiveTier())
	assert.True(t, ec.IsSimulated())
	assert.True(t, ec.HasCapability(domain.CapabilityTeamManagement))

	// Turning dev mode off takes effect on the next query.
	dev.Set(false)
	assert.Equal(t, domain.TierStarter, ec.EffectiveTier())
	assert.False(t, ec.HasCapability(domain.CapabilityTeamManagement))

	dev.Set(true)
	ec.SetOverride("")
	assert.Equal(t, domain.TierStarter, ec.EffectiveTier())
}

func TestSetOverride_IgnoresUnknownTier(t *testing.T) {
	ec := newResolver(t, ledger.NewMemory(), NewDevMode(true)).ForAccount("acct", domain.TierPro, "")
	ec.SetOverride("enterprise")
	assert.Equal(t, domain.TierPro, ec.EffectiveTier())
}

func TestForAccount_StoredOverrideNeedsDevMode(t *testing.T) {
	dev := NewDevMode(false)
	r := newResolver(t, ledger.NewMemory(), dev)

	ec := r.ForAccount("acct", domain.TierStarter, domain.TierPro)
	assert.Equal(t, domain.TierStarter, ec.EffectiveTier())

	dev.Set(true)
	assert.Equal(t, domain.TierPro, ec.EffectiveTier())

	ec = r.ForAccount("acct", domain.TierStarter, "bogus")
	assert.Equal(t, domain.TierStarter, ec.EffectiveTier())
}

func TestConsume_ExhaustedAtLimit(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 10)
	ec := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "")

	_, err := ec.Consume(context.Background(), domain.ResourceAIScan, 1)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
}

func TestConsume_LastUnitSucceedsExactlyOnce(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 9)
	ec := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "")

	remaining, err := ec.Consume(context.Background(), domain.ResourceAIScan, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Quota(0), remaining)

	_, err = ec.Consume(context.Background(), domain.ResourceAIScan, 1)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
}

func TestConsume_OvershootSpendsNothing(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 8)
	ec := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "")

	_, err := ec.Consume(context.Background(), domain.ResourceAIScan, 3)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))

	status, err := ec.QuotaStatus(context.Background(), domain.ResourceAIScan)
	require.NoError(t, err)
	assert.Equal(t, domain.Quota(2), status.Remaining)
}

func TestConsume_ConcurrentLastUnit(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 9)
	r := newResolver(t, mem, nil)

	const callers = 20
	var wg sync.WaitGroup
	var ok, exhausted atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each request gets its own context, as the middleware does.
			ec := r.ForAccount("acct", domain.TierStarter, "")
			_, err := ec.Consume(context.Background(), domain.ResourceAIScan, 1)
			if err == nil {
				ok.Add(1)
			} else if domain.ErrorCode(err) == domain.EQUOTA {
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(callers-1), exhausted.Load())
}

func TestConsume_HugeAmountCannotUnlockQuota(t *testing.T) {
	ec := newResolver(t, ledger.NewMemory(), nil).ForAccount("acct", domain.TierStarter, "")
	ctx := context.Background()

	_, err := ec.Consume(ctx, domain.ResourceAIScan, 1)
	require.NoError(t, err)

	_, err = ec.Consume(ctx, domain.ResourceAIScan, math.MaxInt64)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))

	spent := 0
	for i := 0; i < 100; i++ {
		if _, err := ec.Consume(ctx, domain.ResourceAIScan, 1); err == nil {
			spent++
		}
	}
	assert.Equal(t, 9, spent, "only the remaining starter allowance may be spent")

	status, err := ec.QuotaStatus(ctx, domain.ResourceAIScan)
	require.NoError(t, err)
	assert.Equal(t, domain.Quota(0), status.Remaining)
}

func TestConsume_RejectsBadInput(t *testing.T) {
	ec := newResolver(t, ledger.NewMemory(), nil).ForAccount("acct", domain.TierStarter, "")

	_, err := ec.Consume(context.Background(), domain.ResourceAIScan, 0)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = ec.Consume(context.Background(), "gpu_minutes", 1)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestLedgerFailures_FailClosedForQuotaOnly(t *testing.T) {
	tests := []struct {
		name   string
		ledger ledger.Ledger
	}{
		{"down", downLedger{}},
		{"timeout", hangingLedger{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newResolver(t, tt.ledger, nil).ForAccount("acct", domain.TierPro, "")

			_, err := ec.Consume(context.Background(), domain.ResourceAIScan, 1)
			assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

			_, err = ec.QuotaStatus(context.Background(), domain.ResourceAIScan)
			assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

			assert.True(t, ec.HasCapability(domain.CapabilityAPIAccess))
		})
	}
}

func TestQuotaStatus_ClampsOverConsumption(t *testing.T) {
	mem := ledger.NewMemory()
	// Consumed on pro, then downgraded to starter.
	mem.Set("acct", domain.ResourceAIScan, now, 150)
	ec := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "")

	status, err := ec.QuotaStatus(context.Background(), domain.ResourceAIScan)
	require.NoError(t, err)
	assert.Equal(t, domain.Quota(10), status.Limit)
	assert.Equal(t, domain.Quota(0), status.Remaining)
	assert.True(t, status.Exhausted())
}

func TestQuotaStatus_StarterScenario(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 8)
	ec := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "")

	status, err := ec.QuotaStatus(context.Background(), domain.ResourceAIScan)
	require.NoError(t, err)
	assert.Equal(t, domain.Quota(10), status.Limit)
	assert.Equal(t, domain.Quota(2), status.Remaining)
}

func TestSummary_ReportsUnverifiedQuotas(t *testing.T) {
	ec := newResolver(t, downLedger{}, nil).ForAccount("acct", domain.TierPro, "")

	s := ec.Summary(context.Background())
	assert.Equal(t, domain.TierPro, s.Tier)
	assert.False(t, s.IsSimulated)
	assert.Len(t, s.Capabilities, len(domain.AllCapabilities()))
	require.Len(t, s.Quotas, len(domain.AllResourceKinds()))

	for _, q := range s.Quotas {
		if q.Limit.IsUnlimited() {
			assert.True(t, q.Verified, "%s", q.Resource)
			require.NotNil(t, q.Remaining, "%s", q.Resource)
			assert.True(t, q.Remaining.IsUnlimited(), "%s", q.Resource)
		} else {
			assert.False(t, q.Verified, "%s", q.Resource)
			assert.Nil(t, q.Remaining, "unverified %s must not report a balance", q.Resource)
		}
	}

	out, err := json.Marshal(s.Quotas)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"remaining":null,"verified":false`)
}

func TestSummary_VerifiedQuotasCarryBalance(t *testing.T) {
	mem := ledger.NewMemory()
	mem.Set("acct", domain.ResourceAIScan, now, 8)
	s := newResolver(t, mem, nil).ForAccount("acct", domain.TierStarter, "").Summary(context.Background())

	for _, q := range s.Quotas {
		if q.Resource != domain.ResourceAIScan {
			continue
		}
		assert.True(t, q.Verified)
		require.NotNil(t, q.Remaining)
		assert.Equal(t, domain.Quota(2), *q.Remaining)
	}
}

func TestDevMode(t *testing.T) {
	var nilFlag *DevMode
	assert.False(t, nilFlag.Enabled())

	d := NewDevMode(false)
	assert.True(t, d.Set(true))
	assert.False(t, d.Set(true))
	assert.True(t, d.Enabled())
}
