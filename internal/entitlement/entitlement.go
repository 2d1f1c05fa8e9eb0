// Package entitlement resolves what an account may do right now: its
// effective tier, capability answers and quota balances.
//
// A Resolver holds the process-wide collaborators (catalog, ledger, dev
// mode flag). It hands out a Context per request; a Context belongs to one
// request and must not be shared between goroutines.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/ledger"
	"github.com/DukeRupert/pixeldraft/internal/metrics"
)

// DefaultLedgerTimeout bounds each ledger call when Config leaves it unset.
const DefaultLedgerTimeout = 2 * time.Second

// Config holds the Resolver's collaborators.
type Config struct {
	Catalog *catalog.Catalog
	Ledger  ledger.Ledger
	DevMode *DevMode

	// LedgerTimeout bounds every ledger call. Expiry surfaces as
	// EUNAVAILABLE instead of blocking the request.
	LedgerTimeout time.Duration

	// Now returns the current time; it decides the billing period.
	Now func() time.Time

	Logger *slog.Logger
}

// Resolver builds per-request Contexts.
type Resolver struct {
	catalog *catalog.Catalog
	ledger  ledger.Ledger
	devMode *DevMode
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewResolver validates cfg and returns a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("entitlement: catalog is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("entitlement: ledger is required")
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = DefaultLedgerTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		catalog: cfg.Catalog,
		ledger:  cfg.Ledger,
		devMode: cfg.DevMode,
		timeout: cfg.LedgerTimeout,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}, nil
}

// Catalog returns the catalog contexts resolve against.
func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }

// DevMode returns the shared dev mode flag.
func (r *Resolver) DevMode() *DevMode { return r.devMode }

// ForAccount returns a Context for an account whose subscription tier is
// realTier. override is a previously stored developer override, or empty;
// it only takes effect while dev mode is on.
func (r *Resolver) ForAccount(accountID string, realTier domain.Tier, override domain.Tier) *Context {
	c := &Context{
		resolver:  r,
		accountID: accountID,
		realTier:  realTier,
		logger:    r.logger.With("account_id", accountID),
	}
	if override.Valid() {
		c.override = override
	}
	return c
}

// =============================================================================
// Context
// =============================================================================

// Context answers entitlement questions for one account within one request.
type Context struct {
	resolver  *Resolver
	accountID string
	realTier  domain.Tier
	override  domain.Tier
	logger    *slog.Logger
}

// AccountID returns the account the context resolves for.
func (c *Context) AccountID() string { return c.accountID }

// RealTier returns the account's subscription tier.
func (c *Context) RealTier() domain.Tier { return c.realTier }

// Override returns the stored developer override, which may be inert.
func (c *Context) Override() domain.Tier { return c.override }

// SetOverride simulates another tier. It silently does nothing unless dev
// mode is on or when tier is unknown. An empty tier clears the override.
func (c *Context) SetOverride(tier domain.Tier) {
	if !c.resolver.devMode.Enabled() {
		c.logger.Debug("tier override ignored, dev mode off", "tier", tier)
		return
	}
	if tier != "" && !tier.Valid() {
		c.logger.Debug("tier override ignored, unknown tier", "tier", tier)
		return
	}
	c.override = tier
	c.logger.Info("tier override set", "real_tier", c.realTier, "override", tier)
}

// EffectiveTier returns the tier every answer is based on. It is derived on
// each call: the override while dev mode is on, the real tier otherwise.
func (c *Context) EffectiveTier() domain.Tier {
	if c.override != "" && c.resolver.devMode.Enabled() {
		return c.override
	}
	return c.realTier
}

// IsSimulated reports whether answers currently come from an override.
func (c *Context) IsSimulated() bool {
	return c.EffectiveTier() != c.realTier
}

// Catalog returns the catalog answers are resolved against.
func (c *Context) Catalog() *catalog.Catalog { return c.resolver.catalog }

// Definition returns the catalog definition of the effective tier.
func (c *Context) Definition() catalog.TierDefinition {
	return c.resolver.catalog.DefinitionFor(c.EffectiveTier())
}

// HasCapability reports whether the effective tier grants capability. It is
// a catalog lookup and never touches the ledger.
func (c *Context) HasCapability(capability domain.Capability) bool {
	allowed := c.Definition().HasCapability(capability)
	metrics.CapabilityChecked(capabilityLabel(capability), allowed)
	return allowed
}

// Limit returns the effective tier's quota for kind.
func (c *Context) Limit(kind domain.ResourceKind) domain.Quota {
	return c.Definition().Quota(kind)
}

// QuotaStatus returns the limit and remaining balance of kind. Unlimited
// quotas are answered without consulting the ledger.
func (c *Context) QuotaStatus(ctx context.Context, kind domain.ResourceKind) (domain.QuotaStatus, error) {
	const op = "entitlement.quota_status"

	if !kind.Valid() {
		return domain.QuotaStatus{}, domain.Invalid(op, "Unknown resource kind.")
	}

	limit := c.Limit(kind)
	status := domain.QuotaStatus{Resource: kind, Limit: limit, Remaining: domain.Unlimited}
	if limit.IsUnlimited() {
		return status, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.resolver.timeout)
	defer cancel()

	consumed, err := c.resolver.ledger.CurrentConsumption(ctx, c.accountID, kind, c.period())
	if err != nil {
		c.logger.Warn("ledger read failed", "resource", kind, "error", err)
		return domain.QuotaStatus{}, domain.LedgerUnavailable(err, op)
	}

	status.Remaining = domain.RemainingFor(limit, consumed)
	return status, nil
}

// Consume spends amount units of kind and returns what remains. Unlimited
// quotas always succeed without touching the ledger. A finite quota is
// checked and incremented atomically by the ledger; nothing is spent when
// amount does not fit.
func (c *Context) Consume(ctx context.Context, kind domain.ResourceKind, amount int64) (domain.Quota, error) {
	const op = "entitlement.consume"

	if !kind.Valid() {
		metrics.ConsumeRecorded("unknown", "invalid")
		return 0, domain.Invalid(op, "Unknown resource kind.")
	}
	if amount < 1 {
		metrics.ConsumeRecorded(string(kind), "invalid")
		return 0, domain.Invalid(op, "Amount must be at least 1.")
	}

	limit := c.Limit(kind)
	if limit.IsUnlimited() {
		metrics.ConsumeRecorded(string(kind), "unlimited")
		return domain.Unlimited, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.resolver.timeout)
	defer cancel()

	consumed, err := c.resolver.ledger.TryIncrement(ctx, c.accountID, kind, c.period(), amount, limit)
	switch {
	case errors.Is(err, ledger.ErrWouldExceedQuota):
		metrics.ConsumeRecorded(string(kind), "exhausted")
		c.logger.Info("quota exhausted",
			"resource", kind,
			"tier", c.EffectiveTier(),
			"limit", limit,
			"amount", amount,
		)
		return 0, domain.QuotaExhausted(op, kind)
	case err != nil:
		metrics.ConsumeRecorded(string(kind), "unavailable")
		c.logger.Warn("ledger increment failed", "resource", kind, "error", err)
		return 0, domain.LedgerUnavailable(err, op)
	}

	metrics.ConsumeRecorded(string(kind), "ok")
	return domain.RemainingFor(limit, consumed), nil
}

func (c *Context) period() time.Time {
	return ledger.PeriodStart(c.resolver.now())
}

// capabilityLabel keeps metric cardinality bounded for ids arriving from
// request paths.
func capabilityLabel(capability domain.Capability) string {
	for _, known := range domain.AllCapabilities() {
		if capability == known {
			return string(capability)
		}
	}
	return "unknown"
}
