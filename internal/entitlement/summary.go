package entitlement

import (
	"context"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// CapabilityGrant is one row of the capability matrix.
type CapabilityGrant struct {
	Capability domain.Capability `json:"capability"`
	Allowed    bool              `json:"allowed"`
}

// QuotaSummary is a quota status that may be unverified when the ledger
// could not be read. Remaining is nil exactly when Verified is false, so an
// unreadable balance never looks exhausted.
type QuotaSummary struct {
	Resource  domain.ResourceKind `json:"resource"`
	Limit     domain.Quota        `json:"limit"`
	Remaining *domain.Quota       `json:"remaining"`
	Verified  bool                `json:"verified"`
}

// Summary is everything the dashboard home page shows at once.
type Summary struct {
	Tier         domain.Tier       `json:"tier"`
	RealTier     domain.Tier       `json:"realTier"`
	IsSimulated  bool              `json:"isSimulated"`
	Capabilities []CapabilityGrant `json:"capabilities"`
	Quotas       []QuotaSummary    `json:"quotas"`
}

// Summary collects the capability matrix and every quota. A ledger failure
// does not fail the summary: capability rows are always present and the
// affected quota is reported unverified.
func (c *Context) Summary(ctx context.Context) Summary {
	s := Summary{
		Tier:        c.EffectiveTier(),
		RealTier:    c.realTier,
		IsSimulated: c.IsSimulated(),
	}

	for _, capability := range c.resolver.catalog.Capabilities() {
		s.Capabilities = append(s.Capabilities, CapabilityGrant{
			Capability: capability,
			Allowed:    c.HasCapability(capability),
		})
	}

	for _, kind := range domain.AllResourceKinds() {
		status, err := c.QuotaStatus(ctx, kind)
		if err != nil {
			s.Quotas = append(s.Quotas, QuotaSummary{Resource: kind, Limit: c.Limit(kind)})
			continue
		}
		remaining := status.Remaining
		s.Quotas = append(s.Quotas, QuotaSummary{
			Resource:  kind,
			Limit:     status.Limit,
			Remaining: &remaining,
			Verified:  true,
		})
	}

	return s
}
