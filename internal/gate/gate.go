// Package gate turns entitlement answers into presentation-ready
// directives: whether an action is allowed, why not, and what to upsell.
//
// Directives are derived per query and never stored. Pages consume these
// instead of reading the catalog or ledger themselves.
package gate

import (
	"context"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/entitlement"
)

// Reason explains a directive.
type Reason string

const (
	ReasonNone           Reason = "none"
	ReasonLocked         Reason = "locked"
	ReasonQuotaExhausted Reason = "quota_exhausted"

	// ReasonQuotaUnverified denies a metered action because the ledger
	// could not be read. It asks the user to retry, not to upgrade.
	ReasonQuotaUnverified Reason = "quota_unverified"
)

// Directive tells a page how to render a gated feature.
type Directive struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`

	// Remaining is the balance of the gate's resource kind. It is nil when
	// the gate meters nothing or the balance could not be verified.
	Remaining *domain.Quota `json:"remaining"`

	// Badge is the lowest tier that unlocks a locked capability.
	Badge      *domain.Tier `json:"badge"`
	BadgeLabel string       `json:"badgeLabel,omitempty"`

	UpsellCTA *string `json:"upsellCta"`
}

var titleCaser = cases.Title(language.English)

// TierLabel renders a tier for display, e.g. "pro" as "Pro".
func TierLabel(tier domain.Tier) string {
	return titleCaser.String(string(tier))
}

// DirectiveFor derives the directive for capability, optionally metered by
// kind. Pass an empty kind for capability-only gates such as team
// management. A ledger failure never hides a capability answer: a locked
// capability stays locked and an unlocked one is reported unverified.
func DirectiveFor(ctx context.Context, ec *entitlement.Context, capability domain.Capability, kind domain.ResourceKind) Directive {
	var (
		status   domain.QuotaStatus
		verified bool
	)
	if kind != "" {
		var err error
		status, err = ec.QuotaStatus(ctx, kind)
		verified = err == nil
	}

	if !ec.HasCapability(capability) {
		d := Directive{
			Allowed:   false,
			Reason:    ReasonLocked,
			UpsellCTA: upsellFor(ec),
		}
		if verified {
			d.Remaining = quotaPtr(status.Remaining)
		}
		if grantee, ok := ec.Catalog().TierThatGrants(capability); ok {
			d.Badge = &grantee
			d.BadgeLabel = TierLabel(grantee)
		}
		return d
	}

	if kind == "" {
		return Directive{Allowed: true, Reason: ReasonNone}
	}

	if !verified {
		return Directive{Allowed: false, Reason: ReasonQuotaUnverified}
	}

	if status.Exhausted() {
		return Directive{
			Allowed:   false,
			Reason:    ReasonQuotaExhausted,
			Remaining: quotaPtr(0),
			UpsellCTA: upsellFor(ec),
		}
	}

	return Directive{
		Allowed:   true,
		Reason:    ReasonNone,
		Remaining: quotaPtr(status.Remaining),
	}
}

// upsellFor returns the effective tier's upsell title, or nil for tiers
// with nothing to upsell.
func upsellFor(ec *entitlement.Context) *string {
	display := ec.Definition().Display()
	if !display.HasUpsell() {
		return nil
	}
	title := display.UpsellTitle
	return &title
}

func quotaPtr(q domain.Quota) *domain.Quota {
	return &q
}
