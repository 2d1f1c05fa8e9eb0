// Package catalog holds the tier catalog: the static registry mapping each
// subscription tier to its capabilities, quota limits and display metadata.
//
// A Catalog is validated once when it is built and never mutated afterwards,
// so it is safe for unsynchronized concurrent reads.
package catalog

import (
	"sort"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// DisplayMeta is the pricing and upsell copy shown for a tier.
type DisplayMeta struct {
	PriceLabel       string      `yaml:"price_label" json:"priceLabel"`
	UpsellTitle      string      `yaml:"upsell_title,omitempty" json:"upsellTitle,omitempty"`
	UpsellBody       string      `yaml:"upsell_body,omitempty" json:"upsellBody,omitempty"`
	UpsellTargetTier domain.Tier `yaml:"upsell_target_tier,omitempty" json:"upsellTargetTier,omitempty"`
}

// HasUpsell reports whether the tier advertises an upgrade path.
func (m DisplayMeta) HasUpsell() bool {
	return m.UpsellTargetTier != "" && m.UpsellTitle != ""
}

// TierDefinition is the resolved, read-only definition of one tier.
type TierDefinition struct {
	tier         domain.Tier
	capabilities map[domain.Capability]struct{}
	quotas       map[domain.ResourceKind]domain.Quota
	display      DisplayMeta
}

// Tier returns the tier this definition describes.
func (d TierDefinition) Tier() domain.Tier { return d.tier }

// Display returns the tier's display metadata.
func (d TierDefinition) Display() DisplayMeta { return d.display }

// HasCapability reports whether the tier grants c.
func (d TierDefinition) HasCapability(c domain.Capability) bool {
	_, ok := d.capabilities[c]
	return ok
}

// Capabilities returns the tier's capabilities in a stable order.
func (d TierDefinition) Capabilities() []domain.Capability {
	out := make([]domain.Capability, 0, len(d.capabilities))
	for c := range d.capabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Quota returns the tier's limit for kind. Every known kind is present in a
// validated catalog; an unknown kind yields zero so callers fail closed.
func (d TierDefinition) Quota(kind domain.ResourceKind) domain.Quota {
	return d.quotas[kind]
}

// Catalog is the immutable tier registry.
type Catalog struct {
	order   []domain.Tier
	rank    map[domain.Tier]int
	defs    map[domain.Tier]TierDefinition
	grantee map[domain.Capability]domain.Tier
	table   Table
}

// DefinitionFor returns the definition of tier. It is total over the known
// tiers; an unrecognized tier gets an empty definition that grants nothing.
func (c *Catalog) DefinitionFor(tier domain.Tier) TierDefinition {
	def, ok := c.defs[tier]
	if !ok {
		return TierDefinition{tier: tier}
	}
	return def
}

// Tiers returns the tiers in the catalog's declared order, lowest first.
func (c *Catalog) Tiers() []domain.Tier {
	out := make([]domain.Tier, len(c.order))
	copy(out, c.order)
	return out
}

// Rank returns the tier's position in the declared order, or -1 if unknown.
func (c *Catalog) Rank(tier domain.Tier) int {
	if r, ok := c.rank[tier]; ok {
		return r
	}
	return -1
}

// TierThatGrants returns the lowest tier, by declared order, whose capability
// set contains capability. The second result is false when no tier grants it.
func (c *Catalog) TierThatGrants(capability domain.Capability) (domain.Tier, bool) {
	t, ok := c.grantee[capability]
	return t, ok
}

// Capabilities returns every capability granted by at least one tier.
func (c *Catalog) Capabilities() []domain.Capability {
	out := make([]domain.Capability, 0, len(c.grantee))
	for capability := range c.grantee {
		out = append(out, capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Table returns the source table the catalog was built from.
func (c *Catalog) Table() Table {
	return c.table.clone()
}
