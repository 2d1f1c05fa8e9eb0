package catalog

import (
	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// Table is the external configuration the catalog is built from.
type Table struct {
	// Order lists the tiers lowest first. It decides which tier is
	// advertised as the one that unlocks a capability.
	Order []domain.Tier `yaml:"order" json:"order"`
	Tiers []TierSpec    `yaml:"tiers" json:"tiers"`
}

// TierSpec is the configuration of one tier.
type TierSpec struct {
	Tier         domain.Tier                         `yaml:"tier" json:"tier"`
	Capabilities []domain.Capability                 `yaml:"capabilities" json:"capabilities"`
	Quotas       map[domain.ResourceKind]domain.Quota `yaml:"quotas" json:"quotas"`
	Display      DisplayMeta                         `yaml:"display" json:"display"`
}

func (t Table) clone() Table {
	out := Table{
		Order: append([]domain.Tier(nil), t.Order...),
		Tiers: make([]TierSpec, len(t.Tiers)),
	}
	for i, spec := range t.Tiers {
		quotas := make(map[domain.ResourceKind]domain.Quota, len(spec.Quotas))
		for k, v := range spec.Quotas {
			quotas[k] = v
		}
		out.Tiers[i] = TierSpec{
			Tier:         spec.Tier,
			Capabilities: append([]domain.Capability(nil), spec.Capabilities...),
			Quotas:       quotas,
			Display:      spec.Display,
		}
	}
	return out
}

// New validates the table and builds a Catalog. Any problem is returned as a
// domain ECONFIG error; callers treat it as fatal at startup.
func New(table Table) (*Catalog, error) {
	const op = "catalog.new"

	table = table.clone()

	rank := make(map[domain.Tier]int, len(table.Order))
	for i, tier := range table.Order {
		if !tier.Valid() {
			return nil, domain.ConfigError(op, "order lists unknown tier %q", tier)
		}
		if _, dup := rank[tier]; dup {
			return nil, domain.ConfigError(op, "order lists tier %q more than once", tier)
		}
		rank[tier] = i
	}

	defs := make(map[domain.Tier]TierDefinition, len(table.Tiers))
	for _, spec := range table.Tiers {
		if !spec.Tier.Valid() {
			return nil, domain.ConfigError(op, "unknown tier %q", spec.Tier)
		}
		if _, dup := defs[spec.Tier]; dup {
			return nil, domain.ConfigError(op, "tier %q is defined more than once", spec.Tier)
		}
		def, err := buildDefinition(op, spec)
		if err != nil {
			return nil, err
		}
		defs[spec.Tier] = def
	}

	for _, tier := range domain.AllTiers() {
		if _, ok := defs[tier]; !ok {
			return nil, domain.ConfigError(op, "tier %q has no definition", tier)
		}
		if _, ok := rank[tier]; !ok {
			return nil, domain.ConfigError(op, "tier %q is missing from order", tier)
		}
	}

	for _, def := range defs {
		target := def.display.UpsellTargetTier
		if target == "" {
			continue
		}
		if !target.Valid() {
			return nil, domain.ConfigError(op, "tier %q upsells unknown tier %q", def.tier, target)
		}
		if target == def.tier {
			return nil, domain.ConfigError(op, "tier %q upsells itself", def.tier)
		}
	}

	grantee := make(map[domain.Capability]domain.Tier)
	for _, tier := range table.Order {
		for c := range defs[tier].capabilities {
			if _, seen := grantee[c]; !seen {
				grantee[c] = tier
			}
		}
	}
	for _, c := range domain.AllCapabilities() {
		if _, ok := grantee[c]; !ok {
			return nil, domain.ConfigError(op, "capability %q is not granted by any tier", c)
		}
	}

	return &Catalog{
		order:   table.Order,
		rank:    rank,
		defs:    defs,
		grantee: grantee,
		table:   table,
	}, nil
}

func buildDefinition(op string, spec TierSpec) (TierDefinition, error) {
	caps := make(map[domain.Capability]struct{}, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		if c == "" {
			return TierDefinition{}, domain.ConfigError(op, "tier %q lists an empty capability", spec.Tier)
		}
		caps[c] = struct{}{}
	}

	quotas := make(map[domain.ResourceKind]domain.Quota, len(spec.Quotas))
	for kind, limit := range spec.Quotas {
		if !kind.Valid() {
			return TierDefinition{}, domain.ConfigError(op, "tier %q has a quota for unknown resource %q", spec.Tier, kind)
		}
		if limit < 0 && !limit.IsUnlimited() {
			return TierDefinition{}, domain.ConfigError(op, "tier %q has a negative quota for %q", spec.Tier, kind)
		}
		quotas[kind] = limit
	}
	for _, kind := range domain.AllResourceKinds() {
		if _, ok := quotas[kind]; !ok {
			return TierDefinition{}, domain.ConfigError(op, "tier %q has no quota for %q", spec.Tier, kind)
		}
	}

	return TierDefinition{
		tier:         spec.Tier,
		capabilities: caps,
		quotas:       quotas,
		display:      spec.Display,
	}, nil
}
