package catalog

import "github.com/DukeRupert/pixeldraft/internal/domain"

// BuiltinTable is the plan table shipped with the binary. Deployments can
// replace it with a YAML file (see Load).
func BuiltinTable() Table {
	return Table{
		Order: []domain.Tier{domain.TierStarter, domain.TierPro, domain.TierBusiness},
		Tiers: []TierSpec{
			{
				Tier:         domain.TierStarter,
				Capabilities: []domain.Capability{},
				Quotas: map[domain.ResourceKind]domain.Quota{
					domain.ResourceAIScan:           10,
					domain.ResourceGenerationExport: 5,
					domain.ResourceAPICall:          0,
				},
				Display: DisplayMeta{
					PriceLabel:       "$0/mo",
					UpsellTitle:      "Upgrade to Pro",
					UpsellBody:       "Export to React, Vue, Svelte and Flutter, call the API, and get 200 AI scans every month.",
					UpsellTargetTier: domain.TierPro,
				},
			},
			{
				Tier: domain.TierPro,
				Capabilities: []domain.Capability{
					domain.CapabilityMultiFrameworkExport,
					domain.CapabilityAPIAccess,
				},
				Quotas: map[domain.ResourceKind]domain.Quota{
					domain.ResourceAIScan:           200,
					domain.ResourceGenerationExport: domain.Unlimited,
					domain.ResourceAPICall:          1000,
				},
				Display: DisplayMeta{
					PriceLabel:       "$29/mo",
					UpsellTitle:      "Upgrade to Business",
					UpsellBody:       "Invite your team, jump the queue with priority compute, and scan without limits.",
					UpsellTargetTier: domain.TierBusiness,
				},
			},
			{
				Tier: domain.TierBusiness,
				Capabilities: []domain.Capability{
					domain.CapabilityMultiFrameworkExport,
					domain.CapabilityAPIAccess,
					domain.CapabilityTeamManagement,
					domain.CapabilityPriorityCompute,
				},
				Quotas: map[domain.ResourceKind]domain.Quota{
					domain.ResourceAIScan:           domain.Unlimited,
					domain.ResourceGenerationExport: domain.Unlimited,
					domain.ResourceAPICall:          50000,
				},
				Display: DisplayMeta{
					PriceLabel: "$99/mo",
				},
			},
		},
	}
}

// Builtin builds the catalog from BuiltinTable.
func Builtin() (*Catalog, error) {
	return New(BuiltinTable())
}
