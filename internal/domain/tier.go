// Package domain contains core business types and interfaces.
//
// This file defines the closed sets the entitlement engine reasons about:
// subscription tiers, capabilities and metered resource kinds.
package domain

// Tier represents the pricing tier of a subscription.
type Tier string

const (
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// AllTiers returns every known tier. The slice order carries no meaning;
// capability ordering is declared by the tier catalog.
func AllTiers() []Tier {
	return []Tier{TierStarter, TierPro, TierBusiness}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierStarter, TierPro, TierBusiness:
		return true
	}
	return false
}

// ParseTier converts a raw string into a Tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, t.Valid()
}

// Capability is a boolean-gated feature tied to one or more tiers.
type Capability string

const (
	CapabilityMultiFrameworkExport Capability = "multi_framework_export"
	CapabilityTeamManagement       Capability = "team_management"
	CapabilityAPIAccess            Capability = "api_access"
	CapabilityPriorityCompute      Capability = "priority_compute"
)

// AllCapabilities returns every capability the product gates on. Each must
// be granted by at least one tier.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityMultiFrameworkExport,
		CapabilityTeamManagement,
		CapabilityAPIAccess,
		CapabilityPriorityCompute,
	}
}

// ResourceKind identifies a metered resource with a per-period quota.
//
// Adding a kind requires a quota entry in every tier definition; the
// catalog refuses to start otherwise.
type ResourceKind string

const (
	ResourceAIScan           ResourceKind = "ai_scan"
	ResourceGenerationExport ResourceKind = "generation_export"
	ResourceAPICall          ResourceKind = "api_call"
)

// AllResourceKinds returns every known resource kind.
func AllResourceKinds() []ResourceKind {
	return []ResourceKind{ResourceAIScan, ResourceGenerationExport, ResourceAPICall}
}

// Valid reports whether k is one of the known resource kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceAIScan, ResourceGenerationExport, ResourceAPICall:
		return true
	}
	return false
}

// ParseResourceKind converts a raw string into a ResourceKind.
func ParseResourceKind(s string) (ResourceKind, bool) {
	k := ResourceKind(s)
	return k, k.Valid()
}
