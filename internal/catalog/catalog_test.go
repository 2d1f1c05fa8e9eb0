package catalog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/storage"
)

func TestBuiltin_IsValid(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	assert.Equal(t, []domain.Tier{domain.TierStarter, domain.TierPro, domain.TierBusiness}, c.Tiers())
	assert.ElementsMatch(t, domain.AllCapabilities(), c.Capabilities())

	starter := c.DefinitionFor(domain.TierStarter)
	assert.False(t, starter.HasCapability(domain.CapabilityMultiFrameworkExport))
	assert.Equal(t, domain.Quota(10), starter.Quota(domain.ResourceAIScan))

	business := c.DefinitionFor(domain.TierBusiness)
	assert.True(t, business.Quota(domain.ResourceAIScan).IsUnlimited())
	assert.False(t, business.Display().HasUpsell())
}

func TestTierThatGrants(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	tests := []struct {
		capability domain.Capability
		want       domain.Tier
	}{
		{domain.CapabilityMultiFrameworkExport, domain.TierPro},
		{domain.CapabilityAPIAccess, domain.TierPro},
		{domain.CapabilityTeamManagement, domain.TierBusiness},
		{domain.CapabilityPriorityCompute, domain.TierBusiness},
	}
	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			got, ok := c.TierThatGrants(tt.capability)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := c.TierThatGrants("time_travel")
	assert.False(t, ok)
}

func TestTierThatGrants_FollowsDeclaredOrder(t *testing.T) {
	table := BuiltinTable()
	// Business first: it becomes the advertised tier for shared capabilities.
	table.Order = []domain.Tier{domain.TierBusiness, domain.TierPro, domain.TierStarter}
	c, err := New(table)
	require.NoError(t, err)

	got, ok := c.TierThatGrants(domain.CapabilityMultiFrameworkExport)
	require.True(t, ok)
	assert.Equal(t, domain.TierBusiness, got)
}

func TestDefinitionFor_UnknownTierGrantsNothing(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	def := c.DefinitionFor("enterprise")
	assert.False(t, def.HasCapability(domain.CapabilityAPIAccess))
	assert.Equal(t, domain.Quota(0), def.Quota(domain.ResourceAIScan))
	assert.Equal(t, -1, c.Rank("enterprise"))
}

func TestNew_RejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
	}{
		{"missing quota", func(tb *Table) { delete(tb.Tiers[0].Quotas, domain.ResourceAPICall) }},
		{"negative quota", func(tb *Table) { tb.Tiers[0].Quotas[domain.ResourceAIScan] = -5 }},
		{"unknown resource", func(tb *Table) { tb.Tiers[0].Quotas["gpu_minutes"] = 1 }},
		{"missing tier", func(tb *Table) { tb.Tiers = tb.Tiers[:2] }},
		{"duplicate tier", func(tb *Table) { tb.Tiers[2] = tb.Tiers[1] }},
		{"tier missing from order", func(tb *Table) { tb.Order = tb.Order[:2] }},
		{"duplicate order", func(tb *Table) { tb.Order[2] = domain.TierPro }},
		{"unknown order tier", func(tb *Table) { tb.Order[0] = "free" }},
		{"ungranted capability", func(tb *Table) {
			tb.Tiers[2].Capabilities = []domain.Capability{domain.CapabilityMultiFrameworkExport}
		}},
		{"self upsell", func(tb *Table) { tb.Tiers[1].Display.UpsellTargetTier = domain.TierPro }},
		{"unknown upsell", func(tb *Table) { tb.Tiers[1].Display.UpsellTargetTier = "platinum" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := BuiltinTable()
			tt.mutate(&table)
			_, err := New(table)
			require.Error(t, err)
			assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))
		})
	}
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	table := BuiltinTable()
	c, err := New(table)
	require.NoError(t, err)

	table.Tiers[0].Quotas[domain.ResourceAIScan] = 9999
	assert.Equal(t, domain.Quota(10), c.DefinitionFor(domain.TierStarter).Quota(domain.ResourceAIScan))
}

func TestLoad_RoundTripsBuiltin(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, BuiltinTable()))
	assert.Contains(t, buf.String(), "unlimited")

	c, err := Load(&buf)
	require.NoError(t, err)
	assert.True(t, c.DefinitionFor(domain.TierPro).Quota(domain.ResourceGenerationExport).IsUnlimited())
	assert.Equal(t, domain.Quota(1000), c.DefinitionFor(domain.TierPro).Quota(domain.ResourceAPICall))
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	doc := `
order: [starter, pro, business]
tiers:
  - tier: starter
    capabilites: []
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))
}

func TestFromStorage(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	key := storage.CatalogKey("current")
	_, err = FromStorage(ctx, store, key)
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))

	yamlDoc, err := Builtin()
	require.NoError(t, err)
	doc, err := yamlDoc.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, strings.NewReader(doc), storage.PutOptions{}))

	c, err := FromStorage(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, yamlDoc.Tiers(), c.Tiers())
}
