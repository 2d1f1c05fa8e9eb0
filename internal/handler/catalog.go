package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/pixeldraft/internal/catalog"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/gate"
)

// PlanQuota is one quota row of a pricing plan.
type PlanQuota struct {
	Resource domain.ResourceKind `json:"resource"`
	Limit    domain.Quota        `json:"limit"`
}

// Plan is one column of the public pricing table.
type Plan struct {
	Tier         domain.Tier         `json:"tier"`
	Label        string              `json:"label"`
	PriceLabel   string              `json:"priceLabel"`
	Capabilities []domain.Capability `json:"capabilities"`
	Quotas       []PlanQuota         `json:"quotas"`
}

// CatalogResponse answers GET /api/v1/catalog.
type CatalogResponse struct {
	Plans []Plan `json:"plans"`
}

// CatalogHandler serves the public pricing table. It needs no account.
type CatalogHandler struct {
	response CatalogResponse
	logger   *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler. The catalog is immutable, so
// the response is built once.
func NewCatalogHandler(c *catalog.Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		response: buildCatalogResponse(c),
		logger:   logger,
	}
}

// RegisterRoutes registers the catalog route on the provided mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/catalog", h.Catalog)
}

// Catalog writes the pricing table in the catalog's declared order.
func (h *CatalogHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.response)
}

func buildCatalogResponse(c *catalog.Catalog) CatalogResponse {
	var resp CatalogResponse
	for _, tier := range c.Tiers() {
		def := c.DefinitionFor(tier)
		plan := Plan{
			Tier:         tier,
			Label:        gate.TierLabel(tier),
			PriceLabel:   def.Display().PriceLabel,
			Capabilities: def.Capabilities(),
		}
		for _, kind := range domain.AllResourceKinds() {
			plan.Quotas = append(plan.Quotas, PlanQuota{Resource: kind, Limit: def.Quota(kind)})
		}
		resp.Plans = append(resp.Plans, plan)
	}
	return resp
}
