package handler

// This file implements the entitlement API used by the editor and the
// dashboard:
//   - GET  /api/v1/effective-tier                  -> EffectiveTier
//   - GET  /api/v1/entitlements                    -> Entitlements
//   - GET  /api/v1/capability/{capabilityId}       -> Capability
//   - GET  /api/v1/directive/{capabilityId}        -> Directive
//   - GET  /api/v1/quota/{resourceKind}            -> Quota
//   - POST /api/v1/quota/{resourceKind}/consume    -> Consume
//   - POST /api/v1/dev/override-tier               -> OverrideTier
//
// Every route expects the entitlement middleware to have attached an
// entitlement context for the calling account.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/auth"
	"github.com/DukeRupert/pixeldraft/internal/csrf"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/entitlement"
	"github.com/DukeRupert/pixeldraft/internal/gate"
	"github.com/DukeRupert/pixeldraft/internal/notify"
	"github.com/DukeRupert/pixeldraft/internal/session"
)

// maxBodyBytes caps JSON request bodies on this API.
const maxBodyBytes = 1 << 10

// EventQueue accepts quota notification events for asynchronous delivery.
type EventQueue interface {
	Enqueue(e notify.Event) bool
}

// =============================================================================
// Response Types
// =============================================================================

// EffectiveTierResponse answers GET /api/v1/effective-tier.
type EffectiveTierResponse struct {
	Tier        domain.Tier `json:"tier"`
	IsSimulated bool        `json:"isSimulated"`
	RealTier    domain.Tier `json:"realTier"`
}

// CapabilityResponse answers GET /api/v1/capability/{capabilityId}.
type CapabilityResponse struct {
	Allowed bool `json:"allowed"`
}

// QuotaResponse answers GET /api/v1/quota/{resourceKind}.
type QuotaResponse struct {
	Limit     domain.Quota `json:"limit"`
	Remaining domain.Quota `json:"remaining"`
}

// ConsumeRequest is the body of POST /api/v1/quota/{resourceKind}/consume.
// A missing amount means one unit.
type ConsumeRequest struct {
	Amount *int64 `json:"amount"`
}

// ConsumeResponse answers a successful consume.
type ConsumeResponse struct {
	Remaining domain.Quota `json:"remaining"`
}

// OverrideRequest is the body of POST /api/v1/dev/override-tier. An empty
// tier clears the override.
type OverrideRequest struct {
	Tier string `json:"tier"`
}

// =============================================================================
// Handler Configuration
// =============================================================================

// EntitlementHandler serves the entitlement API.
type EntitlementHandler struct {
	sessions *session.Store
	notifier *notify.Notifier
	events   EventQueue
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
	now      func() time.Time
}

// NewEntitlementHandler creates a new EntitlementHandler. notifier and
// events may be nil, in which case consumption raises no notifications.
func NewEntitlementHandler(
	sessions *session.Store,
	notifier *notify.Notifier,
	events EventQueue,
	logger *slog.Logger,
	isSecure bool,
) *EntitlementHandler {
	return &EntitlementHandler{
		sessions: sessions,
		notifier: notifier,
		events:   events,
		logger:   logger,
		isSecure: isSecure,
		now:      time.Now,
	}
}

// RegisterRoutes registers the entitlement API. Every route runs behind
// requireAccount and protect; consume is also throttled by limitConsume.
func (h *EntitlementHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAccount func(http.Handler) http.Handler,
	protect func(http.Handler) http.Handler,
	limitConsume func(http.Handler) http.Handler,
) {
	route := func(fn http.HandlerFunc) http.Handler {
		return requireAccount(protect(fn))
	}

	mux.Handle("GET /api/v1/effective-tier", route(h.EffectiveTier))
	mux.Handle("GET /api/v1/entitlements", route(h.Entitlements))
	mux.Handle("GET /api/v1/capability/{capabilityId}", route(h.Capability))
	mux.Handle("GET /api/v1/directive/{capabilityId}", route(h.Directive))
	mux.Handle("GET /api/v1/quota/{resourceKind}", route(h.Quota))
	mux.Handle("POST /api/v1/quota/{resourceKind}/consume", requireAccount(protect(limitConsume(http.HandlerFunc(h.Consume)))))
	mux.Handle("POST /api/v1/dev/override-tier", route(h.OverrideTier))
}

// entitlementFor returns the request's entitlement context, writing a 401
// when the middleware did not attach one.
func (h *EntitlementHandler) entitlementFor(w http.ResponseWriter, r *http.Request) *entitlement.Context {
	ec := auth.GetEntitlementFromRequest(r)
	if ec == nil {
		UnauthorizedResponse(w, r, h.logger)
	}
	return ec
}

// =============================================================================
// GET /api/v1/effective-tier
// =============================================================================

// EffectiveTier reports the tier answers are currently based on.
func (h *EntitlementHandler) EffectiveTier(w http.ResponseWriter, r *http.Request) {
	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	writeJSON(w, http.StatusOK, EffectiveTierResponse{
		Tier:        ec.EffectiveTier(),
		IsSimulated: ec.IsSimulated(),
		RealTier:    ec.RealTier(),
	})
}

// =============================================================================
// GET /api/v1/entitlements
// =============================================================================

// Entitlements returns the capability matrix and every quota in one call.
func (h *EntitlementHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	writeJSON(w, http.StatusOK, ec.Summary(r.Context()))
}

// =============================================================================
// GET /api/v1/capability/{capabilityId}
// =============================================================================

// Capability answers whether the effective tier grants a capability. An
// unknown capability is simply not allowed.
func (h *EntitlementHandler) Capability(w http.ResponseWriter, r *http.Request) {
	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	capability := domain.Capability(r.PathValue("capabilityId"))
	writeJSON(w, http.StatusOK, CapabilityResponse{Allowed: ec.HasCapability(capability)})
}

// =============================================================================
// GET /api/v1/directive/{capabilityId}?resource=
// =============================================================================

// Directive returns the gate directive for a capability, optionally
// metered by the resource kind in the "resource" query parameter.
func (h *EntitlementHandler) Directive(w http.ResponseWriter, r *http.Request) {
	const op = "handler.directive"

	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	var kind domain.ResourceKind
	if raw := r.URL.Query().Get("resource"); raw != "" {
		parsed, ok := domain.ParseResourceKind(raw)
		if !ok {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown resource kind."))
			return
		}
		kind = parsed
	}

	capability := domain.Capability(r.PathValue("capabilityId"))
	writeJSON(w, http.StatusOK, gate.DirectiveFor(r.Context(), ec, capability, kind))
}

// =============================================================================
// GET /api/v1/quota/{resourceKind}
// =============================================================================

// Quota returns the limit and remaining balance of a resource kind.
func (h *EntitlementHandler) Quota(w http.ResponseWriter, r *http.Request) {
	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	status, err := ec.QuotaStatus(r.Context(), domain.ResourceKind(r.PathValue("resourceKind")))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, QuotaResponse{Limit: status.Limit, Remaining: status.Remaining})
}

// =============================================================================
// POST /api/v1/quota/{resourceKind}/consume
// =============================================================================

// Consume spends units of a resource kind. Exhausted quotas answer 402,
// an unreachable ledger answers 503.
func (h *EntitlementHandler) Consume(w http.ResponseWriter, r *http.Request) {
	const op = "handler.consume"

	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	var req ConsumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request body must be {\"amount\": n}."))
		return
	}
	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}

	kind := domain.ResourceKind(r.PathValue("resourceKind"))
	remaining, err := ec.Consume(r.Context(), kind, amount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.notifyCrossing(r, ec, kind, remaining, amount)

	writeJSON(w, http.StatusOK, ConsumeResponse{Remaining: remaining})
}

// notifyCrossing raises a notification when the consumption moved the
// balance into the low band or to zero.
func (h *EntitlementHandler) notifyCrossing(r *http.Request, ec *entitlement.Context, kind domain.ResourceKind, remaining domain.Quota, amount int64) {
	if h.notifier == nil || h.events == nil {
		return
	}

	previous := notify.PreviousRemaining(remaining, amount)
	eventKind, ok := h.notifier.Evaluate(kind, previous, remaining)
	if !ok {
		return
	}

	var email string
	if acct := auth.GetAccount(r.Context()); acct != nil {
		email = acct.Email
	}

	status := domain.QuotaStatus{Resource: kind, Limit: ec.Limit(kind), Remaining: remaining}
	event := notify.NewEvent(ec.AccountID(), email, ec.EffectiveTier(), status, eventKind, h.now())
	if !h.events.Enqueue(event) {
		h.logger.Warn("quota notification dropped",
			"account_id", ec.AccountID(),
			"resource", kind,
			"kind", eventKind,
		)
	}
}

// =============================================================================
// POST /api/v1/dev/override-tier
// =============================================================================

// OverrideTier simulates another tier for the rest of the session. It
// answers 204 whether or not the override took effect; it only does while
// dev mode is on.
func (h *EntitlementHandler) OverrideTier(w http.ResponseWriter, r *http.Request) {
	const op = "handler.override_tier"

	ec := h.entitlementFor(w, r)
	if ec == nil {
		return
	}

	var req OverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request body must be {\"tier\": name}."))
		return
	}

	tier := domain.Tier(req.Tier)
	if tier != "" && !tier.Valid() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown tier."))
		return
	}

	ec.SetOverride(tier)

	// Persist only what the context accepted so an ignored request cannot
	// take effect later when dev mode is switched on.
	if ec.Override() == tier {
		h.persistOverride(w, r, ec.AccountID(), tier)
	}

	w.WriteHeader(http.StatusNoContent)
}

// persistOverride stores tier in the caller's session. Without a live
// session one is started, and the CSRF cookie is issued alongside it so the
// next state-changing request from the browser can pass the check.
func (h *EntitlementHandler) persistOverride(w http.ResponseWriter, r *http.Request, accountID string, tier domain.Tier) {
	if h.sessions == nil {
		return
	}
	if token := auth.GetSessionToken(r.Context()); token != "" && h.sessions.SetOverride(token, tier) {
		return
	}
	if tier == "" {
		return
	}

	sess := h.sessions.Create(accountID)
	h.sessions.SetOverride(sess.Token, tier)
	h.sessions.SetCookie(w, sess.Token, h.isSecure)
	csrf.EnsureToken(w, r, h.isSecure)

	h.logger.Debug("session started for tier override", "account_id", accountID, "override", tier)
}

// decodeJSON decodes a small JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
