// Package middleware contains HTTP middleware for the pixeldraft
// entitlement API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/pixeldraft/internal/account"
	"github.com/DukeRupert/pixeldraft/internal/auth"
	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/entitlement"
	"github.com/DukeRupert/pixeldraft/internal/handler"
	"github.com/DukeRupert/pixeldraft/internal/session"
)

// AccountHeader carries the account id. The API gateway authenticates the
// caller and sets it; this service never sees credentials.
const AccountHeader = "X-Account-ID"

// =============================================================================
// Entitlement Middleware Configuration
// =============================================================================

// EntitlementMiddleware resolves the calling account and attaches its
// entitlement context to the request.
type EntitlementMiddleware struct {
	directory account.Directory
	resolver  *entitlement.Resolver
	sessions  *session.Store
	logger    *slog.Logger
}

// NewEntitlementMiddleware creates a new EntitlementMiddleware instance.
func NewEntitlementMiddleware(
	directory account.Directory,
	resolver *entitlement.Resolver,
	sessions *session.Store,
	logger *slog.Logger,
) *EntitlementMiddleware {
	return &EntitlementMiddleware{
		directory: directory,
		resolver:  resolver,
		sessions:  sessions,
		logger:    logger,
	}
}

// =============================================================================
// RequireAccount Middleware
// =============================================================================

// RequireAccount loads the account named by X-Account-ID and attaches an
// entitlement context built from its real tier and the override stored in
// the caller's session, if any. It never starts a session; the override
// route does that when there is something to keep.
//
// Flow:
//
//	Request -> RequireAccount -> Handler
//	           |
//	           +-> Read X-Account-ID (401 if missing)
//	           +-> Look up account (401 if unknown)
//	           +-> Read the session cookie, if it belongs to this account
//	           +-> Set account, entitlement context and session token
func (m *EntitlementMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "middleware.require_account"

		accountID := r.Header.Get(AccountHeader)
		if accountID == "" {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		acct, err := m.directory.Lookup(r.Context(), accountID)
		if err != nil {
			if domain.IsCode(err, domain.ENOTFOUND) {
				handler.ErrorResponse(w, r, m.logger, domain.Unauthorized(op, "Unknown account."))
				return
			}
			handler.InternalErrorResponse(w, r, m.logger, err)
			return
		}

		sess := m.sessionFor(r, acct.ID)
		ec := m.resolver.ForAccount(acct.ID, acct.RealTier, sess.Override)

		ctx := auth.SetAccount(r.Context(), acct)
		ctx = auth.SetEntitlement(ctx, ec)
		ctx = auth.SetSessionToken(ctx, sess.Token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFor returns the request's live session, or the zero Session when
// the cookie is missing, expired or belongs to another account.
func (m *EntitlementMiddleware) sessionFor(r *http.Request, accountID string) session.Session {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return session.Session{}
	}
	sess, ok := m.sessions.Get(cookie.Value)
	if !ok || sess.AccountID != accountID {
		return session.Session{}
	}
	return sess
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(entitlementMw.RequireAccount, csrfMw.Protect)
//	mux.Handle("POST /api/v1/dev/override-tier", stack(overrideHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
