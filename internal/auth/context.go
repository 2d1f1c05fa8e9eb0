// Package auth provides request context helpers for the resolved account
// and its entitlement context.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/pixeldraft/internal/domain"
	"github.com/DukeRupert/pixeldraft/internal/entitlement"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	accountContextKey     contextKey = "account"
	entitlementContextKey contextKey = "entitlement"
	sessionContextKey     contextKey = "session"
)

// GetAccount retrieves the resolved account from the context.
//
// Returns nil if the request carried no known account.
func GetAccount(ctx context.Context) *domain.Account {
	account, ok := ctx.Value(accountContextKey).(*domain.Account)
	if !ok {
		return nil
	}
	return account
}

// SetAccount stores an account in the context.
func SetAccount(ctx context.Context, account *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// GetEntitlement retrieves the request's entitlement context.
//
// Usage:
//
//	ec := auth.GetEntitlement(r.Context())
//	if ec == nil {
//	    // Route is not behind the entitlement middleware
//	}
func GetEntitlement(ctx context.Context) *entitlement.Context {
	ec, ok := ctx.Value(entitlementContextKey).(*entitlement.Context)
	if !ok {
		return nil
	}
	return ec
}

// GetEntitlementFromRequest is GetEntitlement for a request.
func GetEntitlementFromRequest(r *http.Request) *entitlement.Context {
	return GetEntitlement(r.Context())
}

// SetEntitlement stores an entitlement context in the context.
func SetEntitlement(ctx context.Context, ec *entitlement.Context) context.Context {
	return context.WithValue(ctx, entitlementContextKey, ec)
}

// GetSessionToken returns the entitlement session token, or "".
func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(sessionContextKey).(string)
	return token
}

// SetSessionToken stores the session token in the context.
func SetSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionContextKey, token)
}
