// Package session tracks entitlement sessions: which account a browser
// session belongs to and the developer tier override it carries.
//
// Sessions are created on demand, only when there is an override to carry;
// plain API calls never allocate one.
package session

import "time"

const (
	// CookieName is the name of the cookie that stores the session token.
	CookieName = "pixeldraft_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"

	// DefaultTTL is how long a session lives when SESSION_TTL is unset.
	DefaultTTL = 24 * time.Hour
)
