package middleware

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/pixeldraft/internal/csrf"
	"github.com/DukeRupert/pixeldraft/internal/handler"
	"github.com/DukeRupert/pixeldraft/internal/session"
)

// CSRFMiddleware enforces the double-submit token on state-changing
// requests made by browsers.
type CSRFMiddleware struct {
	logger   *slog.Logger
	isSecure bool
}

// NewCSRFMiddleware creates a new CSRFMiddleware.
func NewCSRFMiddleware(logger *slog.Logger, isSecure bool) *CSRFMiddleware {
	return &CSRFMiddleware{logger: logger, isSecure: isSecure}
}

// Protect issues the csrf_token cookie on safe requests and requires the
// X-CSRF-Token header to match it on unsafe ones. Only requests carrying a
// session cookie are checked: server-to-server callers authenticate at the
// gateway and have no ambient credentials to abuse.
func (m *CSRFMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			csrf.EnsureToken(w, r, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		if _, err := r.Cookie(session.CookieName); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if !csrf.ValidateRequest(r) {
			m.logger.Warn("csrf validation failed",
				"method", r.Method,
				"path", r.URL.Path,
			)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
