package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/pixeldraft/internal/csrf"
	"github.com/DukeRupert/pixeldraft/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestCSRFProtect_GETIssuesToken(t *testing.T) {
	mw := NewCSRFMiddleware(newTestLogger(), false)

	req := httptest.NewRequest("GET", "/api/v1/entitlements", nil)
	rec := httptest.NewRecorder()

	mw.Protect(okHandler()).ServeHTTP(rec, req)

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected csrf cookie on safe request")
	}
}

func TestCSRFProtect_POSTWithoutSessionPasses(t *testing.T) {
	mw := NewCSRFMiddleware(newTestLogger(), false)

	req := httptest.NewRequest("POST", "/api/v1/quota/ai_scan/consume", strings.NewReader(`{"amount":1}`))
	rec := httptest.NewRecorder()

	mw.Protect(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected gateway call without cookies to pass, got %d", rec.Code)
	}
}

func TestCSRFProtect_POSTWithSession(t *testing.T) {
	mw := NewCSRFMiddleware(newTestLogger(), false)

	tests := []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"missing header", "tok-1", "", http.StatusForbidden},
		{"mismatched header", "tok-1", "tok-2", http.StatusForbidden},
		{"missing cookie", "", "tok-1", http.StatusForbidden},
		{"matching token", "tok-1", "tok-1", http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/dev/override-tier", strings.NewReader(`{"tier":"pro"}`))
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "session-token"})
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set(csrf.HeaderName, tc.header)
			}
			rec := httptest.NewRecorder()

			mw.Protect(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
