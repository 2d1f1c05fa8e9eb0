package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func TestRequestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.WriteHeader(http.StatusOK) // superfluous, must not change the logged status
	})

	req := httptest.NewRequest("POST", "/api/v1/quota/ai_scan/consume", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set(AccountHeader, "acct_42")
	rec := httptest.NewRecorder()

	mw.Handler(handler).ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{
		"method=POST",
		"path=/api/v1/quota/ai_scan/consume",
		"status=402",
		"duration_ms=",
		"ip=192.168.1.1",
		"account_id=acct_42",
		"level=INFO",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log should contain %q, got: %s", want, out)
		}
	}
}

func TestRequestLoggingMiddleware_ServerErrorsWarn(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	mw.Handler(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/quota/ai_scan", nil))

	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("5xx should log at WARN, got: %s", buf.String())
	}
}

func TestRequestLoggingMiddleware_RedactsSensitiveQueryParams(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	req := httptest.NewRequest("GET", "/api/v1/directive/api_access?resource=api_call&api_key=sk_live_123&csrf_token=abc", nil)
	mw.Handler(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "sk_live_123") || strings.Contains(out, "abc") {
		t.Errorf("log leaks a secret: %s", out)
	}
	if !strings.Contains(out, "resource=api_call") {
		t.Errorf("non-sensitive params should be kept: %s", out)
	}
}

func TestRequestLoggingMiddleware_SkipsOpsEndpoints(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			var buf bytes.Buffer
			mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

			rec := httptest.NewRecorder()
			mw.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", path, nil))

			if buf.Len() != 0 {
				t.Errorf("expected no log for %s, got: %s", path, buf.String())
			}
			if rec.Code != http.StatusNoContent {
				t.Errorf("request should still be served, got %d", rec.Code)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		path, query, want string
	}{
		{"/api/v1/catalog", "", "/api/v1/catalog"},
		{"/x", "token=t1&a=b", "/x?token=[REDACTED]&a=b"},
		{"/x", "Secret=s", "/x?Secret=[REDACTED]"},
		{"/x", "novalue", "/x"},
	}

	for _, tc := range tests {
		if got := sanitizePath(tc.path, tc.query); got != tc.want {
			t.Errorf("sanitizePath(%q, %q) = %q, want %q", tc.path, tc.query, got, tc.want)
		}
	}
}

func TestRequestLoggingMiddleware_LogsFailingHealthCheck(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	unhealthy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mw.Handler(unhealthy).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if !strings.Contains(buf.String(), "status=503") {
		t.Errorf("a failing health check should be logged, got: %s", buf.String())
	}
}

func TestRequestLoggingMiddleware_LogsMatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/quota/{resourceKind}", okHandler())
	mw.Handler(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/quota/ai_scan", nil))

	if !strings.Contains(buf.String(), `route="GET /api/v1/quota/{resourceKind}"`) {
		t.Errorf("log should name the matched route, got: %s", buf.String())
	}
}
