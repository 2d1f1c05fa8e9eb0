package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// =============================================================================
// Error Response Tests
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(err error) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/quota/ai_scan/consume", nil)
	ErrorResponse(rec, req, newTestLogger(), err)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestErrorResponse_StatusAndCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"locked", domain.Locked("op", domain.CapabilityAPIAccess, domain.TierStarter), http.StatusPaymentRequired, domain.ELOCKED},
		{"quota exhausted", domain.QuotaExhausted("op", domain.ResourceAIScan), http.StatusPaymentRequired, domain.EQUOTA},
		{"ledger unavailable", domain.LedgerUnavailable(context.DeadlineExceeded, "op"), http.StatusServiceUnavailable, domain.EUNAVAILABLE},
		{"invalid", domain.Invalid("op", "Amount must be at least 1."), http.StatusBadRequest, domain.EINVALID},
		{"rate limit", domain.RateLimit("op"), http.StatusTooManyRequests, domain.ERATELIMIT},
		{"config", domain.ConfigError("op", "tier %q has no definition", "pro"), http.StatusInternalServerError, domain.EINTERNAL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveError(tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
			if body := decodeError(t, rec); body.Error.Code != tc.wantCode {
				t.Errorf("expected code %q, got %q", tc.wantCode, body.Error.Code)
			}
		})
	}
}

func TestErrorResponse_LedgerUnavailableSetsRetryAfter(t *testing.T) {
	rec := serveError(domain.LedgerUnavailable(context.DeadlineExceeded, "entitlement.consume"))

	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on ledger_unavailable")
	}

	rec = serveError(domain.QuotaExhausted("entitlement.consume", domain.ResourceAIScan))
	if rec.Header().Get("Retry-After") != "" {
		t.Error("quota exhaustion is not retryable and must not set Retry-After")
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	dbErr := &mockDatabaseError{message: "connection to 192.168.1.100:5432 refused"}
	rec := serveError(domain.Internal(dbErr, "SQLLedger.TryIncrement", "Failed to connect"))

	body := rec.Body.String()
	for _, leak := range []string{"192.168", "5432", "SQLLedger"} {
		if strings.Contains(body, leak) {
			t.Errorf("response exposes %q: %s", leak, body)
		}
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
}

func TestErrorResponse_ConfigErrorHidesDetails(t *testing.T) {
	rec := serveError(domain.ConfigError("catalog.new", "tier %q has no quota for %q", "pro", "api_call"))

	if strings.Contains(rec.Body.String(), "api_call") {
		t.Errorf("response exposes catalog details: %s", rec.Body.String())
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}
	rec := serveError(rawErr)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "FATAL") || strings.Contains(body, "postgres") {
		t.Errorf("response exposes raw error: %s", body)
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
