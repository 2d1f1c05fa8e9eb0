package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// opsPaths are scraped every few seconds. They are logged only when they
// fail.
var opsPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLoggingMiddleware writes one record per API request.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
}

func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{
		logger: logger,
	}
}

func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if opsPaths[r.URL.Path] && wrapped.statusCode < 400 {
			return
		}

		attrs := []any{
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
		}
		// Set by the mux once it has matched.
		if r.Pattern != "" {
			attrs = append(attrs, "route", r.Pattern)
		}
		// The gateway's header is logged as-is; the account may be unknown.
		if accountID := r.Header.Get(AccountHeader); accountID != "" {
			attrs = append(attrs, "account_id", accountID)
		}
		if ua := r.UserAgent(); ua != "" {
			attrs = append(attrs, "user_agent", ua)
		}

		// 402 and 429 are expected outcomes of quota enforcement
		if wrapped.statusCode >= 500 {
			m.logger.Warn("request", attrs...)
		} else {
			m.logger.Info("request", attrs...)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// redactedParams are query parameters whose values never reach the log.
var redactedParams = map[string]bool{
	"csrf_token":   true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"secret":       true,
	"password":     true,
	"key":          true,
}

// sanitizePath appends the query to path with sensitive values redacted.
// Parameters without a value are dropped.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	var safe []string
	for _, part := range strings.Split(rawQuery, "&") {
		name, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if redactedParams[strings.ToLower(name)] {
			part = name + "=[REDACTED]"
		}
		safe = append(safe, part)
	}

	if len(safe) == 0 {
		return path
	}
	return path + "?" + strings.Join(safe, "&")
}
