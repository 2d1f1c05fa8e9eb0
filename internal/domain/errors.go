package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"            // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"       // Authentication required
	EFORBIDDEN    = "forbidden"          // Permission denied
	ENOTFOUND     = "not_found"          // Resource not found
	ERATELIMIT    = "rate_limit"         // Rate limit exceeded
	EINTERNAL     = "internal"           // Internal server error
	ECONFIG       = "config"             // Malformed tier catalog (fatal at boot)
	ELOCKED       = "locked"             // Capability not in the effective tier
	EQUOTA        = "quota_exhausted"    // Finite quota used up for the period
	EUNAVAILABLE  = "ledger_unavailable" // Usage ledger could not be reached in time
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "entitlement.consume")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// Internal and config errors never leak details
		if e.Code == EINTERNAL || e.Code == ECONFIG {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// ConfigError reports a malformed tier catalog. It is only ever produced
// while building the catalog at startup.
func ConfigError(op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    ECONFIG,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Locked reports a capability the effective tier does not include.
func Locked(op string, capability Capability, tier Tier) *Error {
	return &Error{
		Code:    ELOCKED,
		Op:      op,
		Message: fmt.Sprintf("%s is not included in the %s plan", capability, tier),
	}
}

// QuotaExhausted reports a finite quota that cannot cover the requested amount.
func QuotaExhausted(op string, kind ResourceKind) *Error {
	return &Error{
		Code:    EQUOTA,
		Op:      op,
		Message: fmt.Sprintf("You've used your %s quota for this billing period. Upgrade your plan to continue.", kind),
	}
}

// LedgerUnavailable reports that usage could not be verified. Consuming
// actions must be denied; retrying later may succeed.
func LedgerUnavailable(err error, op string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: "We couldn't verify your usage right now. Please try again shortly.",
		Err:     err,
	}
}
