package storage

import (
	"errors"
	"fmt"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound means nothing is published at the key.
	ErrNotFound = errors.New("no catalog object at key")

	// ErrKeyExists means a publish without overwrite hit an existing catalog.
	ErrKeyExists = errors.New("catalog object already exists at key")

	// ErrInvalidKey rejects keys that are empty, absolute or escape the
	// storage root.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge means the object exceeds PutOptions.MaxSize.
	ErrTooLarge = errors.New("catalog object exceeds maximum size")

	// ErrAccessDenied is returned when the bucket credentials are refused.
	ErrAccessDenied = errors.New("storage access denied")
)

// StorageError records the operation and key of a failed storage call.
type StorageError struct {
	Op  string // "Put", "Get" or "Exists"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means nothing is stored at the key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsKeyExists reports whether err is a refused overwrite.
func IsKeyExists(err error) bool {
	return errors.Is(err, ErrKeyExists)
}

// Code maps a storage failure onto the service's error codes. Anything not
// caused by the caller is treated as the backend being unavailable.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return domain.ENOTFOUND
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrTooLarge), errors.Is(err, ErrKeyExists):
		return domain.EINVALID
	case errors.Is(err, ErrAccessDenied):
		return domain.EFORBIDDEN
	default:
		return domain.EUNAVAILABLE
	}
}
