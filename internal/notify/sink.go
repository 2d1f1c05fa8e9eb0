package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Sink delivers events to a notification surface.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Deliver sends one event. Return a PermanentError for failures that
	// retrying cannot fix.
	Deliver(ctx context.Context, e Event) error
}

// PermanentError wraps an error to indicate it should not be retried.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError marks err as not worth retrying.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or any error it wraps, is a
// PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// LogSink writes events to the structured log. The in-app notification
// surface tails these lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "quota notification",
		"event_id", e.ID,
		"account_id", e.AccountID,
		"resource", e.Resource,
		"kind", e.Kind,
		"remaining", e.Remaining,
		"limit", e.Limit,
		"message", e.Subject(),
	)
	return nil
}

var _ Sink = (*LogSink)(nil)
