package worker

import (
	"errors"
	"fmt"

	"github.com/lumenhq/offworker/internal/record"
)

// HandlerError represents an error detected while handling one event.
//
// Handler errors include:
//   - Cache population failure during install or activate
//   - Notification display failure on push or message
//   - Upstream failure during background sync
//
// HandlerError includes structured fields for diagnostics; these errors
// are logged by the Run loop and never fail the worker.
type HandlerError struct {
	// Code identifies the error category.
	Code HandlerErrorCode

	// Kind identifies the event being handled.
	Kind record.EventKind

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// HandlerErrorCode categorizes handler errors.
type HandlerErrorCode string

const (
	// ErrCodeCachePopulate indicates install/activate could not fill the cache.
	ErrCodeCachePopulate HandlerErrorCode = "CACHE_POPULATE_FAILED"

	// ErrCodeNotificationShow indicates the platform refused to display.
	ErrCodeNotificationShow HandlerErrorCode = "NOTIFICATION_SHOW_FAILED"

	// ErrCodeSyncUpstream indicates the upstream rejected queued work.
	ErrCodeSyncUpstream HandlerErrorCode = "SYNC_UPSTREAM_FAILED"

	// ErrCodeBadMessage indicates an unrecognized page → worker message.
	ErrCodeBadMessage HandlerErrorCode = "BAD_MESSAGE"
)

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (event=%s): %v", e.Code, e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsCacheError reports whether err is a cache population failure.
// Uses errors.As to handle wrapped errors.
func IsCacheError(err error) bool {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Code == ErrCodeCachePopulate
	}
	return false
}

// newHandlerError builds a HandlerError carrying its event kind.
func newHandlerError(code HandlerErrorCode, kind record.EventKind, message string, err error) *HandlerError {
	return &HandlerError{Code: code, Kind: kind, Message: message, Err: err}
}
