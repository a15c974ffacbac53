package feishu

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the client error taxonomy. Callers branch on kind
// with errors.Is; every sentinel here matches ErrClient as well.
var (
	// ErrClient is the root of the taxonomy. All errors returned by this
	// package match it.
	ErrClient = errors.New("feishu client error")

	// ErrAuthentication indicates the credential exchange failed, or an
	// authorization failure persisted after one token refresh.
	ErrAuthentication = fmt.Errorf("authentication failed: %w", ErrClient)

	// ErrAPIRequest indicates a non-success vendor response for a request
	// other than token issuance.
	ErrAPIRequest = fmt.Errorf("api request failed: %w", ErrClient)

	// ErrRateLimited indicates the vendor rejected the request due to rate
	// limiting. Rate-limited requests are retried with backoff before this
	// surfaces.
	ErrRateLimited = fmt.Errorf("rate limited: %w", ErrAPIRequest)

	// ErrTimeout indicates a request exceeded the configured timeout.
	ErrTimeout = fmt.Errorf("request timed out: %w", ErrClient)

	// ErrValidation indicates malformed input detected locally, before any
	// network call.
	ErrValidation = fmt.Errorf("validation failed: %w", ErrClient)
)

// Error carries the context of a failed operation: the client operation that
// failed, the error kind, and the vendor's HTTP and envelope codes when a
// response was received.
type Error struct {
	// Op is the client operation, e.g. "BatchInsertRecords".
	Op string

	// Err is the sentinel kind or the underlying error.
	Err error

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Code is the code from the vendor response envelope.
	Code int

	// Msg is the vendor message or local detail.
	Msg string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
