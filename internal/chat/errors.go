package chat

import (
	"errors"
	"fmt"

	"roomchat/internal/metrics"
)

var (
	// ErrAuthentication marks a rejected authenticate attempt. It is fatal
	// for the connection.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization marks a mutation attempted by someone other than the
	// author. Dropped without feedback.
	ErrAuthorization = errors.New("not the author")
	// ErrNotFound marks an operation on an unknown message id. Dropped
	// without feedback.
	ErrNotFound = errors.New("message not found")
	// ErrValidation marks a malformed or degenerate request. Reported to the
	// sender.
	ErrValidation = errors.New("invalid request")
	// ErrUnavailable marks a persistence failure. Reported to the sender.
	ErrUnavailable = errors.New("storage unavailable")
)

// AuthError carries the reason shown to a client whose authentication failed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return ErrAuthentication
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unavailable(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// silent reports whether err belongs to the failures that are dropped
// without telling the client.
func silent(err error) bool {
	return errors.Is(err, ErrAuthorization) || errors.Is(err, ErrNotFound)
}
