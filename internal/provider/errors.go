package provider

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures worth retrying later: network errors, timeouts,
// non-2xx responses and bodies that could neither be decoded nor recovered.
var ErrTransient = errors.New("provider temporarily unavailable")

// APIError is a definitive error code returned by the provider. It is never retried.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kie api error code %s", e.Code)
	}
	return fmt.Sprintf("kie api error code %s: %s", e.Code, e.Message)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func transient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

func transientErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
