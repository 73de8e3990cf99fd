package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is a failed provider call. StatusCode is 0 when no HTTP response
// was received.
type Error struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed: rate
// limiting, overload, server errors, and transport failures.
func (e *Error) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == 529, // overloaded
		e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient()
	}
	return false
}
