package llm

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies a generative backend failure.
type Reason string

const (
	ReasonRateLimit Reason = "RATE_LIMIT"
	ReasonTimeout   Reason = "TIMEOUT"
	ReasonError     Reason = "ERROR"
)

// ErrUnavailable is returned when no backend is configured.
var ErrUnavailable = errors.New("generative backend not configured")

// Error is the typed failure every Adapter call returns.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from err. Context deadlines count as
// timeouts; anything untyped is an ERROR.
func ReasonOf(err error) Reason {
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonError
}

func wrap(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Reason: ReasonOf(err), Err: err}
}
