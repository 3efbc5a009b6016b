package apilo

import (
	"fmt"

	"order_sync/internal/domain"
)

// AuthError means no usable credential could be produced. It is fatal for
// the calling sync pass.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apilo auth: %s: %v", e.Reason, e.Err)
	}
	return "apilo auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is lets callers outside this package match on domain.ErrUnauthorized.
func (e *AuthError) Is(target error) bool { return target == domain.ErrUnauthorized }

// UpstreamError is a failed upstream call after the single re-auth attempt.
// StatusCode is 0 when no response was received.
type UpstreamError struct {
	Method     string
	Path       string
	StatusCode int
	Payload    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("apilo %s %s: %v", e.Method, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("apilo %s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	case e.Payload != "":
		return fmt.Sprintf("apilo %s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Payload)
	default:
		return fmt.Sprintf("apilo %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }
