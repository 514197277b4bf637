package kaiku

import (
	"errors"
	"fmt"
	"time"
)

// ErrLocationUnavailable is returned when a submission arrives without a
// valid coordinate. The engine never fabricates a fallback location; that
// policy belongs to the caller.
var ErrLocationUnavailable = errors.New("location unavailable")

// RateLimitError rejects an over-frequent submission. RetryAfter is the
// exact timestamp after which the next attempt is admissible.
type RateLimitError struct {
	RetryAfter time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Format(time.RFC3339))
}

// ModerationError is terminal for a submission; it is not retryable
// without edited content.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("submission rejected by moderation: %s", e.Reason)
}

// PersistenceError wraps a transport or storage failure. The engine keeps
// the optimistic local copy marked unconfirmed; retrying or rolling back
// is the caller's call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
