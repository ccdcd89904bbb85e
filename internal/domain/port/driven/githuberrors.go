package driven

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors a GitHubClient implementation wraps its underlying
// transport errors with, so callers can classify a failure with errors.Is
// without depending on the adapter's internal HTTP status handling.
var (
	// ErrGitHubAuth indicates the configured token was rejected (401).
	ErrGitHubAuth = errors.New("github authentication failed")

	// ErrGitHubNotFound indicates the requested resource does not exist (404).
	ErrGitHubNotFound = errors.New("github resource not found")
)

// GitHubRateLimitError indicates the primary rate limit for a pool was
// exhausted (403 with a zero remaining count). It implements the scheduler's
// RateLimitError interface so a retry can be deferred until ResetTime.
type GitHubRateLimitError struct {
	ResetTime time.Time
	Err       error
}

func (e *GitHubRateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exhausted, resets at %s: %v", e.ResetTime.Format(time.RFC3339), e.Err)
}

func (e *GitHubRateLimitError) Unwrap() error {
	return e.Err
}

// ResetAt implements pacing.RateLimitError.
func (e *GitHubRateLimitError) ResetAt() (time.Time, bool) {
	return e.ResetTime, true
}
