// Package ingestion implements the pull request sync pipeline: fetching PRs
// from GitHub, applying the state machine that decides whether to insert,
// update, or skip a row, and the bulk and retry flows built on top of it.
package ingestion

import (
	"errors"
	"fmt"

	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// ValidationError indicates a PR was fetched successfully but its data could
// not be reconciled against the stored state machine (for example, a close
// date missing on a PR reported as merged). IngestPR returns it without a
// retry; bulk ingestion's scheduled per-PR task and RetryService re-attempt
// it like any other failure.
type ValidationError struct {
	Repo   string
	Number int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate PR %s#%d: %s", e.Repo, e.Number, e.Reason)
}

// FailureClass buckets an ingestion error by how the caller should respond:
// retry immediately, retry later, or give up.
type FailureClass string

// FailureClass values.
const (
	FailureClassAuth       FailureClass = "auth"
	FailureClassNotFound   FailureClass = "not_found"
	FailureClassRateLimit  FailureClass = "rate_limit"
	FailureClassValidation FailureClass = "validation"
	FailureClassTransport  FailureClass = "transport"
)

// IsFatal reports whether the class should abort the entire run rather than
// being recorded against the individual PR. Only an authentication failure
// is fatal: every other class is scoped to the single PR that triggered it.
func (c FailureClass) IsFatal() bool {
	return c == FailureClassAuth
}

// Classify buckets err into a FailureClass by inspecting the GitHub client's
// sentinel and typed errors. The scheduler never retries auth or not-found
// errors and retries every other error up to its MaxRetries budget, so a
// rate-limit or transport error reaching here has exhausted those retries.
// In bulk ingestion the whole per-PR ingest runs as the scheduled task, so a
// validation error there is retried like a transport error before it
// reaches here.
func Classify(err error) FailureClass {
	if err == nil {
		return ""
	}

	if errors.Is(err, driven.ErrGitHubAuth) {
		return FailureClassAuth
	}
	if errors.Is(err, driven.ErrGitHubNotFound) {
		return FailureClassNotFound
	}

	var rlErr *driven.GitHubRateLimitError
	if errors.As(err, &rlErr) {
		return FailureClassRateLimit
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return FailureClassValidation
	}

	return FailureClassTransport
}
