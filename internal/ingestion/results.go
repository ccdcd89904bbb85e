package ingestion

import "github.com/ericfisherdev/ghactivity/internal/domain/model"

// PRIngestionResult is the outcome of ingesting a single pull request.
// Exactly one of Created, Updated, SkippedFrozen, SkippedUnchanged,
// SkippedAbandoned is true, or Err is non-nil — never more than one.
type PRIngestionResult struct {
	Repo   string
	Number int
	PR     *model.PullRequest

	Created          bool
	Updated          bool
	SkippedFrozen    bool
	SkippedUnchanged bool
	SkippedAbandoned bool

	Err error
}

// Success reports whether the PR was ingested (created, updated, or
// deliberately skipped) without error. A skip is a success: it means the
// pipeline correctly recognized the PR needed no write.
func (r PRIngestionResult) Success() bool {
	return r.Err == nil
}

// Action classifies the result as a single string, in priority order, for
// logging and summary reporting.
func (r PRIngestionResult) Action() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Created:
		return "created"
	case r.Updated:
		return "updated"
	case r.SkippedFrozen:
		return "skipped_frozen"
	case r.SkippedUnchanged:
		return "skipped_unchanged"
	case r.SkippedAbandoned:
		return "skipped_abandoned"
	default:
		return "unknown"
	}
}

func resultError(repo string, number int, err error) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: number, Err: err}
}

func resultCreated(repo string, pr model.PullRequest) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: pr.Number, PR: &pr, Created: true}
}

func resultUpdated(repo string, pr model.PullRequest) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: pr.Number, PR: &pr, Updated: true}
}

func resultSkippedFrozen(repo string, pr model.PullRequest) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: pr.Number, PR: &pr, SkippedFrozen: true}
}

func resultSkippedUnchanged(repo string, pr model.PullRequest) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: pr.Number, PR: &pr, SkippedUnchanged: true}
}

func resultSkippedAbandoned(repo string, number int) PRIngestionResult {
	return PRIngestionResult{Repo: repo, Number: number, SkippedAbandoned: true}
}
