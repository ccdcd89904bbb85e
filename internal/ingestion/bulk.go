package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
)

// BulkConfig tunes a repository-wide ingestion run.
type BulkConfig struct {
	// Since, when set, excludes PRs created before this instant. Discovery
	// is sorted by creation date descending, so the first PR older than
	// Since ends the scan — no later page is requested.
	Since *time.Time

	// Until, when set, excludes PRs created after this instant. Unlike
	// Since this cannot short-circuit discovery, since later-created PRs
	// may still sort before it.
	Until *time.Time

	// State filters discovered PRs: "open" keeps only open PRs, "merged"
	// keeps only PRs the list entry reports as merged, "all" keeps open and
	// merged, deferring the abandoned-vs-merged distinction to the per-PR
	// fetch (the list endpoint doesn't reliably expose merge status).
	// Defaults to "all" when empty.
	State string

	// MaxPRs caps how many discovered PRs are ingested, 0 for no cap.
	MaxPRs int

	// Concurrency bounds how many discovered PRs are submitted to the
	// scheduler at once, 0 to use the executor's own default.
	Concurrency int

	// DryRun reports what would happen without writing anything.
	DryRun bool
}

// FailedPR records a PR that failed ingestion during a bulk run.
type FailedPR struct {
	Number int
	Err    error
}

// BulkResult aggregates the outcome of ingesting every discovered PR in a
// repository.
type BulkResult struct {
	TotalDiscovered int

	Created          int
	Updated          int
	SkippedFrozen    int
	SkippedUnchanged int
	SkippedAbandoned int
	Failed           int

	FailedPRs []FailedPR
}

// TotalProcessed returns the number of PRs that produced a non-error
// outcome, created or skipped.
func (r BulkResult) TotalProcessed() int {
	return r.Created + r.Updated + r.TotalSkipped()
}

// TotalSkipped returns the number of PRs that were deliberately left
// untouched, across every skip reason.
func (r BulkResult) TotalSkipped() int {
	return r.SkippedFrozen + r.SkippedUnchanged + r.SkippedAbandoned
}

// SuccessRate returns the percentage of discovered PRs that did not fail,
// 100 when nothing was discovered.
func (r BulkResult) SuccessRate() float64 {
	if r.TotalDiscovered == 0 {
		return 100
	}
	return float64(r.TotalDiscovered-r.Failed) / float64(r.TotalDiscovered) * 100
}

// DiscoverPRNumbers lists the PR numbers matching cfg for repoFullName.
// Discovery reads pull requests newest-created first and stops as soon as
// cfg.Since rules out the rest of the list, or cfg.MaxPRs is reached —
// it never drives the underlying paginator past the first page it no
// longer needs.
func (p *Pipeline) DiscoverPRNumbers(ctx context.Context, repoFullName string, cfg BulkConfig) ([]int, error) {
	state := cfg.State
	if state == "" {
		state = "all"
	}

	var numbers []int
	err := p.client.DiscoverPullRequests(ctx, repoFullName, func(pr driven.PRSummary) bool {
		if cfg.Since != nil && pr.CreatedAt.Before(*cfg.Since) {
			// Sorted created-desc: nothing further can match either.
			return false
		}
		if cfg.Until != nil && pr.CreatedAt.After(*cfg.Until) {
			return true
		}

		isOpen := pr.State == "open"
		switch state {
		case "open":
			if !isOpen {
				return true
			}
		case "merged":
			if !pr.Merged {
				return true
			}
		}
		// "all" (and any other value) keeps everything seen here; closed-
		// without-merge entries are filtered as abandoned at per-PR fetch.

		numbers = append(numbers, pr.Number)

		if cfg.MaxPRs > 0 && len(numbers) >= cfg.MaxPRs {
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("discover PRs for %s: %w", repoFullName, err)
	}

	return numbers, nil
}

// IngestRepository discovers every PR matching cfg against repoFullName and
// ingests each one through executor, bounding concurrency and rate-limit
// exposure the same way any other batch of scheduler work would be.
//
// Each item's processor calls the pipeline's unscheduled ingest path: the
// executor's own call to scheduler.Submit already reserves this item's
// concurrency slot, so the per-item GitHub fetch runs directly against the
// client instead of through a second, nested Submit call.
func (p *Pipeline) IngestRepository(ctx context.Context, repoFullName string, cfg BulkConfig, executor *pacing.BatchExecutor) (BulkResult, error) {
	numbers, err := p.DiscoverPRNumbers(ctx, repoFullName, cfg)
	if err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{TotalDiscovered: len(numbers)}
	if len(numbers) == 0 {
		return result, nil
	}

	if cfg.Concurrency > 0 {
		executor = executor.WithMaxBatchSize(cfg.Concurrency)
	}

	items := make([]any, len(numbers))
	for i, n := range numbers {
		items[i] = n
	}

	processor := func(taskCtx context.Context, item any) (any, error) {
		number := item.(int)
		r := p.ingestPR(taskCtx, repoFullName, number, cfg.DryRun, false)
		if r.Err != nil {
			return nil, r.Err
		}
		return r, nil
	}

	batchResult, err := executor.Execute(ctx, items, processor, model.PriorityNormal)
	if err != nil {
		return result, fmt.Errorf("ingest repository %s: %w", repoFullName, err)
	}

	for _, v := range batchResult.Succeeded {
		r := v.(PRIngestionResult)
		switch {
		case r.Created:
			result.Created++
		case r.Updated:
			result.Updated++
		case r.SkippedFrozen:
			result.SkippedFrozen++
		case r.SkippedUnchanged:
			result.SkippedUnchanged++
		case r.SkippedAbandoned:
			result.SkippedAbandoned++
		}
	}

	for _, f := range batchResult.Failed {
		result.Failed++
		result.FailedPRs = append(result.FailedPRs, FailedPR{Number: numbers[f.Index], Err: f.Err})
	}

	return result, nil
}
