package ingestion_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ghactivity/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
	"github.com/ericfisherdev/ghactivity/internal/ratelimit"
)

const testGracePeriod = 14 * 24 * time.Hour

// setupTestDB creates a migrated, file-backed SQLite database unique to the
// test, torn down automatically at test end.
func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ingestion-test.db")
	db, err := sqlite.NewDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, sqlite.RunMigrations(db.Writer))
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func addRepo(t *testing.T, repos *sqlite.RepoRepo, fullName string) model.Repository {
	t.Helper()
	owner, name, _ := splitFullName(fullName)
	stored, err := repos.Add(context.Background(), model.Repository{Owner: owner, Name: name, FullName: fullName})
	require.NoError(t, err)
	return stored
}

func splitFullName(fullName string) (owner, name string, ok bool) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:], true
		}
	}
	return "", "", false
}

// fakeGitHubClient is a scripted driven.GitHubClient for ingestion tests: it
// never makes a network call, returning canned PRs and numbers keyed by PR
// number, with optional per-number errors.
type fakeGitHubClient struct {
	prs        map[int]model.PullRequest
	errs       map[int]error
	numbers    []int
	numbersErr error
	calls      int
}

// DiscoverPullRequests yields a summary per number in f.numbers, in order,
// deriving its fields from f.prs when a full PR was scripted for that
// number and defaulting to an open, unmerged, zero-time summary otherwise.
func (f *fakeGitHubClient) DiscoverPullRequests(ctx context.Context, repoFullName string, yield func(driven.PRSummary) bool) error {
	if f.numbersErr != nil {
		return f.numbersErr
	}
	for _, n := range f.numbers {
		summary := driven.PRSummary{Number: n, State: "open"}
		if pr, ok := f.prs[n]; ok {
			summary.CreatedAt = pr.OpenDate
			summary.Merged = pr.State == model.PRStateMerged
			if pr.State != model.PRStateOpen {
				summary.State = "closed"
			}
		}
		if !yield(summary) {
			return nil
		}
	}
	return nil
}

func (f *fakeGitHubClient) FetchPullRequest(ctx context.Context, repoFullName string, number int) (model.PullRequest, error) {
	f.calls++
	if err, ok := f.errs[number]; ok {
		return model.PullRequest{}, err
	}
	pr, ok := f.prs[number]
	if !ok {
		return model.PullRequest{}, fmt.Errorf("fake client: no PR #%d scripted", number)
	}
	return pr, nil
}

// testScheduler returns a Scheduler running against a fast, always-healthy
// pacer, started and registered for cleanup.
func testScheduler(t *testing.T) *pacing.Scheduler {
	t.Helper()
	monitor := ratelimit.NewMonitor(ratelimit.DefaultThresholds, 0, true)
	pacer := pacing.NewPacer(pacing.PacerConfig{MinInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, monitor)
	sched := pacing.NewScheduler(pacing.SchedulerConfig{MaxConcurrent: 4, MaxRetries: 2}, pacer)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	t.Cleanup(func() {
		cancel()
		sched.Shutdown()
	})

	return sched
}
