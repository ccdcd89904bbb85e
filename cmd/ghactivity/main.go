package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/ghactivity/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/ghactivity/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ghactivity/internal/commit"
	"github.com/ericfisherdev/ghactivity/internal/config"
	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/ingestion"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
	"github.com/ericfisherdev/ghactivity/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"db_path", cfg.DBPath,
		"tracked_repos", cfg.TrackedRepos,
		"merge_grace_period", cfg.MergeGracePeriod,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire rate-limit monitoring, pacing, and priority scheduling.
	monitor := ratelimit.NewMonitor(cfg.Thresholds, cfg.MinRemainingBuffer, cfg.TrackFromHeaders)
	pacer := pacing.NewPacer(cfg.Pacer, monitor)
	scheduler := pacing.NewScheduler(cfg.Scheduler, pacer)
	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	// 6. Create GitHub client. Ingestion is a no-op until a token is set.
	var ghClient *githubadapter.Client
	if cfg.GitHubToken != "" {
		ghClient = githubadapter.NewClient(cfg.GitHubToken, monitor)
		slog.Info("github client created")
	} else {
		slog.Warn("no github token configured, ingestion will fail until one is set")
	}

	// 7. Wire stores.
	repoStore := sqliteadapter.NewRepoRepo(db)
	prStore := sqliteadapter.NewPRRepo(db, cfg.MergeGracePeriod)
	failureStore := sqliteadapter.NewSyncFailureRepo(db)

	// 8. Commit manager batches ingestion writes into groups of
	// CommitBatchSize, serialized against the single writer connection.
	var writeLock sync.Mutex
	commitMgr, err := commit.NewManager(db.Writer.Begin, &writeLock, cfg.CommitBatchSize)
	if err != nil {
		return err
	}

	// 9. Wire the ingestion pipeline, batch executor, and orchestrator.
	progress := pacing.NewProgressTracker(0, "pr-ingestion")
	executor := pacing.NewBatchExecutor(scheduler, progress, model.RateLimitPoolCore, false, 50)
	pipeline := ingestion.NewPipeline(ghClient, repoStore, prStore, scheduler, cfg.MergeGracePeriod)
	orchestrator := ingestion.NewOrchestrator(pipeline, repoStore, executor, commitMgr)
	retrySvc := ingestion.NewRetryService(pipeline, failureStore, repoStore, cfg.Scheduler.MaxRetries)

	slog.Info("ghactivity started", "tracked_repos", len(cfg.TrackedRepos))

	if ghClient != nil {
		go runSyncLoop(ctx, orchestrator, retrySvc, cfg)
	}

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	if _, err := commitMgr.Finalize(); err != nil {
		slog.Error("failed to flush final commit batch", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// runSyncLoop periodically syncs every tracked repository and retries
// outstanding sync failures, until ctx is canceled.
func runSyncLoop(ctx context.Context, orchestrator *ingestion.Orchestrator, retrySvc *ingestion.RetryService, cfg *config.Config) {
	const syncInterval = 15 * time.Minute

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	runOnce := func() {
		result, err := orchestrator.SyncAll(ctx, cfg.TrackedRepos, ingestion.BulkConfig{State: "all"})
		if err != nil {
			slog.Error("sync run failed", "error", err)
			return
		}
		slog.Info("sync run complete",
			"discovered", result.TotalDiscovered,
			"created", result.TotalCreated,
			"updated", result.TotalUpdated,
			"skipped", result.TotalSkipped,
			"failed", result.TotalFailed,
		)

		retryResult, err := retrySvc.RetryFailures(ctx, 0, false)
		if err != nil {
			slog.Error("retry run failed", "error", err)
			return
		}
		if retryResult.TotalPending > 0 {
			slog.Info("retry run complete",
				"pending", retryResult.TotalPending,
				"succeeded", retryResult.Succeeded,
				"failed_again", retryResult.FailedAgain,
				"marked_permanent", retryResult.MarkedPermanent,
			)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
