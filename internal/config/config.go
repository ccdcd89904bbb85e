// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/pacing"
	"github.com/ericfisherdev/ghactivity/internal/ratelimit"
)

// Config holds the application configuration loaded from environment
// variables, grouped by the subsystem that consumes each piece.
type Config struct {
	GitHubToken      string
	TrackedRepos     []string
	DBPath           string
	MergeGracePeriod time.Duration

	Pacer     pacing.PacerConfig
	Scheduler pacing.SchedulerConfig

	Thresholds         ratelimit.Thresholds
	MinRemainingBuffer int
	TrackFromHeaders   bool

	CommitBatchSize int
}

// Load reads configuration from environment variables and returns a
// validated Config.
//
// Required: GHACTIVITY_TRACKED_REPOS.
// Optional: GHACTIVITY_GITHUB_TOKEN (warns when absent; ingestion against
// GitHub is disabled until it's set).
// Everything else has a default tuned for GitHub's default rate limits.
func Load() (*Config, error) {
	var cfg Config

	token, tokenSet := os.LookupEnv("GHACTIVITY_GITHUB_TOKEN")
	if !tokenSet || token == "" {
		slog.Warn("GHACTIVITY_GITHUB_TOKEN not set — ingestion disabled until a token is configured")
		cfg.GitHubToken = ""
	} else {
		cfg.GitHubToken = token
	}

	repos, ok := os.LookupEnv("GHACTIVITY_TRACKED_REPOS")
	if !ok || strings.TrimSpace(repos) == "" {
		return nil, fmt.Errorf("GHACTIVITY_TRACKED_REPOS is required but not set")
	}
	var tracked []string
	for _, r := range strings.Split(repos, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "/") {
			return nil, fmt.Errorf("GHACTIVITY_TRACKED_REPOS entry %q must be owner/name", r)
		}
		tracked = append(tracked, r)
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("GHACTIVITY_TRACKED_REPOS is required but not set")
	}
	cfg.TrackedRepos = tracked

	cfg.DBPath = "ghactivity.db"
	if v, ok := os.LookupEnv("GHACTIVITY_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	cfg.MergeGracePeriod = 336 * time.Hour
	if v, ok := os.LookupEnv("GHACTIVITY_MERGE_GRACE_PERIOD"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GHACTIVITY_MERGE_GRACE_PERIOD has invalid duration %q: %w", v, err)
		}
		cfg.MergeGracePeriod = parsed
	}

	minIntervalMs, err := intEnv("GHACTIVITY_MIN_REQUEST_INTERVAL_MS", 100)
	if err != nil {
		return nil, err
	}
	maxIntervalMs, err := intEnv("GHACTIVITY_MAX_REQUEST_INTERVAL_MS", 5000)
	if err != nil {
		return nil, err
	}
	reserveBufferPct, err := floatEnv("GHACTIVITY_RESERVE_BUFFER_PCT", 10)
	if err != nil {
		return nil, err
	}
	burstAllowance, err := intEnv("GHACTIVITY_BURST_ALLOWANCE", 10)
	if err != nil {
		return nil, err
	}
	cfg.Pacer = pacing.PacerConfig{
		MinInterval:      time.Duration(minIntervalMs) * time.Millisecond,
		MaxInterval:      time.Duration(maxIntervalMs) * time.Millisecond,
		ReserveBufferPct: reserveBufferPct,
		BurstAllowance:   burstAllowance,
	}

	maxConcurrent, err := intEnv("GHACTIVITY_MAX_CONCURRENT_REQUESTS", 5)
	if err != nil {
		return nil, err
	}
	maxRetries, err := intEnv("GHACTIVITY_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cfg.Scheduler = pacing.SchedulerConfig{
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
	}

	healthyPct, err := floatEnv("GHACTIVITY_HEALTHY_THRESHOLD_PCT", 50)
	if err != nil {
		return nil, err
	}
	warningPct, err := floatEnv("GHACTIVITY_WARNING_THRESHOLD_PCT", 20)
	if err != nil {
		return nil, err
	}
	criticalPct, err := floatEnv("GHACTIVITY_CRITICAL_THRESHOLD_PCT", 0)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = ratelimit.Thresholds{
		HealthyPct:  healthyPct,
		WarningPct:  warningPct,
		CriticalPct: criticalPct,
	}

	minRemainingBuffer, err := intEnv("GHACTIVITY_MIN_REMAINING_BUFFER", 50)
	if err != nil {
		return nil, err
	}
	cfg.MinRemainingBuffer = minRemainingBuffer

	cfg.TrackFromHeaders = true
	if v, ok := os.LookupEnv("GHACTIVITY_TRACK_FROM_HEADERS"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GHACTIVITY_TRACK_FROM_HEADERS has invalid boolean %q: %w", v, err)
		}
		cfg.TrackFromHeaders = parsed
	}

	commitBatchSize, err := intEnv("GHACTIVITY_COMMIT_BATCH_SIZE", 25)
	if err != nil {
		return nil, err
	}
	cfg.CommitBatchSize = commitBatchSize

	return &cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid number %q: %w", key, v, err)
	}
	return parsed, nil
}
