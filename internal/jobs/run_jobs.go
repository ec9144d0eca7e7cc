package jobs

import (
	"context"
	"time"
)

// Job names, also used as lock keys
const (
	StaleRunReaperName   = "stale-run-reaper"
	RetentionCleanupName = "run-retention-cleanup"
)

// RunMaintainer is the part of the run service the jobs drive
type RunMaintainer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// StaleRunReaper fails runs stuck in RUNNING longer than timeout
func StaleRunReaper(runs RunMaintainer, interval, timeout time.Duration) Job {
	return Job{
		Name:     StaleRunReaperName,
		Interval: interval,
		MaxAge:   timeout,
		Apply:    runs.ExpireStale,
		Verb:     "marked failed",
	}
}

// RetentionCleanup deletes finished runs older than retentionDays. It runs on
// aligned interval boundaries.
func RetentionCleanup(runs RunMaintainer, interval time.Duration, retentionDays int) Job {
	return Job{
		Name:     RetentionCleanupName,
		Interval: interval,
		MaxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		Aligned:  true,
		Apply:    runs.PurgeBefore,
		Verb:     "purged",
	}
}
