package main

import (
	"time"

	"pdmflow/internal/jobs"
	"pdmflow/pkg/lock"
)

func (app *Application) initJobs() error {
	if app.runService == nil {
		app.log.WarnCtx(app.ctx, "Service layer not fully initialized yet, skipping background task registration")
		return nil
	}

	// Without redis the job locks only exclude cycles inside this process.
	client := app.rawRedis()
	manager := jobs.NewManager(app.ctx, func(job string, maxHold time.Duration) lock.DistributedLock {
		return lock.ForJob(client, job, maxHold, app.log)
	}, app.log)

	jobsCfg := app.config.Jobs
	manager.Register(jobs.StaleRunReaper(app.runService, jobsCfg.Interval, jobsCfg.StaleRunTimeout))
	manager.Register(jobs.RetentionCleanup(app.runService, jobsCfg.Interval, jobsCfg.RetentionDays))

	app.jobsManager = manager
	return nil
}
