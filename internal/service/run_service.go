package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdmflow/internal/model"
	"pdmflow/internal/pipeline"
	"pdmflow/internal/training"
	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/lock"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/notification"
	"pdmflow/pkg/status"
	"pdmflow/pkg/tracking"
)

const lockPollInterval = 5 * time.Second

// ProgressStore ephemeral run progress
type ProgressStore interface {
	Save(ctx context.Context, p *model.RunProgress) error
	Get(ctx context.Context, runID string) (*model.RunProgress, error)
}

// RunNotifier delivers finished-run notifications
type RunNotifier interface {
	NotifyRun(ctx context.Context, url string, note *notification.RunNotification) error
}

// LockFactory returns the lock serializing runs of an experiment
type LockFactory func(experiment string) lock.DistributedLock

// RunService creates, queues and executes pipeline runs
type RunService struct {
	cfg       *config.Config
	store     interfaces.TrackingStore
	artifacts interfaces.ArtifactStore
	pipeline  *pipeline.Pipeline
	sanitizer *status.Sanitizer
	log       *logger.Logger

	queue    interfaces.RunQueue
	progress ProgressStore
	notifier RunNotifier
	newLock  LockFactory
}

// NewRunService creates a run service. Queue, progress store, notifier and
// lock factory are optional and set with the With* methods.
func NewRunService(cfg *config.Config, store interfaces.TrackingStore, artifacts interfaces.ArtifactStore, p *pipeline.Pipeline, log *logger.Logger) *RunService {
	return &RunService{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		pipeline:  p,
		sanitizer: status.NewSanitizer(),
		log:       log,
		newLock: func(experiment string) lock.DistributedLock {
			return lock.ForExperiment(nil, experiment, log)
		},
	}
}

// WithQueue sets the queue used by Submit
func (s *RunService) WithQueue(q interfaces.RunQueue) *RunService {
	s.queue = q
	return s
}

// WithProgress sets the progress store
func (s *RunService) WithProgress(p ProgressStore) *RunService {
	s.progress = p
	return s
}

// WithNotifier sets the notifier
func (s *RunService) WithNotifier(n RunNotifier) *RunService {
	s.notifier = n
	return s
}

// WithLocks sets the experiment lock factory
func (s *RunService) WithLocks(f LockFactory) *RunService {
	s.newLock = f
	return s
}

// Create records a new PENDING run
func (s *RunService) Create(ctx context.Context, req *model.SubmitRunRequest) (*model.Run, error) {
	now := time.Now()
	run := &model.Run{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Experiment: req.Experiment,
		Status:     model.RunStatusPending,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if run.Name == "" {
		run.Name = s.cfg.Training.RunName
	}
	if run.Experiment == "" {
		run.Experiment = s.cfg.Tracking.Experiment
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	s.log.InfoCtx(ctx, "run created, run_id: %s, experiment: %s", run.ID, run.Experiment)
	return run, nil
}

// Submit creates a run and queues it for a worker
func (s *RunService) Submit(ctx context.Context, req *model.SubmitRunRequest) (*model.SubmitRunResponse, error) {
	if s.queue == nil {
		return nil, errors.New("run queue is not configured")
	}
	run, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.queue.EnqueueRun(ctx, run.ID); err != nil {
		if _, uerr := s.store.UpdateRunStatus(ctx, run.ID,
			[]model.RunStatus{model.RunStatusPending}, model.RunStatusFailed, s.sanitizer.Sanitize(err.Error())); uerr != nil {
			s.log.ErrorCtx(ctx, "failed to mark run %s failed: %v", run.ID, uerr)
		}
		return nil, err
	}
	return &model.SubmitRunResponse{ID: run.ID, Status: run.Status}, nil
}

// Execute runs the pipeline for a PENDING run. Runs of the same experiment
// execute one at a time. Finished runs are skipped, so redelivery is harmless.
func (s *RunService) Execute(ctx context.Context, runID string) error {
	ctx = logger.WithTraceID(ctx, runID)
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if run.Status != model.RunStatusPending {
		s.log.WarnCtx(ctx, "run %s is %s, skipping execution", runID, run.Status)
		return nil
	}

	l := s.newLock(run.Experiment)
	if err := lock.Acquire(ctx, l, lockPollInterval); err != nil {
		return fmt.Errorf("failed to lock experiment %s: %w", run.Experiment, err)
	}
	defer func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.WarnCtx(ctx, "failed to release experiment lock: %v", err)
		}
	}()

	ok, err := s.store.UpdateRunStatus(ctx, runID,
		[]model.RunStatus{model.RunStatusPending}, model.RunStatusRunning, "")
	if err != nil {
		return err
	}
	if !ok {
		s.log.WarnCtx(ctx, "run %s left PENDING while waiting for the lock", runID)
		return nil
	}

	sink := tracking.NewSink(run.ID, run.Experiment, s.store, s.artifacts)
	res, runErr := s.pipeline.Run(ctx, sink, s.reporter(ctx, runID))

	// record the outcome even if the task context was cancelled
	finishCtx := context.WithoutCancel(ctx)
	runStatus, errMsg := model.RunStatusCompleted, ""
	if runErr != nil {
		runStatus, errMsg = model.RunStatusFailed, s.sanitizer.Sanitize(runErr.Error())
		s.log.ErrorCtx(ctx, "run %s failed: %v", runID, runErr)
	}
	ok, err = s.store.UpdateRunStatus(finishCtx, runID,
		[]model.RunStatus{model.RunStatusRunning}, runStatus, errMsg)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if !ok {
		// the stale-run reaper finished it first; its status stands
		current, err := s.store.GetRun(finishCtx, runID)
		if err != nil {
			return fmt.Errorf("failed to reload run: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		s.log.WarnCtx(ctx, "run %s was marked %s during execution, discarding %s outcome", runID, current.Status, runStatus)
		runStatus, errMsg, res = current.Status, current.Error, nil
	}
	if s.progress != nil {
		if err := s.progress.Save(finishCtx, &model.RunProgress{RunID: runID, Stage: model.StageDone, Done: 1, Total: 1}); err != nil {
			s.log.WarnCtx(ctx, "failed to save progress: %v", err)
		}
	}
	s.notify(finishCtx, run, runStatus, errMsg, res)

	if runStatus == model.RunStatusCompleted && res != nil {
		s.log.InfoCtx(ctx, "run %s completed, test_accuracy=%.4f test_f1=%.4f", runID, res.TestAccuracy, res.TestF1)
	}
	return runErr
}

// reporter saves stage progress. Saves within a stage are skipped unless a
// whole percent was gained.
func (s *RunService) reporter(ctx context.Context, runID string) pipeline.Reporter {
	if s.progress == nil {
		return nil
	}
	var mu sync.Mutex
	lastStage, lastPct := "", -1
	return func(stage string, done, total int) {
		pct := 100
		if total > 0 {
			pct = done * 100 / total
		}
		mu.Lock()
		if stage == lastStage && pct == lastPct {
			mu.Unlock()
			return
		}
		lastStage, lastPct = stage, pct
		mu.Unlock()

		p := &model.RunProgress{RunID: runID, Stage: stage, Done: done, Total: total}
		if err := s.progress.Save(ctx, p); err != nil {
			s.log.WarnCtx(ctx, "failed to save progress: %v", err)
		}
	}
}

func (s *RunService) notify(ctx context.Context, run *model.Run, runStatus model.RunStatus, errMsg string, res *training.Result) {
	if s.notifier == nil {
		return
	}
	note := &notification.RunNotification{
		RunID:       run.ID,
		Name:        run.Name,
		Experiment:  run.Experiment,
		Status:      runStatus,
		Error:       errMsg,
		CompletedAt: time.Now(),
	}
	if res != nil {
		note.Metrics = map[string]float64{
			"train_accuracy": res.TrainAccuracy,
			"train_f1_score": res.TrainF1,
			"test_accuracy":  res.TestAccuracy,
			"test_f1_score":  res.TestF1,
		}
		if res.ModelVersion != nil {
			note.ModelName = res.ModelVersion.Name
			note.Version = res.ModelVersion.Version
		}
	}
	if err := s.notifier.NotifyRun(ctx, run.WebhookURL, note); err != nil {
		s.log.WarnCtx(ctx, "failed to notify run %s: %v", run.ID, err)
	}
}

// Get returns a run with its params, metrics and artifacts
func (s *RunService) Get(ctx context.Context, runID string) (*model.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// List lists runs newest first
func (s *RunService) List(ctx context.Context, experiment string, limit, offset int) ([]*model.Run, error) {
	return s.store.ListRuns(ctx, experiment, limit, offset)
}

// Progress returns the latest progress of a run. Runs that never reported
// progress get a synthetic entry derived from their status.
func (s *RunService) Progress(ctx context.Context, runID string) (*model.RunProgress, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if s.progress != nil {
		p, err := s.progress.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	stage := model.StageLoading
	if run.Status.IsTerminal() {
		stage = model.StageDone
	}
	return &model.RunProgress{RunID: runID, Stage: stage, UpdatedAt: run.UpdatedAt}, nil
}

// Cancel fails a PENDING run and removes it from the queue
func (s *RunService) Cancel(ctx context.Context, runID string) error {
	if _, err := s.Get(ctx, runID); err != nil {
		return err
	}
	ok, err := s.store.UpdateRunStatus(ctx, runID,
		[]model.RunStatus{model.RunStatusPending}, model.RunStatusFailed, "cancelled")
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunNotCancellable
	}
	if s.queue != nil {
		if err := s.queue.CancelRun(ctx, runID); err != nil {
			// Execute skips non-PENDING runs, so a leftover task is harmless
			s.log.WarnCtx(ctx, "failed to remove run %s from queue: %v", runID, err)
		}
	}
	s.log.InfoCtx(ctx, "run cancelled, run_id: %s", runID)
	return nil
}

// ExpireStale fails RUNNING runs started before cutoff
func (s *RunService) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := s.store.ListStaleRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, run := range runs {
		msg := fmt.Sprintf("run exceeded stale timeout (started %s)", run.StartedAt.Format(time.RFC3339))
		ok, err := s.store.UpdateRunStatus(ctx, run.ID,
			[]model.RunStatus{model.RunStatusRunning}, model.RunStatusFailed, msg)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
			s.log.WarnCtx(ctx, "run %s marked failed: %s", run.ID, msg)
		}
	}
	return expired, nil
}

// PurgeBefore deletes finished runs created before cutoff along with their artifacts
func (s *RunService) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := s.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		if err := s.artifacts.DeletePrefix(ctx, tracking.RunPrefix(run.Experiment, run.ID)); err != nil {
			s.log.WarnCtx(ctx, "failed to delete artifacts of run %s: %v", run.ID, err)
		}
	}
	return len(runs), nil
}
