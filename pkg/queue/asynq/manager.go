package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"
)

const (
	TypePipelineRun = "pipeline:run"
	queueName       = "default"
)

// runPayload payload of a pipeline:run task
type runPayload struct {
	RunID string `json:"run_id"`
}

// NewRunTask builds the asynq task for runID
func NewRunTask(runID string) (*asynq.Task, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	payload, err := json.Marshal(runPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run payload: %w", err)
	}
	return asynq.NewTask(TypePipelineRun, payload), nil
}

// ParseRunTask extracts the run id from a pipeline:run task
func ParseRunTask(task *asynq.Task) (string, error) {
	var p runPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", TypePipelineRun, err)
	}
	if p.RunID == "" {
		return "", fmt.Errorf("invalid %s payload: missing run_id", TypePipelineRun)
	}
	return p.RunID, nil
}

// Manager queue manager
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	queueCfg  config.QueueConfig
	log       *logger.Logger
}

// NewManager creates queue manager
func NewManager(cfg *config.Config, log *logger.Logger) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				queueName: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * 30 * time.Second
			},
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		queueCfg:  cfg.Queue,
		log:       log,
	}, nil
}

// EnqueueRun implements interfaces.RunQueue. The run id doubles as the task
// id so a run cannot be queued twice.
func (m *Manager) EnqueueRun(ctx context.Context, runID string) error {
	task, err := NewRunTask(runID)
	if err != nil {
		return err
	}

	info, err := m.client.EnqueueContext(ctx, task,
		asynq.TaskID(runID),
		asynq.Queue(queueName),
		asynq.Timeout(time.Duration(m.queueCfg.TaskTimeout)*time.Second),
		asynq.MaxRetry(m.queueCfg.MaxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("run %s is already queued", runID)
		}
		return fmt.Errorf("failed to enqueue run: %w", err)
	}

	m.log.InfoCtx(ctx, "run enqueued, run_id: %s, queue: %s", runID, info.Queue)
	return nil
}

// CancelRun implements interfaces.RunQueue
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	if err := m.inspector.DeleteTask(queueName, runID); err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	m.log.InfoCtx(ctx, "run cancelled, run_id: %s", runID)
	return nil
}

// GetQueueStats implements interfaces.RunQueue
func (m *Manager) GetQueueStats(ctx context.Context) (*interfaces.QueueStats, error) {
	info, err := m.inspector.GetQueueInfo(queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue info: %w", err)
	}
	return &interfaces.QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Completed: info.Completed,
		Failed:    info.Failed,
	}, nil
}

// RegisterRunHandler routes pipeline:run tasks to h
func (m *Manager) RegisterRunHandler(h interfaces.RunHandler) {
	m.mux.HandleFunc(TypePipelineRun, func(ctx context.Context, task *asynq.Task) error {
		runID, err := ParseRunTask(task)
		if err != nil {
			// a malformed payload never becomes valid
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		ctx = logger.WithTraceID(ctx, runID)
		return h(ctx, runID)
	})
}

// Start starts queue processor
func (m *Manager) Start() error {
	m.log.Info("starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	m.log.Info("stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close implements interfaces.RunQueue
func (m *Manager) Close() error {
	m.inspector.Close()
	return m.client.Close()
}
