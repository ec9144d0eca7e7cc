package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pdmflow/internal/model"
)

const (
	progressKeyPrefix = "pdmflow:progress:" // progress of a run (pdmflow:progress:{runID})
	activeRunsKey     = "pdmflow:runs:active"
	progressTTL       = 24 * time.Hour
)

// ProgressRepository keeps ephemeral stage progress of running pipelines
type ProgressRepository struct {
	redis *redis.Client
}

// NewProgressRepository creates a progress repository
func NewProgressRepository(redisClient *RedisClient) *ProgressRepository {
	return &ProgressRepository{
		redis: redisClient.GetClient(),
	}
}

// Save stores the progress of a run and marks it active
func (r *ProgressRepository) Save(ctx context.Context, p *model.RunProgress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, progressKeyPrefix+p.RunID, data, progressTTL)
	if p.Stage == model.StageDone {
		pipe.SRem(ctx, activeRunsKey, p.RunID)
	} else {
		pipe.SAdd(ctx, activeRunsKey, p.RunID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// Get returns the progress of a run, nil when none was recorded
func (r *ProgressRepository) Get(ctx context.Context, runID string) (*model.RunProgress, error) {
	data, err := r.redis.Get(ctx, progressKeyPrefix+runID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var p model.RunProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &p, nil
}

// ActiveRuns lists ids of runs that have reported progress but not finished
func (r *ProgressRepository) ActiveRuns(ctx context.Context) ([]string, error) {
	ids, err := r.redis.SMembers(ctx, activeRunsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active runs: %w", err)
	}
	return ids, nil
}

// Delete removes progress of a run
func (r *ProgressRepository) Delete(ctx context.Context, runID string) error {
	pipe := r.redis.Pipeline()
	pipe.Del(ctx, progressKeyPrefix+runID)
	pipe.SRem(ctx, activeRunsKey, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}
