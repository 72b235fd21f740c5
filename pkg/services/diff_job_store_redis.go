package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/models"
)

const redisJobKeyPrefix = "bomdiff:job:"

type redisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisJobStore creates a job store shared by every replica that points at the same Redis.
// Jobs and their flags expire after ttl.
func NewRedisJobStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) JobStore {
	return &redisJobStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("redis-job-store"),
	}
}

var _ JobStore = (*redisJobStore)(nil)

func jobKey(jobID string) string {
	return redisJobKeyPrefix + jobID
}

func flagsKey(jobID string) string {
	return redisJobKeyPrefix + jobID + ":flags"
}

func (s *redisJobStore) Put(ctx context.Context, job *models.DiffJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal diff job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.JobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store diff job: %w", err)
	}
	s.logger.Debug("Stored diff job",
		zap.String("job_id", job.JobID),
		zap.Int("bytes", len(data)))
	return nil
}

func (s *redisJobStore) Get(ctx context.Context, jobID string) (*models.DiffJob, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load diff job: %w", err)
	}

	var job models.DiffJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diff job: %w", err)
	}
	return &job, nil
}

func (s *redisJobStore) MarkOnce(ctx context.Context, jobID, flag string) (bool, error) {
	key := flagsKey(jobID)
	set, err := s.client.HSetNX(ctx, key, flag, time.Now().UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s: %w", flag, err)
	}
	if set {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.Warn("Failed to set flag expiry",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
	}
	return set, nil
}
