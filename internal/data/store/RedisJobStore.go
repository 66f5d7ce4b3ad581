package store

import (
	"context"
	"encoding/json"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/data/redisStore"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

const jobKeyPrefix = "bidextract:job:"

type RedisJobStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

func NewRedisJobStore(s *redisStore.Store) *RedisJobStore {
	return &RedisJobStore{
		store:  s,
		logger: logger_i.NewLogger("JobStore"),
	}
}

// NewJobStore connects to redis when addr is set and falls back to the
// in-memory store when it is empty or unreachable.
func NewJobStore(ctx context.Context, addr string) jobModel.JobStore {
	logger := logger_i.NewLogger("JobStore")
	if addr == "" {
		return InitInMemoryJobStore()
	}
	s, err := redisStore.GetRedisStore(ctx, addr, config.RedisJobStore)
	if err != nil {
		logger.Warn("Redis stores are offline, keeping jobs in memory", "error", err)
		return InitInMemoryJobStore()
	}
	return NewRedisJobStore(s)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (s *RedisJobStore) SaveJob(ctx context.Context, job jobModel.Job) error {
	log := s.logger.WithContext(ctx).With("jobId", job.Id)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, jobKey(job.Id), data, config.RedisJobStoreTTL); err != nil {
		log.Error("failed to save job", "error", err)
		return err
	}
	log.Debug("Saved job to Redis", "status", job.Status)
	return nil
}

func (s *RedisJobStore) GetJob(ctx context.Context, jobId string) (jobModel.Job, bool) {
	var job jobModel.Job
	log := s.logger.WithContext(ctx).With("jobId", jobId)
	val, err := s.store.Get(ctx, jobKey(jobId))
	if s.store.IsNil(err) {
		return job, false
	} else if err != nil {
		log.Warn("job lookup failed", "error", err)
		return job, false
	}

	if err := json.Unmarshal([]byte(val), &job); err != nil {
		log.Warn("unreadable job record", "error", err)
		return jobModel.Job{}, false
	}
	return job, true
}

func (s *RedisJobStore) DeleteJob(ctx context.Context, jobID string) {
	if err := s.store.Del(ctx, jobKey(jobID)); err != nil {
		s.logger.WithContext(ctx).Error("Error deleting job from Redis", "jobId", jobID, "error", err)
		return
	}
	s.logger.Debug("Job deleted from Redis", "jobId", jobID)
}
