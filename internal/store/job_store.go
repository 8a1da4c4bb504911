package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

// JobTTL bounds how long job records live in Redis
const JobTTL = 30 * 24 * time.Hour

const maxUpdateAttempts = 5

// JobStore persists jobs as JSON documents in Redis. View counts live in a
// separate counter key so reads of the share page never rewrite the document.
type JobStore struct {
	redis *redis.Client
}

func NewJobStore(redisClient *redis.Client) *JobStore {
	return &JobStore{redis: redisClient}
}

func jobKey(id string) string      { return fmt.Sprintf("job:%s", id) }
func viewsKey(id string) string    { return fmt.Sprintf("job:%s:views", id) }
func shareKey(share string) string { return fmt.Sprintf("share:%s", share) }

// Save writes the full job document
func (s *JobStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, JobTTL).Err()
}

// Get loads a job together with its view counter
func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	pipe := s.redis.Pipeline()
	docCmd := pipe.Get(ctx, jobKey(id))
	viewsCmd := pipe.Get(ctx, viewsKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := docCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errno.ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if views, err := viewsCmd.Int64(); err == nil {
		job.ViewCount = views
	}
	return &job, nil
}

// Update applies fn to the current job document under optimistic locking.
// fn may return an error to abort without writing.
func (s *JobStore) Update(ctx context.Context, id string, fn func(job *model.Job) error) (*model.Job, error) {
	key := jobKey(id)
	var updated *model.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errno.ErrJobNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if err := fn(&job); err != nil {
			return err
		}

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, JobTTL)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if views, err := s.redis.Get(ctx, viewsKey(id)).Int64(); err == nil {
			updated.ViewCount = views
		}
		return updated, nil
	}
	return nil, fmt.Errorf("job %s: too many concurrent updates", id)
}

// ReserveShareID claims a share id for jobID. It returns false if the id is
// already taken; share ids are never released.
func (s *JobStore) ReserveShareID(ctx context.Context, shareID, jobID string) (bool, error) {
	return s.redis.SetNX(ctx, shareKey(shareID), jobID, 0).Result()
}

// GetByShareID resolves a share id to its job
func (s *JobStore) GetByShareID(ctx context.Context, shareID string) (*model.Job, error) {
	jobID, err := s.redis.Get(ctx, shareKey(shareID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errno.ErrShareNotFound
		}
		return nil, err
	}
	job, err := s.Get(ctx, jobID)
	if errors.Is(err, errno.ErrJobNotFound) {
		return nil, errno.ErrShareNotFound
	}
	return job, err
}

// IncrementViews atomically bumps the view counter and returns the new value
func (s *JobStore) IncrementViews(ctx context.Context, jobID string) (int64, error) {
	return s.redis.Incr(ctx, viewsKey(jobID)).Result()
}
