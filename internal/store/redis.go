package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/practicepulse/api/internal/model"
)

const (
	jobKeyPrefix  = "automation:job:"
	jobIndexKey   = "automation:jobs"
	taskKeyPrefix = "automation:tasks:"
)

// RedisStore keeps each job as one JSON blob plus a creation-time index for
// listings. A job save is a single SET, so a concurrent GET sees either the
// old snapshot or the new one, never a mix.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, data, 0).Err(); err != nil {
		return err
	}

	return s.client.ZAdd(ctx, jobIndexKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixMilli()),
		Member: job.ID,
	}).Err()
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (s *RedisStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		return err
	}
	return s.client.ZRem(ctx, jobIndexKey, jobID).Err()
}

func (s *RedisStore) ListJobIDs(ctx context.Context) ([]string, error) {
	return s.client.ZRevRange(ctx, jobIndexKey, 0, -1).Result()
}

func (s *RedisStore) SaveTasks(ctx context.Context, jobID string, tasks []*model.Task) error {
	key := taskKeyPrefix + jobID
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return err
	}

	if len(tasks) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(tasks))
	for _, task := range tasks {
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		values = append(values, data)
	}

	return s.client.RPush(ctx, key, values...).Err()
}

func (s *RedisStore) ListTasks(ctx context.Context, jobID string) ([]*model.Task, error) {
	items, err := s.client.LRange(ctx, taskKeyPrefix+jobID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]*model.Task, 0, len(items))
	for _, item := range items {
		var task model.Task
		if err := json.Unmarshal([]byte(item), &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	return tasks, nil
}

func (s *RedisStore) DeleteTasks(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, taskKeyPrefix+jobID).Err()
}
