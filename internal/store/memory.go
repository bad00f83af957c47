package store

import (
	"context"
	"sort"
	"sync"

	"github.com/practicepulse/api/internal/model"
)

// MemoryStore is an in-process Store used for tests and for local development
// without Redis. Jobs are stored as deep copies on both save and get, so a
// returned snapshot is never mutated by a concurrent writer.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	tasks map[string][]*model.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*model.Job),
		tasks: make(map[string][]*model.Task),
	}
}

func (s *MemoryStore) SaveJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) ListJobIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids, nil
}

func (s *MemoryStore) SaveTasks(_ context.Context, jobID string, tasks []*model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copies := make([]*model.Task, len(tasks))
	for i, task := range tasks {
		cp := *task
		copies[i] = &cp
	}
	s.tasks[jobID] = copies
	return nil
}

func (s *MemoryStore) ListTasks(_ context.Context, jobID string) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := s.tasks[jobID]
	copies := make([]*model.Task, len(tasks))
	for i, task := range tasks {
		cp := *task
		copies[i] = &cp
	}
	return copies, nil
}

func (s *MemoryStore) DeleteTasks(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, jobID)
	return nil
}
