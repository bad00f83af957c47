package store

import (
	"context"
	"errors"

	"github.com/practicepulse/api/internal/model"
)

// ErrJobNotFound is returned when a job id has no record.
var ErrJobNotFound = errors.New("job not found")

// Store persists jobs and their generated tasks. Every job is written and read
// as a single value, so readers always observe one atomic snapshot of the job
// and its status projection.
type Store interface {
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	DeleteJob(ctx context.Context, jobID string) error

	// ListJobIDs returns all job ids, newest first.
	ListJobIDs(ctx context.Context) ([]string, error)

	SaveTasks(ctx context.Context, jobID string, tasks []*model.Task) error
	ListTasks(ctx context.Context, jobID string) ([]*model.Task, error)
	DeleteTasks(ctx context.Context, jobID string) error
}
