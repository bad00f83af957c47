package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/practicepulse/api/internal/model"
	"github.com/practicepulse/api/internal/pipeline"
	"github.com/practicepulse/api/internal/store"
)

const TaskTypeAutomation = "automation:process"

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// RunEnqueuer schedules a pipeline run for a job on the background worker.
type RunEnqueuer interface {
	EnqueueRun(jobID string) error
}

// AsynqEnqueuer enqueues pipeline runs on the asynq automation queue.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) EnqueueRun(jobID string) error {
	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeAutomation, payload)
	_, err = e.client.Enqueue(task,
		asynq.Queue("automation"),
		asynq.MaxRetry(0), // retries are always explicit, never automatic
		asynq.Retention(7*24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// InlineEnqueuer runs jobs on a goroutine instead of a queue, for local
// development and tests without Redis.
type InlineEnqueuer struct {
	engine *pipeline.Engine
}

func NewInlineEnqueuer(engine *pipeline.Engine) *InlineEnqueuer {
	return &InlineEnqueuer{engine: engine}
}

func (e *InlineEnqueuer) EnqueueRun(jobID string) error {
	go func() {
		err := e.engine.Run(context.Background(), jobID)
		if err != nil && !pipeline.IsKind(err, pipeline.KindStepExecutionFailed) &&
			!pipeline.IsKind(err, pipeline.KindConcurrentRunConflict) {
			log.Printf("Inline run for job %s: %v", jobID, err)
		}
	}()
	return nil
}

// AutomationService fronts the pipeline engine for the HTTP layer: job
// creation, the status projection reads, approval and retry signals, and the
// operator CRUD around jobs.
type AutomationService struct {
	store    store.Store
	engine   *pipeline.Engine
	enqueuer RunEnqueuer
}

func NewAutomationService(st store.Store, engine *pipeline.Engine, enqueuer RunEnqueuer) *AutomationService {
	return &AutomationService{
		store:    st,
		engine:   engine,
		enqueuer: enqueuer,
	}
}

// CreateJob creates an ingestion job and schedules its first run.
func (s *AutomationService) CreateJob(ctx context.Context, req *model.JobCreateRequest) (*model.JobCreateResponse, error) {
	job, err := s.engine.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueRun(job.ID); err != nil {
		return nil, err
	}

	return &model.JobCreateResponse{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		Source:         job.Source,
		Status:         job.Status.Status,
		CreatedAt:      job.CreatedAt,
	}, nil
}

// GetStatus returns the job's current status projection.
func (s *AutomationService) GetStatus(ctx context.Context, jobID string) (*model.AutomationStatusDetail, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	detail := job.Status.Clone()
	return &detail, nil
}

// SetApproval applies an approval signal and, if it unblocked the gate the
// job is parked on, schedules the next run.
func (s *AutomationService) SetApproval(ctx context.Context, jobID string, req *model.ApprovalRequest) (*model.ApprovalResponse, error) {
	job, unblocked, err := s.engine.SetApproval(ctx, jobID, req.Which, *req.Value)
	if err != nil {
		return nil, err
	}

	if unblocked {
		if err := s.enqueuer.EnqueueRun(jobID); err != nil {
			return nil, err
		}
	}

	return &model.ApprovalResponse{
		JobID:            job.ID,
		IsApproved:       job.IsApproved,
		IsClientApproved: job.IsClientApproved,
		Status:           job.Status.Status,
	}, nil
}

// Retry rewinds a failed job to the given step and schedules a run from there.
func (s *AutomationService) Retry(ctx context.Context, jobID string, req *model.RetryRequest) (*model.RetryResponse, error) {
	job, err := s.engine.Retry(ctx, jobID, req.Step)
	if err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueRun(jobID); err != nil {
		return nil, err
	}

	return &model.RetryResponse{
		JobID:          job.ID,
		StepRetried:    req.Step,
		OrganizationID: job.OrganizationID,
	}, nil
}

// ListJobs returns a filtered, paginated page of jobs, newest first.
func (s *AutomationService) ListJobs(ctx context.Context, filter *model.JobListFilter) (*model.JobListResponse, error) {
	jobs, err := s.loadJobs(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		if filter.Status != "" && job.Status.Status != filter.Status {
			continue
		}
		if filter.Approved != nil && job.IsApproved != *filter.Approved {
			continue
		}
		if filter.ClientApproved != nil && job.IsClientApproved != *filter.ClientApproved {
			continue
		}
		if filter.OrganizationID != "" && job.OrganizationID != filter.OrganizationID {
			continue
		}
		filtered = append(filtered, job)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	total := len(filtered)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &model.JobListResponse{
		Jobs: filtered[start:end],
		Pagination: model.Pagination{
			Page:        page,
			PerPage:     perPage,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: page < totalPages,
		},
	}, nil
}

// ActiveJobs returns every job that has not completed, newest first.
func (s *AutomationService) ActiveJobs(ctx context.Context) (*model.ActiveJobsResponse, error) {
	jobs, err := s.loadJobs(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.Status != model.AutomationStatusCompleted {
			active = append(active, job)
		}
	}

	return &model.ActiveJobsResponse{Jobs: active, Total: len(active)}, nil
}

// ListTasks returns the tasks generated for one job.
func (s *AutomationService) ListTasks(ctx context.Context, jobID string) (*model.TaskListResponse, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.TaskListResponse{JobID: jobID, Tasks: tasks, Total: len(tasks)}, nil
}

// GetResponsePayload returns the operator-visible raw payload.
func (s *AutomationService) GetResponsePayload(ctx context.Context, jobID string) (*model.JobResponsePayload, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobResponsePayload{JobID: job.ID, Response: string(job.Response)}, nil
}

// UpdateResponsePayload overwrites the raw payload on behalf of an operator.
func (s *AutomationService) UpdateResponsePayload(ctx context.Context, jobID string, payload string) (*model.JobResponsePayload, error) {
	job, err := s.engine.UpdateResponse(ctx, jobID, []byte(payload))
	if err != nil {
		return nil, err
	}
	return &model.JobResponsePayload{JobID: job.ID, Response: string(job.Response)}, nil
}

// DeleteJob removes a job and its tasks. The pipeline itself never deletes
// jobs; this is the explicit operator path.
func (s *AutomationService) DeleteJob(ctx context.Context, jobID string) error {
	return s.engine.DeleteJob(ctx, jobID)
}

func (s *AutomationService) loadJobs(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.store.ListJobIDs(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			if err == store.ErrJobNotFound {
				continue // deleted between index read and fetch
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
