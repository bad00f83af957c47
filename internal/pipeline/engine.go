package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/practicepulse/api/internal/model"
	"github.com/practicepulse/api/internal/store"
)

// AgentRunner invokes one analytical sub-agent. Failures are folded into the
// returned AgentResult rather than surfaced as transport errors.
type AgentRunner interface {
	RunAgent(ctx context.Context, job *model.Job, agent model.MonthlyAgentKey) model.AgentResult
}

// Notifier receives job updates for realtime push. Implementations must not
// block; the engine calls it while holding the job's run lock.
type Notifier interface {
	JobUpdated(job *model.Job)
	JobCompleted(job *model.Job)
	JobFailed(job *model.Job, step model.StepKey, message string)
}

// Engine owns the ingestion pipeline: the step state machine, the approval
// gates, the monthly-agent fan-out and the retry rules. It is the only writer
// of job records; at most one advance or retry runs per job at any time.
type Engine struct {
	store        store.Store
	agents       AgentRunner
	notifier     Notifier
	locks        *jobLocks
	agentTimeout time.Duration

	now func() time.Time
}

// NewEngine creates a pipeline engine. notifier may be nil.
func NewEngine(st store.Store, agents AgentRunner, notifier Notifier, agentTimeout time.Duration) *Engine {
	if agentTimeout <= 0 {
		agentTimeout = 5 * time.Minute
	}
	return &Engine{
		store:        st,
		agents:       agents,
		notifier:     notifier,
		locks:        newJobLocks(),
		agentTimeout: agentTimeout,
		now:          time.Now,
	}
}

// CreateJob creates a job record with its initial step map. Manual-entry jobs
// have pms_parser and both approval steps pre-marked skipped; that assignment
// never changes afterwards.
func (e *Engine) CreateJob(ctx context.Context, req *model.JobCreateRequest) (*model.Job, error) {
	now := e.now()
	job := &model.Job{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		Source:         req.Source,
		CreatedAt:      now,
		Status:         newStatusDetail(req.Source, now),
	}

	switch req.Source {
	case model.SourceCSV:
		job.Response = []byte(req.File)
	case model.SourceManual:
		data, err := json.Marshal(req.ManualData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manual data: %w", err)
		}
		job.Response = data
	default:
		return nil, fmt.Errorf("unknown source type %q", req.Source)
	}

	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	return job, nil
}

// Run advances the job step by step until it completes, fails, or blocks on
// an approval gate. A second Run for the same job while one is in flight is
// rejected with a ConcurrentRunConflict.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	if !e.locks.tryLock(jobID) {
		return concurrentRun(jobID)
	}
	defer e.locks.unlock(jobID)

	for {
		job, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		// A halted job resumes only through Retry; a completed one is done.
		if job.Status.Status == model.AutomationStatusFailed ||
			job.Status.Status == model.AutomationStatusCompleted {
			return nil
		}

		step, ok := nextStep(job.Status)
		if !ok {
			return nil
		}

		if err := e.runStep(ctx, job, step); err != nil {
			e.failStep(ctx, job, step, err)
			return err
		}

		if job.Status.Status == model.AutomationStatusAwaitingApproval {
			return nil
		}
	}
}

func (e *Engine) runStep(ctx context.Context, job *model.Job, step model.StepKey) error {
	switch step {
	case model.StepFileUpload:
		return e.runFileUpload(ctx, job)
	case model.StepPMSParser:
		return e.runParser(ctx, job)
	case model.StepAdminApproval:
		return e.runApprovalGate(ctx, job, model.StepAdminApproval, job.IsApproved)
	case model.StepClientApproval:
		return e.runApprovalGate(ctx, job, model.StepClientApproval, job.IsClientApproved)
	case model.StepMonthlyAgents:
		return e.runMonthlyAgents(ctx, job)
	case model.StepTaskCreation:
		return e.runTaskCreation(ctx, job)
	case model.StepComplete:
		return e.runComplete(ctx, job)
	default:
		return stepFailed(step, "unknown step", nil)
	}
}

// runFileUpload acknowledges the already-received payload. The upload itself
// happens before the job exists, so the step completes immediately.
func (e *Engine) runFileUpload(ctx context.Context, job *model.Job) error {
	if err := e.beginStep(ctx, job, model.StepFileUpload); err != nil {
		return err
	}
	if len(job.Response) == 0 {
		return stepFailed(model.StepFileUpload, "empty payload", nil)
	}
	return e.completeStep(ctx, job, model.StepFileUpload)
}

// runParser normalizes the uploaded CSV export into referral records and
// stores them back on the job payload.
func (e *Engine) runParser(ctx context.Context, job *model.Job) error {
	if err := e.beginStep(ctx, job, model.StepPMSParser); err != nil {
		return err
	}

	records, err := parsePMSExport(job.Response)
	if err != nil {
		return stepFailed(model.StepPMSParser, err.Error(), err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return stepFailed(model.StepPMSParser, "failed to encode parsed records", err)
	}
	job.Response = data

	return e.completeStep(ctx, job, model.StepPMSParser)
}

// runApprovalGate either passes straight through an already-approved gate or
// parks the job in awaiting_approval until the flag flips.
func (e *Engine) runApprovalGate(ctx context.Context, job *model.Job, step model.StepKey, approved bool) error {
	if err := e.beginStep(ctx, job, step); err != nil {
		return err
	}

	if approved {
		return e.completeStep(ctx, job, step)
	}

	job.Status.Status = model.AutomationStatusAwaitingApproval
	job.Status.Message = stepMessages[step]
	return e.save(ctx, job)
}

// runTaskCreation turns parsed records and agent outputs into task records.
func (e *Engine) runTaskCreation(ctx context.Context, job *model.Job) error {
	if err := e.beginStep(ctx, job, model.StepTaskCreation); err != nil {
		return err
	}

	tasks, err := e.buildTasks(job)
	if err != nil {
		return stepFailed(model.StepTaskCreation, err.Error(), err)
	}

	if err := e.store.SaveTasks(ctx, job.ID, tasks); err != nil {
		return stepFailed(model.StepTaskCreation, "failed to save tasks", err)
	}

	return e.completeStep(ctx, job, model.StepTaskCreation)
}

// runComplete assembles the summary and marks the job completed.
func (e *Engine) runComplete(ctx context.Context, job *model.Job) error {
	if err := e.beginStep(ctx, job, model.StepComplete); err != nil {
		return err
	}

	tasks, err := e.store.ListTasks(ctx, job.ID)
	if err != nil {
		return stepFailed(model.StepComplete, "failed to load tasks", err)
	}

	summary := &model.AutomationSummary{
		AgentResults: make(map[model.MonthlyAgentKey]model.AgentResult, len(job.AgentResults)),
	}
	for agent, result := range job.AgentResults {
		summary.AgentResults[agent] = result
	}
	for _, task := range tasks {
		switch task.Origin {
		case model.TaskOriginUser:
			summary.UserTasksCreated++
		case model.TaskOriginSystem:
			summary.SystemTasksCreated++
		}
	}
	summary.TotalTasksCreated = len(tasks)

	now := e.now()
	detail := job.Status.Steps[model.StepComplete]
	detail.Status = model.StepStatusCompleted
	detail.CompletedAt = &now
	job.Status.Steps[model.StepComplete] = detail

	job.Status.Status = model.AutomationStatusCompleted
	job.Status.Summary = summary
	job.Status.CompletedAt = &now
	job.Status.Message = stepMessages[model.StepComplete]
	job.Status.Progress = progressFor(job.Status)

	if err := e.save(ctx, job); err != nil {
		return err
	}

	log.Printf("Automation job %s completed: %d tasks created", job.ID, summary.TotalTasksCreated)
	if e.notifier != nil {
		e.notifier.JobCompleted(job)
	}
	return nil
}

// buildTasks derives task records: one follow-up task per referral record
// (user-authored work) and one per successful analytical agent other than
// data_fetch (system-authored).
func (e *Engine) buildTasks(job *model.Job) ([]*model.Task, error) {
	var records []model.PMSRecord
	if err := json.Unmarshal(job.Response, &records); err != nil {
		return nil, fmt.Errorf("job payload is not a record set: %w", err)
	}

	now := e.now()
	var tasks []*model.Task
	for _, record := range records {
		tasks = append(tasks, &model.Task{
			ID:             uuid.New().String(),
			JobID:          job.ID,
			OrganizationID: job.OrganizationID,
			Origin:         model.TaskOriginUser,
			Title:          fmt.Sprintf("Follow up with referral source %s", record.ReferralSource),
			CreatedAt:      now,
		})
	}

	for _, agent := range model.MonthlyAgents {
		if agent == model.AgentDataFetch {
			continue
		}
		result, ok := job.AgentResults[agent]
		if !ok || !result.Success {
			continue
		}
		tasks = append(tasks, &model.Task{
			ID:             uuid.New().String(),
			JobID:          job.ID,
			OrganizationID: job.OrganizationID,
			Origin:         model.TaskOriginSystem,
			Title:          fmt.Sprintf("Review %s recommendations", agent),
			SourceAgent:    agent,
			CreatedAt:      now,
		})
	}

	return tasks, nil
}

// beginStep marks a step processing and the job processing overall.
func (e *Engine) beginStep(ctx context.Context, job *model.Job, step model.StepKey) error {
	now := e.now()
	detail := job.Status.Steps[step]
	detail.Status = model.StepStatusProcessing
	if detail.StartedAt == nil {
		detail.StartedAt = &now
	}
	job.Status.Steps[step] = detail

	job.Status.Status = model.AutomationStatusProcessing
	job.Status.CurrentStep = step
	job.Status.CurrentSubStep = ""
	job.Status.Message = stepMessages[step]
	job.Status.Error = nil

	return e.save(ctx, job)
}

// completeStep marks a step completed and recomputes progress.
func (e *Engine) completeStep(ctx context.Context, job *model.Job, step model.StepKey) error {
	now := e.now()
	detail := job.Status.Steps[step]
	detail.Status = model.StepStatusCompleted
	detail.CompletedAt = &now
	job.Status.Steps[step] = detail
	job.Status.Progress = progressFor(job.Status)

	return e.save(ctx, job)
}

// failStep records a step failure and halts the job. The machine never
// auto-advances past a failure; only an explicit Retry resumes it.
func (e *Engine) failStep(ctx context.Context, job *model.Job, step model.StepKey, cause error) {
	now := e.now()
	msg := cause.Error()

	detail := job.Status.Steps[step]
	detail.Status = model.StepStatusFailed
	detail.Error = &msg
	detail.CompletedAt = &now
	job.Status.Steps[step] = detail

	job.Status.Status = model.AutomationStatusFailed
	job.Status.CurrentStep = step
	job.Status.Message = fmt.Sprintf("Step %s failed", step)
	job.Status.Error = &msg

	if err := e.save(ctx, job); err != nil {
		log.Printf("Failed to persist failure for job %s: %v", job.ID, err)
	}

	log.Printf("Automation job %s failed at %s: %s", job.ID, step, msg)
	if e.notifier != nil {
		e.notifier.JobFailed(job, step, msg)
	}
}

// UpdateResponse overwrites the job's raw payload on behalf of an operator.
// It takes the job's run lock so the write never interleaves with a live run.
func (e *Engine) UpdateResponse(ctx context.Context, jobID string, payload []byte) (*model.Job, error) {
	if !e.locks.tryLock(jobID) {
		return nil, concurrentRun(jobID)
	}
	defer e.locks.unlock(jobID)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Response = payload
	if err := e.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteJob removes a job and its tasks on behalf of an operator.
func (e *Engine) DeleteJob(ctx context.Context, jobID string) error {
	if !e.locks.tryLock(jobID) {
		return concurrentRun(jobID)
	}
	defer e.locks.unlock(jobID)

	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return err
	}
	if err := e.store.DeleteTasks(ctx, jobID); err != nil {
		return err
	}
	return e.store.DeleteJob(ctx, jobID)
}

// save persists the job and pushes the fresh projection to subscribers.
func (e *Engine) save(ctx context.Context, job *model.Job) error {
	end := e.now()
	if job.Status.CompletedAt != nil {
		end = *job.Status.CompletedAt
	}
	job.ProcessingTime = end.Sub(job.Status.StartedAt).Seconds()

	if err := e.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	if e.notifier != nil {
		e.notifier.JobUpdated(job)
	}
	return nil
}
