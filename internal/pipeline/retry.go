package pipeline

import (
	"context"

	"github.com/practicepulse/api/internal/model"
)

// retryableSteps are the only steps that may be re-entered after a failure.
// Uploads and approvals are never retried: the former cannot fail
// independently, and re-running the latter could skip human sign-off.
var retryableSteps = map[model.StepKey]bool{
	model.StepPMSParser:     true,
	model.StepMonthlyAgents: true,
}

// Retry rewinds a failed job to the failing step without touching any step
// before it. This is the only sanctioned backward movement of progress. The
// caller is expected to re-run the job after a nil return.
func (e *Engine) Retry(ctx context.Context, jobID string, step model.StepKey) (*model.Job, error) {
	if !retryableSteps[step] {
		return nil, invalidRetry(step, "step is not retryable")
	}

	if !e.locks.tryLock(jobID) {
		return nil, concurrentRun(jobID)
	}
	defer e.locks.unlock(jobID)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Status != model.AutomationStatusFailed {
		return nil, invalidRetry(step, "job is not in a failed state")
	}

	detail := job.Status.Steps[step]
	if job.Status.CurrentStep != step && detail.Status != model.StepStatusFailed {
		return nil, invalidRetry(step, "job did not fail at this step")
	}

	detail.Status = model.StepStatusPending
	detail.Error = nil
	detail.StartedAt = nil
	detail.CompletedAt = nil
	if step == model.StepMonthlyAgents {
		// No partial resume within the step: the full five-agent fan-out
		// restarts to avoid stale or duplicated sub-agent side effects.
		detail.AgentsCompleted = nil
		detail.CurrentAgent = ""
		detail.SubStep = ""
		job.AgentResults = nil
	}
	job.Status.Steps[step] = detail

	job.Status.Status = model.AutomationStatusProcessing
	job.Status.CurrentStep = step
	job.Status.CurrentSubStep = ""
	job.Status.Message = "Retrying " + string(step)
	job.Status.Error = nil
	job.Status.CompletedAt = nil
	job.Status.Progress = progressFor(job.Status)

	if err := e.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
