package pipeline

import (
	"context"

	"github.com/practicepulse/api/internal/model"
)

func approvalStep(which model.ApprovalKind) model.StepKey {
	if which == model.ApprovalClient {
		return model.StepClientApproval
	}
	return model.StepAdminApproval
}

// SetApproval toggles one of the two approval flags. Setting a flag to its
// current value is a no-op and alters no timestamps; clearing a flag after
// its step completed has no retroactive effect. When a false→true flip
// unblocks the gate the job is currently parked on, the step is marked
// completed and the caller should re-run the job. The returned bool reports
// whether that unblocking happened.
func (e *Engine) SetApproval(ctx context.Context, jobID string, which model.ApprovalKind, value bool) (*model.Job, bool, error) {
	if !e.locks.tryLock(jobID) {
		return nil, false, concurrentRun(jobID)
	}
	defer e.locks.unlock(jobID)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}

	current := job.IsApproved
	if which == model.ApprovalClient {
		current = job.IsClientApproved
	}
	if current == value {
		return job, false, nil
	}

	if which == model.ApprovalClient {
		job.IsClientApproved = value
	} else {
		job.IsApproved = value
	}

	unblocked := false
	step := approvalStep(which)
	if value &&
		job.Status.Status == model.AutomationStatusAwaitingApproval &&
		job.Status.CurrentStep == step {
		now := e.now()
		detail := job.Status.Steps[step]
		detail.Status = model.StepStatusCompleted
		detail.CompletedAt = &now
		job.Status.Steps[step] = detail

		job.Status.Status = model.AutomationStatusProcessing
		job.Status.Message = "Approval received"
		job.Status.Progress = progressFor(job.Status)
		unblocked = true
	}

	if err := e.save(ctx, job); err != nil {
		return nil, false, err
	}
	return job, unblocked, nil
}
