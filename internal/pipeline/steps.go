package pipeline

import (
	"time"

	"github.com/practicepulse/api/internal/model"
)

// stepMessages are the operator-facing progress messages per step.
var stepMessages = map[model.StepKey]string{
	model.StepFileUpload:     "Receiving PMS data...",
	model.StepPMSParser:      "Parsing PMS export...",
	model.StepAdminApproval:  "Waiting for admin approval",
	model.StepClientApproval: "Waiting for client approval",
	model.StepMonthlyAgents:  "Running monthly analysis agents...",
	model.StepTaskCreation:   "Creating tasks...",
	model.StepComplete:       "Automation complete",
}

// skippedForManual are the steps a manual-entry job never executes. Skip
// status is assigned here, at creation, and is immutable afterwards.
var skippedForManual = map[model.StepKey]bool{
	model.StepPMSParser:      true,
	model.StepAdminApproval:  true,
	model.StepClientApproval: true,
}

// newStatusDetail builds the initial projection for a fresh job.
func newStatusDetail(source model.SourceType, now time.Time) model.AutomationStatusDetail {
	steps := make(map[model.StepKey]model.StepDetail, len(model.StepOrder))
	for _, key := range model.StepOrder {
		detail := model.StepDetail{Status: model.StepStatusPending}
		if source == model.SourceManual && skippedForManual[key] {
			detail.Status = model.StepStatusSkipped
		}
		steps[key] = detail
	}

	return model.AutomationStatusDetail{
		Status:      model.AutomationStatusPending,
		CurrentStep: model.StepFileUpload,
		Message:     "Queued",
		Progress:    0,
		Steps:       steps,
		StartedAt:   now,
	}
}

// nextStep returns the first step in order that is neither completed nor
// skipped, or false once every step is done.
func nextStep(detail model.AutomationStatusDetail) (model.StepKey, bool) {
	for _, key := range model.StepOrder {
		s := detail.Steps[key].Status
		if s != model.StepStatusCompleted && s != model.StepStatusSkipped {
			return key, true
		}
	}
	return "", false
}

// progressFor derives the progress percentage from the step map: the share of
// the leading fully completed-or-skipped run of steps.
func progressFor(detail model.AutomationStatusDetail) int {
	done := 0
	for _, key := range model.StepOrder {
		s := detail.Steps[key].Status
		if s != model.StepStatusCompleted && s != model.StepStatusSkipped {
			break
		}
		done++
	}
	return 100 * done / len(model.StepOrder)
}
