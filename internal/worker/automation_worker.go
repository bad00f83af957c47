package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/practicepulse/api/internal/pipeline"
)

// AutomationWorker drives the ingestion pipeline for queued jobs.
type AutomationWorker struct {
	engine *pipeline.Engine
}

// NewAutomationWorker creates a new automation worker
func NewAutomationWorker(engine *pipeline.Engine) *AutomationWorker {
	return &AutomationWorker{engine: engine}
}

// ProcessTask handles one automation run task.
func (w *AutomationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	log.Printf("Running automation job: %s", payload.JobID)

	err := w.engine.Run(ctx, payload.JobID)
	switch {
	case err == nil:
		return nil
	case pipeline.IsKind(err, pipeline.KindConcurrentRunConflict):
		// Another run already holds the job; it will leave the job in a
		// stable state, so this task is a no-op.
		log.Printf("Automation job %s already running, skipping", payload.JobID)
		return nil
	case pipeline.IsKind(err, pipeline.KindStepExecutionFailed):
		// The failure is recorded on the job itself and resumed only via an
		// explicit retry; do not let asynq re-run it.
		log.Printf("Automation job %s halted: %v", payload.JobID, err)
		return nil
	default:
		return err
	}
}
