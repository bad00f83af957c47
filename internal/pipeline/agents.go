package pipeline

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/practicepulse/api/internal/model"
)

// runMonthlyAgents executes the monthly_agents step: data_fetch first, since
// its output feeds the other agents, then the remaining four concurrently.
// The first sub-agent failure fails the step; agents already in flight finish
// and their results are kept on the job for retry diagnostics.
func (e *Engine) runMonthlyAgents(ctx context.Context, job *model.Job) error {
	if err := e.beginStep(ctx, job, model.StepMonthlyAgents); err != nil {
		return err
	}

	job.AgentResults = make(map[model.MonthlyAgentKey]model.AgentResult, len(model.MonthlyAgents))

	result, err := e.invokeAgent(ctx, job, model.AgentDataFetch)
	if err != nil {
		return err
	}
	if !result.Success {
		// data_fetch is the prerequisite for everything else; none of the
		// other four agents are launched.
		return agentFailed(model.AgentDataFetch, agentErrorText(result))
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, agent := range model.MonthlyAgents {
		if agent == model.AgentDataFetch {
			continue
		}
		agent := agent
		g.Go(func() error {
			result := e.invokeAgentLocked(ctx, job, agent, &mu)
			if !result.Success {
				return agentFailed(agent, agentErrorText(result))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	detail := job.Status.Steps[model.StepMonthlyAgents]
	detail.CurrentAgent = ""
	detail.SubStep = ""
	job.Status.Steps[model.StepMonthlyAgents] = detail
	job.Status.CurrentSubStep = ""

	return e.completeStep(ctx, job, model.StepMonthlyAgents)
}

// invokeAgent runs one sub-agent with the configured timeout and records its
// outcome on the job.
func (e *Engine) invokeAgent(ctx context.Context, job *model.Job, agent model.MonthlyAgentKey) (model.AgentResult, error) {
	e.markAgentStarted(job, agent)
	if err := e.save(ctx, job); err != nil {
		return model.AgentResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.agentTimeout)
	result := e.agents.RunAgent(callCtx, job, agent)
	cancel()

	e.recordAgentResult(job, agent, result)
	if err := e.save(ctx, job); err != nil {
		return model.AgentResult{}, err
	}
	return result, nil
}

// invokeAgentLocked is invokeAgent for the concurrent fan-out: every mutation
// of the shared job record is applied under mu so completions never lose
// updates. Persistence errors here are logged rather than failing the step;
// the in-memory state is still committed by the join.
func (e *Engine) invokeAgentLocked(ctx context.Context, job *model.Job, agent model.MonthlyAgentKey, mu *sync.Mutex) model.AgentResult {
	mu.Lock()
	e.markAgentStarted(job, agent)
	if err := e.save(ctx, job); err != nil {
		log.Printf("Failed to persist agent start for job %s: %v", job.ID, err)
	}
	mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.agentTimeout)
	result := e.agents.RunAgent(callCtx, job, agent)
	cancel()

	mu.Lock()
	e.recordAgentResult(job, agent, result)
	if err := e.save(ctx, job); err != nil {
		log.Printf("Failed to persist agent result for job %s: %v", job.ID, err)
	}
	mu.Unlock()

	return result
}

// markAgentStarted sets the best-effort "most recently started" UI hint.
func (e *Engine) markAgentStarted(job *model.Job, agent model.MonthlyAgentKey) {
	detail := job.Status.Steps[model.StepMonthlyAgents]
	detail.CurrentAgent = agent
	detail.SubStep = string(agent)
	job.Status.Steps[model.StepMonthlyAgents] = detail
	job.Status.CurrentSubStep = string(agent)
}

// recordAgentResult stores the outcome and appends successful agents to the
// completion set in return order.
func (e *Engine) recordAgentResult(job *model.Job, agent model.MonthlyAgentKey, result model.AgentResult) {
	job.AgentResults[agent] = result
	if !result.Success {
		return
	}
	detail := job.Status.Steps[model.StepMonthlyAgents]
	detail.AgentsCompleted = append(detail.AgentsCompleted, agent)
	job.Status.Steps[model.StepMonthlyAgents] = detail
}

func agentErrorText(result model.AgentResult) string {
	if result.Error != nil && *result.Error != "" {
		return *result.Error
	}
	return "agent failed"
}
