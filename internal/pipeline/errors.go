package pipeline

import (
	"errors"
	"fmt"

	"github.com/practicepulse/api/internal/model"
)

// Kind classifies pipeline failures.
type Kind string

const (
	KindStepExecutionFailed   Kind = "step_execution_failed"
	KindInvalidRetryTarget    Kind = "invalid_retry_target"
	KindConcurrentRunConflict Kind = "concurrent_run_conflict"
	KindSubAgentFailure       Kind = "sub_agent_failure"
)

// Error is a typed pipeline failure. SubAgentFailure errors additionally carry
// the agent that failed.
type Error struct {
	Kind  Kind
	Step  model.StepKey
	Agent model.MonthlyAgentKey
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Agent != "":
		return fmt.Sprintf("%s: agent %s: %s", e.Step, e.Agent, e.Msg)
	case e.Step != "":
		return fmt.Sprintf("%s: %s", e.Step, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stepFailed(step model.StepKey, msg string, err error) *Error {
	return &Error{Kind: KindStepExecutionFailed, Step: step, Msg: msg, Err: err}
}

func agentFailed(agent model.MonthlyAgentKey, msg string) *Error {
	return &Error{Kind: KindSubAgentFailure, Step: model.StepMonthlyAgents, Agent: agent, Msg: msg}
}

func invalidRetry(step model.StepKey, msg string) *Error {
	return &Error{Kind: KindInvalidRetryTarget, Step: step, Msg: msg}
}

func concurrentRun(jobID string) *Error {
	return &Error{Kind: KindConcurrentRunConflict, Msg: fmt.Sprintf("a run is already in flight for job %s", jobID)}
}

// IsKind reports whether err is a pipeline Error of the given kind.
// SubAgentFailure is treated as a subtype of StepExecutionFailed.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Kind == kind {
		return true
	}
	return kind == KindStepExecutionFailed && pe.Kind == KindSubAgentFailure
}
