package model

import "time"

// Job represents one PMS ingestion attempt. The pipeline mutates it on every
// transition; operators may read and overwrite the raw Response payload.
type Job struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organizationId"`
	Source           SourceType `json:"source"`
	IsApproved       bool       `json:"isApproved"`
	IsClientApproved bool       `json:"isClientApproved"`
	Response         []byte     `json:"response,omitempty"` // raw payload, opaque to the pipeline
	ProcessingTime   float64    `json:"processingTime"`     // seconds
	CreatedAt        time.Time  `json:"createdAt"`

	// AgentResults stages per-agent outcomes between the monthly_agents step
	// and summary assembly, and keeps failed-attempt results for diagnostics.
	AgentResults map[MonthlyAgentKey]AgentResult `json:"agentResults,omitempty"`

	Status AutomationStatusDetail `json:"status"`
}

// AutomationStatusDetail is the pollable projection of a job's pipeline state.
// The pipeline is its only writer; clients read a full snapshot.
type AutomationStatusDetail struct {
	Status         AutomationStatus       `json:"status"`
	CurrentStep    StepKey                `json:"currentStep"`
	CurrentSubStep string                 `json:"currentSubStep,omitempty"`
	Message        string                 `json:"message"`
	Progress       int                    `json:"progress"`
	Steps          map[StepKey]StepDetail `json:"steps"`
	Summary        *AutomationSummary     `json:"summary,omitempty"`
	StartedAt      time.Time              `json:"startedAt"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
	Error          *string                `json:"error,omitempty"`
}

// StepDetail is the per-step record inside the status projection. The agent
// fields are populated for the monthly_agents step only.
type StepDetail struct {
	Status          StepStatus        `json:"status"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	Error           *string           `json:"error,omitempty"`
	CurrentAgent    MonthlyAgentKey   `json:"currentAgent,omitempty"`
	AgentsCompleted []MonthlyAgentKey `json:"agentsCompleted,omitempty"`
	SubStep         string            `json:"subStep,omitempty"`
}

// AgentResult is the outcome of one sub-agent invocation.
type AgentResult struct {
	Success  bool    `json:"success"`
	ResultID string  `json:"resultId,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// AutomationSummary is produced once a job completes.
type AutomationSummary struct {
	UserTasksCreated   int                             `json:"userTasksCreated"`
	SystemTasksCreated int                             `json:"systemTasksCreated"`
	TotalTasksCreated  int                             `json:"totalTasksCreated"`
	AgentResults       map[MonthlyAgentKey]AgentResult `json:"agentResults"`
}

// Task is one actionable item generated by the task_creation step.
type Task struct {
	ID             string          `json:"id"`
	JobID          string          `json:"jobId"`
	OrganizationID string          `json:"organizationId"`
	Origin         TaskOrigin      `json:"origin"`
	Title          string          `json:"title"`
	SourceAgent    MonthlyAgentKey `json:"sourceAgent,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Clone returns a deep copy of the job so readers never observe a snapshot
// the pipeline is still mutating.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Response != nil {
		cp.Response = append([]byte(nil), j.Response...)
	}
	if j.AgentResults != nil {
		cp.AgentResults = make(map[MonthlyAgentKey]AgentResult, len(j.AgentResults))
		for k, v := range j.AgentResults {
			cp.AgentResults[k] = v
		}
	}
	cp.Status = j.Status.Clone()
	return &cp
}

// Clone deep-copies the status projection.
func (d AutomationStatusDetail) Clone() AutomationStatusDetail {
	cp := d
	cp.Steps = make(map[StepKey]StepDetail, len(d.Steps))
	for k, v := range d.Steps {
		cp.Steps[k] = v.Clone()
	}
	if d.Summary != nil {
		s := *d.Summary
		if d.Summary.AgentResults != nil {
			s.AgentResults = make(map[MonthlyAgentKey]AgentResult, len(d.Summary.AgentResults))
			for k, v := range d.Summary.AgentResults {
				s.AgentResults[k] = v
			}
		}
		cp.Summary = &s
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		cp.CompletedAt = &t
	}
	if d.Error != nil {
		e := *d.Error
		cp.Error = &e
	}
	return cp
}

// Clone deep-copies a step detail.
func (s StepDetail) Clone() StepDetail {
	cp := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	if s.Error != nil {
		e := *s.Error
		cp.Error = &e
	}
	if s.AgentsCompleted != nil {
		cp.AgentsCompleted = append([]MonthlyAgentKey(nil), s.AgentsCompleted...)
	}
	return cp
}
