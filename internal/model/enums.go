package model

// Job source types
type SourceType string

const (
	SourceCSV    SourceType = "csv"
	SourceManual SourceType = "manual"
)

// Overall automation status
type AutomationStatus string

const (
	AutomationStatusPending          AutomationStatus = "pending"
	AutomationStatusProcessing       AutomationStatus = "processing"
	AutomationStatusCompleted        AutomationStatus = "completed"
	AutomationStatusFailed           AutomationStatus = "failed"
	AutomationStatusAwaitingApproval AutomationStatus = "awaiting_approval"
)

// Pipeline steps
type StepKey string

const (
	StepFileUpload     StepKey = "file_upload"
	StepPMSParser      StepKey = "pms_parser"
	StepAdminApproval  StepKey = "admin_approval"
	StepClientApproval StepKey = "client_approval"
	StepMonthlyAgents  StepKey = "monthly_agents"
	StepTaskCreation   StepKey = "task_creation"
	StepComplete       StepKey = "complete"
)

// StepOrder is the canonical progression of the ingestion pipeline.
var StepOrder = []StepKey{
	StepFileUpload,
	StepPMSParser,
	StepAdminApproval,
	StepClientApproval,
	StepMonthlyAgents,
	StepTaskCreation,
	StepComplete,
}

// StepIndex returns the position of a step in StepOrder, or -1 for an
// unknown step.
func StepIndex(step StepKey) int {
	for i, s := range StepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// Per-step status
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// Monthly analytical sub-agents
type MonthlyAgentKey string

const (
	AgentDataFetch      MonthlyAgentKey = "data_fetch"
	AgentSummary        MonthlyAgentKey = "summary_agent"
	AgentReferralEngine MonthlyAgentKey = "referral_engine"
	AgentOpportunity    MonthlyAgentKey = "opportunity_agent"
	AgentCROOptimizer   MonthlyAgentKey = "cro_optimizer"
)

// MonthlyAgents lists every sub-agent of the monthly_agents step.
// data_fetch runs first; the remaining four fan out concurrently.
var MonthlyAgents = []MonthlyAgentKey{
	AgentDataFetch,
	AgentSummary,
	AgentReferralEngine,
	AgentOpportunity,
	AgentCROOptimizer,
}

// Approval flags
type ApprovalKind string

const (
	ApprovalAdmin  ApprovalKind = "admin"
	ApprovalClient ApprovalKind = "client"
)

// Task authorship
type TaskOrigin string

const (
	TaskOriginUser   TaskOrigin = "user"
	TaskOriginSystem TaskOrigin = "system"
)
