package model

import "time"

// PMSRecord is one referral/production record, either parsed out of an
// uploaded CSV export or keyed in manually.
type PMSRecord struct {
	ReferralSource string  `json:"referralSource" validate:"required,max=200"`
	PatientCount   int     `json:"patientCount" validate:"min=0"`
	Production     float64 `json:"production" validate:"min=0"`
	Month          string  `json:"month" validate:"omitempty,len=7"` // YYYY-MM
}

// JobCreateRequest starts a new ingestion job from an uploaded CSV payload or
// manually entered records.
type JobCreateRequest struct {
	OrganizationID string      `json:"organizationId" validate:"required,max=100"`
	Source         SourceType  `json:"source" validate:"required,oneof=csv manual"`
	File           string      `json:"file" validate:"required_if=Source csv,omitempty,max=10485760"`
	ManualData     []PMSRecord `json:"manualData" validate:"required_if=Source manual,omitempty,min=1,dive"`
}

// JobCreateResponse acknowledges a queued job.
type JobCreateResponse struct {
	JobID          string           `json:"jobId"`
	OrganizationID string           `json:"organizationId"`
	Source         SourceType       `json:"source"`
	Status         AutomationStatus `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// ApprovalRequest toggles one of the two approval gates.
type ApprovalRequest struct {
	Which ApprovalKind `json:"which" validate:"required,oneof=admin client"`
	Value *bool        `json:"value" validate:"required"`
}

// ApprovalResponse reports the flags after the change.
type ApprovalResponse struct {
	JobID            string           `json:"jobId"`
	IsApproved       bool             `json:"isApproved"`
	IsClientApproved bool             `json:"isClientApproved"`
	Status           AutomationStatus `json:"status"`
}

// RetryRequest resumes a failed job at a specific step.
type RetryRequest struct {
	Step StepKey `json:"step" validate:"required,oneof=pms_parser monthly_agents"`
}

// RetryResponse acknowledges an accepted retry.
type RetryResponse struct {
	JobID          string  `json:"jobId"`
	StepRetried    StepKey `json:"stepRetried"`
	OrganizationID string  `json:"organizationId,omitempty"`
}

// JobListFilter captures the listing query parameters.
type JobListFilter struct {
	Status         AutomationStatus
	Approved       *bool
	ClientApproved *bool
	OrganizationID string
	Page           int
	PerPage        int
}

// Pagination is the listing metadata block.
type Pagination struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"perPage"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
}

// JobListResponse is a filtered page of jobs.
type JobListResponse struct {
	Jobs       []*Job     `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// ActiveJobsResponse lists every job that has not completed.
type ActiveJobsResponse struct {
	Jobs  []*Job `json:"jobs"`
	Total int    `json:"total"`
}

// JobResponsePayload wraps the operator-visible raw payload.
type JobResponsePayload struct {
	JobID    string `json:"jobId"`
	Response string `json:"response"`
}

// JobResponseUpdateRequest overwrites the raw payload.
type JobResponseUpdateRequest struct {
	Response string `json:"response" validate:"required"`
}

// TaskListResponse lists the tasks generated for one job.
type TaskListResponse struct {
	JobID string  `json:"jobId"`
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total"`
}
