package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/practicepulse/api/internal/model"
	"github.com/practicepulse/api/internal/pipeline"
	"github.com/practicepulse/api/internal/service"
	"github.com/practicepulse/api/internal/store"
	"github.com/practicepulse/api/pkg/response"
)

type AutomationHandler struct {
	service   *service.AutomationService
	validator *validator.Validate
}

func NewAutomationHandler(svc *service.AutomationService, v *validator.Validate) *AutomationHandler {
	return &AutomationHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/automation/jobs
func (h *AutomationHandler) Create(c *fiber.Ctx) error {
	var req model.JobCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/automation/jobs/:jobId
func (h *AutomationHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// List handles GET /api/automation/jobs
func (h *AutomationHandler) List(c *fiber.Ctx) error {
	filter := &model.JobListFilter{
		Status:         model.AutomationStatus(c.Query("status")),
		OrganizationID: c.Query("organizationId"),
		Page:           c.QueryInt("page", 1),
		PerPage:        c.QueryInt("perPage", 0),
	}

	if v := c.Query("approved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return response.ValidationError(c, "Invalid approved filter", nil)
		}
		filter.Approved = &b
	}
	if v := c.Query("clientApproved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return response.ValidationError(c, "Invalid clientApproved filter", nil)
		}
		filter.ClientApproved = &b
	}

	result, err := h.service.ListJobs(c.Context(), filter)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Active handles GET /api/automation/jobs/active
func (h *AutomationHandler) Active(c *fiber.Ctx) error {
	result, err := h.service.ActiveJobs(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Approve handles POST /api/automation/jobs/:jobId/approval
func (h *AutomationHandler) Approve(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ApprovalRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SetApproval(c.Context(), jobID, &req)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// Retry handles POST /api/automation/jobs/:jobId/retry
func (h *AutomationHandler) Retry(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.RetryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Retry(c.Context(), jobID, &req)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.Accepted(c, result)
}

// Tasks handles GET /api/automation/jobs/:jobId/tasks
func (h *AutomationHandler) Tasks(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.ListTasks(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// GetResponse handles GET /api/automation/jobs/:jobId/response
func (h *AutomationHandler) GetResponse(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResponsePayload(c.Context(), jobID)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// UpdateResponse handles PUT /api/automation/jobs/:jobId/response
func (h *AutomationHandler) UpdateResponse(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.JobResponseUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.UpdateResponsePayload(c.Context(), jobID, req.Response)
	if err != nil {
		return h.mapError(c, err)
	}

	return response.OK(c, result)
}

// Delete handles DELETE /api/automation/jobs/:jobId
func (h *AutomationHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.DeleteJob(c.Context(), jobID); err != nil {
		return h.mapError(c, err)
	}

	return response.NoContent(c)
}

// mapError translates store and pipeline errors to the HTTP envelope.
func (h *AutomationHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case pipeline.IsKind(err, pipeline.KindInvalidRetryTarget):
		return response.InvalidRetry(c, err.Error())
	case pipeline.IsKind(err, pipeline.KindConcurrentRunConflict):
		return response.Conflict(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
