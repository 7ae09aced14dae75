// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/notiflow/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	previewService  *services.Preview
	validator       *validator.Validate
	logger          *slog.Logger
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	previewService *services.Preview,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		previewService:  previewService,
		validator:       validator,
		logger:          logger.With("module", "web"),
	}
}

// Register mounts every workflow route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.ListWorkflows)
	w.Post("/", h.UpsertWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpsertWorkflow)
	w.Patch("/:id", h.PatchWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)

	w.Get("/:id/steps/:stepId", h.GetStep)
	w.Patch("/:id/steps/:stepId", h.PatchStepControls)
	w.Post("/:id/steps/:stepId/preview", h.PreviewStep)

	router.Post("/validate", h.ValidateContent)
	router.Get("/health", h.HealthCheck)
}

func tenant(c fiber.Ctx) services.Tenant {
	return services.Tenant{
		EnvironmentID:  c.Get(EnvironmentHeader),
		OrganizationID: c.Get(OrganizationHeader),
	}
}

// decode decodes and validates the JSON body into req and returns a problem
// detail when the body is invalid. An empty body is accepted when allowEmpty is set.
func (h *APIHandlers) decode(c fiber.Ctx, req any, allowEmpty bool) string {
	if !allowEmpty || len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return "Invalid JSON format"
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return err.Error()
	}

	return ""
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), tenant(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(workflow)
}

// UpsertWorkflow creates a workflow on POST and replaces it on PUT.
func (h *APIHandlers) UpsertWorkflow(c fiber.Ctx) error {
	var req UpsertWorkflowRequest
	if detail := h.decode(c, &req, false); detail != "" {
		return badRequest(c, detail)
	}

	id := c.Params("id")

	workflow, err := h.workflowService.Upsert(c.Context(), tenant(c), req.Command(id))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	if id == "" {
		return c.Status(fiber.StatusCreated).JSON(workflow)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) PatchWorkflow(c fiber.Ctx) error {
	var req PatchWorkflowRequest
	if detail := h.decode(c, &req, false); detail != "" {
		return badRequest(c, detail)
	}

	workflow, err := h.workflowService.Patch(c.Context(), tenant(c), c.Params("id"), req.Command())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetStep(c fiber.Ctx) error {
	step, err := h.workflowService.GetStep(c.Context(), tenant(c), c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) PatchStepControls(c fiber.Ctx) error {
	var req PatchStepRequest
	if detail := h.decode(c, &req, false); detail != "" {
		return badRequest(c, detail)
	}

	step, err := h.workflowService.PatchStepControls(c.Context(), tenant(c), c.Params("id"), c.Params("stepId"), req.ControlValues)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) PreviewStep(c fiber.Ctx) error {
	var req PreviewRequest
	if detail := h.decode(c, &req, true); detail != "" {
		return badRequest(c, detail)
	}

	result, err := h.previewService.PreviewStep(c.Context(), tenant(c), c.Params("id"), c.Params("stepId"), services.PreviewCommand{
		ControlValues:  req.ControlValues,
		PreviewPayload: req.PreviewPayload,
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ValidateContent(c fiber.Ctx) error {
	var req ValidateRequest
	if detail := h.decode(c, &req, false); detail != "" {
		return badRequest(c, detail)
	}

	validated, err := h.previewService.Validate(c.Context(), req.Command())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return c.JSON(ValidateResponse{
		FinalControlValues: validated.FinalControlValues,
		FinalPayload:       validated.FinalPayload,
		Issues:             validated.Issues,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Notiflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Notiflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
