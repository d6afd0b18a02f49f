// Package web provides the HTTP API for trigger ingestion and run inspection.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/buildgate/buildgate/pkg/models"
	"github.com/buildgate/buildgate/pkg/orchestrator"
	"github.com/buildgate/buildgate/pkg/persistence"
	"github.com/buildgate/buildgate/pkg/registry"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	persistence  persistence.Persistence
	validator    *validator.Validate
	registry     *registry.Registry
	generateID   func() string
}

func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	persist persistence.Persistence,
	validate *validator.Validate,
	stepRegistry *registry.Registry,
	generateID func() string,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		persistence:  persist,
		validator:    validate,
		registry:     stepRegistry,
		generateID:   generateID,
	}
}

// Register wires the handlers into the fiber app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	v1 := app.Group("/v1")
	v1.Post("/events", h.IngestEvent)
	v1.Get("/runs", h.ListRuns)
	v1.Get("/runs/:id", h.GetRun)
	v1.Get("/runs/:id/gate", h.GetRunGate)
	v1.Get("/workflows", h.ListWorkflows)
	v1.Get("/workflows/:name", h.GetWorkflow)
}

// IngestEvent evaluates a repository event against the trigger and
// concurrency rules. Admitted runs are persisted and announced; rejected
// events report the rejection reason without creating a run.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req TriggerEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runContext := req.RunContext()
	if err := h.validator.Struct(runContext); err != nil {
		return badRequest(c, err.Error())
	}

	workflowName := req.WorkflowName
	if workflowName == "" {
		workflowName = "ghcr-runtime"
	}

	run := models.NewWorkflowRun(h.generateID(), workflowName, runContext)

	decision, err := h.orchestrator.Submit(c.Context(), run)
	if err != nil {
		return internalError(c, err)
	}

	response := TriggerEventResponse{
		Admitted:   decision.Admitted,
		Reason:     decision.Reason,
		Superseded: decision.Superseded,
	}

	if !decision.Admitted {
		return c.Status(fiber.StatusOK).JSON(response)
	}

	response.RunID = run.ID

	return c.Status(fiber.StatusAccepted).JSON(response)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	var (
		runs []*models.WorkflowRun
		err  error
	)

	if statusStr := c.Query("status"); statusStr != "" {
		runs, err = h.persistence.RunRepository().ListByStatus(c.Context(), models.RunStatus(statusStr))
	} else {
		runs, err = h.persistence.RunRepository().List(c.Context())
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.RunRepository().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	return c.JSON(run)
}

// GetRunGate reports the aggregate gate outcome of a run.
func (h *APIHandlers) GetRunGate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.RunRepository().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	response := GateResponse{RunID: run.ID}

	if run.GatePassed != nil {
		response.Evaluated = true
		response.Passed = *run.GatePassed
		response.Reason = run.GateReason
	}

	return c.JSON(response)
}

func (h *APIHandlers) ListWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.WorkflowRepository().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	workflow, err := h.persistence.WorkflowRepository().GetByName(c.Context(), name)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()

	repOk := true
	repositoryCheck := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repOk = false
		repositoryCheck = err.Error()
	}

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
