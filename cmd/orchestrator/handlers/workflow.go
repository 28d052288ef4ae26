// Package handlers implements the REST surface over the engine: CRUD for
// workflow definitions, starting and inspecting executions, and signaling
// a running execution. Grounded on the teacher's routes/handlers split
// (thin echo.HandlerFunc per operation, all business logic one layer
// down in internal/), generalized from the teacher's workflow-tag/run
// endpoints to this repo's definition/execution/signal model.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflowengine/cmd/orchestrator/container"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/persistence"
	"github.com/lyzr/workflowengine/internal/validate"
)

// WorkflowHandler serves CRUD operations over workflow definitions.
type WorkflowHandler struct {
	c *container.Container
}

func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

// Create validates and persists a new workflow definition.
func (h *WorkflowHandler) Create(c echo.Context) error {
	var def domain.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid workflow definition: "+err.Error()))
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now()
	}
	def.UpdatedAt = time.Now()

	if err := validate.Definition(&def); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}
	if err := h.c.Store.SaveDefinition(c.Request().Context(), &def); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, def)
}

// List returns every stored workflow definition.
func (h *WorkflowHandler) List(c echo.Context) error {
	defs, err := h.c.Store.ListDefinitions(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, defs)
}

// Get returns one workflow definition by id.
func (h *WorkflowHandler) Get(c echo.Context) error {
	def, err := h.c.Store.GetDefinition(c.Request().Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("workflow not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, def)
}

// Delete removes a workflow definition.
func (h *WorkflowHandler) Delete(c echo.Context) error {
	err := h.c.Store.DeleteDefinition(c.Request().Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("workflow not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

// Executions lists every execution ever started against this definition.
func (h *WorkflowHandler) Executions(c echo.Context) error {
	execs, err := h.c.Store.ListExecutionsForWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, execs)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
