package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflowengine/cmd/orchestrator/container"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/interpreter"
	"github.com/lyzr/workflowengine/internal/persistence"
)

// ExecutionHandler starts, queries, and signals workflow executions.
type ExecutionHandler struct {
	c *container.Container
}

func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{c: c}
}

// Execute starts a new execution of the named workflow definition. The
// interpreter's own loop runs detached from this request's context: a
// client disconnecting must not cancel an in-flight workflow.
func (h *ExecutionHandler) Execute(c echo.Context) error {
	def, err := h.c.Store.GetDefinition(c.Request().Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("workflow not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	var input map[string]interface{}
	if err := c.Bind(&input); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, errorBody("invalid input payload: "+err.Error()))
	}

	run, err := h.c.Interpreter.Start(context.Background(), def, input)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	}

	state := run.GetState()
	h.c.Runs.Put(state.Execution.ID, run)
	return c.JSON(http.StatusAccepted, state.Execution)
}

// Get returns the current execution snapshot: the live in-memory Run if
// this process owns it, otherwise the last checkpoint persisted to
// Postgres by another process.
func (h *ExecutionHandler) Get(c echo.Context) error {
	id := c.Param("id")
	if run, ok := h.c.Runs.Get(id); ok {
		return c.JSON(http.StatusOK, run.GetState())
	}

	exec, err := h.c.Store.GetExecution(c.Request().Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("execution not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, exec)
}

// History returns the node-by-node execution history.
func (h *ExecutionHandler) History(c echo.Context) error {
	id := c.Param("id")
	if run, ok := h.c.Runs.Get(id); ok {
		return c.JSON(http.StatusOK, run.GetExecutionHistory())
	}

	execCtx, err := h.c.Store.GetExecutionContext(c.Request().Context(), id)
	if errors.Is(err, persistence.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody("execution not found"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, execCtx.History)
}

// Events replays the durable audit log for an execution.
func (h *ExecutionHandler) Events(c echo.Context) error {
	events, err := h.c.Bus.Replay(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, events)
}

// signalRequest is the wire shape for every control message; Type
// selects which fields apply.
type signalRequest struct {
	Type      string                     `json:"type"` // pause | resume | cancel | approve | reject
	Reason    string                     `json:"reason,omitempty"`
	Approver  string                     `json:"approver,omitempty"`
	Comment   string                     `json:"comment,omitempty"`
	Responses []domain.ApprovalResponse `json:"responses,omitempty"`
}

// Signal delivers a pause/resume/cancel/approve/reject control message to
// a live execution. An execution this process doesn't own can't be
// signaled directly here; it must be resumed onto this process first.
func (h *ExecutionHandler) Signal(c echo.Context) error {
	run, ok := h.c.Runs.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody("execution is not running on this process"))
	}

	var req signalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid signal payload: "+err.Error()))
	}

	var sig interpreter.Signal
	switch req.Type {
	case "pause":
		sig = interpreter.Pause()
	case "resume":
		sig = interpreter.Resume()
	case "cancel":
		sig = interpreter.Cancel(req.Reason)
	case "approve":
		if len(req.Responses) > 0 {
			sig = interpreter.ApprovalBatch(req.Responses)
		} else {
			sig = interpreter.Approve(req.Approver, req.Comment)
		}
	case "reject":
		sig = interpreter.Reject(req.Approver, req.Comment)
	default:
		return c.JSON(http.StatusBadRequest, errorBody("unknown signal type: "+req.Type))
	}

	if err := run.Signal(sig); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
	return c.JSON(http.StatusOK, run.GetState())
}
