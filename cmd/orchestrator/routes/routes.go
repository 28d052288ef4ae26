// Package routes binds handlers.* to echo paths. Split from handlers so
// the route table reads as a single flat list, the shape the teacher's
// routes package used for its workflow/tag/run endpoints.
package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflowengine/cmd/orchestrator/container"
	"github.com/lyzr/workflowengine/cmd/orchestrator/handlers"
)

// Register wires every workflow and execution endpoint onto e.
func Register(e *echo.Echo, c *container.Container) {
	wf := handlers.NewWorkflowHandler(c)
	ex := handlers.NewExecutionHandler(c)

	workflows := e.Group("/workflows")
	workflows.POST("", wf.Create)
	workflows.GET("", wf.List)
	workflows.GET("/:id", wf.Get)
	workflows.DELETE("/:id", wf.Delete)
	workflows.POST("/:id/execute", ex.Execute)
	workflows.GET("/:id/executions", wf.Executions)

	executions := e.Group("/executions")
	executions.GET("/:id", ex.Get)
	executions.GET("/:id/history", ex.History)
	executions.GET("/:id/events", ex.Events)
	executions.POST("/:id/signal", ex.Signal)
}
