// Package compensation implements the saga-style rollback coordinator: on
// a terminal node failure it walks every successfully completed node in
// reverse chronological order and runs that node type's reverse handler.
// Grounded on the teacher's handleFailedNode shape (failure capture,
// event publication) but completes the "// TODO: Handle failure (DLQ,
// retry, etc.)" it left unfinished.
package compensation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/httpsafety"
)

type store interface {
	SaveCompensation(ctx context.Context, rec *domain.CompensationRecord) error
}

type publisher interface {
	Publish(ctx context.Context, rec *domain.EventRecord) error
}

// Coordinator runs reverse handlers for a failed execution.
type Coordinator struct {
	store     store
	bus       publisher
	client    *http.Client
	validator *httpsafety.Validator
}

func New(store store, bus publisher) *Coordinator {
	return &Coordinator{
		store:     store,
		bus:       bus,
		client:    &http.Client{Timeout: 30 * time.Second},
		validator: httpsafety.NewValidator(),
	}
}

// Compensate rolls back every successful node before failedNodeID, in
// reverse order. A per-node failure is recorded but never aborts the
// remaining rollback.
func (c *Coordinator) Compensate(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext, failedNodeID string) error {
	c.publish(ctx, execCtx.ExecutionID, "", "compensation.started", map[string]interface{}{"failed_node": failedNodeID})

	nodeIDs := execCtx.SuccessfulNodesReverse(failedNodeID)
	anyFailed := false

	for _, nodeID := range nodeIDs {
		node, ok := def.NodeByID(nodeID)
		if !ok {
			continue
		}

		rec := &domain.CompensationRecord{
			ID:          fmt.Sprintf("comp_%s_%d", nodeID, time.Now().UnixNano()),
			ExecutionID: execCtx.ExecutionID,
			NodeID:      nodeID,
			Status:      domain.CompensationRecordPending,
			CreatedAt:   time.Now(),
		}

		err := c.compensateNode(ctx, node, execCtx)
		completedAt := time.Now()
		rec.CompletedAt = &completedAt
		if err != nil {
			anyFailed = true
			rec.Status = domain.CompensationRecordFailed
			rec.Error = err.Error()
			c.publish(ctx, execCtx.ExecutionID, nodeID, "compensation.failed", map[string]interface{}{"error": err.Error()})
		} else {
			rec.Status = domain.CompensationRecordSuccess
		}

		if saveErr := c.store.SaveCompensation(ctx, rec); saveErr != nil {
			anyFailed = true
		}
	}

	if anyFailed {
		c.publish(ctx, execCtx.ExecutionID, "", "compensation.failed", map[string]interface{}{"aggregate": true})
	} else {
		c.publish(ctx, execCtx.ExecutionID, "", "compensation.completed", map[string]interface{}{})
	}
	return nil
}

func (c *Coordinator) compensateNode(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) error {
	switch node.Type {
	case domain.NodeAgent:
		return c.compensateAgent(ctx, node, execCtx)
	case domain.NodeAPICall:
		return c.compensateAPICall(ctx, node, execCtx)
	case domain.NodeApproval:
		return c.compensateApproval(ctx, node, execCtx)
	default:
		// eval, conditional, merge, timer, trigger, event, end: no-op.
		return nil
	}
}

func (c *Coordinator) compensateAgent(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) error {
	cleanupURL, _ := node.Config["cleanup_url"].(string)
	if cleanupURL == "" {
		return nil
	}
	return c.postJSON(ctx, cleanupURL, "POST", map[string]interface{}{
		"node_id": node.ID,
		"context": execCtx.WorkflowInput,
	})
}

func (c *Coordinator) compensateAPICall(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) error {
	url, _ := node.Config["url"].(string)
	if url == "" {
		return nil
	}
	method := "DELETE"
	if m, ok := node.Config["compensation_method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	return c.postJSON(ctx, url, method, map[string]interface{}{
		"action": "compensate",
		"state":  execCtx.NodeOutputs[node.ID].AsInterface(),
	})
}

func (c *Coordinator) compensateApproval(ctx context.Context, node *domain.Node, execCtx *domain.ExecutionContext) error {
	c.publish(ctx, execCtx.ExecutionID, node.ID, "approval.reverted", map[string]interface{}{})
	return nil
}

func (c *Coordinator) postJSON(ctx context.Context, url, method string, payload map[string]interface{}) error {
	if err := c.validator.ValidateOutboundURL(url); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding compensation payload: %v", domain.ErrCompensation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building compensation request: %v", domain.ErrCompensation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: compensation request failed: %v", domain.ErrCompensation, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: compensation target returned %d", domain.ErrCompensation, resp.StatusCode)
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, executionID, nodeID, eventType string, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, &domain.EventRecord{
		ExecutionID: executionID,
		NodeID:      nodeID,
		EventType:   eventType,
		Data:        data,
		Timestamp:   time.Now(),
	})
}
