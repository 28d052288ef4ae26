package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// approvalStore is the narrow slice of persistence.Store the approval
// executor needs; kept as an interface so tests can supply an in-memory
// double instead of a live Postgres connection.
type approvalStore interface {
	SaveApproval(ctx context.Context, slot *domain.ApprovalSlot) error
}

// approvalPublisher is the narrow slice of eventbus.Bus the approval
// executor needs to raise approval.requested.
type approvalPublisher interface {
	Publish(ctx context.Context, rec *domain.EventRecord) error
}

// ExternalNotifier pushes an approval request to a channel outside the
// event bus (Slack, email). Idempotent by approval id: implementations
// must tolerate being called more than once for the same id.
type ExternalNotifier interface {
	Notify(ctx context.Context, channel string, slot *domain.ApprovalSlot, description string) error
}

// ApprovalExecutor persists a pending ApprovalSlot and returns immediately;
// the interpreter is the one that waits on the approval signal and resolves
// the multi-approver rule.
type ApprovalExecutor struct {
	store     approvalStore
	publisher approvalPublisher
	notifier  ExternalNotifier
}

func NewApprovalExecutor(store approvalStore, publisher approvalPublisher, notifier ExternalNotifier) *ApprovalExecutor {
	return &ApprovalExecutor{store: store, publisher: publisher, notifier: notifier}
}

func (e *ApprovalExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	description := configString(config, "description", "")
	approvalType := domain.ApprovalType(configString(config, "approval_type", string(domain.ApprovalAny)))

	total := configInt(config, "total_approvers", 0)
	if total == 0 {
		if approvers, ok := config["approvers"].([]interface{}); ok {
			total = len(approvers)
		}
	}
	if total == 0 {
		total = 1
	}

	slot := &domain.ApprovalSlot{
		ApprovalID:     fmt.Sprintf("apr_%s_%d", node.ID, time.Now().UnixNano()),
		NodeID:         node.ID,
		Status:         domain.ApprovalPending,
		ApprovalType:   approvalType,
		TotalApprovers: total,
		RequestedAt:    time.Now(),
	}
	if executionID, ok := input["execution_id"].(string); ok {
		slot.ExecutionID = executionID
	}

	if err := e.store.SaveApproval(ctx, slot); err != nil {
		return nil, fmt.Errorf("%w: persisting approval slot: %v", domain.ErrTransientActivity, err)
	}

	if err := e.publisher.Publish(ctx, &domain.EventRecord{
		ExecutionID: slot.ExecutionID,
		NodeID:      node.ID,
		EventType:   "approval.requested",
		Data: map[string]interface{}{
			"approval_id": slot.ApprovalID,
			"title":       configString(config, "title", node.Label),
			"description": description,
			"context":     input,
		},
		Timestamp: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("%w: publishing approval.requested: %v", domain.ErrTransientActivity, err)
	}

	if channels, ok := config["channels"].([]interface{}); ok && e.notifier != nil {
		for _, c := range channels {
			channel, ok := c.(string)
			if !ok || strings.TrimSpace(channel) == "" {
				continue
			}
			if err := e.notifier.Notify(ctx, channel, slot, description); err != nil {
				return nil, fmt.Errorf("%w: notifying channel %q: %v", domain.ErrTransientActivity, channel, err)
			}
		}
	}

	out := header(node, domain.OutputPartial)
	out.Timestamp = time.Now()
	out.Raw = map[string]interface{}{
		"approval_id": slot.ApprovalID,
		"status":      string(domain.ApprovalPending),
	}
	return &out, nil
}
