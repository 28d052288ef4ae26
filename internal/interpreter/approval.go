package interpreter

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// awaitApproval suspends the run at an approval node until enough
// responses resolve the slot (per ApprovalSlot.Resolve's any/all/majority
// rule) or, if node.Config["timeout_hours"] is set, the deadline passes.
// The wait is replay-safe: it only consumes signals and a timer, neither
// of which are part of the interpreter's own step state, so a process
// restart re-enters this same wait via Resume.
func (r *Run) awaitApproval(ctx context.Context, node *domain.Node, out *domain.MappedOutput) (*domain.MappedOutput, error) {
	approvalID, _ := out.Raw["approval_id"].(string)
	if approvalID == "" {
		approvalID = node.ID
	}

	r.mu.Lock()
	slot := &domain.ApprovalSlot{
		ApprovalID:     approvalID,
		ExecutionID:    r.exec.ID,
		NodeID:         node.ID,
		ApprovalType:   domain.ApprovalType(configString(node.Config, "approval_type", "any")),
		TotalApprovers: int(configFloat(node.Config, "total_approvers", 1)),
		Status:         domain.ApprovalPending,
		RequestedAt:    time.Now(),
	}
	r.ctx.PendingApproval = slot
	r.mu.Unlock()

	r.publish(ctx, node.ID, "approval.requested", map[string]interface{}{"approval_id": approvalID})

	var timeoutCh <-chan time.Time
	if hours := configFloat(node.Config, "timeout_hours", 0); hours > 0 {
		timer := time.NewTimer(time.Duration(hours * float64(time.Hour)))
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		r.mu.Lock()
		pending := r.pendingApprovalSignal
		r.pendingApprovalSignal = nil
		r.mu.Unlock()

		if pending != nil {
			out, needMore, err := r.resolveApproval(ctx, node, pending)
			if err != nil {
				return nil, err
			}
			if !needMore {
				return out, nil
			}
			continue
		}

		select {
		case s := <-r.sigCh:
			r.applyControlSignal(s)
		case <-timeoutCh:
			return nil, fmt.Errorf("%w: approval %s on node %s", domain.ErrApprovalTimeout, approvalID, node.ID)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// resolveApproval records sig's responses against the pending slot and
// resolves it if any/all/majority is satisfied. needMore reports that
// more responses are required (an "all" or "majority" slot with
// insufficient votes so far) and the wait should continue.
func (r *Run) resolveApproval(ctx context.Context, node *domain.Node, sig *ApprovalPayload) (out *domain.MappedOutput, needMore bool, err error) {
	r.mu.Lock()
	slot := r.ctx.PendingApproval
	if slot == nil || slot.Status != domain.ApprovalPending {
		r.mu.Unlock()
		return nil, false, domain.ErrApprovalAlreadyResolved
	}

	if len(sig.Responses) > 0 {
		slot.Responses = append(slot.Responses, sig.Responses...)
	} else {
		slot.Responses = append(slot.Responses, domain.ApprovalResponse{
			Approver:  sig.Approver,
			Action:    sig.Action.responseAction(),
			Comment:   sig.Comment,
			Timestamp: time.Now(),
		})
	}

	resolved := slot.Resolve()
	if resolved == domain.ApprovalPending {
		r.mu.Unlock()
		return nil, true, nil
	}

	now := time.Now()
	slot.Status = resolved
	slot.ResolvedAt = &now
	approved := resolved == domain.ApprovalApproved
	r.ctx.PendingApproval = nil
	r.mu.Unlock()

	if r.interp.store != nil {
		if saveErr := r.interp.store.SaveApproval(ctx, slot); saveErr != nil {
			r.interp.log.Error("interpreter: saving approval slot failed", "approval_id", slot.ApprovalID, "error", saveErr)
		}
	}

	var approver, comment string
	if len(slot.Responses) > 0 {
		last := slot.Responses[len(slot.Responses)-1]
		approver, comment = last.Approver, last.Comment
	}

	mapped := &domain.MappedOutput{
		NodeID:   node.ID,
		NodeType: domain.NodeApproval,
		Status:   domain.OutputSuccess,
		Timestamp: now,
		Approval: &domain.ApprovalOut{Approved: approved, Approver: approver, Comments: comment},
		Raw:      map[string]interface{}{"approved": approved, "approver": approver, "comments": comment},
	}

	eventType := "approval.denied"
	if approved {
		eventType = "approval.granted"
	}
	r.publish(ctx, node.ID, eventType, map[string]interface{}{"approval_id": slot.ApprovalID, "approver": approver})

	return mapped, false, nil
}
