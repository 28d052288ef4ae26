package interpreter

import (
	"fmt"
	"sort"

	"github.com/lyzr/workflowengine/internal/condition"
	"github.com/lyzr/workflowengine/internal/domain"
)

// nextNode decides where execution continues after node completes.
// Conditional nodes evaluate their CEL expression and follow the
// matching "true"/"false" handle; approval nodes follow "approve" or
// "reject"; every other node type follows its single outgoing edge, and
// when several are defined only the first in edge-id order (not
// definition order) is followed; the others are not traversed. A node with
// no matching outgoing edge terminates the workflow successfully.
func (r *Run) nextNode(node *domain.Node, out *domain.MappedOutput) (nextID string, terminate bool, err error) {
	switch node.Type {
	case domain.NodeConditional:
		matched, err := r.evaluateCondition(node, out)
		if err != nil {
			return "", false, err
		}
		handle := "false"
		if matched {
			handle = "true"
		}
		if edge, ok := r.def.EdgeByHandle(node.ID, handle); ok {
			return edge.Target, false, nil
		}
		return "", true, nil

	case domain.NodeApproval:
		handle := "reject"
		if out.Approved() {
			handle = "approve"
		}
		if edge, ok := r.def.EdgeByHandle(node.ID, handle); ok {
			return edge.Target, false, nil
		}
		return "", true, nil

	default:
		edges := r.sortedOutEdges(node.ID)
		if len(edges) == 0 {
			return "", true, nil
		}
		return edges[0].Target, false, nil
	}
}

func (r *Run) evaluateCondition(node *domain.Node, out *domain.MappedOutput) (bool, error) {
	expr := configString(node.Config, "condition_expression", "")
	if expr == "" {
		return false, fmt.Errorf("%w: conditional node %s has no condition_expression", domain.ErrTerminalActivity, node.ID)
	}
	r.mu.RLock()
	workflowInput := r.ctx.WorkflowInput
	r.mu.RUnlock()

	vars := condition.Vars{
		Output: out.AsInterface(),
		Input:  workflowInput,
		Nodes:  r.allNodeOutputsAsInterface(),
	}
	matched, err := r.interp.evaluator.EvaluateBool(expr, vars)
	if err != nil {
		return false, fmt.Errorf("%w: evaluating condition on node %s: %v", domain.ErrTerminalActivity, node.ID, err)
	}
	return matched, nil
}

// sortedOutEdges returns node's outgoing edges ordered by edge id, since
// WorkflowDefinition.OutEdges preserves definition order and unlabeled
// multi-out fan-out must be deterministic regardless of authoring order.
func (r *Run) sortedOutEdges(nodeID string) []domain.Edge {
	edges := append([]domain.Edge(nil), r.def.OutEdges(nodeID)...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}
