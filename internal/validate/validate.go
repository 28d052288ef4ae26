// Package validate checks a WorkflowDefinition before it is ever executed:
// exactly one trigger, at least one reachable end, no dangling edges, no
// unreachable nodes, and the config fields each node type requires.
// Grounded on common/validation/patch_validator.go's per-field error style.
package validate

import (
	"fmt"

	"github.com/lyzr/workflowengine/internal/domain"
)

// Definition validates a full WorkflowDefinition, returning every problem
// found (not just the first) wrapped in domain.ErrValidation.
func Definition(w *domain.WorkflowDefinition) error {
	var problems []string

	problems = append(problems, validateTrigger(w)...)
	problems = append(problems, validateNodeTypes(w)...)
	problems = append(problems, validateEdges(w)...)
	problems = append(problems, validateReachability(w)...)
	problems = append(problems, validateNodeConfig(w)...)

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, problems)
}

func validateTrigger(w *domain.WorkflowDefinition) []string {
	count := 0
	for _, n := range w.Nodes {
		if n.Type == domain.NodeTrigger {
			count++
		}
	}
	switch {
	case count == 0:
		return []string{"workflow has no trigger node"}
	case count > 1:
		return []string{fmt.Sprintf("workflow has %d trigger nodes, expected exactly 1", count)}
	}
	return nil
}

func validateNodeTypes(w *domain.WorkflowDefinition) []string {
	valid := map[domain.NodeType]bool{
		domain.NodeTrigger: true, domain.NodeAgent: true, domain.NodeAPICall: true,
		domain.NodeApproval: true, domain.NodeConditional: true, domain.NodeEval: true,
		domain.NodeMerge: true, domain.NodeTimer: true, domain.NodeEvent: true, domain.NodeEnd: true,
	}
	var problems []string
	seen := map[string]bool{}
	for _, n := range w.Nodes {
		if n.ID == "" {
			problems = append(problems, "node has empty id")
			continue
		}
		if seen[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if !valid[n.Type] {
			problems = append(problems, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
	}
	return problems
}

func validateEdges(w *domain.WorkflowDefinition) []string {
	nodeIDs := map[string]bool{}
	for _, n := range w.Nodes {
		nodeIDs[n.ID] = true
	}
	var problems []string
	for _, e := range w.Edges {
		if !nodeIDs[e.Source] {
			problems = append(problems, fmt.Sprintf("edge %q references unknown source node %q", e.ID, e.Source))
		}
		if !nodeIDs[e.Target] {
			problems = append(problems, fmt.Sprintf("edge %q references unknown target node %q", e.ID, e.Target))
		}
	}
	return problems
}

// validateReachability flags nodes that no edge (and no trigger start)
// can ever reach; an unreachable node can never run, which almost always
// indicates an authoring mistake rather than intent.
func validateReachability(w *domain.WorkflowDefinition) []string {
	trigger, ok := w.TriggerNode()
	if !ok {
		return nil // already reported by validateTrigger
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range w.OutEdges(id) {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}

	var problems []string
	hasEnd := false
	for _, n := range w.Nodes {
		if !reachable[n.ID] {
			problems = append(problems, fmt.Sprintf("node %q is unreachable from the trigger", n.ID))
		}
		if n.Type == domain.NodeEnd && reachable[n.ID] {
			hasEnd = true
		}
	}
	if !hasEnd {
		problems = append(problems, "workflow has no end node reachable from the trigger")
	}
	return problems
}

// requiredConfig lists the config keys each node type must supply; the
// value type itself is checked by the executor, not here.
var requiredConfig = map[domain.NodeType][]string{
	domain.NodeAgent:       {"system_instructions"},
	domain.NodeAPICall:     {"url", "method"},
	domain.NodeApproval:    {"description"},
	domain.NodeConditional: {"condition_expression"},
	domain.NodeEval:        {"eval_type"},
	domain.NodeTimer:       {"duration_seconds"},
	domain.NodeEvent:       {"channel", "operation"},
}

func validateNodeConfig(w *domain.WorkflowDefinition) []string {
	var problems []string
	for _, n := range w.Nodes {
		for _, key := range requiredConfig[n.Type] {
			if _, ok := n.Config[key]; !ok {
				problems = append(problems, fmt.Sprintf("node %q (%s) missing required config field %q", n.ID, n.Type, key))
			}
		}
		if n.Type == domain.NodeConditional {
			if _, ok := w.EdgeByHandle(n.ID, "true"); !ok {
				problems = append(problems, fmt.Sprintf("conditional node %q has no edge for the \"true\" branch", n.ID))
			}
			if _, ok := w.EdgeByHandle(n.ID, "false"); !ok {
				problems = append(problems, fmt.Sprintf("conditional node %q has no edge for the \"false\" branch", n.ID))
			}
		}
	}
	return problems
}
