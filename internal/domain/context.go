package domain

// ExecutionContext is the per-execution in-memory state the interpreter
// walks over. It is durable through the persistence store: every field is
// re-derived from (or checkpointed to) Postgres/Redis so a process
// restart can reconstruct it exactly.
type ExecutionContext struct {
	WorkflowID      string                    `json:"workflow_id"`
	ExecutionID     string                    `json:"execution_id"`
	WorkflowInput   map[string]interface{}    `json:"workflow_input"`
	NodeOutputs     map[string]*MappedOutput  `json:"node_outputs"`
	MappedOutputs   map[string]*MappedOutput  `json:"mapped_outputs"`
	History         []HistoryEntry            `json:"history"`
	Paused          bool                      `json:"paused"`
	PendingApproval *ApprovalSlot             `json:"pending_approval,omitempty"`
}

// NewExecutionContext initializes an empty context for a fresh execution.
func NewExecutionContext(workflowID, executionID string, input map[string]interface{}) *ExecutionContext {
	return &ExecutionContext{
		WorkflowID:    workflowID,
		ExecutionID:   executionID,
		WorkflowInput: input,
		NodeOutputs:   make(map[string]*MappedOutput),
		MappedOutputs: make(map[string]*MappedOutput),
		History:       make([]HistoryEntry, 0, 8),
	}
}

// LastOutput returns the mapped output of the most recently completed node
// other than excludeNodeID — the "previous output" the mapper uses to
// compute the next node's input.
func (c *ExecutionContext) LastOutput(excludeNodeID string) *MappedOutput {
	for i := len(c.History) - 1; i >= 0; i-- {
		entry := c.History[i]
		if entry.NodeID == excludeNodeID || entry.Status != HistorySuccess {
			continue
		}
		if out, ok := c.MappedOutputs[entry.NodeID]; ok {
			return out
		}
	}
	return nil
}

// AppendHistory adds a new running entry and returns its index for later
// update; history is append-only.
func (c *ExecutionContext) AppendHistory(entry HistoryEntry) int {
	c.History = append(c.History, entry)
	return len(c.History) - 1
}

// SuccessfulNodesReverse returns the node IDs of every history entry with
// status=success up to (not including) the entry for stopNodeID, in
// reverse chronological order — the traversal order the compensation
// coordinator requires when rolling back a failed execution.
func (c *ExecutionContext) SuccessfulNodesReverse(stopNodeID string) []string {
	var nodes []string
	for _, e := range c.History {
		if e.NodeID == stopNodeID {
			break
		}
		if e.Status == HistorySuccess {
			nodes = append(nodes, e.NodeID)
		}
	}
	// reverse in place
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}
