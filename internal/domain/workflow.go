// Package domain holds the data model for workflow definitions, executions,
// and the records the engine persists across restarts.
package domain

import "time"

// NodeType enumerates the closed set of node types the interpreter knows
// how to dispatch. fork is dropped; a loop is represented by edges that
// cycle back to an earlier node rather than a dedicated node type.
type NodeType string

const (
	NodeTrigger     NodeType = "trigger"
	NodeAgent       NodeType = "agent"
	NodeAPICall     NodeType = "api_call"
	NodeApproval    NodeType = "approval"
	NodeConditional NodeType = "conditional"
	NodeEval        NodeType = "eval"
	NodeMerge       NodeType = "merge"
	NodeTimer       NodeType = "timer"
	NodeEvent       NodeType = "event"
	NodeEnd         NodeType = "end"
)

// WorkflowDefinition is the immutable document a caller submits. It is
// referenced by ID and never mutated in flight; a new version is a new
// row, never an edit of this one.
type WorkflowDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	IsTemplate  bool      `json:"is_template"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Node is a single step in the graph. Config is type-specific; see
// internal/executor for the shape each type expects.
type Node struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Label  string                 `json:"label"`
	Config map[string]interface{} `json:"config"`
}

// Edge connects two nodes. SourceHandle disambiguates multi-out nodes:
// "true"/"false" for conditional, "approve"/"reject" for approval.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w *WorkflowDefinition) NodeByID(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// OutEdges returns the edges leaving nodeID in definition order, so that
// "follow the first outgoing edge" is a deterministic choice.
func (w *WorkflowDefinition) OutEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgeByHandle returns the first outgoing edge of nodeID whose
// SourceHandle matches handle.
func (w *WorkflowDefinition) EdgeByHandle(nodeID, handle string) (*Edge, bool) {
	for _, e := range w.OutEdges(nodeID) {
		if e.SourceHandle == handle {
			return &e, true
		}
	}
	return nil, false
}

// TriggerNode returns the definition's single trigger node.
func (w *WorkflowDefinition) TriggerNode() (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeTrigger {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}
