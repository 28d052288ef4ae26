package domain

import "time"

// ExecutionStatus is the lifecycle state of a single execution run.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusPaused    ExecutionStatus = "paused"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCanceled  ExecutionStatus = "canceled"
)

// CompensationStatus tracks the saga rollback state of a failed execution.
type CompensationStatus string

const (
	CompensationNone       CompensationStatus = ""
	CompensationInProgress CompensationStatus = "in_progress"
	CompensationCompleted  CompensationStatus = "completed"
	CompensationFailed     CompensationStatus = "failed"
)

// Execution is one run of a WorkflowDefinition against an input payload.
type Execution struct {
	ID                 string                 `json:"id"`
	WorkflowID         string                 `json:"workflow_id"`
	Status             ExecutionStatus        `json:"status"`
	Input              map[string]interface{} `json:"input"`
	Output             map[string]interface{} `json:"output,omitempty"`
	CurrentNode        string                 `json:"current_node,omitempty"`
	Error              string                 `json:"error,omitempty"`
	StartedAt          time.Time              `json:"started_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	RetryCount         int                    `json:"retry_count"`
	FailureReason      string                 `json:"failure_reason,omitempty"`
	CompensationStatus CompensationStatus     `json:"compensation_status,omitempty"`
}

// HistoryEntryStatus is the lifecycle state of one node's attempt.
type HistoryEntryStatus string

const (
	HistoryRunning HistoryEntryStatus = "running"
	HistorySuccess HistoryEntryStatus = "success"
	HistoryFailed  HistoryEntryStatus = "failed"
)

// HistoryEntry records one node's attempt within an execution. History is
// append-only; IsFallback marks a self-healing reroute attempt.
type HistoryEntry struct {
	NodeID     string             `json:"node_id"`
	NodeType   NodeType           `json:"node_type"`
	Status     HistoryEntryStatus `json:"status"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
	Error      string             `json:"error,omitempty"`
	IsFallback bool               `json:"is_fallback,omitempty"`
}

// ApprovalSlotStatus is the resolution state of a human-in-the-loop gate.
type ApprovalSlotStatus string

const (
	ApprovalPending  ApprovalSlotStatus = "pending"
	ApprovalApproved ApprovalSlotStatus = "approved"
	ApprovalRejected ApprovalSlotStatus = "rejected"
)

// ApprovalType controls how multiple responses resolve a slot.
type ApprovalType string

const (
	ApprovalAny      ApprovalType = "any"
	ApprovalAll      ApprovalType = "all"
	ApprovalMajority ApprovalType = "majority"
)

// ApprovalResponse is a single approver's vote.
type ApprovalResponse struct {
	Approver  string    `json:"approver"`
	Action    string    `json:"action"` // "approve" | "reject"
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalSlot mediates a human-in-the-loop decision. Once Status is no
// longer ApprovalPending no further responses are accepted.
type ApprovalSlot struct {
	ApprovalID     string             `json:"approval_id"`
	ExecutionID    string             `json:"execution_id"`
	NodeID         string             `json:"node_id"`
	Status         ApprovalSlotStatus `json:"status"`
	ApprovalType   ApprovalType       `json:"approval_type"`
	TotalApprovers int                `json:"total_approvers"`
	Responses      []ApprovalResponse `json:"responses"`
	RequestedAt    time.Time          `json:"requested_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
}

// Resolve applies the any/all/majority rule for ApprovalType to the
// slot's current responses and returns the resolved status, or
// ApprovalPending if not yet decided.
func (s *ApprovalSlot) Resolve() ApprovalSlotStatus {
	approves, rejects := 0, 0
	for _, r := range s.Responses {
		if r.Action == "approve" {
			approves++
		} else if r.Action == "reject" {
			rejects++
		}
	}

	switch s.ApprovalType {
	case ApprovalAny:
		if approves >= 1 {
			return ApprovalApproved
		}
		if rejects >= 1 {
			return ApprovalRejected
		}
	case ApprovalAll:
		if rejects >= 1 {
			return ApprovalRejected
		}
		if approves >= s.TotalApprovers && s.TotalApprovers > 0 {
			return ApprovalApproved
		}
	case ApprovalMajority:
		total := approves + rejects
		if total >= s.TotalApprovers && s.TotalApprovers > 0 {
			if approves > rejects {
				return ApprovalApproved
			}
			return ApprovalRejected
		}
	}
	return ApprovalPending
}

// AgentScore tracks per-(provider, agent) reliability for self-healing.
type AgentScore struct {
	Provider         string    `json:"provider"`
	AgentID          string    `json:"agent_id"`
	ExecutionCount   int64     `json:"execution_count"`
	SuccessCount     int64     `json:"success_count"`
	FailureCount     int64     `json:"failure_count"`
	AvgLatencyMs     float64   `json:"avg_latency_ms"`
	TotalCost        float64   `json:"total_cost"`
	ReliabilityScore float64   `json:"reliability_score"`
	LastUpdated      time.Time `json:"last_updated"`
}

// EventRecord is a durable, replayable audit row for one bus publish.
type EventRecord struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Data        map[string]interface{} `json:"data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// CompensationRecordStatus is the outcome of one node's rollback attempt.
type CompensationRecordStatus string

const (
	CompensationRecordPending CompensationRecordStatus = "pending"
	CompensationRecordSuccess CompensationRecordStatus = "success"
	CompensationRecordFailed  CompensationRecordStatus = "failed"
)

// CompensationRecord is the outcome of one node's reverse handler.
type CompensationRecord struct {
	ID          string                    `json:"id"`
	ExecutionID string                    `json:"execution_id"`
	NodeID      string                    `json:"node_id"`
	Status      CompensationRecordStatus  `json:"status"`
	Data        map[string]interface{}    `json:"data,omitempty"`
	Error       string                    `json:"error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}
