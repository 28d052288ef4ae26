package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutputStatus is the header status common to every mapped node output.
type OutputStatus string

const (
	OutputSuccess OutputStatus = "success"
	OutputFailed  OutputStatus = "failed"
	OutputPartial OutputStatus = "partial"
)

// MappedOutput is a tagged union over node type: a common header plus a
// variant payload. The variant is kept as typed Go structs rather than an
// interface{} bag so the mapper's lookup table (internal/mapper) can
// switch on NodeType exhaustively at compile time; Raw preserves whatever
// the executor actually returned for extractors that need a field the
// typed variant doesn't expose.
type MappedOutput struct {
	NodeID    string                 `json:"node_id"`
	NodeType  NodeType               `json:"node_type"`
	Timestamp time.Time              `json:"timestamp"`
	Status    OutputStatus           `json:"status"`
	Raw       map[string]interface{} `json:"raw,omitempty"`

	Agent       *AgentOut       `json:"agent,omitempty"`
	Api         *ApiOut         `json:"api,omitempty"`
	Condition   *ConditionOut   `json:"condition,omitempty"`
	Eval        *EvalOut        `json:"eval,omitempty"`
	Approval    *ApprovalOut    `json:"approval,omitempty"`
	Timer       *TimerOut       `json:"timer,omitempty"`
	Merge       *MergeOut       `json:"merge,omitempty"`
	Event       *EventOut       `json:"event,omitempty"`
	Trigger     *TriggerOut     `json:"trigger,omitempty"`
	End         *EndOut         `json:"end,omitempty"`
}

// AgentOut is the variant payload for an agent node.
type AgentOut struct {
	Text        string                 `json:"text"`
	Model       string                 `json:"model"`
	Cost        float64                `json:"cost"`
	Temperature float64                `json:"temperature"`
	Usage       map[string]interface{} `json:"usage,omitempty"`
}

// ApiOut is the variant payload for an api_call node.
type ApiOut struct {
	StatusCode      int                    `json:"status_code"`
	Body            map[string]interface{} `json:"body,omitempty"`
	Headers         map[string]string      `json:"headers,omitempty"`
	ResponseTimeMs  int64                  `json:"response_time_ms"`
	URL             string                 `json:"url"`
}

// ConditionOut is the variant payload for a conditional node.
type ConditionOut struct {
	Matched    bool   `json:"matched"`
	Branch     string `json:"branch"`
	Evaluation string `json:"evaluation,omitempty"`
}

// EvalOut is the variant payload for an eval node.
type EvalOut struct {
	Passed     bool                   `json:"passed"`
	Score      float64                `json:"score"`
	Feedback   string                 `json:"feedback,omitempty"`
	Criteria   map[string]interface{} `json:"criteria,omitempty"`
	OnFailure  string                 `json:"on_failure"`
}

// ApprovalOut is the variant payload for an approval node.
type ApprovalOut struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// TimerOut is the variant payload for a timer node.
type TimerOut struct {
	WaitedSeconds int       `json:"waited_seconds"`
	CompletedAt   time.Time `json:"completed_at"`
}

// MergeOut is the variant payload for a merge node.
type MergeOut struct {
	Merged   map[string]interface{} `json:"merged,omitempty"`
	Sources  []string               `json:"sources"`
	Strategy string                 `json:"strategy"`
}

// EventOut is the variant payload for an event node.
type EventOut struct {
	EventName string                 `json:"event_name"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// TriggerOut is the variant payload for a trigger node.
type TriggerOut struct {
	Input       map[string]interface{} `json:"input"`
	TriggerType string                 `json:"trigger_type"`
}

// EndOut is the variant payload for an end node.
type EndOut struct {
	Captured map[string]interface{} `json:"captured,omitempty"`
}

// TextContent is the fallback projection used by the mapper when no
// dedicated extractor exists for a (source, target) pair: it reduces any
// variant to a single string, never panicking on missing data.
func (m *MappedOutput) TextContent() string {
	if m == nil {
		return ""
	}
	switch {
	case m.Agent != nil:
		return m.Agent.Text
	case m.Api != nil:
		if m.Api.Body != nil {
			if b, err := json.Marshal(m.Api.Body); err == nil {
				return string(b)
			}
		}
		return ""
	case m.Condition != nil:
		return fmt.Sprintf("%v", m.Condition.Matched)
	case m.Eval != nil:
		return m.Eval.Feedback
	case m.Approval != nil:
		return fmt.Sprintf("%v", m.Approved())
	case m.Merge != nil:
		if b, err := json.Marshal(m.Merge.Merged); err == nil {
			return string(b)
		}
	case m.Event != nil:
		if b, err := json.Marshal(m.Event.Payload); err == nil {
			return string(b)
		}
	case m.Trigger != nil:
		if b, err := json.Marshal(m.Trigger.Input); err == nil {
			return string(b)
		}
	case m.End != nil:
		if b, err := json.Marshal(m.End.Captured); err == nil {
			return string(b)
		}
	case m.Timer != nil:
		return fmt.Sprintf("%d", m.Timer.WaitedSeconds)
	}
	if m.Raw != nil {
		if b, err := json.Marshal(m.Raw); err == nil {
			return string(b)
		}
	}
	return ""
}

// Approved is a convenience accessor used by branching and the mapper's
// approval→conditional extractor.
func (m *MappedOutput) Approved() bool {
	if m == nil || m.Approval == nil {
		return false
	}
	return m.Approval.Approved
}

// AsInterface flattens the variant into a generic map for CEL evaluation
// and JSON re-serialization (e.g. condition.Evaluate's "output" variable).
func (m *MappedOutput) AsInterface() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	var payload map[string]interface{}
	var marshal interface{}
	switch {
	case m.Agent != nil:
		marshal = m.Agent
	case m.Api != nil:
		marshal = m.Api
	case m.Condition != nil:
		marshal = m.Condition
	case m.Eval != nil:
		marshal = m.Eval
	case m.Approval != nil:
		marshal = m.Approval
	case m.Timer != nil:
		marshal = m.Timer
	case m.Merge != nil:
		marshal = m.Merge
	case m.Event != nil:
		marshal = m.Event
	case m.Trigger != nil:
		marshal = m.Trigger
	case m.End != nil:
		marshal = m.End
	default:
		marshal = m.Raw
	}
	b, err := json.Marshal(marshal)
	if err != nil {
		return map[string]interface{}{}
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return map[string]interface{}{}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return payload
}
