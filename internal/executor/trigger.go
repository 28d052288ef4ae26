package executor

import (
	"context"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// TriggerExecutor returns the workflow's initial input as its mapped
// output; the interpreter synthesizes this node's dispatch at Start.
type TriggerExecutor struct{}

func NewTriggerExecutor() *TriggerExecutor { return &TriggerExecutor{} }

func (e *TriggerExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	triggerType := configString(node.Config, "type", "manual")

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Trigger = &domain.TriggerOut{Input: input, TriggerType: triggerType}
	out.Raw = map[string]interface{}{"input": input, "trigger_type": triggerType}
	return &out, nil
}
