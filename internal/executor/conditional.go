package executor

import (
	"context"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// ConditionalExecutor is a no-op: the interpreter decides branching by
// evaluating condition_expression itself. This executor only produces a
// normalized ConditionOut so the node still has a mapped output other
// nodes (and the mapper's *→conditional extractors feeding *back* out of
// it, e.g. conditional→merge) can read.
type ConditionalExecutor struct{}

func NewConditionalExecutor() *ConditionalExecutor { return &ConditionalExecutor{} }

func (e *ConditionalExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	matched, _ := input["matched"].(bool)
	branch, _ := input["branch"].(string)
	out.Condition = &domain.ConditionOut{Matched: matched, Branch: branch}
	out.Raw = map[string]interface{}{"matched": matched, "branch": branch}
	return &out, nil
}
