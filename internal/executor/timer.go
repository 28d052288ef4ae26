package executor

import (
	"context"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// TimerExecutor only resolves how long to wait; the interpreter performs
// the actual sleep through its durable runtime so the wait survives a
// process restart.
type TimerExecutor struct{}

func NewTimerExecutor() *TimerExecutor { return &TimerExecutor{} }

func (e *TimerExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	seconds := configInt(node.Config, "duration_seconds", 0)
	if seconds == 0 {
		seconds = configInt(input, "duration_seconds", 0)
	}

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Timer = &domain.TimerOut{WaitedSeconds: seconds, CompletedAt: out.Timestamp}
	out.Raw = map[string]interface{}{"waited_seconds": seconds}
	return &out, nil
}
