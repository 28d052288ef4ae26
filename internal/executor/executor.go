// Package executor implements the per-node-type activities the interpreter
// dispatches. Every executor is a stateless Execute(ctx, node, input) call;
// retries, timeouts, and circuit-breaking live one layer up in
// internal/durable, not here.
package executor

import (
	"context"
	"fmt"

	"github.com/lyzr/workflowengine/internal/domain"
)

// Executor runs the activity for one node type and returns its
// MappedOutput. Each executor sets Raw and, where the node type has one,
// its own typed variant (Agent, Api, Eval, ...); the approval executor
// sets only Raw, and the interpreter builds the Approval variant once the
// gate resolves.
type Executor interface {
	Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error)
}

// Registry dispatches by node type.
type Registry struct {
	executors map[domain.NodeType]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.NodeType]Executor)}
}

func (r *Registry) Register(t domain.NodeType, e Executor) {
	r.executors[t] = e
}

func (r *Registry) For(t domain.NodeType) (Executor, bool) {
	e, ok := r.executors[t]
	return e, ok
}

// Execute dispatches node to its registered executor.
func (r *Registry) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	e, ok := r.executors[node.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no executor registered for node type %q", domain.ErrNodeNotFound, node.Type)
	}
	return e.Execute(ctx, node, input)
}

func header(node *domain.Node, status domain.OutputStatus) domain.MappedOutput {
	return domain.MappedOutput{
		NodeID:   node.ID,
		NodeType: node.Type,
		Status:   status,
	}
}

func configString(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func configFloat(config map[string]interface{}, key string, fallback float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func configInt(config map[string]interface{}, key string, fallback int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
