// Package container wires the engine's internal packages into the
// collaborators cmd/orchestrator's HTTP handlers call, the same
// singleton-container shape the teacher's service used (one Container
// built once at startup, handed to every route registration function).
package container

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/lyzr/workflowengine/common/bootstrap"
	"github.com/lyzr/workflowengine/common/clients"
	redisWrapper "github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/common/validation"
	"github.com/lyzr/workflowengine/internal/compensation"
	"github.com/lyzr/workflowengine/internal/condition"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/durable"
	"github.com/lyzr/workflowengine/internal/eventbus"
	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/interpreter"
	"github.com/lyzr/workflowengine/internal/persistence"
	"github.com/lyzr/workflowengine/internal/provider"
	"github.com/lyzr/workflowengine/internal/selfheal"
	goredis "github.com/redis/go-redis/v9"
)

// Container holds every wired collaborator the REST layer needs. It is
// built once per process and is safe for concurrent use by all handlers.
type Container struct {
	Components     *bootstrap.Components
	Store          *persistence.Store
	Bus            *eventbus.Bus
	RawRedis       *goredis.Client
	Interpreter    *interpreter.Interpreter
	Evaluator      *condition.Evaluator
	SelfHeal       *selfheal.Registry
	Compensation   *compensation.Coordinator
	PatchValidator *validation.PatchValidator
	Runs           *RunRegistry
}

// NewContainer builds every collaborator from already-bootstrapped
// components: Postgres pool, a Redis connection for the event bus, the
// CEL evaluator, the executor registry (every node type,
// including the agent node's concrete Anthropic provider), self-healing,
// compensation, and finally the interpreter that ties them together.
func NewContainer(components *bootstrap.Components) (*Container, error) {
	store := persistence.New(components.DB.Pool)

	rawRedis := goredis.NewClient(&goredis.Options{Addr: redisAddr()})
	if err := rawRedis.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("container: connecting to redis: %w", err)
	}
	redisClient := redisWrapper.NewClient(rawRedis, components.Logger)

	bus := eventbus.New(redisClient, rawRedis, store, components.Logger.Logger)

	evaluator, err := condition.New()
	if err != nil {
		return nil, fmt.Errorf("container: building condition evaluator: %w", err)
	}

	clientCfg := clients.LoadClientConfig()
	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, executor.NewTriggerExecutor())
	registry.Register(domain.NodeAgent, executor.NewAgentExecutor(provider.NewAnthropic(clientCfg.AnthropicAPIKey, clientCfg.AnthropicModel)))
	registry.Register(domain.NodeAPICall, executor.NewAPICallExecutor())
	registry.Register(domain.NodeApproval, executor.NewApprovalExecutor(store, bus, nil))
	registry.Register(domain.NodeConditional, executor.NewConditionalExecutor())
	registry.Register(domain.NodeEval, executor.NewEvalExecutor(provider.NewAnthropic(clientCfg.AnthropicAPIKey, clientCfg.AnthropicModel)))
	registry.Register(domain.NodeMerge, executor.NewMergeExecutor())
	registry.Register(domain.NodeTimer, executor.NewTimerExecutor())
	registry.Register(domain.NodeEvent, executor.NewEventExecutor(bus))

	selfHeal := selfheal.New(store)
	compensator := compensation.New(store, bus)
	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)

	interp := interpreter.New(interpreter.Options{
		Registry:     registry,
		Runtime:      runtime,
		Evaluator:    evaluator,
		SelfHeal:     selfHeal,
		Compensation: compensator,
		Bus:          bus,
		Store:        store,
		Logger:       components.Logger.Logger,
	})

	return &Container{
		Components:     components,
		Store:          store,
		Bus:            bus,
		RawRedis:       rawRedis,
		Interpreter:    interp,
		Evaluator:      evaluator,
		SelfHeal:       selfHeal,
		Compensation:   compensator,
		PatchValidator: validation.NewPatchValidator(),
		Runs:           NewRunRegistry(),
	}, nil
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// RunRegistry tracks the in-flight *interpreter.Run for every execution
// this process started or resumed, so a signal/query handler that arrives
// on the same process the run is live in can reach it directly instead of
// round-tripping through Postgres. An execution absent from the registry
// (finished, or owned by a different process) falls back to the
// persisted Execution row.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*interpreter.Run
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*interpreter.Run)}
}

func (r *RunRegistry) Put(executionID string, run *interpreter.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[executionID] = run
}

func (r *RunRegistry) Get(executionID string) (*interpreter.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[executionID]
	return run, ok
}

func (r *RunRegistry) Delete(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, executionID)
}
