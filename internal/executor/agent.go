package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// AgentProvider calls a single model and reports token usage. Concrete
// providers (Anthropic, OpenAI, an internal model gateway) implement this;
// the executor itself never knows which one it's talking to.
type AgentProvider interface {
	Name() string
	Complete(ctx context.Context, req AgentRequest) (AgentResponse, error)
}

// AgentRequest is what the executor hands to a provider after resolving
// config and the mapped prompt.
type AgentRequest struct {
	AgentID             string
	SystemInstructions   string
	Prompt               string
	Temperature          float64
	ExpectedOutputFormat string
}

// AgentResponse is a provider's raw completion.
type AgentResponse struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// ModelPricing is a per-1M-token price pair, keyed by model name.
type ModelPricing struct {
	PriceInPerMillion  float64
	PriceOutPerMillion float64
}

var defaultPricing = map[string]ModelPricing{
	"claude-sonnet":  {PriceInPerMillion: 3.0, PriceOutPerMillion: 15.0},
	"claude-haiku":   {PriceInPerMillion: 0.8, PriceOutPerMillion: 4.0},
	"gpt-4o":         {PriceInPerMillion: 2.5, PriceOutPerMillion: 10.0},
	"gpt-4o-mini":    {PriceInPerMillion: 0.15, PriceOutPerMillion: 0.6},
}

// AgentExecutor runs agent nodes against a set of named providers.
type AgentExecutor struct {
	providers map[string]AgentProvider
	pricing   map[string]ModelPricing
}

func NewAgentExecutor(providers ...AgentProvider) *AgentExecutor {
	m := make(map[string]AgentProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &AgentExecutor{providers: m, pricing: defaultPricing}
}

// PreviousEvalScore is read from the mapped input when auto-tuning is
// enabled. The mapper has no eval→agent projection that sets it; it is
// present when the agent node's config supplies it, e.g. as a
// "$nodes.<eval-node-id>.score" reference.
const PreviousEvalScoreKey = "previous_eval_score"

func (e *AgentExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	provider := configString(config, "provider", "default")
	agentID := configString(config, "agent_id", node.ID)
	systemInstructions := configString(config, "system_instructions", "")
	temperature := configFloat(config, "temperature", 0.7)

	if score, ok := input[PreviousEvalScoreKey].(float64); ok && autoTuneEnabled(config) {
		temperature = tunedTemperature(score)
	}

	prompt, _ := input["prompt"].(string)

	p, ok := e.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown agent provider %q", domain.ErrTerminalActivity, provider)
	}

	resp, err := p.Complete(ctx, AgentRequest{
		AgentID:              agentID,
		SystemInstructions:   systemInstructions,
		Prompt:               prompt,
		Temperature:          temperature,
		ExpectedOutputFormat: configString(config, "expected_output_format", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: agent call failed: %v", domain.ErrTransientActivity, err)
	}

	cost := e.cost(resp.Model, resp.PromptTokens, resp.CompletionTokens)

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Agent = &domain.AgentOut{
		Text:        resp.Text,
		Model:       resp.Model,
		Cost:        cost,
		Temperature: temperature,
		Usage: map[string]interface{}{
			"prompt_tokens":     resp.PromptTokens,
			"completion_tokens": resp.CompletionTokens,
		},
	}
	out.Raw = map[string]interface{}{
		"output":           resp.Text,
		"model":            resp.Model,
		"cost":             cost,
		"temperature_used": temperature,
	}
	return &out, nil
}

func (e *AgentExecutor) cost(model string, promptTokens, completionTokens int64) float64 {
	pricing, ok := e.pricing[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*pricing.PriceInPerMillion + float64(completionTokens)*pricing.PriceOutPerMillion) / 1e6
}

func autoTuneEnabled(config map[string]interface{}) bool {
	v, ok := config["auto_tune"].(bool)
	return ok && v
}

func tunedTemperature(score float64) float64 {
	switch {
	case score < 0.5:
		return 1.0
	case score > 0.9:
		return 0.3
	default:
		return 0.7
	}
}
