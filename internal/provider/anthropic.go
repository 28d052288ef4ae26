// Package provider implements internal/executor.AgentProvider against
// real model APIs. Grounded on
// _examples/dshills-langgraph-go/graph/model/anthropic/anthropic.go's
// ChatModel adapter: same client construction, same system-prompt-as-
// separate-parameter handling, same error-translation shape, narrowed
// from a full chat/tool-calling adapter to the single-turn
// prompt-in/text-out contract internal/executor.AgentProvider requires.
package provider

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/executor"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// anthropicClient is the slice of the SDK this package calls, kept as an
// interface so tests can substitute a fake without hitting the network.
type anthropicClient interface {
	New(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error)
}

// sdkMessagesClient adapts the generated client's Messages service to
// anthropicClient.
type sdkMessagesClient struct {
	client anthropicsdk.Client
}

func (c *sdkMessagesClient) New(ctx context.Context, params anthropicsdk.MessageNewParams) (*anthropicsdk.Message, error) {
	return c.client.Messages.New(ctx, params)
}

// Anthropic is an executor.AgentProvider backed by Claude. One instance
// is shared across every agent node configured with provider "anthropic".
type Anthropic struct {
	client       anthropicClient
	defaultModel string
}

// NewAnthropic builds a provider from an API key and an optional model
// name; every Complete call uses that model, and a node's config cannot
// select another. An empty apiKey is allowed at construction time so
// wiring can proceed in environments without the key configured; every
// Complete call then fails (wrapped as a transient activity error, like
// any other request failure) instead of panicking at startup.
func NewAnthropic(apiKey, defaultModel string) *Anthropic {
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}
	client := anthropicsdk.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{
		client:       &sdkMessagesClient{client: client},
		defaultModel: defaultModel,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req executor.AgentRequest) (executor.AgentResponse, error) {
	model := a.defaultModel

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: 4096,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemInstructions != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemInstructions}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	resp, err := a.client.New(ctx, params)
	if err != nil {
		return executor.AgentResponse{}, fmt.Errorf("%w: anthropic request failed: %v", domain.ErrTransientActivity, translateErr(err))
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if text != "" {
				text += "\n"
			}
			text += tb.Text
		}
	}

	return executor.AgentResponse{
		Text:             text,
		Model:            string(resp.Model),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

// translateErr unwraps the SDK's error so the returned message carries
// the provider's own classification (rate_limit_error, overloaded_error,
// etc.) rather than a generic HTTP status line.
func translateErr(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return err
}
