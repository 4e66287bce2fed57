package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Completer is the subset of an eino chat model used for single-shot
// completions. Every [model.ToolCallingChatModel] satisfies it; tests inject
// a fake.
type Completer interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// CallOptions returns the per-call options for the given sampling
// temperature. Azure reasoning deployments get no temperature option.
func (c *Config) CallOptions(temperature float32) []model.Option {
	if c == nil {
		return []model.Option{model.WithTemperature(temperature)}
	}
	if c.Backend == BackendAzure && isAzureReasoningModel(c.AzureOpenAI.Deployment) {
		return nil
	}
	return []model.Option{model.WithTemperature(temperature)}
}

// Complete sends a system role and a single user prompt to m and returns the
// assistant's text content.
func Complete(ctx context.Context, m Completer, systemRole, prompt string, opts ...model.Option) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemRole),
		schema.UserMessage(prompt),
	}
	resp, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("provider: generate: empty response")
	}
	return resp.Content, nil
}
