package engine

import (
	"context"

	"github.com/kalambet/outreach/internal/proxy"
)

// OpenRouterEngine runs chats against OpenRouter. Model names are
// OpenRouter slugs such as "mistralai/mistral-nemo".
type OpenRouterEngine struct {
	client *proxy.Client
}

func NewOpenRouterEngine(client *proxy.Client) *OpenRouterEngine {
	return &OpenRouterEngine{client: client}
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error) {
	req := proxy.ChatRequest{
		Model:    model,
		Messages: make([]proxy.Message, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}
	if schema != nil {
		temp := 0.1
		req.Temperature = &temp
		req.ResponseFormat = &proxy.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &proxy.JSONSchema{
				Name:   "response",
				Strict: true,
				Schema: schema,
			},
		}
	}
	return e.client.Complete(ctx, req)
}
