package engine

import (
	"context"

	"github.com/kalambet/outreach/internal/ollama"
)

// OllamaEngine runs chats against a local Ollama server.
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Name() string { return "ollama" }

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error) {
	req := ollama.ChatRequest{
		Model:    model,
		Messages: make([]ollama.Message, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	if schema != nil {
		// Ollama accepts the schema object verbatim as "format".
		req.Format = schema
		req.Options = &ollama.Options{Temperature: 0.1}
	}
	return e.client.Chat(ctx, req)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
