// Package engine hides the concrete LLM backend behind a single Chat call.
package engine

import "context"

// Engine produces chat completions. Research, composition and reply
// classification depend on this interface only.
type Engine interface {
	// Chat sends messages to model and returns the assistant's text. A
	// non-nil schema requests JSON output matching it.
	Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error)

	// Name identifies the backend in logs and status output.
	Name() string
}

// Provisioner is implemented by backends that host models locally and
// may need to download them before first use.
type Provisioner interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

var _ Provisioner = (*OllamaEngine)(nil)
