package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that a local backend is reachable and pulls any of
// models it does not have yet, writing progress to w. Hosted backends have
// nothing to prepare.
func EnsureReady(ctx context.Context, e Engine, models []string, w io.Writer) error {
	p, ok := e.(Provisioner)
	if !ok {
		return nil
	}
	if !p.IsRunning(ctx) {
		return fmt.Errorf("%s is not running; start it with: ollama serve", e.Name())
	}

	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true

		if p.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := p.PullModel(ctx, model, func(pp PullProgress) {
			if pp.Total > 0 {
				fmt.Fprintf(w, "  %s %.0f%%\n", pp.Status, float64(pp.Completed)/float64(pp.Total)*100)
			} else {
				fmt.Fprintf(w, "  %s\n", pp.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}
