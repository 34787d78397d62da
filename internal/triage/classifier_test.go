package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/outreach/internal/engine"
)

type chatFunc func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error)

func (f chatFunc) Chat(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
	return f(ctx, model, msgs, schema)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  Intent
	}{
		{"json answer", `{"intent": "QUESTION"}`, nil, Question},
		{"bare label", "NEGATIVE", nil, Negative},
		{"lowercase with spaces", `{"intent": "out of office"}`, nil, OutOfOffice},
		{"unknown label", `{"intent": "MAYBE"}`, nil, Uncategorized},
		{"model error", "", errors.New("connection refused"), Uncategorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSchema *engine.Schema
			llm := chatFunc(func(_ context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
				gotSchema = schema
				if model != "phi3.5" {
					t.Errorf("model = %q", model)
				}
				if msgs[len(msgs)-1].Content != "How much is it?" {
					t.Errorf("user message = %q", msgs[len(msgs)-1].Content)
				}
				return tt.reply, tt.err
			})
			got := NewClassifier(llm, "phi3.5").Classify(context.Background(), "How much is it?")
			if got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
			if gotSchema == nil || len(gotSchema.Properties["intent"].Enum) != 6 {
				t.Errorf("schema = %+v", gotSchema)
			}
		})
	}
}

func TestClassify_EmptyBodySkipsModel(t *testing.T) {
	llm := chatFunc(func(context.Context, string, []engine.Message, *engine.Schema) (string, error) {
		t.Fatal("model should not be called for an empty body")
		return "", nil
	})
	if got := NewClassifier(llm, "m").Classify(context.Background(), "  \n"); got != Uncategorized {
		t.Errorf("Classify = %s", got)
	}
}

func TestParseIntent(t *testing.T) {
	cases := map[string]Intent{
		"POSITIVE_INTEREST": PositiveInterest,
		" objection\n":      Objection,
		`"QUESTION".`:       Question,
		"Intent: NEGATIVE":  Uncategorized,
		"":                  Uncategorized,
	}

	for in, want := range cases {
		if got := ParseIntent(in); got != want {
			t.Errorf("ParseIntent(%q) = %s, want %s", in, got, want)
		}
	}
}
