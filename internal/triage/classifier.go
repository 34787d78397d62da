package triage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/outreach/internal/engine"
)

const classifyTimeout = 30 * time.Second

// Intent is the classified purpose of a prospect's reply.
type Intent string

const (
	PositiveInterest Intent = "POSITIVE_INTEREST"
	Objection        Intent = "OBJECTION"
	Question         Intent = "QUESTION"
	Negative         Intent = "NEGATIVE"
	OutOfOffice      Intent = "OUT_OF_OFFICE"
	Uncategorized    Intent = "UNCATEGORIZED"
)

var intents = []Intent{PositiveInterest, Objection, Question, Negative, OutOfOffice, Uncategorized}

// ParseIntent maps a model answer onto a known intent. Anything it does not
// recognise is Uncategorized.
func ParseIntent(s string) Intent {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Trim(s, `"'.`)
	s = strings.ReplaceAll(s, " ", "_")
	for _, in := range intents {
		if s == string(in) {
			return in
		}
	}
	return Uncategorized
}

// Chatter is the LLM surface the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, schema *engine.Schema) (string, error)
}

// Classifier labels reply bodies with a fast model.
type Classifier struct {
	llm   Chatter
	model string
}

func NewClassifier(llm Chatter, model string) *Classifier {
	return &Classifier{llm: llm, model: model}
}

// Classify never fails: an empty body, a model error or an unparseable
// answer all yield Uncategorized so triage keeps moving.
func (c *Classifier) Classify(ctx context.Context, body string) Intent {
	body = strings.TrimSpace(body)
	if body == "" {
		return Uncategorized
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := c.llm.Chat(ctx, c.model, buildClassifyPrompt(body), intentSchema())
	if err != nil {
		slog.Warn("reply classification failed", "error", err)
		return Uncategorized
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// Some models ignore the schema and answer with the bare label.
		return ParseIntent(raw)
	}
	return ParseIntent(out.Intent)
}

const classifySystemPrompt = `You classify replies to sales emails. Your output must be ONLY a JSON object of the form {"intent": "<CATEGORY>"}.

Categories:
- POSITIVE_INTEREST: interested, wants more information or a meeting.
- OBJECTION: not interested right now, bad timing, or already has a solution.
- QUESTION: asks a specific question about the offer or pricing.
- NEGATIVE: asks to be unsubscribed or is clearly angry.
- OUT_OF_OFFICE: automated out-of-office reply.
- UNCATEGORIZED: none of the above.

Examples:
"This looks great, can we set up a time to chat next week?" -> POSITIVE_INTEREST
"We're not focused on this at the moment." -> OBJECTION
"Unsubscribe" -> NEGATIVE
"How does your pricing work?" -> QUESTION
"I am out of the office until Friday." -> OUT_OF_OFFICE`

func buildClassifyPrompt(body string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: body},
	}
}

func intentSchema() *engine.Schema {
	enum := make([]string, len(intents))
	for i, in := range intents {
		enum[i] = string(in)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"intent": {Type: "string", Description: "Reply category", Enum: enum},
		},
		Required: []string{"intent"},
	}
}
