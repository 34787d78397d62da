package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/storage"
)

const writeTimeout = 2 * time.Minute

// Chatter is the LLM surface the composer needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, schema *engine.Schema) (string, error)
}

// Sender identifies who the email is from.
type Sender struct {
	Name   string
	Agency string
}

// Composer writes first-touch emails around a research hook.
type Composer struct {
	llm    Chatter
	model  string
	sender Sender
}

func New(llm Chatter, model string, sender Sender) *Composer {
	return &Composer{llm: llm, model: model, sender: sender}
}

const writeSystemPrompt = `You are an expert B2B copywriter writing a short, personal cold email.
Rules:
- Open with the provided hook, adapted naturally. Do not invent other facts.
- 60 to 120 words, plain text, no markdown, no links, no emojis.
- One clear, low-pressure call to action (a short call or a reply).
- Sign off with the sender's name only.
Output format, exactly:
Subject: <subject line, under 8 words>

<email body>`

// Write returns the generated email content, unparsed. Callers pass the
// result through ParseEmail.
func (c *Composer) Write(ctx context.Context, p storage.Prospect, hook string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	out, err := c.llm.Chat(ctx, c.model, c.prompt(p, hook), nil)
	if err != nil {
		return "", fmt.Errorf("writing email for %s: %w", p.ID, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("writing email for %s: empty response", p.ID)
	}
	return out, nil
}

func (c *Composer) prompt(p storage.Prospect, hook string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prospect: %s", p.FullName)
	if p.Title != "" {
		fmt.Fprintf(&sb, ", %s", p.Title)
	}
	if p.CompanyName != "" {
		fmt.Fprintf(&sb, " at %s", p.CompanyName)
	}
	fmt.Fprintf(&sb, "\nFirst name to greet: %s\nHook: %s\n", p.FirstName(), hook)
	if c.sender.Name != "" {
		fmt.Fprintf(&sb, "Sender: %s", c.sender.Name)
		if c.sender.Agency != "" {
			fmt.Fprintf(&sb, " from %s", c.sender.Agency)
		}
		sb.WriteString("\n")
	}
	return []engine.Message{
		{Role: "system", Content: writeSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
