package research

import (
	"fmt"
	"strings"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/storage"
)

// maxArticleChars bounds how much of an article is sent for summarization.
const maxArticleChars = 4000

const queriesSystemPrompt = `You are a world-class Sales Development Representative (SDR) and research analyst.
Your goal is to generate 3 to 5 diverse and insightful Google search queries to find a recent, personalized "hook" for a cold email.
Good queries are about recent company news, funding rounds, product launches, executive keynotes, or personal achievements.
Bad queries are generic searches for the company homepage or the person's LinkedIn profile.
Respond with ONLY a JSON object of the form {"queries": ["query 1", "query 2", "query 3"]}.`

const summarySystemPrompt = `You are a world-class business intelligence analyst. Read the article text and provide a concise, 2-3 sentence summary that would be useful for a sales executive looking for a personalized email hook. Focus on the core announcement, key figures, or the main strategic point of the article.`

const hookSystemPrompt = `You write the opening line of a cold email. From the research notes, pick the single most specific and recent fact about the prospect or their company and turn it into one natural sentence that shows genuine familiarity.
Rules:
- Mention a concrete event, number or initiative from the notes. Never invent facts.
- No flattery, no questions, no greetings, at most 30 words.
- If the notes contain nothing specific to this person or company, set "found" to false and "hook" to "".
Respond with ONLY a JSON object matching the schema.`

func queriesPrompt(p storage.Prospect) []engine.Message {
	user := fmt.Sprintf("Prospect: %s\nCompany: %s", p.FullName, p.CompanyName)
	if p.Title != "" {
		user += "\nTitle: " + p.Title
	}
	if p.CompanyDomain != "" {
		user += "\nWebsite: " + p.CompanyDomain
	}
	return []engine.Message{
		{Role: "system", Content: queriesSystemPrompt},
		{Role: "user", Content: user},
	}
}

func summaryPrompt(article string) []engine.Message {
	if r := []rune(article); len(r) > maxArticleChars {
		article = string(r[:maxArticleChars])
	}
	return []engine.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: "Article Text:\n---\n" + article},
	}
}

func hookPrompt(p storage.Prospect, notes []string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prospect: %s, %s at %s\n\nResearch notes:\n", p.FullName, p.Title, p.CompanyName)
	for i, n := range notes {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(n))
	}
	return []engine.Message{
		{Role: "system", Content: hookSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

func queriesSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"queries": {
				Type:        "array",
				Description: "3 to 5 web search queries",
				Items:       &engine.SchemaProperty{Type: "string"},
			},
		},
		Required: []string{"queries"},
	}
}

func hookSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"found": {Type: "boolean", Description: "Whether the notes contain a specific, usable fact"},
			"hook":  {Type: "string", Description: "One-sentence personalized opening line"},
		},
		Required: []string{"found", "hook"},
	}
}
