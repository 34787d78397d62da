package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/storage"
)

// scoreLLM answers ranking prompts with a fixed reply per result title.
type scoreLLM map[string]string

func (s scoreLLM) Chat(ctx context.Context, _ string, msgs []engine.Message, _ *engine.Schema) (string, error) {
	prompt := msgs[len(msgs)-1].Content
	for title, reply := range s {
		if strings.Contains(prompt, "Title: "+title+"\n") {
			switch reply {
			case "error":
				return "", errors.New("model overloaded")
			case "block":
				<-ctx.Done()
				return "", ctx.Err()
			}
			return reply, nil
		}
	}
	return `{"score": 0}`, nil
}

func searchResults(names ...string) []SearchResult {
	var out []SearchResult
	for _, t := range names {
		out = append(out, SearchResult{Title: t, Link: "https://news.test/" + t})
	}
	return out
}

func titlesOf(rs []SearchResult) string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Title)
	}
	return strings.Join(out, ",")
}

func TestLLMRanker_SortsAndFilters(t *testing.T) {
	r := NewLLMRanker(scoreLLM{
		"a": `{"score": 0.4}`,
		"b": "```json\n{\"score\": 0.9}\n```",
		"c": `{"score": 0.1}`,
		"d": `Sure! {"score": 0.4}`,
	}, "fast")

	got := r.Rank(context.Background(), ann, searchResults("a", "b", "c", "d"))
	if titlesOf(got) != "b,a,d" {
		t.Errorf("ranked = %s, want b,a,d", titlesOf(got))
	}
}

func TestLLMRanker_ScoringErrorKeepsResult(t *testing.T) {
	r := NewLLMRanker(scoreLLM{
		"a": "error",
		"b": `{"score": 0.8}`,
		"c": `not json`,
	}, "fast")

	got := r.Rank(context.Background(), ann, searchResults("a", "b", "c"))
	if titlesOf(got) != "b,a,c" {
		t.Errorf("ranked = %s, want b,a,c", titlesOf(got))
	}
}

func TestLLMRanker_NothingRelevantKeepsOrder(t *testing.T) {
	r := NewLLMRanker(scoreLLM{}, "fast")
	in := searchResults("x", "y")
	if got := r.Rank(context.Background(), ann, in); titlesOf(got) != "x,y" {
		t.Errorf("ranked = %s, want x,y", titlesOf(got))
	}
}

func TestLLMRanker_TimeoutKeepsOrder(t *testing.T) {
	r := NewLLMRanker(scoreLLM{"x": `{"score": 0.1}`, "y": "block"}, "fast")
	r.timeout = 20 * time.Millisecond

	if got := r.Rank(context.Background(), ann, searchResults("x", "y")); titlesOf(got) != "x,y" {
		t.Errorf("ranked = %s, want x,y", titlesOf(got))
	}
}

func TestParseScore(t *testing.T) {
	if v, err := parseScore(`{"score": 0.75}`); err != nil || v != 0.75 {
		t.Errorf("parseScore = %v, %v", v, err)
	}
	for _, bad := range []string{"", "0.5", `{"relevance": 1}`, `{"score": "high"}`} {
		if _, err := parseScore(bad); err == nil {
			t.Errorf("parseScore(%q): expected error", bad)
		}
	}
}

func TestResearch_UsesRanker(t *testing.T) {
	llm := &fakeLLM{
		queries: `{"queries": ["acme news"]}`,
		summary: "Acme opened a Berlin office.",
		hook:    `{"found": true, "hook": "Congrats on the Berlin office."}`,
	}
	search := &fakeSearch{results: map[string][]SearchResult{
		"acme news": searchResults("old", "fresh", "other"),
	}}

	var read []string
	strategy := func(_ context.Context, r SearchResult) (string, error) {
		read = append(read, r.Title)
		return "Article about " + r.Title, nil
	}

	res := New(llm, search, Options{
		FastModel:      "fast",
		MaxLinks:       1,
		Strategies:     []Strategy{strategy},
		Ranker:         reverseRanker{},
		RankCandidates: 3,
	}).Research(context.Background(), ann)

	if res.Kind != KindHook {
		t.Fatalf("kind = %v (%v)", res.Kind, res.Err)
	}
	if len(read) != 1 || read[0] != "other" {
		t.Errorf("read = %v, want [other]", read)
	}
}

type reverseRanker struct{}

func (reverseRanker) Rank(_ context.Context, _ storage.Prospect, rs []SearchResult) []SearchResult {
	out := make([]SearchResult, len(rs))
	for i, r := range rs {
		out[len(rs)-1-i] = r
	}
	return out
}
