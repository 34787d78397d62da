package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/storage"
)

// Ranker orders search results by how promising they are as hook sources.
// Implementations must not drop every result on failure.
type Ranker interface {
	Rank(ctx context.Context, p storage.Prospect, results []SearchResult) []SearchResult
}

// searchOrder keeps results as the search engine returned them.
type searchOrder struct{}

func (searchOrder) Rank(_ context.Context, _ storage.Prospect, results []SearchResult) []SearchResult {
	return results
}

const (
	defaultRankConcurrency = 3
	defaultRankThreshold   = 0.3
	defaultRankTimeout     = 30 * time.Second
)

// LLMRanker scores each result's title and snippet with the fast model.
// Results under the threshold are dropped and the rest sorted by score,
// ties keeping search order. When scoring times out, or nothing clears
// the threshold, the input order is returned unchanged.
type LLMRanker struct {
	llm       Chatter
	model     string
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

func NewLLMRanker(llm Chatter, model string) *LLMRanker {
	return &LLMRanker{
		llm:       llm,
		model:     model,
		threshold: defaultRankThreshold,
		timeout:   defaultRankTimeout,
		logger:    slog.Default(),
	}
}

type scoredResult struct {
	SearchResult
	score float64
	pos   int
}

func (r *LLMRanker) Rank(ctx context.Context, p storage.Prospect, results []SearchResult) []SearchResult {
	if len(results) < 2 {
		return results
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scored := make([]scoredResult, len(results))
	g, gctx := errgroup.WithContext(tctx)
	g.SetLimit(defaultRankConcurrency)
	for i, res := range results {
		g.Go(func() error {
			score, err := r.score(gctx, p, res)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Unscorable results stay in play at the threshold.
				r.logger.Debug("ranking result failed", "url", res.Link, "error", err)
				score = r.threshold
			}
			scored[i] = scoredResult{SearchResult: res, score: score, pos: i}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Debug("ranking timed out, keeping search order", "error", err)
		return results
	}

	kept := scored[:0]
	for _, s := range scored {
		if s.score >= r.threshold {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return results
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].pos < kept[j].pos
	})

	out := make([]SearchResult, len(kept))
	for i, s := range kept {
		out[i] = s.SearchResult
	}
	return out
}

func (r *LLMRanker) score(ctx context.Context, p storage.Prospect, res SearchResult) (float64, error) {
	prompt := fmt.Sprintf(`Rate from 0.0 to 1.0 how likely this search result contains recent, specific news about %s or their company %s that would make a personal opening line.
Title: %s
Snippet: %s
Respond with only a JSON object: {"score": <number>}`, p.FullName, p.CompanyName, res.Title, res.Snippet)

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "relevance from 0.0 to 1.0"},
		},
		Required: []string{"score"},
	}

	raw, err := r.llm.Chat(ctx, r.model, []engine.Message{{Role: "user", Content: prompt}}, schema)
	if err != nil {
		return 0, err
	}
	return parseScore(raw)
}

// parseScore extracts {"score": x} from a model reply that may carry a code
// fence or chatter around the object.
func parseScore(raw string) (float64, error) {
	s := stripFence(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in %q", raw)
	}
	var obj struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("parsing score: %w", err)
	}
	if obj.Score == nil {
		return 0, fmt.Errorf("no score in %q", raw)
	}
	return *obj.Score, nil
}
