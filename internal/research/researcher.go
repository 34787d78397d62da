// Package research finds a personalized opening line ("hook") for a
// prospect: it asks the LLM for search queries, searches the web, reads the
// best sources and has the LLM condense them into a single sentence.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/storage"
)

// Chatter is the LLM surface research needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, schema *engine.Schema) (string, error)
}

// Searcher runs a single web search.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type Options struct {
	FastModel  string // query generation
	DeepModel  string // summaries and hook synthesis
	MaxQueries int
	MaxLinks   int
	Strategies []Strategy
	Logger     *slog.Logger

	// Ranker reorders up to RankCandidates distinct results before the
	// first MaxLinks are read. Nil keeps search order.
	Ranker         Ranker
	RankCandidates int
}

// Researcher implements the hook research pipeline.
type Researcher struct {
	llm        Chatter
	search     Searcher
	fastModel  string
	deepModel  string
	maxQueries int
	maxLinks   int
	strategies []Strategy
	logger     *slog.Logger
	ranker     Ranker
	candidates int
}

func New(llm Chatter, search Searcher, opts Options) *Researcher {
	if opts.MaxQueries <= 0 {
		opts.MaxQueries = 3
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = 3
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeepModel == "" {
		opts.DeepModel = opts.FastModel
	}
	if opts.Ranker == nil {
		opts.Ranker = searchOrder{}
	}
	if opts.RankCandidates < opts.MaxLinks {
		opts.RankCandidates = opts.MaxLinks
	}
	return &Researcher{
		llm:        llm,
		search:     search,
		fastModel:  opts.FastModel,
		deepModel:  opts.DeepModel,
		maxQueries: opts.MaxQueries,
		maxLinks:   opts.MaxLinks,
		strategies: opts.Strategies,
		logger:     opts.Logger,
		ranker:     opts.Ranker,
		candidates: opts.RankCandidates,
	}
}

// Research never panics and never returns a zero Result.
func (r *Researcher) Research(ctx context.Context, p storage.Prospect) Result {
	log := r.logger.With("prospect_id", p.ID)

	if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.CompanyName) == "" {
		return NotFound("prospect name or company is missing")
	}

	queries, err := r.generateQueries(ctx, p)
	if err != nil {
		return Failed(fmt.Errorf("generating queries: %w", err))
	}
	if len(queries) == 0 {
		return NotFound("no search queries generated")
	}
	log.Debug("generated search queries", "queries", queries)

	results, err := r.searchAll(ctx, queries)
	if err != nil {
		return Failed(err)
	}
	links := r.ranker.Rank(ctx, p, pickLinks(results, r.candidates))
	if len(links) == 0 {
		return NotFound("web search returned no results")
	}
	if len(links) > r.maxLinks {
		links = links[:r.maxLinks]
	}

	var notes []string
	var lastErr error
	for _, res := range links {
		text, ok := r.extract(ctx, res)
		if !ok {
			continue
		}
		summary, err := r.llm.Chat(ctx, r.deepModel, summaryPrompt(text), nil)
		if err != nil {
			if ctx.Err() != nil {
				return Failed(ctx.Err())
			}
			log.Warn("summarizing source failed", "url", res.Link, "error", err)
			lastErr = err
			continue
		}
		if s := strings.TrimSpace(summary); s != "" {
			notes = append(notes, s)
		}
	}
	if len(notes) == 0 {
		if lastErr != nil {
			return Failed(fmt.Errorf("summarizing sources: %w", lastErr))
		}
		return NotFound("no readable sources")
	}

	hook, found, err := r.synthesize(ctx, p, notes)
	if err != nil {
		return Failed(fmt.Errorf("synthesizing hook: %w", err))
	}
	if !found {
		return NotFound("sources had nothing specific to mention")
	}
	log.Info("research found hook", "sources", len(notes))
	return Found(hook)
}

func (r *Researcher) generateQueries(ctx context.Context, p storage.Prospect) ([]string, error) {
	raw, err := r.llm.Chat(ctx, r.fastModel, queriesPrompt(p), queriesSchema())
	if err != nil {
		return nil, err
	}
	queries, err := parseQueries(raw)
	if err != nil {
		return nil, err
	}
	if len(queries) > r.maxQueries {
		queries = queries[:r.maxQueries]
	}
	return queries, nil
}

// parseQueries accepts {"queries": [...]} or a bare JSON array, optionally
// wrapped in a markdown code fence.
func parseQueries(raw string) ([]string, error) {
	raw = stripFence(raw)

	var wrapped struct {
		Queries []string `json:"queries"`
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Queries != nil {
		list = wrapped.Queries
	} else if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parsing queries %q: %w", raw, err)
	}

	out := list[:0]
	for _, q := range list {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// searchAll runs queries concurrently. It fails only when every query
// fails; partial results are kept in query order.
func (r *Researcher) searchAll(ctx context.Context, queries []string) ([]SearchResult, error) {
	perQuery := make([][]SearchResult, len(queries))
	errs := make([]error, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, q := range queries {
		g.Go(func() error {
			res, err := r.search.Search(gCtx, q)
			if err != nil {
				errs[i] = err
				return nil
			}
			perQuery[i] = res
			return nil
		})
	}
	g.Wait()

	var all []SearchResult
	failed := 0
	for i := range queries {
		if errs[i] != nil {
			failed++
			r.logger.Warn("web search failed", "query", queries[i], "error", errs[i])
			continue
		}
		all = append(all, perQuery[i]...)
	}
	if failed == len(queries) {
		return nil, fmt.Errorf("all %d searches failed: %w", failed, errors.Join(errs...))
	}
	return all, nil
}

// pickLinks keeps the first n distinct links in search order.
func pickLinks(results []SearchResult, n int) []SearchResult {
	seen := make(map[string]bool)
	var out []SearchResult
	for _, res := range results {
		if res.Link == "" || seen[res.Link] {
			continue
		}
		seen[res.Link] = true
		out = append(out, res)
		if len(out) == n {
			break
		}
	}
	return out
}

func (r *Researcher) extract(ctx context.Context, res SearchResult) (string, bool) {
	for i, s := range r.strategies {
		text, err := s(ctx, res)
		if errors.Is(err, ErrSkip) {
			continue
		}
		if err != nil {
			r.logger.Debug("extraction strategy failed", "url", res.Link, "strategy", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, true
		}
	}
	return "", false
}

func (r *Researcher) synthesize(ctx context.Context, p storage.Prospect, notes []string) (string, bool, error) {
	raw, err := r.llm.Chat(ctx, r.deepModel, hookPrompt(p, notes), hookSchema())
	if err != nil {
		return "", false, err
	}
	var out struct {
		Found bool   `json:"found"`
		Hook  string `json:"hook"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &out); err != nil {
		return "", false, fmt.Errorf("parsing hook %q: %w", raw, err)
	}
	hook := strings.TrimSpace(out.Hook)
	return hook, out.Found && hook != "", nil
}
