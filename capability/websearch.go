package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relaychat/relay/llm"
	"github.com/relaychat/relay/search"
)

// WebSearchName is the capability name declared to the backend.
const WebSearchName = "web_search"

const (
	defaultResultCount = 5
	minResultCount     = 1
	maxResultCount     = 7
)

// citeInstruction is included in every search payload so the backend cites
// entries by their 1-based index.
const citeInstruction = "Cite the search results you use by their index number, e.g. [1]."

// Searcher is the search-provider contract the web_search capability needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// WebSearch executes the backend's web_search invocations.
type WebSearch struct {
	searcher Searcher
	logger   *zap.Logger
}

var _ Capability = (*WebSearch)(nil)

// NewWebSearch creates the web_search capability on top of a search provider.
func NewWebSearch(searcher Searcher, logger *zap.Logger) *WebSearch {
	return &WebSearch{searcher: searcher, logger: logger}
}

func (w *WebSearch) Name() string { return WebSearchName }

// Definition declares the capability's argument schema to the backend.
func (w *WebSearch) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        WebSearchName,
			Description: "Search the web for current information. Returns indexed results with title, snippet and url.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
					"num_results": map[string]any{
						"type":        "integer",
						"description": "How many results to return (1-7, default 5)",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	NumResults *int   `json:"num_results"`
}

type indexedResult struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type webSearchPayload struct {
	Query        string          `json:"query"`
	Results      []indexedResult `json:"results"`
	Instructions string          `json:"instructions"`
}

// Invoke parses the accumulated argument text, clamps the requested result
// count into [1,7] (5 when absent), queries the provider and truncates to the
// clamped bound. A missing or empty query is a hard failure for this
// invocation only.
func (w *WebSearch) Invoke(ctx context.Context, rawArgs string) (*Outcome, error) {
	var args webSearchArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, fmt.Errorf("invalid web_search arguments: %w", err)
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, errors.New("web_search requires a non-empty query")
	}

	limit := defaultResultCount
	if args.NumResults != nil {
		limit = clamp(*args.NumResults, minResultCount, maxResultCount)
	}

	w.logger.Info("Running web search", zap.String("query", query), zap.Int("limit", limit))
	results, err := w.searcher.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(results) > limit {
		results = results[:limit]
	}

	payload := webSearchPayload{
		Query:        query,
		Results:      make([]indexedResult, 0, len(results)),
		Instructions: citeInstruction,
	}
	for i, res := range results {
		payload.Results = append(payload.Results, indexedResult{
			Index:   i + 1,
			Title:   res.Title,
			Snippet: res.Snippet,
			URL:     res.URL,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode web_search payload: %w", err)
	}
	return &Outcome{Payload: string(data), Sources: results}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
