package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"gopkg.in/cenkalti/backoff.v1"
)

// Result is one web search hit, surfaced both to the completion backend and
// to the client. The URL is always present; the snippet may be empty.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

const (
	// maxPrimaryResults caps the hits retained from the aggregator.
	maxPrimaryResults = 5
	// enrichCount bounds excerpt enrichment to the hits most likely to be
	// useful; fetching every landing page is too slow.
	enrichCount = 2
	// excerptLimit caps the flattened page text appended to a snippet.
	excerptLimit = 4000
	// pageReadLimit bounds how much of a landing page is read at all.
	pageReadLimit = 1 << 20

	queryRetryWindow = 10 * time.Second
)

// Provider queries a SearXNG-compatible search aggregator and enriches the
// top hits with landing-page excerpts.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProvider creates a search provider for the aggregator at baseURL.
func NewProvider(baseURL string, logger *zap.Logger) *Provider {
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type aggregatorResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs the primary aggregator query, then enriches the first hits with
// page excerpts. A failed query is a hard error for the whole invocation; a
// failed excerpt fetch only leaves that hit's snippet unchanged.
func (p *Provider) Search(ctx context.Context, query string) ([]Result, error) {
	results, err := p.query(ctx, query)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Primary search query done", zap.String("query", query), zap.Int("results", len(results)))

	for i := 0; i < len(results) && i < enrichCount; i++ {
		excerpt, err := p.fetchExcerpt(ctx, results[i].URL)
		if err != nil {
			p.logger.Debug("Excerpt fetch failed, keeping original snippet",
				zap.String("url", results[i].URL), zap.Error(err))
			continue
		}
		if excerpt == "" {
			continue
		}
		if results[i].Snippet == "" {
			results[i].Snippet = excerpt
		} else {
			results[i].Snippet += "\n" + excerpt
		}
	}
	return results, nil
}

// query calls the aggregator's JSON endpoint. Transport errors are retried
// with exponential backoff inside a bounded window; a non-success status is a
// hard error and is not retried.
func (p *Provider) query(ctx context.Context, query string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&language=en", p.baseURL, url.QueryEscape(query))

	var body []byte
	var statusErr error
	operation := func() error {
		statusErr = nil
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			statusErr = fmt.Errorf("search backend returned status %d", resp.StatusCode)
			return nil
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = queryRetryWindow
	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	if statusErr != nil {
		return nil, statusErr
	}

	var parsed aggregatorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, maxPrimaryResults)
	for _, hit := range parsed.Results {
		if hit.URL == "" {
			continue
		}
		title := hit.Title
		if title == "" {
			title = hit.URL
		}
		results = append(results, Result{Title: title, Snippet: hit.Content, URL: hit.URL})
		if len(results) == maxPrimaryResults {
			break
		}
	}
	return results, nil
}

// fetchExcerpt downloads a landing page and reduces it to flattened,
// whitespace-normalized text capped at excerptLimit characters.
func (p *Provider) fetchExcerpt(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	text, err := flattenHTML(io.LimitReader(resp.Body, pageReadLimit))
	if err != nil {
		return "", err
	}
	return truncate(text, excerptLimit), nil
}

// flattenHTML strips markup, skipping script and style subtrees, and
// collapses all whitespace runs to single spaces.
func flattenHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript"):
			return
		case n.Type == html.TextNode:
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
