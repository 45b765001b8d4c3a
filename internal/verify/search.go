package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"sleuth/internal/logging"
	"sleuth/internal/ratelimit"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// SearchResult is one raw hit before evidence scoring.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher abstracts the external search backend so tests and mock mode can
// substitute canned results.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchExecutor runs verification queries, scores each hit for authority
// and relevance, and dedups by URL across the queries of one fact.
type SearchExecutor struct {
	searcher   Searcher
	scorer     *sources.AuthorityScorer
	maxResults int
}

// NewSearchExecutor wires the executor. A nil searcher selects mock mode:
// every query returns an empty result set without failing.
func NewSearchExecutor(searcher Searcher, scorer *sources.AuthorityScorer, maxResults int) *SearchExecutor {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &SearchExecutor{searcher: searcher, scorer: scorer, maxResults: maxResults}
}

// Mocked reports whether the executor runs without a search backend.
func (e *SearchExecutor) Mocked() bool {
	return e.searcher == nil
}

// Execute runs every query and returns scored, URL-deduped evidence.
// Individual query failures degrade to fewer results, not an error.
func (e *SearchExecutor) Execute(ctx context.Context, queries []string) ([]types.Evidence, error) {
	if e.searcher == nil {
		logging.VerifyDebug("search mocked, %d queries skipped", len(queries))
		return nil, nil
	}

	seen := make(map[string]bool)
	var evidence []types.Evidence
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return evidence, err
		}
		results, err := e.searcher.Search(ctx, query, e.maxResults)
		if err != nil {
			logging.VerifyWarn("search %q failed: %v", query, err)
			continue
		}
		for _, result := range results {
			if result.URL == "" || seen[result.URL] {
				continue
			}
			seen[result.URL] = true
			evidence = append(evidence, e.score(query, result))
		}
	}
	return evidence, nil
}

// score converts a raw hit into evidence with authority and relevance.
func (e *SearchExecutor) score(query string, result SearchResult) types.Evidence {
	domain := domainOf(result.URL)
	return types.Evidence{
		URL:            result.URL,
		Domain:         domain,
		SourceType:     sourceTypeFor(domain),
		AuthorityScore: e.scorer.Baseline(domain),
		Snippet:        result.Snippet,
		RelevanceScore: relevance(query, result.Title+" "+result.Snippet),
		RetrievedAt:    time.Now().UTC(),
	}
}

// relevance is keyword overlap: the fraction of query terms present in the
// hit's title and snippet.
func relevance(query, text string) float64 {
	queryTokens := queryTerms(query)
	if len(queryTokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, token := range queryTokens {
		if strings.Contains(lower, token) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// queryTerms extracts the content-bearing terms of a query, dropping search
// operators and quotes.
func queryTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		field = strings.Trim(field, `"'`)
		if field == "or" || field == "and" || strings.HasPrefix(field, "site:") || len(field) < 3 {
			continue
		}
		terms = append(terms, field)
	}
	return terms
}

func sourceTypeFor(domain string) types.SourceType {
	switch {
	case sources.IsSocial(domain):
		return types.SourceReddit
	case strings.HasSuffix(domain, ".gov") || strings.HasSuffix(domain, ".mil"):
		return types.SourceDocument
	default:
		return types.SourceWeb
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// DuckDuckGoSearcher scrapes the DuckDuckGo HTML interface. No API key,
// rate-limited per host like every other outbound fetch.
type DuckDuckGoSearcher struct {
	client *http.Client
	hosts  *ratelimit.HostLimiter
}

const duckDuckGoHost = "html.duckduckgo.com"

func NewDuckDuckGoSearcher(hosts *ratelimit.HostLimiter) *DuckDuckGoSearcher {
	return &DuckDuckGoSearcher{
		client: &http.Client{Timeout: 30 * time.Second},
		hosts:  hosts,
	}
}

// Search performs one DuckDuckGo HTML query.
func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if s.hosts != nil {
		if err := s.hosts.Acquire(ctx, duckDuckGoHost); err != nil {
			return nil, err
		}
	}

	searchURL := fmt.Sprintf("https://%s/html/?q=%s", duckDuckGoHost, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseResults(string(body), maxResults)
}

// parseResults extracts hits from the DuckDuckGo HTML page. Results live in
// divs whose class contains both "result" and "results_links".
func parseResults(htmlContent string, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result") && strings.Contains(attr.Val, "results_links") {
					if r := extractResult(n); r.URL != "" && r.Title != "" {
						results = append(results, r)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extractResult(n *html.Node) SearchResult {
	var result SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				if strings.Contains(attr.Val, "result__a") {
					result.URL = attrValue(n, "href")
					result.Title = textContent(n)
				} else if strings.Contains(attr.Val, "result__snippet") {
					result.Snippet = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	// Unwrap DuckDuckGo redirect URLs.
	if strings.HasPrefix(result.URL, "//duckduckgo.com/l/?uddg=") {
		if decoded, err := url.QueryUnescape(strings.TrimPrefix(result.URL, "//duckduckgo.com/l/?uddg=")); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			result.URL = decoded
		}
	}
	return result
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
