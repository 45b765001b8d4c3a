package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"

	"golang.org/x/net/html"

	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// WebConfig configures the hybrid web crawler.
type WebConfig struct {
	UserAgents      []string
	MinContentChars int  // threshold for the thin-body JS heuristic
	DisableBrowser  bool // skip the headless fallback entirely
}

// WebCrawler fetches arbitrary web pages: plain HTTP first, and when the
// response looks JavaScript-rendered, a headless-browser pass. User agents
// rotate across requests.
type WebCrawler struct {
	deps    *Deps
	cfg     WebConfig
	browser *BrowserFetcher

	mu    sync.Mutex
	queue map[string][]string
}

// NewWebCrawler creates the crawler. browser may be nil when the headless
// path is disabled.
func NewWebCrawler(deps *Deps, cfg WebConfig, browser *BrowserFetcher) *WebCrawler {
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = 500
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"}
	}
	return &WebCrawler{deps: deps, cfg: cfg, browser: browser, queue: make(map[string][]string)}
}

// Name implements Crawler.
func (c *WebCrawler) Name() string { return "web-crawler" }

// Capability implements Crawler.
func (c *WebCrawler) Capability() string { return registry.CapCrawlWeb }

// Enqueue adds page URLs for an investigation.
func (c *WebCrawler) Enqueue(investigationID string, urls ...string) {
	c.mu.Lock()
	c.queue[investigationID] = append(c.queue[investigationID], urls...)
	c.mu.Unlock()
}

// Fetch implements Crawler: it drains the investigation's queued URLs.
func (c *WebCrawler) Fetch(ctx context.Context, investigationID, query string, constraints Constraints) (*FetchResult, error) {
	result := &FetchResult{}

	c.mu.Lock()
	urls := c.queue[investigationID]
	c.queue[investigationID] = nil
	c.mu.Unlock()

	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Stats.SourcesTried++
		result.Stats.ItemsSeen++

		article, err := c.fetchPage(ctx, investigationID, pageURL)
		if err != nil {
			result.Stats.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("page %s: %w", pageURL, err))
			continue
		}
		if article == nil {
			result.Stats.BelowThreshold++
			continue
		}
		if c.deps.admit(article, sources.AuthoritySignals{}, &result.Stats) {
			result.Articles = append(result.Articles, article)
			result.Stats.ItemsKept++
		}
	}

	logging.Crawler("web crawl for %s: %d/%d pages kept", investigationID, result.Stats.ItemsKept, result.Stats.ItemsSeen)
	c.deps.publishComplete(c.Name(), investigationID, result)
	return result, nil
}

func (c *WebCrawler) fetchPage(ctx context.Context, investigationID, pageURL string) (*types.Article, error) {
	rawHTML, err := c.httpFetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	title, content := extractWebDocument([]byte(rawHTML))

	if needsBrowser(rawHTML, content, c.cfg.MinContentChars) && !c.cfg.DisableBrowser && c.browser != nil {
		logging.CrawlerDebug("page %s looks JS-rendered, switching to browser", pageURL)
		rendered, err := c.browser.FetchHTML(ctx, pageURL)
		if err != nil {
			// Keep whatever the fast path produced.
			logging.CrawlerWarn("browser fetch %s failed, keeping http result: %v", pageURL, err)
		} else {
			title, content = extractWebDocument([]byte(rendered))
		}
	}

	if len(content) < c.cfg.MinContentChars {
		return nil, nil
	}

	return &types.Article{
		InvestigationID: investigationID,
		URL:             pageURL,
		Title:           title,
		Content:         content,
		Source: types.Source{
			ID:   domainOf(pageURL),
			Name: domainOf(pageURL),
			Type: types.SourceWeb,
		},
	}, nil
}

func (c *WebCrawler) httpFetch(ctx context.Context, pageURL string) (string, error) {
	userAgent := c.cfg.UserAgents[rand.Intn(len(c.cfg.UserAgents))]

	resp, err := c.deps.get(ctx, pageURL, userAgent)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// Close releases the headless browser if one was used.
func (c *WebCrawler) Close() {
	if c.browser != nil {
		c.browser.Close()
	}
}

// linkTargets extracts absolute links from a page, used to feed the document
// crawler queue.
func linkTargets(rawHTML string) []string {
	doc, err := html.Parse(bytes.NewReader([]byte(rawHTML)))
	if err != nil {
		return nil
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && (len(attr.Val) > 8) &&
					(attr.Val[:7] == "http://" || attr.Val[:8] == "https://") {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}
