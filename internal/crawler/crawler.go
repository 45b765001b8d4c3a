// Package crawler implements the fetcher cohort: news feeds, social forums,
// documents, and hybrid web pages. Every variant speaks the same Fetch
// interface, normalizes its output into the shared article schema, dedups
// URLs through the sources manager, and reports partial failure rather than
// aborting on a single bad feed.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sleuth/internal/bus"
	"sleuth/internal/logging"
	"sleuth/internal/ratelimit"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// Constraints narrow what a crawl should cover.
type Constraints struct {
	MaxArticles int           // 0 means the crawler's default
	Window      time.Duration // how far back to look; 0 means default
	Entities    []string      // known entities to bias matching toward
}

// Stats summarizes one fetch.
type Stats struct {
	SourcesTried   int `json:"sources_tried"`
	SourcesFailed  int `json:"sources_failed"`
	ItemsSeen      int `json:"items_seen"`
	ItemsKept      int `json:"items_kept"`
	DuplicateURLs  int `json:"duplicate_urls"`
	BelowThreshold int `json:"below_threshold"`
}

// FetchResult is what every crawler returns: the subset it gathered, fetch
// statistics, and the errors it survived along the way.
type FetchResult struct {
	Articles []*types.Article
	Stats    Stats
	Errors   []error
}

// Crawler is the uniform capability interface of the cohort.
type Crawler interface {
	// Fetch gathers articles for the investigation. Partial failure is
	// normal: errors are accumulated in the result, not returned, unless
	// the whole crawl failed or was cancelled.
	Fetch(ctx context.Context, investigationID, query string, constraints Constraints) (*FetchResult, error)
	// Name identifies the crawler in logs and registry entries.
	Name() string
	// Capability is the registry capability string.
	Capability() string
}

// Deps carries the shared plumbing every crawler needs. One set per process;
// tests build their own.
type Deps struct {
	Hub       *bus.Hub
	URLs      *sources.URLManager
	Authority *sources.AuthorityScorer
	Context   *sources.ContextCoordinator
	Hosts     *ratelimit.HostLimiter
	Client    *http.Client
}

// NewDeps builds dependencies with a default HTTP client when none is given.
func NewDeps(hub *bus.Hub, urls *sources.URLManager, authority *sources.AuthorityScorer, coordinator *sources.ContextCoordinator, hosts *ratelimit.HostLimiter, client *http.Client) *Deps {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Deps{
		Hub:       hub,
		URLs:      urls,
		Authority: authority,
		Context:   coordinator,
		Hosts:     hosts,
		Client:    client,
	}
}

// get performs a rate-limited GET with the given user agent.
func (d *Deps) get(ctx context.Context, rawURL, userAgent string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	if d.Hosts != nil {
		if err := d.Hosts.Acquire(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return resp, nil
}

// admit runs a candidate article through URL dedup and attaches the
// authority metadata. It returns false for duplicates and malformed URLs.
func (d *Deps) admit(a *types.Article, signals sources.AuthoritySignals, stats *Stats) bool {
	canonical, fresh, err := d.URLs.Claim(a.InvestigationID, a.URL)
	if err != nil {
		logging.CrawlerDebug("rejecting malformed url %q: %v", a.URL, err)
		return false
	}
	if !fresh {
		stats.DuplicateURLs++
		return false
	}
	a.URL = canonical

	domain := domainOf(canonical)
	score := d.Authority.Score(domain, signals)
	a.Metadata.AuthorityLevel = sources.AuthorityLevel(score)
	if a.Metadata.RetrievedAt.IsZero() {
		a.Metadata.RetrievedAt = time.Now().UTC()
	}
	a.Metadata.SourceType = a.Source.Type

	if d.Context != nil {
		if hits := d.Context.CrossReference(a.InvestigationID, a.Title+" "+a.Content); len(hits) > 0 {
			logging.CrawlerDebug("article %s mentions %d known entities", canonical, len(hits))
		}
	}
	return true
}

// publishComplete emits the crawler.complete event for an investigation.
func (d *Deps) publishComplete(crawlerName, investigationID string, result *FetchResult) {
	if d.Hub == nil {
		return
	}
	d.Hub.Publish(bus.TopicCrawlerComplete, bus.Message{
		InvestigationID: investigationID,
		Payload: map[string]interface{}{
			"crawler":  crawlerName,
			"articles": len(result.Articles),
			"errors":   len(result.Errors),
		},
	})
}

// publishFailed emits the crawler.failed event. The orchestrator treats this
// as a signal, never a crash.
func (d *Deps) publishFailed(crawlerName, investigationID string, err error) {
	if d.Hub == nil {
		return
	}
	d.Hub.Publish(bus.TopicCrawlerFailed, bus.Message{
		InvestigationID: investigationID,
		Payload: map[string]interface{}{
			"crawler": crawlerName,
			"error":   err.Error(),
		},
	})
}

// domainOf extracts the host from a URL, empty on parse failure.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
