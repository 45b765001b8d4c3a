package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// NewsConfig configures the news-feed crawler.
type NewsConfig struct {
	Feeds            []string
	NewsAPIKey       string // optional; empty disables the API supplement
	NewsAPIEndpoint  string
	QuotaPerHour     int // free tier = 4
	MaxPerFeed       int
	FeedConcurrency  int
	UserAgent        string
}

const defaultNewsAPIEndpoint = "https://newsapi.org/v2/everything"

// NewsCrawler fetches a configured feed set concurrently, surviving any
// single feed's failure, and optionally supplements results through a
// news-search API under a strict hourly quota.
type NewsCrawler struct {
	deps *Deps
	cfg  NewsConfig

	quotaMu    sync.Mutex
	quotaUsed  int
	quotaReset time.Time
}

// NewNewsCrawler creates the crawler.
func NewNewsCrawler(deps *Deps, cfg NewsConfig) *NewsCrawler {
	if cfg.QuotaPerHour <= 0 {
		cfg.QuotaPerHour = 4
	}
	if cfg.MaxPerFeed <= 0 {
		cfg.MaxPerFeed = 20
	}
	if cfg.FeedConcurrency <= 0 {
		cfg.FeedConcurrency = 4
	}
	if cfg.NewsAPIEndpoint == "" {
		cfg.NewsAPIEndpoint = defaultNewsAPIEndpoint
	}
	return &NewsCrawler{deps: deps, cfg: cfg}
}

// Name implements Crawler.
func (c *NewsCrawler) Name() string { return "news-crawler" }

// Capability implements Crawler.
func (c *NewsCrawler) Capability() string { return registry.CapCrawlNews }

// Fetch implements Crawler. Feeds are visited in a random rotation so
// repeated crawls do not hammer sources in the same order.
func (c *NewsCrawler) Fetch(ctx context.Context, investigationID, query string, constraints Constraints) (*FetchResult, error) {
	result := &FetchResult{}

	feeds := make([]string, len(c.cfg.Feeds))
	copy(feeds, c.cfg.Feeds)
	rand.Shuffle(len(feeds), func(i, j int) { feeds[i], feeds[j] = feeds[j], feeds[i] })

	type feedOutcome struct {
		articles []*types.Article
		stats    Stats
		err      error
	}

	sem := make(chan struct{}, c.cfg.FeedConcurrency)
	outcomes := make([]feedOutcome, len(feeds))
	var wg sync.WaitGroup

	for i, feedURL := range feeds {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i].articles, outcomes[i].stats, outcomes[i].err =
				c.fetchFeed(ctx, investigationID, feedURL, query, constraints)
		}(i, feedURL)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		result.Stats.SourcesTried++
		result.Stats.ItemsSeen += outcome.stats.ItemsSeen
		result.Stats.ItemsKept += outcome.stats.ItemsKept
		result.Stats.DuplicateURLs += outcome.stats.DuplicateURLs
		if outcome.err != nil {
			// One dead feed never aborts the others.
			result.Stats.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("feed %s: %w", feeds[i], outcome.err))
			continue
		}
		result.Articles = append(result.Articles, outcome.articles...)
	}

	if c.cfg.NewsAPIKey != "" && query != "" {
		apiArticles, err := c.searchNewsAPI(ctx, investigationID, query)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("news api: %w", err))
		} else {
			result.Stats.SourcesTried++
			for _, a := range apiArticles {
				result.Stats.ItemsSeen++
				if c.deps.admit(a, sources.AuthoritySignals{PublishedAt: a.PublishedDate}, &result.Stats) {
					result.Articles = append(result.Articles, a)
					result.Stats.ItemsKept++
				}
			}
		}
	}

	logging.Crawler("news crawl for %s: %d articles from %d/%d sources",
		investigationID, len(result.Articles), result.Stats.SourcesTried-result.Stats.SourcesFailed, result.Stats.SourcesTried)
	c.deps.publishComplete(c.Name(), investigationID, result)
	return result, nil
}

// fetchFeed pulls one feed and keeps the items relevant to the query.
func (c *NewsCrawler) fetchFeed(ctx context.Context, investigationID, feedURL, query string, constraints Constraints) ([]*types.Article, Stats, error) {
	var stats Stats

	resp, err := c.deps.get(ctx, feedURL, c.cfg.UserAgent)
	if err != nil {
		return nil, stats, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, stats, fmt.Errorf("status %d", resp.StatusCode)
	}

	feedTitle, items, err := parseFeed(resp.Body)
	if err != nil {
		return nil, stats, err
	}

	cutoff := time.Time{}
	if constraints.Window > 0 {
		cutoff = time.Now().Add(-constraints.Window)
	}

	var articles []*types.Article
	for _, item := range items {
		stats.ItemsSeen++
		if len(articles) >= c.cfg.MaxPerFeed {
			break
		}
		if item.Link == "" {
			continue
		}
		if !cutoff.IsZero() && item.Published != nil && item.Published.Before(cutoff) {
			continue
		}
		if query != "" && !matchesQuery(item.Title+" "+item.Content, query, constraints.Entities) {
			continue
		}

		article := &types.Article{
			InvestigationID: investigationID,
			URL:             item.Link,
			Title:           item.Title,
			Content:         item.Content,
			PublishedDate:   item.Published,
			Authors:         item.Authors,
			Source: types.Source{
				ID:   domainOf(feedURL),
				Name: feedTitle,
				Type: types.SourceRSS,
			},
		}
		if c.deps.admit(article, sources.AuthoritySignals{PublishedAt: item.Published}, &stats) {
			articles = append(articles, article)
			stats.ItemsKept++
		}
	}
	return articles, stats, nil
}

// newsAPIResponse is the subset of the news-search API payload we read.
type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Content     string `json:"content"`
		PublishedAt string `json:"publishedAt"`
		Author      string `json:"author"`
		Source      struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// searchNewsAPI queries the news-search API if quota remains this hour.
func (c *NewsCrawler) searchNewsAPI(ctx context.Context, investigationID, query string) ([]*types.Article, error) {
	if !c.takeQuota() {
		logging.CrawlerWarn("news api quota exhausted (%d/hour), skipping supplement", c.cfg.QuotaPerHour)
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s?q=%s&sortBy=publishedAt&pageSize=20", c.cfg.NewsAPIEndpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.cfg.NewsAPIKey)

	resp, err := c.deps.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var payload newsAPIResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var articles []*types.Article
	for _, item := range payload.Articles {
		if item.URL == "" {
			continue
		}
		article := &types.Article{
			InvestigationID: investigationID,
			URL:             item.URL,
			Title:           item.Title,
			Content:         strings.TrimSpace(item.Description + "\n" + item.Content),
			PublishedDate:   parseFeedDate(item.PublishedAt),
			Source: types.Source{
				ID:   item.Source.ID,
				Name: item.Source.Name,
				Type: types.SourceAPI,
			},
		}
		if article.Source.ID == "" {
			article.Source.ID = domainOf(item.URL)
		}
		if author := strings.TrimSpace(item.Author); author != "" {
			article.Authors = []string{author}
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// takeQuota consumes one API call from the hourly budget.
func (c *NewsCrawler) takeQuota() bool {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()

	now := time.Now()
	if now.After(c.quotaReset) {
		c.quotaUsed = 0
		c.quotaReset = now.Add(time.Hour)
	}
	if c.quotaUsed >= c.cfg.QuotaPerHour {
		return false
	}
	c.quotaUsed++
	return true
}

// matchesQuery reports whether text mentions any query term or known entity.
func matchesQuery(text, query string, entities []string) bool {
	haystack := strings.ToLower(text)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) < 3 {
			continue
		}
		if strings.Contains(haystack, term) {
			return true
		}
	}
	for _, entity := range entities {
		if entity != "" && strings.Contains(haystack, strings.ToLower(entity)) {
			return true
		}
	}
	return false
}
