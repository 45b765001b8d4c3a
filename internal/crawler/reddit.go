package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// SocialConfig configures the Reddit-style social crawler.
type SocialConfig struct {
	Subreddits []string
	BaseURL    string // override for tests
	UserAgent  string
	MaxPosts   int
}

// Authority gates for social content. Low-engagement posts and deleted
// authors never become articles; high-score posts get their comment chain.
const (
	minPostScore     = 10
	minPostComments  = 5
	commentPullScore = 100
)

// SocialCrawler searches configured subreddits for investigation keywords
// within a recent window.
type SocialCrawler struct {
	deps *Deps
	cfg  SocialConfig
}

// NewSocialCrawler creates the crawler.
func NewSocialCrawler(deps *Deps, cfg SocialConfig) *SocialCrawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sleuth/1.0 (osint research)"
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 25
	}
	return &SocialCrawler{deps: deps, cfg: cfg}
}

// Name implements Crawler.
func (c *SocialCrawler) Name() string { return "social-crawler" }

// Capability implements Crawler.
func (c *SocialCrawler) Capability() string { return registry.CapCrawlReddit }

// redditListing is the subset of the Reddit JSON listing we read.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
}

// redditComments is the comment-listing payload: element 0 is the post,
// element 1 the comment tree.
type redditComments []struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				Body   string `json:"body"`
				Author string `json:"author"`
				Score  int    `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch implements Crawler.
func (c *SocialCrawler) Fetch(ctx context.Context, investigationID, query string, constraints Constraints) (*FetchResult, error) {
	result := &FetchResult{}

	window := constraints.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-window)

	for _, subreddit := range c.cfg.Subreddits {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Stats.SourcesTried++

		posts, err := c.search(ctx, subreddit, query)
		if err != nil {
			result.Stats.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("subreddit %s: %w", subreddit, err))
			continue
		}

		for _, post := range posts {
			result.Stats.ItemsSeen++
			created := time.Unix(int64(post.CreatedUTC), 0).UTC()
			if created.Before(cutoff) {
				continue
			}
			if !passesAuthorityGate(post) {
				result.Stats.BelowThreshold++
				continue
			}

			content := post.SelfText
			if post.Score > commentPullScore {
				if comments, err := c.topComments(ctx, post.Permalink); err == nil && comments != "" {
					content = content + "\n\n" + comments
				}
			}

			article := &types.Article{
				InvestigationID: investigationID,
				URL:             c.cfg.BaseURL + post.Permalink,
				Title:           post.Title,
				Content:         content,
				PublishedDate:   &created,
				Authors:         []string{post.Author},
				Source: types.Source{
					ID:   "reddit:" + post.Subreddit,
					Name: "r/" + post.Subreddit,
					Type: types.SourceReddit,
				},
			}
			signals := sources.AuthoritySignals{
				PublishedAt:   &created,
				HasEngagement: post.NumComments > minPostComments,
			}
			if c.deps.admit(article, signals, &result.Stats) {
				result.Articles = append(result.Articles, article)
				result.Stats.ItemsKept++
			}
		}
	}

	logging.Crawler("social crawl for %s: %d posts kept, %d below gate",
		investigationID, result.Stats.ItemsKept, result.Stats.BelowThreshold)
	c.deps.publishComplete(c.Name(), investigationID, result)
	return result, nil
}

// passesAuthorityGate applies the engagement gate: score > 10, comments > 5,
// author not deleted.
func passesAuthorityGate(post redditPost) bool {
	if post.Score <= minPostScore {
		return false
	}
	if post.NumComments <= minPostComments {
		return false
	}
	if post.Author == "" || post.Author == "[deleted]" {
		return false
	}
	return true
}

func (c *SocialCrawler) search(ctx context.Context, subreddit, query string) ([]redditPost, error) {
	endpoint := fmt.Sprintf("%s/r/%s/search.json?q=%s&restrict_sr=1&sort=new&limit=%d",
		c.cfg.BaseURL, url.PathEscape(subreddit), url.QueryEscape(query), c.cfg.MaxPosts)

	resp, err := c.deps.get(ctx, endpoint, c.cfg.UserAgent)
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

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

// topComments pulls the top-level comment chain for a high-score post.
func (c *SocialCrawler) topComments(ctx context.Context, permalink string) (string, error) {
	endpoint := c.cfg.BaseURL + strings.TrimSuffix(permalink, "/") + ".json?limit=20"

	resp, err := c.deps.get(ctx, endpoint, c.cfg.UserAgent)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	var payload redditComments
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode comments: %w", err)
	}
	if len(payload) < 2 {
		return "", nil
	}

	var sb strings.Builder
	for _, child := range payload[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		text := strings.TrimSpace(child.Data.Body)
		if text == "" || child.Data.Author == "[deleted]" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
