package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sleuth/internal/bus"
	"sleuth/internal/ratelimit"
	"sleuth/internal/sources"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	hub := bus.New()
	t.Cleanup(hub.Close)
	return NewDeps(
		hub,
		sources.NewURLManager(),
		sources.NewAuthorityScorer(nil),
		sources.NewContextCoordinator(hub),
		ratelimit.NewHostLimiter(100, nil),
		&http.Client{Timeout: 5 * time.Second},
	)
}

func TestNewsCrawlerSurvivesDeadFeed(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss version="2.0"><channel><title>Good</title>
<item><title>Border troops build-up reported</title><link>https://example.com/a</link>
<description>troops massing at the border</description>
<pubDate>`+time.Now().Format(time.RFC1123Z)+`</pubDate></item>
</channel></rss>`)
	}))
	defer good.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer dead.Close()

	c := NewNewsCrawler(testDeps(t), NewsConfig{Feeds: []string{good.URL, dead.URL}})
	result, err := c.Fetch(context.Background(), "inv-1", "troops border", Constraints{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(result.Articles))
	}
	if len(result.Errors) != 1 {
		t.Errorf("got %d errors, want 1 (the dead feed)", len(result.Errors))
	}
	if result.Stats.SourcesFailed != 1 || result.Stats.SourcesTried != 2 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestNewsCrawlerDedupsAcrossFeeds(t *testing.T) {
	feedBody := `<rss version="2.0"><channel><title>F</title>
<item><title>Same story about sanctions</title><link>https://example.com/same?utm_source=rss</link>
<description>sanctions announced today</description></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedBody)
	}))
	defer srv.Close()

	deps := testDeps(t)
	c := NewNewsCrawler(deps, NewsConfig{Feeds: []string{srv.URL}})

	first, err := c.Fetch(context.Background(), "inv-1", "sanctions", Constraints{})
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(first.Articles) != 1 {
		t.Fatalf("first fetch kept %d articles", len(first.Articles))
	}
	// Tracking params are stripped before dedup.
	if strings.Contains(first.Articles[0].URL, "utm_source") {
		t.Errorf("canonical URL still carries tracking params: %s", first.Articles[0].URL)
	}

	second, err := c.Fetch(context.Background(), "inv-1", "sanctions", Constraints{})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second.Articles) != 0 {
		t.Errorf("second fetch should dedup, kept %d", len(second.Articles))
	}

	// A different investigation sees the URL as fresh.
	other, err := c.Fetch(context.Background(), "inv-2", "sanctions", Constraints{})
	if err != nil {
		t.Fatalf("other fetch: %v", err)
	}
	if len(other.Articles) != 1 {
		t.Errorf("other investigation should keep the article, kept %d", len(other.Articles))
	}
}

func TestSocialAuthorityGate(t *testing.T) {
	cases := []struct {
		name string
		post redditPost
		want bool
	}{
		{"passes", redditPost{Score: 50, NumComments: 12, Author: "analyst"}, true},
		{"low_score", redditPost{Score: 10, NumComments: 12, Author: "analyst"}, false},
		{"few_comments", redditPost{Score: 50, NumComments: 5, Author: "analyst"}, false},
		{"deleted_author", redditPost{Score: 50, NumComments: 12, Author: "[deleted]"}, false},
		{"empty_author", redditPost{Score: 50, NumComments: 12}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := passesAuthorityGate(tc.post); got != tc.want {
				t.Errorf("passesAuthorityGate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSocialCrawlerFetch(t *testing.T) {
	now := float64(time.Now().Unix())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "search.json") {
			fmt.Fprintf(w, `{"data":{"children":[
{"data":{"id":"a1","title":"Convoy spotted","selftext":"long convoy on highway","author":"watcher","score":42,"num_comments":17,"permalink":"/r/geopolitics/comments/a1/convoy/","created_utc":%f,"subreddit":"geopolitics"}},
{"data":{"id":"a2","title":"Low effort","selftext":"meh","author":"rando","score":3,"num_comments":1,"permalink":"/r/geopolitics/comments/a2/low/","created_utc":%f,"subreddit":"geopolitics"}}
]}}`, now, now)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewSocialCrawler(testDeps(t), SocialConfig{
		Subreddits: []string{"geopolitics"},
		BaseURL:    srv.URL,
	})
	result, err := c.Fetch(context.Background(), "inv-1", "convoy", Constraints{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.Articles) != 1 {
		t.Fatalf("got %d articles, want 1 (gate should drop the low-effort post)", len(result.Articles))
	}
	a := result.Articles[0]
	if a.Source.Type != "reddit" {
		t.Errorf("source type = %q", a.Source.Type)
	}
	if result.Stats.BelowThreshold != 1 {
		t.Errorf("below-threshold count = %d, want 1", result.Stats.BelowThreshold)
	}
}

func TestDocumentCrawlerMinLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short":
			fmt.Fprint(w, "<html><body><article><p>too short</p></article></body></html>")
		case "/long":
			fmt.Fprintf(w, "<html><head><title>Report</title></head><body><article><p>%s</p></article></body></html>",
				strings.Repeat("substantive finding. ", 60))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewDocumentCrawler(testDeps(t), DocumentConfig{MinContentChars: 500})
	c.Enqueue("inv-1", srv.URL+"/short", srv.URL+"/long")

	result, err := c.Fetch(context.Background(), "inv-1", "", Constraints{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(result.Articles))
	}
	if result.Articles[0].Title != "Report" {
		t.Errorf("title = %q", result.Articles[0].Title)
	}
	if result.Stats.BelowThreshold != 1 {
		t.Errorf("below-threshold = %d, want 1", result.Stats.BelowThreshold)
	}
}

func TestWebCrawlerFastPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>Static</title></head><body><main><p>%s</p></main></body></html>",
			strings.Repeat("plainly server-rendered text. ", 40))
	}))
	defer srv.Close()

	c := NewWebCrawler(testDeps(t), WebConfig{DisableBrowser: true}, nil)
	c.Enqueue("inv-1", srv.URL+"/story")

	result, err := c.Fetch(context.Background(), "inv-1", "", Constraints{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(result.Articles))
	}
	if result.Articles[0].Title != "Static" {
		t.Errorf("title = %q", result.Articles[0].Title)
	}
	if result.Articles[0].Metadata.AuthorityLevel == 0 {
		t.Error("authority level not attached")
	}
}

func TestWebCrawlerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>x</body></html>")
	}))
	defer srv.Close()

	c := NewWebCrawler(testDeps(t), WebConfig{DisableBrowser: true}, nil)
	c.Enqueue("inv-1", srv.URL+"/a", srv.URL+"/b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, "inv-1", "", Constraints{}); err == nil {
		t.Error("cancelled fetch should return the context error")
	}
}
