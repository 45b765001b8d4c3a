package crawler

import (
	"strings"
	"testing"
)

func TestParseFeedRSS(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Wire Desk</title>
    <item>
      <title>Troops massed at border</title>
      <link>https://example.com/troops</link>
      <description>&lt;p&gt;About 100,000 troops&lt;/p&gt;</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <dc:creator>J. Reporter</dc:creator>
    </item>
    <item>
      <title>No date item</title>
      <link>https://example.com/nodate</link>
      <description>Body text</description>
    </item>
  </channel>
</rss>`

	title, items, err := parseFeed(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if title != "Wire Desk" {
		t.Errorf("title = %q", title)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Published == nil {
		t.Error("first item should have a parsed date")
	}
	if items[0].Content != "About 100,000 troops" {
		t.Errorf("content = %q", items[0].Content)
	}
	if len(items[0].Authors) != 1 || items[0].Authors[0] != "J. Reporter" {
		t.Errorf("authors = %v", items[0].Authors)
	}
	// A missing date is survivable, not an error.
	if items[1].Published != nil {
		t.Error("second item should have nil date")
	}
}

func TestParseFeedAtom(t *testing.T) {
	feed := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Gov Bulletin</title>
  <entry>
    <title>Sanctions announced</title>
    <link rel="alternate" href="https://agency.gov/sanctions"/>
    <summary>New measures take effect.</summary>
    <updated>2024-03-01T12:00:00Z</updated>
    <author><name>Press Office</name></author>
  </entry>
</feed>`

	title, items, err := parseFeed(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if title != "Gov Bulletin" {
		t.Errorf("title = %q", title)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Link != "https://agency.gov/sanctions" {
		t.Errorf("link = %q", items[0].Link)
	}
	if items[0].Published == nil {
		t.Error("updated date should parse")
	}
}

func TestParseFeedGarbage(t *testing.T) {
	if _, _, err := parseFeed(strings.NewReader("not a feed at all")); err == nil {
		t.Error("expected error for non-feed input")
	}
}

func TestParseFeedDateFallbacks(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want bool
	}{
		{"rfc1123z", []string{"Mon, 02 Jan 2006 15:04:05 -0700"}, true},
		{"rfc3339", []string{"", "2024-06-15T08:30:00Z"}, true},
		{"date_only", []string{"2024-06-15"}, true},
		{"garbage", []string{"next tuesday-ish"}, false},
		{"empty", []string{""}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseFeedDate(tc.in...)
			if (got != nil) != tc.want {
				t.Errorf("parseFeedDate(%v) parsed=%v, want %v", tc.in, got != nil, tc.want)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	in := `<html><head><script>var x=1;</script><title>T</title></head>
<body><nav>menu</nav><article><h1>Headline</h1><p>First para.</p><p>Second para.</p></article></body></html>`
	out := htmlToText(in)
	if strings.Contains(out, "var x") || strings.Contains(out, "menu") {
		t.Errorf("script/nav text leaked into %q", out)
	}
	if !strings.Contains(out, "First para.") || !strings.Contains(out, "Second para.") {
		t.Errorf("body text missing from %q", out)
	}
}

func TestNeedsBrowser(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		body string
		want bool
	}{
		{"rich_static_page", "<html>...</html>", strings.Repeat("x", 900), false},
		{"react_shell", `<div id="root" data-reactroot></div>`, "loading", true},
		{"next_shell", `<script id="__NEXT_DATA__"></script>`, "", true},
		{"thin_but_plain", "<html><body>tiny</body></html>", "tiny", true},
		{"moderate_plain", "<html></html>", strings.Repeat("y", 200), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := needsBrowser(tc.raw, tc.body, 500); got != tc.want {
				t.Errorf("needsBrowser = %v, want %v", got, tc.want)
			}
		})
	}
}
