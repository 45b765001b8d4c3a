package crawler

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// skippedElements contribute no article text.
var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"nav":      {},
	"header":   {},
	"footer":   {},
	"aside":    {},
	"iframe":   {},
	"svg":      {},
	"form":     {},
}

// blockElements get a newline after their text.
var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"li": {}, "blockquote": {}, "pre": {}, "br": {}, "tr": {},
}

// htmlToText strips markup to plain text. Feed descriptions and raw pages
// both come through here.
func htmlToText(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return strings.TrimSpace(htmlContent)
	}
	var sb strings.Builder
	collectText(doc, &sb)
	return cleanText(sb.String())
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skippedElements[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode {
		if _, block := blockElements[n.Data]; block {
			sb.WriteString("\n")
		}
	}
}

func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// structuredContent pulls text from semantic containers only: <article>,
// <main>, or the largest text-bearing <section>. Empty result means the page
// has no structured content and the caller should fall back.
func structuredContent(doc *html.Node) string {
	var best string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "article" || n.Data == "main") {
			var sb strings.Builder
			collectText(n, &sb)
			if text := cleanText(sb.String()); len(text) > len(best) {
				best = text
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

// readableContent is the readability fallback: it scores <p> density per
// container and returns the densest container's text.
func readableContent(doc *html.Node) string {
	type candidate struct {
		node  *html.Node
		score int
	}
	var best candidate

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "section" || n.Data == "td") {
			score := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "p" {
					var sb strings.Builder
					collectText(c, &sb)
					score += len(strings.TrimSpace(sb.String()))
				}
			}
			if score > best.score {
				best = candidate{node: n, score: score}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if best.node == nil {
		return ""
	}
	var sb strings.Builder
	collectText(best.node, &sb)
	return cleanText(sb.String())
}

// pageTitle returns the document <title>.
func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// jsFrameworkMarkers betray pages that render client-side. Seeing one with a
// thin body means the HTTP fast path got a shell, not the content.
var jsFrameworkMarkers = []string{
	"__NEXT_DATA__",
	"ng-version",
	"data-reactroot",
	"id=\"root\"",
	"id=\"app\"",
	"window.__NUXT__",
	"vite/client",
}

// needsBrowser reports whether a fetched page looks JavaScript-rendered:
// framework markers present or the visible body text below threshold.
func needsBrowser(rawHTML, bodyText string, minChars int) bool {
	if len(bodyText) >= minChars {
		return false
	}
	for _, marker := range jsFrameworkMarkers {
		if strings.Contains(rawHTML, marker) {
			return true
		}
	}
	return len(bodyText) < minChars/4
}
