package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/sources"
	"sleuth/internal/types"
)

// DocumentConfig configures the document crawler.
type DocumentConfig struct {
	MinContentChars int // quality filter; content shorter than this is discarded
	MaxDocumentMB   int
	UserAgent       string
}

// DocumentCrawler fetches PDFs and web documents from explicit URLs. PDF
// extraction runs a plain-text pass first and falls back to row-wise table
// extraction; web documents cascade structured-content -> readability ->
// raw DOM.
type DocumentCrawler struct {
	deps *Deps
	cfg  DocumentConfig

	// URLs to fetch, supplied per investigation before Fetch.
	queue map[string][]string
}

// NewDocumentCrawler creates the crawler.
func NewDocumentCrawler(deps *Deps, cfg DocumentConfig) *DocumentCrawler {
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = 500
	}
	if cfg.MaxDocumentMB <= 0 {
		cfg.MaxDocumentMB = 16
	}
	return &DocumentCrawler{deps: deps, cfg: cfg, queue: make(map[string][]string)}
}

// Name implements Crawler.
func (c *DocumentCrawler) Name() string { return "document-crawler" }

// Capability implements Crawler.
func (c *DocumentCrawler) Capability() string { return registry.CapCrawlDocument }

// Enqueue adds document URLs for an investigation. The orchestrator and the
// context coordinator feed this from discovered links.
func (c *DocumentCrawler) Enqueue(investigationID string, urls ...string) {
	c.queue[investigationID] = append(c.queue[investigationID], urls...)
}

// Fetch implements Crawler: it drains the investigation's queued URLs.
func (c *DocumentCrawler) Fetch(ctx context.Context, investigationID, query string, constraints Constraints) (*FetchResult, error) {
	result := &FetchResult{}

	urls := c.queue[investigationID]
	c.queue[investigationID] = nil

	for _, docURL := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Stats.SourcesTried++
		result.Stats.ItemsSeen++

		article, err := c.fetchDocument(ctx, investigationID, docURL)
		if err != nil {
			result.Stats.SourcesFailed++
			result.Errors = append(result.Errors, fmt.Errorf("document %s: %w", docURL, err))
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

	logging.Crawler("document crawl for %s: %d/%d documents kept",
		investigationID, result.Stats.ItemsKept, result.Stats.ItemsSeen)
	c.deps.publishComplete(c.Name(), investigationID, result)
	return result, nil
}

func (c *DocumentCrawler) fetchDocument(ctx context.Context, investigationID, docURL string) (*types.Article, error) {
	resp, err := c.deps.get(ctx, docURL, c.cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	limit := int64(c.cfg.MaxDocumentMB) << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	isPDF := strings.Contains(contentType, "application/pdf") ||
		strings.HasSuffix(strings.ToLower(docURL), ".pdf") ||
		bytes.HasPrefix(data, []byte("%PDF"))

	var title, content string
	if isPDF {
		content, err = extractPDFText(data)
		if err != nil {
			return nil, fmt.Errorf("pdf extract: %w", err)
		}
		title = titleFromContent(content)
	} else {
		title, content = extractWebDocument(data)
	}

	// Quality filter: short fragments carry no extractable facts.
	if len(content) < c.cfg.MinContentChars {
		logging.CrawlerDebug("document %s below minimum length (%d chars)", docURL, len(content))
		return nil, nil
	}

	return &types.Article{
		InvestigationID: investigationID,
		URL:             docURL,
		Title:           title,
		Content:         content,
		Source: types.Source{
			ID:   domainOf(docURL),
			Name: domainOf(docURL),
			Type: types.SourceDocument,
		},
	}, nil
}

// extractPDFText runs the primary plain-text extractor and falls back to
// row-wise extraction, which recovers text from table-heavy documents the
// plain pass renders empty.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	if text, err := plainPDFText(reader); err == nil && strings.TrimSpace(text) != "" {
		return cleanText(text), nil
	}

	// Fallback: walk pages row by row.
	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
				sb.WriteString(" ")
			}
			sb.WriteString("\n")
		}
	}
	text := cleanText(sb.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text")
	}
	return text, nil
}

func plainPDFText(reader *pdf.Reader) (string, error) {
	r, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractWebDocument cascades the extractors: structured content first,
// readability scoring second, the raw DOM text last.
func extractWebDocument(data []byte) (title, content string) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", cleanText(string(data))
	}

	title = pageTitle(doc)

	if content = structuredContent(doc); content != "" {
		return title, content
	}
	if content = readableContent(doc); content != "" {
		return title, content
	}

	var sb strings.Builder
	collectText(doc, &sb)
	return title, cleanText(sb.String())
}

// titleFromContent takes the first non-empty line as a document title.
func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return ""
}
