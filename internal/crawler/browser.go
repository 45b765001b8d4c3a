package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"sleuth/internal/logging"
)

// BrowserFetcher renders JavaScript-heavy pages in a headless browser. The
// browser launches lazily on first use and is shared across fetches; Close
// releases it on every exit path.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
	timeout time.Duration
}

// NewBrowserFetcher creates a fetcher. timeout bounds one page render; zero
// selects 60 seconds.
func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{timeout: timeout}
}

// connect launches the headless browser on first use.
func (b *BrowserFetcher) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	b.browser = browser
	b.cleanup = l.Cleanup
	logging.Crawler("headless browser launched")
	return browser, nil
}

// FetchHTML renders the page and returns its post-JavaScript DOM.
func (b *BrowserFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	page = page.Context(ctx)
	defer page.Close()

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", pageURL, err)
	}
	// Give client-side frameworks a beat to hydrate.
	page.WaitRequestIdle(2*time.Second, nil, nil, nil)()

	htmlContent, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read dom %s: %w", pageURL, err)
	}
	return htmlContent, nil
}

// Close shuts the browser down. Safe to call without a prior fetch.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			logging.CrawlerWarn("browser close: %v", err)
		}
		b.browser = nil
	}
	if b.cleanup != nil {
		b.cleanup()
		b.cleanup = nil
	}
}
