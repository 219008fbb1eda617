package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"reprojects/config"
)

const defaultNavigationTimeout = 45 * time.Second

// BrowserFetcher renders the listings page in headless Chromium, for sites
// that only fill in their cards client-side or block plain HTTP clients.
type BrowserFetcher struct {
	cfg         *config.SiteConfig
	pw          *playwright.Playwright
	browser     playwright.Browser
	mu          sync.Mutex
	initialized bool
}

func NewBrowserFetcher(cfg *config.SiteConfig) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg}
}

func (f *BrowserFetcher) ensureBrowser() error {
	if f.initialized {
		return nil
	}

	var err error
	f.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	f.browser, err = f.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		f.pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	f.initialized = true
	return nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One page at a time; the browser is shared.
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureBrowser(); err != nil {
		return nil, err
	}

	bctx, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(f.cfg.UserAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	timeout, err := navigationTimeout(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("Browser: loading %s", pageURL)
	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("navigate %s: no response", pageURL)
	}
	if status := resp.Status(); status < 200 || status > 299 {
		return nil, &StatusError{URL: pageURL, StatusCode: status}
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	return []byte(html), nil
}

// navigationTimeout is the time left on ctx for a page load. Playwright reads a
// zero timeout as unbounded, so an exhausted budget is an error instead.
func navigationTimeout(ctx context.Context) (time.Duration, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultNavigationTimeout, nil
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, context.DeadlineExceeded
	}
	return remaining, nil
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		f.browser.Close()
		f.browser = nil
	}
	if f.pw != nil {
		f.pw.Stop()
		f.pw = nil
	}
	f.initialized = false
}
