package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/playwright-community/playwright-go"
)

// Browser owns the one page every source adapter shares. Vendor sessions
// (logins, cookies) live in that page's context, so navigation is serialized.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger

	mu   sync.Mutex
	page playwright.Page
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	// UserDataDir keeps vendor logins between runs when set.
	UserDataDir  string
	ExtraHeaders map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ko-KR,ko;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Seoul",
		Locale:         "ko-KR",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &Browser{
		pw:     pw,
		opts:   opts,
		logger: logger.With("component", "browser"),
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	headers["Accept-Language"] = opts.AcceptLanguage

	args := []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
	}
	viewport := &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}

	if opts.UserDataDir != "" {
		persistent := playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless:         &opts.Headless,
			Args:             args,
			UserAgent:        &opts.UserAgent,
			Locale:           &opts.Locale,
			TimezoneId:       &opts.TimezoneID,
			Viewport:         viewport,
			ExtraHttpHeaders: headers,
		}
		if opts.ProxyServer != "" {
			persistent.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
		}
		b.context, err = pw.Chromium.LaunchPersistentContext(opts.UserDataDir, persistent)
		if err != nil {
			pw.Stop()
			return nil, fmt.Errorf("failed to launch persistent context: %w", err)
		}
		return b, nil
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     args,
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	b.browser, err = pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b.context, err = b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport:          viewport,
		ExtraHttpHeaders:  headers,
	})
	if err != nil {
		b.browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return b, nil
}

// Page returns the shared page, creating it on first use.
func (b *Browser) Page() (playwright.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil && !b.page.IsClosed() {
		return b.page, nil
	}
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))
	b.page = page
	return page, nil
}

// Navigate loads url into the shared page. A single attempt is made; the
// caller decides whether a failure ends the item or the batch.
func (b *Browser) Navigate(ctx context.Context, url string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.Page()
	if err != nil {
		return nil, err
	}

	b.logger.Debug("navigating", "url", url)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	b.settle(page)
	return &PageDocument{page: page, viewportHeight: b.opts.ViewportHeight}, nil
}

// settle scrolls through the page so lazily loaded images get a source.
func (b *Browser) settle(page playwright.Page) {
	for i := 0; i < 3; i++ {
		if _, err := page.Evaluate(`window.scrollBy(0, window.innerHeight)`); err != nil {
			b.logger.Debug("scroll failed", "error", err)
			return
		}
		time.Sleep(300 * time.Millisecond)
	}
	page.Evaluate(`window.scrollTo(0, 0)`)
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
