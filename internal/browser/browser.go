package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/playwright-community/playwright-go"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
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
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/Los_Angeles",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// launchArgs are shared by every backend that starts Chromium.
func launchArgs(opts *Options) []string {
	return []string{
		"--start-maximized",
		"--disable-notifications",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--disable-extensions",
		"--disable-plugins",
		"--disable-blink-features=AutomationControlled",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     launchArgs(opts),
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

// NewSession opens a page and wraps it as a session.Session. Closing the
// session closes the page and then the whole browser.
func (b *Browser) NewSession() (*PlaywrightSession, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	return &PlaywrightSession{
		page:    page,
		timeout: b.opts.Timeout,
		release: b.Close,
	}, nil
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
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}

	return nil
}

// PlaywrightSession implements session.Session on a single playwright page.
type PlaywrightSession struct {
	page    playwright.Page
	timeout time.Duration
	release func() error
}

func (s *PlaywrightSession) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return translate(fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	return nil
}

func (s *PlaywrightSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (session.Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	handle, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(boundTimeout(ctx, timeout).Milliseconds())),
	})
	if err != nil {
		return nil, translate(fmt.Errorf("failed waiting for %s: %w", selector, err))
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrTimeout, selector)
	}
	return &playwrightElement{handle: handle}, nil
}

func (s *PlaywrightSession) FindAll(ctx context.Context, selector string) ([]session.Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, translate(fmt.Errorf("failed to query %s: %w", selector, err))
	}
	return wrapHandles(handles), nil
}

func (s *PlaywrightSession) CurrentURL(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

func (s *PlaywrightSession) Reload(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return translate(fmt.Errorf("failed to reload: %w", err))
	}
	return nil
}

func (s *PlaywrightSession) Back(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, err := s.page.GoBack(); err != nil {
		return translate(fmt.Errorf("failed to go back: %w", err))
	}
	return nil
}

func (s *PlaywrightSession) Close() error {
	var errs []error
	if !s.page.IsClosed() {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if s.release != nil {
		if err := s.release(); err != nil {
			errs = append(errs, err)
		}
		s.release = nil
	}
	return errors.Join(errs...)
}

func (s *PlaywrightSession) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.page.IsClosed() {
		return session.ErrSessionClosed
	}
	return nil
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	text, err := e.handle.TextContent()
	if err != nil {
		return "", translate(fmt.Errorf("failed to read text: %w", err))
	}
	return strings.TrimSpace(text), nil
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	value, err := e.handle.GetAttribute(name)
	if err != nil {
		return "", false, translate(fmt.Errorf("failed to read attribute %s: %w", name, err))
	}
	return value, value != "", nil
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := e.handle.Click(); err != nil {
		return translate(fmt.Errorf("failed to click: %w", err))
	}
	return nil
}

func (e *playwrightElement) ScrollIntoView(ctx context.Context) error {
	if err := e.handle.ScrollIntoViewIfNeeded(); err != nil {
		return translate(fmt.Errorf("failed to scroll into view: %w", err))
	}
	return nil
}

func (e *playwrightElement) Type(ctx context.Context, text string) error {
	if err := e.handle.Fill(text); err != nil {
		return translate(fmt.Errorf("failed to fill: %w", err))
	}
	return nil
}

func (e *playwrightElement) FindAll(ctx context.Context, selector string) ([]session.Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, translate(fmt.Errorf("failed to query %s: %w", selector, err))
	}
	return wrapHandles(handles), nil
}

func wrapHandles(handles []playwright.ElementHandle) []session.Element {
	elements := make([]session.Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements
}

// translate maps playwright errors onto the session sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%w: %w", session.ErrTimeout, err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return fmt.Errorf("%w: %w", session.ErrSessionClosed, err)
	default:
		return err
	}
}

// boundTimeout caps timeout by the context deadline.
func boundTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			if remaining < 0 {
				return 0
			}
			return remaining
		}
	}
	return timeout
}
