package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// CDPSession implements session.Session over the Chrome DevTools Protocol.
type CDPSession struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
}

// NewCDPSession starts a Chromium instance through chromedp. The browser lives
// until Close is called.
func NewCDPSession(opts *Options) (*CDPSession, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-plugins", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	// The first Run launches the browser.
	if err := chromedp.Run(ctx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &CDPSession{
		ctx:         ctx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		timeout:     opts.Timeout,
	}, nil
}

// run executes actions against the browser, bounded by timeout and by the
// caller's context.
func (s *CDPSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return session.ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case s.ctx.Err() != nil:
		return fmt.Errorf("%w: %w", session.ErrSessionClosed, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", session.ErrTimeout, err)
	default:
		return err
	}
}

func (s *CDPSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *CDPSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (session.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", session.ErrTimeout, selector)
	}
	return &cdpElement{session: s, node: nodes[0]}, nil
}

func (s *CDPSession) FindAll(ctx context.Context, selector string) ([]session.Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return s.wrap(nodes), nil
}

func (s *CDPSession) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.timeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

func (s *CDPSession) Reload(ctx context.Context) error {
	if err := s.run(ctx, s.timeout, chromedp.Reload()); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return nil
}

func (s *CDPSession) Back(ctx context.Context) error {
	if err := s.run(ctx, s.timeout, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to go back: %w", err)
	}
	return nil
}

func (s *CDPSession) Close() error {
	if s.ctx.Err() != nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancelCtx()
	s.cancelAlloc()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (s *CDPSession) wrap(nodes []*cdp.Node) []session.Element {
	elements := make([]session.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &cdpElement{session: s, node: n})
	}
	return elements
}

type cdpElement struct {
	session *CDPSession
	node    *cdp.Node
}

func (e *cdpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.session.run(ctx, e.session.timeout, chromedp.Text(e.ids(), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (e *cdpElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := e.session.run(ctx, e.session.timeout, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return "", false, fmt.Errorf("failed to read attribute %s: %w", name, err)
	}
	return value, ok, nil
}

func (e *cdpElement) Click(ctx context.Context) error {
	if err := e.session.run(ctx, e.session.timeout, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}

func (e *cdpElement) ScrollIntoView(ctx context.Context) error {
	if err := e.session.run(ctx, e.session.timeout, chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to scroll into view: %w", err)
	}
	return nil
}

func (e *cdpElement) Type(ctx context.Context, text string) error {
	if err := e.session.run(ctx, e.session.timeout, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to type: %w", err)
	}
	return nil
}

func (e *cdpElement) FindAll(ctx context.Context, selector string) ([]session.Element, error) {
	var nodes []*cdp.Node
	err := e.session.run(ctx, e.session.timeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return e.session.wrap(nodes), nil
}
