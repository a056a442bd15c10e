package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// StaticOptions configures a StaticSession.
type StaticOptions struct {
	Client    *http.Client
	UserAgent string
	Headers   map[string]string
}

// StaticSession is a Session over server-rendered HTML. Pages are fetched with
// net/http and queried with goquery; nothing is executed client side, so a
// WaitFor either matches immediately or times out.
type StaticSession struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	logger    *slog.Logger

	current *url.URL
	doc     *goquery.Document
	history []string
	typed   map[*html.Node]string
	closed  bool
}

// NewStatic creates a StaticSession.
func NewStatic(opts StaticOptions, logger *slog.Logger) *StaticSession {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticSession{
		client:    client,
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		logger:    logger.With("component", "static_session"),
		typed:     make(map[*html.Node]string),
	}
}

func (s *StaticSession) Navigate(ctx context.Context, rawURL string) error {
	if s.closed {
		return ErrSessionClosed
	}
	target, err := s.resolve(rawURL)
	if err != nil {
		return err
	}
	if err := s.load(ctx, target); err != nil {
		return err
	}
	return nil
}

func (s *StaticSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.doc == nil {
		return nil, fmt.Errorf("%w: %s (no page loaded)", ErrTimeout, selector)
	}
	sel := s.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return &staticElement{session: s, sel: sel.First()}, nil
}

func (s *StaticSession) FindAll(ctx context.Context, selector string) ([]Element, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.doc == nil {
		return nil, nil
	}
	return s.wrap(s.doc.Find(selector)), nil
}

func (s *StaticSession) CurrentURL(ctx context.Context) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if s.current == nil {
		return "", nil
	}
	return s.current.String(), nil
}

func (s *StaticSession) Reload(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return fmt.Errorf("failed to reload: no page loaded")
	}
	return s.fetch(ctx, s.current)
}

func (s *StaticSession) Back(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(s.history) == 0 {
		return fmt.Errorf("failed to go back: history is empty")
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]

	target, err := url.Parse(prev)
	if err != nil {
		return fmt.Errorf("failed to parse history entry: %w", err)
	}
	return s.fetch(ctx, target)
}

func (s *StaticSession) Close() error {
	s.closed = true
	s.doc = nil
	return nil
}

func (s *StaticSession) resolve(rawURL string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}
	if s.current != nil {
		target = s.current.ResolveReference(target)
	}
	if !target.IsAbs() {
		return nil, fmt.Errorf("failed to navigate: %q is not an absolute URL", rawURL)
	}
	return target, nil
}

// load fetches target and records the previous page in the history.
func (s *StaticSession) load(ctx context.Context, target *url.URL) error {
	prev := s.current
	if err := s.fetch(ctx, target); err != nil {
		return err
	}
	if prev != nil {
		s.history = append(s.history, prev.String())
	}
	return nil
}

func (s *StaticSession) fetch(ctx context.Context, target *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("failed to fetch %s: status %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	s.doc = doc
	s.current = final
	s.typed = make(map[*html.Node]string)
	s.logger.Debug("page loaded", "url", final.String(), "status", resp.StatusCode)
	return nil
}

func (s *StaticSession) wrap(sel *goquery.Selection) []Element {
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		elements = append(elements, &staticElement{session: s, sel: item})
	})
	return elements
}

// submit sends the form containing el as a GET request.
func (s *StaticSession) submit(ctx context.Context, form *goquery.Selection) error {
	action, _ := form.Attr("action")
	method, _ := form.Attr("method")
	if method != "" && !strings.EqualFold(method, http.MethodGet) {
		return fmt.Errorf("%w: form method %s", ErrNotInteractive, method)
	}

	target, err := s.resolve(action)
	if err != nil {
		return err
	}

	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
		name, _ := field.Attr("name")
		value, _ := field.Attr("value")
		if typed, ok := s.typed[field.Get(0)]; ok {
			value = typed
		}
		values.Set(name, value)
	})
	target.RawQuery = values.Encode()

	return s.load(ctx, target)
}

type staticElement struct {
	session *StaticSession
	sel     *goquery.Selection
}

func (e *staticElement) Text(ctx context.Context) (string, error) {
	if e.session.closed {
		return "", ErrSessionClosed
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if e.session.closed {
		return "", false, ErrSessionClosed
	}
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (e *staticElement) Click(ctx context.Context) error {
	if e.session.closed {
		return ErrSessionClosed
	}
	if _, disabled := e.sel.Attr("disabled"); disabled {
		return fmt.Errorf("%w: element is disabled", ErrNotInteractive)
	}

	if href, ok := e.sel.Attr("href"); ok && href != "" {
		target, err := e.session.resolve(href)
		if err != nil {
			return err
		}
		return e.session.load(ctx, target)
	}
	if href, ok := e.sel.Attr("data-href"); ok && href != "" {
		target, err := e.session.resolve(href)
		if err != nil {
			return err
		}
		return e.session.load(ctx, target)
	}

	if goquery.NodeName(e.sel) == "button" || goquery.NodeName(e.sel) == "input" {
		if form := e.sel.Closest("form"); form.Length() > 0 {
			return e.session.submit(ctx, form)
		}
	}

	return ErrNotInteractive
}

func (e *staticElement) ScrollIntoView(ctx context.Context) error {
	if e.session.closed {
		return ErrSessionClosed
	}
	return nil
}

func (e *staticElement) Type(ctx context.Context, text string) error {
	if e.session.closed {
		return ErrSessionClosed
	}
	switch goquery.NodeName(e.sel) {
	case "input", "textarea":
		e.session.typed[e.sel.Get(0)] = text
		return nil
	default:
		return ErrNotInteractive
	}
}

func (e *staticElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	if e.session.closed {
		return nil, ErrSessionClosed
	}
	return e.session.wrap(e.sel.Find(selector)), nil
}
