package scraper

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// newStatic returns a static session whose requests hit transport.
func newStatic(t *testing.T) (*session.StaticSession, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	s := session.NewStatic(session.StaticOptions{Client: &http.Client{Transport: transport}}, nil)
	return s, transport
}

// noWait disables every settle pause.
func noWait() Timings {
	return Timings{
		GridWait:     time.Second,
		ListingWait:  time.Second,
		ResultsWait:  time.Second,
		NextPageWait: time.Second,
		ContentWait:  time.Second,
	}
}

// stubSession satisfies session.Session for tests that stub every stage.
type stubSession struct {
	mu          sync.Mutex
	current     string
	navigateErr error
	navigated   []string
	closed      int
}

func (s *stubSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	if s.navigateErr != nil {
		return s.navigateErr
	}
	s.current = url
	return nil
}

func (s *stubSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) (session.Element, error) {
	return nil, session.ErrTimeout
}

func (s *stubSession) FindAll(ctx context.Context, selector string) ([]session.Element, error) {
	return nil, nil
}

func (s *stubSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *stubSession) Reload(ctx context.Context) error { return nil }

func (s *stubSession) Back(ctx context.Context) error { return nil }

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// scriptedLinks returns one entry of pages per call, then empty pages.
type scriptedLinks struct {
	pages [][]string
	err   error
	calls int
}

func (l *scriptedLinks) CollectLinks(ctx context.Context, s session.Session) ([]string, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if l.calls > len(l.pages) {
		return []string{}, nil
	}
	return l.pages[l.calls-1], nil
}

type advanceCall struct {
	anchor string
	target int
}

type stubPager struct {
	total      int
	advanceErr error
	advances   []advanceCall
}

func (p *stubPager) TotalPages(ctx context.Context, s session.Session) int {
	return p.total
}

func (p *stubPager) AdvanceTo(ctx context.Context, s session.Session, anchorURL string, target int) error {
	p.advances = append(p.advances, advanceCall{anchor: anchorURL, target: target})
	return p.advanceErr
}

// stubExtractor returns results keyed by URL; unknown URLs give a usable record.
type stubExtractor struct {
	results   map[string]Result[models.ProductRecord]
	extracted []string
}

func (e *stubExtractor) Extract(ctx context.Context, s session.Session, productURL string) Result[models.ProductRecord] {
	e.extracted = append(e.extracted, productURL)
	if r, ok := e.results[productURL]; ok {
		return r
	}
	return Result[models.ProductRecord]{Value: usableRecord(productURL), Outcome: OutcomeOK}
}

func usableRecord(productURL string) models.ProductRecord {
	r := models.NewProductRecord(productURL)
	r.SKU = "sku-" + productURL
	r.Brand = "Brand"
	r.Name = "Name"
	return r
}
