package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/session"
)

// DefaultPageSize is the number of products the storefront lists per page.
const DefaultPageSize = 24

var countToken = regexp.MustCompile(`\d[\d,]*`)

type Paginator struct {
	selectors Selectors
	timings   Timings
	pageSize  int
	logger    *slog.Logger
}

func NewPaginator(selectors Selectors, timings Timings, pageSize int, logger *slog.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		selectors: selectors,
		timings:   timings,
		pageSize:  pageSize,
		logger:    logger.With("component", "paginator"),
	}
}

// TotalPages reads the result count on the current listing page. It never
// returns less than 1.
func (p *Paginator) TotalPages(ctx context.Context, s session.Session) int {
	if _, err := s.WaitFor(ctx, p.selectors.ListingContainer, p.timings.ListingWait); err != nil {
		p.logger.Warn("listing did not load, assuming one page", "error", err)
		return 1
	}

	label, err := s.WaitFor(ctx, p.selectors.ResultsCount, p.timings.ResultsWait)
	if err != nil {
		p.logger.Warn("results count not found, assuming one page", "error", err)
		return 1
	}

	text, err := label.Text(ctx)
	if err != nil {
		p.logger.Warn("failed to read results count", "error", err)
		return 1
	}

	pages := ParseTotalPages(text, p.pageSize)
	p.logger.Debug("computed total pages", "label", text, "pages", pages)
	return pages
}

// ParseTotalPages takes the last integer in text as the result count and
// converts it to a page count. Malformed or zero counts give 1.
func ParseTotalPages(text string, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	tokens := countToken.FindAllString(text, -1)
	if len(tokens) == 0 {
		return 1
	}

	total, err := strconv.Atoi(strings.ReplaceAll(tokens[len(tokens)-1], ",", ""))
	if err != nil || total <= 0 {
		return 1
	}

	return (total + pageSize - 1) / pageSize
}

// Advance clicks the next-page control once. Any failure is reported as
// ErrAdvanceFailed; nothing is retried here.
func (p *Paginator) Advance(ctx context.Context, s session.Session) error {
	next, err := s.WaitFor(ctx, p.selectors.NextPage, p.timings.NextPageWait)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}

	if _, disabled, err := next.Attribute(ctx, "disabled"); err == nil && disabled {
		return fmt.Errorf("%w: next page control is disabled", ErrAdvanceFailed)
	}

	if err := next.ScrollIntoView(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}
	if err := session.Pause(ctx, p.timings.ScrollSettle); err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}
	if err := next.Click(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}
	if err := session.Pause(ctx, p.timings.AdvanceSettle); err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}

	return nil
}

// AdvanceTo reaches page target by reloading the category's first page from
// anchorURL and advancing target-1 times.
func (p *Paginator) AdvanceTo(ctx context.Context, s session.Session, anchorURL string, target int) error {
	if err := s.Navigate(ctx, anchorURL); err != nil {
		return fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}

	for page := 2; page <= target; page++ {
		if err := p.Advance(ctx, s); err != nil {
			p.logger.Warn("failed to advance", "target", target, "reached", page-1, "error", err)
			return err
		}
	}

	return nil
}
