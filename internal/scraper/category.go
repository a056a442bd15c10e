package scraper

import (
	"context"
	"log/slog"

	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/session"
)

// DefaultBreakerThreshold is the number of consecutive empty listing pages
// after which a category is abandoned.
const DefaultBreakerThreshold = 3

type Termination int

const (
	TerminationCompleted Termination = iota
	TerminationBreakerTripped
	TerminationAdvanceFailed
	TerminationUnreachable
	TerminationSessionLost
	TerminationCancelled
)

func (t Termination) String() string {
	switch t {
	case TerminationCompleted:
		return "completed"
	case TerminationBreakerTripped:
		return "breaker_tripped"
	case TerminationAdvanceFailed:
		return "advance_failed"
	case TerminationUnreachable:
		return "unreachable"
	case TerminationSessionLost:
		return "session_lost"
	case TerminationCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type CategoryResult struct {
	Category     models.Category
	Records      []models.ProductRecord
	PagesVisited int
	TotalPages   int
	Termination  Termination
	Err          error
}

type linkSource interface {
	CollectLinks(ctx context.Context, s session.Session) ([]string, error)
}

type pager interface {
	TotalPages(ctx context.Context, s session.Session) int
	AdvanceTo(ctx context.Context, s session.Session, anchorURL string, target int) error
}

type productSource interface {
	Extract(ctx context.Context, s session.Session, productURL string) Result[models.ProductRecord]
}

type CategoryCrawlerOptions struct {
	BreakerThreshold int
	// KeepPartial keeps records that fell short of the usability threshold.
	KeepPartial bool
	// Seen filters product URLs already crawled in this run. Nil disables it.
	Seen    *SeenSet
	Metrics *metrics.Metrics
}

type CategoryCrawler struct {
	links     linkSource
	pages     pager
	extractor productSource
	opts      CategoryCrawlerOptions
	logger    *slog.Logger
}

func NewCategoryCrawler(links linkSource, pages pager, extractor productSource, opts CategoryCrawlerOptions, logger *slog.Logger) *CategoryCrawler {
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = DefaultBreakerThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryCrawler{
		links:     links,
		pages:     pages,
		extractor: extractor,
		opts:      opts,
		logger:    logger.With("component", "category_crawler"),
	}
}

// Crawl walks every listing page of category and extracts its products. It
// never returns an error; the reason it stopped is in Termination.
func (c *CategoryCrawler) Crawl(ctx context.Context, s session.Session, category models.Category) CategoryResult {
	logger := c.logger.With("category", category.ID)
	result := CategoryResult{Category: category, Records: []models.ProductRecord{}}

	done := func(t Termination, err error) CategoryResult {
		result.Termination = t
		result.Err = err
		c.opts.Metrics.IncCategory(t.String())
		logger.Info("category finished",
			"termination", t.String(),
			"pages_visited", result.PagesVisited,
			"total_pages", result.TotalPages,
			"records", len(result.Records),
		)
		return result
	}
	stopped := func(err error) CategoryResult {
		if ctx.Err() != nil {
			return done(TerminationCancelled, ctx.Err())
		}
		return done(TerminationSessionLost, err)
	}

	logger.Info("starting category", "name", category.DisplayName, "url", category.ListingURL)

	if err := s.Navigate(ctx, category.ListingURL); err != nil {
		if fatal(ctx, err) {
			return stopped(err)
		}
		logger.Error("failed to open category listing", "error", err)
		return done(TerminationUnreachable, err)
	}

	anchor := category.ListingURL
	if current, err := s.CurrentURL(ctx); err == nil && current != "" {
		anchor = current
	}

	result.TotalPages = c.pages.TotalPages(ctx, s)
	breaker := retry.NewBreaker(c.opts.BreakerThreshold)

	for page := 1; page <= result.TotalPages; page++ {
		if ctx.Err() != nil {
			return stopped(ctx.Err())
		}

		state := models.PageState{
			CategoryID: category.ID,
			PageIndex:  page,
			TotalPages: result.TotalPages,
			ListingURL: anchor,
		}
		result.PagesVisited++
		c.opts.Metrics.IncPage(category.ID)
		logger.Info("crawling page", "page", state.PageIndex, "total_pages", state.TotalPages)

		links, err := c.links.CollectLinks(ctx, s)
		if err != nil {
			return stopped(err)
		}

		if len(links) == 0 {
			if breaker.Failure() {
				logger.Warn("too many consecutive empty pages", "streak", breaker.Streak())
				return done(TerminationBreakerTripped, nil)
			}
			logger.Warn("no products on page", "page", page, "streak", breaker.Streak())
		} else {
			breaker.Success()
			if err := c.extractAll(ctx, s, state, c.filterSeen(links), &result, logger); err != nil {
				return stopped(err)
			}
		}

		if state.IsLast() {
			break
		}

		if err := c.pages.AdvanceTo(ctx, s, anchor, page+1); err != nil {
			if fatal(ctx, err) {
				return stopped(err)
			}
			logger.Warn("failed to advance, abandoning category", "page", page, "error", err)
			return done(TerminationAdvanceFailed, err)
		}
	}

	return done(TerminationCompleted, nil)
}

// extractAll extracts links in order and appends kept records to result. It
// returns an error only when the run must stop.
func (c *CategoryCrawler) extractAll(ctx context.Context, s session.Session, state models.PageState, links []string, result *CategoryResult, logger *slog.Logger) error {
	for i, link := range links {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Info("processing product",
			"product", i+1,
			"products_on_page", len(links),
			"page", state.PageIndex,
			"total_pages", state.TotalPages,
		)

		extracted := c.extractor.Extract(ctx, s, link)
		switch extracted.Outcome {
		case OutcomeFailed:
			if fatal(ctx, extracted.Err) {
				return extracted.Err
			}
			logger.Warn("failed to extract product", "url", link, "error", extracted.Err)
			continue
		case OutcomePartial:
			if !c.opts.KeepPartial {
				logger.Info("dropping partial product", "url", link, "valid_fields", extracted.Value.ValidFieldCount())
				continue
			}
		}

		record := extracted.Value
		record.CategoryID = state.CategoryID
		if record.SourceURL == "" {
			record.SourceURL = link
		}
		result.Records = append(result.Records, record)
	}
	return nil
}

func (c *CategoryCrawler) filterSeen(links []string) []string {
	if c.opts.Seen == nil {
		return links
	}
	fresh := links[:0:0]
	for _, link := range links {
		if c.opts.Seen.FirstSeen(link) {
			fresh = append(fresh, link)
		}
	}
	if skipped := len(links) - len(fresh); skipped > 0 {
		c.logger.Debug("skipped already crawled products", "count", skipped)
	}
	return fresh
}
